package build

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sofmeright/imagekiln/src/plan"
	"github.com/sofmeright/imagekiln/src/registry"
	"github.com/sofmeright/imagekiln/src/verify"
)

func execRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Parse([]byte(`
[gopls]
kind = "module-install"
version = "0.15.0"
strategy = "multi-stage-static"

[rust-analyzer]
kind = "archive-download"
version = "2024.1.1"
strategy = "multi-stage-dynamic-libc"

[pyright]
kind = "package-manager-install"
version = "1.1.350"
strategy = "runtime-prune"
ecosystem = "npm"
package = "pyright"

[pyright.build_args]
NODE_BASE = "node:20-slim"
`))
	require.NoError(t, err)
	return reg
}

func pendingTask(name, version string) *plan.Task {
	return &plan.Task{Entry: name, ResolvedVersion: version, Status: plan.StatusPending}
}

// fakeBackend records build specs and simulates per-target behavior keyed
// by the entry name embedded in the tag.
type fakeBackend struct {
	mu    sync.Mutex
	specs []BuildSpec

	delay  map[string]time.Duration
	fail   map[string]error
	block  map[string]bool // hold the build until the context expires
	output map[string]string
}

func (f *fakeBackend) Build(ctx context.Context, spec BuildSpec, logs io.Writer) error {
	f.mu.Lock()
	f.specs = append(f.specs, spec)
	f.mu.Unlock()

	name := tagName(spec.Tag)
	if out := f.output[name]; out != "" {
		io.WriteString(logs, out)
	}
	if f.block[name] {
		<-ctx.Done()
		return ctx.Err()
	}
	if d := f.delay[name]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.fail[name]
}

func (f *fakeBackend) builtNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.specs))
	for _, s := range f.specs {
		names = append(names, tagName(s.Tag))
	}
	return names
}

func tagName(tag string) string {
	if i := strings.LastIndex(tag, "/"); i >= 0 {
		tag = tag[i+1:]
	}
	return strings.SplitN(tag, ":", 2)[0]
}

type fakeVerifier struct {
	mu    sync.Mutex
	calls []string
	pass  map[string]bool // default is pass
}

func (f *fakeVerifier) Verify(ctx context.Context, e *registry.Entry, resolvedVersion, imageRef string) verify.Report {
	f.mu.Lock()
	f.calls = append(f.calls, e.Name)
	f.mu.Unlock()

	passed := true
	if p, ok := f.pass[e.Name]; ok {
		passed = p
	}
	return verify.Report{
		Passed: passed,
		Checks: []verify.Check{{Name: verify.CheckImageExists, Passed: passed}},
	}
}

func (f *fakeVerifier) verified() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func TestRun_OutcomesFollowTaskOrder(t *testing.T) {
	reg := execRegistry(t)
	// gopls finishes last so completion order differs from task order.
	backend := &fakeBackend{delay: map[string]time.Duration{
		"gopls":         40 * time.Millisecond,
		"rust-analyzer": 5 * time.Millisecond,
		"pyright":       20 * time.Millisecond,
	}}
	x := &Executor{Backend: backend, Verifier: &fakeVerifier{}, Concurrency: 3}
	tasks := []*plan.Task{
		pendingTask("gopls", "0.15.0"),
		pendingTask("rust-analyzer", "2024.1.1"),
		pendingTask("pyright", "1.1.350"),
	}

	outcomes := x.Run(context.Background(), reg, tasks)

	require.Len(t, outcomes, 3)
	assert.Equal(t, "gopls:0.15.0", outcomes[0].Result.ImageRef)
	assert.Equal(t, "rust-analyzer:2024.1.1", outcomes[1].Result.ImageRef)
	assert.Equal(t, "pyright:1.1.350", outcomes[2].Result.ImageRef)
	for _, tk := range tasks {
		assert.Equal(t, plan.StatusVerified, tk.Status)
	}
}

func TestRun_InjectsVersionBuildArg(t *testing.T) {
	reg := execRegistry(t)
	backend := &fakeBackend{}
	x := &Executor{Backend: backend, Concurrency: 1}

	x.Run(context.Background(), reg, []*plan.Task{pendingTask("pyright", "1.1.350")})

	require.Len(t, backend.specs, 1)
	spec := backend.specs[0]
	assert.Equal(t, "1.1.350", spec.BuildArgs["VERSION"])
	assert.Equal(t, "node:20-slim", spec.BuildArgs["NODE_BASE"])
}

func TestRun_TimeoutFailsOnlyTheSlowTask(t *testing.T) {
	reg := execRegistry(t)
	backend := &fakeBackend{block: map[string]bool{"rust-analyzer": true}}
	x := &Executor{
		Backend:     backend,
		Verifier:    &fakeVerifier{},
		Concurrency: 2,
		Timeout:     50 * time.Millisecond,
	}
	tasks := []*plan.Task{
		pendingTask("gopls", "0.15.0"),
		pendingTask("rust-analyzer", "2024.1.1"),
	}

	outcomes := x.Run(context.Background(), reg, tasks)

	assert.Equal(t, plan.StatusVerified, tasks[0].Status)
	assert.Equal(t, plan.StatusBuildFailed, tasks[1].Status)

	slow := outcomes[1].Result
	assert.True(t, slow.Timeout)
	assert.Contains(t, slow.LogExcerpt, "timed out")
	assert.Empty(t, slow.ImageRef)
	assert.Nil(t, outcomes[1].Verification)
}

func TestRun_PlanFailedTaskIsNotDispatched(t *testing.T) {
	reg := execRegistry(t)
	backend := &fakeBackend{}
	verifier := &fakeVerifier{}
	x := &Executor{Backend: backend, Verifier: verifier, Concurrency: 2}

	failed := pendingTask("rust-analyzer", "")
	failed.Status = plan.StatusPlanFailed
	failed.PlanErr = errors.New("release feed unreachable")
	tasks := []*plan.Task{pendingTask("gopls", "0.15.0"), failed}

	outcomes := x.Run(context.Background(), reg, tasks)

	assert.Equal(t, []string{"gopls"}, backend.builtNames())
	assert.Equal(t, []string{"gopls"}, verifier.verified())
	assert.Equal(t, plan.StatusPlanFailed, failed.Status)
	assert.Equal(t, Outcome{}, outcomes[1])
}

func TestRun_BuildFailureSkipsVerification(t *testing.T) {
	reg := execRegistry(t)
	backend := &fakeBackend{
		fail:   map[string]error{"gopls": errors.New("exit status 1")},
		output: map[string]string{"gopls": "step 3/7: compile\nld: cannot find -lresolv\n"},
	}
	verifier := &fakeVerifier{}
	x := &Executor{Backend: backend, Verifier: verifier, Concurrency: 1}
	tasks := []*plan.Task{pendingTask("gopls", "0.15.0")}

	outcomes := x.Run(context.Background(), reg, tasks)

	assert.Equal(t, plan.StatusBuildFailed, tasks[0].Status)
	assert.Empty(t, verifier.verified())
	res := outcomes[0].Result
	require.Error(t, res.Error)
	assert.Contains(t, res.LogExcerpt, "cannot find -lresolv")
	assert.False(t, res.Timeout)
	assert.Nil(t, outcomes[0].Verification)
}

func TestRun_VerificationFailureIsTerminal(t *testing.T) {
	reg := execRegistry(t)
	backend := &fakeBackend{}
	verifier := &fakeVerifier{pass: map[string]bool{"gopls": false}}
	x := &Executor{Backend: backend, Verifier: verifier, Concurrency: 1}
	tasks := []*plan.Task{pendingTask("gopls", "0.15.0")}

	outcomes := x.Run(context.Background(), reg, tasks)

	assert.Equal(t, plan.StatusVerificationFailed, tasks[0].Status)
	require.NotNil(t, outcomes[0].Verification)
	assert.False(t, outcomes[0].Verification.Passed)
	assert.Equal(t, "gopls:0.15.0", outcomes[0].Result.ImageRef)
}

func TestRun_NilVerifierStopsAtSucceeded(t *testing.T) {
	reg := execRegistry(t)
	backend := &fakeBackend{}
	x := &Executor{Backend: backend, Concurrency: 1}
	tasks := []*plan.Task{pendingTask("gopls", "0.15.0")}

	outcomes := x.Run(context.Background(), reg, tasks)

	assert.Equal(t, plan.StatusSucceeded, tasks[0].Status)
	assert.Nil(t, outcomes[0].Verification)
}

func TestRun_CanceledContextDispatchesNothing(t *testing.T) {
	reg := execRegistry(t)
	backend := &fakeBackend{}
	x := &Executor{Backend: backend, Concurrency: 2}
	tasks := []*plan.Task{
		pendingTask("gopls", "0.15.0"),
		pendingTask("pyright", "1.1.350"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x.Run(ctx, reg, tasks)

	assert.Empty(t, backend.builtNames())
	for _, tk := range tasks {
		assert.Equal(t, plan.StatusPending, tk.Status)
	}
}

func TestRun_RepositoryPrefixesImageRef(t *testing.T) {
	reg := execRegistry(t)
	backend := &fakeBackend{}
	x := &Executor{Backend: backend, Concurrency: 1, Repository: "registry.example.com/kiln"}

	outcomes := x.Run(context.Background(), reg, []*plan.Task{pendingTask("gopls", "0.15.0")})

	assert.Equal(t, "registry.example.com/kiln/gopls:0.15.0", outcomes[0].Result.ImageRef)
}

func TestBuildArgs_FullSpec(t *testing.T) {
	spec := BuildSpec{
		Context:       "tools/gopls",
		Containerfile: "tools/gopls/ContainerFile",
		Target:        "static",
		Platforms:     []string{"linux/amd64", "linux/arm64"},
		BuildArgs:     map[string]string{"VERSION": "0.15.0", "BASE": "alpine:3.20"},
		Tag:           "kiln/gopls:0.15.0",
	}

	assert.Equal(t, []string{
		"buildx", "build", "--progress=plain",
		"--file", "tools/gopls/ContainerFile",
		"--target", "static",
		"--platform", "linux/amd64,linux/arm64",
		"--build-arg", "BASE=alpine:3.20",
		"--build-arg", "VERSION=0.15.0",
		"--tag", "kiln/gopls:0.15.0",
		"--load",
		"tools/gopls",
	}, buildArgs(spec))
}

func TestBuildArgs_MinimalSpecDefaultsContext(t *testing.T) {
	assert.Equal(t, []string{
		"buildx", "build", "--progress=plain",
		"--tag", "gopls:latest",
		"--load",
		".",
	}, buildArgs(BuildSpec{Tag: "gopls:latest"}))
}

func TestTag(t *testing.T) {
	assert.Equal(t, "gopls:0.15.0", Tag("", "gopls", "0.15.0"))
	assert.Equal(t, "registry.example.com/kiln/gopls:0.15.0",
		Tag("registry.example.com/kiln", "gopls", "0.15.0"))
	assert.Equal(t, "registry.example.com/kiln/gopls:0.15.0",
		Tag("registry.example.com/kiln/", "gopls", "0.15.0"))
	assert.Equal(t, "zig:0.12.0-dev.1-abc", Tag("", "zig", "0.12.0-dev.1+abc"))
}

func TestTailWriter_KeepsEverythingUnderCap(t *testing.T) {
	w := newTailWriter(64)
	io.WriteString(w, "step 1\n")
	io.WriteString(w, "step 2\n")
	assert.Equal(t, "step 1\nstep 2\n", w.String())
}

func TestTailWriter_KeepsOnlyTheTail(t *testing.T) {
	w := newTailWriter(8)
	io.WriteString(w, "hello ")
	io.WriteString(w, "world")
	assert.Equal(t, "[...truncated...]\nlo world", w.String())
}

func TestContextDigest(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("ContainerFile", "FROM scratch\n")
	write("entrypoint.sh", "#!/bin/sh\n")

	d1, err := ContextDigest(dir)
	require.NoError(t, err)
	require.Len(t, d1, 16)

	d2, err := ContextDigest(dir)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	// Version control metadata does not affect the fingerprint.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".git"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".git", "HEAD"), []byte("ref: main\n"), 0o644))
	d3, err := ContextDigest(dir)
	require.NoError(t, err)
	assert.Equal(t, d1, d3)

	write("entrypoint.sh", "#!/bin/sh\nexec \"$@\"\n")
	d4, err := ContextDigest(dir)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d4)

	// Renames change the digest even with identical content.
	require.NoError(t, os.Rename(filepath.Join(dir, "entrypoint.sh"), filepath.Join(dir, "run.sh")))
	d5, err := ContextDigest(dir)
	require.NoError(t, err)
	assert.NotEqual(t, d4, d5)
}
