package build

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/sofmeright/imagekiln/src/plan"
	"github.com/sofmeright/imagekiln/src/registry"
	"github.com/sofmeright/imagekiln/src/verify"
)

// Verifier runs the verification stage against a built image.
type Verifier interface {
	Verify(ctx context.Context, e *registry.Entry, resolvedVersion, imageRef string) verify.Report
}

// Executor drives tasks through the build and verification stages on a
// bounded worker pool. Each worker owns one task end to end, so a slow
// verification never blocks another target's build slot beyond pool width.
type Executor struct {
	Backend     Backend
	Inspector   verify.Inspector // optional, fills Result.SizeBytes after a successful build
	Verifier    Verifier         // optional, nil skips the verification stage
	Concurrency int
	Timeout     time.Duration // per-task build limit, 0 means none
	LogTail     int
	Repository  string
	Platforms   []string // default platforms for entries that set none
	ContextRoot string
}

// Run executes every pending task and returns one outcome per task, in
// task order. Tasks that already failed planning are never dispatched and
// keep a zero outcome.
func (x *Executor) Run(ctx context.Context, reg *registry.Registry, tasks []*plan.Task) []Outcome {
	outcomes := make([]Outcome, len(tasks))

	workers := int64(x.Concurrency)
	if workers < 1 {
		workers = 1
	}
	sem := semaphore.NewWeighted(workers)
	var wg sync.WaitGroup

	for i, t := range tasks {
		if t.Status != plan.StatusPending {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(i int, t *plan.Task) {
			defer wg.Done()
			defer sem.Release(1)
			outcomes[i] = x.runTask(ctx, reg, t)
		}(i, t)
	}

	wg.Wait()
	return outcomes
}

func (x *Executor) runTask(ctx context.Context, reg *registry.Registry, t *plan.Task) Outcome {
	e, ok := reg.Get(t.Entry)
	if !ok {
		// Tasks are planned from the same registry, so this only fires
		// when a caller mixes plans across registries.
		return Outcome{Result: Result{Error: fmt.Errorf("entry %q missing from registry", t.Entry)}}
	}

	if err := t.Advance(plan.StatusBuilding); err != nil {
		return Outcome{Result: Result{Error: err}}
	}

	res := x.buildOne(ctx, e, t.ResolvedVersion)
	if res.Error != nil {
		if err := t.Advance(plan.StatusBuildFailed); err != nil {
			res.Error = err
		}
		return Outcome{Result: res}
	}
	if err := t.Advance(plan.StatusSucceeded); err != nil {
		res.Error = err
		return Outcome{Result: res}
	}

	// The run may be shutting down between stages; a built image with no
	// verdict stays at succeeded.
	if x.Verifier == nil || ctx.Err() != nil {
		return Outcome{Result: res}
	}

	if err := t.Advance(plan.StatusVerifying); err != nil {
		res.Error = err
		return Outcome{Result: res}
	}
	rep := x.Verifier.Verify(ctx, e, t.ResolvedVersion, res.ImageRef)
	next := plan.StatusVerificationFailed
	if rep.Passed {
		next = plan.StatusVerified
	}
	if err := t.Advance(next); err != nil {
		res.Error = err
	}
	return Outcome{Result: res, Verification: &rep}
}

// buildOne runs a single build under the per-task time limit.
func (x *Executor) buildOne(ctx context.Context, e *registry.Entry, version string) Result {
	start := time.Now()
	logs := newTailWriter(x.LogTail)
	res := Result{}

	contextDir := filepath.Join(x.ContextRoot, e.ContextDir())
	if fp, err := ContextDigest(contextDir); err == nil {
		res.ContextDigest = fp
	}

	platforms := e.Platforms
	if len(platforms) == 0 {
		platforms = x.Platforms
	}

	// The resolved version reaches the Containerfile as a build arg, so
	// one context can build any version. Entries may still pin their own.
	buildArgs := make(map[string]string, len(e.BuildArgs)+1)
	for k, v := range e.BuildArgs {
		buildArgs[k] = v
	}
	if _, ok := buildArgs["VERSION"]; !ok {
		buildArgs["VERSION"] = version
	}

	tag := Tag(x.Repository, e.Name, version)
	spec := BuildSpec{
		Context:       contextDir,
		Containerfile: filepath.Join(x.ContextRoot, e.ContainerfilePath()),
		Target:        e.BuildTarget(),
		Platforms:     platforms,
		BuildArgs:     buildArgs,
		Tag:           tag,
	}

	bctx := ctx
	if x.Timeout > 0 {
		var cancel context.CancelFunc
		bctx, cancel = context.WithTimeout(ctx, x.Timeout)
		defer cancel()
	}

	err := x.Backend.Build(bctx, spec, logs)
	res.Duration = time.Since(start)
	if err != nil {
		if errors.Is(bctx.Err(), context.DeadlineExceeded) {
			res.Timeout = true
			res.Error = fmt.Errorf("build timed out after %s", x.Timeout)
			fmt.Fprintf(logs, "\nbuild timed out after %s\n", x.Timeout)
		} else {
			res.Error = err
		}
		res.LogExcerpt = logs.String()
		return res
	}

	res.ImageRef = tag
	res.LogExcerpt = logs.String()
	if x.Inspector != nil {
		if info, ierr := x.Inspector.InspectImage(ctx, tag); ierr == nil {
			res.SizeBytes = info.SizeBytes
		}
	}
	return res
}
