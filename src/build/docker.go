package build

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/sofmeright/imagekiln/src/verify"
)

// BuildSpec describes one image build for a backend.
type BuildSpec struct {
	Context       string
	Containerfile string
	Target        string
	Platforms     []string
	BuildArgs     map[string]string
	Tag           string
}

// Backend runs image builds. Output is streamed to logs as the build
// produces it.
type Backend interface {
	Build(ctx context.Context, spec BuildSpec, logs io.Writer) error
}

// Docker builds through docker buildx and answers image questions from the
// local daemon. It satisfies verify.Inspector and verify.Prober, so built
// images can be verified without a second client.
type Docker struct {
	Verbose bool
	Stderr  io.Writer
}

// NewDocker creates a Docker backend with default output writers.
func NewDocker(verbose bool) *Docker {
	return &Docker{
		Verbose: verbose,
		Stderr:  os.Stderr,
	}
}

// Build executes a single image build via docker buildx.
func (d *Docker) Build(ctx context.Context, spec BuildSpec, logs io.Writer) error {
	args := buildArgs(spec)

	if d.Verbose {
		fmt.Fprintf(d.stderr(), "exec: docker %s\n", strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Stdout = logs
	cmd.Stderr = logs

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker buildx build failed: %w", err)
	}
	return nil
}

// buildArgs constructs the docker buildx build argument list.
func buildArgs(spec BuildSpec) []string {
	args := []string{"buildx", "build", "--progress=plain"}

	if spec.Containerfile != "" {
		args = append(args, "--file", spec.Containerfile)
	}

	if spec.Target != "" {
		args = append(args, "--target", spec.Target)
	}

	if len(spec.Platforms) > 0 {
		args = append(args, "--platform", strings.Join(spec.Platforms, ","))
	}

	// Sorted so the command line is reproducible.
	keys := make([]string, 0, len(spec.BuildArgs))
	for k := range spec.BuildArgs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", k, spec.BuildArgs[k]))
	}

	// Verification needs the image in the local daemon.
	args = append(args, "--tag", spec.Tag, "--load")

	context := spec.Context
	if context == "" {
		context = "."
	}
	args = append(args, context)

	return args
}

// InspectImage reads image metadata from the local daemon.
func (d *Docker) InspectImage(ctx context.Context, ref string) (verify.ImageInfo, error) {
	cmd := exec.CommandContext(ctx, "docker", "image", "inspect", ref)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return verify.ImageInfo{}, fmt.Errorf("docker image inspect %s: %w: %s", ref, err, strings.TrimSpace(stderr.String()))
	}

	// docker image inspect outputs a JSON array, one element per ref.
	var images []struct {
		ID           string   `json:"Id"`
		RepoDigests  []string `json:"RepoDigests"`
		Size         int64    `json:"Size"`
		Architecture string   `json:"Architecture"`
		Os           string   `json:"Os"`
		Variant      string   `json:"Variant"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &images); err != nil {
		return verify.ImageInfo{}, fmt.Errorf("docker image inspect %s: parse: %w", ref, err)
	}
	if len(images) == 0 {
		return verify.ImageInfo{}, fmt.Errorf("docker image inspect %s: empty result", ref)
	}

	img := images[0]
	return verify.ImageInfo{
		ID:          digest.Digest(img.ID),
		RepoDigests: img.RepoDigests,
		SizeBytes:   img.Size,
		Platform: ocispec.Platform{
			Architecture: img.Architecture,
			OS:           img.Os,
			Variant:      img.Variant,
		},
	}, nil
}

// Probe runs argv inside a throwaway container from ref and returns the
// combined output. The entrypoint is overridden so distroless images with
// fixed entrypoints still answer.
func (d *Docker) Probe(ctx context.Context, ref string, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("probe %s: empty command", ref)
	}

	args := []string{"run", "--rm", "--entrypoint", argv[0], ref}
	args = append(args, argv[1:]...)

	if d.Verbose {
		fmt.Fprintf(d.stderr(), "exec: docker %s\n", strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, "docker", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("docker run %s: %w", ref, err)
	}
	return string(out), nil
}

func (d *Docker) stderr() io.Writer {
	if d.Stderr != nil {
		return d.Stderr
	}
	return os.Stderr
}
