// Package resolve turns the "latest" version sentinel into concrete
// versions by querying the publication source declared on a registry
// entry: the npm registry, PyPI, forge release APIs, the Go module
// proxy, or a custom command. Pinned versions never reach this package.
package resolve

import (
	"context"
	"fmt"

	"github.com/sofmeright/imagekiln/src/registry"
)

// Source names used in errors and diagnostics.
const (
	SourceNpm      = "npm"
	SourcePyPI     = "pypi"
	SourceForge    = "forge"
	SourceGoModule = "go-module"
	SourceCustom   = "custom"
)

// ResolutionError wraps a failed version lookup for one entry. It is
// attached to the entry's task; it never aborts sibling resolutions.
type ResolutionError struct {
	Entry  string
	Source string
	Err    error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s via %s: %v", e.Entry, e.Source, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Endpoints holds the service base URLs, overridable for mirrors and
// tests.
type Endpoints struct {
	Npm           string
	PyPI          string
	Forge         string
	ForgeTokenEnv string
	GoProxy       string
}

// DefaultEndpoints returns the public service endpoints.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Npm:           "https://registry.npmjs.org",
		PyPI:          "https://pypi.org",
		Forge:         "https://api.github.com",
		ForgeTokenEnv: "GITHUB_TOKEN",
		GoProxy:       "https://proxy.golang.org",
	}
}

// Service resolves latest versions against the configured endpoints.
type Service struct {
	http *httpClient
	eps  Endpoints

	// Dir is the working directory for custom resolution commands.
	Dir string
}

// NewService creates a resolver with the given endpoints and HTTP
// timeout in seconds.
func NewService(eps Endpoints, timeoutSecs int) *Service {
	return &Service{
		http: newHTTPClient(timeoutSecs),
		eps:  eps,
	}
}

// Latest resolves the newest published version for the entry. The
// source is chosen from the entry's coordinates: an explicit command
// wins, otherwise the kind decides. Failures come back as a
// *ResolutionError naming the entry and source.
func (s *Service) Latest(ctx context.Context, e *registry.Entry) (string, error) {
	source, version, err := s.dispatch(ctx, e)
	if err != nil {
		return "", &ResolutionError{Entry: e.Name, Source: source, Err: err}
	}
	if version == "" {
		return "", &ResolutionError{Entry: e.Name, Source: source, Err: fmt.Errorf("empty version")}
	}
	return version, nil
}

func (s *Service) dispatch(ctx context.Context, e *registry.Entry) (source, version string, err error) {
	switch {
	case e.Command != "":
		version, err = s.latestCustom(ctx, e.Command)
		return SourceCustom, version, err
	case e.Kind == registry.KindModuleInstall:
		version, err = s.latestGoModule(ctx, e.Module)
		return SourceGoModule, version, err
	case e.Kind == registry.KindArchiveDownload:
		version, err = s.latestRelease(ctx, e.Repo, e.StripV)
		return SourceForge, version, err
	case e.Kind == registry.KindPackageManagerInstall && e.Ecosystem == registry.EcosystemNpm:
		version, err = s.latestNpm(ctx, e.Package)
		return SourceNpm, version, err
	case e.Kind == registry.KindPackageManagerInstall && e.Ecosystem == registry.EcosystemPyPI:
		version, err = s.latestPyPI(ctx, e.Package)
		return SourcePyPI, version, err
	}
	return "none", "", fmt.Errorf("no resolution source for kind %q", e.Kind)
}
