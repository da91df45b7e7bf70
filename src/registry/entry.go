package registry

import "path/filepath"

// VersionLatest is the sentinel that requests resolution of the newest
// published version at plan time.
const VersionLatest = "latest"

// Kind classifies how an image obtains its payload binary.
type Kind string

const (
	// KindModuleInstall builds the binary from a language module path
	// (e.g. a Go module compiled inside the build stage).
	KindModuleInstall Kind = "module-install"
	// KindArchiveDownload fetches a prebuilt release archive from a
	// forge and unpacks it into the image.
	KindArchiveDownload Kind = "archive-download"
	// KindPackageManagerInstall installs the payload through a language
	// package manager (npm, pip).
	KindPackageManagerInstall Kind = "package-manager-install"
)

var kinds = map[Kind]struct{}{
	KindModuleInstall:         {},
	KindArchiveDownload:       {},
	KindPackageManagerInstall: {},
}

// KindFromString converts a string to a Kind and checks if it is known.
func KindFromString(s string) (kind Kind, known bool) {
	kind = Kind(s)
	_, known = kinds[kind]
	return kind, known
}

// Strategy selects the image assembly approach for an entry.
type Strategy string

const (
	// StrategyMultiStageStatic compiles a static binary in a builder
	// stage and copies it into a minimal final stage.
	StrategyMultiStageStatic Strategy = "multi-stage-static"
	// StrategyMultiStageDynamicLibc is the multi-stage variant for
	// binaries that link against the host libc.
	StrategyMultiStageDynamicLibc Strategy = "multi-stage-dynamic-libc"
	// StrategyRuntimePrune installs into the runtime base image and
	// prunes caches and toolchains in the final layer.
	StrategyRuntimePrune Strategy = "runtime-prune"
)

var strategies = map[Strategy]struct{}{
	StrategyMultiStageStatic:      {},
	StrategyMultiStageDynamicLibc: {},
	StrategyRuntimePrune:          {},
}

// StrategyFromString converts a string to a Strategy and checks if it is known.
func StrategyFromString(s string) (strategy Strategy, known bool) {
	strategy = Strategy(s)
	_, known = strategies[strategy]
	return strategy, known
}

// DefaultTarget returns the build stage a strategy targets when the
// entry does not name one. Runtime-prune recipes build the final stage.
func (s Strategy) DefaultTarget() string {
	switch s {
	case StrategyMultiStageStatic:
		return "static"
	case StrategyMultiStageDynamicLibc:
		return "dynamic"
	default:
		return ""
	}
}

// Package ecosystems accepted for package-manager-install entries.
const (
	EcosystemNpm  = "npm"
	EcosystemPyPI = "pypi"
)

// Entry is a single buildable target declared in registry.toml.
// The TOML table key becomes the entry name.
type Entry struct {
	Name       string   `toml:"-"`
	Kind       Kind     `toml:"kind"`
	Version    string   `toml:"version"`
	Strategy   Strategy `toml:"strategy"`
	SizeBudget int64    `toml:"size_budget"`

	// Version resolution coordinates. Which ones apply depends on Kind;
	// Command overrides the kind-derived source when set.
	Ecosystem string `toml:"ecosystem"`
	Package   string `toml:"package"`
	Module    string `toml:"module"`
	Repo      string `toml:"repo"`
	StripV    bool   `toml:"strip_v"`
	Command   string `toml:"command"`

	// Build recipe coordinates.
	Context       string            `toml:"context"`
	Containerfile string            `toml:"containerfile"`
	Target        string            `toml:"target"`
	BuildArgs     map[string]string `toml:"build_args"`
	Platforms     []string          `toml:"platforms"`

	// Verification coordinates.
	Probe        []string `toml:"probe"`
	ProbeTimeout int      `toml:"probe_timeout"`
}

// Pinned reports whether the entry declares a concrete version rather
// than the "latest" sentinel.
func (e *Entry) Pinned() bool {
	return e.Version != VersionLatest
}

// ContextDir returns the build context directory, defaulting to a
// directory named after the entry.
func (e *Entry) ContextDir() string {
	if e.Context != "" {
		return e.Context
	}
	return e.Name
}

// ContainerfilePath returns the recipe file path, defaulting to
// ContainerFile inside the context directory.
func (e *Entry) ContainerfilePath() string {
	if e.Containerfile != "" {
		return e.Containerfile
	}
	return filepath.Join(e.ContextDir(), "ContainerFile")
}

// BuildTarget returns the build stage to target, falling back to the
// strategy's default stage.
func (e *Entry) BuildTarget() string {
	if e.Target != "" {
		return e.Target
	}
	return e.Strategy.DefaultTarget()
}

// ProbeArgv returns the command run inside the image to verify the
// installed payload, defaulting to `<name> --version`.
func (e *Entry) ProbeArgv() []string {
	if len(e.Probe) > 0 {
		return e.Probe
	}
	return []string{e.Name, "--version"}
}

// HasResolutionSource reports whether the entry carries enough
// coordinates to resolve "latest" to a concrete version.
func (e *Entry) HasResolutionSource() bool {
	if e.Command != "" {
		return true
	}
	switch e.Kind {
	case KindModuleInstall:
		return e.Module != ""
	case KindArchiveDownload:
		return e.Repo != ""
	case KindPackageManagerInstall:
		return e.Ecosystem != "" && e.Package != ""
	}
	return false
}
