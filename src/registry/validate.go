package registry

import (
	"fmt"
	"strings"
)

// ValidationError reports every problem found in a registry document.
// Problems are collected across all entries so an author can fix a
// broken registry in one pass.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("registry: %d problem(s): %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// validate checks structural invariants of the entry set. All problems
// are collected and returned together as a *ValidationError.
func (r *Registry) validate() error {
	var errs []string

	for _, e := range r.entries {
		epath := fmt.Sprintf("entry %q", e.Name)

		if e.Kind == "" {
			errs = append(errs, fmt.Sprintf("%s: kind is required", epath))
		} else if _, known := KindFromString(string(e.Kind)); !known {
			errs = append(errs, fmt.Sprintf("%s: unknown kind %q (supported: %s)", epath, e.Kind, knownKinds()))
		}

		if e.Version == "" {
			errs = append(errs, fmt.Sprintf("%s: version is required", epath))
		}

		if e.Strategy == "" {
			errs = append(errs, fmt.Sprintf("%s: strategy is required", epath))
		} else if _, known := StrategyFromString(string(e.Strategy)); !known {
			errs = append(errs, fmt.Sprintf("%s: unknown strategy %q (supported: %s)", epath, e.Strategy, knownStrategies()))
		}

		if e.SizeBudget < 0 {
			errs = append(errs, fmt.Sprintf("%s: size_budget must not be negative, got %d", epath, e.SizeBudget))
		}

		if e.ProbeTimeout < 0 {
			errs = append(errs, fmt.Sprintf("%s: probe_timeout must not be negative, got %d", epath, e.ProbeTimeout))
		}

		if e.Ecosystem != "" && e.Ecosystem != EcosystemNpm && e.Ecosystem != EcosystemPyPI {
			errs = append(errs, fmt.Sprintf("%s: unknown ecosystem %q (supported: %s, %s)", epath, e.Ecosystem, EcosystemNpm, EcosystemPyPI))
		}

		if e.Repo != "" && !strings.Contains(e.Repo, "/") {
			errs = append(errs, fmt.Sprintf("%s: repo %q must be owner/name", epath, e.Repo))
		}

		// Resolution coordinates are only needed when the version has to
		// be resolved. Pinned entries may omit them.
		if e.Version == VersionLatest && e.Kind != "" && !e.HasResolutionSource() {
			errs = append(errs, fmt.Sprintf("%s: version %q needs %s", epath, VersionLatest, requiredSource(e.Kind)))
		}

		for i, p := range e.Platforms {
			if strings.TrimSpace(p) == "" {
				errs = append(errs, fmt.Sprintf("%s: platforms[%d] is empty", epath, i))
			}
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Problems: errs}
	}
	return nil
}

func requiredSource(k Kind) string {
	switch k {
	case KindModuleInstall:
		return "module (or command)"
	case KindArchiveDownload:
		return "repo (or command)"
	case KindPackageManagerInstall:
		return "ecosystem and package (or command)"
	default:
		return "a resolution source"
	}
}

func knownKinds() string {
	return strings.Join([]string{
		string(KindModuleInstall),
		string(KindArchiveDownload),
		string(KindPackageManagerInstall),
	}, ", ")
}

func knownStrategies() string {
	return strings.Join([]string{
		string(StrategyMultiStageStatic),
		string(StrategyMultiStageDynamicLibc),
		string(StrategyRuntimePrune),
	}, ", ")
}
