package config

import (
	"fmt"
	"strings"
)

// Validate checks structural invariants of a loaded Config.
// Returns warnings (soft issues) and a hard error if the config is invalid.
func Validate(cfg *Config) (warnings []string, err error) {
	var errs []string

	if cfg.Registry.Path == "" {
		errs = append(errs, "registry.path is required")
	}

	if cfg.Build.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("build.concurrency must be at least 1, got %d", cfg.Build.Concurrency))
	}
	if cfg.Build.Timeout < 1 {
		errs = append(errs, fmt.Sprintf("build.timeout must be at least 1 second, got %d", cfg.Build.Timeout))
	}
	if cfg.Build.LogTail < 0 {
		errs = append(errs, fmt.Sprintf("build.log_tail must not be negative, got %d", cfg.Build.LogTail))
	}

	if cfg.Verify.ProbeTimeout < 1 {
		errs = append(errs, fmt.Sprintf("verify.probe_timeout must be at least 1 second, got %d", cfg.Verify.ProbeTimeout))
	}

	if cfg.Resolve.Timeout < 1 {
		errs = append(errs, fmt.Sprintf("resolve.timeout must be at least 1 second, got %d", cfg.Resolve.Timeout))
	}
	for _, pair := range []struct{ name, url string }{
		{"resolve.npm", cfg.Resolve.Npm},
		{"resolve.pypi", cfg.Resolve.PyPI},
		{"resolve.forge", cfg.Resolve.Forge},
		{"resolve.goproxy", cfg.Resolve.GoProxy},
	} {
		if pair.url == "" {
			errs = append(errs, fmt.Sprintf("%s endpoint must not be empty", pair.name))
		}
	}

	if strings.HasSuffix(cfg.Docker.Repository, "/") {
		warnings = append(warnings, fmt.Sprintf("docker.repository %q has a trailing slash; it is added automatically", cfg.Docker.Repository))
	}

	if len(errs) > 0 {
		return warnings, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return warnings, nil
}
