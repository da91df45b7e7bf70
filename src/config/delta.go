package config

// DeltaConfig controls changed-target selection (--since).
type DeltaConfig struct {
	// GlobalTriggers are path prefixes that force a full rebuild when
	// any of them changed: edits to the registry or shared tooling can
	// affect every image.
	GlobalTriggers []string `yaml:"global_triggers" env:"GLOBAL_TRIGGERS"`
}

// DefaultDeltaConfig returns delta selection defaults.
func DefaultDeltaConfig() DeltaConfig {
	return DeltaConfig{
		GlobalTriggers: []string{"registry.toml", "scripts/", ".github/workflows/"},
	}
}
