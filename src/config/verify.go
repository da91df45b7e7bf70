package config

// VerifyConfig controls the verification engine.
type VerifyConfig struct {
	// ProbeTimeout is the default version-probe limit in seconds.
	// Entries may override it per target.
	ProbeTimeout int `yaml:"probe_timeout" env:"PROBE_TIMEOUT"`

	// SecretScan toggles the build-context secret scan.
	SecretScan bool `yaml:"secret_scan" env:"SECRET_SCAN"`
}

// DefaultVerifyConfig returns verification defaults.
func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{
		ProbeTimeout: 30,
		SecretScan:   true,
	}
}
