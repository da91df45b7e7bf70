package config

// RegistryConfig locates the target registry document.
type RegistryConfig struct {
	// Path is the registry file.
	Path string `yaml:"path" env:"PATH"`

	// Overlays are applied over the base registry in order. Overlay
	// entries may replace same-name entries (kind preserved) or add
	// new ones.
	Overlays []string `yaml:"overlays" env:"OVERLAYS"`
}

// DefaultRegistryConfig returns registry location defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		Path: "registry.toml",
	}
}
