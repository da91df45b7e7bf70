package config

// DockerConfig holds settings for the docker backend.
type DockerConfig struct {
	// Repository is the tag prefix for built images
	// (e.g. "ghcr.io/acme" tags gopls as ghcr.io/acme/gopls:<version>).
	// Empty tags images by bare entry name.
	Repository string `yaml:"repository" env:"REPOSITORY"`

	// Platforms is the default platform list for entries that don't
	// declare their own.
	Platforms []string `yaml:"platforms" env:"PLATFORMS"`
}

// DefaultDockerConfig returns docker backend defaults.
func DefaultDockerConfig() DockerConfig {
	return DockerConfig{}
}
