package config

import (
	"errors"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const defaultConfigFile = ".imagekiln.yml"

// Config is the top-level imagekiln configuration.
type Config struct {
	Registry RegistryConfig `yaml:"registry" envPrefix:"IMAGEKILN_REGISTRY_"`
	Docker   DockerConfig   `yaml:"docker" envPrefix:"IMAGEKILN_DOCKER_"`
	Build    BuildConfig    `yaml:"build" envPrefix:"IMAGEKILN_BUILD_"`
	Verify   VerifyConfig   `yaml:"verify" envPrefix:"IMAGEKILN_VERIFY_"`
	Resolve  ResolveConfig  `yaml:"resolve" envPrefix:"IMAGEKILN_RESOLVE_"`
	Delta    DeltaConfig    `yaml:"delta" envPrefix:"IMAGEKILN_DELTA_"`
}

// Load reads configuration from a YAML file and applies IMAGEKILN_*
// environment overrides on top. If path is empty, it tries the default
// file. Falls back to defaults if the file doesn't exist.
func Load(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigFile
	}

	cfg := defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults
	default:
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Registry: DefaultRegistryConfig(),
		Docker:   DefaultDockerConfig(),
		Build:    DefaultBuildConfig(),
		Verify:   DefaultVerifyConfig(),
		Resolve:  DefaultResolveConfig(),
		Delta:    DefaultDeltaConfig(),
	}
}
