package config

// ResolveConfig holds the version resolution endpoints. Overridable for
// mirrors and tests.
type ResolveConfig struct {
	// Timeout is the HTTP timeout in seconds for resolution queries.
	Timeout int `yaml:"timeout" env:"TIMEOUT"`

	Npm           string `yaml:"npm" env:"NPM"`
	PyPI          string `yaml:"pypi" env:"PYPI"`
	Forge         string `yaml:"forge" env:"FORGE"`
	ForgeTokenEnv string `yaml:"forge_token_env" env:"FORGE_TOKEN_ENV"`
	GoProxy       string `yaml:"goproxy" env:"GOPROXY"`
}

// DefaultResolveConfig returns the public resolution endpoints.
func DefaultResolveConfig() ResolveConfig {
	return ResolveConfig{
		Timeout:       20,
		Npm:           "https://registry.npmjs.org",
		PyPI:          "https://pypi.org",
		Forge:         "https://api.github.com",
		ForgeTokenEnv: "GITHUB_TOKEN",
		GoProxy:       "https://proxy.golang.org",
	}
}
