package config

// BuildConfig controls the build executor.
type BuildConfig struct {
	// Concurrency bounds how many image builds run at once.
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`

	// Timeout is the per-build wall-clock limit in seconds.
	Timeout int `yaml:"timeout" env:"TIMEOUT"`

	// LogTail caps how many bytes of backend output are kept per build.
	LogTail int `yaml:"log_tail" env:"LOG_TAIL"`
}

// DefaultBuildConfig returns build executor defaults.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		Concurrency: 4,
		Timeout:     1800,
		LogTail:     4096,
	}
}
