package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the engine's ambient configuration.
type Config struct {
	// PoolSize is the number of worker goroutines the scheduler pool runs.
	PoolSize int `yaml:"pool_size"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`

	// LogJSON selects JSON log output over console output.
	LogJSON bool `yaml:"log_json"`

	// Strict controls whether MissingContext and UnresolvedInput errors
	// panic (the spec's "may abort the process") or are returned to the
	// caller. Defaults to true; embedders that want to recover from a
	// programming error instead of crashing can set it false.
	Strict bool `yaml:"strict"`

	// ReaperInterval is how often the background liveness reaper sweeps
	// for tasks that lost their last parent and have no live handle.
	ReaperInterval time.Duration `yaml:"reaper_interval"`

	// CacheShards is the number of shards each dedup cache table (native,
	// resolve, trait) is split into.
	CacheShards int `yaml:"cache_shards"`
}

// Default returns the configuration used when the engine is embedded as a
// library with no config file: a worker per CPU, a 2-second reaper
// interval, strict error handling, and console logging at info level.
func Default() *Config {
	return &Config{
		PoolSize:       runtime.NumCPU(),
		LogLevel:       "info",
		LogJSON:        false,
		Strict:         true,
		ReaperInterval: 2 * time.Second,
		CacheShards:    64,
	}
}

// Load reads a YAML config file, filling in any field the file omits with
// Default's value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1, got %d", c.PoolSize)
	}
	if c.CacheShards < 1 {
		return fmt.Errorf("cache_shards must be at least 1, got %d", c.CacheShards)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug/info/warn/error, got %q", c.LogLevel)
	}
	return nil
}
