package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/graphmind/pkg/graphmind/internalerr"
	"github.com/cognicore/graphmind/pkg/graphmind/reasoner"
)

// Config is the top-level configuration file.
type Config struct {
	Reasoner reasoner.Config `yaml:"reasoner"`
	Storage  Storage         `yaml:"storage"`
	Logging  Logging         `yaml:"logging"`
}

// Storage selects the backend.
type Storage struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`   // database file for sqlite
}

// Logging configures the zap logger.
type Logging struct {
	Level       string `yaml:"level"`       // debug, info, warn, error
	Development bool   `yaml:"development"` // console encoder, caller and stack traces
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Reasoner: reasoner.DefaultConfig(),
		Storage:  Storage{Driver: "memory"},
		Logging:  Logging{Level: "info"},
	}
}

// Load reads a YAML configuration file over the defaults and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), internalerr.ErrInvalidConfig)
	}
	if c.Reasoner.MaxIterations < 0 {
		return invalid("reasoner.max_iterations must not be negative, got %d", c.Reasoner.MaxIterations)
	}
	if c.Reasoner.Parallelism < 0 {
		return invalid("reasoner.parallelism must not be negative, got %d", c.Reasoner.Parallelism)
	}
	if c.Reasoner.CacheSize < 0 {
		return invalid("reasoner.cache_size must not be negative, got %d", c.Reasoner.CacheSize)
	}
	if c.Reasoner.Timeout < 0 {
		return invalid("reasoner.timeout must not be negative, got %s", c.Reasoner.Timeout)
	}
	switch strings.ToLower(c.Storage.Driver) {
	case "", "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return invalid("storage.path is required for the sqlite driver")
		}
	default:
		return invalid("unknown storage driver %q", c.Storage.Driver)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return invalid("unknown log level %q", c.Logging.Level)
	}
	return nil
}
