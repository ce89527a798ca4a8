package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

// Prefix is prepended to every environment variable, e.g. SEMBOOT_PATH.
const Prefix = "SEMBOOT"

// Config holds the semdemo defaults. Command-line flags override it.
//
// Fields are named rather than tagged: envconfig falls back to the bare tag
// name when the prefixed variable is unset, and a bare PATH would be wrong.
type Config struct {
	// Path and Proj derive the shared key, as ftok(3) does.
	Path string `default:"/tmp"`
	Proj string `default:"J"`

	NSems        int           `default:"1"`
	InitialValue int           `split_words:"true" default:"1"`
	PollInterval time.Duration `split_words:"true" default:"1s"`
	MaxAttempts  int           `split_words:"true" default:"10"`

	LogLevel string `split_words:"true" default:"info"`
	LogDev   bool   `split_words:"true" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Path:         "/tmp",
		Proj:         "J",
		NSems:        1,
		InitialValue: 1,
		PollInterval: time.Second,
		MaxAttempts:  10,
		LogLevel:     "info",
	}
}

// Validate checks the values a flag or variable could have broken.
func (c *Config) Validate() error {
	if len(c.Proj) != 1 || c.Proj[0] == 0 {
		return fmt.Errorf("project id must be a single non-zero byte, got %q", c.Proj)
	}
	if c.NSems < 1 {
		return fmt.Errorf("semaphore count must be positive, got %d", c.NSems)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// ProjID returns the project byte.
func (c *Config) ProjID() byte {
	return c.Proj[0]
}
