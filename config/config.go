// Package config loads the server configuration from a TOML file, falling
// back to defaults when the file or individual fields are absent. The model
// identifier is intentionally not configurable here.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config holds the process configuration
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `toml:"listen"`
	// CacheDir overrides the hub download cache directory; empty uses the
	// hub client's default.
	CacheDir string `toml:"cache_dir"`
	// SessionTTLMinutes is how long an idle UI session is kept.
	SessionTTLMinutes int `toml:"session_ttl_minutes"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Listen:            ":8080",
		SessionTTLMinutes: 60,
		LogLevel:          "info",
	}
}

// Load reads the config file at path. A missing file yields the defaults;
// fields the file does not set keep their default values.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address must not be empty")
	}
	if c.SessionTTLMinutes <= 0 {
		return fmt.Errorf("session ttl must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}
