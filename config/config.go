// Package config loads dbserver configuration from defaults, an optional
// YAML file, environment variables, and command-line flags, in ascending
// precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// ConfigFileName is the default config file looked up in the working directory.
const ConfigFileName = "dbserver.yaml"

// EnvPrefix namespaces the environment variables read by Load.
// MCPDB_DATABASE_PATH maps to database_path, and so on.
const EnvPrefix = "MCPDB_"

// Config holds every tunable of the server.
type Config struct {
	DatabasePath string `koanf:"database_path"`

	PoolSize       int           `koanf:"pool_size"`
	MaxOverflow    int           `koanf:"max_overflow"`
	AcquireTimeout time.Duration `koanf:"acquire_timeout"`

	MaxQueryLength  int `koanf:"max_query_length"`
	DefaultRowLimit int `koanf:"default_row_limit"`
	MaxRowLimit     int `koanf:"max_row_limit"`

	LogLevel string `koanf:"log_level"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"database_path":     "ecommerce.db",
		"pool_size":         5,
		"max_overflow":      10,
		"acquire_timeout":   "5s",
		"max_query_length":  10000,
		"default_row_limit": 100,
		"max_row_limit":     1000,
		"log_level":         "info",
	}
}

// Load builds the effective configuration. cfgFile overrides the default
// config file lookup; flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile == "" {
		if _, err := os.Stat(ConfigFileName); err == nil {
			cfgFile = ConfigFileName
		}
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path must not be empty")
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1, got %d", c.PoolSize)
	}
	if c.MaxOverflow < 0 {
		return fmt.Errorf("max_overflow must not be negative, got %d", c.MaxOverflow)
	}
	if c.AcquireTimeout <= 0 {
		return fmt.Errorf("acquire_timeout must be positive, got %s", c.AcquireTimeout)
	}
	if c.DefaultRowLimit < 1 || c.MaxRowLimit < c.DefaultRowLimit {
		return fmt.Errorf("row limits must satisfy 1 <= default_row_limit <= max_row_limit")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	return nil
}
