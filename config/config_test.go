package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "ecommerce.db", cfg.DatabasePath)
	assert.Equal(t, 5, cfg.PoolSize)
	assert.Equal(t, 10, cfg.MaxOverflow)
	assert.Equal(t, 5*time.Second, cfg.AcquireTimeout)
	assert.Equal(t, 10000, cfg.MaxQueryLength)
	assert.Equal(t, 100, cfg.DefaultRowLimit)
	assert.Equal(t, 1000, cfg.MaxRowLimit)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dbserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database_path: ":memory:"
pool_size: 2
acquire_timeout: 250ms
log_level: debug
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":memory:", cfg.DatabasePath)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.Equal(t, 250*time.Millisecond, cfg.AcquireTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, 1000, cfg.MaxRowLimit)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dbserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool_size: 2\n"), 0o644))

	t.Setenv("MCPDB_POOL_SIZE", "7")
	t.Setenv("MCPDB_LOG_LEVEL", "warn")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.PoolSize)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("MCPDB_POOL_SIZE", "7")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("pool-size", 0, "")
	flags.String("database-path", "", "")
	require.NoError(t, flags.Parse([]string{"--pool-size=3", "--database-path=:memory:"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.PoolSize)
	assert.Equal(t, ":memory:", cfg.DatabasePath)
}

func TestLoadUnsetFlagsDoNotOverride(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("pool-size", 0, "")
	require.NoError(t, flags.Parse(nil))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.PoolSize)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load("/no/such/dbserver.yaml", nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			DatabasePath:    ":memory:",
			PoolSize:        5,
			MaxOverflow:     10,
			AcquireTimeout:  time.Second,
			MaxQueryLength:  10000,
			DefaultRowLimit: 100,
			MaxRowLimit:     1000,
			LogLevel:        "info",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty database path", mutate: func(c *Config) { c.DatabasePath = "" }, wantErr: true},
		{name: "zero pool", mutate: func(c *Config) { c.PoolSize = 0 }, wantErr: true},
		{name: "negative overflow", mutate: func(c *Config) { c.MaxOverflow = -1 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.AcquireTimeout = 0 }, wantErr: true},
		{name: "max below default", mutate: func(c *Config) { c.MaxRowLimit = 50 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "verbose" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
