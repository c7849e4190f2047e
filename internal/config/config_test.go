package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.True(t, cfg.Store.Watch)
	assert.Zero(t, cfg.Store.RetentionDays)
	assert.Equal(t, 8175, cfg.Bridge.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"sqlite backend", func(c *Config) { c.Store.Backend = BackendSQLite }, false},
		{"unknown backend", func(c *Config) { c.Store.Backend = "redis" }, true},
		{"negative retention", func(c *Config) { c.Store.RetentionDays = -1 }, true},
		{"zero port", func(c *Config) { c.Bridge.Port = 0 }, true},
		{"port overflow", func(c *Config) { c.Bridge.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoaderMissingFileUsesDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "absent.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, filepath.Join(cfg.DataDir, "chatkeep.log"), cfg.Logging.File)
}

func TestLoaderReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatkeep.json")
	body := `{
  "store": {"backend": "sqlite", "dir": "/data/chats", "retention_days": 30},
  "bridge": {"port": 9000, "shared_secret": "hunter2"}
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Store.Backend)
	assert.Equal(t, "/data/chats", cfg.Store.Dir)
	assert.Equal(t, 30, cfg.Store.RetentionDays)
	assert.Equal(t, 9000, cfg.Bridge.Port)
	assert.Equal(t, "hunter2", cfg.Bridge.SharedSecret)
}

func TestLoaderRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chatkeep.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"store": {"backend": "redis"}}`), 0o600))

	_, err := NewLoader(path).Load()
	assert.Error(t, err)
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chatkeep.json")
	loader := NewLoader(path)

	cfg := DefaultConfig()
	cfg.Store.RetentionDays = 7
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Store.RetentionDays)
}
