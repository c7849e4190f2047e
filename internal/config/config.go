package config

import (
	"fmt"
)

// Backend names accepted by the store configuration.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config represents the main chatkeep configuration
type Config struct {
	// Data directory; session storage and logs live under it
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Store configuration
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Bridge configuration
	Bridge BridgeConfig `json:"bridge" mapstructure:"bridge"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// StoreConfig holds session store configuration
type StoreConfig struct {
	// Backend selects the persistence engine: file or sqlite
	Backend string `json:"backend" mapstructure:"backend"`
	// Dir overrides the platform data directory when set
	Dir string `json:"dir" mapstructure:"dir"`
	// RetentionDays deletes sessions older than this many days; 0 disables
	RetentionDays int `json:"retention_days" mapstructure:"retention_days"`
	// Watch enables filesystem change notifications to bridge clients
	Watch bool `json:"watch" mapstructure:"watch"`
}

// BridgeConfig holds the host bridge configuration
type BridgeConfig struct {
	Port int `json:"port" mapstructure:"port"`
	// SharedSecret enables challenge-response auth when non-empty
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendFile,
			Watch:   true,
		},
		Bridge: BridgeConfig{
			Port: 8175,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("unknown store backend: %q", c.Store.Backend)
	}

	if c.Store.RetentionDays < 0 {
		return fmt.Errorf("retention_days cannot be negative")
	}

	if c.Bridge.Port <= 0 || c.Bridge.Port > 65535 {
		return fmt.Errorf("invalid bridge port: %d", c.Bridge.Port)
	}

	return nil
}
