package cli

import (
	"github.com/chatkeep/chatkeep/internal/appdir"
	"github.com/chatkeep/chatkeep/internal/config"
	"github.com/chatkeep/chatkeep/internal/logger"
	"github.com/chatkeep/chatkeep/pkg/store"
)

// loadConfig loads the configuration honoring the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// setupLogger initializes the global logger from config.
func setupLogger(cfg *config.Config, console bool) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: console && cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
}

// openStore builds the configured store backend over the configured
// directory provider.
func openStore(cfg *config.Config) (store.Store, appdir.Provider) {
	var dirs appdir.Provider = appdir.OS{}
	if cfg.Store.Dir != "" {
		dirs = appdir.Fixed(cfg.Store.Dir)
	}

	if cfg.Store.Backend == config.BackendSQLite {
		return store.NewSQLite(dirs), dirs
	}
	return store.NewFile(dirs), dirs
}
