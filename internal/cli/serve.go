package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/chatkeep/chatkeep/internal/config"
	"github.com/chatkeep/chatkeep/internal/tracing"
	"github.com/chatkeep/chatkeep/pkg/bridge"
	"github.com/chatkeep/chatkeep/pkg/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session store bridge for a host UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		lg, err := setupLogger(cfg, true)
		if err != nil {
			return err
		}
		defer lg.Close()

		if err := tracing.Init("chatkeep"); err != nil {
			log.Warn().Err(err).Msg("Tracing disabled")
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracing.Shutdown(ctx)
		}()

		st, dirs := openStore(cfg)
		if closer, ok := st.(interface{ Close() error }); ok {
			defer closer.Close()
		}

		server, err := bridge.NewServer(bridge.Config{
			Port:         cfg.Bridge.Port,
			SharedSecret: cfg.Bridge.SharedSecret,
			Store:        st,
			Logger:       lg.GetZerolog(),
		})
		if err != nil {
			return err
		}

		retention := store.NewRetention(st, time.Duration(cfg.Store.RetentionDays)*24*time.Hour)
		if err := retention.Start(); err != nil {
			return err
		}
		defer retention.Stop()

		// External edits to session files surface to clients as a single
		// debounced store.changed event.
		if cfg.Store.Watch && cfg.Store.Backend == config.BackendFile {
			watcher, err := store.NewWatcher(lg.GetZerolog(), func() {
				server.Broadcaster().Broadcast("store.changed", nil)
			})
			if err != nil {
				log.Warn().Err(err).Msg("Store watcher unavailable")
			} else {
				defer watcher.Stop()
				if root, err := dirs.StorageRoot(); err == nil {
					chatsDir := filepath.Join(root, "chats")
					if err := os.MkdirAll(chatsDir, 0o755); err == nil {
						if err := watcher.Watch(chatsDir); err != nil {
							log.Warn().Err(err).Msg("Failed to watch chats directory")
						}
					}
				}
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
