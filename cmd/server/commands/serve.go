package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iudanet/syncspace/internal/server/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the update merge job",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (overrides config)")
	serveCmd.Flags().String("db", "", "path to the SQLite database (overrides config)")
	serveCmd.Flags().String("redis", "", "redis address for stream notices (overrides config)")
	serveCmd.Flags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := app.New(ctx, cfg, logger, version)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error("Failed to close server", "error", err)
		}
	}()

	logger.Info("SyncSpace server starting", "version", version, "addr", cfg.Addr, "db", cfg.DBPath)

	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("SyncSpace server stopped")
	return nil
}
