package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/syncspace/internal/client/cli"
	"github.com/iudanet/syncspace/internal/client/config"
	"github.com/iudanet/syncspace/internal/client/workspace"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "syncspace-client",
	Short: "SyncSpace client - local-first replica of a workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command. It is called once by main.main().
func Execute() error {
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	return rootCmd.ExecuteContext(context.Background())
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to client.yml")
	rootCmd.PersistentFlags().String("db", "", "path to the local replica (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
}

// loadConfig читает конфигурацию и применяет явно заданные флаги поверх файла
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.DBPath, _ = flags.GetString("db")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("server") {
		cfg.ServerURL, _ = flags.GetString("server")
	}
	// Токен можно передать через окружение, чтобы не держать его в файле
	if token := os.Getenv("SYNCSPACE_TOKEN"); token != "" {
		cfg.Token = token
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// withReplica открывает реплику, выполняет fn и закрывает реплику
func withReplica(cmd *cobra.Command, fn func(*cli.Cli, *workspace.Service) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	service, err := workspace.Open(cmd.Context(), cfg.DBPath, cfg.WorkspaceConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to open replica %s: %w", cfg.DBPath, err)
	}

	runErr := fn(cli.New(cmd.OutOrStdout(), service), service)
	if err := service.Close(); err != nil {
		logger.Error("Failed to close replica", "error", err)
	}
	return runErr
}

// newLogger создает JSON логгер с заданным уровнем
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
