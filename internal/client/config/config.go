// Package config loads the syncspace client configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/syncspace/internal/client/mutation"
	clientsync "github.com/iudanet/syncspace/internal/client/sync"
	"github.com/iudanet/syncspace/internal/client/workspace"
	"github.com/iudanet/syncspace/pkg/api"
)

// Config is the client.yml configuration
type Config struct {
	ServerURL      string        `yaml:"server_url"`
	DBPath         string        `yaml:"db_path"`
	Token          string        `yaml:"token,omitempty"` // используется командой login
	UserID         string        `yaml:"user_id,omitempty"`
	WorkspaceID    string        `yaml:"workspace_id,omitempty"`
	LogLevel       string        `yaml:"log_level"`
	RetryLimit     int           `yaml:"retry_limit"`
	FlushBatchSize int           `yaml:"flush_batch_size"`
	FlushLimit     int           `yaml:"flush_limit"`
	SyncBatchSize  int           `yaml:"sync_batch_size"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	queue := mutation.DefaultConfig()
	sync := clientsync.DefaultConfig()
	return Config{
		ServerURL:      "http://localhost:8080",
		DBPath:         "syncspace-client.db",
		LogLevel:       "info",
		RetryLimit:     queue.RetryLimit,
		FlushBatchSize: queue.BatchSize,
		FlushLimit:     queue.FlushLimit,
		SyncBatchSize:  sync.BatchSize,
		PollInterval:   sync.PollInterval,
		MaxBackoff:     sync.MaxBackoff,
	}
}

// Load reads path on top of Default(). An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the replica settings
func (c Config) Validate() error {
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.RetryLimit <= 0 {
		return fmt.Errorf("retry_limit must be positive, got %d", c.RetryLimit)
	}
	if c.FlushBatchSize <= 0 || c.FlushLimit < c.FlushBatchSize {
		return fmt.Errorf("flush_limit (%d) must be at least flush_batch_size (%d) > 0", c.FlushLimit, c.FlushBatchSize)
	}
	// Сервер отвечает 413 на пачку больше MaxMutationBatch
	if c.FlushBatchSize > api.MaxMutationBatch {
		return fmt.Errorf("flush_batch_size must not exceed %d, got %d", api.MaxMutationBatch, c.FlushBatchSize)
	}
	if c.SyncBatchSize <= 0 {
		return fmt.Errorf("sync_batch_size must be positive, got %d", c.SyncBatchSize)
	}
	if c.PollInterval <= 0 || c.MaxBackoff <= 0 {
		return errors.New("poll_interval and max_backoff must be positive")
	}
	return nil
}

// WorkspaceConfig converts the file settings into the replica configuration
func (c Config) WorkspaceConfig() workspace.Config {
	queue := mutation.DefaultConfig()
	queue.RetryLimit = c.RetryLimit
	queue.BatchSize = c.FlushBatchSize
	queue.FlushLimit = c.FlushLimit
	queue.MaxBackoff = c.MaxBackoff

	return workspace.Config{
		UserID:      c.UserID,
		WorkspaceID: c.WorkspaceID,
		Queue:       queue,
		Sync: clientsync.Config{
			BatchSize:    c.SyncBatchSize,
			PollInterval: c.PollInterval,
			MaxBackoff:   c.MaxBackoff,
		},
	}
}
