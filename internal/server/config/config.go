// Package config loads the syncspace server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/syncspace/internal/server/jobs"
)

// Config is the top-level server.yml configuration
type Config struct {
	Addr      string          `yaml:"addr"`
	DBPath    string          `yaml:"db_path"`
	JWTSecret string          `yaml:"jwt_secret"`
	RedisAddr string          `yaml:"redis_addr,omitempty"` // пусто: уведомления внутри процесса
	LogLevel  string          `yaml:"log_level"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Merge     MergeConfig     `yaml:"merge"`
	TokenTTL  time.Duration   `yaml:"token_ttl"`
}

// RateLimitConfig configures the per-client request limiter
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// MergeConfig configures the update merge job
type MergeConfig struct {
	Interval     time.Duration `yaml:"interval"`
	CutoffWindow time.Duration `yaml:"cutoff_window"`
	MergeWindow  time.Duration `yaml:"merge_window"`
	BatchSize    int           `yaml:"batch_size"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	merge := jobs.DefaultConfig()
	return Config{
		Addr:     ":8080",
		DBPath:   "syncspace.db",
		LogLevel: "info",
		TokenTTL: 24 * time.Hour,
		RateLimit: RateLimitConfig{
			Requests: 100,
			Window:   time.Minute,
		},
		Merge: MergeConfig{
			Interval:     merge.Interval,
			CutoffWindow: merge.CutoffWindow,
			MergeWindow:  merge.MergeWindow,
			BatchSize:    merge.BatchSize,
		},
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

// Validate checks the fields the server cannot start without
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr is required")
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("jwt_secret must be at least 16 bytes")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token_ttl must be positive, got %s", c.TokenTTL)
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate_limit requests and window must be positive")
	}
	if c.Merge.Interval <= 0 || c.Merge.BatchSize <= 0 {
		return errors.New("merge interval and batch_size must be positive")
	}
	// Окно склейки не может быть больше окна отсечки
	if c.Merge.MergeWindow > c.Merge.CutoffWindow {
		return fmt.Errorf("merge_window (%s) exceeds cutoff_window (%s)", c.Merge.MergeWindow, c.Merge.CutoffWindow)
	}
	return nil
}

// JobConfig converts the merge section into the job configuration
func (c Config) JobConfig() jobs.Config {
	return jobs.Config{
		Interval:     c.Merge.Interval,
		CutoffWindow: c.Merge.CutoffWindow,
		MergeWindow:  c.Merge.MergeWindow,
		BatchSize:    c.Merge.BatchSize,
	}
}
