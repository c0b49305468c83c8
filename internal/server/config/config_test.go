package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 60*time.Second, cfg.Merge.Interval)
	assert.Equal(t, 600*time.Second, cfg.Merge.CutoffWindow)
	assert.Equal(t, 30*time.Second, cfg.Merge.MergeWindow)
	assert.Equal(t, 500, cfg.Merge.BatchSize)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yml")
	content := `
addr: ":9090"
db_path: /var/lib/syncspace/server.db
jwt_secret: 0123456789abcdef0123
redis_addr: localhost:6379
token_ttl: 2h
rate_limit:
  requests: 10
  window: 1s
merge:
  merge_window: 15s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.RateLimit.Requests)
	assert.Equal(t, time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 15*time.Second, cfg.Merge.MergeWindow)
	// Не заданные в файле поля остаются по умолчанию
	assert.Equal(t, 600*time.Second, cfg.Merge.CutoffWindow)
	assert.NoError(t, cfg.Validate())

	jobCfg := cfg.JobConfig()
	assert.Equal(t, 15*time.Second, jobCfg.MergeWindow)
	assert.Equal(t, 500, jobCfg.BatchSize)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("addr: [unclosed"), 0o600))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.JWTSecret = "0123456789abcdef"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "short secret", mutate: func(c *Config) { c.JWTSecret = "short" }, wantErr: true},
		{name: "empty addr", mutate: func(c *Config) { c.Addr = "" }, wantErr: true},
		{name: "empty db path", mutate: func(c *Config) { c.DBPath = "" }, wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.TokenTTL = 0 }, wantErr: true},
		{name: "zero rate", mutate: func(c *Config) { c.RateLimit.Requests = 0 }, wantErr: true},
		{name: "zero batch", mutate: func(c *Config) { c.Merge.BatchSize = 0 }, wantErr: true},
		{
			name:    "merge window above cutoff",
			mutate:  func(c *Config) { c.Merge.MergeWindow = c.Merge.CutoffWindow + time.Second },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
