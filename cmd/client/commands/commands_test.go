package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-01-02")

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "SyncSpace Client")
	assert.Contains(t, out, "Version:    1.2.3")
	assert.Contains(t, out, "Git Commit: abc123")
}

func TestLoginStatusLogout(t *testing.T) {
	db := filepath.Join(t.TempDir(), "replica.db")

	claims := jwt.MapClaims{
		"user_id":      "user-1",
		"workspace_id": "ws-1",
		"exp":          time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	out, err := execute(t, "login", "--db", db, "--server", "http://127.0.0.1:1", "--token", token)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as user-1 in workspace ws-1")

	out, err = execute(t, "status", "--db", db, "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "User:      user-1")
	assert.Contains(t, out, "Pending mutations: 0")

	out, err = execute(t, "logout", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = execute(t, "status", "--db", db, "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestSendRequiresArgs(t *testing.T) {
	_, err := execute(t, "send", "root-only")
	require.Error(t, err)
}
