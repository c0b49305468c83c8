package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/config"
	"github.com/iudanet/syncspace/pkg/api"
)

func setupTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	cfg := config.Default()
	cfg.DBPath = ":memory:"
	cfg.JWTSecret = "test-secret-0123456789"

	srv, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), "test")
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})

	return srv, ts
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DBPath = ":memory:"

	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), "test")
	assert.Error(t, err, "missing jwt secret must be rejected")
}

func TestServer_PublicRoutes(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metrics, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}

func TestServer_ProtectedRoutesRequireToken(t *testing.T) {
	_, ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/sync/users")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_IssueTokenAndPull(t *testing.T) {
	srv, ts := setupTestServer(t)
	ctx := context.Background()

	token, err := srv.IssueToken(ctx, &models.WorkspaceUser{
		ID:          "user-1",
		WorkspaceID: "ws-1",
		Name:        "Alice",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "ws-1", token.WorkspaceID)
	assert.Equal(t, int64(86400), token.ExpiresIn)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/sync/users?cursor=0", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var pull api.PullResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pull))
	require.Len(t, pull.Items, 1)
	assert.False(t, pull.HasMore)
	assert.Equal(t, pull.Items[0].Position, pull.Cursor)

	var user models.WorkspaceUser
	require.NoError(t, json.Unmarshal(pull.Items[0].Data, &user))
	assert.Equal(t, "user-1", user.ID)
	assert.Equal(t, models.RoleCollaborator, user.Role)
}

func TestIssueToken_RequiresIdentity(t *testing.T) {
	srv, _ := setupTestServer(t)

	_, err := srv.IssueToken(context.Background(), &models.WorkspaceUser{ID: "user-1"})
	assert.Error(t, err)
}
