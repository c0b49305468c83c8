package app

import (
	"context"
	"fmt"
	"time"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/handlers"
	"github.com/iudanet/syncspace/internal/server/storage"
	"github.com/iudanet/syncspace/pkg/api"
)

// IssueToken registers the user in the workspace and mints an access token
// for it. Login flows live outside the server, so this is how development
// replicas obtain credentials.
func IssueToken(ctx context.Context, users storage.WorkspaceStorage, jwtConfig handlers.JWTConfig, user *models.WorkspaceUser) (*api.TokenResponse, error) {
	if user.ID == "" || user.WorkspaceID == "" {
		return nil, fmt.Errorf("user id and workspace id are required")
	}
	if user.Role == "" {
		user.Role = models.RoleCollaborator
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if err := users.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	token, expiresIn, err := handlers.GenerateAccessToken(jwtConfig, user.ID, user.WorkspaceID)
	if err != nil {
		return nil, err
	}

	return &api.TokenResponse{
		AccessToken: token,
		UserID:      user.ID,
		WorkspaceID: user.WorkspaceID,
		ExpiresIn:   expiresIn,
	}, nil
}

// IssueToken mints a token using the server's storage and JWT settings
func (s *Server) IssueToken(ctx context.Context, user *models.WorkspaceUser) (*api.TokenResponse, error) {
	return IssueToken(ctx, s.store, s.jwtConfig, user)
}
