package storage

import (
	"context"
	"time"
)

// AuthStorage stores the credentials of the replica's account
type AuthStorage interface {
	// SaveAuth stores authentication data
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves stored authentication data
	// Returns ErrAuthNotFound if no auth data exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes stored authentication data (logout)
	DeleteAuth(ctx context.Context) error

	// IsAuthenticated checks if valid authentication exists (not expired)
	IsAuthenticated(ctx context.Context) (bool, error)
}

// AuthData represents the account a replica is bound to
type AuthData struct {
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	ServerURL   string    `json:"server_url"`
	AccessToken string    `json:"access_token"`
}
