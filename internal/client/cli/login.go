package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/syncspace/internal/client/storage"
)

var (
	// ErrNotLoggedIn реплика не привязана к аккаунту
	ErrNotLoggedIn = errors.New("not logged in, run 'syncspace-client login' first")
	// ErrAccountMismatch реплика уже принадлежит другому аккаунту
	ErrAccountMismatch = errors.New("replica belongs to another account")
)

// LoginInput параметры привязки реплики к аккаунту. UserID и WorkspaceID
// можно не задавать, если они есть в токене.
type LoginInput struct {
	ServerURL   string
	Token       string
	UserID      string
	WorkspaceID string
}

// tokenClaims claims токена, выданного сервером
type tokenClaims struct {
	UserID      string `json:"user_id"`
	WorkspaceID string `json:"workspace_id"`
	jwt.RegisteredClaims
}

// Login binds the replica to an account. The token signature is checked by
// the server on every request, so only its claims are read here.
func Login(ctx context.Context, store storage.AuthStorage, in LoginInput) (*storage.AuthData, error) {
	if in.ServerURL == "" {
		return nil, errors.New("server url is required")
	}
	if in.Token == "" {
		return nil, errors.New("token is required")
	}

	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(in.Token, claims); err != nil {
		return nil, fmt.Errorf("malformed token: %w", err)
	}

	userID, err := pick("user", in.UserID, claims.UserID)
	if err != nil {
		return nil, err
	}
	workspaceID, err := pick("workspace", in.WorkspaceID, claims.WorkspaceID)
	if err != nil {
		return nil, err
	}

	auth := &storage.AuthData{
		ServerURL:   in.ServerURL,
		AccessToken: in.Token,
		UserID:      userID,
		WorkspaceID: workspaceID,
	}
	if claims.ExpiresAt != nil {
		auth.ExpiresAt = claims.ExpiresAt.Time
		if time.Now().After(auth.ExpiresAt) {
			return nil, fmt.Errorf("token expired at %s", auth.ExpiresAt.Format(time.RFC3339))
		}
	}

	// Локальные данные реплики относятся к одному аккаунту; повторный вход
	// допускается только под тем же пользователем
	current, err := store.GetAuth(ctx)
	switch {
	case err == nil:
		if current.UserID != userID || current.WorkspaceID != workspaceID {
			return nil, fmt.Errorf("%w: %s in %s", ErrAccountMismatch, current.UserID, current.WorkspaceID)
		}
	case errors.Is(err, storage.ErrAuthNotFound):
	default:
		return nil, fmt.Errorf("failed to read auth data: %w", err)
	}

	if err := store.SaveAuth(ctx, auth); err != nil {
		return nil, fmt.Errorf("failed to save auth data: %w", err)
	}
	return auth, nil
}

// Logout removes the stored credentials. Replica data is kept so the same
// account can log in again without a full resync.
func Logout(ctx context.Context, store storage.AuthStorage) error {
	if err := store.DeleteAuth(ctx); err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return ErrNotLoggedIn
		}
		return fmt.Errorf("failed to delete auth data: %w", err)
	}
	return nil
}

// pick выбирает явно заданное значение или значение из токена
func pick(what, given, fromToken string) (string, error) {
	switch {
	case given == "" && fromToken == "":
		return "", fmt.Errorf("%s id is required: token has none", what)
	case given == "":
		return fromToken, nil
	case fromToken != "" && given != fromToken:
		return "", fmt.Errorf("token is issued for %s %s, not %s", what, fromToken, given)
	default:
		return given, nil
	}
}
