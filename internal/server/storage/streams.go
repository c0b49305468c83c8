package storage

import (
	"context"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/pkg/api"
)

// PullQuery describes one stream page request
type PullQuery struct {
	Stream      models.Stream
	WorkspaceID string
	UserID      string
	RootID      string
	Cursor      int64
	Limit       int
}

// StreamStorage defines read access to the replication streams
type StreamStorage interface {
	// Pull returns up to Limit items with position > Cursor ordered by position,
	// and whether more items are available immediately
	Pull(ctx context.Context, q PullQuery) ([]api.StreamItem, bool, error)

	// GetCollaboration returns the user's collaboration on a root
	// Returns ErrForbidden if it doesn't exist or was revoked
	GetCollaboration(ctx context.Context, rootID, userID string) (*models.Collaboration, error)
}
