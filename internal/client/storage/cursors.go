package storage

import (
	"context"

	"github.com/iudanet/syncspace/internal/models"
)

// CursorStorage persists synchronizer cursors keyed by stream key
type CursorStorage interface {
	// GetCursor returns the last applied position, 0 if the stream was never pulled
	GetCursor(ctx context.Context, streamKey string) (int64, error)

	// SaveCursor persists the position of a stream
	SaveCursor(ctx context.Context, streamKey string, position int64) error

	// DeleteCursor removes the cursor of a stream
	DeleteCursor(ctx context.Context, streamKey string) error

	// ListCursors returns all cursors ordered by stream key
	ListCursors(ctx context.Context) ([]models.SyncCursor, error)
}
