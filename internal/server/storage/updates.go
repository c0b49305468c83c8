package storage

import (
	"context"
	"time"

	"github.com/iudanet/syncspace/internal/models"
)

// UpdateLogStorage defines access to the append-only update logs used by the merge job
type UpdateLogStorage interface {
	// AppendUpdate appends a fragment and assigns it the next revision
	AppendUpdate(ctx context.Context, kind models.UpdateKind, fragment *models.UpdateFragment) error

	// ListUpdates returns all fragments of an entity ordered by revision
	ListUpdates(ctx context.Context, kind models.UpdateKind, entityID string) ([]*models.UpdateFragment, error)

	// ListUpdatesForMerge returns up to limit fragments with revision > afterRevision
	// created before createdBefore, ordered by revision
	ListUpdatesForMerge(ctx context.Context, kind models.UpdateKind, afterRevision int64, createdBefore time.Time, limit int) ([]*models.UpdateFragment, error)

	// GetPrecedingUpdate returns the latest fragment of the entity with revision < beforeRevision
	// created at or after notBefore. Returns ErrFragmentNotFound if there is none
	GetPrecedingUpdate(ctx context.Context, kind models.UpdateKind, entityID string, beforeRevision int64, notBefore time.Time) (*models.UpdateFragment, error)

	// MergeUpdates replaces survivor data and audit list and deletes the merged fragments
	// in one transaction. Returns ErrMergeConflict if any fragment changed meanwhile
	MergeUpdates(ctx context.Context, kind models.UpdateKind, survivor *models.UpdateFragment, deleteIDs []string) error

	// GetCounter returns a persisted counter, 0 if absent
	GetCounter(ctx context.Context, key string) (int64, error)

	// SetCounter persists a counter
	SetCounter(ctx context.Context, key string, value int64) error
}
