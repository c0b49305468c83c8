package storage

import (
	"context"

	"github.com/iudanet/syncspace/internal/models"
)

// MutationStorage is the durable log of pending mutations.
// Mutations are returned in the order they were appended.
type MutationStorage interface {
	// AppendMutation assigns the next sequential id and stores the mutation
	AppendMutation(ctx context.Context, mutation *models.PendingMutation) (uint64, error)

	// ListMutations returns up to limit oldest mutations
	ListMutations(ctx context.Context, limit int) ([]*models.PendingMutation, error)

	// DeleteMutations removes mutations by id; unknown ids are ignored
	DeleteMutations(ctx context.Context, ids []uint64) error

	// IncrementRetries bumps RetryCount of the given mutations and returns
	// their updated state
	IncrementRetries(ctx context.Context, ids []uint64) ([]*models.PendingMutation, error)

	// CountMutations returns the number of pending mutations
	CountMutations(ctx context.Context) (int, error)
}
