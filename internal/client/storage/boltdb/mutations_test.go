package boltdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncspace/internal/models"
)

func newMutation(t *testing.T, entityID string) *models.PendingMutation {
	t.Helper()

	m, err := models.NewPendingMutation(models.MutationUpdate, entityID, "root-1", "user-1",
		models.UpdateNodePayload{Data: []byte{0x80}})
	require.NoError(t, err)
	return m
}

func TestMutations_AppendAndList(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)

	var ids []uint64
	for _, entity := range []string{"a", "b", "c"} {
		id, err := store.AppendMutation(ctx, newMutation(t, entity))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []uint64{1, 2, 3}, ids)

	all, err := store.ListMutations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].EntityID)
	assert.Equal(t, "c", all[2].EntityID)

	limited, err := store.ListMutations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, uint64(2), limited[1].ID)

	n, err := store.CountMutations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestMutations_IdsNeverReused(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)

	id1, err := store.AppendMutation(ctx, newMutation(t, "a"))
	require.NoError(t, err)
	require.NoError(t, store.DeleteMutations(ctx, []uint64{id1}))

	id2, err := store.AppendMutation(ctx, newMutation(t, "b"))
	require.NoError(t, err)
	assert.Greater(t, id2, id1)
}

func TestMutations_DeleteAndRetry(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)

	for _, entity := range []string{"a", "b", "c"} {
		_, err := store.AppendMutation(ctx, newMutation(t, entity))
		require.NoError(t, err)
	}

	require.NoError(t, store.DeleteMutations(ctx, []uint64{2, 99}))

	updated, err := store.IncrementRetries(ctx, []uint64{1, 2})
	require.NoError(t, err)
	require.Len(t, updated, 1, "deleted mutation is skipped")
	assert.Equal(t, 1, updated[0].RetryCount)

	updated, err = store.IncrementRetries(ctx, []uint64{1})
	require.NoError(t, err)
	assert.Equal(t, 2, updated[0].RetryCount)

	rest, err := store.ListMutations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, 2, rest[0].RetryCount)
	assert.Equal(t, "c", rest[1].EntityID)
}
