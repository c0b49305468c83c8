package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/storage"
)

func TestStreams_PullPaging(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")
	for i := 0; i < 4; i++ {
		createTestChild(t, ctx, s, rootID, rootID, "alice")
	}

	var cursor int64
	var pages, total int
	for {
		items, hasMore, err := s.Pull(ctx, storage.PullQuery{
			Stream: models.StreamNodes,
			RootID: rootID,
			Cursor: cursor,
			Limit:  2,
		})
		require.NoError(t, err)
		pages++

		for _, item := range items {
			assert.Greater(t, item.Position, cursor, "positions are strictly increasing")
			cursor = item.Position
		}
		total += len(items)

		if !hasMore {
			break
		}
	}

	assert.Equal(t, 5, total)
	assert.Equal(t, 3, pages)
}

func TestStreams_ScopedByRootAndUser(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	aliceRoot := createTestRoot(t, ctx, s, "alice")
	bobRoot := createTestRoot(t, ctx, s, "bob")
	createTestChild(t, ctx, s, bobRoot, bobRoot, "bob")

	assert.Len(t, pullAll(t, s, models.StreamNodes, aliceRoot, "alice"), 1)
	assert.Len(t, pullAll(t, s, models.StreamNodes, bobRoot, "bob"), 2)
	assert.Len(t, pullAll(t, s, models.StreamCollaborations, "", "alice"), 1)
}

func TestStreams_Users(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	user := &models.WorkspaceUser{ID: "alice", WorkspaceID: testWorkspace, Name: "Alice", Role: "owner"}
	require.NoError(t, s.UpsertUser(ctx, user))
	first := user.Revision

	user.Name = "Alice B."
	require.NoError(t, s.UpsertUser(ctx, user))
	assert.Greater(t, user.Revision, first)

	items, hasMore, err := s.Pull(ctx, storage.PullQuery{
		Stream:      models.StreamUsers,
		WorkspaceID: testWorkspace,
		Cursor:      first,
		Limit:       10,
	})
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, items, 1)
	assert.Equal(t, user.Revision, items[0].Position)
}

func TestStreams_Files(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")

	file := &models.File{
		ID:          "file-1",
		RootID:      rootID,
		ParentID:    rootID,
		WorkspaceID: testWorkspace,
		Name:        "report.pdf",
		MimeType:    "application/pdf",
		Size:        1024,
		CreatedBy:   "alice",
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, s.CreateFile(ctx, file))
	assert.Equal(t, models.FileStatusPending, file.Status)
	assert.Len(t, pullAll(t, s, models.StreamFiles, rootID, "alice"), 1)

	file.ID = "file-2"
	file.CreatedBy = "mallory"
	assert.ErrorIs(t, s.CreateFile(ctx, file), storage.ErrForbidden)
}

func TestStreams_UnknownStream(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, _, err := s.Pull(context.Background(), storage.PullQuery{Stream: "secrets", Limit: 10})
	assert.ErrorIs(t, err, storage.ErrUnknownStream)
}

func TestWorkspace_RemoveCollaboration(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")

	require.NoError(t, s.RemoveCollaboration(ctx, rootID, "alice", time.Now().UTC()))
	assert.ErrorIs(t, s.RemoveCollaboration(ctx, rootID, "alice", time.Now().UTC()), storage.ErrCollaborationNotFound)

	_, err := s.GetCollaboration(ctx, rootID, "alice")
	assert.ErrorIs(t, err, storage.ErrForbidden)
}
