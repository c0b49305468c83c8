package sqlite

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncspace/internal/crdt"
	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/storage"
)

func pullAll(t *testing.T, s *Storage, stream models.Stream, rootID, userID string) []json.RawMessage {
	t.Helper()
	items, _, err := s.Pull(context.Background(), storage.PullQuery{
		Stream:      stream,
		WorkspaceID: testWorkspace,
		UserID:      userID,
		RootID:      rootID,
		Limit:       1000,
	})
	require.NoError(t, err)

	data := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		data = append(data, item.Data)
	}
	return data
}

func TestMutations_CreateRootGrantsAdmin(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")

	collaboration, err := s.GetCollaboration(ctx, rootID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, collaboration.Role)

	_, err = s.GetCollaboration(ctx, rootID, "bob")
	assert.ErrorIs(t, err, storage.ErrForbidden)
}

func TestMutations_CreateNode(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")

	newNode := func(id, parentID, author string) *models.Node {
		return &models.Node{
			ID:          id,
			RootID:      rootID,
			ParentID:    parentID,
			WorkspaceID: testWorkspace,
			Type:        models.NodeTypeMessage,
			CreatedBy:   author,
			CreatedAt:   time.Now().UTC(),
		}
	}
	newFragment := func(id, author string) *models.UpdateFragment {
		return &models.UpdateFragment{
			EntityID:  id,
			RootID:    rootID,
			CreatedBy: author,
			Data:      testState(t, author, map[string]any{"text": "hi"}),
		}
	}

	existingID := uuid.New().String()
	require.NoError(t, s.CreateNode(ctx, newNode(existingID, rootID, "alice"), newFragment(existingID, "alice")))

	tests := []struct {
		wantErr error
		node    *models.Node
		name    string
	}{
		{
			name: "retried create is idempotent",
			node: newNode(existingID, rootID, "alice"),
		},
		{
			name:    "same id by another author",
			node:    newNode(existingID, rootID, "bob"),
			wantErr: storage.ErrNodeExists,
		},
		{
			name:    "author without collaboration",
			node:    newNode(uuid.New().String(), rootID, "bob"),
			wantErr: storage.ErrForbidden,
		},
		{
			name:    "unknown parent",
			node:    newNode(uuid.New().String(), "missing", "alice"),
			wantErr: storage.ErrNodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CreateNode(ctx, tt.node, newFragment(tt.node.ID, tt.node.CreatedBy))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}

	fragments, err := s.ListUpdates(ctx, models.UpdateKindNode, existingID)
	require.NoError(t, err)
	assert.Len(t, fragments, 1, "idempotent create must not append a second fragment")
}

func TestMutations_UpdateNodeMergesState(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")

	clock := crdt.NewLamportClockWithReplicaID("alice", 10)
	doc := crdt.NewDocument()
	require.NoError(t, doc.Set("description", "renamed", clock))
	data, err := doc.Encode()
	require.NoError(t, err)

	require.NoError(t, s.UpdateNode(ctx, &models.UpdateFragment{
		EntityID:  rootID,
		RootID:    rootID,
		CreatedBy: "alice",
		CreatedAt: time.Now().UTC(),
		Data:      data,
	}))

	nodes := pullAll(t, s, models.StreamNodes, rootID, "alice")
	require.Len(t, nodes, 1)

	var node models.Node
	require.NoError(t, json.Unmarshal(nodes[0], &node))
	assert.JSONEq(t, `"general"`, string(node.Attributes["name"]))
	assert.JSONEq(t, `"renamed"`, string(node.Attributes["description"]))

	err = s.UpdateNode(ctx, &models.UpdateFragment{
		EntityID:  rootID,
		RootID:    "other-root",
		CreatedBy: "alice",
		Data:      data,
	})
	assert.ErrorIs(t, err, storage.ErrRootMismatch)
}

func TestMutations_DeleteNodeSubtree(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")
	pageID := createTestChild(t, ctx, s, rootID, rootID, "alice")
	childID := createTestChild(t, ctx, s, rootID, pageID, "alice")

	now := time.Now().UTC()
	require.NoError(t, s.UpsertInteraction(ctx, &models.NodeInteraction{
		NodeID:         childID,
		CollaboratorID: "alice",
		RootID:         rootID,
		WorkspaceID:    testWorkspace,
		FirstSeenAt:    &now,
		LastSeenAt:     &now,
	}))

	require.NoError(t, s.DeleteNode(ctx, pageID, rootID, "alice", now))

	tombstones := pullAll(t, s, models.StreamNodeTombstones, rootID, "alice")
	assert.Len(t, tombstones, 2)

	nodes := pullAll(t, s, models.StreamNodes, rootID, "alice")
	assert.Len(t, nodes, 1, "only the root remains")

	interactions := pullAll(t, s, models.StreamNodeInteractions, rootID, "alice")
	assert.Empty(t, interactions)

	fragments, err := s.ListUpdates(ctx, models.UpdateKindNode, childID)
	require.NoError(t, err)
	assert.Empty(t, fragments)

	// Повторное удаление успешно
	require.NoError(t, s.DeleteNode(ctx, pageID, rootID, "alice", now))
	assert.ErrorIs(t, s.DeleteNode(ctx, "never-existed", rootID, "alice", now), storage.ErrNodeNotFound)
}

func TestMutations_DeleteRootRevokesCollaborations(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")
	require.NoError(t, s.AddCollaboration(ctx, &models.Collaboration{
		NodeID:         rootID,
		CollaboratorID: "bob",
		WorkspaceID:    testWorkspace,
		Role:           models.RoleViewer,
	}))

	require.NoError(t, s.DeleteNode(ctx, rootID, rootID, "alice", time.Now().UTC()))

	for _, user := range []string{"alice", "bob"} {
		_, err := s.GetCollaboration(ctx, rootID, user)
		assert.ErrorIs(t, err, storage.ErrForbidden, user)

		items := pullAll(t, s, models.StreamCollaborations, "", user)
		require.Len(t, items, 1, user)
		var c models.Collaboration
		require.NoError(t, json.Unmarshal(items[0], &c))
		assert.False(t, c.Active(), user)
	}
}

func TestMutations_ViewerCannotWrite(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")
	messageID := createTestChild(t, ctx, s, rootID, rootID, "alice")
	require.NoError(t, s.AddCollaboration(ctx, &models.Collaboration{
		NodeID:         rootID,
		CollaboratorID: "bob",
		WorkspaceID:    testWorkspace,
		Role:           models.RoleViewer,
	}))

	err := s.DeleteNode(ctx, messageID, rootID, "bob", time.Now().UTC())
	assert.ErrorIs(t, err, storage.ErrForbidden)

	// Просмотр и реакции доступны наблюдателю
	now := time.Now().UTC()
	require.NoError(t, s.UpsertInteraction(ctx, &models.NodeInteraction{
		NodeID:         messageID,
		CollaboratorID: "bob",
		RootID:         rootID,
		WorkspaceID:    testWorkspace,
		LastSeenAt:     &now,
	}))
	require.NoError(t, s.SetReaction(ctx, &models.NodeReaction{
		NodeID:         messageID,
		CollaboratorID: "bob",
		Reaction:       "👍",
		RootID:         rootID,
		WorkspaceID:    testWorkspace,
		CreatedAt:      now,
	}, false))
}

func TestMutations_UpsertInteractionMerges(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")

	early := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	first := &models.NodeInteraction{
		NodeID: rootID, CollaboratorID: "alice", RootID: rootID, WorkspaceID: testWorkspace,
		FirstSeenAt: &late, LastSeenAt: &late,
	}
	require.NoError(t, s.UpsertInteraction(ctx, first))
	revision := first.Revision

	second := &models.NodeInteraction{
		NodeID: rootID, CollaboratorID: "alice", RootID: rootID, WorkspaceID: testWorkspace,
		FirstSeenAt: &early, LastSeenAt: &early,
	}
	require.NoError(t, s.UpsertInteraction(ctx, second))

	assert.True(t, second.FirstSeenAt.Equal(early), "first seen keeps the earliest")
	assert.True(t, second.LastSeenAt.Equal(late), "last seen keeps the latest")
	assert.Greater(t, second.Revision, revision)

	// Повтор без изменений не выдаёт новую ревизию
	again := &models.NodeInteraction{
		NodeID: rootID, CollaboratorID: "alice", RootID: rootID, WorkspaceID: testWorkspace,
		LastSeenAt: &early,
	}
	require.NoError(t, s.UpsertInteraction(ctx, again))
	assert.Equal(t, second.Revision, again.Revision)
}

func TestMutations_SetReaction(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")
	messageID := createTestChild(t, ctx, s, rootID, rootID, "alice")

	reaction := func() *models.NodeReaction {
		return &models.NodeReaction{
			NodeID:         messageID,
			CollaboratorID: "alice",
			Reaction:       "🎉",
			RootID:         rootID,
			WorkspaceID:    testWorkspace,
			CreatedAt:      time.Now().UTC(),
		}
	}

	require.NoError(t, s.SetReaction(ctx, reaction(), false))
	require.NoError(t, s.SetReaction(ctx, reaction(), false))
	assert.Len(t, pullAll(t, s, models.StreamNodeReactions, rootID, "alice"), 1)

	require.NoError(t, s.SetReaction(ctx, reaction(), true))
	require.NoError(t, s.SetReaction(ctx, reaction(), true))

	items := pullAll(t, s, models.StreamNodeReactions, rootID, "alice")
	require.Len(t, items, 1)
	var r models.NodeReaction
	require.NoError(t, json.Unmarshal(items[0], &r))
	assert.NotNil(t, r.DeletedAt)
}

func TestMutations_AppendDocumentUpdate(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	rootID := createTestRoot(t, ctx, s, "alice")
	pageID := createTestChild(t, ctx, s, rootID, rootID, "alice")

	fragment := &models.UpdateFragment{
		EntityID:  pageID,
		RootID:    rootID,
		CreatedBy: "alice",
		Data:      testState(t, "alice", map[string]any{"block-1": "text"}),
	}
	require.NoError(t, s.AppendDocumentUpdate(ctx, fragment))

	items := pullAll(t, s, models.StreamDocumentUpdates, rootID, "alice")
	require.Len(t, items, 1)
	var got models.UpdateFragment
	require.NoError(t, json.Unmarshal(items[0], &got))
	assert.Equal(t, fragment.ID, got.ID)
	assert.Equal(t, pageID, got.EntityID)

	err := s.AppendDocumentUpdate(ctx, &models.UpdateFragment{
		EntityID:  pageID,
		RootID:    rootID,
		CreatedBy: "alice",
		Data:      []byte("not msgpack"),
	})
	assert.Error(t, err)
}
