package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncspace/internal/crdt"
	"github.com/iudanet/syncspace/internal/models"
)

const testWorkspace = "ws-1"

func setupTestStorage(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	// Используем in-memory database для тестов
	storage, err := New(ctx, ":memory:")
	require.NoError(t, err)

	cleanup := func() {
		_ = storage.Close()
	}

	return storage, cleanup
}

// testState кодирует CRDT документ с заданными полями
func testState(t *testing.T, replica string, fields map[string]any) []byte {
	t.Helper()
	clock := crdt.NewLamportClockWithReplicaID(replica, 0)
	doc := crdt.NewDocument()
	for k, v := range fields {
		require.NoError(t, doc.Set(k, v, clock))
	}
	data, err := doc.Encode()
	require.NoError(t, err)
	return data
}

// createTestRoot создаёт корень и возвращает его ID
func createTestRoot(t *testing.T, ctx context.Context, s *Storage, userID string) string {
	t.Helper()
	rootID := uuid.New().String()
	node := &models.Node{
		ID:          rootID,
		RootID:      rootID,
		WorkspaceID: testWorkspace,
		Type:        models.NodeTypeChat,
		CreatedBy:   userID,
		CreatedAt:   time.Now().UTC(),
	}
	fragment := &models.UpdateFragment{
		EntityID:    rootID,
		RootID:      rootID,
		WorkspaceID: testWorkspace,
		CreatedBy:   userID,
		Data:        testState(t, userID, map[string]any{"name": "general"}),
	}
	require.NoError(t, s.CreateNode(ctx, node, fragment))
	return rootID
}

// createTestChild создаёт сообщение под parentID
func createTestChild(t *testing.T, ctx context.Context, s *Storage, rootID, parentID, userID string) string {
	t.Helper()
	nodeID := uuid.New().String()
	node := &models.Node{
		ID:          nodeID,
		RootID:      rootID,
		ParentID:    parentID,
		WorkspaceID: testWorkspace,
		Type:        models.NodeTypeMessage,
		CreatedBy:   userID,
		CreatedAt:   time.Now().UTC(),
	}
	fragment := &models.UpdateFragment{
		EntityID:    nodeID,
		RootID:      rootID,
		WorkspaceID: testWorkspace,
		CreatedBy:   userID,
		Data:        testState(t, userID, map[string]any{"text": "hello"}),
	}
	require.NoError(t, s.CreateNode(ctx, node, fragment))
	return nodeID
}

func TestStorage_New_RunsMigrations(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	require.NoError(t, s.Ping(ctx))

	revision, err := s.GetCounter(ctx, "revision")
	require.NoError(t, err)
	assert.Equal(t, int64(0), revision)
}

func TestStorage_Counters(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()

	value, err := s.GetCounter(ctx, "merge_cursor.node")
	require.NoError(t, err)
	assert.Equal(t, int64(0), value, "absent counter reads as zero")

	require.NoError(t, s.SetCounter(ctx, "merge_cursor.node", 42))
	require.NoError(t, s.SetCounter(ctx, "merge_cursor.node", 43))

	value, err = s.GetCounter(ctx, "merge_cursor.node")
	require.NoError(t, err)
	assert.Equal(t, int64(43), value)
}

func TestStorage_RevisionsAreMonotonic(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	var last int64
	for i := 0; i < 5; i++ {
		fragment := &models.UpdateFragment{
			EntityID:  "doc-1",
			RootID:    "root-1",
			CreatedBy: "user-1",
			Data:      []byte{0x80},
		}
		require.NoError(t, s.AppendUpdate(ctx, models.UpdateKindDocument, fragment))
		assert.Greater(t, fragment.Revision, last)
		assert.NotEmpty(t, fragment.ID)
		last = fragment.Revision
	}
}
