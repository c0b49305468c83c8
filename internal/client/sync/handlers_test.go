package sync

import (
	"context"
	"encoding/json"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncspace/internal/client/events"
	"github.com/iudanet/syncspace/internal/crdt"
	"github.com/iudanet/syncspace/internal/models"
)

// captured собирает опубликованные события по типам
func captured(bus *events.Bus) *[]events.Event {
	var got []events.Event
	bus.Subscribe(func(e events.Event) {
		got = append(got, e)
	})
	return &got
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func nodeState(t *testing.T, key string, value any) []byte {
	t.Helper()

	doc := crdt.NewDocument()
	require.NoError(t, doc.Set(key, value, crdt.NewLamportClock()))
	data, err := doc.Encode()
	require.NoError(t, err)
	return data
}

func TestHandlers_CollaborationEventsOnActivityChange(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	bus := events.NewBus(testLogger())
	got := captured(bus)
	h := NewHandlers(store, bus, testLogger())

	apply, err := h.For(models.StreamCollaborations)
	require.NoError(t, err)

	active := &models.Collaboration{NodeID: "root-1", CollaboratorID: "u1", Role: models.RoleEditor, Revision: 1}
	require.NoError(t, apply(ctx, mustJSON(t, active)))
	// Повторная доставка не публикует событие
	require.NoError(t, apply(ctx, mustJSON(t, active)))

	// Смена роли без смены активности тоже
	roleChange := *active
	roleChange.Role = models.RoleViewer
	roleChange.Revision = 2
	require.NoError(t, apply(ctx, mustJSON(t, &roleChange)))

	deletedAt := time.Now().UTC()
	revoked := roleChange
	revoked.DeletedAt = &deletedAt
	revoked.Revision = 3
	require.NoError(t, apply(ctx, mustJSON(t, &revoked)))

	require.Len(t, *got, 2)
	assert.Equal(t, events.TypeCollaborationCreated, (*got)[0].Type())
	assert.Equal(t, events.TypeCollaborationDeleted, (*got)[1].Type())
	assert.Equal(t, "root-1", (*got)[1].(events.CollaborationDeleted).Collaboration.NodeID)
}

func TestHandlers_NodeCreatedThenUpdated(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	bus := events.NewBus(testLogger())
	got := captured(bus)
	h := NewHandlers(store, bus, testLogger())

	apply, err := h.For(models.StreamNodes)
	require.NoError(t, err)

	node := &models.Node{ID: "msg-1", RootID: "root-1", ParentID: "chat-1", Type: models.NodeTypeMessage,
		State: nodeState(t, "text", "hi"), Revision: 5}
	require.NoError(t, apply(ctx, mustJSON(t, node)))
	require.NoError(t, apply(ctx, mustJSON(t, node)))

	node.Revision = 6
	node.State = nodeState(t, "text", "edited")
	require.NoError(t, apply(ctx, mustJSON(t, node)))

	require.Len(t, *got, 2)
	created, ok := (*got)[0].(events.NodeCreated)
	require.True(t, ok)
	assert.Equal(t, "msg-1", created.Node.ID)
	_, ok = (*got)[1].(events.NodeUpdated)
	assert.True(t, ok)
}

func TestHandlers_TombstonePublishesNodeDeleted(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	bus := events.NewBus(testLogger())
	got := captured(bus)
	h := NewHandlers(store, bus, testLogger())

	applyNode, err := h.For(models.StreamNodes)
	require.NoError(t, err)
	applyTombstone, err := h.For(models.StreamNodeTombstones)
	require.NoError(t, err)

	node := &models.Node{ID: "page-1", RootID: "root-1", Type: models.NodeTypePage, Revision: 1}
	require.NoError(t, applyNode(ctx, mustJSON(t, node)))

	tombstone := &models.NodeTombstone{ID: "page-1", RootID: "root-1", Revision: 2, DeletedAt: time.Now().UTC()}
	require.NoError(t, applyTombstone(ctx, mustJSON(t, tombstone)))
	require.NoError(t, applyTombstone(ctx, mustJSON(t, tombstone)))

	// Узел не воскрешается более старой ревизией
	require.NoError(t, applyNode(ctx, mustJSON(t, node)))

	require.Len(t, *got, 2)
	deleted, ok := (*got)[1].(events.NodeDeleted)
	require.True(t, ok)
	assert.Equal(t, "page-1", deleted.NodeID)

	nodes, err := store.ListNodes(ctx, "root-1")
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestHandlers_InteractionUpdatedCarriesStoredState(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	bus := events.NewBus(testLogger())
	got := captured(bus)
	h := NewHandlers(store, bus, testLogger())

	apply, err := h.For(models.StreamNodeInteractions)
	require.NoError(t, err)

	seen := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	interaction := &models.NodeInteraction{NodeID: "msg-1", CollaboratorID: "u1", RootID: "root-1",
		FirstSeenAt: &seen, LastSeenAt: &seen, Revision: 3}
	require.NoError(t, apply(ctx, mustJSON(t, interaction)))

	require.Len(t, *got, 1)
	ev := (*got)[0].(events.NodeInteractionUpdated)
	require.NotNil(t, ev.Interaction.LastSeenAt)
	assert.True(t, seen.Equal(*ev.Interaction.LastSeenAt))
}

func TestHandlers_DocumentUpdateMergesState(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	h := NewHandlers(store, events.NewBus(testLogger()), testLogger())

	apply, err := h.For(models.StreamDocumentUpdates)
	require.NoError(t, err)

	fragment := &models.UpdateFragment{ID: "f1", EntityID: "page-1", RootID: "root-1",
		Data: nodeState(t, "title", "Plan"), Revision: 4}
	require.NoError(t, apply(ctx, mustJSON(t, fragment)))

	state, err := store.GetDocument(ctx, "root-1", "page-1")
	require.NoError(t, err)
	doc, err := crdt.Decode(state)
	require.NoError(t, err)
	title, ok := doc.Get("title")
	require.True(t, ok)
	assert.JSONEq(t, `"Plan"`, string(title))
}

func TestHandlers_RejectsMalformedItem(t *testing.T) {
	h := NewHandlers(setupTestStore(t), events.NewBus(testLogger()), testLogger())

	for _, stream := range slices.Concat(models.GlobalStreams, models.RootStreams) {
		apply, err := h.For(stream)
		require.NoError(t, err)
		assert.Error(t, apply(context.Background(), json.RawMessage(`{`)), stream)
	}

	_, err := h.For(models.Stream("unknown"))
	assert.Error(t, err)
}
