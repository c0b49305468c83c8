package sync

import (
	"context"
	"errors"
	"slices"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncspace/internal/client/events"
	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/pkg/api"
)

func startManager(t *testing.T, puller *fakePuller) (*Manager, *events.Bus) {
	t.Helper()

	store := setupTestStore(t)
	bus := events.NewBus(testLogger())
	m := NewManager(puller, store, bus, testConfig(), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, m.Start(ctx))
	t.Cleanup(func() {
		m.Close()
		cancel()
	})
	return m, bus
}

func TestManager_StartsGlobalSynchronizers(t *testing.T) {
	m, _ := startManager(t, newFakePuller())

	for _, key := range []string{"users", "collaborations"} {
		s, ok := m.Synchronizer(key)
		require.True(t, ok, key)
		assert.NotEqual(t, StateDestroyed, s.State())
	}
	assert.Empty(t, m.Roots())
}

func TestManager_CollaborationLifecycle(t *testing.T) {
	ctx := context.Background()
	puller := newFakePuller()
	puller.add(t, models.StreamCollaborations, "", 1,
		&models.Collaboration{NodeID: "root-1", CollaboratorID: "u1", Role: models.RoleEditor, Revision: 1})
	puller.add(t, models.StreamNodes, "root-1", 2,
		&models.Node{ID: "root-1", RootID: "root-1", Type: models.NodeTypeSpace, Revision: 2})

	m, _ := startManager(t, puller)

	// collaboration_created открывает набор корневых синхронизаторов
	require.Eventually(t, func() bool {
		return slices.Equal(m.Roots(), []string{"root-1"})
	}, 2*time.Second, 5*time.Millisecond)
	for _, stream := range models.RootStreams {
		_, ok := m.Synchronizer(models.StreamKey(stream, "root-1"))
		assert.True(t, ok, stream)
	}

	require.Eventually(t, func() bool {
		nodes, err := m.store.ListNodes(ctx, "root-1")
		return err == nil && len(nodes) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		position, err := m.store.GetCursor(ctx, "root-1_nodes")
		return err == nil && position == 2
	}, 2*time.Second, 5*time.Millisecond)

	// Отзыв доступа закрывает набор и удаляет данные корня с курсорами
	deletedAt := time.Now().UTC()
	puller.add(t, models.StreamCollaborations, "", 3,
		&models.Collaboration{NodeID: "root-1", CollaboratorID: "u1", Role: models.RoleEditor, Revision: 3, DeletedAt: &deletedAt})
	m.Wake("collaborations")

	require.Eventually(t, func() bool { return len(m.Roots()) == 0 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		nodes, err := m.store.ListNodes(ctx, "root-1")
		return err == nil && len(nodes) == 0
	}, 2*time.Second, 5*time.Millisecond)

	_, ok := m.Synchronizer("root-1_nodes")
	assert.False(t, ok)

	position, err := m.store.GetCursor(ctx, "root-1_nodes")
	require.NoError(t, err)
	assert.Zero(t, position)
}

func TestManager_RevokeWhileRootDelivers(t *testing.T) {
	ctx := context.Background()
	puller := newFakePuller()
	puller.add(t, models.StreamCollaborations, "", 1,
		&models.Collaboration{NodeID: "root-1", CollaboratorID: "u1", Role: models.RoleEditor, Revision: 1})
	puller.add(t, models.StreamNodes, "root-1", 2,
		&models.Node{ID: "root-1", RootID: "root-1", Type: models.NodeTypeSpace, Revision: 2})

	store := setupTestStore(t)
	bus := events.NewBus(testLogger())

	// Отзыв приходит, пока доставляется node_created того же корня
	var once gosync.Once
	bus.Subscribe(func(e events.Event) {
		ev := e.(events.NodeCreated)
		if ev.Node.RootID != "root-1" {
			return
		}
		once.Do(func() {
			deletedAt := time.Now().UTC()
			bus.Publish(events.CollaborationDeleted{Collaboration: &models.Collaboration{
				NodeID: "root-1", CollaboratorID: "u1", Revision: 3, DeletedAt: &deletedAt,
			}})
		})
	}, events.TypeNodeCreated)

	m := NewManager(puller, store, bus, testConfig(), testLogger())
	runCtx, cancel := context.WithCancel(ctx)
	require.NoError(t, m.Start(runCtx))
	t.Cleanup(func() {
		m.Close()
		cancel()
	})

	require.Eventually(t, func() bool {
		nodes, err := store.ListNodes(ctx, "root-1")
		return err == nil && len(nodes) == 0 && len(m.Roots()) == 0
	}, 2*time.Second, 5*time.Millisecond)
	_, ok := m.Synchronizer("root-1_nodes")
	assert.False(t, ok)

	// Шина продолжает доставлять события
	var delivered atomic.Bool
	bus.Subscribe(func(events.Event) { delivered.Store(true) }, events.TypeRadarDataUpdated)
	bus.Publish(events.RadarDataUpdated{})
	require.Eventually(t, delivered.Load, 2*time.Second, 5*time.Millisecond)
}

func TestManager_CloseWaitsForRootTeardown(t *testing.T) {
	ctx := context.Background()
	m, bus := startManager(t, newFakePuller())
	require.NoError(t, m.OpenRoot(ctx, "root-1"))
	_, err := m.store.ApplyNode(ctx, &models.Node{ID: "root-1", RootID: "root-1", Type: models.NodeTypeSpace, Revision: 1})
	require.NoError(t, err)

	deletedAt := time.Now().UTC()
	bus.Publish(events.CollaborationDeleted{Collaboration: &models.Collaboration{
		NodeID: "root-1", CollaboratorID: "u1", Revision: 2, DeletedAt: &deletedAt,
	}})
	m.Close()

	nodes, err := m.store.ListNodes(ctx, "root-1")
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.Empty(t, m.Roots())
}

func TestManager_ReopensRootsFromReplica(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)
	_, err := store.ApplyCollaboration(ctx, &models.Collaboration{NodeID: "root-1", CollaboratorID: "u1", Revision: 1})
	require.NoError(t, err)
	deletedAt := time.Now().UTC()
	_, err = store.ApplyCollaboration(ctx, &models.Collaboration{NodeID: "root-2", CollaboratorID: "u1", Revision: 2, DeletedAt: &deletedAt})
	require.NoError(t, err)

	m := NewManager(newFakePuller(), store, events.NewBus(testLogger()), testConfig(), testLogger())
	require.NoError(t, m.Start(ctx))
	defer m.Close()

	assert.Equal(t, []string{"root-1"}, m.Roots())
}

func TestManager_OpenRootIsIdempotent(t *testing.T) {
	m, _ := startManager(t, newFakePuller())

	require.NoError(t, m.OpenRoot(context.Background(), "root-1"))
	first, ok := m.Synchronizer("root-1_files")
	require.True(t, ok)

	require.NoError(t, m.OpenRoot(context.Background(), "root-1"))
	second, ok := m.Synchronizer("root-1_files")
	require.True(t, ok)
	assert.Same(t, first, second)
}

func TestManager_CloseDestroysEverything(t *testing.T) {
	store := setupTestStore(t)
	m := NewManager(newFakePuller(), store, events.NewBus(testLogger()), testConfig(), testLogger())
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.OpenRoot(context.Background(), "root-1"))

	users, _ := m.Synchronizer("users")
	nodes, _ := m.Synchronizer("root-1_nodes")

	m.Close()

	assert.Equal(t, StateDestroyed, users.State())
	assert.Equal(t, StateDestroyed, nodes.State())
	_, ok := m.Synchronizer("users")
	assert.False(t, ok)
}

// fakeListener отдаёт заданные уведомления и обрывает соединение
type fakeListener struct {
	notices []api.StreamNotice
	calls   int
}

func (f *fakeListener) Listen(ctx context.Context, fn func(api.StreamNotice)) error {
	f.calls++
	if f.calls == 1 {
		for _, n := range f.notices {
			fn(n)
		}
		return errors.New("connection reset")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestManager_ListenWakesByStreamKey(t *testing.T) {
	puller := newFakePuller()
	m, _ := startManager(t, puller)
	require.NoError(t, m.OpenRoot(context.Background(), "root-1"))

	// Ждём, пока синхронизатор уснёт после первой пустой пачки
	require.Eventually(t, func() bool {
		return len(puller.requestCursors("root-1_nodeReactions")) == 1
	}, 2*time.Second, 5*time.Millisecond)

	puller.add(t, models.StreamNodeReactions, "root-1", 9,
		&models.NodeReaction{NodeID: "msg-1", CollaboratorID: "u2", Reaction: "+1", RootID: "root-1", Revision: 9})

	ctx, cancel := context.WithCancel(context.Background())
	listener := &fakeListener{notices: []api.StreamNotice{{StreamKey: "root-1_nodeReactions"}, {StreamKey: "unknown"}}}
	done := make(chan error, 1)
	go func() { done <- m.Listen(ctx, listener) }()

	s, ok := m.Synchronizer("root-1_nodeReactions")
	require.True(t, ok)
	require.Eventually(t, func() bool { return s.Cursor() == 9 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not stop")
	}
}
