package sync

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/iudanet/syncspace/internal/client/events"
	"github.com/iudanet/syncspace/internal/client/storage"
	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/pkg/api"
)

// Store is the part of the replica storage the manager needs
type Store interface {
	storage.CursorStorage
	storage.ReplicaStorage
}

// Listener delivers push notices from the server event feed
type Listener interface {
	Listen(ctx context.Context, fn func(api.StreamNotice)) error
}

// Manager owns the synchronizers of one workspace replica: the two global
// ones and a set of root-scoped ones per active collaboration.
type Manager struct {
	puller   Puller
	store    Store
	bus      *events.Bus
	handlers *Handlers
	logger   *slog.Logger
	runCtx   context.Context
	global   []*Synchronizer
	roots    map[string][]*Synchronizer
	byKey    map[string]*Synchronizer
	pending  map[string]chan struct{}
	unsub    func()
	cfg      Config
	tasks    gosync.WaitGroup
	mu       gosync.Mutex
}

// NewManager создает менеджер синхронизаторов
func NewManager(puller Puller, store Store, bus *events.Bus, cfg Config, logger *slog.Logger) *Manager {
	return &Manager{
		puller:   puller,
		store:    store,
		bus:      bus,
		handlers: NewHandlers(store, bus, logger),
		logger:   logger,
		roots:    make(map[string][]*Synchronizer),
		byKey:    make(map[string]*Synchronizer),
		pending:  make(map[string]chan struct{}),
		cfg:      cfg,
	}
}

// Start opens the global synchronizers and one set per active collaboration
// already in the replica, then follows collaboration events.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	// Подписываемся до запуска, чтобы не пропустить коллаборации из первой пачки
	m.unsub = m.bus.Subscribe(m.handleEvent, events.TypeCollaborationCreated, events.TypeCollaborationDeleted)

	for _, stream := range models.GlobalStreams {
		s, err := m.open(ctx, stream, "")
		if err != nil {
			return err
		}
		m.mu.Lock()
		m.global = append(m.global, s)
		m.mu.Unlock()
	}

	collaborations, err := m.store.ListCollaborations(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collaborations: %w", err)
	}
	for _, c := range collaborations {
		if !c.Active() {
			continue
		}
		if err := m.OpenRoot(ctx, c.NodeID); err != nil {
			return err
		}
	}

	m.logger.Info("Synchronizers started", "roots", len(m.Roots()))
	return nil
}

// OpenRoot starts the root-scoped synchronizers of a root; no-op if already open
func (m *Manager) OpenRoot(ctx context.Context, rootID string) error {
	m.mu.Lock()
	_, exists := m.roots[rootID]
	if !exists {
		m.roots[rootID] = nil
	}
	m.mu.Unlock()
	if exists {
		return nil
	}

	set := make([]*Synchronizer, 0, len(models.RootStreams))
	for _, stream := range models.RootStreams {
		s, err := m.open(ctx, stream, rootID)
		if err != nil {
			for _, started := range set {
				m.forget(started)
			}
			m.mu.Lock()
			delete(m.roots, rootID)
			m.mu.Unlock()
			return err
		}
		set = append(set, s)
	}

	m.mu.Lock()
	m.roots[rootID] = set
	m.mu.Unlock()

	m.logger.Debug("Root synchronizers opened", "root_id", rootID)
	return nil
}

// CloseRoot destroys the root's synchronizers and removes the root's local
// data together with its cursors. It waits for the root's synchronizers to
// exit and must not be called from their goroutines, including bus handlers.
func (m *Manager) CloseRoot(ctx context.Context, rootID string) error {
	m.mu.Lock()
	set, exists := m.roots[rootID]
	delete(m.roots, rootID)
	m.mu.Unlock()

	for _, s := range set {
		m.forget(s)
	}
	// Ждём выхода циклов: отменённый pull завершается сразу,
	// а запоздалое применение записи не должно вернуть данные корня
	for _, s := range set {
		<-s.Done()
	}

	if err := m.store.DeleteRootData(ctx, rootID); err != nil {
		return fmt.Errorf("failed to remove root %s: %w", rootID, err)
	}

	if exists {
		m.logger.Info("Root synchronizers closed", "root_id", rootID)
	}
	return nil
}

// Roots returns the ids of the roots being synchronized
func (m *Manager) Roots() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	roots := make([]string, 0, len(m.roots))
	for id := range m.roots {
		roots = append(roots, id)
	}
	return roots
}

// Synchronizer returns the synchronizer of a stream key
func (m *Manager) Synchronizer(streamKey string) (*Synchronizer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byKey[streamKey]
	return s, ok
}

// Wake wakes the synchronizer of a stream key, ignoring unknown keys
func (m *Manager) Wake(streamKey string) {
	if s, ok := m.Synchronizer(streamKey); ok {
		s.Wake()
	}
}

// WakeAll wakes every synchronizer
func (m *Manager) WakeAll() {
	m.mu.Lock()
	all := make([]*Synchronizer, 0, len(m.byKey))
	for _, s := range m.byKey {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		s.Wake()
	}
}

// Listen follows the server event feed until ctx is cancelled, waking the
// synchronizer named by each notice. Dropped connections are re-established
// with backoff; after a reconnect every synchronizer is woken since notices
// may have been missed.
func (m *Manager) Listen(ctx context.Context, listener Listener) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = min(time.Second, m.cfg.MaxBackoff)
	bo.MaxInterval = m.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		connected := false
		err := listener.Listen(ctx, func(notice api.StreamNotice) {
			if !connected {
				connected = true
				bo.Reset()
			}
			m.Wake(notice.StreamKey)
		})
		if ctx.Err() != nil {
			return nil
		}

		delay := bo.NextBackOff()
		m.logger.Warn("Event feed disconnected, reconnecting", "error", err, "retry_in", delay)
		if !sleep(ctx, delay, nil) {
			return nil
		}
		m.WakeAll()
	}
}

// Close destroys every synchronizer and waits for their loops to exit
func (m *Manager) Close() {
	if m.unsub != nil {
		m.unsub()
	}

	// После обнуления runCtx новые фоновые задачи не ставятся
	m.mu.Lock()
	m.runCtx = nil
	m.mu.Unlock()
	m.tasks.Wait()

	m.mu.Lock()
	all := make([]*Synchronizer, 0, len(m.byKey))
	for _, s := range m.byKey {
		all = append(all, s)
	}
	m.byKey = make(map[string]*Synchronizer)
	m.roots = make(map[string][]*Synchronizer)
	m.global = nil
	m.mu.Unlock()

	for _, s := range all {
		s.Destroy()
	}
	for _, s := range all {
		<-s.Done()
	}
}

func (m *Manager) handleEvent(e events.Event) {
	m.mu.Lock()
	ctx := m.runCtx
	m.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	// Событие может доставляться горутиной синхронизатора этого же корня,
	// поэтому открытие и закрытие выполняются в фоне
	switch ev := e.(type) {
	case events.CollaborationCreated:
		rootID := ev.Collaboration.NodeID
		m.background(rootID, func() {
			if err := m.OpenRoot(ctx, rootID); err != nil {
				m.logger.Error("Failed to open root", "root_id", rootID, "error", err)
			}
		})
	case events.CollaborationDeleted:
		rootID := ev.Collaboration.NodeID
		m.background(rootID, func() {
			if err := m.CloseRoot(ctx, rootID); err != nil {
				m.logger.Error("Failed to close root", "root_id", rootID, "error", err)
			}
		})
	}
}

// background runs fn on its own goroutine once the previous task of the same
// root has finished, so opens and closes of a root apply in event order.
// Nothing is scheduled once Close has started.
func (m *Manager) background(rootID string, fn func()) {
	m.mu.Lock()
	if m.runCtx == nil {
		m.mu.Unlock()
		return
	}
	prev := m.pending[rootID]
	done := make(chan struct{})
	m.pending[rootID] = done
	m.tasks.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.tasks.Done()
		defer func() {
			m.mu.Lock()
			if m.pending[rootID] == done {
				delete(m.pending, rootID)
			}
			m.mu.Unlock()
			close(done)
		}()

		if prev != nil {
			<-prev
		}
		fn()
	}()
}

// open создает, инициализирует и запускает синхронизатор потока
func (m *Manager) open(ctx context.Context, stream models.Stream, rootID string) (*Synchronizer, error) {
	apply, err := m.handlers.For(stream)
	if err != nil {
		return nil, err
	}

	s := NewSynchronizer(stream, rootID, m.puller, m.store, apply, m.cfg, m.logger)
	if err := s.Init(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if _, dup := m.byKey[s.Key()]; dup {
		m.mu.Unlock()
		return nil, fmt.Errorf("synchronizer %s already running", s.Key())
	}
	m.byKey[s.Key()] = s
	m.mu.Unlock()

	if err := s.Start(ctx); err != nil {
		m.forget(s)
		return nil, err
	}
	return s, nil
}

// forget уничтожает синхронизатор и убирает его из индекса
func (m *Manager) forget(s *Synchronizer) {
	s.Destroy()

	m.mu.Lock()
	if m.byKey[s.Key()] == s {
		delete(m.byKey, s.Key())
	}
	m.mu.Unlock()
}
