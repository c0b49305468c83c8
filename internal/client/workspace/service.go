// Package workspace assembles one replica of a workspace: storage, event bus,
// mutation queue, synchronizers and radar, plus the local edit operations.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	clientapi "github.com/iudanet/syncspace/internal/client/api"
	"github.com/iudanet/syncspace/internal/client/events"
	"github.com/iudanet/syncspace/internal/client/mutation"
	"github.com/iudanet/syncspace/internal/client/radar"
	"github.com/iudanet/syncspace/internal/client/storage"
	"github.com/iudanet/syncspace/internal/client/storage/boltdb"
	clientsync "github.com/iudanet/syncspace/internal/client/sync"
	"github.com/iudanet/syncspace/internal/crdt"
	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/pkg/api"
)

// Remote is the server surface a replica talks to
type Remote interface {
	mutation.Transport
	clientsync.Puller
	clientsync.Listener
	CreateFile(ctx context.Context, req api.CreateFileRequest) (*models.File, error)
}

// Config настройки реплики
type Config struct {
	UserID      string
	WorkspaceID string
	Queue       mutation.Config
	Sync        clientsync.Config
}

// Service is one replica of a workspace for one account
type Service struct {
	store   storage.Storage
	remote  Remote
	bus     *events.Bus
	queue   *mutation.Queue
	manager *clientsync.Manager
	radar   *radar.Radar
	clock   *crdt.LamportClock
	logger  *slog.Logger
	cancel  context.CancelFunc
	group   *errgroup.Group
	cfg     Config
	mu      sync.Mutex // сериализует локальные правки и сохранение часов
}

// Open opens the bbolt replica at dbPath and connects it to the server.
// The account is taken from the replica's stored credentials.
func Open(ctx context.Context, dbPath string, cfg Config, logger *slog.Logger) (*Service, error) {
	store, err := boltdb.New(ctx, dbPath)
	if err != nil {
		return nil, err
	}

	auth, err := store.GetAuth(ctx)
	if err != nil {
		_ = store.Close()
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, fmt.Errorf("replica is not logged in: %w", err)
		}
		return nil, err
	}

	client := clientapi.NewClient(auth.ServerURL)
	client.SetAccessToken(auth.AccessToken)

	cfg.UserID = auth.UserID
	cfg.WorkspaceID = auth.WorkspaceID

	s, err := New(ctx, store, client, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// New wires a replica over an opened store. The Lamport clock is restored
// from the store, or created and persisted on first use.
func New(ctx context.Context, store storage.Storage, remote Remote, cfg Config, logger *slog.Logger) (*Service, error) {
	clock, err := loadClock(ctx, store)
	if err != nil {
		return nil, err
	}

	logger = logger.With("workspace_id", cfg.WorkspaceID, "user_id", cfg.UserID)
	bus := events.NewBus(logger)

	s := &Service{
		store:   store,
		remote:  remote,
		bus:     bus,
		queue:   mutation.NewQueue(store, remote, bus, cfg.Queue, logger),
		manager: clientsync.NewManager(remote, store, bus, cfg.Sync, logger),
		radar:   radar.New(cfg.UserID, store, bus, logger),
		clock:   clock,
		logger:  logger,
		cfg:     cfg,
	}

	if err := s.radar.Init(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func loadClock(ctx context.Context, store storage.MetadataStorage) (*crdt.LamportClock, error) {
	replicaID, counter, err := store.LoadClock(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load clock: %w", err)
	}
	if replicaID != "" {
		return crdt.NewLamportClockWithReplicaID(replicaID, counter), nil
	}

	clock := crdt.NewLamportClock()
	if err := store.SaveClock(ctx, clock.ReplicaID(), clock.Timestamp()); err != nil {
		return nil, fmt.Errorf("failed to save clock: %w", err)
	}
	return clock, nil
}

// Start runs the mutation queue, the synchronizers and the push listener
// in the background until Close.
func (s *Service) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := s.manager.Start(ctx); err != nil {
		cancel()
		s.manager.Close()
		return fmt.Errorf("failed to start synchronizers: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.queue.Run(gctx)
	})
	g.Go(func() error {
		return s.manager.Listen(gctx, s.remote)
	})

	s.cancel = cancel
	s.group = g

	s.logger.Info("Replica started")
	return nil
}

// Bus returns the replica event bus
func (s *Service) Bus() *events.Bus {
	return s.bus
}

// Radar returns the replica radar
func (s *Service) Radar() *radar.Radar {
	return s.radar
}

// Store returns the replica storage
func (s *Service) Store() storage.Storage {
	return s.store
}

// Flush sends pending mutations now
func (s *Service) Flush(ctx context.Context) (mutation.FlushResult, error) {
	return s.queue.Flush(ctx)
}

// Close stops background work, persists the clock and closes the store
func (s *Service) Close() error {
	var errs []error

	if s.cancel != nil {
		s.cancel()
		if err := s.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	s.manager.Close()
	s.radar.Close()

	s.mu.Lock()
	if err := s.store.SaveClock(context.Background(), s.clock.ReplicaID(), s.clock.Timestamp()); err != nil {
		errs = append(errs, fmt.Errorf("failed to save clock: %w", err))
	}
	s.mu.Unlock()

	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("Replica closed")
	return errors.Join(errs...)
}
