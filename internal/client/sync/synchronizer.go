// Package sync pulls the authoritative server streams into the local replica.
// One Synchronizer tails one stream through a persisted cursor; the Manager
// keeps a set of them per collaboration root.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/iudanet/syncspace/internal/client/storage"
	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/pkg/api"
)

// State состояние синхронизатора
type State int

// Состояния синхронизатора
const (
	StateUninitialized State = iota
	StateInitialized
	StatePolling
	StateApplying
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StatePolling:
		return "polling"
	case StateApplying:
		return "applying"
	case StateDestroyed:
		return "destroyed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrDestroyed возвращается операциями уничтоженного синхронизатора
var ErrDestroyed = errors.New("synchronizer destroyed")

// Puller fetches stream batches from the server
type Puller interface {
	Pull(ctx context.Context, req api.PullRequest) (*api.PullResponse, error)
}

// Config настройки синхронизатора
type Config struct {
	BatchSize    int           // записей в одном запросе
	PollInterval time.Duration // ожидание после пустой пачки
	MaxBackoff   time.Duration // потолок паузы после ошибки
}

// DefaultConfig returns the default synchronizer configuration
func DefaultConfig() Config {
	return Config{
		BatchSize:    100,
		PollInterval: 5 * time.Second,
		MaxBackoff:   time.Minute,
	}
}

// Synchronizer tails one stream. The cursor is persisted only after a whole
// batch applied, so a failed batch is pulled again from the same position.
type Synchronizer struct {
	puller  Puller
	cursors storage.CursorStorage
	apply   ItemHandler
	logger  *slog.Logger
	cancel  context.CancelFunc
	wake    chan struct{}
	done    chan struct{}
	stream  models.Stream
	rootID  string
	key     string
	cfg     Config
	cursor  int64
	mu      gosync.Mutex
	state   State
}

// NewSynchronizer создает синхронизатор потока; rootID пуст для глобальных потоков
func NewSynchronizer(stream models.Stream, rootID string, puller Puller, cursors storage.CursorStorage, apply ItemHandler, cfg Config, logger *slog.Logger) *Synchronizer {
	key := models.StreamKey(stream, rootID)
	return &Synchronizer{
		puller:  puller,
		cursors: cursors,
		apply:   apply,
		logger:  logger.With("stream_key", key),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stream:  stream,
		rootID:  rootID,
		key:     key,
		cfg:     cfg,
	}
}

// Key returns the stream key of the synchronizer
func (s *Synchronizer) Key() string {
	return s.key
}

// State returns the current state
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cursor returns the last committed position
func (s *Synchronizer) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Done is closed when the pull loop has exited
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

// Init loads the persisted cursor; a stream never pulled starts at 0
func (s *Synchronizer) Init(ctx context.Context) error {
	position, err := s.cursors.GetCursor(ctx, s.key)
	if err != nil {
		return fmt.Errorf("failed to load cursor %s: %w", s.key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUninitialized {
		return fmt.Errorf("synchronizer %s: init in state %s", s.key, s.state)
	}
	s.cursor = position
	s.state = StateInitialized
	return nil
}

// Start launches the pull loop. It runs until ctx is cancelled or Destroy is called.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitialized {
		return fmt.Errorf("synchronizer %s: start in state %s", s.key, s.state)
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.state = StatePolling
	activeSynchronizers.Inc()
	go s.run(ctx)
	return nil
}

// Wake cuts the current poll wait short
func (s *Synchronizer) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Destroy cancels the in-flight pull or apply without waiting for it.
// After Destroy returns no cursor write happens.
func (s *Synchronizer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return
	}
	started := s.cancel != nil
	s.state = StateDestroyed
	if started {
		s.cancel()
	} else {
		close(s.done)
	}
}

func (s *Synchronizer) run(ctx context.Context) {
	defer close(s.done)
	defer activeSynchronizers.Dec()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = min(500*time.Millisecond, s.cfg.MaxBackoff)
	bo.MaxInterval = s.cfg.MaxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	for ctx.Err() == nil {
		hasMore, err := s.syncOnce(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrDestroyed) {
				return
			}
			delay := bo.NextBackOff()
			s.logger.Warn("Synchronization failed, will retry", "error", err, "retry_in", delay)
			if !sleep(ctx, delay, nil) {
				return
			}
			continue
		}
		bo.Reset()

		if hasMore {
			continue
		}
		if !sleep(ctx, s.cfg.PollInterval, s.wake) {
			return
		}
	}
}

// syncOnce pulls one batch after the cursor, applies it and commits the
// cursor. Returns whether more data is immediately available.
func (s *Synchronizer) syncOnce(ctx context.Context) (bool, error) {
	if !s.setState(StatePolling) {
		return false, ErrDestroyed
	}

	cursor := s.Cursor()
	resp, err := s.puller.Pull(ctx, api.PullRequest{
		Stream: string(s.stream),
		RootID: s.rootID,
		Cursor: cursor,
		Limit:  s.cfg.BatchSize,
	})
	if err != nil {
		syncFailures.WithLabelValues(string(s.stream), "pull").Inc()
		return false, fmt.Errorf("pull failed: %w", err)
	}
	if len(resp.Items) == 0 {
		return false, nil
	}

	if !s.setState(StateApplying) {
		return false, ErrDestroyed
	}

	next := cursor
	for _, item := range resp.Items {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := s.apply(ctx, item.Data); err != nil {
			syncFailures.WithLabelValues(string(s.stream), "apply").Inc()
			return false, fmt.Errorf("failed to apply position %d: %w", item.Position, err)
		}
		next = max(next, item.Position)
	}
	itemsApplied.WithLabelValues(string(s.stream)).Add(float64(len(resp.Items)))

	if err := s.commit(ctx, max(next, resp.Cursor)); err != nil {
		if !errors.Is(err, ErrDestroyed) {
			syncFailures.WithLabelValues(string(s.stream), "cursor").Inc()
		}
		return false, err
	}
	batchesApplied.WithLabelValues(string(s.stream)).Inc()

	s.logger.Debug("Stream batch applied", "items", len(resp.Items), "cursor", s.Cursor(), "has_more", resp.HasMore)
	return resp.HasMore, nil
}

// commit persists the cursor unless the synchronizer was destroyed.
// The cursor never moves backwards.
func (s *Synchronizer) commit(ctx context.Context, position int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return ErrDestroyed
	}
	if position <= s.cursor {
		return nil
	}
	if err := s.cursors.SaveCursor(ctx, s.key, position); err != nil {
		return fmt.Errorf("failed to save cursor %s: %w", s.key, err)
	}
	s.cursor = position
	return nil
}

// setState переключает состояние, если синхронизатор не уничтожен
func (s *Synchronizer) setState(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateDestroyed {
		return false
	}
	s.state = state
	return true
}

// sleep ждёт d, пробуждения или отмены; false означает отмену
func sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-wake:
		return true
	}
}
