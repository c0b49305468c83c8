// Package mutation buffers local mutations durably and ships them to the
// server in compacted batches.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/iudanet/syncspace/internal/client/events"
	"github.com/iudanet/syncspace/internal/client/storage"
	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/pkg/api"
)

// Transport sends mutation batches to the server
type Transport interface {
	SubmitMutations(ctx context.Context, mutations []api.Mutation) (*api.MutationsResponse, error)
}

// Config настройки очереди
type Config struct {
	RetryLimit    int           // отклонений до удаления мутации
	BatchSize     int           // мутаций в одном запросе
	FlushLimit    int           // мутаций, читаемых за один flush
	RetryInterval time.Duration // период повторной отправки отклонённых
	MaxBackoff    time.Duration // потолок паузы после ошибки транспорта
}

// DefaultConfig returns the default queue configuration
func DefaultConfig() Config {
	return Config{
		RetryLimit:    models.DefaultMutationRetryLimit,
		BatchSize:     api.MaxMutationBatch,
		FlushLimit:    1000,
		RetryInterval: 30 * time.Second,
		MaxBackoff:    time.Minute,
	}
}

// FlushResult сводка одного flush
type FlushResult struct {
	Sent         int
	Acknowledged int
	Rejected     int
	Expired      int
	Compacted    int
}

// Queue is the pending mutation queue of one replica.
// At most one flush runs at a time, whether started by Schedule or Flush;
// Schedule calls arriving during a flush collapse into a single follow-up flush.
type Queue struct {
	store     storage.MutationStorage
	transport Transport
	bus       *events.Bus
	logger    *slog.Logger
	backoff   *backoff.ExponentialBackOff
	runCtx    context.Context
	retry     *time.Timer
	slot      chan struct{} // занят, пока идёт flush
	cfg       Config
	wg        sync.WaitGroup
	mu        sync.Mutex
	flushing  bool
	scheduled bool
}

// NewQueue создает очередь мутаций
func NewQueue(store storage.MutationStorage, transport Transport, bus *events.Bus, cfg Config, logger *slog.Logger) *Queue {
	if cfg.BatchSize <= 0 || cfg.BatchSize > api.MaxMutationBatch {
		logger.Warn("Mutation batch size out of range, using server limit",
			"batch_size", cfg.BatchSize,
			"limit", api.MaxMutationBatch,
		)
		cfg.BatchSize = api.MaxMutationBatch
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = cfg.MaxBackoff
	bo.MaxElapsedTime = 0 // повторяем бесконечно
	bo.Reset()

	return &Queue{
		store:     store,
		transport: transport,
		bus:       bus,
		logger:    logger,
		backoff:   bo,
		runCtx:    context.Background(),
		slot:      make(chan struct{}, 1),
		cfg:       cfg,
	}
}

// Enqueue appends the mutation to the durable log and publishes
// change_created. It never touches the network.
func (q *Queue) Enqueue(ctx context.Context, m *models.PendingMutation) error {
	if !m.Kind.Valid() {
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}

	id, err := q.store.AppendMutation(ctx, m)
	if err != nil {
		return fmt.Errorf("failed to enqueue mutation: %w", err)
	}

	mutationsEnqueued.WithLabelValues(string(m.Kind)).Inc()
	q.logger.Debug("Mutation enqueued", "id", id, "kind", m.Kind, "entity_id", m.EntityID)

	q.bus.Publish(events.ChangeCreated{MutationID: id, Kind: m.Kind})
	return nil
}

// Flush loads the oldest pending mutations, compacts and transmits them.
// A flush already in progress is awaited first, so a mutation is never in
// two requests at once. A transport error aborts the flush and leaves the
// unsent mutations intact.
func (q *Queue) Flush(ctx context.Context) (FlushResult, error) {
	select {
	case q.slot <- struct{}{}:
	case <-ctx.Done():
		return FlushResult{}, ctx.Err()
	}
	defer func() { <-q.slot }()

	return q.flush(ctx)
}

func (q *Queue) flush(ctx context.Context) (FlushResult, error) {
	var result FlushResult

	pending, err := q.store.ListMutations(ctx, q.cfg.FlushLimit)
	if err != nil {
		flushRuns.WithLabelValues("storage_error").Inc()
		return result, fmt.Errorf("failed to load pending mutations: %w", err)
	}
	if len(pending) == 0 {
		return result, nil
	}

	kept, dropped := Compact(pending)

	for start := 0; start < len(kept); start += q.cfg.BatchSize {
		end := min(start+q.cfg.BatchSize, len(kept))
		batch := kept[start:end]

		resp, err := q.transport.SubmitMutations(ctx, toAPI(batch))
		if err != nil {
			flushRuns.WithLabelValues("transport_error").Inc()
			return result, fmt.Errorf("failed to submit mutations: %w", err)
		}
		result.Sent += len(batch)

		if err := q.settle(ctx, batch, resp, &result); err != nil {
			flushRuns.WithLabelValues("storage_error").Inc()
			return result, err
		}
	}

	// Сжатые мутации удаляются только после flush без ошибок транспорта
	if len(dropped) > 0 {
		if err := q.store.DeleteMutations(ctx, ids(dropped)); err != nil {
			flushRuns.WithLabelValues("storage_error").Inc()
			return result, fmt.Errorf("failed to delete compacted mutations: %w", err)
		}
		result.Compacted = len(dropped)
		mutationOutcomes.WithLabelValues("compacted").Add(float64(len(dropped)))
	}

	flushRuns.WithLabelValues("ok").Inc()
	q.logger.Debug("Mutation queue flushed",
		"sent", result.Sent,
		"acknowledged", result.Acknowledged,
		"rejected", result.Rejected,
		"expired", result.Expired,
		"compacted", result.Compacted,
	)

	return result, nil
}

// settle применяет ответ сервера к журналу: подтверждённые удаляются,
// отклонённые получают retry, исчерпавшие лимит удаляются.
// Мутация без результата в ответе считается отклонённой.
func (q *Queue) settle(ctx context.Context, batch []*models.PendingMutation, resp *api.MutationsResponse, result *FlushResult) error {
	statuses := make(map[uint64]api.MutationResult, len(resp.Results))
	for _, r := range resp.Results {
		statuses[r.ID] = r
	}

	var acked, rejected []uint64
	for _, m := range batch {
		if r, ok := statuses[m.ID]; ok && r.Status == api.MutationSuccess {
			acked = append(acked, m.ID)
			continue
		}
		rejected = append(rejected, m.ID)
	}

	if err := q.store.DeleteMutations(ctx, acked); err != nil {
		return fmt.Errorf("failed to delete acknowledged mutations: %w", err)
	}
	result.Acknowledged += len(acked)
	mutationOutcomes.WithLabelValues("acknowledged").Add(float64(len(acked)))

	if len(rejected) == 0 {
		return nil
	}

	updated, err := q.store.IncrementRetries(ctx, rejected)
	if err != nil {
		return fmt.Errorf("failed to record rejected mutations: %w", err)
	}
	result.Rejected += len(rejected)
	mutationOutcomes.WithLabelValues("rejected").Add(float64(len(rejected)))

	var expired []uint64
	for _, m := range updated {
		if m.RetryCount < q.cfg.RetryLimit {
			continue
		}
		// Правка теряется без локального отката
		q.logger.Warn("Dropping mutation after retry limit",
			"id", m.ID,
			"kind", m.Kind,
			"entity_id", m.EntityID,
			"retries", m.RetryCount,
			"reason", statuses[m.ID].Error,
		)
		expired = append(expired, m.ID)
	}

	if err := q.store.DeleteMutations(ctx, expired); err != nil {
		return fmt.Errorf("failed to delete expired mutations: %w", err)
	}
	result.Expired += len(expired)
	mutationOutcomes.WithLabelValues("expired").Add(float64(len(expired)))

	return nil
}

// Schedule starts a flush in the background, or marks one as pending if a
// flush is already running.
func (q *Queue) Schedule() {
	q.mu.Lock()
	if q.runCtx.Err() != nil {
		q.mu.Unlock()
		return
	}
	if q.flushing {
		q.scheduled = true
		q.mu.Unlock()
		return
	}
	q.flushing = true
	ctx := q.runCtx
	q.wg.Add(1)
	q.mu.Unlock()

	go q.flushLoop(ctx)
}

// flushLoop выполняет flush и повторяет его, пока выставлен флаг scheduled
func (q *Queue) flushLoop(ctx context.Context) {
	defer q.wg.Done()

	for {
		_, err := q.Flush(ctx)
		q.afterFlush(ctx, err)

		q.mu.Lock()
		if !q.scheduled || ctx.Err() != nil {
			q.flushing = false
			q.scheduled = false
			q.mu.Unlock()
			return
		}
		q.scheduled = false
		q.mu.Unlock()
	}
}

// afterFlush планирует повтор с экспоненциальной паузой после ошибки
func (q *Queue) afterFlush(ctx context.Context, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err == nil {
		q.backoff.Reset()
		return
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return
	}

	delay := q.backoff.NextBackOff()
	q.logger.Warn("Mutation flush failed, will retry", "error", err, "retry_in", delay)

	if q.retry != nil {
		q.retry.Stop()
	}
	q.retry = time.AfterFunc(delay, func() {
		if ctx.Err() == nil {
			q.Schedule()
		}
	})
}

// Run flushes on every change_created event and periodically to resend
// rejected mutations, until ctx is cancelled. In-flight flushes are awaited.
func (q *Queue) Run(ctx context.Context) error {
	q.mu.Lock()
	q.runCtx = ctx
	q.mu.Unlock()

	unsubscribe := q.bus.Subscribe(func(events.Event) {
		q.Schedule()
	}, events.TypeChangeCreated)
	defer unsubscribe()

	// Отправляем то, что осталось с прошлого запуска
	q.Schedule()

	ticker := time.NewTicker(q.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			unsubscribe()
			q.mu.Lock()
			if q.retry != nil {
				q.retry.Stop()
			}
			q.mu.Unlock()
			q.wg.Wait()
			return nil
		case <-ticker.C:
			q.Schedule()
		}
	}
}

func toAPI(batch []*models.PendingMutation) []api.Mutation {
	out := make([]api.Mutation, 0, len(batch))
	for _, m := range batch {
		out = append(out, api.Mutation{
			ID:        m.ID,
			Kind:      string(m.Kind),
			EntityID:  m.EntityID,
			RootID:    m.RootID,
			Payload:   m.Payload,
			CreatedAt: m.CreatedAt,
		})
	}
	return out
}

func ids(mutations []*models.PendingMutation) []uint64 {
	out := make([]uint64, 0, len(mutations))
	for _, m := range mutations {
		out = append(out, m.ID)
	}
	return out
}
