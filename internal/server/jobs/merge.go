// Package jobs contains periodic background jobs of the server.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/iudanet/syncspace/internal/crdt"
	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/storage"
)

// BackReference limits how far back the node merge looks for the fragment
// preceding the current batch.
const BackReference = time.Hour

// Config настройки задачи слияния
type Config struct {
	Interval     time.Duration // Interval период запуска
	CutoffWindow time.Duration // CutoffWindow фрагменты моложе now-CutoffWindow не трогаются
	MergeWindow  time.Duration // MergeWindow максимальный разрыв между соседними фрагментами группы
	BatchSize    int           // BatchSize размер страницы журнала за один проход
}

// DefaultConfig returns the default merge job settings
func DefaultConfig() Config {
	return Config{
		Interval:     60 * time.Second,
		CutoffWindow: 600 * time.Second,
		MergeWindow:  30 * time.Second,
		BatchSize:    500,
	}
}

// Result описывает итог одного прохода
type Result struct {
	Fragments int   // Fragments прочитано фрагментов
	Groups    int   // Groups групп из 2+ фрагментов
	Merged    int   // Merged удалено фрагментов
	Failed    int   // Failed групп, пропущенных из-за ошибки
	Cursor    int64 // Cursor курсор после прохода
}

// MergeJob periodically collapses old update fragments of the node and document
// logs into one fragment per time window, keeping an audit of merged fragments.
type MergeJob struct {
	store  storage.UpdateLogStorage
	merger crdt.Merger
	logger *slog.Logger
	now    func() time.Time
	cfg    Config
}

// Option настраивает MergeJob
type Option func(*MergeJob)

// WithNow overrides the clock used to compute the cutoff
func WithNow(now func() time.Time) Option {
	return func(j *MergeJob) {
		j.now = now
	}
}

// WithMerger overrides the fragment merge function
func WithMerger(m crdt.Merger) Option {
	return func(j *MergeJob) {
		j.merger = m
	}
}

// NewMergeJob creates a merge job
func NewMergeJob(store storage.UpdateLogStorage, cfg Config, logger *slog.Logger, opts ...Option) *MergeJob {
	j := &MergeJob{
		store:  store,
		merger: crdt.LWWMerger{},
		logger: logger,
		now:    time.Now,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// cursorKey ключ счётчика курсора для журнала
func cursorKey(kind models.UpdateKind) string {
	return "merge_cursor." + string(kind)
}

// Run запускает проходы по обоим журналам каждые Interval до отмены ctx
func (j *MergeJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.cfg.Interval)
	defer ticker.Stop()

	j.logger.Info("Merge job started",
		"interval", j.cfg.Interval,
		"cutoff_window", j.cfg.CutoffWindow,
		"merge_window", j.cfg.MergeWindow,
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("Merge job stopped")
			return nil
		case <-ticker.C:
			for _, kind := range []models.UpdateKind{models.UpdateKindNode, models.UpdateKindDocument} {
				if _, err := j.RunOnce(ctx, kind); err != nil {
					j.logger.Error("Merge pass failed", "kind", kind, "error", err)
				}
			}
		}
	}
}

// RunOnce performs one pass over a log starting from the persisted cursor.
// Per-group failures are logged and skipped; the cursor still advances to the
// highest revision read in the batch.
func (j *MergeJob) RunOnce(ctx context.Context, kind models.UpdateKind) (Result, error) {
	start := time.Now()
	defer func() {
		mergeDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	}()

	result, err := j.runOnce(ctx, kind)
	status := "success"
	if err != nil {
		status = "error"
	}
	mergeRuns.WithLabelValues(string(kind), status).Inc()

	return result, err
}

func (j *MergeJob) runOnce(ctx context.Context, kind models.UpdateKind) (Result, error) {
	var result Result

	cursor, err := j.store.GetCounter(ctx, cursorKey(kind))
	if err != nil {
		return result, fmt.Errorf("failed to load merge cursor: %w", err)
	}
	result.Cursor = cursor

	cutoff := j.now().Add(-j.cfg.CutoffWindow)
	batch, err := j.store.ListUpdatesForMerge(ctx, kind, cursor, cutoff, j.cfg.BatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to list fragments: %w", err)
	}
	if len(batch) == 0 {
		return result, nil
	}
	result.Fragments = len(batch)

	maxRevision := cursor
	entities := make([]string, 0)
	byEntity := make(map[string][]*models.UpdateFragment)
	for _, f := range batch {
		if f.Revision > maxRevision {
			maxRevision = f.Revision
		}
		if _, ok := byEntity[f.EntityID]; !ok {
			entities = append(entities, f.EntityID)
		}
		byEntity[f.EntityID] = append(byEntity[f.EntityID], f)
	}

	for _, entityID := range entities {
		if err := ctx.Err(); err != nil {
			// Курсор не двигаем: необработанные сущности будут взяты в следующий раз
			return result, err
		}

		fragments := byEntity[entityID]
		if kind == models.UpdateKindNode {
			fragments, err = j.withPreceding(ctx, kind, fragments)
			if err != nil {
				result.Failed++
				mergeFailures.WithLabelValues(string(kind)).Inc()
				j.logger.Error("Failed to load preceding fragment",
					"kind", kind, "entity_id", entityID, "error", err)
				continue
			}
		}

		for _, group := range j.groupByWindow(fragments) {
			if len(group) < 2 {
				continue
			}
			result.Groups++

			if err := j.mergeGroup(ctx, kind, group); err != nil {
				result.Failed++
				mergeFailures.WithLabelValues(string(kind)).Inc()
				j.logger.Error("Failed to merge fragments",
					"kind", kind, "entity_id", entityID, "fragments", len(group), "error", err)
				continue
			}

			result.Merged += len(group) - 1
			mergedFragments.WithLabelValues(string(kind)).Add(float64(len(group) - 1))
		}
	}

	if err := j.store.SetCounter(ctx, cursorKey(kind), maxRevision); err != nil {
		return result, fmt.Errorf("failed to save merge cursor: %w", err)
	}
	result.Cursor = maxRevision

	if result.Merged > 0 || result.Failed > 0 {
		j.logger.Info("Merge pass completed",
			"kind", kind,
			"fragments", result.Fragments,
			"groups", result.Groups,
			"merged", result.Merged,
			"failed", result.Failed,
			"cursor", result.Cursor,
		)
	}

	return result, nil
}

// withPreceding добавляет фрагмент сущности, непосредственно предшествующий батчу,
// чтобы группа не разрывалась на границе батча
func (j *MergeJob) withPreceding(ctx context.Context, kind models.UpdateKind, fragments []*models.UpdateFragment) ([]*models.UpdateFragment, error) {
	first := fragments[0]
	preceding, err := j.store.GetPrecedingUpdate(ctx, kind, first.EntityID, first.Revision, first.CreatedAt.Add(-BackReference))
	if err != nil {
		if errors.Is(err, storage.ErrFragmentNotFound) {
			return fragments, nil
		}
		return nil, err
	}

	return append([]*models.UpdateFragment{preceding}, fragments...), nil
}

// groupByWindow сортирует фрагменты по времени создания и делит их на группы,
// в которых соседние фрагменты отстоят не более чем на MergeWindow
func (j *MergeJob) groupByWindow(fragments []*models.UpdateFragment) [][]*models.UpdateFragment {
	sorted := make([]*models.UpdateFragment, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].CreatedAt.Equal(sorted[b].CreatedAt) {
			return sorted[a].Revision < sorted[b].Revision
		}
		return sorted[a].CreatedAt.Before(sorted[b].CreatedAt)
	})

	var groups [][]*models.UpdateFragment
	var current []*models.UpdateFragment
	for _, f := range sorted {
		if len(current) > 0 && f.CreatedAt.Sub(current[len(current)-1].CreatedAt) > j.cfg.MergeWindow {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, f)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	return groups
}

// mergeGroup сливает группу в последний по ревизии фрагмент и удаляет остальные
func (j *MergeJob) mergeGroup(ctx context.Context, kind models.UpdateKind, group []*models.UpdateFragment) error {
	ordered := make([]*models.UpdateFragment, len(group))
	copy(ordered, group)
	sort.Slice(ordered, func(a, b int) bool {
		return ordered[a].Revision < ordered[b].Revision
	})

	data := make([][]byte, 0, len(ordered))
	for _, f := range ordered {
		data = append(data, f.Data)
	}

	merged, err := j.merger.Merge(data...)
	if err != nil {
		return fmt.Errorf("crdt merge failed: %w", err)
	}

	last := ordered[len(ordered)-1]
	survivor := *last
	survivor.Data = merged
	survivor.MergedFragments = auditTrail(ordered)

	deleteIDs := make([]string, 0, len(ordered)-1)
	for _, f := range ordered[:len(ordered)-1] {
		deleteIDs = append(deleteIDs, f.ID)
	}

	return j.store.MergeUpdates(ctx, kind, &survivor, deleteIDs)
}

// auditTrail собирает журнал слияния выжившего фрагмента: собственные записи
// каждого фрагмента группы и сами удаляемые фрагменты, каждый ровно один раз
func auditTrail(ordered []*models.UpdateFragment) []models.MergedFragment {
	last := len(ordered) - 1
	seen := make(map[string]struct{})
	var trail []models.MergedFragment

	add := func(entry models.MergedFragment) {
		if _, ok := seen[entry.ID]; ok {
			return
		}
		seen[entry.ID] = struct{}{}
		trail = append(trail, entry)
	}

	for i, f := range ordered {
		for _, entry := range f.MergedFragments {
			add(entry)
		}
		if i != last {
			add(f.AuditEntry())
		}
	}

	sort.SliceStable(trail, func(a, b int) bool {
		return trail[a].CreatedAt.Before(trail[b].CreatedAt)
	})

	return trail
}
