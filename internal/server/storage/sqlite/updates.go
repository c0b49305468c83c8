package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/storage"
)

// updateLog описывает таблицу журнала обновлений
type updateLog struct {
	table  string
	entity string
}

func logFor(kind models.UpdateKind) (updateLog, error) {
	switch kind {
	case models.UpdateKindNode:
		return updateLog{table: "node_updates", entity: "node_id"}, nil
	case models.UpdateKindDocument:
		return updateLog{table: "document_updates", entity: "document_id"}, nil
	}
	return updateLog{}, fmt.Errorf("%w: %s", storage.ErrUnknownUpdateKind, kind)
}

func (l updateLog) columns() string {
	return "id, " + l.entity + ", root_id, workspace_id, revision, data, created_at, created_by, merged_updates"
}

// AppendUpdate appends a fragment and assigns it the next revision
func (s *Storage) AppendUpdate(ctx context.Context, kind models.UpdateKind, fragment *models.UpdateFragment) error {
	log, err := logFor(kind)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertUpdate(ctx, tx, log, fragment)
	})
}

// insertUpdate вставляет фрагмент в транзакции, выдавая ID и ревизию
func insertUpdate(ctx context.Context, tx *sql.Tx, log updateLog, fragment *models.UpdateFragment) error {
	if fragment.ID == "" {
		fragment.ID = ulid.Make().String()
	}
	if fragment.CreatedAt.IsZero() {
		fragment.CreatedAt = time.Now().UTC()
	}

	revision, err := nextRevision(ctx, tx)
	if err != nil {
		return err
	}
	fragment.Revision = revision

	merged, err := encodeMerged(fragment.MergedFragments)
	if err != nil {
		return err
	}

	query := `INSERT INTO ` + log.table + ` (` + log.columns() + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, query,
		fragment.ID,
		fragment.EntityID,
		fragment.RootID,
		fragment.WorkspaceID,
		fragment.Revision,
		fragment.Data,
		toMillis(fragment.CreatedAt),
		fragment.CreatedBy,
		merged,
	)
	if err != nil {
		return fmt.Errorf("failed to insert %s fragment: %w", log.table, err)
	}

	return nil
}

// ListUpdates returns all fragments of an entity ordered by revision
func (s *Storage) ListUpdates(ctx context.Context, kind models.UpdateKind, entityID string) ([]*models.UpdateFragment, error) {
	log, err := logFor(kind)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + log.columns() + ` FROM ` + log.table + ` WHERE ` + log.entity + ` = ? ORDER BY revision ASC`
	rows, err := s.db.QueryContext(ctx, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query updates: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return scanUpdates(rows)
}

// ListUpdatesForMerge returns up to limit fragments with revision > afterRevision
// created before createdBefore, ordered by revision
func (s *Storage) ListUpdatesForMerge(ctx context.Context, kind models.UpdateKind, afterRevision int64, createdBefore time.Time, limit int) ([]*models.UpdateFragment, error) {
	log, err := logFor(kind)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + log.columns() + `
		FROM ` + log.table + `
		WHERE revision > ? AND created_at < ?
		ORDER BY revision ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, afterRevision, toMillis(createdBefore), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query merge candidates: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	return scanUpdates(rows)
}

// GetPrecedingUpdate returns the latest fragment of the entity with revision < beforeRevision
// created at or after notBefore
func (s *Storage) GetPrecedingUpdate(ctx context.Context, kind models.UpdateKind, entityID string, beforeRevision int64, notBefore time.Time) (*models.UpdateFragment, error) {
	log, err := logFor(kind)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT ` + log.columns() + `
		FROM ` + log.table + `
		WHERE ` + log.entity + ` = ? AND revision < ? AND created_at >= ?
		ORDER BY revision DESC
		LIMIT 1
	`
	rows, err := s.db.QueryContext(ctx, query, entityID, beforeRevision, toMillis(notBefore))
	if err != nil {
		return nil, fmt.Errorf("failed to query preceding update: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	fragments, err := scanUpdates(rows)
	if err != nil {
		return nil, err
	}
	if len(fragments) == 0 {
		return nil, storage.ErrFragmentNotFound
	}

	return fragments[0], nil
}

// MergeUpdates replaces survivor data and audit list and deletes the merged fragments.
// The survivor keeps its id and revision; the update is conditional on both, so a
// concurrent change of the same row aborts the whole merge.
func (s *Storage) MergeUpdates(ctx context.Context, kind models.UpdateKind, survivor *models.UpdateFragment, deleteIDs []string) error {
	log, err := logFor(kind)
	if err != nil {
		return err
	}

	merged, err := encodeMerged(survivor.MergedFragments)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE `+log.table+` SET data = ?, merged_updates = ? WHERE id = ? AND revision = ?`,
			survivor.Data, merged, survivor.ID, survivor.Revision,
		)
		if err != nil {
			return fmt.Errorf("failed to update survivor: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil || n != 1 {
			return storage.ErrMergeConflict
		}

		if len(deleteIDs) == 0 {
			return nil
		}

		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(deleteIDs)), ", ")
		args := make([]any, 0, len(deleteIDs))
		for _, id := range deleteIDs {
			args = append(args, id)
		}

		result, err = tx.ExecContext(ctx,
			`DELETE FROM `+log.table+` WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return fmt.Errorf("failed to delete merged fragments: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil || n != int64(len(deleteIDs)) {
			return storage.ErrMergeConflict
		}

		return nil
	})
}

// scanUpdates is a helper function to scan multiple fragments from rows
func scanUpdates(rows *sql.Rows) ([]*models.UpdateFragment, error) {
	var fragments []*models.UpdateFragment

	for rows.Next() {
		fragment, err := scanUpdateRow(rows)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, fragment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return fragments, nil
}

// scanUpdateRow сканирует один фрагмент
func scanUpdateRow(rows *sql.Rows) (*models.UpdateFragment, error) {
	fragment := &models.UpdateFragment{}
	var createdAt int64
	var merged sql.NullString

	err := rows.Scan(
		&fragment.ID,
		&fragment.EntityID,
		&fragment.RootID,
		&fragment.WorkspaceID,
		&fragment.Revision,
		&fragment.Data,
		&createdAt,
		&fragment.CreatedBy,
		&merged,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan fragment: %w", err)
	}

	fragment.CreatedAt = fromMillis(createdAt)
	if merged.Valid && merged.String != "" {
		if err := json.Unmarshal([]byte(merged.String), &fragment.MergedFragments); err != nil {
			return nil, fmt.Errorf("failed to decode merged fragments of %s: %w", fragment.ID, err)
		}
	}

	return fragment, nil
}

func encodeMerged(merged []models.MergedFragment) (sql.NullString, error) {
	if len(merged) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode merged fragments: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// isNoRows reports whether err is sql.ErrNoRows
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
