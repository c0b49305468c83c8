package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/iudanet/syncspace/internal/crdt"
	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/storage"
	"github.com/iudanet/syncspace/pkg/api"
)

// rowScanner сканирует одну строку потока и возвращает сущность и её ревизию
type rowScanner func(rows *sql.Rows) (any, int64, error)

// streamQuery описывает выборку одного потока
type streamQuery struct {
	scan  rowScanner
	query string
	args  []any
}

// Pull returns up to Limit items with position > Cursor ordered by position
func (s *Storage) Pull(ctx context.Context, q storage.PullQuery) ([]api.StreamItem, bool, error) {
	sq, err := buildStreamQuery(q)
	if err != nil {
		return nil, false, err
	}

	// Запрашиваем на одну строку больше, чтобы узнать, есть ли продолжение
	args := append(sq.args, q.Cursor, q.Limit+1)
	rows, err := s.db.QueryContext(ctx, sq.query+` AND revision > ? ORDER BY revision ASC LIMIT ?`, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query stream %s: %w", q.Stream, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	items := make([]api.StreamItem, 0, q.Limit)
	hasMore := false

	for rows.Next() {
		if len(items) == q.Limit {
			hasMore = true
			break
		}

		entity, revision, err := sq.scan(rows)
		if err != nil {
			return nil, false, fmt.Errorf("failed to scan stream %s: %w", q.Stream, err)
		}

		data, err := json.Marshal(entity)
		if err != nil {
			return nil, false, fmt.Errorf("failed to marshal stream %s item: %w", q.Stream, err)
		}

		items = append(items, api.StreamItem{Position: revision, Data: data})
	}

	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("rows iteration error: %w", err)
	}

	return items, hasMore, nil
}

func buildStreamQuery(q storage.PullQuery) (streamQuery, error) {
	switch q.Stream {
	case models.StreamUsers:
		return streamQuery{
			query: `SELECT id, workspace_id, name, email, role, revision, created_at, updated_at
				FROM users WHERE workspace_id = ?`,
			args: []any{q.WorkspaceID},
			scan: scanUser,
		}, nil
	case models.StreamCollaborations:
		return streamQuery{
			query: `SELECT node_id, collaborator_id, workspace_id, role, created_at, deleted_at, revision
				FROM collaborations WHERE collaborator_id = ? AND workspace_id = ?`,
			args: []any{q.UserID, q.WorkspaceID},
			scan: scanCollaboration,
		}, nil
	case models.StreamNodes:
		return streamQuery{
			query: `SELECT id, workspace_id, root_id, parent_id, type, state, revision,
					created_at, created_by, updated_at, updated_by
				FROM nodes WHERE root_id = ?`,
			args: []any{q.RootID},
			scan: scanNode,
		}, nil
	case models.StreamNodeInteractions:
		return streamQuery{
			query: `SELECT node_id, collaborator_id, root_id, workspace_id,
					first_seen_at, last_seen_at, first_opened_at, last_opened_at, revision
				FROM node_interactions WHERE root_id = ?`,
			args: []any{q.RootID},
			scan: scanInteraction,
		}, nil
	case models.StreamNodeReactions:
		return streamQuery{
			query: `SELECT node_id, collaborator_id, reaction, root_id, workspace_id,
					created_at, deleted_at, revision
				FROM node_reactions WHERE root_id = ?`,
			args: []any{q.RootID},
			scan: scanReaction,
		}, nil
	case models.StreamNodeTombstones:
		return streamQuery{
			query: `SELECT id, root_id, workspace_id, deleted_at, deleted_by, revision
				FROM node_tombstones WHERE root_id = ?`,
			args: []any{q.RootID},
			scan: scanTombstone,
		}, nil
	case models.StreamFiles:
		return streamQuery{
			query: `SELECT id, root_id, parent_id, workspace_id, name, mime_type, size, status,
					created_at, created_by, revision
				FROM files WHERE root_id = ?`,
			args: []any{q.RootID},
			scan: scanFile,
		}, nil
	case models.StreamDocumentUpdates:
		log, _ := logFor(models.UpdateKindDocument)
		return streamQuery{
			query: `SELECT ` + log.columns() + ` FROM ` + log.table + ` WHERE root_id = ?`,
			args:  []any{q.RootID},
			scan: func(rows *sql.Rows) (any, int64, error) {
				fragment, err := scanUpdateRow(rows)
				if err != nil {
					return nil, 0, err
				}
				return fragment, fragment.Revision, nil
			},
		}, nil
	}

	return streamQuery{}, fmt.Errorf("%w: %s", storage.ErrUnknownStream, q.Stream)
}

// GetCollaboration returns the user's active collaboration on a root
func (s *Storage) GetCollaboration(ctx context.Context, rootID, userID string) (*models.Collaboration, error) {
	return getCollaboration(ctx, s.db, rootID, userID)
}

// queryer общий интерфейс *sql.DB и *sql.Tx
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func getCollaboration(ctx context.Context, q queryer, rootID, userID string) (*models.Collaboration, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT node_id, collaborator_id, workspace_id, role, created_at, deleted_at, revision
		FROM collaborations
		WHERE node_id = ? AND collaborator_id = ?
	`, rootID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query collaboration: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("rows iteration error: %w", err)
		}
		return nil, storage.ErrForbidden
	}

	entity, _, err := scanCollaboration(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan collaboration: %w", err)
	}

	collaboration := entity.(*models.Collaboration)
	if !collaboration.Active() {
		return nil, storage.ErrForbidden
	}

	return collaboration, nil
}

func scanUser(rows *sql.Rows) (any, int64, error) {
	user := &models.WorkspaceUser{}
	var createdAt, updatedAt int64
	err := rows.Scan(&user.ID, &user.WorkspaceID, &user.Name, &user.Email, &user.Role,
		&user.Revision, &createdAt, &updatedAt)
	if err != nil {
		return nil, 0, err
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return user, user.Revision, nil
}

func scanCollaboration(rows *sql.Rows) (any, int64, error) {
	c := &models.Collaboration{}
	var createdAt int64
	var deletedAt sql.NullInt64
	err := rows.Scan(&c.NodeID, &c.CollaboratorID, &c.WorkspaceID, &c.Role,
		&createdAt, &deletedAt, &c.Revision)
	if err != nil {
		return nil, 0, err
	}
	c.CreatedAt = fromMillis(createdAt)
	c.DeletedAt = fromNullMillis(deletedAt)
	return c, c.Revision, nil
}

func scanNode(rows *sql.Rows) (any, int64, error) {
	node := &models.Node{}
	var createdAt, updatedAt int64
	err := rows.Scan(&node.ID, &node.WorkspaceID, &node.RootID, &node.ParentID, &node.Type,
		&node.State, &node.Revision, &createdAt, &node.CreatedBy, &updatedAt, &node.UpdatedBy)
	if err != nil {
		return nil, 0, err
	}
	node.CreatedAt = fromMillis(createdAt)
	node.UpdatedAt = fromMillis(updatedAt)

	doc, err := crdt.Decode(node.State)
	if err != nil {
		return nil, 0, fmt.Errorf("node %s: %w", node.ID, err)
	}
	node.Attributes = doc.Attributes()

	return node, node.Revision, nil
}

func scanInteraction(rows *sql.Rows) (any, int64, error) {
	i := &models.NodeInteraction{}
	var firstSeen, lastSeen, firstOpened, lastOpened sql.NullInt64
	err := rows.Scan(&i.NodeID, &i.CollaboratorID, &i.RootID, &i.WorkspaceID,
		&firstSeen, &lastSeen, &firstOpened, &lastOpened, &i.Revision)
	if err != nil {
		return nil, 0, err
	}
	i.FirstSeenAt = fromNullMillis(firstSeen)
	i.LastSeenAt = fromNullMillis(lastSeen)
	i.FirstOpenedAt = fromNullMillis(firstOpened)
	i.LastOpenedAt = fromNullMillis(lastOpened)
	return i, i.Revision, nil
}

func scanReaction(rows *sql.Rows) (any, int64, error) {
	r := &models.NodeReaction{}
	var createdAt int64
	var deletedAt sql.NullInt64
	err := rows.Scan(&r.NodeID, &r.CollaboratorID, &r.Reaction, &r.RootID, &r.WorkspaceID,
		&createdAt, &deletedAt, &r.Revision)
	if err != nil {
		return nil, 0, err
	}
	r.CreatedAt = fromMillis(createdAt)
	r.DeletedAt = fromNullMillis(deletedAt)
	return r, r.Revision, nil
}

func scanTombstone(rows *sql.Rows) (any, int64, error) {
	t := &models.NodeTombstone{}
	var deletedAt int64
	err := rows.Scan(&t.ID, &t.RootID, &t.WorkspaceID, &deletedAt, &t.DeletedBy, &t.Revision)
	if err != nil {
		return nil, 0, err
	}
	t.DeletedAt = fromMillis(deletedAt)
	return t, t.Revision, nil
}

func scanFile(rows *sql.Rows) (any, int64, error) {
	f := &models.File{}
	var createdAt int64
	err := rows.Scan(&f.ID, &f.RootID, &f.ParentID, &f.WorkspaceID, &f.Name, &f.MimeType,
		&f.Size, &f.Status, &createdAt, &f.CreatedBy, &f.Revision)
	if err != nil {
		return nil, 0, err
	}
	f.CreatedAt = fromMillis(createdAt)
	return f, f.Revision, nil
}
