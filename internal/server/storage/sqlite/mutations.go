package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/syncspace/internal/crdt"
	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/storage"
)

// nodeRow минимальное состояние узла, нужное для применения мутаций
type nodeRow struct {
	rootID      string
	workspaceID string
	createdBy   string
	state       []byte
}

func loadNode(ctx context.Context, tx *sql.Tx, nodeID string) (*nodeRow, error) {
	row := &nodeRow{}
	err := tx.QueryRowContext(ctx,
		`SELECT root_id, workspace_id, created_by, state FROM nodes WHERE id = ?`, nodeID,
	).Scan(&row.rootID, &row.workspaceID, &row.createdBy, &row.state)
	if err != nil {
		if isNoRows(err) {
			return nil, storage.ErrNodeNotFound
		}
		return nil, fmt.Errorf("failed to load node %s: %w", nodeID, err)
	}
	return row, nil
}

// loadNodeInRoot загружает узел и проверяет, что он принадлежит rootID
func loadNodeInRoot(ctx context.Context, tx *sql.Tx, nodeID, rootID string) (*nodeRow, error) {
	row, err := loadNode(ctx, tx, nodeID)
	if err != nil {
		return nil, err
	}
	if row.rootID != rootID {
		return nil, storage.ErrRootMismatch
	}
	return row, nil
}

// authorize проверяет активную коллаборацию пользователя на корне.
// write требует роль с правом редактирования.
func authorize(ctx context.Context, tx *sql.Tx, rootID, userID string, write bool) error {
	collaboration, err := getCollaboration(ctx, tx, rootID, userID)
	if err != nil {
		return err
	}
	if write && !models.CanWrite(collaboration.Role) {
		return storage.ErrForbidden
	}
	return nil
}

// CreateNode inserts a node with its initial fragment. A retried create of a node
// that already exists with the same author succeeds without changes.
func (s *Storage) CreateNode(ctx context.Context, node *models.Node, fragment *models.UpdateFragment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := loadNode(ctx, tx, node.ID)
		switch {
		case err == nil:
			if existing.createdBy == node.CreatedBy && existing.rootID == node.RootID {
				return nil
			}
			return storage.ErrNodeExists
		case !errors.Is(err, storage.ErrNodeNotFound):
			return err
		}

		if !node.IsRoot() {
			if err := authorize(ctx, tx, node.RootID, node.CreatedBy, true); err != nil {
				return err
			}
			if _, err := loadNodeInRoot(ctx, tx, node.ParentID, node.RootID); err != nil {
				return fmt.Errorf("parent %s: %w", node.ParentID, err)
			}
		}

		state, err := crdt.Merge(fragment.Data)
		if err != nil {
			return fmt.Errorf("invalid node state: %w", err)
		}

		if err := insertUpdate(ctx, tx, updateLog{table: "node_updates", entity: "node_id"}, fragment); err != nil {
			return err
		}

		revision, err := nextRevision(ctx, tx)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (id, workspace_id, root_id, parent_id, type, state, revision,
				created_at, created_by, updated_at, updated_by)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			node.ID, node.WorkspaceID, node.RootID, node.ParentID, node.Type, state, revision,
			toMillis(node.CreatedAt), node.CreatedBy, toMillis(node.CreatedAt), node.CreatedBy,
		)
		if err != nil {
			return fmt.Errorf("failed to insert node: %w", err)
		}

		node.State = state
		node.Revision = revision
		node.UpdatedAt = node.CreatedAt
		node.UpdatedBy = node.CreatedBy

		if node.IsRoot() {
			return upsertCollaboration(ctx, tx, &models.Collaboration{
				NodeID:         node.ID,
				CollaboratorID: node.CreatedBy,
				WorkspaceID:    node.WorkspaceID,
				Role:           models.RoleAdmin,
				CreatedAt:      node.CreatedAt,
			})
		}

		return nil
	})
}

// UpdateNode appends a fragment to the node log and merges it into the node state
func (s *Storage) UpdateNode(ctx context.Context, fragment *models.UpdateFragment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		node, err := loadNodeInRoot(ctx, tx, fragment.EntityID, fragment.RootID)
		if err != nil {
			return err
		}
		if err := authorize(ctx, tx, fragment.RootID, fragment.CreatedBy, true); err != nil {
			return err
		}

		state, err := crdt.Merge(node.state, fragment.Data)
		if err != nil {
			return fmt.Errorf("failed to merge node state: %w", err)
		}

		if err := insertUpdate(ctx, tx, updateLog{table: "node_updates", entity: "node_id"}, fragment); err != nil {
			return err
		}

		revision, err := nextRevision(ctx, tx)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE nodes SET state = ?, revision = ?, updated_at = ?, updated_by = ?
			WHERE id = ?
		`, state, revision, toMillis(fragment.CreatedAt), fragment.CreatedBy, fragment.EntityID)
		if err != nil {
			return fmt.Errorf("failed to update node: %w", err)
		}

		return nil
	})
}

// DeleteNode removes the node with its subtree, their logs, interactions and reactions,
// and writes a tombstone per removed node. Deleting a root also revokes its collaborations.
// Deleting an already deleted node succeeds.
func (s *Storage) DeleteNode(ctx context.Context, nodeID, rootID, userID string, deletedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		node, err := loadNode(ctx, tx, nodeID)
		if errors.Is(err, storage.ErrNodeNotFound) {
			var exists int
			terr := tx.QueryRowContext(ctx,
				`SELECT 1 FROM node_tombstones WHERE id = ? AND root_id = ?`, nodeID, rootID,
			).Scan(&exists)
			if terr == nil {
				return nil
			}
			return err
		}
		if err != nil {
			return err
		}
		if node.rootID != rootID {
			return storage.ErrRootMismatch
		}
		if err := authorize(ctx, tx, rootID, userID, true); err != nil {
			return err
		}

		ids, err := subtreeIDs(ctx, tx, nodeID)
		if err != nil {
			return err
		}

		cleanup := []string{
			`DELETE FROM node_updates WHERE node_id = ?`,
			`DELETE FROM document_updates WHERE document_id = ?`,
			`DELETE FROM node_interactions WHERE node_id = ?`,
			`DELETE FROM node_reactions WHERE node_id = ?`,
			`DELETE FROM nodes WHERE id = ?`,
		}

		for _, id := range ids {
			for _, query := range cleanup {
				if _, err := tx.ExecContext(ctx, query, id); err != nil {
					return fmt.Errorf("failed to delete node %s data: %w", id, err)
				}
			}

			revision, err := nextRevision(ctx, tx)
			if err != nil {
				return err
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO node_tombstones (id, root_id, workspace_id, deleted_at, deleted_by, revision)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					deleted_at = excluded.deleted_at,
					deleted_by = excluded.deleted_by,
					revision = excluded.revision
			`, id, rootID, node.workspaceID, toMillis(deletedAt), userID, revision)
			if err != nil {
				return fmt.Errorf("failed to write tombstone for %s: %w", id, err)
			}
		}

		if nodeID != rootID {
			return nil
		}

		// Удаление корня отзывает все коллаборации
		rows, err := tx.QueryContext(ctx,
			`SELECT collaborator_id FROM collaborations WHERE node_id = ? AND deleted_at IS NULL`, rootID)
		if err != nil {
			return fmt.Errorf("failed to query collaborations: %w", err)
		}
		var collaborators []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan collaborator: %w", err)
			}
			collaborators = append(collaborators, id)
		}
		_ = rows.Close()

		for _, collaboratorID := range collaborators {
			if err := revokeCollaboration(ctx, tx, rootID, collaboratorID, deletedAt); err != nil {
				return err
			}
		}

		return nil
	})
}

// subtreeIDs возвращает узел и всех его потомков
func subtreeIDs(ctx context.Context, tx *sql.Tx, nodeID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		WITH RECURSIVE subtree(id) AS (
			SELECT ?
			UNION
			SELECT n.id FROM nodes n JOIN subtree s ON n.parent_id = s.id
		)
		SELECT id FROM subtree
	`, nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query subtree: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan subtree id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// UpsertInteraction merges interaction timestamps. Unchanged interactions keep their revision.
func (s *Storage) UpsertInteraction(ctx context.Context, interaction *models.NodeInteraction) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := loadNodeInRoot(ctx, tx, interaction.NodeID, interaction.RootID); err != nil {
			return err
		}
		if err := authorize(ctx, tx, interaction.RootID, interaction.CollaboratorID, false); err != nil {
			return err
		}

		current := &models.NodeInteraction{
			NodeID:         interaction.NodeID,
			CollaboratorID: interaction.CollaboratorID,
			RootID:         interaction.RootID,
			WorkspaceID:    interaction.WorkspaceID,
		}

		var firstSeen, lastSeen, firstOpened, lastOpened sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT first_seen_at, last_seen_at, first_opened_at, last_opened_at, revision
			FROM node_interactions WHERE node_id = ? AND collaborator_id = ?
		`, interaction.NodeID, interaction.CollaboratorID).Scan(
			&firstSeen, &lastSeen, &firstOpened, &lastOpened, &current.Revision)
		exists := err == nil
		if err != nil && !isNoRows(err) {
			return fmt.Errorf("failed to load interaction: %w", err)
		}
		current.FirstSeenAt = fromNullMillis(firstSeen)
		current.LastSeenAt = fromNullMillis(lastSeen)
		current.FirstOpenedAt = fromNullMillis(firstOpened)
		current.LastOpenedAt = fromNullMillis(lastOpened)

		changed := current.Merge(interaction.FirstSeenAt, interaction.LastSeenAt,
			interaction.FirstOpenedAt, interaction.LastOpenedAt)
		if exists && !changed {
			*interaction = *current
			return nil
		}

		revision, err := nextRevision(ctx, tx)
		if err != nil {
			return err
		}
		current.Revision = revision

		_, err = tx.ExecContext(ctx, `
			INSERT INTO node_interactions (node_id, collaborator_id, root_id, workspace_id,
				first_seen_at, last_seen_at, first_opened_at, last_opened_at, revision)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (node_id, collaborator_id) DO UPDATE SET
				first_seen_at = excluded.first_seen_at,
				last_seen_at = excluded.last_seen_at,
				first_opened_at = excluded.first_opened_at,
				last_opened_at = excluded.last_opened_at,
				revision = excluded.revision
		`,
			current.NodeID, current.CollaboratorID, current.RootID, current.WorkspaceID,
			toNullMillis(current.FirstSeenAt), toNullMillis(current.LastSeenAt),
			toNullMillis(current.FirstOpenedAt), toNullMillis(current.LastOpenedAt),
			current.Revision,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert interaction: %w", err)
		}

		*interaction = *current
		return nil
	})
}

// SetReaction creates or removes (deleted=true) a reaction. Repeating the same
// operation succeeds without changes.
func (s *Storage) SetReaction(ctx context.Context, reaction *models.NodeReaction, deleted bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := loadNodeInRoot(ctx, tx, reaction.NodeID, reaction.RootID); err != nil {
			return err
		}
		if err := authorize(ctx, tx, reaction.RootID, reaction.CollaboratorID, false); err != nil {
			return err
		}

		var deletedAt sql.NullInt64
		err := tx.QueryRowContext(ctx, `
			SELECT deleted_at FROM node_reactions
			WHERE node_id = ? AND collaborator_id = ? AND reaction = ?
		`, reaction.NodeID, reaction.CollaboratorID, reaction.Reaction).Scan(&deletedAt)
		exists := err == nil
		if err != nil && !isNoRows(err) {
			return fmt.Errorf("failed to load reaction: %w", err)
		}

		active := exists && !deletedAt.Valid
		if deleted != active {
			// Уже в нужном состоянии
			return nil
		}

		revision, err := nextRevision(ctx, tx)
		if err != nil {
			return err
		}
		reaction.Revision = revision

		if deleted {
			now := time.Now().UTC()
			if reaction.DeletedAt == nil {
				reaction.DeletedAt = &now
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE node_reactions SET deleted_at = ?, revision = ?
				WHERE node_id = ? AND collaborator_id = ? AND reaction = ?
			`, toNullMillis(reaction.DeletedAt), revision,
				reaction.NodeID, reaction.CollaboratorID, reaction.Reaction)
		} else {
			reaction.DeletedAt = nil
			_, err = tx.ExecContext(ctx, `
				INSERT INTO node_reactions (node_id, collaborator_id, reaction, root_id, workspace_id,
					created_at, deleted_at, revision)
				VALUES (?, ?, ?, ?, ?, ?, NULL, ?)
				ON CONFLICT (node_id, collaborator_id, reaction) DO UPDATE SET
					created_at = excluded.created_at,
					deleted_at = NULL,
					revision = excluded.revision
			`, reaction.NodeID, reaction.CollaboratorID, reaction.Reaction, reaction.RootID,
				reaction.WorkspaceID, toMillis(reaction.CreatedAt), revision)
		}
		if err != nil {
			return fmt.Errorf("failed to write reaction: %w", err)
		}

		return nil
	})
}

// AppendDocumentUpdate appends a fragment to the document log of a node
func (s *Storage) AppendDocumentUpdate(ctx context.Context, fragment *models.UpdateFragment) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := loadNodeInRoot(ctx, tx, fragment.EntityID, fragment.RootID); err != nil {
			return err
		}
		if err := authorize(ctx, tx, fragment.RootID, fragment.CreatedBy, true); err != nil {
			return err
		}
		if _, err := crdt.Decode(fragment.Data); err != nil {
			return fmt.Errorf("invalid document update: %w", err)
		}

		return insertUpdate(ctx, tx, updateLog{table: "document_updates", entity: "document_id"}, fragment)
	})
}
