package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/storage"
)

// UpsertUser creates or updates a workspace user
func (s *Storage) UpsertUser(ctx context.Context, user *models.WorkspaceUser) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		revision, err := nextRevision(ctx, tx)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if user.CreatedAt.IsZero() {
			user.CreatedAt = now
		}
		user.UpdatedAt = now
		user.Revision = revision

		_, err = tx.ExecContext(ctx, `
			INSERT INTO users (id, workspace_id, name, email, role, revision, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (workspace_id, id) DO UPDATE SET
				name = excluded.name,
				email = excluded.email,
				role = excluded.role,
				revision = excluded.revision,
				updated_at = excluded.updated_at
		`,
			user.ID, user.WorkspaceID, user.Name, user.Email, user.Role, user.Revision,
			toMillis(user.CreatedAt), toMillis(user.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert user: %w", err)
		}

		return nil
	})
}

// AddCollaboration grants a user access to a root. Re-granting a revoked
// collaboration reactivates it.
func (s *Storage) AddCollaboration(ctx context.Context, collaboration *models.Collaboration) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := loadNodeInRoot(ctx, tx, collaboration.NodeID, collaboration.NodeID); err != nil {
			return err
		}
		return upsertCollaboration(ctx, tx, collaboration)
	})
}

func upsertCollaboration(ctx context.Context, tx *sql.Tx, c *models.Collaboration) error {
	revision, err := nextRevision(ctx, tx)
	if err != nil {
		return err
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.Revision = revision
	c.DeletedAt = nil

	_, err = tx.ExecContext(ctx, `
		INSERT INTO collaborations (node_id, collaborator_id, workspace_id, role, created_at, deleted_at, revision)
		VALUES (?, ?, ?, ?, ?, NULL, ?)
		ON CONFLICT (node_id, collaborator_id) DO UPDATE SET
			role = excluded.role,
			created_at = excluded.created_at,
			deleted_at = NULL,
			revision = excluded.revision
	`, c.NodeID, c.CollaboratorID, c.WorkspaceID, c.Role, toMillis(c.CreatedAt), c.Revision)
	if err != nil {
		return fmt.Errorf("failed to upsert collaboration: %w", err)
	}

	return nil
}

// RemoveCollaboration revokes access to a root
func (s *Storage) RemoveCollaboration(ctx context.Context, rootID, userID string, deletedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return revokeCollaboration(ctx, tx, rootID, userID, deletedAt)
	})
}

func revokeCollaboration(ctx context.Context, tx *sql.Tx, rootID, userID string, deletedAt time.Time) error {
	revision, err := nextRevision(ctx, tx)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE collaborations SET deleted_at = ?, revision = ?
		WHERE node_id = ? AND collaborator_id = ? AND deleted_at IS NULL
	`, toMillis(deletedAt), revision, rootID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke collaboration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return storage.ErrCollaborationNotFound
	}

	return nil
}

// CreateFile registers file metadata under a node
func (s *Storage) CreateFile(ctx context.Context, file *models.File) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := loadNodeInRoot(ctx, tx, file.ParentID, file.RootID); err != nil {
			return err
		}
		if err := authorize(ctx, tx, file.RootID, file.CreatedBy, true); err != nil {
			return err
		}

		revision, err := nextRevision(ctx, tx)
		if err != nil {
			return err
		}
		if file.CreatedAt.IsZero() {
			file.CreatedAt = time.Now().UTC()
		}
		if file.Status == "" {
			file.Status = models.FileStatusPending
		}
		file.Revision = revision

		_, err = tx.ExecContext(ctx, `
			INSERT INTO files (id, root_id, parent_id, workspace_id, name, mime_type, size, status,
				created_at, created_by, revision)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				name = excluded.name,
				mime_type = excluded.mime_type,
				size = excluded.size,
				status = excluded.status,
				revision = excluded.revision
		`,
			file.ID, file.RootID, file.ParentID, file.WorkspaceID, file.Name, file.MimeType,
			file.Size, file.Status, toMillis(file.CreatedAt), file.CreatedBy, file.Revision,
		)
		if err != nil {
			return fmt.Errorf("failed to insert file: %w", err)
		}

		return nil
	})
}
