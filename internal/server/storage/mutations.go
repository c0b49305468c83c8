package storage

import (
	"context"
	"time"

	"github.com/iudanet/syncspace/internal/models"
)

// MutationStorage defines how client mutations are applied to the authoritative state.
// Every method runs in a single transaction and is idempotent for retried submissions.
type MutationStorage interface {
	// CreateNode inserts a node with its initial fragment. Creating a root also grants
	// the author an admin collaboration
	CreateNode(ctx context.Context, node *models.Node, fragment *models.UpdateFragment) error

	// UpdateNode appends a fragment to the node log and merges it into the node state
	UpdateNode(ctx context.Context, fragment *models.UpdateFragment) error

	// DeleteNode removes the node with its subtree and writes tombstones
	DeleteNode(ctx context.Context, nodeID, rootID, userID string, deletedAt time.Time) error

	// UpsertInteraction merges interaction timestamps
	UpsertInteraction(ctx context.Context, interaction *models.NodeInteraction) error

	// SetReaction creates or removes (deleted=true) a reaction
	SetReaction(ctx context.Context, reaction *models.NodeReaction, deleted bool) error

	// AppendDocumentUpdate appends a fragment to the document log of a node
	AppendDocumentUpdate(ctx context.Context, fragment *models.UpdateFragment) error
}

// WorkspaceStorage covers workspace membership and file metadata
type WorkspaceStorage interface {
	// UpsertUser creates or updates a workspace user
	UpsertUser(ctx context.Context, user *models.WorkspaceUser) error

	// AddCollaboration grants a user access to a root
	AddCollaboration(ctx context.Context, collaboration *models.Collaboration) error

	// RemoveCollaboration revokes access to a root
	RemoveCollaboration(ctx context.Context, rootID, userID string, deletedAt time.Time) error

	// CreateFile registers file metadata under a node
	CreateFile(ctx context.Context, file *models.File) error
}
