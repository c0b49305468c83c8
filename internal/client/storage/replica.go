package storage

import (
	"context"

	"github.com/iudanet/syncspace/internal/models"
)

// ReplicaStorage holds the local copy of everything the account can see.
//
// Apply* methods take authoritative server entries and return false when the
// entry is not newer than what is stored (revision check), so re-delivering a
// batch is harmless. Save*Local methods record optimistic local edits.
type ReplicaStorage interface {
	ApplyUser(ctx context.Context, user *models.WorkspaceUser) (bool, error)
	ListUsers(ctx context.Context) ([]*models.WorkspaceUser, error)

	ApplyCollaboration(ctx context.Context, collaboration *models.Collaboration) (bool, error)
	// GetCollaboration returns ErrCollaborationNotFound when absent
	GetCollaboration(ctx context.Context, rootID, userID string) (*models.Collaboration, error)
	ListCollaborations(ctx context.Context) ([]*models.Collaboration, error)

	// ApplyNode merges the server state with any local state of the node
	ApplyNode(ctx context.Context, node *models.Node) (bool, error)
	// SaveLocalNode merges a local edit into the stored node
	SaveLocalNode(ctx context.Context, node *models.Node) error
	// GetNode returns ErrNodeNotFound when absent
	GetNode(ctx context.Context, rootID, nodeID string) (*models.Node, error)
	// ListNodes returns the nodes of a root, or of every root when rootID is empty
	ListNodes(ctx context.Context, rootID string) ([]*models.Node, error)
	// DeleteLocalNode removes a node and its descendants, returning the removed ids
	DeleteLocalNode(ctx context.Context, rootID, nodeID string) ([]string, error)

	// ApplyTombstone removes the node with its interactions, reactions and document
	ApplyTombstone(ctx context.Context, tombstone *models.NodeTombstone) (bool, error)

	ApplyInteraction(ctx context.Context, interaction *models.NodeInteraction) (bool, error)
	// SaveLocalInteraction folds local timestamps into the stored interaction
	// and returns the result
	SaveLocalInteraction(ctx context.Context, interaction *models.NodeInteraction) (*models.NodeInteraction, error)
	// GetInteraction returns ErrInteractionNotFound when absent
	GetInteraction(ctx context.Context, rootID, nodeID, userID string) (*models.NodeInteraction, error)
	// ListInteractions returns the interactions of one collaborator across roots
	ListInteractions(ctx context.Context, userID string) ([]*models.NodeInteraction, error)

	ApplyReaction(ctx context.Context, reaction *models.NodeReaction) (bool, error)
	// SaveLocalReaction records a local set or unset, keeping the stored revision
	SaveLocalReaction(ctx context.Context, reaction *models.NodeReaction) error
	// ListReactions returns the active reactions on a node
	ListReactions(ctx context.Context, rootID, nodeID string) ([]*models.NodeReaction, error)

	ApplyFile(ctx context.Context, file *models.File) (bool, error)
	ListFiles(ctx context.Context, rootID string) ([]*models.File, error)

	// ApplyDocumentUpdate merges a server fragment into the document state
	ApplyDocumentUpdate(ctx context.Context, fragment *models.UpdateFragment) (bool, error)
	// SaveLocalDocument merges a local delta into the document state
	SaveLocalDocument(ctx context.Context, rootID, documentID string, data []byte) error
	// GetDocument returns the encoded document state or ErrDocumentNotFound
	GetDocument(ctx context.Context, rootID, documentID string) ([]byte, error)

	// DeleteRootData removes every entity of a root from the replica
	DeleteRootData(ctx context.Context, rootID string) error
}

// MetadataStorage stores replica-wide metadata
type MetadataStorage interface {
	// LoadClock returns the persisted replica id and Lamport counter.
	// An empty replica id means the clock was never saved.
	LoadClock(ctx context.Context) (string, int64, error)

	// SaveClock persists the replica id and Lamport counter
	SaveClock(ctx context.Context, replicaID string, counter int64) error
}

// Storage is everything a workspace replica persists
type Storage interface {
	AuthStorage
	MutationStorage
	CursorStorage
	ReplicaStorage
	MetadataStorage
	Close() error
}
