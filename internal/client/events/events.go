// Package events is the in-process bus connecting the replica components:
// the mutation queue, synchronizers and the radar.
package events

import "github.com/iudanet/syncspace/internal/models"

// Type идентификатор вида события
type Type string

// Виды событий
const (
	TypeChangeCreated          Type = "change_created"
	TypeCollaborationCreated   Type = "collaboration_created"
	TypeCollaborationDeleted   Type = "collaboration_deleted"
	TypeNodeCreated            Type = "node_created"
	TypeNodeUpdated            Type = "node_updated"
	TypeNodeDeleted            Type = "node_deleted"
	TypeNodeInteractionUpdated Type = "node_interaction_updated"
	TypeRadarDataUpdated       Type = "radar_data_updated"
)

// Event is implemented by every bus event
type Event interface {
	Type() Type
}

// ChangeCreated a local mutation was appended to the queue
type ChangeCreated struct {
	Kind       models.MutationKind
	MutationID uint64
}

// CollaborationCreated the account gained access to a root
type CollaborationCreated struct {
	Collaboration *models.Collaboration
}

// CollaborationDeleted the account lost access to a root
type CollaborationDeleted struct {
	Collaboration *models.Collaboration
}

// NodeCreated a node appeared in the local replica
type NodeCreated struct {
	Node *models.Node
}

// NodeUpdated a node state changed in the local replica
type NodeUpdated struct {
	Node *models.Node
}

// NodeDeleted a node was removed from the local replica
type NodeDeleted struct {
	NodeID string
	RootID string
}

// NodeInteractionUpdated the viewer's interaction with a node changed
type NodeInteractionUpdated struct {
	Interaction *models.NodeInteraction
}

// RadarDataUpdated the radar counters changed
type RadarDataUpdated struct{}

func (ChangeCreated) Type() Type          { return TypeChangeCreated }
func (CollaborationCreated) Type() Type   { return TypeCollaborationCreated }
func (CollaborationDeleted) Type() Type   { return TypeCollaborationDeleted }
func (NodeCreated) Type() Type            { return TypeNodeCreated }
func (NodeUpdated) Type() Type            { return TypeNodeUpdated }
func (NodeDeleted) Type() Type            { return TypeNodeDeleted }
func (NodeInteractionUpdated) Type() Type { return TypeNodeInteractionUpdated }
func (RadarDataUpdated) Type() Type       { return TypeRadarDataUpdated }
