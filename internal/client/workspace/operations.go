package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/syncspace/internal/client/events"
	"github.com/iudanet/syncspace/internal/client/storage"
	"github.com/iudanet/syncspace/internal/crdt"
	"github.com/iudanet/syncspace/internal/models"
)

// ErrInvalidNode неверные параметры создания узла
var ErrInvalidNode = errors.New("invalid node")

// NodeInput параметры нового узла. Для корней (space, chat) RootID и
// ParentID не задаются.
type NodeInput struct {
	Fields   map[string]any
	RootID   string
	ParentID string
	Type     string
}

// CreateNode stores a new node locally and enqueues its create mutation
func (s *Service) CreateNode(ctx context.Context, in NodeInput) (*models.Node, error) {
	node := &models.Node{
		ID:          uuid.NewString(),
		WorkspaceID: s.cfg.WorkspaceID,
		RootID:      in.RootID,
		ParentID:    in.ParentID,
		Type:        in.Type,
		CreatedBy:   s.cfg.UserID,
		UpdatedBy:   s.cfg.UserID,
	}

	switch in.Type {
	case models.NodeTypeSpace, models.NodeTypeChat:
		node.RootID = node.ID
		node.ParentID = ""
	case models.NodeTypeChannel, models.NodeTypePage, models.NodeTypeMessage:
		if in.RootID == "" || in.ParentID == "" {
			return nil, fmt.Errorf("%w: %s needs a root and a parent", ErrInvalidNode, in.Type)
		}
		if _, err := s.store.GetNode(ctx, in.RootID, in.ParentID); err != nil {
			return nil, fmt.Errorf("parent %s: %w", in.ParentID, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidNode, in.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.encodeFields(in.Fields, nil)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	node.State = state
	node.CreatedAt = now
	node.UpdatedAt = now

	if err := s.store.SaveLocalNode(ctx, node); err != nil {
		return nil, err
	}

	payload := models.CreateNodePayload{ParentID: node.ParentID, Type: node.Type, Data: state}
	if err := s.enqueue(ctx, models.MutationCreate, node.ID, node.RootID, payload); err != nil {
		return nil, err
	}

	stored, err := s.store.GetNode(ctx, node.RootID, node.ID)
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.NodeCreated{Node: stored})
	return stored, nil
}

// UpdateNode sets and removes attributes of a node
func (s *Service) UpdateNode(ctx context.Context, rootID, nodeID string, set map[string]any, unset []string) (*models.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.GetNode(ctx, rootID, nodeID)
	if err != nil {
		return nil, err
	}
	if err := s.observe(existing.State); err != nil {
		return nil, err
	}

	delta, err := s.encodeFields(set, unset)
	if err != nil {
		return nil, err
	}

	local := existing.Clone()
	local.State = delta
	local.UpdatedAt = time.Now().UTC()
	local.UpdatedBy = s.cfg.UserID
	if err := s.store.SaveLocalNode(ctx, local); err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, models.MutationUpdate, nodeID, rootID, models.UpdateNodePayload{Data: delta}); err != nil {
		return nil, err
	}

	stored, err := s.store.GetNode(ctx, rootID, nodeID)
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events.NodeUpdated{Node: stored})
	return stored, nil
}

// DeleteNode removes a node with its subtree locally and enqueues the delete
func (s *Service) DeleteNode(ctx context.Context, rootID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.store.DeleteLocalNode(ctx, rootID, nodeID)
	if err != nil {
		return err
	}

	if err := s.enqueue(ctx, models.MutationDelete, nodeID, rootID, models.DeleteNodePayload{}); err != nil {
		return err
	}

	for _, id := range removed {
		s.bus.Publish(events.NodeDeleted{NodeID: id, RootID: rootID})
	}
	return nil
}

// MarkSeen records that the account has seen a node
func (s *Service) MarkSeen(ctx context.Context, rootID, nodeID string) (*models.NodeInteraction, error) {
	now := time.Now().UTC()
	return s.interact(ctx, rootID, nodeID, models.InteractionUpdatePayload{FirstSeenAt: &now, LastSeenAt: &now})
}

// MarkOpened records that the account has opened a node
func (s *Service) MarkOpened(ctx context.Context, rootID, nodeID string) (*models.NodeInteraction, error) {
	now := time.Now().UTC()
	return s.interact(ctx, rootID, nodeID, models.InteractionUpdatePayload{
		FirstSeenAt:   &now,
		LastSeenAt:    &now,
		FirstOpenedAt: &now,
		LastOpenedAt:  &now,
	})
}

func (s *Service) interact(ctx context.Context, rootID, nodeID string, p models.InteractionUpdatePayload) (*models.NodeInteraction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetNode(ctx, rootID, nodeID); err != nil {
		return nil, err
	}

	interaction, err := s.store.SaveLocalInteraction(ctx, &models.NodeInteraction{
		NodeID:         nodeID,
		CollaboratorID: s.cfg.UserID,
		RootID:         rootID,
		WorkspaceID:    s.cfg.WorkspaceID,
		FirstSeenAt:    p.FirstSeenAt,
		LastSeenAt:     p.LastSeenAt,
		FirstOpenedAt:  p.FirstOpenedAt,
		LastOpenedAt:   p.LastOpenedAt,
	})
	if err != nil {
		return nil, err
	}

	if err := s.enqueue(ctx, models.MutationInteractionUpdate, nodeID, rootID, p); err != nil {
		return nil, err
	}

	s.bus.Publish(events.NodeInteractionUpdated{Interaction: interaction})
	return interaction, nil
}

// AddReaction sets a reaction of the account on a node
func (s *Service) AddReaction(ctx context.Context, rootID, nodeID, reaction string) error {
	return s.react(ctx, rootID, nodeID, reaction, models.MutationReactionCreate)
}

// RemoveReaction unsets a reaction of the account on a node
func (s *Service) RemoveReaction(ctx context.Context, rootID, nodeID, reaction string) error {
	return s.react(ctx, rootID, nodeID, reaction, models.MutationReactionDelete)
}

func (s *Service) react(ctx context.Context, rootID, nodeID, reaction string, kind models.MutationKind) error {
	if reaction == "" {
		return errors.New("reaction is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetNode(ctx, rootID, nodeID); err != nil {
		return err
	}

	now := time.Now().UTC()
	local := &models.NodeReaction{
		NodeID:         nodeID,
		CollaboratorID: s.cfg.UserID,
		Reaction:       reaction,
		RootID:         rootID,
		WorkspaceID:    s.cfg.WorkspaceID,
		CreatedAt:      now,
	}
	if kind == models.MutationReactionDelete {
		local.DeletedAt = &now
	}
	if err := s.store.SaveLocalReaction(ctx, local); err != nil {
		return err
	}

	return s.enqueue(ctx, kind, nodeID, rootID, models.ReactionPayload{Reaction: reaction})
}

// AppendDocumentUpdate applies a local edit to the rich document of a node
func (s *Service) AppendDocumentUpdate(ctx context.Context, rootID, documentID string, set map[string]any, unset []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.GetNode(ctx, rootID, documentID); err != nil {
		return err
	}

	current, err := s.store.GetDocument(ctx, rootID, documentID)
	if err != nil && !errors.Is(err, storage.ErrDocumentNotFound) {
		return err
	}
	if err := s.observe(current); err != nil {
		return err
	}

	delta, err := s.encodeFields(set, unset)
	if err != nil {
		return err
	}
	if err := s.store.SaveLocalDocument(ctx, rootID, documentID, delta); err != nil {
		return err
	}

	return s.enqueue(ctx, models.MutationDocumentUpdate, documentID, rootID, models.DocumentUpdatePayload{Data: delta})
}

// encodeFields строит дельту документа по текущим часам. Вызывается под s.mu.
func (s *Service) encodeFields(set map[string]any, unset []string) ([]byte, error) {
	doc := crdt.NewDocument()
	for key, value := range set {
		if err := doc.Set(key, value, s.clock); err != nil {
			return nil, err
		}
	}
	for _, key := range unset {
		doc.Delete(key, s.clock)
	}
	return doc.Encode()
}

// observe продвигает часы за все метки состояния, чтобы локальная правка
// победила уже виденные значения
func (s *Service) observe(state []byte) error {
	doc, err := crdt.Decode(state)
	if err != nil {
		return err
	}
	s.clock.Observe(doc.MaxTimestamp())
	return nil
}

// enqueue ставит мутацию в очередь и сохраняет часы. Вызывается под s.mu.
func (s *Service) enqueue(ctx context.Context, kind models.MutationKind, entityID, rootID string, payload any) error {
	m, err := models.NewPendingMutation(kind, entityID, rootID, s.cfg.UserID, payload)
	if err != nil {
		return err
	}
	if err := s.queue.Enqueue(ctx, m); err != nil {
		return err
	}

	if err := s.store.SaveClock(ctx, s.clock.ReplicaID(), s.clock.Timestamp()); err != nil {
		s.logger.Warn("Failed to persist clock", "error", err)
	}
	return nil
}
