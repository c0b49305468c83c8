package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/iudanet/syncspace/internal/client/events"
	"github.com/iudanet/syncspace/internal/client/storage"
	"github.com/iudanet/syncspace/internal/models"
)

// ItemHandler applies one stream entry to the local replica.
// Re-applying an entry must be a no-op.
type ItemHandler func(ctx context.Context, data json.RawMessage) error

// Handlers применяют записи потоков к реплике и публикуют события
type Handlers struct {
	store  storage.ReplicaStorage
	bus    *events.Bus
	logger *slog.Logger
}

// NewHandlers создает обработчики потоков
func NewHandlers(store storage.ReplicaStorage, bus *events.Bus, logger *slog.Logger) *Handlers {
	return &Handlers{store: store, bus: bus, logger: logger}
}

// For returns the handler of a stream
func (h *Handlers) For(stream models.Stream) (ItemHandler, error) {
	switch stream {
	case models.StreamUsers:
		return h.applyUser, nil
	case models.StreamCollaborations:
		return h.applyCollaboration, nil
	case models.StreamNodes:
		return h.applyNode, nil
	case models.StreamNodeInteractions:
		return h.applyInteraction, nil
	case models.StreamNodeReactions:
		return h.applyReaction, nil
	case models.StreamNodeTombstones:
		return h.applyTombstone, nil
	case models.StreamFiles:
		return h.applyFile, nil
	case models.StreamDocumentUpdates:
		return h.applyDocumentUpdate, nil
	}
	return nil, fmt.Errorf("no handler for stream %q", stream)
}

func decode[T any](data json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to decode stream item: %w", err)
	}
	return &v, nil
}

func (h *Handlers) applyUser(ctx context.Context, data json.RawMessage) error {
	user, err := decode[models.WorkspaceUser](data)
	if err != nil {
		return err
	}
	_, err = h.store.ApplyUser(ctx, user)
	return err
}

// applyCollaboration публикует collaboration_created / collaboration_deleted
// только при смене активности, чтобы повторная доставка не плодила события
func (h *Handlers) applyCollaboration(ctx context.Context, data json.RawMessage) error {
	collaboration, err := decode[models.Collaboration](data)
	if err != nil {
		return err
	}

	wasActive := false
	prev, err := h.store.GetCollaboration(ctx, collaboration.NodeID, collaboration.CollaboratorID)
	switch {
	case err == nil:
		wasActive = prev.Active()
	case !errors.Is(err, storage.ErrCollaborationNotFound):
		return err
	}

	applied, err := h.store.ApplyCollaboration(ctx, collaboration)
	if err != nil || !applied {
		return err
	}

	switch {
	case collaboration.Active() && !wasActive:
		h.bus.Publish(events.CollaborationCreated{Collaboration: collaboration})
	case !collaboration.Active() && wasActive:
		h.bus.Publish(events.CollaborationDeleted{Collaboration: collaboration})
	}
	return nil
}

func (h *Handlers) applyNode(ctx context.Context, data json.RawMessage) error {
	node, err := decode[models.Node](data)
	if err != nil {
		return err
	}

	existed := true
	if _, err := h.store.GetNode(ctx, node.RootID, node.ID); err != nil {
		if !errors.Is(err, storage.ErrNodeNotFound) {
			return err
		}
		existed = false
	}

	applied, err := h.store.ApplyNode(ctx, node)
	if err != nil || !applied {
		return err
	}

	// Публикуем сохранённый узел: в нём учтены локальные правки
	stored, err := h.store.GetNode(ctx, node.RootID, node.ID)
	if err != nil {
		return err
	}
	if existed {
		h.bus.Publish(events.NodeUpdated{Node: stored})
	} else {
		h.bus.Publish(events.NodeCreated{Node: stored})
	}
	return nil
}

func (h *Handlers) applyInteraction(ctx context.Context, data json.RawMessage) error {
	interaction, err := decode[models.NodeInteraction](data)
	if err != nil {
		return err
	}

	applied, err := h.store.ApplyInteraction(ctx, interaction)
	if err != nil || !applied {
		return err
	}

	stored, err := h.store.GetInteraction(ctx, interaction.RootID, interaction.NodeID, interaction.CollaboratorID)
	if err != nil {
		return err
	}
	h.bus.Publish(events.NodeInteractionUpdated{Interaction: stored})
	return nil
}

func (h *Handlers) applyReaction(ctx context.Context, data json.RawMessage) error {
	reaction, err := decode[models.NodeReaction](data)
	if err != nil {
		return err
	}
	_, err = h.store.ApplyReaction(ctx, reaction)
	return err
}

func (h *Handlers) applyTombstone(ctx context.Context, data json.RawMessage) error {
	tombstone, err := decode[models.NodeTombstone](data)
	if err != nil {
		return err
	}

	applied, err := h.store.ApplyTombstone(ctx, tombstone)
	if err != nil || !applied {
		return err
	}

	h.bus.Publish(events.NodeDeleted{NodeID: tombstone.ID, RootID: tombstone.RootID})
	return nil
}

func (h *Handlers) applyFile(ctx context.Context, data json.RawMessage) error {
	file, err := decode[models.File](data)
	if err != nil {
		return err
	}
	_, err = h.store.ApplyFile(ctx, file)
	return err
}

func (h *Handlers) applyDocumentUpdate(ctx context.Context, data json.RawMessage) error {
	fragment, err := decode[models.UpdateFragment](data)
	if err != nil {
		return err
	}

	applied, err := h.store.ApplyDocumentUpdate(ctx, fragment)
	if err != nil {
		return err
	}
	if applied {
		h.logger.Debug("Document update applied", "document_id", fragment.EntityID, "revision", fragment.Revision)
	}
	return nil
}
