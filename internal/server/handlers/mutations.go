package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/notify"
	"github.com/iudanet/syncspace/internal/server/storage"
	"github.com/iudanet/syncspace/pkg/api"
)

// MutationHandler applies batches of client mutations
type MutationHandler struct {
	logger   *slog.Logger
	storage  storage.MutationStorage
	notifier notify.Notifier
	now      func() time.Time
}

// NewMutationHandler creates a new mutation handler
func NewMutationHandler(logger *slog.Logger, storage storage.MutationStorage, notifier notify.Notifier) *MutationHandler {
	return &MutationHandler{
		logger:   logger,
		storage:  storage,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// identity автор запроса
type identity struct {
	userID      string
	workspaceID string
}

// HandleMutations обрабатывает POST /api/v1/mutations
// Каждая мутация применяется в своей транзакции; результат возвращается по каждой
func (h *MutationHandler) HandleMutations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		h.logger.Error("User ID not found in context")
		sendError(h.logger, w, "missing identity", http.StatusUnauthorized)
		return
	}
	workspaceID, ok := GetWorkspaceID(ctx)
	if !ok {
		h.logger.Error("Workspace ID not found in context")
		sendError(h.logger, w, "missing identity", http.StatusUnauthorized)
		return
	}
	who := identity{userID: userID, workspaceID: workspaceID}

	var req api.MutationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode mutations request", "error", err)
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	if len(req.Mutations) > api.MaxMutationBatch {
		sendError(h.logger, w, fmt.Sprintf("at most %d mutations per request", api.MaxMutationBatch), http.StatusRequestEntityTooLarge)
		return
	}

	results := make([]api.MutationResult, 0, len(req.Mutations))
	touched := make(map[string]struct{})
	failed := 0

	for _, m := range req.Mutations {
		keys, err := h.apply(ctx, who, m)
		if err != nil {
			failed++
			mutationsApplied.WithLabelValues(kindLabel(m.Kind), string(api.MutationFailure)).Inc()
			h.logger.Warn("Mutation rejected",
				"user_id", userID,
				"mutation_id", m.ID,
				"kind", m.Kind,
				"entity_id", m.EntityID,
				"error", err,
			)
			results = append(results, api.MutationResult{
				ID:     m.ID,
				Status: api.MutationFailure,
				Error:  err.Error(),
			})
			continue
		}

		mutationsApplied.WithLabelValues(kindLabel(m.Kind), string(api.MutationSuccess)).Inc()
		for _, key := range keys {
			touched[key] = struct{}{}
		}
		results = append(results, api.MutationResult{ID: m.ID, Status: api.MutationSuccess})
	}

	h.notify(ctx, workspaceID, touched)

	h.logger.Info("Mutations applied",
		"user_id", userID,
		"received", len(req.Mutations),
		"failed", failed,
	)

	sendJSON(h.logger, w, api.MutationsResponse{Results: results}, http.StatusOK)
}

// notify публикует уведомления о затронутых потоках. Ошибки публикации не
// влияют на ответ: клиенты всё равно получат данные при следующем опросе
func (h *MutationHandler) notify(ctx context.Context, workspaceID string, touched map[string]struct{}) {
	for key := range touched {
		notice := api.StreamNotice{WorkspaceID: workspaceID, StreamKey: key}
		if err := h.notifier.Publish(ctx, notice); err != nil {
			h.logger.Warn("Failed to publish stream notice", "stream_key", key, "error", err)
		}
	}
}

// apply применяет одну мутацию и возвращает ключи затронутых потоков
func (h *MutationHandler) apply(ctx context.Context, who identity, m api.Mutation) ([]string, error) {
	if m.EntityID == "" || m.RootID == "" {
		return nil, errors.New("entity_id and root_id are required")
	}

	now := h.now()

	switch models.MutationKind(m.Kind) {
	case models.MutationCreate:
		var p models.CreateNodePayload
		if err := decodePayload(m, &p); err != nil {
			return nil, err
		}
		node := &models.Node{
			ID:          m.EntityID,
			WorkspaceID: who.workspaceID,
			RootID:      m.RootID,
			ParentID:    p.ParentID,
			Type:        p.Type,
			CreatedBy:   who.userID,
			CreatedAt:   now,
		}
		if node.IsRoot() {
			node.ParentID = ""
		} else if node.ParentID == "" {
			return nil, errors.New("parent_id is required")
		}
		if err := h.storage.CreateNode(ctx, node, h.fragment(who, m, p.Data, now)); err != nil {
			return nil, err
		}
		if node.IsRoot() {
			return []string{models.StreamKey(models.StreamNodes, m.RootID), string(models.StreamCollaborations)}, nil
		}
		return []string{models.StreamKey(models.StreamNodes, m.RootID)}, nil

	case models.MutationUpdate:
		var p models.UpdateNodePayload
		if err := decodePayload(m, &p); err != nil {
			return nil, err
		}
		if err := h.storage.UpdateNode(ctx, h.fragment(who, m, p.Data, now)); err != nil {
			return nil, err
		}
		return []string{models.StreamKey(models.StreamNodes, m.RootID)}, nil

	case models.MutationDelete:
		if err := h.storage.DeleteNode(ctx, m.EntityID, m.RootID, who.userID, now); err != nil {
			return nil, err
		}
		if m.EntityID == m.RootID {
			return []string{models.StreamKey(models.StreamNodeTombstones, m.RootID), string(models.StreamCollaborations)}, nil
		}
		return []string{models.StreamKey(models.StreamNodeTombstones, m.RootID)}, nil

	case models.MutationDocumentUpdate:
		var p models.DocumentUpdatePayload
		if err := decodePayload(m, &p); err != nil {
			return nil, err
		}
		if err := h.storage.AppendDocumentUpdate(ctx, h.fragment(who, m, p.Data, now)); err != nil {
			return nil, err
		}
		return []string{models.StreamKey(models.StreamDocumentUpdates, m.RootID)}, nil

	case models.MutationInteractionUpdate:
		var p models.InteractionUpdatePayload
		if err := decodePayload(m, &p); err != nil {
			return nil, err
		}
		interaction := &models.NodeInteraction{
			NodeID:         m.EntityID,
			CollaboratorID: who.userID,
			RootID:         m.RootID,
			WorkspaceID:    who.workspaceID,
			FirstSeenAt:    p.FirstSeenAt,
			LastSeenAt:     p.LastSeenAt,
			FirstOpenedAt:  p.FirstOpenedAt,
			LastOpenedAt:   p.LastOpenedAt,
		}
		if err := h.storage.UpsertInteraction(ctx, interaction); err != nil {
			return nil, err
		}
		return []string{models.StreamKey(models.StreamNodeInteractions, m.RootID)}, nil

	case models.MutationReactionCreate, models.MutationReactionDelete:
		var p models.ReactionPayload
		if err := decodePayload(m, &p); err != nil {
			return nil, err
		}
		if p.Reaction == "" {
			return nil, errors.New("reaction is required")
		}
		reaction := &models.NodeReaction{
			NodeID:         m.EntityID,
			CollaboratorID: who.userID,
			Reaction:       p.Reaction,
			RootID:         m.RootID,
			WorkspaceID:    who.workspaceID,
			CreatedAt:      now,
		}
		deleted := models.MutationKind(m.Kind) == models.MutationReactionDelete
		if deleted {
			reaction.DeletedAt = &now
		}
		if err := h.storage.SetReaction(ctx, reaction, deleted); err != nil {
			return nil, err
		}
		return []string{models.StreamKey(models.StreamNodeReactions, m.RootID)}, nil
	}

	return nil, fmt.Errorf("unknown mutation kind %q", m.Kind)
}

// fragment строит фрагмент журнала с серверным временем приёма
func (h *MutationHandler) fragment(who identity, m api.Mutation, data []byte, now time.Time) *models.UpdateFragment {
	return &models.UpdateFragment{
		EntityID:    m.EntityID,
		RootID:      m.RootID,
		WorkspaceID: who.workspaceID,
		CreatedBy:   who.userID,
		CreatedAt:   now,
		Data:        data,
	}
}

// kindLabel ограничивает кардинальность метки kind
func kindLabel(kind string) string {
	if models.MutationKind(kind).Valid() {
		return kind
	}
	return "unknown"
}

func decodePayload(m api.Mutation, v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Kind)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", m.Kind, err)
	}
	return nil
}
