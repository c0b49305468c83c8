package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/storage"
	"github.com/iudanet/syncspace/pkg/api"
)

// defaultPullLimit размер пачки, если клиент не указал limit
const defaultPullLimit = 100

// SyncHandler handles stream pull requests
type SyncHandler struct {
	logger  *slog.Logger
	storage storage.StreamStorage
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, storage storage.StreamStorage) *SyncHandler {
	return &SyncHandler{
		logger:  logger,
		storage: storage,
	}
}

// HandlePull обрабатывает GET /api/v1/sync/{stream}?root_id=&cursor=&limit=
// Возвращает записи потока с позицией больше cursor
func (h *SyncHandler) HandlePull(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Получаем user_id из контекста (установлен AuthMiddleware)
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

	req, err := parsePullRequest(r)
	if err != nil {
		h.logger.Warn("Invalid pull request", "error", err, "url", r.URL.String())
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
		return
	}

	stream := models.Stream(req.Stream)
	if !stream.IsGlobal() {
		// Потоки корня доступны только участникам активной коллаборации
		if _, err := h.storage.GetCollaboration(ctx, req.RootID, userID); err != nil {
			if errors.Is(err, storage.ErrForbidden) {
				h.logger.Warn("Pull without collaboration", "user_id", userID, "root_id", req.RootID)
				sendError(h.logger, w, "no access to root", http.StatusForbidden)
				return
			}
			h.logger.Error("Failed to check collaboration", "error", err, "root_id", req.RootID)
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
			return
		}
	}

	items, hasMore, err := h.storage.Pull(ctx, storage.PullQuery{
		Stream:      stream,
		WorkspaceID: workspaceID,
		UserID:      userID,
		RootID:      req.RootID,
		Cursor:      req.Cursor,
		Limit:       req.Limit,
	})
	if err != nil {
		h.logger.Error("Failed to pull stream", "error", err, "stream", req.Stream, "root_id", req.RootID)
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	cursor := req.Cursor
	if len(items) > 0 {
		cursor = items[len(items)-1].Position
	}

	h.logger.Debug("Pull completed",
		"user_id", userID,
		"stream", req.Stream,
		"root_id", req.RootID,
		"cursor", req.Cursor,
		"items", len(items),
		"has_more", hasMore,
	)

	sendJSON(h.logger, w, api.PullResponse{
		Items:   items,
		Cursor:  cursor,
		HasMore: hasMore,
	}, http.StatusOK)
}

// parsePullRequest разбирает и валидирует параметры запроса
func parsePullRequest(r *http.Request) (api.PullRequest, error) {
	query := r.URL.Query()
	req := api.PullRequest{
		Stream: r.PathValue("stream"),
		RootID: query.Get("root_id"),
		Limit:  defaultPullLimit,
	}

	stream := models.Stream(req.Stream)
	if !stream.Valid() {
		return req, errors.New("unknown stream")
	}
	if !stream.IsGlobal() && req.RootID == "" {
		return req, errors.New("root_id is required for root streams")
	}

	if v := query.Get("cursor"); v != "" {
		cursor, err := strconv.ParseInt(v, 10, 64)
		if err != nil || cursor < 0 {
			return req, errors.New("invalid cursor parameter")
		}
		req.Cursor = cursor
	}

	if v := query.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			return req, errors.New("invalid limit parameter")
		}
		req.Limit = min(limit, api.MaxPullLimit)
	}

	return req, nil
}
