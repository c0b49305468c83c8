package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/notify"
	"github.com/iudanet/syncspace/internal/server/storage"
	"github.com/iudanet/syncspace/pkg/api"
)

// FileHandler registers file metadata. File bytes are transferred elsewhere.
type FileHandler struct {
	logger   *slog.Logger
	storage  storage.WorkspaceStorage
	notifier notify.Notifier
}

// NewFileHandler creates a new file handler
func NewFileHandler(logger *slog.Logger, storage storage.WorkspaceStorage, notifier notify.Notifier) *FileHandler {
	return &FileHandler{
		logger:   logger,
		storage:  storage,
		notifier: notifier,
	}
}

// HandleCreateFile обрабатывает POST /api/v1/files
func (h *FileHandler) HandleCreateFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		sendError(h.logger, w, "missing identity", http.StatusUnauthorized)
		return
	}
	workspaceID, ok := GetWorkspaceID(ctx)
	if !ok {
		sendError(h.logger, w, "missing identity", http.StatusUnauthorized)
		return
	}

	var req api.CreateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" || req.RootID == "" || req.ParentID == "" || req.Name == "" {
		sendError(h.logger, w, "id, root_id, parent_id and name are required", http.StatusBadRequest)
		return
	}

	file := &models.File{
		ID:          req.ID,
		RootID:      req.RootID,
		ParentID:    req.ParentID,
		WorkspaceID: workspaceID,
		Name:        req.Name,
		MimeType:    req.MimeType,
		Size:        req.Size,
		Status:      models.FileStatusPending,
		CreatedBy:   userID,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.storage.CreateFile(ctx, file); err != nil {
		switch {
		case errors.Is(err, storage.ErrForbidden):
			sendError(h.logger, w, "no access to root", http.StatusForbidden)
		case errors.Is(err, storage.ErrNodeNotFound), errors.Is(err, storage.ErrRootMismatch):
			sendError(h.logger, w, "parent node not found", http.StatusNotFound)
		default:
			h.logger.Error("Failed to create file", "error", err, "file_id", req.ID)
			sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	notice := api.StreamNotice{
		WorkspaceID: workspaceID,
		StreamKey:   models.StreamKey(models.StreamFiles, file.RootID),
	}
	if err := h.notifier.Publish(ctx, notice); err != nil {
		h.logger.Warn("Failed to publish stream notice", "stream_key", notice.StreamKey, "error", err)
	}

	sendJSON(h.logger, w, file, http.StatusCreated)
}
