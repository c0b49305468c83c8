package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/syncspace/internal/server/notify"
)

const (
	// eventsWriteWait время на запись одного сообщения
	eventsWriteWait = 10 * time.Second
	// eventsPongWait время ожидания pong от клиента
	eventsPongWait = 60 * time.Second
	// eventsPingPeriod период ping, меньше eventsPongWait
	eventsPingPeriod = eventsPongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// EventsHandler streams stream notices of the caller's workspace over a websocket
type EventsHandler struct {
	logger   *slog.Logger
	notifier notify.Notifier
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(logger *slog.Logger, notifier notify.Notifier) *EventsHandler {
	return &EventsHandler{
		logger:   logger,
		notifier: notifier,
	}
}

// HandleEvents обрабатывает GET /api/v1/events
// Пересылает api.StreamNotice рабочего пространства, пока клиент подключен
func (h *EventsHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
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

	sub, err := h.notifier.Subscribe(ctx, workspaceID)
	if err != nil {
		h.logger.Error("Failed to subscribe to notices", "error", err, "workspace_id", workspaceID)
		sendError(h.logger, w, "event feed unavailable", http.StatusServiceUnavailable)
		return
	}
	defer func() {
		_ = sub.Close()
	}()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		h.logger.Warn("Failed to upgrade websocket", "error", err)
		return
	}
	defer func() {
		_ = ws.Close()
	}()

	eventConnections.Inc()
	defer eventConnections.Dec()

	h.logger.Info("Event feed connected", "user_id", userID, "workspace_id", workspaceID)

	// Чтение нужно только для обработки pong и закрытия соединения клиентом
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(eventsPongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(eventsPongWait))
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(eventsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			h.logger.Info("Event feed disconnected", "user_id", userID)
			return
		case <-ctx.Done():
			return
		case notice, ok := <-sub.Notices():
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "notifier closed"),
					time.Now().Add(eventsWriteWait))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(eventsWriteWait))
			if err := ws.WriteJSON(notice); err != nil {
				h.logger.Warn("Failed to write notice", "error", err, "user_id", userID)
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteWait)); err != nil {
				return
			}
		}
	}
}
