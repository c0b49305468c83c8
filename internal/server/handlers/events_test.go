package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncspace/internal/server/notify"
	"github.com/iudanet/syncspace/pkg/api"
)

func TestEventsHandler_ForwardsNotices(t *testing.T) {
	notifier := notify.NewLocalNotifier()
	handler := NewEventsHandler(setupTestLogger(), notifier)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.HandleEvents(w, withTestIdentity(r, "alice"))
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() {
		_ = conn.Close()
	}()

	// Уведомление другого рабочего пространства не должно прийти
	require.NoError(t, notifier.Publish(context.Background(), api.StreamNotice{WorkspaceID: "ws-2", StreamKey: "users"}))
	want := api.StreamNotice{WorkspaceID: "ws-1", StreamKey: "root-1_nodes"}
	require.NoError(t, notifier.Publish(context.Background(), want))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got api.StreamNotice
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, want, got)
}

func TestEventsHandler_Unauthorized(t *testing.T) {
	handler := NewEventsHandler(setupTestLogger(), notify.NewLocalNotifier())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	w := httptest.NewRecorder()
	handler.HandleEvents(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
