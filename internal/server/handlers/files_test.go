package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/notify"
	"github.com/iudanet/syncspace/internal/server/storage"
	"github.com/iudanet/syncspace/pkg/api"
)

type mockWorkspaceStorage struct {
	err   error
	files []*models.File
}

func (m *mockWorkspaceStorage) UpsertUser(context.Context, *models.WorkspaceUser) error {
	return nil
}

func (m *mockWorkspaceStorage) AddCollaboration(context.Context, *models.Collaboration) error {
	return nil
}

func (m *mockWorkspaceStorage) RemoveCollaboration(context.Context, string, string, time.Time) error {
	return nil
}

func (m *mockWorkspaceStorage) CreateFile(_ context.Context, file *models.File) error {
	if m.err != nil {
		return m.err
	}
	m.files = append(m.files, file)
	return nil
}

func TestFileHandler_HandleCreateFile(t *testing.T) {
	valid := api.CreateFileRequest{ID: "f1", RootID: "root", ParentID: "msg", Name: "a.png", MimeType: "image/png", Size: 10}

	tests := []struct {
		storeErr error
		name     string
		req      api.CreateFileRequest
		wantCode int
	}{
		{name: "created", req: valid, wantCode: http.StatusCreated},
		{name: "missing name", req: api.CreateFileRequest{ID: "f1", RootID: "root", ParentID: "msg"}, wantCode: http.StatusBadRequest},
		{name: "forbidden", req: valid, storeErr: storage.ErrForbidden, wantCode: http.StatusForbidden},
		{name: "unknown parent", req: valid, storeErr: storage.ErrNodeNotFound, wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockWorkspaceStorage{err: tt.storeErr}
			handler := NewFileHandler(setupTestLogger(), store, notify.NewLocalNotifier())

			body, err := json.Marshal(tt.req)
			require.NoError(t, err)
			req := withTestIdentity(httptest.NewRequest(http.MethodPost, "/api/v1/files", bytes.NewReader(body)), "alice")
			w := httptest.NewRecorder()
			handler.HandleCreateFile(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantCode == http.StatusCreated {
				require.Len(t, store.files, 1)
				assert.Equal(t, "alice", store.files[0].CreatedBy)
				assert.Equal(t, models.FileStatusPending, store.files[0].Status)
			}
		})
	}
}
