package models

import "time"

// File статусы
const (
	FileStatusPending = "pending"
	FileStatusReady   = "ready"
)

// File метаданные файла, прикреплённого к узлу. Содержимое файла не синхронизируется.
type File struct {
	CreatedAt   time.Time `json:"created_at"`
	ID          string    `json:"id"`
	RootID      string    `json:"root_id"`
	ParentID    string    `json:"parent_id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mime_type"`
	Status      string    `json:"status"`
	CreatedBy   string    `json:"created_by"`
	Size        int64     `json:"size"`
	Revision    int64     `json:"revision"`
}
