package api

// CreateFileRequest регистрирует метаданные файла под узлом.
// Содержимое файла передаётся отдельно и здесь не описывается.
type CreateFileRequest struct {
	ID       string `json:"id"`
	RootID   string `json:"root_id"`
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}
