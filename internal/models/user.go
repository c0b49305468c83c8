package models

import "time"

// WorkspaceUser представляет участника рабочего пространства
type WorkspaceUser struct {
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Role        string    `json:"role"`
	Revision    int64     `json:"revision"`
}
