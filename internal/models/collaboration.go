package models

import "time"

// Роли участников коллаборации
const (
	RoleAdmin        = "admin"
	RoleEditor       = "editor"
	RoleCollaborator = "collaborator"
	RoleViewer       = "viewer"
)

// Collaboration предоставляет пользователю доступ к корню.
// Набор активных коллабораций определяет, какие корни синхронизирует реплика.
type Collaboration struct {
	CreatedAt      time.Time  `json:"created_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	NodeID         string     `json:"node_id"`         // NodeID корень
	CollaboratorID string     `json:"collaborator_id"` // CollaboratorID пользователь
	WorkspaceID    string     `json:"workspace_id"`
	Role           string     `json:"role"`
	Revision       int64      `json:"revision"`
}

// Active reports whether the collaboration has not been revoked.
func (c *Collaboration) Active() bool {
	return c.DeletedAt == nil
}

// CanWrite reports whether the role allows creating and editing nodes.
func CanWrite(role string) bool {
	switch role {
	case RoleAdmin, RoleEditor, RoleCollaborator:
		return true
	}
	return false
}
