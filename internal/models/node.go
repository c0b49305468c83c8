package models

import (
	"encoding/json"
	"time"
)

// NodeType константы для типов узлов
const (
	NodeTypeSpace   = "space"
	NodeTypeChat    = "chat"
	NodeTypeChannel = "channel"
	NodeTypePage    = "page"
	NodeTypeMessage = "message"
)

// Node представляет элемент дерева рабочего пространства.
// Корневые узлы (space, chat) имеют ID == RootID и являются единицей синхронизации.
type Node struct {
	CreatedAt   time.Time                  `json:"created_at"`   // CreatedAt время создания
	UpdatedAt   time.Time                  `json:"updated_at"`   // UpdatedAt время последнего изменения
	Attributes  map[string]json.RawMessage `json:"attributes"`   // Attributes атрибуты, полученные из CRDT состояния
	ID          string                     `json:"id"`           // ID уникальный идентификатор узла (UUID)
	WorkspaceID string                     `json:"workspace_id"` // WorkspaceID рабочее пространство
	RootID      string                     `json:"root_id"`      // RootID корень коллаборации
	ParentID    string                     `json:"parent_id"`    // ParentID родительский узел (пусто для корня)
	Type        string                     `json:"type"`         // Type тип узла
	CreatedBy   string                     `json:"created_by"`   // CreatedBy автор
	UpdatedBy   string                     `json:"updated_by"`   // UpdatedBy автор последнего изменения
	State       []byte                     `json:"state"`        // State закодированный CRDT документ
	Revision    int64                      `json:"revision"`     // Revision серверная ревизия (0 для локальных изменений)
}

// IsRoot reports whether the node is a collaboration root.
func (n *Node) IsRoot() bool {
	return n.ID == n.RootID
}

// Mentions returns the user ids listed in the "mentions" attribute.
func (n *Node) Mentions() []string {
	raw, ok := n.Attributes["mentions"]
	if !ok {
		return nil
	}

	var mentions []string
	if err := json.Unmarshal(raw, &mentions); err != nil {
		return nil
	}

	return mentions
}

// Mentioned reports whether userID is mentioned by the node.
func (n *Node) Mentioned(userID string) bool {
	for _, id := range n.Mentions() {
		if id == userID {
			return true
		}
	}
	return false
}

// Clone создает глубокую копию узла
func (n *Node) Clone() *Node {
	state := make([]byte, len(n.State))
	copy(state, n.State)

	var attrs map[string]json.RawMessage
	if n.Attributes != nil {
		attrs = make(map[string]json.RawMessage, len(n.Attributes))
		for k, v := range n.Attributes {
			attrs[k] = append(json.RawMessage(nil), v...)
		}
	}

	clone := *n
	clone.State = state
	clone.Attributes = attrs
	return &clone
}

// NodeTombstone фиксирует удаление узла для синхронизации удалений
type NodeTombstone struct {
	DeletedAt   time.Time `json:"deleted_at"`
	ID          string    `json:"id"`
	RootID      string    `json:"root_id"`
	WorkspaceID string    `json:"workspace_id"`
	DeletedBy   string    `json:"deleted_by"`
	Revision    int64     `json:"revision"`
}
