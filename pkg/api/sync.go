package api

import (
	"encoding/json"
	"time"
)

// MaxPullLimit верхняя граница размера пачки потока
const MaxPullLimit = 1000

// MaxMutationBatch максимальное количество мутаций в одном запросе
const MaxMutationBatch = 20

// PullRequest запрос следующей пачки потока после Cursor
type PullRequest struct {
	Stream string `json:"stream"`            // тип потока
	RootID string `json:"root_id,omitempty"` // корень для потоков, привязанных к корню
	Cursor int64  `json:"cursor"`            // последняя применённая позиция
	Limit  int    `json:"limit"`             // размер пачки
}

// StreamItem одна запись потока
type StreamItem struct {
	Data     json.RawMessage `json:"data"`     // сериализованная сущность
	Position int64           `json:"position"` // позиция (ревизия) записи
}

// PullResponse упорядоченная пачка записей
type PullResponse struct {
	Items   []StreamItem `json:"items"`
	Cursor  int64        `json:"cursor"`   // позиция последней записи (или исходный курсор)
	HasMore bool         `json:"has_more"` // есть ли данные сразу после пачки
}

// Mutation мутация, отправляемая клиентом
type Mutation struct {
	CreatedAt time.Time       `json:"created_at"`
	Kind      string          `json:"kind"`
	EntityID  string          `json:"entity_id"`
	RootID    string          `json:"root_id"`
	Payload   json.RawMessage `json:"payload"`
	ID        uint64          `json:"id"`
}

// MutationsRequest пачка мутаций (не более MaxMutationBatch)
type MutationsRequest struct {
	Mutations []Mutation `json:"mutations"`
}

// MutationStatus результат применения мутации
type MutationStatus string

// Статусы мутаций
const (
	MutationSuccess MutationStatus = "success"
	MutationFailure MutationStatus = "failure"
)

// MutationResult результат применения одной мутации
type MutationResult struct {
	Status MutationStatus `json:"status"`
	Error  string         `json:"error,omitempty"`
	ID     uint64         `json:"id"`
}

// MutationsResponse ответ на отправку мутаций
type MutationsResponse struct {
	Results []MutationResult `json:"results"`
}

// StreamNotice уведомление о появлении новых данных в потоке
type StreamNotice struct {
	WorkspaceID string `json:"workspace_id"`
	StreamKey   string `json:"stream_key"`
}
