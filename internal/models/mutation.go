package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MutationKind тип локальной мутации
type MutationKind string

// Виды мутаций
const (
	MutationCreate            MutationKind = "create"
	MutationUpdate            MutationKind = "update"
	MutationDelete            MutationKind = "delete"
	MutationInteractionUpdate MutationKind = "interactionUpdate"
	MutationDocumentUpdate    MutationKind = "documentUpdate"
	MutationReactionCreate    MutationKind = "reactionCreate"
	MutationReactionDelete    MutationKind = "reactionDelete"
)

// DefaultMutationRetryLimit is the number of rejected submissions after which
// a pending mutation is discarded.
const DefaultMutationRetryLimit = 5

// Valid reports whether the kind is known.
func (k MutationKind) Valid() bool {
	switch k {
	case MutationCreate, MutationUpdate, MutationDelete, MutationInteractionUpdate,
		MutationDocumentUpdate, MutationReactionCreate, MutationReactionDelete:
		return true
	}
	return false
}

// PendingMutation представляет локальное изменение, ещё не подтверждённое сервером.
// Создаётся при локальном редактировании, удаляется при подтверждении сервером
// или после превышения лимита повторов. Порядок мутаций никогда не меняется.
type PendingMutation struct {
	CreatedAt  time.Time       `json:"created_at"`  // CreatedAt время создания мутации
	Kind       MutationKind    `json:"kind"`        // Kind вид мутации
	EntityID   string          `json:"entity_id"`   // EntityID узел, к которому относится мутация
	RootID     string          `json:"root_id"`     // RootID корень коллаборации
	UserID     string          `json:"user_id"`     // UserID автор мутации
	Payload    json.RawMessage `json:"payload"`     // Payload данные, зависящие от вида
	ID         uint64          `json:"id"`          // ID последовательный идентификатор
	RetryCount int             `json:"retry_count"` // RetryCount количество отклонений сервером
}

// NewPendingMutation creates a mutation with a JSON encoded payload.
func NewPendingMutation(kind MutationKind, entityID, rootID, userID string, payload any) (*PendingMutation, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown mutation kind %q", kind)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mutation payload: %w", err)
	}

	return &PendingMutation{
		Kind:      kind,
		EntityID:  entityID,
		RootID:    rootID,
		UserID:    userID,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the payload into v.
func (m *PendingMutation) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Kind, err)
	}
	return nil
}

// CreateNodePayload payload мутации create
type CreateNodePayload struct {
	ParentID string `json:"parent_id"`
	Type     string `json:"type"`
	Data     []byte `json:"data"` // начальное CRDT состояние
}

// UpdateNodePayload payload мутации update
type UpdateNodePayload struct {
	Data []byte `json:"data"`
}

// DeleteNodePayload payload мутации delete
type DeleteNodePayload struct{}

// DocumentUpdatePayload payload мутации documentUpdate
type DocumentUpdatePayload struct {
	Data []byte `json:"data"`
}

// InteractionUpdatePayload payload мутации interactionUpdate
type InteractionUpdatePayload struct {
	FirstSeenAt   *time.Time `json:"first_seen_at,omitempty"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	FirstOpenedAt *time.Time `json:"first_opened_at,omitempty"`
	LastOpenedAt  *time.Time `json:"last_opened_at,omitempty"`
}

// ReactionPayload payload мутаций reactionCreate/reactionDelete
type ReactionPayload struct {
	Reaction string `json:"reaction"`
}
