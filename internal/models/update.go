package models

import "time"

// UpdateKind определяет, к какому журналу обновлений относится фрагмент
type UpdateKind string

const (
	// UpdateKindNode журнал обновлений узлов
	UpdateKindNode UpdateKind = "node"
	// UpdateKindDocument журнал обновлений документов
	UpdateKindDocument UpdateKind = "document"
)

// MergedFragment is an audit record of a fragment that was folded into another one.
// It is never expanded back into a fragment.
type MergedFragment struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	CreatedBy string    `json:"created_by"`
}

// UpdateFragment представляет один CRDT delta в журнале обновлений сущности.
// Применение всех фрагментов сущности в порядке Revision даёт одно и то же
// состояние независимо от того, как они были сгруппированы при слиянии.
type UpdateFragment struct {
	CreatedAt       time.Time        `json:"created_at"`       // CreatedAt время приёма фрагмента сервером
	ID              string           `json:"id"`               // ID идентификатор фрагмента (ULID)
	EntityID        string           `json:"entity_id"`        // EntityID узел или документ
	RootID          string           `json:"root_id"`          // RootID корень коллаборации
	WorkspaceID     string           `json:"workspace_id"`     // WorkspaceID рабочее пространство
	CreatedBy       string           `json:"created_by"`       // CreatedBy автор
	Data            []byte           `json:"data"`             // Data непрозрачный CRDT delta
	MergedFragments []MergedFragment `json:"merged_fragments"` // MergedFragments журнал поглощённых фрагментов
	Revision        int64            `json:"revision"`         // Revision монотонная ревизия
}

// AuditEntry returns the audit record describing this fragment.
func (f *UpdateFragment) AuditEntry() MergedFragment {
	return MergedFragment{
		ID:        f.ID,
		CreatedAt: f.CreatedAt,
		CreatedBy: f.CreatedBy,
	}
}
