package models

import "time"

// NodeInteraction хранит отметки о просмотре/открытии узла пользователем
type NodeInteraction struct {
	FirstSeenAt    *time.Time `json:"first_seen_at,omitempty"`
	LastSeenAt     *time.Time `json:"last_seen_at,omitempty"`
	FirstOpenedAt  *time.Time `json:"first_opened_at,omitempty"`
	LastOpenedAt   *time.Time `json:"last_opened_at,omitempty"`
	NodeID         string     `json:"node_id"`
	CollaboratorID string     `json:"collaborator_id"`
	RootID         string     `json:"root_id"`
	WorkspaceID    string     `json:"workspace_id"`
	Revision       int64      `json:"revision"`
}

// Merge folds the timestamps of other into i: first* keep the earliest value,
// last* keep the latest. Returns true if anything changed.
func (i *NodeInteraction) Merge(first, last, firstOpened, lastOpened *time.Time) bool {
	changed := false
	if minTime(&i.FirstSeenAt, first) {
		changed = true
	}
	if maxTime(&i.LastSeenAt, last) {
		changed = true
	}
	if minTime(&i.FirstOpenedAt, firstOpened) {
		changed = true
	}
	if maxTime(&i.LastOpenedAt, lastOpened) {
		changed = true
	}
	return changed
}

func minTime(dst **time.Time, v *time.Time) bool {
	if v == nil {
		return false
	}
	if *dst == nil || v.Before(**dst) {
		t := *v
		*dst = &t
		return true
	}
	return false
}

func maxTime(dst **time.Time, v *time.Time) bool {
	if v == nil {
		return false
	}
	if *dst == nil || v.After(**dst) {
		t := *v
		*dst = &t
		return true
	}
	return false
}

// NodeReaction реакция пользователя на узел
type NodeReaction struct {
	CreatedAt      time.Time  `json:"created_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
	NodeID         string     `json:"node_id"`
	CollaboratorID string     `json:"collaborator_id"`
	Reaction       string     `json:"reaction"`
	RootID         string     `json:"root_id"`
	WorkspaceID    string     `json:"workspace_id"`
	Revision       int64      `json:"revision"`
}
