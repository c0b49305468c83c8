// Package radar keeps unseen-message and mention counters for one viewer,
// updated from the replica event bus instead of rescanning storage.
package radar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/iudanet/syncspace/internal/client/events"
	"github.com/iudanet/syncspace/internal/client/storage"
	"github.com/iudanet/syncspace/internal/models"
)

// Store is the replica storage the radar reads on bootstrap and on events
type Store interface {
	ListCollaborations(ctx context.Context) ([]*models.Collaboration, error)
	ListInteractions(ctx context.Context, userID string) ([]*models.NodeInteraction, error)
	ListNodes(ctx context.Context, rootID string) ([]*models.Node, error)
	GetNode(ctx context.Context, rootID, nodeID string) (*models.Node, error)
}

// ReadState одно непрочитанное сообщение
type ReadState struct {
	NodeID     string
	ParentID   string
	ParentKind string
	RootID     string
	Mentioned  bool
}

// Counts счётчики непрочитанного
type Counts struct {
	Unseen   int
	Mentions int
}

// NodeState счётчики одного родительского узла (чата, канала, страницы)
type NodeState struct {
	NodeID string
	Kind   string
	RootID string
	Counts
}

// Data is a snapshot of the radar counters
type Data struct {
	Nodes  map[string]NodeState // по родительскому узлу
	Roots  map[string]Counts    // по корню коллаборации
	Kinds  map[string]Counts    // по типу родительского узла
	Totals Counts
}

// Radar maintains the viewer's unseen set. Writes come from the event bus,
// which delivers serially; GetData may run concurrently.
type Radar struct {
	store          Store
	bus            *events.Bus
	logger         *slog.Logger
	unseen         map[string]ReadState
	collaborations map[string]*models.Collaboration
	interactions   map[string]*models.NodeInteraction // взаимодействия зрителя по узлу
	unsub          func()
	viewerID       string
	mu             sync.RWMutex
}

// New создает радар для пользователя viewerID
func New(viewerID string, store Store, bus *events.Bus, logger *slog.Logger) *Radar {
	return &Radar{
		store:          store,
		bus:            bus,
		logger:         logger,
		viewerID:       viewerID,
		unseen:         make(map[string]ReadState),
		collaborations: make(map[string]*models.Collaboration),
		interactions:   make(map[string]*models.NodeInteraction),
	}
}

// Init seeds the unseen set from the local replica and subscribes to the bus.
// The result equals what replaying every event since an empty replica yields.
func (r *Radar) Init(ctx context.Context) error {
	collaborations, err := r.store.ListCollaborations(ctx)
	if err != nil {
		return fmt.Errorf("failed to load collaborations: %w", err)
	}
	interactions, err := r.store.ListInteractions(ctx, r.viewerID)
	if err != nil {
		return fmt.Errorf("failed to load interactions: %w", err)
	}
	nodes, err := r.store.ListNodes(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to load nodes: %w", err)
	}

	r.mu.Lock()
	for _, c := range collaborations {
		if c.Active() && c.CollaboratorID == r.viewerID {
			r.collaborations[c.NodeID] = c
		}
	}
	for _, i := range interactions {
		r.interactions[i.NodeID] = i
	}

	kinds := make(map[string]string, len(nodes))
	for _, n := range nodes {
		kinds[n.ID] = n.Type
	}
	for _, n := range nodes {
		if r.isUnseen(n) {
			r.unseen[n.ID] = r.readState(n, kinds[n.ParentID])
		}
	}
	count := len(r.unseen)
	r.mu.Unlock()

	r.unsub = r.bus.Subscribe(r.handle,
		events.TypeNodeCreated,
		events.TypeNodeUpdated,
		events.TypeNodeDeleted,
		events.TypeNodeInteractionUpdated,
		events.TypeCollaborationCreated,
		events.TypeCollaborationDeleted,
	)

	r.logger.Debug("Radar initialized", "unseen", count)
	return nil
}

// Close cancels the bus subscription
func (r *Radar) Close() {
	if r.unsub != nil {
		r.unsub()
	}
}

// isUnseen is the one predicate deciding whether a message counts as unseen
// for the viewer. Caller holds r.mu.
func (r *Radar) isUnseen(n *models.Node) bool {
	if n.Type != models.NodeTypeMessage || n.CreatedBy == r.viewerID {
		return false
	}

	collaboration, ok := r.collaborations[n.RootID]
	if !ok || collaboration.CreatedAt.After(n.CreatedAt) {
		return false
	}

	if own, ok := r.interactions[n.ID]; ok && own.LastSeenAt != nil {
		return false
	}

	parent, ok := r.interactions[n.ParentID]
	if !ok || parent.FirstSeenAt == nil {
		return false
	}
	return !n.CreatedAt.Before(*parent.FirstSeenAt)
}

func (r *Radar) readState(n *models.Node, parentKind string) ReadState {
	return ReadState{
		NodeID:     n.ID,
		ParentID:   n.ParentID,
		ParentKind: parentKind,
		RootID:     n.RootID,
		Mentioned:  n.Mentioned(r.viewerID),
	}
}

func (r *Radar) handle(e events.Event) {
	ctx := context.Background()

	var changed bool
	switch ev := e.(type) {
	case events.NodeCreated:
		changed = r.onNode(ctx, ev.Node)
	case events.NodeUpdated:
		changed = r.onNode(ctx, ev.Node)
	case events.NodeDeleted:
		changed = r.onNodeDeleted(ev.NodeID)
	case events.NodeInteractionUpdated:
		changed = r.onInteraction(ctx, ev.Interaction)
	case events.CollaborationCreated:
		r.onCollaborationCreated(ev.Collaboration)
	case events.CollaborationDeleted:
		changed = r.onCollaborationDeleted(ev.Collaboration)
	}

	if changed {
		r.bus.Publish(events.RadarDataUpdated{})
	}
}

// onNode вставляет, обновляет или убирает сообщение
func (r *Radar) onNode(ctx context.Context, n *models.Node) bool {
	if n.Type != models.NodeTypeMessage {
		return r.onContainer(n)
	}
	parentKind := r.parentKind(ctx, n)

	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.unseen[n.ID]
	if !r.isUnseen(n) {
		delete(r.unseen, n.ID)
		return had
	}

	state := r.readState(n, parentKind)
	r.unseen[n.ID] = state
	return !had || prev != state
}

// onContainer проставляет тип родителя сообщениям, пришедшим раньше него
func (r *Radar) onContainer(n *models.Node) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for id, state := range r.unseen {
		if state.ParentID == n.ID && state.ParentKind != n.Type {
			state.ParentKind = n.Type
			r.unseen[id] = state
			changed = true
		}
	}
	return changed
}

func (r *Radar) onNodeDeleted(nodeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.interactions, nodeID)
	if _, ok := r.unseen[nodeID]; !ok {
		return false
	}
	delete(r.unseen, nodeID)
	return true
}

// onInteraction учитывает взаимодействие зрителя. Отметка lastSeenAt убирает
// сообщение; первое появление firstSeenAt у родителя переоценивает его сообщения.
func (r *Radar) onInteraction(ctx context.Context, i *models.NodeInteraction) bool {
	if i.CollaboratorID != r.viewerID {
		return false
	}

	r.mu.Lock()
	prev, had := r.interactions[i.NodeID]
	r.interactions[i.NodeID] = i

	changed := false
	if _, ok := r.unseen[i.NodeID]; ok && i.LastSeenAt != nil {
		delete(r.unseen, i.NodeID)
		changed = true
	}
	firstSeenChanged := i.FirstSeenAt != nil &&
		(!had || prev.FirstSeenAt == nil || !prev.FirstSeenAt.Equal(*i.FirstSeenAt))
	r.mu.Unlock()

	if firstSeenChanged && r.reevaluateChildren(ctx, i.RootID, i.NodeID) {
		changed = true
	}
	return changed
}

// reevaluateChildren пересчитывает сообщения одного родителя
func (r *Radar) reevaluateChildren(ctx context.Context, rootID, parentID string) bool {
	nodes, err := r.store.ListNodes(ctx, rootID)
	if err != nil {
		r.logger.Error("Failed to load nodes for radar", "root_id", rootID, "error", err)
		return false
	}

	var parentKind string
	for _, n := range nodes {
		if n.ID == parentID {
			parentKind = n.Type
			break
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	changed := false
	for _, n := range nodes {
		if n.ParentID != parentID || n.Type != models.NodeTypeMessage {
			continue
		}
		_, had := r.unseen[n.ID]
		if r.isUnseen(n) {
			if !had {
				r.unseen[n.ID] = r.readState(n, parentKind)
				changed = true
			}
			continue
		}
		if had {
			delete(r.unseen, n.ID)
			changed = true
		}
	}
	return changed
}

// onCollaborationCreated добавляет корень без пересчёта уже известных сообщений
func (r *Radar) onCollaborationCreated(c *models.Collaboration) {
	if c.CollaboratorID != r.viewerID {
		return
	}

	r.mu.Lock()
	r.collaborations[c.NodeID] = c
	r.mu.Unlock()
}

// onCollaborationDeleted убирает корень; его данные удаляются из реплики,
// поэтому сообщения корня уходят из набора
func (r *Radar) onCollaborationDeleted(c *models.Collaboration) bool {
	if c.CollaboratorID != r.viewerID {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.collaborations, c.NodeID)
	changed := false
	for id, state := range r.unseen {
		if state.RootID == c.NodeID {
			delete(r.unseen, id)
			changed = true
		}
	}
	for id, i := range r.interactions {
		if i.RootID == c.NodeID {
			delete(r.interactions, id)
		}
	}
	return changed
}

func (r *Radar) parentKind(ctx context.Context, n *models.Node) string {
	parent, err := r.store.GetNode(ctx, n.RootID, n.ParentID)
	if err != nil {
		if !errors.Is(err, storage.ErrNodeNotFound) {
			r.logger.Warn("Failed to load parent node", "node_id", n.ParentID, "error", err)
		}
		return ""
	}
	return parent.Type
}

// GetData returns the counters. It never touches storage.
func (r *Radar) GetData() Data {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data := Data{
		Nodes: make(map[string]NodeState),
		Roots: make(map[string]Counts),
		Kinds: make(map[string]Counts),
	}

	for _, s := range r.unseen {
		mention := 0
		if s.Mentioned {
			mention = 1
		}

		node := data.Nodes[s.ParentID]
		node.NodeID = s.ParentID
		node.Kind = s.ParentKind
		node.RootID = s.RootID
		node.Unseen++
		node.Mentions += mention
		data.Nodes[s.ParentID] = node

		root := data.Roots[s.RootID]
		root.Unseen++
		root.Mentions += mention
		data.Roots[s.RootID] = root

		kind := data.Kinds[s.ParentKind]
		kind.Unseen++
		kind.Mentions += mention
		data.Kinds[s.ParentKind] = kind

		data.Totals.Unseen++
		data.Totals.Mentions += mention
	}

	return data
}

// Unseen returns a copy of the unseen set keyed by message id
func (r *Radar) Unseen() map[string]ReadState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.unseen)
}
