package workspace

import (
	"context"
	"fmt"

	"github.com/iudanet/syncspace/internal/client/radar"
	"github.com/iudanet/syncspace/internal/models"
)

// Status сводка состояния реплики
type Status struct {
	Radar            radar.Data
	UserID           string
	WorkspaceID      string
	Cursors          []models.SyncCursor
	Roots            []string
	PendingMutations int
}

// Status reports pending mutations, cursors, synchronized roots and radar counters
func (s *Service) Status(ctx context.Context) (*Status, error) {
	pending, err := s.store.CountMutations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending mutations: %w", err)
	}

	cursors, err := s.store.ListCursors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}

	var roots []string
	collaborations, err := s.store.ListCollaborations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborations: %w", err)
	}
	for _, c := range collaborations {
		if c.Active() {
			roots = append(roots, c.NodeID)
		}
	}

	return &Status{
		UserID:           s.cfg.UserID,
		WorkspaceID:      s.cfg.WorkspaceID,
		PendingMutations: pending,
		Cursors:          cursors,
		Roots:            roots,
		Radar:            s.radar.GetData(),
	}, nil
}
