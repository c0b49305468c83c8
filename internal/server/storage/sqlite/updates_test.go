package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/storage"
)

func appendFragment(t *testing.T, s *Storage, entityID string, createdAt time.Time) *models.UpdateFragment {
	t.Helper()
	fragment := &models.UpdateFragment{
		EntityID:    entityID,
		RootID:      "root-1",
		WorkspaceID: testWorkspace,
		CreatedBy:   "user-1",
		CreatedAt:   createdAt,
		Data:        testState(t, "user-1", map[string]any{"at": createdAt.Unix()}),
	}
	require.NoError(t, s.AppendUpdate(context.Background(), models.UpdateKindNode, fragment))
	return fragment
}

func TestUpdateLog_ListUpdatesForMerge(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	f1 := appendFragment(t, s, "e1", base)
	f2 := appendFragment(t, s, "e2", base.Add(10*time.Second))
	appendFragment(t, s, "e1", base.Add(700*time.Second))

	tests := []struct {
		name          string
		after         int64
		createdBefore time.Time
		limit         int
		wantIDs       []string
	}{
		{
			name:          "only fragments older than cutoff",
			createdBefore: base.Add(110 * time.Second),
			limit:         10,
			wantIDs:       []string{f1.ID, f2.ID},
		},
		{
			name:          "resumes after cursor",
			after:         f1.Revision,
			createdBefore: base.Add(110 * time.Second),
			limit:         10,
			wantIDs:       []string{f2.ID},
		},
		{
			name:          "respects limit",
			createdBefore: base.Add(time.Hour),
			limit:         1,
			wantIDs:       []string{f1.ID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fragments, err := s.ListUpdatesForMerge(ctx, models.UpdateKindNode, tt.after, tt.createdBefore, tt.limit)
			require.NoError(t, err)

			ids := make([]string, 0, len(fragments))
			for _, f := range fragments {
				ids = append(ids, f.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestUpdateLog_GetPrecedingUpdate(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	old := appendFragment(t, s, "e1", base)
	recent := appendFragment(t, s, "e1", base.Add(2*time.Hour))
	current := appendFragment(t, s, "e1", base.Add(2*time.Hour+time.Minute))

	got, err := s.GetPrecedingUpdate(ctx, models.UpdateKindNode, "e1", current.Revision, current.CreatedAt.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, recent.ID, got.ID)

	_, err = s.GetPrecedingUpdate(ctx, models.UpdateKindNode, "e1", recent.Revision, recent.CreatedAt.Add(-time.Hour))
	assert.ErrorIs(t, err, storage.ErrFragmentNotFound, "fragment %s is outside the back-reference", old.ID)
}

func TestUpdateLog_MergeUpdates(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	f1 := appendFragment(t, s, "e1", base)
	f2 := appendFragment(t, s, "e1", base.Add(10*time.Second))

	survivor := *f2
	survivor.Data = testState(t, "user-1", map[string]any{"merged": true})
	survivor.MergedFragments = []models.MergedFragment{f1.AuditEntry()}

	require.NoError(t, s.MergeUpdates(ctx, models.UpdateKindNode, &survivor, []string{f1.ID}))

	fragments, err := s.ListUpdates(ctx, models.UpdateKindNode, "e1")
	require.NoError(t, err)
	require.Len(t, fragments, 1)
	assert.Equal(t, f2.ID, fragments[0].ID)
	assert.Equal(t, f2.Revision, fragments[0].Revision)
	assert.Equal(t, survivor.Data, fragments[0].Data)
	require.Len(t, fragments[0].MergedFragments, 1)
	assert.Equal(t, f1.ID, fragments[0].MergedFragments[0].ID)
	assert.True(t, f1.CreatedAt.Equal(fragments[0].MergedFragments[0].CreatedAt))
}

func TestUpdateLog_MergeUpdates_Conflict(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	f1 := appendFragment(t, s, "e1", base)
	f2 := appendFragment(t, s, "e1", base.Add(10*time.Second))

	t.Run("survivor revision changed", func(t *testing.T) {
		survivor := *f2
		survivor.Revision++
		err := s.MergeUpdates(ctx, models.UpdateKindNode, &survivor, []string{f1.ID})
		assert.ErrorIs(t, err, storage.ErrMergeConflict)
	})

	t.Run("merged fragment already gone", func(t *testing.T) {
		survivor := *f2
		err := s.MergeUpdates(ctx, models.UpdateKindNode, &survivor, []string{f1.ID, "missing"})
		assert.ErrorIs(t, err, storage.ErrMergeConflict)
	})

	// Транзакция откатилась: оба фрагмента на месте
	fragments, err := s.ListUpdates(ctx, models.UpdateKindNode, "e1")
	require.NoError(t, err)
	assert.Len(t, fragments, 2)
}

func TestUpdateLog_UnknownKind(t *testing.T) {
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	_, err := s.ListUpdates(context.Background(), models.UpdateKind("blob"), "e1")
	assert.ErrorIs(t, err, storage.ErrUnknownUpdateKind)
}
