package mutation

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/syncspace/internal/models"
)

var nextTestID uint64

// mk создаёт мутацию с очередным ID
func mk(t *testing.T, kind models.MutationKind, entityID, userID string) *models.PendingMutation {
	t.Helper()

	var payload any = struct{}{}
	switch kind {
	case models.MutationReactionCreate, models.MutationReactionDelete:
		payload = models.ReactionPayload{Reaction: "+1"}
	case models.MutationUpdate, models.MutationDocumentUpdate:
		payload = models.UpdateNodePayload{Data: []byte{0x80}}
	}

	m, err := models.NewPendingMutation(kind, entityID, "root-1", userID, payload)
	require.NoError(t, err)
	nextTestID++
	m.ID = nextTestID
	return m
}

func reaction(t *testing.T, kind models.MutationKind, entityID, userID, emoji string) *models.PendingMutation {
	t.Helper()

	m, err := models.NewPendingMutation(kind, entityID, "root-1", userID, models.ReactionPayload{Reaction: emoji})
	require.NoError(t, err)
	nextTestID++
	m.ID = nextTestID
	return m
}

func keptIDs(ms []*models.PendingMutation) []uint64 {
	return ids(ms)
}

func TestCompact_ConcreteScenario(t *testing.T) {
	createA := mk(t, models.MutationCreate, "A", "u1")
	update1 := mk(t, models.MutationUpdate, "A", "u1")
	update2 := mk(t, models.MutationUpdate, "A", "u1")
	deleteA := mk(t, models.MutationDelete, "A", "u1")
	createB := mk(t, models.MutationCreate, "B", "u1")

	kept, dropped := Compact([]*models.PendingMutation{createA, update1, update2, deleteA, createB})

	assert.Equal(t, []uint64{createB.ID}, keptIDs(kept))
	assert.ElementsMatch(t, []uint64{createA.ID, update1.ID, update2.ID, deleteA.ID}, keptIDs(dropped))
}

func TestCompact_Rules(t *testing.T) {
	tests := []struct {
		name  string
		batch func() []*models.PendingMutation
		want  []int // индексы выживших
	}{
		{
			name: "delete drops earlier update and document update",
			batch: func() []*models.PendingMutation {
				return []*models.PendingMutation{
					mk(t, models.MutationUpdate, "A", "u1"),
					mk(t, models.MutationDocumentUpdate, "A", "u1"),
					mk(t, models.MutationDelete, "A", "u1"),
				}
			},
			want: []int{2},
		},
		{
			name: "delete drops earlier interaction and reactions",
			batch: func() []*models.PendingMutation {
				return []*models.PendingMutation{
					mk(t, models.MutationInteractionUpdate, "A", "u1"),
					mk(t, models.MutationReactionCreate, "A", "u2"),
					mk(t, models.MutationDelete, "A", "u1"),
				}
			},
			want: []int{2},
		},
		{
			name: "duplicate delete keeps the latest",
			batch: func() []*models.PendingMutation {
				return []*models.PendingMutation{
					mk(t, models.MutationDelete, "A", "u1"),
					mk(t, models.MutationCreate, "B", "u1"),
					mk(t, models.MutationDelete, "A", "u1"),
				}
			},
			want: []int{1, 2},
		},
		{
			name: "delete before create is not cancelled",
			batch: func() []*models.PendingMutation {
				return []*models.PendingMutation{
					mk(t, models.MutationDelete, "A", "u1"),
					mk(t, models.MutationCreate, "A", "u1"),
				}
			},
			want: []int{0, 1},
		},
		{
			name: "recreated entity keeps the new create",
			batch: func() []*models.PendingMutation {
				return []*models.PendingMutation{
					mk(t, models.MutationDelete, "A", "u1"),
					mk(t, models.MutationCreate, "A", "u1"),
					mk(t, models.MutationDelete, "A", "u1"),
				}
			},
			want: []int{0},
		},
		{
			name: "updates of other entities survive",
			batch: func() []*models.PendingMutation {
				return []*models.PendingMutation{
					mk(t, models.MutationUpdate, "B", "u1"),
					mk(t, models.MutationUpdate, "A", "u1"),
					mk(t, models.MutationDelete, "A", "u1"),
					mk(t, models.MutationUpdate, "B", "u1"),
				}
			},
			want: []int{0, 2, 3},
		},
		{
			name: "interaction updates are keyed by user",
			batch: func() []*models.PendingMutation {
				return []*models.PendingMutation{
					mk(t, models.MutationInteractionUpdate, "A", "u1"),
					mk(t, models.MutationInteractionUpdate, "A", "u2"),
					mk(t, models.MutationInteractionUpdate, "A", "u1"),
				}
			},
			want: []int{1, 2},
		},
		{
			name: "reaction set then unset keeps the unset",
			batch: func() []*models.PendingMutation {
				return []*models.PendingMutation{
					reaction(t, models.MutationReactionCreate, "A", "u1", "+1"),
					reaction(t, models.MutationReactionCreate, "A", "u1", "heart"),
					reaction(t, models.MutationReactionDelete, "A", "u1", "+1"),
				}
			},
			want: []int{1, 2},
		},
		{
			name: "updates are never merged",
			batch: func() []*models.PendingMutation {
				return []*models.PendingMutation{
					mk(t, models.MutationCreate, "A", "u1"),
					mk(t, models.MutationUpdate, "A", "u1"),
					mk(t, models.MutationUpdate, "A", "u1"),
				}
			},
			want: []int{0, 1, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := tt.batch()
			kept, dropped := Compact(batch)

			var want []uint64
			for _, i := range tt.want {
				want = append(want, batch[i].ID)
			}
			assert.Equal(t, want, keptIDs(kept))
			assert.Len(t, dropped, len(batch)-len(tt.want))
		})
	}
}

func TestCompact_PerKeyLatestWins(t *testing.T) {
	var batch []*models.PendingMutation
	for i := 0; i < 5; i++ {
		batch = append(batch, mk(t, models.MutationInteractionUpdate, "A", "u1"))
		batch = append(batch, mk(t, models.MutationUpdate, fmt.Sprintf("other-%d", i), "u1"))
	}
	last := batch[8]

	kept, _ := Compact(batch)

	var interactions []*models.PendingMutation
	for _, m := range kept {
		if m.Kind == models.MutationInteractionUpdate {
			interactions = append(interactions, m)
		}
	}
	require.Len(t, interactions, 1)
	assert.Equal(t, last.ID, interactions[0].ID)

	// Относительная позиция сохранена: после other-3 и перед other-4
	assert.Equal(t, "other-3", kept[3].EntityID)
	assert.Equal(t, last.ID, kept[4].ID)
	assert.Equal(t, "other-4", kept[5].EntityID)
}

// randomBatch генерирует пачку мутаций над небольшим набором ключей
func randomBatch(t *testing.T, rng *rand.Rand, n int) []*models.PendingMutation {
	kinds := []models.MutationKind{
		models.MutationCreate, models.MutationUpdate, models.MutationDelete,
		models.MutationInteractionUpdate, models.MutationDocumentUpdate,
		models.MutationReactionCreate, models.MutationReactionDelete,
	}
	entities := []string{"A", "B", "C"}
	users := []string{"u1", "u2"}
	emojis := []string{"+1", "heart"}

	batch := make([]*models.PendingMutation, 0, n)
	for i := 0; i < n; i++ {
		kind := kinds[rng.Intn(len(kinds))]
		entity := entities[rng.Intn(len(entities))]
		user := users[rng.Intn(len(users))]
		if kind == models.MutationReactionCreate || kind == models.MutationReactionDelete {
			batch = append(batch, reaction(t, kind, entity, user, emojis[rng.Intn(len(emojis))]))
			continue
		}
		batch = append(batch, mk(t, kind, entity, user))
	}
	return batch
}

func TestCompact_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		batch := randomBatch(t, rng, 1+rng.Intn(20))
		kept, dropped := Compact(batch)

		require.Equal(t, len(batch), len(kept)+len(dropped))

		// Идемпотентность
		again, droppedAgain := Compact(kept)
		require.Equal(t, keptIDs(kept), keptIDs(again), "batch %d", iter)
		require.Empty(t, droppedAgain)

		// Порядок сохранён: ID выживших возрастают, как во входной пачке
		for i := 1; i < len(kept); i++ {
			require.Less(t, kept[i-1].ID, kept[i].ID)
		}

		// Не остаётся create(id), за которым следует delete(id)
		created := map[string]bool{}
		for _, m := range kept {
			switch m.Kind {
			case models.MutationCreate:
				created[m.EntityID] = true
			case models.MutationDelete:
				require.False(t, created[m.EntityID], "create+delete of %s survived", m.EntityID)
			}
		}

		// Per-key мутации уникальны по ключу
		seen := map[string]bool{}
		for _, m := range kept {
			var key string
			switch m.Kind {
			case models.MutationInteractionUpdate:
				key = "i/" + m.EntityID + "/" + m.UserID
			case models.MutationReactionCreate, models.MutationReactionDelete:
				key = "r/" + m.EntityID + "/" + m.UserID + "/" + reactionOf(m)
			default:
				continue
			}
			require.False(t, seen[key], "duplicate key %s", key)
			seen[key] = true
		}
	}
}
