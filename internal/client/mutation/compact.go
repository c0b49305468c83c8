package mutation

import (
	"slices"

	"github.com/iudanet/syncspace/internal/models"
)

// verdict решение правила для пары (более ранняя, более поздняя) мутаций одной сущности
type verdict int

const (
	keepBoth    verdict = iota // мутации независимы
	dropEarlier                // более ранняя мутация больше не нужна
	dropBoth                   // пара взаимно уничтожается
)

// rule decides the fate of an earlier mutation given a later surviving
// mutation of the same entity.
type rule func(earlier, later *models.PendingMutation) verdict

type kindPair struct {
	earlier models.MutationKind
	later   models.MutationKind
}

// rules one entry per kind pair; pairs not listed keep both mutations.
var rules = map[kindPair]rule{
	// create + delete: сущность не покидала реплику
	{models.MutationCreate, models.MutationDelete}: cancelCreate,

	// delete делает бессмысленными все более ранние изменения сущности
	{models.MutationUpdate, models.MutationDelete}:            supersededByDelete,
	{models.MutationDocumentUpdate, models.MutationDelete}:    supersededByDelete,
	{models.MutationInteractionUpdate, models.MutationDelete}: supersededByDelete,
	{models.MutationReactionCreate, models.MutationDelete}:    supersededByDelete,
	{models.MutationReactionDelete, models.MutationDelete}:    supersededByDelete,
	{models.MutationDelete, models.MutationDelete}:            supersededByDelete,

	// per-key мутации: выживает последняя по ключу
	{models.MutationInteractionUpdate, models.MutationInteractionUpdate}: latestPerUser,
	{models.MutationReactionCreate, models.MutationReactionCreate}:       latestPerReaction,
	{models.MutationReactionCreate, models.MutationReactionDelete}:       latestPerReaction,
	{models.MutationReactionDelete, models.MutationReactionCreate}:       latestPerReaction,
	{models.MutationReactionDelete, models.MutationReactionDelete}:       latestPerReaction,
}

func cancelCreate(_, _ *models.PendingMutation) verdict {
	return dropBoth
}

func supersededByDelete(_, _ *models.PendingMutation) verdict {
	return dropEarlier
}

func latestPerUser(earlier, later *models.PendingMutation) verdict {
	if earlier.UserID == later.UserID {
		return dropEarlier
	}
	return keepBoth
}

func latestPerReaction(earlier, later *models.PendingMutation) verdict {
	if earlier.UserID != later.UserID {
		return keepBoth
	}
	if reactionOf(earlier) == reactionOf(later) {
		return dropEarlier
	}
	return keepBoth
}

// reactionOf извлекает реакцию; нечитаемый payload не совпадает ни с чем
func reactionOf(m *models.PendingMutation) string {
	var p models.ReactionPayload
	if err := m.Decode(&p); err != nil {
		return "\x00invalid:" + string(m.Kind)
	}
	return p.Reaction
}

// Compact reduces a batch of mutations in one backward pass. Surviving
// mutations keep their relative order; dropped holds the removed ones.
// Compacting an already compacted batch returns it unchanged.
func Compact(batch []*models.PendingMutation) (kept, dropped []*models.PendingMutation) {
	removed := make([]bool, len(batch))
	// индексы выживших более поздних мутаций по сущности, ближайшая первой
	later := make(map[string][]int)

	for i := len(batch) - 1; i >= 0; i-- {
		m := batch[i]
		survivors := later[m.EntityID]

		drop := false
		for pos, j := range survivors {
			r, ok := rules[kindPair{earlier: m.Kind, later: batch[j].Kind}]
			if !ok {
				continue
			}

			v := r(m, batch[j])
			if v == keepBoth {
				continue
			}
			drop = true
			if v == dropBoth {
				removed[j] = true
				survivors = slices.Delete(slices.Clone(survivors), pos, pos+1)
			}
			break
		}

		if drop {
			removed[i] = true
			later[m.EntityID] = survivors
			continue
		}
		later[m.EntityID] = append([]int{i}, survivors...)
	}

	for i, m := range batch {
		if removed[i] {
			dropped = append(dropped, m)
		} else {
			kept = append(kept, m)
		}
	}
	return kept, dropped
}
