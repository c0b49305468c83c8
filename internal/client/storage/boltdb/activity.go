package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/syncspace/internal/client/storage"
	"github.com/iudanet/syncspace/internal/models"
)

func interactionKey(i *models.NodeInteraction) []byte {
	return compositeKey(i.RootID, i.NodeID, i.CollaboratorID)
}

func reactionKey(r *models.NodeReaction) []byte {
	return compositeKey(r.RootID, r.NodeID, r.CollaboratorID, r.Reaction)
}

// ApplyInteraction stores a server interaction. Local timestamps that the
// server has not seen yet are folded in with the same min/max rule.
func (s *Storage) ApplyInteraction(ctx context.Context, interaction *models.NodeInteraction) (bool, error) {
	applied := false

	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketInteractions)
		key := interactionKey(interaction)

		var existing models.NodeInteraction
		found, err := getJSON(bucket, key, &existing)
		if err != nil {
			return err
		}
		if found && existing.Revision >= interaction.Revision {
			return nil
		}

		incoming := *interaction
		if found {
			incoming.Merge(existing.FirstSeenAt, existing.LastSeenAt, existing.FirstOpenedAt, existing.LastOpenedAt)
		}

		applied = true
		return putJSON(bucket, key, &incoming)
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply interaction %s: %w", interaction.NodeID, err)
	}

	return applied, nil
}

// SaveLocalInteraction folds local timestamps into the stored interaction
func (s *Storage) SaveLocalInteraction(ctx context.Context, interaction *models.NodeInteraction) (*models.NodeInteraction, error) {
	var result models.NodeInteraction

	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketInteractions)
		key := interactionKey(interaction)

		found, err := getJSON(bucket, key, &result)
		if err != nil {
			return err
		}
		if !found {
			result = models.NodeInteraction{
				NodeID:         interaction.NodeID,
				CollaboratorID: interaction.CollaboratorID,
				RootID:         interaction.RootID,
				WorkspaceID:    interaction.WorkspaceID,
			}
		}

		result.Merge(interaction.FirstSeenAt, interaction.LastSeenAt, interaction.FirstOpenedAt, interaction.LastOpenedAt)
		return putJSON(bucket, key, &result)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save local interaction %s: %w", interaction.NodeID, err)
	}

	return &result, nil
}

// GetInteraction returns the interaction of userID with a node
func (s *Storage) GetInteraction(ctx context.Context, rootID, nodeID, userID string) (*models.NodeInteraction, error) {
	interaction := &models.NodeInteraction{}

	err := s.view(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketInteractions), compositeKey(rootID, nodeID, userID), interaction)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrInteractionNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return interaction, nil
}

// ListInteractions returns the interactions of one collaborator
func (s *Storage) ListInteractions(ctx context.Context, userID string) ([]*models.NodeInteraction, error) {
	var interactions []*models.NodeInteraction

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketInteractions).ForEach(func(_, v []byte) error {
			var i models.NodeInteraction
			if err := json.Unmarshal(v, &i); err != nil {
				return fmt.Errorf("failed to unmarshal interaction: %w", err)
			}
			if i.CollaboratorID == userID {
				interactions = append(interactions, &i)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}

	return interactions, nil
}

// ApplyReaction stores a server reaction if it is newer than the local copy
func (s *Storage) ApplyReaction(ctx context.Context, reaction *models.NodeReaction) (bool, error) {
	applied := false

	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketReactions)
		key := reactionKey(reaction)

		var existing models.NodeReaction
		found, err := getJSON(bucket, key, &existing)
		if err != nil {
			return err
		}
		if found && existing.Revision >= reaction.Revision {
			return nil
		}

		applied = true
		return putJSON(bucket, key, reaction)
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply reaction on %s: %w", reaction.NodeID, err)
	}

	return applied, nil
}

// SaveLocalReaction records a local reaction change keeping the stored revision
func (s *Storage) SaveLocalReaction(ctx context.Context, reaction *models.NodeReaction) error {
	return s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketReactions)
		key := reactionKey(reaction)

		local := *reaction
		var existing models.NodeReaction
		found, err := getJSON(bucket, key, &existing)
		if err != nil {
			return err
		}
		if found {
			local.Revision = existing.Revision
		}

		return putJSON(bucket, key, &local)
	})
}

// ListReactions returns the active reactions on a node
func (s *Storage) ListReactions(ctx context.Context, rootID, nodeID string) ([]*models.NodeReaction, error) {
	var reactions []*models.NodeReaction

	err := s.view(func(tx *bbolt.Tx) error {
		return forEachPrefix(tx.Bucket(bucketReactions), keyPrefix(rootID, nodeID), func(_, v []byte) error {
			var r models.NodeReaction
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("failed to unmarshal reaction: %w", err)
			}
			if r.DeletedAt == nil {
				reactions = append(reactions, &r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list reactions: %w", err)
	}

	return reactions, nil
}
