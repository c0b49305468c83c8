package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/syncspace/internal/client/storage"
	"github.com/iudanet/syncspace/internal/models"
)

// ApplyUser stores a user if it is newer than the local copy
func (s *Storage) ApplyUser(ctx context.Context, user *models.WorkspaceUser) (bool, error) {
	applied := false

	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketUsers)
		key := []byte(user.ID)

		var existing models.WorkspaceUser
		found, err := getJSON(bucket, key, &existing)
		if err != nil {
			return err
		}
		if found && existing.Revision >= user.Revision {
			return nil
		}

		applied = true
		return putJSON(bucket, key, user)
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply user %s: %w", user.ID, err)
	}

	return applied, nil
}

// ListUsers returns all users of the workspace
func (s *Storage) ListUsers(ctx context.Context) ([]*models.WorkspaceUser, error) {
	var users []*models.WorkspaceUser

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(_, v []byte) error {
			var u models.WorkspaceUser
			if err := json.Unmarshal(v, &u); err != nil {
				return fmt.Errorf("failed to unmarshal user: %w", err)
			}
			users = append(users, &u)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	return users, nil
}

// ApplyCollaboration stores a collaboration if it is newer than the local copy
func (s *Storage) ApplyCollaboration(ctx context.Context, collaboration *models.Collaboration) (bool, error) {
	applied := false

	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketCollaborations)
		key := compositeKey(collaboration.NodeID, collaboration.CollaboratorID)

		var existing models.Collaboration
		found, err := getJSON(bucket, key, &existing)
		if err != nil {
			return err
		}
		if found && existing.Revision >= collaboration.Revision {
			return nil
		}

		applied = true
		return putJSON(bucket, key, collaboration)
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply collaboration %s: %w", collaboration.NodeID, err)
	}

	return applied, nil
}

// GetCollaboration returns the collaboration of userID on rootID
func (s *Storage) GetCollaboration(ctx context.Context, rootID, userID string) (*models.Collaboration, error) {
	collaboration := &models.Collaboration{}

	err := s.view(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketCollaborations), compositeKey(rootID, userID), collaboration)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrCollaborationNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return collaboration, nil
}

// ListCollaborations returns all known collaborations, revoked ones included
func (s *Storage) ListCollaborations(ctx context.Context) ([]*models.Collaboration, error) {
	var collaborations []*models.Collaboration

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCollaborations).ForEach(func(_, v []byte) error {
			var c models.Collaboration
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("failed to unmarshal collaboration: %w", err)
			}
			collaborations = append(collaborations, &c)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list collaborations: %w", err)
	}

	return collaborations, nil
}
