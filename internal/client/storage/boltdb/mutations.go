package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/syncspace/internal/models"
)

// AppendMutation stores the mutation under the bucket's next sequence number
func (s *Storage) AppendMutation(ctx context.Context, mutation *models.PendingMutation) (uint64, error) {
	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMutations)

		id, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate mutation id: %w", err)
		}
		mutation.ID = id

		return putJSON(bucket, itob(id), mutation)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to append mutation: %w", err)
	}

	return mutation.ID, nil
}

// ListMutations returns up to limit oldest mutations
func (s *Storage) ListMutations(ctx context.Context, limit int) ([]*models.PendingMutation, error) {
	var mutations []*models.PendingMutation

	err := s.view(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketMutations).Cursor()
		for k, v := c.First(); k != nil && (limit <= 0 || len(mutations) < limit); k, v = c.Next() {
			var m models.PendingMutation
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("failed to unmarshal mutation: %w", err)
			}
			mutations = append(mutations, &m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list mutations: %w", err)
	}

	return mutations, nil
}

// DeleteMutations removes mutations by id
func (s *Storage) DeleteMutations(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}

	return s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMutations)
		for _, id := range ids {
			if err := bucket.Delete(itob(id)); err != nil {
				return fmt.Errorf("failed to delete mutation %d: %w", id, err)
			}
		}
		return nil
	})
}

// IncrementRetries bumps RetryCount of the given mutations
func (s *Storage) IncrementRetries(ctx context.Context, ids []uint64) ([]*models.PendingMutation, error) {
	var updated []*models.PendingMutation

	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMutations)
		for _, id := range ids {
			var m models.PendingMutation
			found, err := getJSON(bucket, itob(id), &m)
			if err != nil {
				return err
			}
			if !found {
				continue
			}

			m.RetryCount++
			if err := putJSON(bucket, itob(id), &m); err != nil {
				return err
			}
			updated = append(updated, &m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to increment retries: %w", err)
	}

	return updated, nil
}

// CountMutations returns the number of pending mutations
func (s *Storage) CountMutations(ctx context.Context) (int, error) {
	var n int
	err := s.view(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketMutations).Stats().KeyN
		return nil
	})
	return n, err
}
