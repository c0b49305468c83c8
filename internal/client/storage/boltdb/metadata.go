package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	keyReplicaID    = []byte("replica_id")
	keyClockCounter = []byte("clock_counter")
)

// LoadClock returns the persisted replica id and Lamport counter
func (s *Storage) LoadClock(ctx context.Context) (string, int64, error) {
	var (
		replicaID string
		counter   int64
	)

	err := s.view(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)

		replicaID = string(bucket.Get(keyReplicaID))
		if raw := bucket.Get(keyClockCounter); len(raw) == 8 {
			counter = int64(binary.BigEndian.Uint64(raw))
		}
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to load clock: %w", err)
	}

	return replicaID, counter, nil
}

// SaveClock persists the replica id and Lamport counter
func (s *Storage) SaveClock(ctx context.Context, replicaID string, counter int64) error {
	return s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketMetadata)

		if err := bucket.Put(keyReplicaID, []byte(replicaID)); err != nil {
			return fmt.Errorf("failed to save replica id: %w", err)
		}
		if err := bucket.Put(keyClockCounter, itob(uint64(counter))); err != nil {
			return fmt.Errorf("failed to save clock counter: %w", err)
		}
		return nil
	})
}
