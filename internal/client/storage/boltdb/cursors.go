package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/syncspace/internal/models"
)

// GetCursor returns the last applied position of a stream (0 if absent)
func (s *Storage) GetCursor(ctx context.Context, streamKey string) (int64, error) {
	var cursor models.SyncCursor

	err := s.view(func(tx *bbolt.Tx) error {
		_, err := getJSON(tx.Bucket(bucketCursors), []byte(streamKey), &cursor)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get cursor %s: %w", streamKey, err)
	}

	return cursor.Position, nil
}

// SaveCursor persists the position of a stream
func (s *Storage) SaveCursor(ctx context.Context, streamKey string, position int64) error {
	return s.update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketCursors), []byte(streamKey), models.SyncCursor{
			StreamKey: streamKey,
			Position:  position,
			UpdatedAt: time.Now().UTC(),
		})
	})
}

// DeleteCursor removes the cursor of a stream
func (s *Storage) DeleteCursor(ctx context.Context, streamKey string) error {
	return s.update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).Delete([]byte(streamKey))
	})
}

// ListCursors returns all cursors ordered by stream key
func (s *Storage) ListCursors(ctx context.Context) ([]models.SyncCursor, error) {
	var cursors []models.SyncCursor

	err := s.view(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCursors).ForEach(func(_, v []byte) error {
			var c models.SyncCursor
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("failed to unmarshal cursor: %w", err)
			}
			cursors = append(cursors, c)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}

	return cursors, nil
}
