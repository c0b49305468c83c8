package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/syncspace/internal/client/storage"
	"github.com/iudanet/syncspace/internal/crdt"
	"github.com/iudanet/syncspace/internal/models"
)

// documentRecord состояние документа и ревизия последнего применённого фрагмента
type documentRecord struct {
	State    []byte `json:"state"`
	Revision int64  `json:"revision"`
}

// ApplyFile stores file metadata if it is newer than the local copy
func (s *Storage) ApplyFile(ctx context.Context, file *models.File) (bool, error) {
	applied := false

	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketFiles)
		key := compositeKey(file.RootID, file.ID)

		var existing models.File
		found, err := getJSON(bucket, key, &existing)
		if err != nil {
			return err
		}
		if found && existing.Revision >= file.Revision {
			return nil
		}

		applied = true
		return putJSON(bucket, key, file)
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply file %s: %w", file.ID, err)
	}

	return applied, nil
}

// ListFiles returns the files of a root
func (s *Storage) ListFiles(ctx context.Context, rootID string) ([]*models.File, error) {
	var files []*models.File

	err := s.view(func(tx *bbolt.Tx) error {
		return forEachPrefix(tx.Bucket(bucketFiles), keyPrefix(rootID), func(_, v []byte) error {
			var f models.File
			if err := json.Unmarshal(v, &f); err != nil {
				return fmt.Errorf("failed to unmarshal file: %w", err)
			}
			files = append(files, &f)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	return files, nil
}

// ApplyDocumentUpdate merges a server fragment into the document state.
// Fragments at or below the last applied revision are skipped.
func (s *Storage) ApplyDocumentUpdate(ctx context.Context, fragment *models.UpdateFragment) (bool, error) {
	applied := false

	err := s.update(func(tx *bbolt.Tx) error {
		key := compositeKey(fragment.RootID, fragment.EntityID)
		if tx.Bucket(bucketTombstones).Get(key) != nil {
			return nil
		}

		bucket := tx.Bucket(bucketDocuments)
		var record documentRecord
		if _, err := getJSON(bucket, key, &record); err != nil {
			return err
		}
		if record.Revision >= fragment.Revision {
			return nil
		}

		state, err := crdt.Merge(record.State, fragment.Data)
		if err != nil {
			return fmt.Errorf("failed to merge document state: %w", err)
		}

		applied = true
		return putJSON(bucket, key, documentRecord{State: state, Revision: fragment.Revision})
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply document update %s: %w", fragment.ID, err)
	}

	return applied, nil
}

// SaveLocalDocument merges a local delta into the document state
func (s *Storage) SaveLocalDocument(ctx context.Context, rootID, documentID string, data []byte) error {
	return s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDocuments)
		key := compositeKey(rootID, documentID)

		var record documentRecord
		if _, err := getJSON(bucket, key, &record); err != nil {
			return err
		}

		state, err := crdt.Merge(record.State, data)
		if err != nil {
			return fmt.Errorf("failed to merge document state: %w", err)
		}
		record.State = state

		return putJSON(bucket, key, record)
	})
}

// GetDocument returns the encoded document state
func (s *Storage) GetDocument(ctx context.Context, rootID, documentID string) ([]byte, error) {
	var record documentRecord

	err := s.view(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketDocuments), compositeKey(rootID, documentID), &record)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrDocumentNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return record.State, nil
}
