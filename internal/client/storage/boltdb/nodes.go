package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/syncspace/internal/client/storage"
	"github.com/iudanet/syncspace/internal/crdt"
	"github.com/iudanet/syncspace/internal/models"
)

// ApplyNode stores a server node. The CRDT state is merged with the local
// state, so unacknowledged local edits survive a newer server revision.
func (s *Storage) ApplyNode(ctx context.Context, node *models.Node) (bool, error) {
	applied := false

	err := s.update(func(tx *bbolt.Tx) error {
		key := compositeKey(node.RootID, node.ID)

		// Удалённый узел не воскрешаем
		if tx.Bucket(bucketTombstones).Get(key) != nil {
			return nil
		}

		bucket := tx.Bucket(bucketNodes)
		var existing models.Node
		found, err := getJSON(bucket, key, &existing)
		if err != nil {
			return err
		}
		if found && existing.Revision >= node.Revision {
			return nil
		}

		incoming := node.Clone()
		if found {
			if err := mergeNodeState(incoming, existing.State); err != nil {
				return err
			}
		}

		applied = true
		return putJSON(bucket, key, incoming)
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply node %s: %w", node.ID, err)
	}

	return applied, nil
}

// SaveLocalNode merges a local edit into the stored node keeping its revision
func (s *Storage) SaveLocalNode(ctx context.Context, node *models.Node) error {
	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketNodes)
		key := compositeKey(node.RootID, node.ID)

		local := node.Clone()

		var existing models.Node
		found, err := getJSON(bucket, key, &existing)
		if err != nil {
			return err
		}
		if found {
			local.Revision = existing.Revision
			local.CreatedAt = existing.CreatedAt
			local.CreatedBy = existing.CreatedBy
			if err := mergeNodeState(local, existing.State); err != nil {
				return err
			}
		} else if err := mergeNodeState(local, nil); err != nil {
			return err
		}

		return putJSON(bucket, key, local)
	})
	if err != nil {
		return fmt.Errorf("failed to save local node %s: %w", node.ID, err)
	}
	return nil
}

// mergeNodeState вливает other в состояние узла и пересчитывает атрибуты
func mergeNodeState(node *models.Node, other []byte) error {
	merged, err := crdt.Merge(node.State, other)
	if err != nil {
		return fmt.Errorf("failed to merge node state: %w", err)
	}
	doc, err := crdt.Decode(merged)
	if err != nil {
		return err
	}

	node.State = merged
	node.Attributes = doc.Attributes()
	return nil
}

// GetNode returns a node of a root
func (s *Storage) GetNode(ctx context.Context, rootID, nodeID string) (*models.Node, error) {
	node := &models.Node{}

	err := s.view(func(tx *bbolt.Tx) error {
		found, err := getJSON(tx.Bucket(bucketNodes), compositeKey(rootID, nodeID), node)
		if err != nil {
			return err
		}
		if !found {
			return storage.ErrNodeNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return node, nil
}

// ListNodes returns the nodes of a root, or all nodes when rootID is empty
func (s *Storage) ListNodes(ctx context.Context, rootID string) ([]*models.Node, error) {
	var nodes []*models.Node

	collect := func(_, v []byte) error {
		var n models.Node
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("failed to unmarshal node: %w", err)
		}
		nodes = append(nodes, &n)
		return nil
	}

	err := s.view(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketNodes)
		if rootID == "" {
			return bucket.ForEach(collect)
		}
		return forEachPrefix(bucket, keyPrefix(rootID), collect)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	return nodes, nil
}

// DeleteLocalNode removes a node and all its descendants. Each removed node
// gets a provisional tombstone with revision 0, so a node pulled before the
// server acknowledges the delete is not restored; the server tombstone
// replaces it later.
func (s *Storage) DeleteLocalNode(ctx context.Context, rootID, nodeID string) ([]string, error) {
	var removed []string
	deletedAt := time.Now().UTC()

	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketNodes)
		if bucket.Get(compositeKey(rootID, nodeID)) == nil {
			return storage.ErrNodeNotFound
		}

		// Строим индекс детей по parent_id внутри корня
		children := make(map[string][]string)
		err := forEachPrefix(bucket, keyPrefix(rootID), func(_, v []byte) error {
			var n models.Node
			if err := json.Unmarshal(v, &n); err != nil {
				return fmt.Errorf("failed to unmarshal node: %w", err)
			}
			children[n.ParentID] = append(children[n.ParentID], n.ID)
			return nil
		})
		if err != nil {
			return err
		}

		queue := []string{nodeID}
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			queue = append(queue, children[id]...)

			if err := deleteNodeData(tx, rootID, id); err != nil {
				return err
			}
			if err := putLocalTombstone(tx, rootID, id, deletedAt); err != nil {
				return err
			}
			removed = append(removed, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return removed, nil
}

// ApplyTombstone removes the node and its dependent data
func (s *Storage) ApplyTombstone(ctx context.Context, tombstone *models.NodeTombstone) (bool, error) {
	applied := false

	err := s.update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketTombstones)
		key := compositeKey(tombstone.RootID, tombstone.ID)

		var existing models.NodeTombstone
		found, err := getJSON(bucket, key, &existing)
		if err != nil {
			return err
		}
		if found && existing.Revision >= tombstone.Revision {
			return nil
		}

		if err := deleteNodeData(tx, tombstone.RootID, tombstone.ID); err != nil {
			return err
		}

		applied = true
		return putJSON(bucket, key, tombstone)
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply tombstone %s: %w", tombstone.ID, err)
	}

	return applied, nil
}

// putLocalTombstone пишет временное надгробие, если серверного ещё нет
func putLocalTombstone(tx *bbolt.Tx, rootID, nodeID string, deletedAt time.Time) error {
	bucket := tx.Bucket(bucketTombstones)
	key := compositeKey(rootID, nodeID)
	if bucket.Get(key) != nil {
		return nil
	}

	return putJSON(bucket, key, &models.NodeTombstone{
		ID:        nodeID,
		RootID:    rootID,
		DeletedAt: deletedAt,
	})
}

// deleteNodeData удаляет узел, его взаимодействия, реакции и документ
func deleteNodeData(tx *bbolt.Tx, rootID, nodeID string) error {
	key := compositeKey(rootID, nodeID)

	if err := tx.Bucket(bucketNodes).Delete(key); err != nil {
		return fmt.Errorf("failed to delete node %s: %w", nodeID, err)
	}
	if err := tx.Bucket(bucketDocuments).Delete(key); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", nodeID, err)
	}
	if err := deletePrefix(tx.Bucket(bucketInteractions), keyPrefix(rootID, nodeID)); err != nil {
		return err
	}
	return deletePrefix(tx.Bucket(bucketReactions), keyPrefix(rootID, nodeID))
}

// DeleteRootData removes every entity and cursor of a root
func (s *Storage) DeleteRootData(ctx context.Context, rootID string) error {
	return s.update(func(tx *bbolt.Tx) error {
		prefix := keyPrefix(rootID)
		for _, name := range rootBuckets {
			if err := deletePrefix(tx.Bucket(name), prefix); err != nil {
				return fmt.Errorf("failed to clear %s of root %s: %w", name, rootID, err)
			}
		}

		cursors := tx.Bucket(bucketCursors)
		for _, stream := range models.RootStreams {
			if err := cursors.Delete([]byte(models.StreamKey(stream, rootID))); err != nil {
				return fmt.Errorf("failed to delete cursor: %w", err)
			}
		}
		return nil
	})
}
