package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/syncspace/internal/client/storage"
)

var (
	// BoltDB bucket names
	bucketAuth           = []byte("auth")
	bucketMetadata       = []byte("metadata")
	bucketMutations      = []byte("mutations")
	bucketCursors        = []byte("cursors")
	bucketUsers          = []byte("users")
	bucketCollaborations = []byte("collaborations")
	bucketNodes          = []byte("nodes")
	bucketTombstones     = []byte("node_tombstones")
	bucketInteractions   = []byte("node_interactions")
	bucketReactions      = []byte("node_reactions")
	bucketFiles          = []byte("files")
	bucketDocuments      = []byte("documents")

	allBuckets = [][]byte{
		bucketAuth, bucketMetadata, bucketMutations, bucketCursors,
		bucketUsers, bucketCollaborations, bucketNodes, bucketTombstones,
		bucketInteractions, bucketReactions, bucketFiles, bucketDocuments,
	}

	// rootBuckets хранят данные, привязанные к корню (ключ начинается с rootID)
	rootBuckets = [][]byte{
		bucketNodes, bucketTombstones, bucketInteractions,
		bucketReactions, bucketFiles, bucketDocuments,
	}
)

// keySep разделитель частей составного ключа
const keySep = "\x1f"

var _ storage.Storage = (*Storage)(nil)

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB; таймаут на случай, если файл держит другой процесс
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	// Инициализируем buckets
	if err := storage.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// update выполняет read-write транзакцию
func (s *Storage) update(fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	return s.db.Update(fn)
}

// view выполняет read-only транзакцию
func (s *Storage) view(fn func(tx *bbolt.Tx) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	return s.db.View(fn)
}

// compositeKey собирает ключ из частей
func compositeKey(parts ...string) []byte {
	return []byte(strings.Join(parts, keySep))
}

// keyPrefix возвращает префикс для перебора всех ключей, начинающихся с parts
func keyPrefix(parts ...string) []byte {
	return append(compositeKey(parts...), keySep...)
}

// itob кодирует uint64 в big-endian, чтобы ключи сортировались по порядку
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// getJSON читает значение; found=false, если ключа нет
func getJSON(b *bbolt.Bucket, key []byte, v any) (bool, error) {
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %q: %w", key, err)
	}
	return true, nil
}

// putJSON сериализует и сохраняет значение
func putJSON(b *bbolt.Bucket, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", key, err)
	}
	if err := b.Put(key, data); err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	return nil
}

// forEachPrefix перебирает ключи с заданным префиксом
func forEachPrefix(b *bbolt.Bucket, prefix []byte, fn func(k, v []byte) error) error {
	c := b.Cursor()
	for k, v := c.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

// deletePrefix удаляет все ключи с префиксом.
// Ключи собираются заранее: удаление во время обхода курсором пропускает записи.
func deletePrefix(b *bbolt.Bucket, prefix []byte) error {
	var keys [][]byte
	err := forEachPrefix(b, prefix, func(k, _ []byte) error {
		keys = append(keys, append([]byte(nil), k...))
		return nil
	})
	if err != nil {
		return err
	}

	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return fmt.Errorf("failed to delete %q: %w", k, err)
		}
	}
	return nil
}
