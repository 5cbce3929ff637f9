package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/authdir/internal/models"
)

// BoltDB bucket names
var bucketLinks = []byte("replication_links")

// SnapshotStore persists the last observed replication link state so a
// restarted monitor reports history instead of blank links.
type SnapshotStore struct {
	db *bbolt.DB
}

// NewSnapshotStore opens (or creates) the snapshot database at dbPath.
func NewSnapshotStore(ctx context.Context, dbPath string) (*SnapshotStore, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	store := &SnapshotStore{db: db}

	// Инициализируем bucket
	if err := store.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SnapshotStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initBuckets создает необходимые buckets если они не существуют
func (s *SnapshotStore) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketLinks); err != nil {
			return fmt.Errorf("failed to create links bucket: %w", err)
		}
		return nil
	})
}

// SaveLink persists the current state of one replication link, keyed by
// target instance id.
func (s *SnapshotStore) SaveLink(ctx context.Context, link *models.ReplicationLink) error {
	data, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLinks)
		if bucket == nil {
			return fmt.Errorf("links bucket not found")
		}

		if err := bucket.Put([]byte(link.TargetInstance), data); err != nil {
			return fmt.Errorf("failed to save link: %w", err)
		}
		return nil
	})
}

// GetLink restores the last persisted state of the link towards target.
// Returns nil without error when no snapshot exists yet.
func (s *SnapshotStore) GetLink(ctx context.Context, target string) (*models.ReplicationLink, error) {
	var link *models.ReplicationLink

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLinks)
		if bucket == nil {
			return fmt.Errorf("links bucket not found")
		}

		data := bucket.Get([]byte(target))
		if data == nil {
			// Первый запуск: снапшота еще нет
			return nil
		}

		link = &models.ReplicationLink{}
		if err := json.Unmarshal(data, link); err != nil {
			return fmt.Errorf("failed to unmarshal link: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get link: %w", err)
	}

	return link, nil
}

// ListLinks returns every persisted link snapshot.
func (s *SnapshotStore) ListLinks(ctx context.Context) ([]*models.ReplicationLink, error) {
	var links []*models.ReplicationLink

	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketLinks)
		if bucket == nil {
			return fmt.Errorf("links bucket not found")
		}

		return bucket.ForEach(func(_, data []byte) error {
			link := &models.ReplicationLink{}
			if err := json.Unmarshal(data, link); err != nil {
				return fmt.Errorf("failed to unmarshal link: %w", err)
			}
			links = append(links, link)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	return links, nil
}
