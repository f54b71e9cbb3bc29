// Package bolt implements a file-backed processed-update store for
// single-instance deployments. bolt holds an exclusive lock on the file,
// so only one process can use a given store.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	boltdb "github.com/boltdb/bolt"

	"github.com/casino-hub/casino-hub/internal/domain/shared"
	"github.com/casino-hub/casino-hub/internal/domain/update"
)

const bucketProcessedUpdates = "processed_updates"

// ErrStorage wraps bolt failures.
var ErrStorage = fmt.Errorf("bolt: %w", shared.ErrStorage)

// UpdateStore implements update.Claimer on a bolt bucket.
type UpdateStore struct {
	db *boltdb.DB
}

var _ update.Claimer = (*UpdateStore)(nil)

type claimRecord struct {
	Kind       string    `json:"kind"`
	ReceivedAt time.Time `json:"received_at"`
}

// Open opens (or creates) the database file and its bucket.
func Open(path string) (*UpdateStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("bolt: create dir: %w", err)
		}
	}

	db, err := boltdb.Open(path, 0o600, &boltdb.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}

	err = db.Update(func(tx *boltdb.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketProcessedUpdates))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: create bucket: %w", err)
	}

	return &UpdateStore{db: db}, nil
}

// Close releases the file lock.
func (s *UpdateStore) Close() error {
	return s.db.Close()
}

func key(id update.ID) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

// TryClaim records the update id; only the first caller gets true.
// bolt serializes write transactions, which makes check-and-put atomic.
func (s *UpdateStore) TryClaim(ctx context.Context, u update.InboundUpdate) (bool, error) {
	if err := u.Validate(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	receivedAt := u.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	value, err := json.Marshal(claimRecord{Kind: string(u.Kind), ReceivedAt: receivedAt})
	if err != nil {
		return false, fmt.Errorf("%w: encode claim: %w", ErrStorage, err)
	}

	claimed := false
	err = s.db.Update(func(tx *boltdb.Tx) error {
		b := tx.Bucket([]byte(bucketProcessedUpdates))
		k := key(u.ID)
		if b.Get(k) != nil {
			return nil
		}
		if err := b.Put(k, value); err != nil {
			return err
		}
		claimed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: claim update %d: %w", ErrStorage, u.ID, err)
	}
	return claimed, nil
}

// IsClaimed reports whether the update id was already recorded.
func (s *UpdateStore) IsClaimed(id update.ID) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *boltdb.Tx) error {
		exists = tx.Bucket([]byte(bucketProcessedUpdates)).Get(key(id)) != nil
		return nil
	})
	return exists, err
}

// Purge deletes records received before now-retention.
func (s *UpdateStore) Purge(retention time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-retention)
	deleted := 0

	err := s.db.Update(func(tx *boltdb.Tx) error {
		b := tx.Bucket([]byte(bucketProcessedUpdates))
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec claimRecord
			if err := json.Unmarshal(v, &rec); err != nil || rec.ReceivedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		deleted = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: purge: %w", ErrStorage, err)
	}
	return deleted, nil
}
