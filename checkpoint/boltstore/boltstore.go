// Package boltstore implements checkpoint.Store on top of go.etcd.io/bbolt,
// giving the resumable execution layer a durable, single-file backend for
// local and single-node deployments. Each run gets its own top-level bucket;
// checkpoint indices are stored as big-endian uint32 keys so bbolt's native
// key ordering doubles as index ordering.
package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/acmrt/acm/checkpoint"
	"github.com/acmrt/acm/model"
)

// Store persists checkpoints in a bbolt database file.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt database at path for use as a
// checkpoint.Store.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("boltstore: opening %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

func indexKey(index int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(index))
	return b
}

// Save implements checkpoint.Store. bbolt's transaction commit is an fsync
// by default, so a successful Save is durable on return.
func (s *Store) Save(_ context.Context, runID string, index int, chk model.Checkpoint) error {
	raw, err := json.Marshal(chk)
	if err != nil {
		return fmt.Errorf("boltstore: marshaling checkpoint: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(runID))
		if err != nil {
			return err
		}
		key := indexKey(index)
		if bucket.Get(key) != nil {
			return fmt.Errorf("boltstore: checkpoint %s/%d already exists", runID, index)
		}
		return bucket.Put(key, raw)
	})
}

// Load implements checkpoint.Store.
func (s *Store) Load(_ context.Context, runID string, index int) (model.Checkpoint, error) {
	var chk model.Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(runID))
		if bucket == nil {
			return &checkpoint.ErrNotFound{RunID: runID, Index: index}
		}
		raw := bucket.Get(indexKey(index))
		if raw == nil {
			return &checkpoint.ErrNotFound{RunID: runID, Index: index}
		}
		return json.Unmarshal(raw, &chk)
	})
	if err != nil {
		return model.Checkpoint{}, err
	}
	return chk, nil
}

// List implements checkpoint.Store.
func (s *Store) List(_ context.Context, runID string) ([]int, error) {
	var indices []int
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(runID))
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, _ []byte) error {
			indices = append(indices, int(binary.BigEndian.Uint32(k)))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Ints(indices)
	return indices, nil
}

// Latest implements checkpoint.Store.
func (s *Store) Latest(ctx context.Context, runID string) (int, bool, error) {
	indices, err := s.List(ctx, runID)
	if err != nil {
		return 0, false, err
	}
	if len(indices) == 0 {
		return 0, false, nil
	}
	return indices[len(indices)-1], true, nil
}
