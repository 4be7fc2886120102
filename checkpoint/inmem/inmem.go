// Package inmem provides an in-memory reference implementation of
// checkpoint.Store, grounded on the teacher's run/inmem in-memory run store
// (run/inmem/inmem.go) and its copy-on-snapshot discipline.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/acmrt/acm/checkpoint"
	"github.com/acmrt/acm/model"
)

type key struct {
	runID string
	index int
}

// Store is a thread-safe, process-local checkpoint.Store.
type Store struct {
	mu    sync.RWMutex
	byKey map[key]model.Checkpoint
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{byKey: make(map[key]model.Checkpoint)}
}

// Save implements checkpoint.Store.
func (s *Store) Save(_ context.Context, runID string, index int, chk model.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[key{runID, index}]; exists {
		return fmt.Errorf("inmem: checkpoint %s/%d already exists", runID, index)
	}
	s.byKey[key{runID, index}] = chk
	return nil
}

// Load implements checkpoint.Store.
func (s *Store) Load(_ context.Context, runID string, index int) (model.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	chk, ok := s.byKey[key{runID, index}]
	if !ok {
		return model.Checkpoint{}, &checkpoint.ErrNotFound{RunID: runID, Index: index}
	}
	return chk, nil
}

// List implements checkpoint.Store.
func (s *Store) List(_ context.Context, runID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var indices []int
	for k := range s.byKey {
		if k.runID == runID {
			indices = append(indices, k.index)
		}
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
