// Package redisstore implements checkpoint.Store on top of Redis, and adds
// a distributed lease so that two processes cannot resume the same runId
// concurrently (spec §5's "same-runId exclusion"). The lease mechanism is
// grounded on the teacher's distributed claim pattern for HITL checkpoint
// expiry (orchestration/hitl_checkpoint_store.go's SETNX-with-TTL claim and
// Lua check-and-delete release).
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/acmrt/acm/checkpoint"
	"github.com/acmrt/acm/model"
)

// Store persists checkpoints in Redis and brokers run leases.
type Store struct {
	client    *redis.Client
	keyPrefix string
}

// New constructs a Store over an already-configured Redis client.
func New(client *redis.Client, keyPrefix string) *Store {
	if keyPrefix == "" {
		keyPrefix = "acm:checkpoint"
	}
	return &Store{client: client, keyPrefix: keyPrefix}
}

func (s *Store) checkpointKey(runID string, index int) string {
	return fmt.Sprintf("%s:%s:%d", s.keyPrefix, runID, index)
}

func (s *Store) indexKey(runID string) string {
	return fmt.Sprintf("%s:%s:index", s.keyPrefix, runID)
}

func (s *Store) leaseKey(runID string) string {
	return fmt.Sprintf("%s:%s:lease", s.keyPrefix, runID)
}

// Save implements checkpoint.Store.
func (s *Store) Save(ctx context.Context, runID string, index int, chk model.Checkpoint) error {
	raw, err := json.Marshal(chk)
	if err != nil {
		return fmt.Errorf("redisstore: marshaling checkpoint: %w", err)
	}
	key := s.checkpointKey(runID, index)
	set, err := s.client.SetNX(ctx, key, raw, 0).Result()
	if err != nil {
		return fmt.Errorf("redisstore: saving %s/%d: %w", runID, index, err)
	}
	if !set {
		return fmt.Errorf("redisstore: checkpoint %s/%d already exists", runID, index)
	}
	if err := s.client.ZAdd(ctx, s.indexKey(runID), redis.Z{Score: float64(index), Member: index}).Err(); err != nil {
		return fmt.Errorf("redisstore: indexing %s/%d: %w", runID, index, err)
	}
	return nil
}

// Load implements checkpoint.Store.
func (s *Store) Load(ctx context.Context, runID string, index int) (model.Checkpoint, error) {
	raw, err := s.client.Get(ctx, s.checkpointKey(runID, index)).Bytes()
	if err == redis.Nil {
		return model.Checkpoint{}, &checkpoint.ErrNotFound{RunID: runID, Index: index}
	}
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("redisstore: loading %s/%d: %w", runID, index, err)
	}
	var chk model.Checkpoint
	if err := json.Unmarshal(raw, &chk); err != nil {
		return model.Checkpoint{}, fmt.Errorf("redisstore: decoding %s/%d: %w", runID, index, err)
	}
	return chk, nil
}

// List implements checkpoint.Store.
func (s *Store) List(ctx context.Context, runID string) ([]int, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: listing %s: %w", runID, err)
	}
	indices := make([]int, 0, len(members))
	for _, m := range members {
		idx, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		indices = append(indices, idx)
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

// AcquireLease claims exclusive rights to execute runID for ttl, identified
// by holderID. Returns false if another holder currently owns the lease.
func (s *Store) AcquireLease(ctx context.Context, runID, holderID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.leaseKey(runID), holderID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: acquiring lease for %s: %w", runID, err)
	}
	return ok, nil
}

// ReleaseLease releases the lease for runID, but only if holderID still
// owns it, via an atomic Lua check-and-delete.
func (s *Store) ReleaseLease(ctx context.Context, runID, holderID string) error {
	script := redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)
	if err := script.Run(ctx, s.client, []string{s.leaseKey(runID)}, holderID).Err(); err != nil {
		return fmt.Errorf("redisstore: releasing lease for %s: %w", runID, err)
	}
	return nil
}
