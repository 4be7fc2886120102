// Package checkpoint defines the CheckpointStore external interface (spec
// §4.4) over model.Checkpoint values. Concrete
// reference backends (in-memory, bbolt, Redis, MongoDB) live in
// sub-packages and are never imported by the core executor package itself,
// matching spec §4.4's "implementations are out of scope" framing while
// still shipping runnable reference implementations (see SPEC_FULL.md).
package checkpoint

import (
	"context"

	"github.com/acmrt/acm/model"
)

// Store is the storage contract for checkpoints. Saves MUST be atomic
// (write-then-rename or equivalent); readers MUST see either the full
// checkpoint or none.
type Store interface {
	// Save persists checkpoint under (runId, index). Checkpoints are
	// immutable once written; Save on an existing (runId, index) is an error.
	Save(ctx context.Context, runID string, index int, chk model.Checkpoint) error
	// Load retrieves the checkpoint at (runId, index).
	Load(ctx context.Context, runID string, index int) (model.Checkpoint, error)
	// List returns the indices of all checkpoints stored for runId, ascending.
	List(ctx context.Context, runID string) ([]int, error)
	// Latest returns the highest index stored for runId, and false if none exist.
	Latest(ctx context.Context, runID string) (int, bool, error)
}

// ErrNotFound is returned by Load when no checkpoint exists at the given index.
type ErrNotFound struct {
	RunID string
	Index int
}

func (e *ErrNotFound) Error() string {
	return "checkpoint: not found for run " + e.RunID
}
