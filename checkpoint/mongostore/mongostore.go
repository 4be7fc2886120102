// Package mongostore implements checkpoint.Store on top of MongoDB, for
// deployments that already run a Mongo cluster for other durable state.
// Checkpoints are stored one document per (runId, index) with a unique
// compound index enforcing the store's write-once contract.
package mongostore

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/acmrt/acm/checkpoint"
	"github.com/acmrt/acm/model"
)

type document struct {
	RunID      string           `bson:"runId"`
	Index      int              `bson:"index"`
	Checkpoint model.Checkpoint `bson:"checkpoint"`
}

// Store persists checkpoints in a MongoDB collection.
type Store struct {
	coll *mongo.Collection
}

// New constructs a Store over an already-connected collection. EnsureIndexes
// should be called once per collection lifetime (typically at startup).
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll}
}

// EnsureIndexes creates the unique (runId, index) index used to enforce
// write-once checkpoint semantics.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "runId", Value: 1}, {Key: "index", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("mongostore: creating index: %w", err)
	}
	return nil
}

// Save implements checkpoint.Store.
func (s *Store) Save(ctx context.Context, runID string, index int, chk model.Checkpoint) error {
	_, err := s.coll.InsertOne(ctx, document{RunID: runID, Index: index, Checkpoint: chk})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("mongostore: checkpoint %s/%d already exists", runID, index)
	}
	if err != nil {
		return fmt.Errorf("mongostore: saving %s/%d: %w", runID, index, err)
	}
	return nil
}

// Load implements checkpoint.Store.
func (s *Store) Load(ctx context.Context, runID string, index int) (model.Checkpoint, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.D{{Key: "runId", Value: runID}, {Key: "index", Value: index}}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return model.Checkpoint{}, &checkpoint.ErrNotFound{RunID: runID, Index: index}
	}
	if err != nil {
		return model.Checkpoint{}, fmt.Errorf("mongostore: loading %s/%d: %w", runID, index, err)
	}
	return doc.Checkpoint, nil
}

// List implements checkpoint.Store.
func (s *Store) List(ctx context.Context, runID string) ([]int, error) {
	cur, err := s.coll.Find(ctx, bson.D{{Key: "runId", Value: runID}}, options.Find().SetProjection(bson.D{{Key: "index", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: listing %s: %w", runID, err)
	}
	defer cur.Close(ctx)

	var indices []int
	for cur.Next(ctx) {
		var doc document
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongostore: decoding index entry for %s: %w", runID, err)
		}
		indices = append(indices, doc.Index)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongostore: iterating %s: %w", runID, err)
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
