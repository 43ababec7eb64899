// Package mongostore is a MongoDB-backed agent.Storage implementation for
// agent.PooledLifecycle, letting pool-key occupancy and idle-timeout
// bookkeeping survive a process restart. It is adapted from the teacher's
// Mongo-backed session client (features/session/mongo/clients/mongo).
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultCollection = "agent_lifecycle_state"
	defaultOpTimeout   = 5 * time.Second
)

// ErrNotFound is returned by LoadLifecycleState when no document exists
// for the given agent id.
var ErrNotFound = errors.New("mongostore: lifecycle state not found")

// Options configures the Mongo-backed Storage.
type Options struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements agent.Storage.
type Store struct {
	coll    *mongo.Collection
	timeout time.Duration
}

type doc struct {
	AgentID string         `bson:"_id"`
	State   map[string]any `bson:"state"`
	SavedAt time.Time      `bson:"saved_at"`
}

// New returns a Store backed by opts.Client/Database/Collection. It creates
// no index: documents are keyed by agent id in _id, which is unique.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongostore: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongostore: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)
	return &Store{coll: coll, timeout: timeout}, nil
}

// SaveLifecycleState upserts state for agentID.
func (s *Store) SaveLifecycleState(ctx context.Context, agentID string, state map[string]any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.coll.UpdateByID(ctx, agentID,
		bson.M{"$set": doc{AgentID: agentID, State: state, SavedAt: time.Now().UTC()}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

// LoadLifecycleState returns the last saved state for agentID, or
// ErrNotFound if none exists.
func (s *Store) LoadLifecycleState(ctx context.Context, agentID string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var d doc
	err := s.coll.FindOne(ctx, bson.M{"_id": agentID}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d.State, nil
}

// DeleteLifecycleState removes the stored state for agentID; absence is
// not an error.
func (s *Store) DeleteLifecycleState(ctx context.Context, agentID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": agentID})
	return err
}
