// Package mongo provides a MongoDB-backed cache.Store: one document per
// fingerprint with the fingerprint as _id. Use NewFromCollection with a
// driver collection, or New with the internal collection abstraction in
// tests.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/anyfn/anyfn/runtime/cache"
	"github.com/anyfn/anyfn/runtime/fingerprint"
	"github.com/anyfn/anyfn/runtime/gen"
)

const defaultTimeout = 5 * time.Second

type (
	// collection is the narrow persistence contract the store needs. The
	// driver-backed implementation is mongoCollection; tests use fakes.
	collection interface {
		findOne(ctx context.Context, key string) (cache.Record, bool, error)
		replaceOne(ctx context.Context, key string, rec cache.Record) error
		deleteOne(ctx context.Context, key string) error
	}

	// Store implements cache.Store over a Mongo collection.
	Store struct {
		coll    collection
		timeout time.Duration
	}

	mongoCollection struct {
		coll *mongodriver.Collection
	}
)

// NewFromCollection builds a store over a driver collection.
func NewFromCollection(coll *mongodriver.Collection) (*Store, error) {
	if coll == nil {
		return nil, errors.New("mongo collection is required")
	}
	return newStore(mongoCollection{coll: coll}), nil
}

func newStore(coll collection) *Store {
	return &Store{coll: coll, timeout: defaultTimeout}
}

// Lookup fetches the record document for key. An absent document is a miss,
// and so is one that fails to decode.
func (s *Store) Lookup(ctx context.Context, key fingerprint.Key) (*gen.Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rec, found, err := s.coll.findOne(ctx, string(key))
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", key, err)
	}
	if !found || rec.Fingerprint != string(key) {
		return nil, nil
	}
	return rec.Artifact(), nil
}

// Commit upserts the record document. An identical re-commit is a no-op; a
// conflicting one fails with *cache.WriteError. The engine's single-flight
// scope guarantees at most one writer per fingerprint at a time.
func (s *Store) Commit(ctx context.Context, key fingerprint.Key, art *gen.Artifact) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	rec := cache.FromArtifact(key, art)
	existing, found, err := s.coll.findOne(ctx, string(key))
	if err != nil {
		return fmt.Errorf("mongo find existing %s: %w", key, err)
	}
	if found {
		if existing.Same(rec) {
			return nil
		}
		return &cache.WriteError{Key: key, Name: art.Name}
	}
	if err := s.coll.replaceOne(ctx, string(key), rec); err != nil {
		return fmt.Errorf("mongo upsert %s: %w", key, err)
	}
	return nil
}

// Invalidate deletes the record document. Deleting an absent key is a no-op.
func (s *Store) Invalidate(ctx context.Context, key fingerprint.Key) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.coll.deleteOne(ctx, string(key)); err != nil {
		return fmt.Errorf("mongo delete %s: %w", key, err)
	}
	return nil
}

func (c mongoCollection) findOne(ctx context.Context, key string) (cache.Record, bool, error) {
	var rec cache.Record
	err := c.coll.FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return cache.Record{}, false, nil
		}
		return cache.Record{}, false, err
	}
	return rec, true, nil
}

func (c mongoCollection) replaceOne(ctx context.Context, key string, rec cache.Record) error {
	_, err := c.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: key}}, rec,
		mongooptions.Replace().SetUpsert(true))
	return err
}

func (c mongoCollection) deleteOne(ctx context.Context, key string) error {
	_, err := c.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: key}})
	return err
}
