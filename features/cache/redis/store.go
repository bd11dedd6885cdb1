// Package redis provides a Redis-backed cache.Store: one JSON value per
// fingerprint under a configurable key prefix. Suitable when several
// processes share one artifact cache.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/anyfn/anyfn/runtime/cache"
	"github.com/anyfn/anyfn/runtime/fingerprint"
	"github.com/anyfn/anyfn/runtime/gen"
)

const defaultPrefix = "anyfn:artifact:"

type (
	// Client captures the subset of go-redis used by the store. It is
	// satisfied by *goredis.Client; tests supply fakes built from the
	// go-redis result constructors.
	Client interface {
		Get(ctx context.Context, key string) *goredis.StringCmd
		SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
		Del(ctx context.Context, keys ...string) *goredis.IntCmd
	}

	// Options configures the store.
	Options struct {
		// Client is the Redis connection. Required.
		Client Client
		// Prefix namespaces cache keys; defaults to "anyfn:artifact:".
		Prefix string
	}

	// Store implements cache.Store over Redis string values.
	Store struct {
		client Client
		prefix string
	}
)

// New builds a Redis-backed store.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: opts.Client, prefix: prefix}, nil
}

// Lookup fetches and decodes the record for key. An absent key is a miss,
// and so is a value that fails to decode: per-record corruption never fails
// the store.
func (s *Store) Lookup(ctx context.Context, key fingerprint.Key) (*gen.Artifact, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var rec cache.Record
	if err := json.Unmarshal(data, &rec); err != nil || rec.Fingerprint != string(key) {
		return nil, nil
	}
	return rec.Artifact(), nil
}

// Commit stores the record with SETNX semantics: first writer wins, an
// identical re-commit is a no-op, and a conflicting one fails with
// *cache.WriteError.
func (s *Store) Commit(ctx context.Context, key fingerprint.Key, art *gen.Artifact) error {
	rec := cache.FromArtifact(key, art)
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode cache record %s: %w", key, err)
	}
	ok, err := s.client.SetNX(ctx, s.key(key), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if ok {
		return nil
	}
	existing, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		return fmt.Errorf("redis get existing %s: %w", key, err)
	}
	var prior cache.Record
	if err := json.Unmarshal(existing, &prior); err == nil && prior.Same(rec) {
		return nil
	}
	return &cache.WriteError{Key: key, Name: art.Name}
}

// Invalidate deletes the record for key. Deleting an absent key is a no-op.
func (s *Store) Invalidate(ctx context.Context, key fingerprint.Key) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (s *Store) key(key fingerprint.Key) string {
	return s.prefix + string(key)
}
