// Package inmem provides an in-memory cache.Store for testing and local
// development. Unlike durable backends it retains the loaded invocable
// handle, so cache hits are immediately invocable without re-admission. Data
// is lost when the process exits.
package inmem

import (
	"context"
	"sync"

	"github.com/anyfn/anyfn/runtime/cache"
	"github.com/anyfn/anyfn/runtime/fingerprint"
	"github.com/anyfn/anyfn/runtime/gen"
)

// Store implements cache.Store over a mutex-guarded map. It is thread-safe.
type Store struct {
	mu   sync.RWMutex
	arts map[fingerprint.Key]*gen.Artifact
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{arts: make(map[fingerprint.Key]*gen.Artifact)}
}

// Lookup returns a copy of the committed artifact, or (nil, nil) on a miss.
func (s *Store) Lookup(_ context.Context, key fingerprint.Key) (*gen.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	art, ok := s.arts[key]
	if !ok {
		return nil, nil
	}
	cloned := *art
	return &cloned, nil
}

// Commit stores a copy of the artifact. Identical re-commits are no-ops;
// conflicting content fails with *cache.WriteError.
func (s *Store) Commit(_ context.Context, key fingerprint.Key, art *gen.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.arts[key]; ok {
		if cache.FromArtifact(key, existing).Same(cache.FromArtifact(key, art)) {
			return nil
		}
		return &cache.WriteError{Key: key, Name: art.Name}
	}
	cloned := *art
	cloned.Fingerprint = string(key)
	cloned.Status = gen.StatusReady
	s.arts[key] = &cloned
	return nil
}

// Invalidate removes the record for key. Removing an absent key is a no-op.
func (s *Store) Invalidate(_ context.Context, key fingerprint.Key) error {
	s.mu.Lock()
	delete(s.arts, key)
	s.mu.Unlock()
	return nil
}
