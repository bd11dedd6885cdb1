// Package disk provides a filesystem-backed cache.Store: one JSON file per
// fingerprint under a cache directory. Records survive process restarts and
// are independently addressable, so a corrupt file only affects its own key.
package disk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/anyfn/anyfn/runtime/cache"
	"github.com/anyfn/anyfn/runtime/fingerprint"
	"github.com/anyfn/anyfn/runtime/gen"
)

// Store implements cache.Store on the local filesystem. Writes go through a
// temp file followed by rename so readers never observe partial records. A
// process-local mutex serializes commits to the same directory; cross-process
// writers are expected to be coordinated by the engine's single-flight scope.
type Store struct {
	dir string
	mu  sync.Mutex
}

// New creates the cache directory if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("cache directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Lookup reads the record file for key. A missing or unreadable file is a
// miss, and so is a file that fails to decode: read corruption never turns
// into a fatal error for the store.
func (s *Store) Lookup(_ context.Context, key fingerprint.Key) (*gen.Artifact, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return nil, nil
	}
	var rec cache.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil
	}
	if rec.Fingerprint != string(key) || rec.Source == "" {
		return nil, nil
	}
	return rec.Artifact(), nil
}

// Commit writes the record file for key atomically. Identical re-commits are
// no-ops; conflicting content fails with *cache.WriteError. A corrupt
// existing file is replaced.
func (s *Store) Commit(_ context.Context, key fingerprint.Key, art *gen.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := cache.FromArtifact(key, art)
	if data, err := os.ReadFile(s.path(key)); err == nil {
		var existing cache.Record
		if err := json.Unmarshal(data, &existing); err == nil && existing.Fingerprint == string(key) {
			if existing.Same(rec) {
				return nil
			}
			return &cache.WriteError{Key: key, Name: art.Name}
		}
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache record %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(s.dir, "record-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("write cache record %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("close cache record %s: %w", key, err)
	}
	if err := os.Rename(name, s.path(key)); err != nil {
		os.Remove(name)
		return fmt.Errorf("store cache record %s: %w", key, err)
	}
	return nil
}

// Invalidate removes the record file for key. Removing an absent key is a
// no-op.
func (s *Store) Invalidate(_ context.Context, key fingerprint.Key) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("invalidate cache record %s: %w", key, err)
	}
	return nil
}

func (s *Store) path(key fingerprint.Key) string {
	return filepath.Join(s.dir, string(key)+".json")
}
