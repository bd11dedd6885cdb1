// Package memory implements the process-scoped context store: a registry of
// summaries of previously generated artifacts that the engine feeds into later
// synthesis calls so related generations stay semantically consistent.
//
// The store is orthogonal to the persistent artifact cache: clearing context
// never invalidates cached artifacts, and a cache hit only re-populates
// context because the engine explicitly re-registers the entry.
package memory

import (
	"sort"
	"sync"

	"github.com/anyfn/anyfn/runtime/gen"
)

// Store holds context entries keyed by symbol name. It is thread-safe; all
// reads return defensive copies so callers cannot mutate shared state. A
// store starts empty at facade construction and grows monotonically until
// Clear.
type Store struct {
	mu      sync.RWMutex
	entries map[string]gen.ContextEntry
}

// New returns an empty store, ready to use.
func New() *Store {
	return &Store{entries: make(map[string]gen.ContextEntry)}
}

// Record upserts the entry for its symbol name. Recording the same entry
// twice is a no-op; recording a changed entry replaces the old one.
func (s *Store) Record(e gen.ContextEntry) {
	if e.Name == "" {
		return
	}
	s.mu.Lock()
	s.entries[e.Name] = e
	s.mu.Unlock()
}

// Snapshot returns the entries relevant to a request, sorted by symbol name.
// With no arguments it returns every entry recorded so far; with an explicit
// name set it returns only those entries, which the engine uses to scope batch
// generations to their dependency closure. Unknown names are skipped.
func (s *Store) Snapshot(visible ...string) []gen.ContextEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []gen.ContextEntry
	if len(visible) == 0 {
		out = make([]gen.ContextEntry, 0, len(s.entries))
		for _, e := range s.entries {
			out = append(out, e)
		}
	} else {
		out = make([]gen.ContextEntry, 0, len(visible))
		for _, name := range visible {
			if e, ok := s.entries[name]; ok {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports the number of recorded entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear empties the store. It does not touch the artifact cache.
func (s *Store) Clear() {
	s.mu.Lock()
	s.entries = make(map[string]gen.ContextEntry)
	s.mu.Unlock()
}
