// Package cache defines the persistent artifact store contract keyed by
// fingerprint, together with the durable record format shared by every
// backend. Implementations live in subpackages (inmem, disk) and under
// features/cache (redis, mongo).
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/anyfn/anyfn/runtime/fingerprint"
	"github.com/anyfn/anyfn/runtime/gen"
)

type (
	// Store is the artifact cache contract. A store holds at most one record
	// per fingerprint and each record must be readable independently: a
	// corrupt record is treated as a miss for that key, never as a fatal
	// error for the store.
	Store interface {
		// Lookup returns the artifact committed under key, or (nil, nil) on a
		// miss. It is side-effect-free. Artifacts loaded from durable
		// backends carry source but no invocable handle; the engine rebuilds
		// the handle through admission.
		Lookup(ctx context.Context, key fingerprint.Key) (*gen.Artifact, error)

		// Commit stores the artifact under key. Committing over an existing
		// record with identical content is a no-op; a conflicting commit
		// fails with *WriteError and leaves the existing record untouched.
		// Writes are atomic: readers never observe a partial record.
		Commit(ctx context.Context, key fingerprint.Key, art *gen.Artifact) error

		// Invalidate removes the record for key, if any. It is only ever
		// invoked by explicit caller cache-busting, never automatically on
		// generation failures.
		Invalidate(ctx context.Context, key fingerprint.Key) error
	}

	// Record is the persisted form of an artifact. It round-trips through
	// JSON (disk, redis) and BSON (mongo); handles are never persisted.
	Record struct {
		Fingerprint string    `json:"fingerprint" bson:"_id"`
		Name        string    `json:"name" bson:"name"`
		Kind        string    `json:"kind" bson:"kind"`
		Source      string    `json:"source" bson:"source"`
		Status      string    `json:"status" bson:"status"`
		CreatedAt   time.Time `json:"created_at" bson:"created_at"`
	}

	// WriteError reports a conflicting commit: a record already exists for
	// the key with different content.
	WriteError struct {
		// Key is the conflicted fingerprint.
		Key fingerprint.Key
		// Name is the symbol of the rejected artifact.
		Name string
	}
)

func (e *WriteError) Error() string {
	return fmt.Sprintf("cache write conflict for %q (fingerprint %s): record exists with different content", e.Name, e.Key)
}

// FromArtifact builds the durable record for an artifact keyed by key.
func FromArtifact(key fingerprint.Key, art *gen.Artifact) Record {
	return Record{
		Fingerprint: string(key),
		Name:        art.Name,
		Kind:        string(art.Kind),
		Source:      art.Source,
		Status:      string(gen.StatusReady),
		CreatedAt:   art.CreatedAt,
	}
}

// Artifact rebuilds the in-memory artifact from a durable record. The result
// carries no handle; invoking it requires re-admission of the source.
func (r Record) Artifact() *gen.Artifact {
	return &gen.Artifact{
		Fingerprint: r.Fingerprint,
		Name:        r.Name,
		Kind:        gen.Kind(r.Kind),
		Source:      r.Source,
		Status:      gen.Status(r.Status),
		CreatedAt:   r.CreatedAt,
	}
}

// Same reports whether two records carry identical content, ignoring the
// generation timestamp. Used to distinguish idempotent re-commits from
// conflicts.
func (r Record) Same(other Record) bool {
	return r.Fingerprint == other.Fingerprint &&
		r.Name == other.Name &&
		r.Kind == other.Kind &&
		r.Source == other.Source
}
