// Package fingerprint derives the stable identity key of a generation
// request. The key addresses the artifact cache and scopes the engine's
// in-flight deduplication, so it must be deterministic: identical name,
// signature, docstring, and visible context content always produce the same
// key, and any difference in those inputs produces a different key.
package fingerprint

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"

	"github.com/anyfn/anyfn/runtime/gen"
)

// Key is the hex-encoded identity of a generation request. Keys are opaque to
// callers; only equality matters.
type Key string

// docAbsent distinguishes "no docstring" from "empty docstring" in the hash
// input.
const docAbsent = "\x00absent"

// Compute derives the key for a request against the context entries it is
// allowed to see. It is pure and total: it never fails and has no side
// effects. The snapshot is canonicalized by sorting entries by symbol name so
// two logically identical context sets never diverge merely by insertion
// order. Every component is length-prefixed to prevent ambiguity between
// adjacent fields.
func Compute(req gen.Request, snapshot []gen.ContextEntry) Key {
	h := sha256.New()
	writeComponent(h, string(req.Kind))
	writeComponent(h, req.Name)
	writeComponent(h, req.Return)
	for _, p := range req.Params {
		writeComponent(h, p.Name+":"+p.Type)
	}
	if req.Doc == "" {
		writeComponent(h, docAbsent)
	} else {
		writeComponent(h, req.Doc)
	}

	entries := make([]gen.ContextEntry, len(snapshot))
	copy(entries, snapshot)
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Signature != b.Signature {
			return a.Signature < b.Signature
		}
		return a.Description < b.Description
	})
	for _, e := range entries {
		writeComponent(h, e.Name)
		writeComponent(h, e.Signature)
		writeComponent(h, e.Description)
	}

	return Key(hex.EncodeToString(h.Sum(nil)))
}

func writeComponent(h hash.Hash, s string) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(s)))
	h.Write(lenBuf[:])
	h.Write([]byte(s))
}
