// Package engine implements the generation coordinator. It owns the request
// lifecycle — fingerprint, cache check, synthesis, admission, commit — and the
// concurrency discipline around it: at most one generation is ever in flight
// per fingerprint, with concurrent requesters joining the outcome of the
// owning call instead of triggering duplicate synthesizer invocations.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"goa.design/clue/log"
	"golang.org/x/sync/singleflight"

	"github.com/anyfn/anyfn/runtime/cache"
	"github.com/anyfn/anyfn/runtime/fingerprint"
	"github.com/anyfn/anyfn/runtime/gen"
	"github.com/anyfn/anyfn/runtime/memory"
)

type (
	// Admitter validates and loads candidate source into an invocable
	// artifact. Satisfied by *admit.Gate; tests substitute fakes.
	Admitter interface {
		Admit(ctx context.Context, source string, req gen.Request) (*gen.Artifact, error)
	}

	// Options configures the engine. All four collaborators are required;
	// facade constructors supply defaults for everything but the synthesizer.
	Options struct {
		// Synthesizer produces candidate source for cache misses.
		Synthesizer gen.Synthesizer
		// Cache is the persistent fingerprint-keyed artifact store.
		Cache cache.Store
		// Context is the process-scoped context store.
		Context *memory.Store
		// Admitter gates candidate source into invocable artifacts.
		Admitter Admitter
	}

	// Engine coordinates single-symbol and batch resolution. It is safe for
	// concurrent use.
	Engine struct {
		synth  gen.Synthesizer
		cache  cache.Store
		store  *memory.Store
		gate   Admitter
		flight singleflight.Group
		tel    *telemetry
	}
)

// New builds an engine from the provided collaborators.
func New(opts Options) (*Engine, error) {
	if opts.Synthesizer == nil {
		return nil, errors.New("synthesizer is required")
	}
	if opts.Cache == nil {
		return nil, errors.New("cache store is required")
	}
	if opts.Context == nil {
		return nil, errors.New("context store is required")
	}
	if opts.Admitter == nil {
		return nil, errors.New("admitter is required")
	}
	tel, err := newTelemetry()
	if err != nil {
		return nil, fmt.Errorf("engine telemetry: %w", err)
	}
	return &Engine{
		synth: opts.Synthesizer,
		cache: opts.Cache,
		store: opts.Context,
		gate:  opts.Admitter,
		tel:   tel,
	}, nil
}

// Context returns the engine's context store for facade introspection.
func (e *Engine) Context() *memory.Store { return e.store }

// Invalidate removes the cache record for key. Explicit cache-busting only;
// the engine never calls this itself.
func (e *Engine) Invalidate(ctx context.Context, key fingerprint.Key) error {
	return e.cache.Invalidate(ctx, key)
}

// Resolve returns the ready artifact for the request, generating it on a
// cache miss. The fingerprint is computed against the full context snapshot;
// batch resolution scopes snapshots to dependency closures via resolveScoped.
func (e *Engine) Resolve(ctx context.Context, req gen.Request) (*gen.Artifact, error) {
	return e.resolveScoped(ctx, req, nil)
}

// resolveScoped runs the single-symbol state machine. A nil visible set means
// the request sees every context entry recorded so far; a non-nil set scopes
// the snapshot (and therefore the fingerprint) to those symbols.
func (e *Engine) resolveScoped(ctx context.Context, req gen.Request, visible []string) (*gen.Artifact, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	snap := e.snapshotFor(req.Name, visible)
	key := fingerprint.Compute(req, snap)

	// Cache check is lock-free with respect to in-flight generations.
	art, err := e.cache.Lookup(ctx, key)
	if err != nil {
		// Cache unavailability degrades to a regeneration, mirroring how the
		// store itself degrades corrupt records to misses.
		log.Error(ctx, err, log.KV{K: "msg", V: "cache lookup failed, treating as miss"},
			log.KV{K: "symbol", V: req.Name}, log.KV{K: "fingerprint", V: string(key)})
		art = nil
	}
	if art != nil {
		return e.cacheHit(ctx, req, key, art)
	}
	e.tel.misses.Add(ctx, 1, symbolAttr(req.Name))

	// Single-flight scope covers synthesis and admission only. The owning
	// caller's context drives the generation; waiters that abandon their own
	// context stop waiting without affecting the owner.
	ch := e.flight.DoChan(string(key), func() (any, error) {
		return e.generate(ctx, req, key, snap)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*gen.Artifact), nil
	case <-ctx.Done():
		return nil, &gen.CancelledError{Name: req.Name, Fingerprint: string(key), Err: ctx.Err()}
	}
}

// snapshotFor resolves the scoping convention: nil means the request sees
// every entry, a non-nil (possibly empty) set restricts the snapshot to the
// named symbols. The request's own entry is always excluded so a symbol's
// fingerprint is not perturbed by its own earlier generation: a repeat
// request stays a cache hit.
func (e *Engine) snapshotFor(self string, visible []string) []gen.ContextEntry {
	var snap []gen.ContextEntry
	switch {
	case visible == nil:
		snap = e.store.Snapshot()
	case len(visible) == 0:
		return nil
	default:
		snap = e.store.Snapshot(visible...)
	}
	out := snap[:0]
	for _, entry := range snap {
		if entry.Name != self {
			out = append(out, entry)
		}
	}
	return out
}

// cacheHit returns the cached artifact without invoking the synthesizer.
// Artifacts loaded from durable backends carry no handle; the source is
// re-admitted to rebuild one. The context entry is re-registered so later
// generations stay consistent with cached symbols too.
func (e *Engine) cacheHit(ctx context.Context, req gen.Request, key fingerprint.Key, art *gen.Artifact) (*gen.Artifact, error) {
	e.tel.hits.Add(ctx, 1, symbolAttr(req.Name))
	log.Debug(ctx, log.KV{K: "msg", V: "cache hit"},
		log.KV{K: "symbol", V: req.Name}, log.KV{K: "fingerprint", V: string(key)})
	if !art.Invocable() {
		loaded, err := e.gate.Admit(ctx, art.Source, req)
		if err != nil {
			e.tel.admitFails.Add(ctx, 1, symbolAttr(req.Name))
			return nil, err
		}
		loaded.Fingerprint = string(key)
		loaded.CreatedAt = art.CreatedAt
		art = loaded
	}
	e.store.Record(req.Entry())
	return art, nil
}

// generate runs Synthesizing -> Admitting -> commit for a cache miss. Errors
// terminate the request and surface to every joined caller; they are never
// cached, so the next request for the same fingerprint retries.
func (e *Engine) generate(ctx context.Context, req gen.Request, key fingerprint.Key, snap []gen.ContextEntry) (*gen.Artifact, error) {
	attempt := uuid.NewString()
	ctx, span := e.tel.startGeneration(ctx, req.Name, string(key), attempt)
	log.Debug(ctx, log.KV{K: "msg", V: "synthesizing"}, log.KV{K: "symbol", V: req.Name},
		log.KV{K: "fingerprint", V: string(key)}, log.KV{K: "attempt", V: attempt},
		log.KV{K: "context_entries", V: len(snap)})

	e.tel.syntheses.Add(ctx, 1, symbolAttr(req.Name))
	source, err := e.synth.Synthesize(ctx, req, snap)
	if err != nil {
		if cerr := cancelled(req, key, err); cerr != nil {
			endSpan(span, cerr)
			return nil, cerr
		}
		serr := &gen.SynthesisError{Name: req.Name, Fingerprint: string(key), Err: err}
		log.Error(ctx, serr, log.KV{K: "msg", V: "synthesis failed"}, log.KV{K: "symbol", V: req.Name})
		endSpan(span, serr)
		return nil, serr
	}

	art, err := e.gate.Admit(ctx, source, req)
	if err != nil {
		if cerr := cancelled(req, key, err); cerr != nil {
			endSpan(span, cerr)
			return nil, cerr
		}
		e.tel.admitFails.Add(ctx, 1, symbolAttr(req.Name))
		log.Error(ctx, err, log.KV{K: "msg", V: "admission rejected candidate"}, log.KV{K: "symbol", V: req.Name})
		endSpan(span, err)
		return nil, err
	}
	art.Fingerprint = string(key)

	if err := e.cache.Commit(ctx, key, art); err != nil {
		endSpan(span, err)
		return nil, err
	}
	e.store.Record(req.Entry())
	log.Info(ctx, log.KV{K: "msg", V: "generated"}, log.KV{K: "symbol", V: req.Name},
		log.KV{K: "fingerprint", V: string(key)})
	endSpan(span, nil)
	return art, nil
}

// cancelled maps context errors from the owning generation into the
// CancelledError released to all waiters.
func cancelled(req gen.Request, key fingerprint.Key, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &gen.CancelledError{Name: req.Name, Fingerprint: string(key), Err: err}
	}
	return nil
}
