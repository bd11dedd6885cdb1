package anyfn

import (
	"context"
	"sync"

	"github.com/anyfn/anyfn/runtime/engine"
	"github.com/anyfn/anyfn/runtime/gen"
)

// Fn invokes a generated function with the given arguments.
type Fn func(ctx context.Context, args ...any) (any, error)

// Everything resolves symbols ad hoc: any function name plus observed
// argument types, or any constant name, becomes a generation request on first
// use. Dispatch goes through an explicit resolver registry keyed by symbol
// name with a fallback path for unknown names; there is no reflective
// attribute magic.
//
// Everything is safe for concurrent use. Loaded artifacts are memoized per
// fingerprint so repeated calls do not re-admit cached source.
type Everything struct {
	eng *engine.Engine

	mu        sync.Mutex
	resolvers map[string]Fn
	loaded    map[string]*gen.Artifact // keyed by rendered call signature
	consts    map[string]any
}

// NewEverything builds the ad-hoc facade. The default artifact cache is a
// disk store under ".everything".
func NewEverything(opts ...Option) (*Everything, error) {
	eng, err := newEngine(".everything", opts)
	if err != nil {
		return nil, err
	}
	return &Everything{
		eng:       eng,
		resolvers: make(map[string]Fn),
		loaded:    make(map[string]*gen.Artifact),
		consts:    make(map[string]any),
	}, nil
}

// Call invokes the named function with the given arguments, generating it on
// first use. The request fingerprints on the symbol name and the argument
// types, not the argument values: square(4) and square(7) share one artifact.
func (e *Everything) Call(ctx context.Context, name string, args ...any) (any, error) {
	return e.Fn(name)(ctx, args...)
}

// Fn returns the resolver for the named function, registering a fallback
// resolver when the name has not been seen before.
func (e *Everything) Fn(name string) Fn {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fn, ok := e.resolvers[name]; ok {
		return fn
	}
	fn := func(ctx context.Context, args ...any) (any, error) {
		art, err := e.artifact(ctx, gen.RequestFromCall(name, args...))
		if err != nil {
			return nil, err
		}
		return art.Invoke(args...)
	}
	e.resolvers[name] = fn
	return fn
}

// Const returns the named constant, generating it on first use. Values are
// memoized per name for the lifetime of the facade.
func (e *Everything) Const(ctx context.Context, name string) (any, error) {
	e.mu.Lock()
	if v, ok := e.consts[name]; ok {
		e.mu.Unlock()
		return v, nil
	}
	e.mu.Unlock()

	art, err := e.artifact(ctx, gen.Request{Name: name, Kind: gen.KindConstant})
	if err != nil {
		return nil, err
	}
	v, err := art.Invoke()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.consts[name] = v
	e.mu.Unlock()
	return v, nil
}

// GetContext returns a snapshot of the context entries accumulated so far,
// sorted by symbol name.
func (e *Everything) GetContext() []gen.ContextEntry {
	return e.eng.Context().Snapshot()
}

// ClearContext empties the context store. Cached artifacts are unaffected:
// a previously generated symbol still resolves from cache afterwards.
func (e *Everything) ClearContext() {
	e.eng.Context().Clear()
}

// artifact resolves through the engine, memoizing loaded artifacts by call
// signature so a symbol's source is re-admitted once per process, not once
// per call. Concurrent first calls may both reach the engine; its
// single-flight scope deduplicates the actual generation.
func (e *Everything) artifact(ctx context.Context, req gen.Request) (*gen.Artifact, error) {
	callKey := req.Signature()
	e.mu.Lock()
	if art, ok := e.loaded[callKey]; ok {
		e.mu.Unlock()
		return art, nil
	}
	e.mu.Unlock()

	art, err := e.eng.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.loaded[callKey] = art
	e.mu.Unlock()
	return art, nil
}
