// Package anyfn lets callers invoke functions and named constants that have
// no explicit implementation. A symbol's name, signature, and optional
// docstring are synthesized into runnable Go source on first use, validated
// and loaded through an admission gate, cached by fingerprint, and reused on
// every later request with the same intent.
//
// Two facades cover the two usage styles of the engine:
//
//   - Everything resolves symbols ad hoc at the call site, deriving the
//     request from the observed argument types.
//   - Lazy registers declared stubs up front and generates them together in
//     dependency order via GenerateAll.
//
// Both are thin surfaces over runtime/engine; provider backends for the
// synthesis call live under features/synth and cache backends under
// runtime/cache and features/cache.
package anyfn

import (
	"errors"

	"github.com/anyfn/anyfn/runtime/admit"
	"github.com/anyfn/anyfn/runtime/cache"
	"github.com/anyfn/anyfn/runtime/cache/disk"
	"github.com/anyfn/anyfn/runtime/cache/inmem"
	"github.com/anyfn/anyfn/runtime/engine"
	"github.com/anyfn/anyfn/runtime/gen"
	"github.com/anyfn/anyfn/runtime/memory"
)

type (
	// Option configures a facade. Options are opaque configuration the
	// facade passes through to the engine and its collaborators.
	Option func(*options)

	options struct {
		synth    gen.Synthesizer
		cache    cache.Store
		admitter engine.Admitter
		cacheDir string
	}
)

// WithSynthesizer sets the synthesis backend. Required.
func WithSynthesizer(s gen.Synthesizer) Option {
	return func(o *options) { o.synth = s }
}

// WithCache sets an explicit artifact cache store, overriding the default
// disk cache.
func WithCache(c cache.Store) Option {
	return func(o *options) { o.cache = c }
}

// WithCacheDir sets the directory for the default disk cache. Ignored when
// WithCache is also given.
func WithCacheDir(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithAdmitter sets the admission gate, overriding the default gate built
// from admit.DefaultOptions.
func WithAdmitter(a engine.Admitter) Option {
	return func(o *options) { o.admitter = a }
}

// WithMemoryCache replaces the default disk cache with an in-memory store.
// Artifacts then live only as long as the process.
func WithMemoryCache() Option {
	return func(o *options) { o.cache = inmem.New() }
}

// newEngine assembles an engine from the options, filling collaborator
// defaults. defaultDir names the disk cache directory used when neither an
// explicit cache nor a cache dir is configured.
func newEngine(defaultDir string, opts []Option) (*engine.Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.synth == nil {
		return nil, errors.New("a synthesizer is required: pass WithSynthesizer")
	}
	if o.cache == nil {
		dir := o.cacheDir
		if dir == "" {
			dir = defaultDir
		}
		store, err := disk.New(dir)
		if err != nil {
			return nil, err
		}
		o.cache = store
	}
	if o.admitter == nil {
		gate, err := admit.New(admit.DefaultOptions())
		if err != nil {
			return nil, err
		}
		o.admitter = gate
	}
	return engine.New(engine.Options{
		Synthesizer: o.synth,
		Cache:       o.cache,
		Context:     memory.New(),
		Admitter:    o.admitter,
	})
}
