package anyfn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/anyfn/anyfn/runtime/engine"
	"github.com/anyfn/anyfn/runtime/gen"
)

// Lazy is the two-phase facade: stubs are registered up front and generated
// together, in dependency order, on the first invocation or an explicit
// GenerateAll. Registration is purely a bookkeeping call; nothing reaches the
// synthesizer until generation is triggered.
//
// Lazy is safe for concurrent use.
type Lazy struct {
	eng *engine.Engine

	mu      sync.Mutex
	pending map[string]gen.Request
	arts    map[string]*gen.Artifact
}

// NewLazy builds the batch facade. The default artifact cache is a disk store
// under ".anything".
func NewLazy(opts ...Option) (*Lazy, error) {
	eng, err := newEngine(".anything", opts)
	if err != nil {
		return nil, err
	}
	return &Lazy{
		eng:     eng,
		pending: make(map[string]gen.Request),
		arts:    make(map[string]*gen.Artifact),
	}, nil
}

// Register records a stub and returns its invoker. The first invocation
// triggers GenerateAll for every registered stub so each symbol is generated
// with its dependencies already in context.
func (l *Lazy) Register(req gen.Request) (Fn, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.pending[req.Name]; dup {
		return nil, fmt.Errorf("stub %q already registered", req.Name)
	}
	l.pending[req.Name] = req
	return l.invoker(req.Name), nil
}

// Fn returns the invoker for a registered stub name.
func (l *Lazy) Fn(name string) (Fn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pending[name]; !ok {
		return nil, fmt.Errorf("stub %q is not registered", name)
	}
	return l.invoker(name), nil
}

// GenerateAll resolves every registered stub in dependency order. Symbols
// that already generated are cache hits and cost no synthesizer call.
// Failures are reported per symbol in the returned error and are not sticky:
// a later GenerateAll retries them.
func (l *Lazy) GenerateAll(ctx context.Context) error {
	l.mu.Lock()
	reqs := make([]gen.Request, 0, len(l.pending))
	for _, req := range l.pending {
		reqs = append(reqs, req)
	}
	l.mu.Unlock()
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].Name < reqs[j].Name })

	res, err := l.eng.GenerateAll(ctx, reqs)
	if err != nil {
		return err
	}

	l.mu.Lock()
	for name, art := range res.Artifacts {
		l.arts[name] = art
	}
	l.mu.Unlock()

	if !res.Failed() {
		return nil
	}
	failed := make([]string, 0, len(res.Failures))
	for name := range res.Failures {
		failed = append(failed, name)
	}
	sort.Strings(failed)
	errs := make([]error, 0, len(failed))
	for _, name := range failed {
		errs = append(errs, res.Failures[name])
	}
	return errors.Join(errs...)
}

// Artifact returns the generated artifact for a stub, when it has one.
func (l *Lazy) Artifact(name string) (*gen.Artifact, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	art, ok := l.arts[name]
	return art, ok
}

// GetContext returns a snapshot of the accumulated context entries.
func (l *Lazy) GetContext() []gen.ContextEntry {
	return l.eng.Context().Snapshot()
}

// ClearContext empties the context store without touching cached artifacts.
func (l *Lazy) ClearContext() {
	l.eng.Context().Clear()
}

// invoker builds the call wrapper for a registered name. Callers hold no
// lock; generation is triggered lazily and the symbol's own failure is
// surfaced even when unrelated stubs also failed.
func (l *Lazy) invoker(name string) Fn {
	return func(ctx context.Context, args ...any) (any, error) {
		l.mu.Lock()
		art, ok := l.arts[name]
		l.mu.Unlock()
		if !ok {
			genErr := l.GenerateAll(ctx)
			l.mu.Lock()
			art, ok = l.arts[name]
			l.mu.Unlock()
			if !ok {
				if genErr != nil {
					return nil, genErr
				}
				return nil, fmt.Errorf("stub %q did not generate", name)
			}
		}
		return art.Invoke(args...)
	}
}
