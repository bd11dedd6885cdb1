package anyfn

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anyfn/anyfn/runtime/gen"
)

// scriptSynth serves canned source per symbol name and counts synthesis
// calls. Unscripted names fall back to fn when set, otherwise fail.
type scriptSynth struct {
	mu      sync.Mutex
	sources map[string]string
	counts  map[string]int
	fn      func(req gen.Request, entries []gen.ContextEntry) (string, error)
}

func newScriptSynth(sources map[string]string) *scriptSynth {
	if sources == nil {
		sources = make(map[string]string)
	}
	return &scriptSynth{sources: sources, counts: make(map[string]int)}
}

func (s *scriptSynth) Synthesize(_ context.Context, req gen.Request, entries []gen.ContextEntry) (string, error) {
	s.mu.Lock()
	s.counts[req.Name]++
	src, ok := s.sources[req.Name]
	s.mu.Unlock()
	if ok {
		return src, nil
	}
	if s.fn != nil {
		return s.fn(req, entries)
	}
	return "", fmt.Errorf("no source scripted for %q", req.Name)
}

func (s *scriptSynth) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

func (s *scriptSynth) script(name, source string) {
	s.mu.Lock()
	s.sources[name] = source
	s.mu.Unlock()
}

func TestNewEverythingRequiresSynthesizer(t *testing.T) {
	_, err := NewEverything()
	require.Error(t, err)
	require.Contains(t, err.Error(), "synthesizer")
}

func TestEverythingCallValuesShareOneArtifact(t *testing.T) {
	synth := newScriptSynth(map[string]string{
		"square": "func square(a1 int) int { return a1 * a1 }",
	})
	e, err := NewEverything(WithSynthesizer(synth), WithMemoryCache())
	require.NoError(t, err)
	ctx := context.Background()

	got, err := e.Call(ctx, "square", 4)
	require.NoError(t, err)
	require.Equal(t, 16, got)

	// Same name, same argument types, different values: one artifact.
	got, err = e.Call(ctx, "square", 7)
	require.NoError(t, err)
	require.Equal(t, 49, got)
	require.Equal(t, 1, synth.count("square"))
}

func TestEverythingArgumentTypesShapeTheRequest(t *testing.T) {
	synth := newScriptSynth(nil)
	synth.fn = func(req gen.Request, _ []gen.ContextEntry) (string, error) {
		return fmt.Sprintf("func %s(a1 %s) %s { return a1 }", req.Name, req.Params[0].Type, req.Params[0].Type), nil
	}
	e, err := NewEverything(WithSynthesizer(synth), WithMemoryCache())
	require.NoError(t, err)
	ctx := context.Background()

	got, err := e.Call(ctx, "identity", 5)
	require.NoError(t, err)
	require.Equal(t, 5, got)

	// A different argument type is a different request.
	got, err = e.Call(ctx, "identity", "five")
	require.NoError(t, err)
	require.Equal(t, "five", got)
	require.Equal(t, 2, synth.count("identity"))

	// Each shape is memoized independently.
	_, err = e.Call(ctx, "identity", 9)
	require.NoError(t, err)
	require.Equal(t, 2, synth.count("identity"))
}

func TestEverythingConstMemoizesValue(t *testing.T) {
	synth := newScriptSynth(map[string]string{
		"max_retries": "const max_retries = 3",
	})
	e, err := NewEverything(WithSynthesizer(synth), WithMemoryCache())
	require.NoError(t, err)
	ctx := context.Background()

	v, err := e.Const(ctx, "max_retries")
	require.NoError(t, err)
	require.Equal(t, 3, v)

	again, err := e.Const(ctx, "max_retries")
	require.NoError(t, err)
	require.Equal(t, v, again)
	require.Equal(t, 1, synth.count("max_retries"))
}

func TestEverythingClearContextKeepsArtifacts(t *testing.T) {
	synth := newScriptSynth(map[string]string{
		"double": "func double(a1 int) int { return a1 * 2 }",
	})
	e, err := NewEverything(WithSynthesizer(synth), WithMemoryCache())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Call(ctx, "double", 2)
	require.NoError(t, err)
	require.Len(t, e.GetContext(), 1)

	e.ClearContext()
	require.Empty(t, e.GetContext())

	got, err := e.Call(ctx, "double", 21)
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, 1, synth.count("double"))
}

func TestEverythingContextAccumulatesSorted(t *testing.T) {
	synth := newScriptSynth(map[string]string{
		"zed": "func zed(a1 int) int { return a1 }",
		"abc": "func abc(a1 int) int { return a1 }",
	})
	e, err := NewEverything(WithSynthesizer(synth), WithMemoryCache())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Call(ctx, "zed", 1)
	require.NoError(t, err)
	_, err = e.Call(ctx, "abc", 1)
	require.NoError(t, err)

	entries := e.GetContext()
	require.Len(t, entries, 2)
	require.True(t, sort.SliceIsSorted(entries, func(i, j int) bool {
		return entries[i].Name < entries[j].Name
	}))
	require.Equal(t, "abc", entries[0].Name)
	require.Equal(t, "abc(a1 int)", entries[0].Signature)
}

func TestEverythingSynthesisFailureIsRetryable(t *testing.T) {
	boom := errors.New("provider quota")
	synth := newScriptSynth(nil)
	synth.fn = func(gen.Request, []gen.ContextEntry) (string, error) { return "", boom }
	e, err := NewEverything(WithSynthesizer(synth), WithMemoryCache())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.Call(ctx, "later", 1)
	require.ErrorIs(t, err, gen.ErrSynthesis)
	require.ErrorIs(t, err, boom)

	synth.script("later", "func later(a1 int) int { return a1 + 1 }")
	got, err := e.Call(ctx, "later", 1)
	require.NoError(t, err)
	require.Equal(t, 2, got)
	require.Equal(t, 2, synth.count("later"))
}

func TestEverythingDiskCacheSurvivesFacade(t *testing.T) {
	dir := t.TempDir()
	synth := newScriptSynth(map[string]string{
		"triple": "func triple(a1 int) int { return a1 * 3 }",
	})

	e1, err := NewEverything(WithSynthesizer(synth), WithCacheDir(dir))
	require.NoError(t, err)
	got, err := e1.Call(context.Background(), "triple", 3)
	require.NoError(t, err)
	require.Equal(t, 9, got)

	// A fresh facade over the same directory re-admits the cached source
	// without a new synthesizer call.
	e2, err := NewEverything(WithSynthesizer(synth), WithCacheDir(dir))
	require.NoError(t, err)
	got, err = e2.Call(context.Background(), "triple", 5)
	require.NoError(t, err)
	require.Equal(t, 15, got)
	require.Equal(t, 1, synth.count("triple"))
}
