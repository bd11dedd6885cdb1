package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anyfn/anyfn/runtime/gen"
)

// orderSynth records the order in which symbols reach synthesis together with
// the context snapshot each one saw.
type orderSynth struct {
	mu    sync.Mutex
	order []string
	snaps map[string][]string
	fail  map[string]error
}

func newOrderSynth() *orderSynth {
	return &orderSynth{snaps: make(map[string][]string), fail: make(map[string]error)}
}

func (s *orderSynth) Synthesize(_ context.Context, req gen.Request, entries []gen.ContextEntry) (string, error) {
	s.mu.Lock()
	s.order = append(s.order, req.Name)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	s.snaps[req.Name] = names
	err := s.fail[req.Name]
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("func %s() int { return 1 }", req.Name), nil
}

func batchReq(name string, deps ...string) gen.Request {
	return gen.Request{Name: name, Kind: gen.KindFunction, Return: "int", DependsOn: deps}
}

func TestGenerateAllOrdersByDependency(t *testing.T) {
	synth := newOrderSynth()
	eng := newTestEngine(t, synth, &passAdmitter{})

	res, err := eng.GenerateAll(context.Background(), []gen.Request{
		batchReq("top", "mid"),
		batchReq("mid", "base"),
		batchReq("base"),
	})
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Len(t, res.Artifacts, 3)
	for _, name := range []string{"base", "mid", "top"} {
		require.True(t, res.Artifacts[name].Invocable(), name)
	}

	require.Equal(t, []string{"base", "mid", "top"}, synth.order)
	// Each snapshot covers exactly the transitive dependency closure.
	require.Empty(t, synth.snaps["base"])
	require.Equal(t, []string{"base"}, synth.snaps["mid"])
	require.Equal(t, []string{"base", "mid"}, synth.snaps["top"])
}

func TestGenerateAllScopingKeepsFingerprintsStable(t *testing.T) {
	synth := newOrderSynth()
	eng := newTestEngine(t, synth, &passAdmitter{})
	ctx := context.Background()

	first, err := eng.GenerateAll(ctx, []gen.Request{
		batchReq("base"),
		batchReq("mid", "base"),
	})
	require.NoError(t, err)
	require.False(t, first.Failed())

	// Re-running with an unrelated extra symbol must not regenerate the
	// originals: their fingerprints depend only on their own closures.
	second, err := eng.GenerateAll(ctx, []gen.Request{
		batchReq("base"),
		batchReq("mid", "base"),
		batchReq("extra"),
	})
	require.NoError(t, err)
	require.False(t, second.Failed())
	require.Equal(t, first.Artifacts["base"].Fingerprint, second.Artifacts["base"].Fingerprint)
	require.Equal(t, first.Artifacts["mid"].Fingerprint, second.Artifacts["mid"].Fingerprint)
	require.Equal(t, []string{"base", "mid", "extra"}, synth.order)
}

func TestGenerateAllCycleFailsMembersOnly(t *testing.T) {
	synth := newOrderSynth()
	eng := newTestEngine(t, synth, &passAdmitter{})

	res, err := eng.GenerateAll(context.Background(), []gen.Request{
		batchReq("ouro", "boros"),
		batchReq("boros", "ouro"),
		batchReq("aside"),
	})
	require.NoError(t, err)
	require.True(t, res.Failed())
	require.Len(t, res.Artifacts, 1)
	require.True(t, res.Artifacts["aside"].Invocable())

	for _, name := range []string{"ouro", "boros"} {
		var cerr *gen.DependencyCycleError
		require.ErrorAs(t, res.Failures[name], &cerr, name)
		require.Equal(t, []string{"boros", "ouro"}, cerr.Members)
	}
	// No synthesis is attempted for cycle members.
	require.Equal(t, []string{"aside"}, synth.order)
}

func TestGenerateAllShortCircuitsFailedDependencies(t *testing.T) {
	boom := errors.New("model refused")
	synth := newOrderSynth()
	synth.fail["broken"] = boom
	eng := newTestEngine(t, synth, &passAdmitter{})

	res, err := eng.GenerateAll(context.Background(), []gen.Request{
		batchReq("broken"),
		batchReq("direct", "broken"),
		batchReq("transitive", "direct"),
		batchReq("bystander"),
	})
	require.NoError(t, err)
	require.True(t, res.Failed())
	require.Len(t, res.Artifacts, 1)
	require.True(t, res.Artifacts["bystander"].Invocable())

	require.ErrorIs(t, res.Failures["broken"], gen.ErrSynthesis)
	require.ErrorIs(t, res.Failures["broken"], boom)

	var ferr *gen.FailedDependencyError
	require.ErrorAs(t, res.Failures["direct"], &ferr)
	require.Equal(t, "broken", ferr.Dependency)
	require.ErrorAs(t, res.Failures["transitive"], &ferr)
	require.Equal(t, "direct", ferr.Dependency)
	require.ErrorIs(t, res.Failures["transitive"], boom)

	// Only the failing symbol and the bystander ever reached synthesis.
	require.ElementsMatch(t, []string{"broken", "bystander"}, synth.order)
}

func TestGenerateAllInfersDependenciesFromParamTypes(t *testing.T) {
	synth := newOrderSynth()
	eng := newTestEngine(t, synth, &passAdmitter{})

	res, err := eng.GenerateAll(context.Background(), []gen.Request{
		{
			Name:   "area",
			Kind:   gen.KindFunction,
			Params: []gen.Param{{Name: "s", Type: "shape"}},
			Return: "float64",
		},
		{Name: "shape", Kind: gen.KindFunction, Return: "int"},
	})
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Equal(t, []string{"shape", "area"}, synth.order)
	require.Equal(t, []string{"shape"}, synth.snaps["area"])
}

func TestGenerateAllRejectsInvalidBatches(t *testing.T) {
	eng := newTestEngine(t, newOrderSynth(), &passAdmitter{})
	ctx := context.Background()

	res, err := eng.GenerateAll(ctx, []gen.Request{
		batchReq("twice"),
		batchReq("twice"),
	})
	require.Error(t, err)
	require.Nil(t, res)
	require.Contains(t, err.Error(), "twice")

	res, err = eng.GenerateAll(ctx, []gen.Request{batchReq("lonely", "ghost")})
	require.Error(t, err)
	require.Nil(t, res)
	require.Contains(t, err.Error(), "ghost")

	res, err = eng.GenerateAll(ctx, []gen.Request{{Name: "", Kind: gen.KindFunction}})
	require.Error(t, err)
	require.Nil(t, res)
}

func TestGenerateAllEmptyBatch(t *testing.T) {
	eng := newTestEngine(t, newOrderSynth(), &passAdmitter{})
	res, err := eng.GenerateAll(context.Background(), nil)
	require.NoError(t, err)
	require.False(t, res.Failed())
	require.Empty(t, res.Artifacts)
}
