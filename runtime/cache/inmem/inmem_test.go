package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anyfn/anyfn/runtime/cache"
	"github.com/anyfn/anyfn/runtime/fingerprint"
	"github.com/anyfn/anyfn/runtime/gen"
)

func artifact(name, source string) *gen.Artifact {
	return &gen.Artifact{
		Name:   name,
		Kind:   gen.KindFunction,
		Source: source,
		Status: gen.StatusReady,
	}
}

func TestLookupMissReturnsNil(t *testing.T) {
	s := New()
	art, err := s.Lookup(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, art)
}

func TestCommitAndLookup(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := fingerprint.Key("k1")
	require.NoError(t, s.Commit(ctx, key, artifact("square", "func square(x int) int { return x * x }")))

	art, err := s.Lookup(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, art)
	require.Equal(t, "square", art.Name)
	require.Equal(t, string(key), art.Fingerprint)
	require.Equal(t, gen.StatusReady, art.Status)
}

func TestCommitIdenticalIsNoOp(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := fingerprint.Key("k1")
	require.NoError(t, s.Commit(ctx, key, artifact("square", "src")))
	require.NoError(t, s.Commit(ctx, key, artifact("square", "src")))
}

func TestCommitConflictFails(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := fingerprint.Key("k1")
	require.NoError(t, s.Commit(ctx, key, artifact("square", "src-a")))

	err := s.Commit(ctx, key, artifact("square", "src-b"))
	var werr *cache.WriteError
	require.ErrorAs(t, err, &werr)
	require.Equal(t, key, werr.Key)

	// Existing record untouched.
	art, err := s.Lookup(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "src-a", art.Source)
}

func TestInvalidateRemovesRecord(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := fingerprint.Key("k1")
	require.NoError(t, s.Commit(ctx, key, artifact("square", "src")))
	require.NoError(t, s.Invalidate(ctx, key))

	art, err := s.Lookup(ctx, key)
	require.NoError(t, err)
	require.Nil(t, art)

	require.NoError(t, s.Invalidate(ctx, key), "invalidating absent key is a no-op")
}

func TestLookupReturnsCopy(t *testing.T) {
	s := New()
	ctx := context.Background()
	key := fingerprint.Key("k1")
	require.NoError(t, s.Commit(ctx, key, artifact("square", "src")))

	first, err := s.Lookup(ctx, key)
	require.NoError(t, err)
	first.Source = "mutated"

	second, err := s.Lookup(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "src", second.Source, "store mutated by caller")
}
