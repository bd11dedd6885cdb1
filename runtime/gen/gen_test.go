package gen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestValidate(t *testing.T) {
	require.NoError(t, Request{Name: "f", Kind: KindFunction}.Validate())
	require.NoError(t, Request{Name: "c", Kind: KindConstant}.Validate())

	require.Error(t, Request{Name: "", Kind: KindFunction}.Validate())
	require.Error(t, Request{Name: "   ", Kind: KindFunction}.Validate())
	require.Error(t, Request{Name: "f", Kind: "method"}.Validate())
	require.Error(t, Request{Name: "c", Kind: KindConstant, Params: []Param{{Type: "int"}}}.Validate())
}

func TestRequestSignature(t *testing.T) {
	cases := []struct {
		req  Request
		want string
	}{
		{Request{Name: "square", Kind: KindFunction, Params: []Param{{Name: "x", Type: "int"}}, Return: "int"}, "square(x int) int"},
		{Request{Name: "greet", Kind: KindFunction, Params: []Param{{Name: "name", Type: "string"}}}, "greet(name string)"},
		{Request{Name: "now", Kind: KindFunction, Return: "time.Time"}, "now() time.Time"},
		{Request{Name: "sum", Kind: KindFunction, Params: []Param{{Type: "int"}, {Type: "int"}}, Return: "int"}, "sum(int, int) int"},
		{Request{Name: "golden_ratio", Kind: KindConstant}, "golden_ratio"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.req.Signature())
	}
}

func TestRequestEntry(t *testing.T) {
	e := Request{
		Name:   "square",
		Kind:   KindFunction,
		Params: []Param{{Name: "x", Type: "int"}},
		Return: "int",
		Doc:    "  returns x squared  ",
	}.Entry()
	require.Equal(t, ContextEntry{
		Name:        "square",
		Signature:   "square(x int) int",
		Description: "returns x squared",
	}, e)

	// A docless request falls back to its kind.
	e = Request{Name: "pi", Kind: KindConstant}.Entry()
	require.Equal(t, "constant", e.Description)
}

func TestRequestFromCall(t *testing.T) {
	req := RequestFromCall("mix", 1, "two", 3.0, []byte("x"), nil)
	require.Equal(t, "mix", req.Name)
	require.Equal(t, KindFunction, req.Kind)
	require.Equal(t, []Param{
		{Name: "a1", Type: "int"},
		{Name: "a2", Type: "string"},
		{Name: "a3", Type: "float64"},
		{Name: "a4", Type: "[]uint8"},
		{Name: "a5", Type: "any"},
	}, req.Params)
	require.Empty(t, req.Return)
	require.Equal(t, "mix(a1 int, a2 string, a3 float64, a4 []uint8, a5 any)", req.Signature())
}

func TestArtifactInvoke(t *testing.T) {
	fn := &Artifact{Name: "add", Kind: KindFunction, Func: func(args ...any) (any, error) {
		return args[0].(int) + args[1].(int), nil
	}}
	require.True(t, fn.Invocable())
	got, err := fn.Invoke(2, 3)
	require.NoError(t, err)
	require.Equal(t, 5, got)

	bare := &Artifact{Name: "add", Kind: KindFunction}
	require.False(t, bare.Invocable())
	_, err = bare.Invoke(1)
	require.Error(t, err)

	c := &Artifact{Name: "pi", Kind: KindConstant, Value: 3.14}
	require.True(t, c.Invocable())
	got, err = c.Invoke("ignored")
	require.NoError(t, err)
	require.Equal(t, 3.14, got)

	empty := &Artifact{Name: "pi", Kind: KindConstant}
	require.False(t, empty.Invocable())
	_, err = empty.Invoke()
	require.Error(t, err)

	var nilArt *Artifact
	require.False(t, nilArt.Invocable())
}

func TestContextEntryPrompt(t *testing.T) {
	fn := ContextEntry{Name: "square", Signature: "square(x int) int", Description: "returns x squared"}
	require.Equal(t, "Function: square(x int) int - returns x squared", fn.Prompt())

	c := ContextEntry{Name: "pi", Signature: "pi", Description: "circle constant"}
	require.Equal(t, "Constant: pi - circle constant", c.Prompt())
}

func TestSystemPrompt(t *testing.T) {
	require.Equal(t, FunctionSystemPrompt, SystemPrompt(Request{Name: "f", Kind: KindFunction}))
	require.Equal(t, ConstantSystemPrompt, SystemPrompt(Request{Name: "c", Kind: KindConstant}))
}

func TestUserPrompt(t *testing.T) {
	req := Request{
		Name:   "hypot",
		Kind:   KindFunction,
		Params: []Param{{Name: "a", Type: "float64"}, {Name: "b", Type: "float64"}},
		Return: "float64",
		Doc:    "hypotenuse of a right triangle",
	}

	bare := UserPrompt(req, nil)
	require.Contains(t, bare, "hypot(a float64, b float64) float64")
	require.Contains(t, bare, "Doc: hypotenuse")
	require.NotContains(t, bare, "Context of previously generated symbols")

	entries := []ContextEntry{{Name: "square", Signature: "square(x float64) float64", Description: "squares x"}}
	withCtx := UserPrompt(req, entries)
	require.Contains(t, withCtx, "Context of previously generated symbols:")
	require.Contains(t, withCtx, "Function: square(x float64) float64 - squares x")
	require.True(t, strings.Index(withCtx, "square") < strings.Index(withCtx, "hypot"))

	constPrompt := UserPrompt(Request{Name: "golden_ratio", Kind: KindConstant}, nil)
	require.Equal(t, "Constant name: golden_ratio", constPrompt)
}

func TestCleanFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"func f() {}", "func f() {}"},
		{"```go\nfunc f() {}\n```", "func f() {}"},
		{"```\nfunc f() {}\n```", "func f() {}"},
		{"  ```go\nconst pi = 3.14\n```  \n", "const pi = 3.14"},
		{"", ""},
	}
	for _, c := range cases {
		require.Equal(t, c.want, CleanFences(c.in))
	}
}

func TestSynthesizerFunc(t *testing.T) {
	var got Request
	f := SynthesizerFunc(func(_ context.Context, req Request, _ []ContextEntry) (string, error) {
		got = req
		return "src", nil
	})
	src, err := f.Synthesize(context.Background(), Request{Name: "f", Kind: KindFunction}, nil)
	require.NoError(t, err)
	require.Equal(t, "src", src)
	require.Equal(t, "f", got.Name)
}

func TestErrorTaxonomy(t *testing.T) {
	cause := errors.New("rate limited")
	serr := &SynthesisError{Name: "f", Fingerprint: "abcdef0123456789", Err: cause}
	require.ErrorIs(t, serr, ErrSynthesis)
	require.ErrorIs(t, serr, cause)
	require.Contains(t, serr.Error(), `"f"`)
	require.Contains(t, serr.Error(), "abcdef012345") // fingerprint is truncated
	require.NotContains(t, serr.Error(), "abcdef0123456789")

	cerr := &CancelledError{Name: "f", Fingerprint: "fp", Err: context.Canceled}
	require.ErrorIs(t, cerr, context.Canceled)

	dcerr := NewDependencyCycleError([]string{"b", "a", "c"})
	require.Equal(t, []string{"a", "b", "c"}, dcerr.Members)
	require.Equal(t, "dependency cycle: a -> b -> c", dcerr.Error())

	ferr := &FailedDependencyError{Name: "g", Dependency: "f", Err: serr}
	require.ErrorIs(t, ferr, ErrSynthesis)
	require.Contains(t, ferr.Error(), `"g"`)
	require.Contains(t, ferr.Error(), `"f"`)
}
