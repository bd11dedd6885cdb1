// Package gen defines the data model shared by the generation engine: requests
// for symbols that have no explicit implementation, the artifacts produced for
// them, and the context entries that bias later generations toward consistency
// with earlier ones. It also declares the Synthesizer contract implemented by
// provider adapters under features/synth.
package gen

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
)

type (
	// Kind discriminates what a request asks the engine to produce.
	Kind string

	// Param is a single declared parameter of a requested function.
	Param struct {
		// Name is the parameter name as it appears in the declared stub.
		Name string
		// Type is the Go type expression, e.g. "int" or "[]string".
		Type string
	}

	// Request describes a symbol to generate. It is an immutable value type:
	// the engine never mutates a Request after receiving it, and two requests
	// with identical fields are interchangeable.
	Request struct {
		// Name is the symbol name, unique within a facade instance.
		Name string
		// Kind is KindFunction or KindConstant.
		Kind Kind
		// Params are the declared parameters in order. Empty for constants.
		Params []Param
		// Return is the declared return type expression. Empty means none.
		Return string
		// Doc is the optional docstring describing the desired behavior.
		Doc string
		// DependsOn lists symbol names this request depends on. Used by batch
		// resolution to order generation; ignored for single-symbol requests.
		DependsOn []string
	}

	// Status tracks an artifact through its lifecycle. A pending artifact is
	// only ever visible to the engine invocation that created it; committed
	// artifacts are always ready.
	Status string

	// Artifact is the generated, validated result for a request. Source is
	// always populated; the invocable handle (Func) or constant Value is
	// populated by admission and is never persisted — cache implementations
	// round-trip only the source text and the engine rebuilds the handle on
	// load.
	Artifact struct {
		// Fingerprint is the cache key the artifact was generated under.
		Fingerprint string
		// Name is the symbol name.
		Name string
		// Kind mirrors the originating request kind.
		Kind Kind
		// Source is the admitted candidate source text.
		Source string
		// Status is the lifecycle state. Committed artifacts are StatusReady.
		Status Status
		// CreatedAt is the generation timestamp.
		CreatedAt time.Time
		// Func invokes the generated function. Nil until admission loads the
		// source, and nil on artifacts loaded from a persistent cache.
		Func func(args ...any) (any, error)
		// Value holds the generated constant value for KindConstant artifacts.
		Value any
	}

	// ContextEntry summarizes a ready artifact for future synthesis calls. It
	// carries the signature and a short semantic description, never the full
	// source.
	ContextEntry struct {
		// Name is the symbol name the entry summarizes.
		Name string
		// Signature is the rendered declaration, e.g. "square(x int) int".
		Signature string
		// Description is a short semantic summary, typically the docstring.
		Description string
	}
)

const (
	KindFunction Kind = "function"
	KindConstant Kind = "constant"

	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Validate reports whether the request is well formed enough to resolve.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("request name is required")
	}
	switch r.Kind {
	case KindFunction, KindConstant:
	default:
		return fmt.Errorf("request %q: unknown kind %q", r.Name, r.Kind)
	}
	if r.Kind == KindConstant && len(r.Params) > 0 {
		return fmt.Errorf("request %q: constants take no parameters", r.Name)
	}
	return nil
}

// Signature renders the declared signature in Go syntax. Constants render as
// the bare name. The rendering is stable: it depends only on the declared
// fields, never on call-site values.
func (r Request) Signature() string {
	if r.Kind == KindConstant {
		return r.Name
	}
	var b strings.Builder
	b.WriteString(r.Name)
	b.WriteByte('(')
	for i, p := range r.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Name != "" {
			b.WriteString(p.Name)
			b.WriteByte(' ')
		}
		b.WriteString(p.Type)
	}
	b.WriteByte(')')
	if r.Return != "" {
		b.WriteByte(' ')
		b.WriteString(r.Return)
	}
	return b.String()
}

// Entry builds the context entry recorded when an artifact generated from this
// request reaches ready.
func (r Request) Entry() ContextEntry {
	desc := strings.TrimSpace(r.Doc)
	if desc == "" {
		desc = string(r.Kind)
	}
	return ContextEntry{Name: r.Name, Signature: r.Signature(), Description: desc}
}

// RequestFromCall builds an ad-hoc function request from a call site: the
// symbol name plus the observed argument types. Used by the Everything facade
// when no stub was declared. The resulting request has no declared return type
// and no docstring, so its fingerprint keys on the name and argument types
// alone.
func RequestFromCall(name string, args ...any) Request {
	params := make([]Param, len(args))
	for i, a := range args {
		t := "any"
		if a != nil {
			t = reflect.TypeOf(a).String()
		}
		params[i] = Param{Name: fmt.Sprintf("a%d", i+1), Type: t}
	}
	return Request{Name: name, Kind: KindFunction, Params: params}
}

// Invocable reports whether the artifact carries a loaded handle: a callable
// for functions, a value for constants.
func (a *Artifact) Invocable() bool {
	if a == nil {
		return false
	}
	if a.Kind == KindConstant {
		return a.Value != nil
	}
	return a.Func != nil
}

// Invoke calls the generated function with the given arguments. Constants
// return their value and ignore arguments.
func (a *Artifact) Invoke(args ...any) (any, error) {
	if a.Kind == KindConstant {
		if a.Value == nil {
			return nil, fmt.Errorf("constant %q: no value loaded", a.Name)
		}
		return a.Value, nil
	}
	if a.Func == nil {
		return nil, fmt.Errorf("function %q: no handle loaded", a.Name)
	}
	return a.Func(args...)
}

// Prompt renders the entry the way it is presented to synthesizers.
func (e ContextEntry) Prompt() string {
	return fmt.Sprintf("%s: %s - %s", titleKind(e), e.Signature, e.Description)
}

func titleKind(e ContextEntry) string {
	if e.Signature == e.Name {
		return "Constant"
	}
	return "Function"
}
