package admit

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/anyfn/anyfn/runtime/gen"
)

// load evaluates the admitted source in a fresh yaegi interpreter and binds
// the resulting symbol to the artifact. Each artifact gets its own
// interpreter so generated symbols cannot observe or shadow each other's
// state; cross-symbol consistency flows through the context store instead.
func (g *Gate) load(art *gen.Artifact, req gen.Request) error {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return &Error{Reason: ReasonLoad, Name: req.Name, Detail: "interpreter setup failed", Err: err}
	}
	if _, err := i.Eval(stripPackageClause(art.Source)); err != nil {
		return &Error{Reason: ReasonLoad, Name: req.Name, Detail: "candidate does not evaluate", Err: err}
	}

	v, err := i.Eval(req.Name)
	if err != nil && req.Kind == gen.KindConstant {
		v, err = i.Eval(strings.ToUpper(req.Name))
	}
	if err != nil {
		return &Error{Reason: ReasonLoad, Name: req.Name, Detail: "evaluated source does not expose the symbol", Err: err}
	}
	if !v.IsValid() {
		return &Error{Reason: ReasonLoad, Name: req.Name, Detail: "symbol evaluated to an invalid value"}
	}

	if req.Kind == gen.KindConstant {
		art.Value = v.Interface()
		return nil
	}
	if v.Kind() != reflect.Func {
		return &Error{
			Reason: ReasonLoad,
			Name:   req.Name,
			Detail: fmt.Sprintf("symbol is %s, expected a function", v.Kind()),
		}
	}
	art.Func = invoker(req.Name, v)
	return nil
}

// stripPackageClause removes a leading package clause so the source can be
// evaluated in the interpreter's REPL scope, where top-level imports and
// declarations are accepted directly.
func stripPackageClause(source string) string {
	trimmed := strings.TrimSpace(source)
	if !strings.HasPrefix(trimmed, "package ") {
		return trimmed
	}
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		return strings.TrimSpace(trimmed[i+1:])
	}
	return ""
}

// invoker wraps the interpreted function in a panic-safe adapter that
// converts loosely typed arguments to the function's parameter types and
// splits a trailing error result.
func invoker(name string, fn reflect.Value) func(args ...any) (any, error) {
	return func(args ...any) (out any, err error) {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, fmt.Errorf("invoke %q: panic: %v", name, r)
			}
		}()
		in, err := buildArgs(name, fn.Type(), args)
		if err != nil {
			return nil, err
		}
		return splitResults(fn.Call(in))
	}
}

func buildArgs(name string, t reflect.Type, args []any) ([]reflect.Value, error) {
	fixed := t.NumIn()
	if t.IsVariadic() {
		fixed--
		if len(args) < fixed {
			return nil, fmt.Errorf("invoke %q: want at least %d arguments, got %d", name, fixed, len(args))
		}
	} else if len(args) != fixed {
		return nil, fmt.Errorf("invoke %q: want %d arguments, got %d", name, fixed, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var pt reflect.Type
		if i < fixed {
			pt = t.In(i)
		} else {
			pt = t.In(t.NumIn() - 1).Elem()
		}
		v, err := convertArg(arg, pt)
		if err != nil {
			return nil, fmt.Errorf("invoke %q: argument %d: %w", name, i+1, err)
		}
		in[i] = v
	}
	return in, nil
}

func convertArg(arg any, pt reflect.Type) (reflect.Value, error) {
	if arg == nil {
		return reflect.Zero(pt), nil
	}
	v := reflect.ValueOf(arg)
	if v.Type().AssignableTo(pt) {
		return v, nil
	}
	if v.Type().ConvertibleTo(pt) {
		return v.Convert(pt), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %T as %s", arg, pt)
}

func splitResults(results []reflect.Value) (any, error) {
	if len(results) > 0 {
		last := results[len(results)-1]
		if last.Type() == errType {
			var err error
			if !last.IsNil() {
				err = last.Interface().(error)
			}
			results = results[:len(results)-1]
			if err != nil {
				return nil, err
			}
		}
	}
	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0].Interface(), nil
	default:
		out := make([]any, len(results))
		for i, r := range results {
			out[i] = r.Interface()
		}
		return out, nil
	}
}

var errType = reflect.TypeOf((*error)(nil)).Elem()
