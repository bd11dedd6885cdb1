// Package admit is the gate between candidate source text and an invocable
// artifact. It validates structure (the source must define exactly the
// requested symbol with a compatible signature), applies a syntactic policy
// denylist before any evaluation, and loads admitted source through a yaegi
// interpreter into a callable handle or constant value.
//
// The policy check is a hook, not a sandbox: it rejects disallowed imports
// and selector expressions at the AST level and never executes untrusted code
// to decide.
package admit

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"time"

	"github.com/anyfn/anyfn/runtime/gen"
)

type (
	// Reason tags the admission failure class.
	Reason string

	// Error is the tagged admission failure. The engine surfaces it to the
	// caller unchanged; it is never swallowed or replaced by a default
	// result.
	Error struct {
		// Reason classifies the failure.
		Reason Reason
		// Name is the requested symbol.
		Name string
		// Detail describes what was rejected.
		Detail string
		// Err is the underlying parse or load error, when any.
		Err error
	}

	// Options configures the gate's policy surface. Zero options admit
	// everything structurally valid; use DefaultOptions for the conservative
	// default denylist.
	Options struct {
		// DenyImports rejects candidate sources importing any of these
		// paths. An entry matches the exact path or any subpath of it.
		DenyImports []string
		// DenySelectors rejects qualified references such as "os.RemoveAll".
		DenySelectors []string
	}

	// Gate validates, vets, and loads candidate source.
	Gate struct {
		denyImports   []string
		denySelectors map[string]struct{}
	}
)

const (
	ReasonSignatureMismatch Reason = "signature_mismatch"
	ReasonPolicyViolation   Reason = "policy_violation"
	ReasonSyntax            Reason = "syntax"
	ReasonLoad              Reason = "load"
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("admission of %q rejected (%s): %s: %v", e.Name, e.Reason, e.Detail, e.Err)
	}
	return fmt.Sprintf("admission of %q rejected (%s): %s", e.Name, e.Reason, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// DefaultOptions returns the conservative policy applied by the facades when
// no explicit gate is configured: no subprocesses, no network, no raw
// syscalls, no unsafe, and no destructive filesystem calls.
func DefaultOptions() Options {
	return Options{
		DenyImports: []string{"os/exec", "net", "syscall", "unsafe", "plugin"},
		DenySelectors: []string{
			"os.Remove", "os.RemoveAll", "os.Rename", "os.Chmod",
			"os.Setenv", "os.Exit", "os.OpenFile",
		},
	}
}

// New builds a gate enforcing the given policy.
func New(opts Options) (*Gate, error) {
	g := &Gate{
		denyImports:   append([]string(nil), opts.DenyImports...),
		denySelectors: make(map[string]struct{}, len(opts.DenySelectors)),
	}
	for _, sel := range opts.DenySelectors {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			continue
		}
		if !strings.Contains(sel, ".") {
			return nil, fmt.Errorf("deny selector %q must be qualified as pkg.Name", sel)
		}
		g.denySelectors[sel] = struct{}{}
	}
	return g, nil
}

// Admit validates the candidate source against the request, applies the
// policy denylist, and loads the source into an invocable artifact. Any
// failure returns a tagged *Error; Admit never panics on malformed input.
func (g *Gate) Admit(ctx context.Context, source string, req gen.Request) (*gen.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Reason: ReasonLoad, Name: req.Name, Detail: "context done", Err: err}
	}
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, &Error{Reason: ReasonSyntax, Name: req.Name, Detail: "empty candidate source"}
	}

	file, err := parseCandidate(source, req.Name)
	if err != nil {
		return nil, &Error{Reason: ReasonSyntax, Name: req.Name, Detail: "candidate does not parse", Err: err}
	}
	if err := g.checkStructure(file, req); err != nil {
		return nil, err
	}
	if err := g.checkPolicy(file, req); err != nil {
		return nil, err
	}

	art := &gen.Artifact{
		Name:      req.Name,
		Kind:      req.Kind,
		Source:    source,
		Status:    gen.StatusReady,
		CreatedAt: time.Now().UTC(),
	}
	if err := g.load(art, req); err != nil {
		return nil, err
	}
	return art, nil
}

func parseCandidate(source, name string) (*ast.File, error) {
	src := source
	if !strings.HasPrefix(src, "package ") {
		src = "package main\n\n" + src
	}
	fset := token.NewFileSet()
	return parser.ParseFile(fset, name+".go", src, 0)
}

// checkStructure enforces that the source declares exactly the requested
// symbol: one matching declaration and no other top-level functions or
// values. Import declarations are permitted.
func (g *Gate) checkStructure(file *ast.File, req gen.Request) error {
	var found bool
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if req.Kind != gen.KindFunction || d.Name.Name != req.Name {
				return &Error{
					Reason: ReasonSignatureMismatch,
					Name:   req.Name,
					Detail: fmt.Sprintf("unexpected function declaration %q", d.Name.Name),
				}
			}
			if found {
				return &Error{Reason: ReasonSignatureMismatch, Name: req.Name, Detail: "symbol declared more than once"}
			}
			if err := checkSignature(d, req); err != nil {
				return err
			}
			found = true
		case *ast.GenDecl:
			switch d.Tok {
			case token.IMPORT:
				continue
			case token.CONST, token.VAR:
				if req.Kind != gen.KindConstant {
					return &Error{Reason: ReasonSignatureMismatch, Name: req.Name, Detail: "unexpected value declaration"}
				}
				if !declaresConstant(d, req.Name) {
					return &Error{
						Reason: ReasonSignatureMismatch,
						Name:   req.Name,
						Detail: fmt.Sprintf("declaration does not define %q", req.Name),
					}
				}
				found = true
			default:
				return &Error{Reason: ReasonSignatureMismatch, Name: req.Name, Detail: "unexpected declaration"}
			}
		default:
			return &Error{Reason: ReasonSignatureMismatch, Name: req.Name, Detail: "unexpected declaration"}
		}
	}
	if !found {
		return &Error{
			Reason: ReasonSignatureMismatch,
			Name:   req.Name,
			Detail: fmt.Sprintf("candidate does not declare %q", req.Name),
		}
	}
	return nil
}

func checkSignature(d *ast.FuncDecl, req gen.Request) error {
	arity := 0
	if d.Type.Params != nil {
		for _, f := range d.Type.Params.List {
			n := len(f.Names)
			if n == 0 {
				n = 1
			}
			arity += n
		}
	}
	if arity != len(req.Params) {
		return &Error{
			Reason: ReasonSignatureMismatch,
			Name:   req.Name,
			Detail: fmt.Sprintf("declared %d parameters, candidate takes %d", len(req.Params), arity),
		}
	}
	if req.Return != "" && (d.Type.Results == nil || len(d.Type.Results.List) == 0) {
		return &Error{
			Reason: ReasonSignatureMismatch,
			Name:   req.Name,
			Detail: fmt.Sprintf("declared return type %q, candidate returns nothing", req.Return),
		}
	}
	return nil
}

// declaresConstant accepts the exact name or its upper-case form, matching
// the way models commonly render constant names.
func declaresConstant(d *ast.GenDecl, name string) bool {
	upper := strings.ToUpper(name)
	for _, spec := range d.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for _, ident := range vs.Names {
			if ident.Name == name || ident.Name == upper {
				return true
			}
		}
	}
	return false
}

func (g *Gate) checkPolicy(file *ast.File, req gen.Request) error {
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		for _, denied := range g.denyImports {
			if path == denied || strings.HasPrefix(path, denied+"/") {
				return &Error{
					Reason: ReasonPolicyViolation,
					Name:   req.Name,
					Detail: fmt.Sprintf("import %q is denied", path),
				}
			}
		}
	}
	if len(g.denySelectors) == 0 {
		return nil
	}
	var violation *Error
	ast.Inspect(file, func(n ast.Node) bool {
		if violation != nil {
			return false
		}
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		ident, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		qualified := ident.Name + "." + sel.Sel.Name
		if _, denied := g.denySelectors[qualified]; denied {
			violation = &Error{
				Reason: ReasonPolicyViolation,
				Name:   req.Name,
				Detail: fmt.Sprintf("reference to %s is denied", qualified),
			}
			return false
		}
		return true
	})
	if violation != nil {
		return violation
	}
	return nil
}
