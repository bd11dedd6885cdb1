package gen

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrSynthesis is the sentinel matched by errors.Is for any failure of the
// external synthesis call (network, model, quota). Adapter errors wrap it via
// SynthesisError.
var ErrSynthesis = errors.New("synthesis failed")

type (
	// SynthesisError reports a failed synthesizer call for a specific symbol.
	// It wraps the transport/model error and matches ErrSynthesis.
	SynthesisError struct {
		// Name is the symbol being generated.
		Name string
		// Fingerprint identifies the failed generation for diagnosis.
		Fingerprint string
		// Err is the underlying adapter error.
		Err error
	}

	// CancelledError reports that the owning generation for a fingerprint was
	// abandoned by its caller. Waiters joined on the same fingerprint observe
	// this outcome. It matches context.Canceled and context.DeadlineExceeded
	// through its cause.
	CancelledError struct {
		// Name is the symbol being generated.
		Name string
		// Fingerprint identifies the abandoned generation.
		Fingerprint string
		// Err is the context error that triggered cancellation.
		Err error
	}

	// DependencyCycleError reports a cycle among declared batch dependencies.
	// Members lists every symbol participating in the cycle, sorted by name.
	DependencyCycleError struct {
		Members []string
	}

	// FailedDependencyError reports that a batch symbol was skipped because
	// one of its dependencies failed. No synthesis is attempted for the
	// dependent.
	FailedDependencyError struct {
		// Name is the skipped symbol.
		Name string
		// Dependency is the failed dependency that caused the skip.
		Dependency string
		// Err is the dependency's failure.
		Err error
	}
)

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize %q (fingerprint %s): %v", e.Name, short(e.Fingerprint), e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Is matches ErrSynthesis so callers can test the failure class without
// knowing the concrete type.
func (e *SynthesisError) Is(target error) bool { return target == ErrSynthesis }

func (e *CancelledError) Error() string {
	return fmt.Sprintf("generation of %q (fingerprint %s) cancelled: %v", e.Name, short(e.Fingerprint), e.Err)
}

func (e *CancelledError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return context.Canceled
}

// NewDependencyCycleError builds a cycle error from the member set, sorting
// names for deterministic reporting.
func NewDependencyCycleError(members []string) *DependencyCycleError {
	sorted := make([]string, len(members))
	copy(sorted, members)
	sort.Strings(sorted)
	return &DependencyCycleError{Members: sorted}
}

func (e *DependencyCycleError) Error() string {
	return "dependency cycle: " + strings.Join(e.Members, " -> ")
}

func (e *FailedDependencyError) Error() string {
	return fmt.Sprintf("skipped %q: dependency %q failed: %v", e.Name, e.Dependency, e.Err)
}

func (e *FailedDependencyError) Unwrap() error { return e.Err }

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
