// Package middleware provides reusable gen.Synthesizer middlewares.
package middleware

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/anyfn/anyfn/runtime/gen"
)

// rateLimited applies a token bucket in front of a synthesizer so bursts of
// cache misses do not exceed the provider's request budget. Waiting respects
// the caller's context; a cancelled wait surfaces as a cancellation, not a
// synthesis failure.
type rateLimited struct {
	next    gen.Synthesizer
	limiter *rate.Limiter
}

// RateLimited wraps next with a requests-per-second budget and burst size.
func RateLimited(next gen.Synthesizer, rps float64, burst int) (gen.Synthesizer, error) {
	if next == nil {
		return nil, errors.New("synthesizer is required")
	}
	if rps <= 0 {
		return nil, fmt.Errorf("rps must be positive, got %v", rps)
	}
	if burst < 1 {
		burst = 1
	}
	return &rateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(rps), burst)}, nil
}

// Synthesize blocks until the limiter grants a slot, then delegates.
func (r *rateLimited) Synthesize(ctx context.Context, req gen.Request, entries []gen.ContextEntry) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.next.Synthesize(ctx, req, entries)
}
