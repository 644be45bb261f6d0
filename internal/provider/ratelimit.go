package provider

import (
	"context"
	"time"

	"github.com/corelocation/engine/internal/fix"
	"golang.org/x/time/rate"
)

// RateLimited wraps a Provider so that backend calls never exceed a
// cadence conservative with the provider's declared polling interval,
// satisfying the §4.1 policy that providers enforce their own
// rate-limits rather than relying on a caller to throttle them.
type RateLimited struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimited wraps p with a token-bucket limiter that allows at most
// one request per p.PollingInterval(), with a single-request burst.
func NewRateLimited(p Provider) *RateLimited {
	interval := p.PollingInterval()
	if interval <= 0 {
		interval = time.Second
	}
	return &RateLimited{
		Provider: p,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// RequestLocation waits for rate-limiter admission (bounded by ctx) and
// then delegates to the wrapped provider.
func (r *RateLimited) RequestLocation(ctx context.Context) (fix.Fix, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return fix.Fix{}, NewError(Cancelled, "rate limiter wait cancelled", err)
	}
	return r.Provider.RequestLocation(ctx)
}

// Start forwards to the wrapped provider's Lifecycle.Start, if any.
func (r *RateLimited) Start(ctx context.Context) error {
	return StartIfSupported(ctx, r.Provider)
}

// Stop forwards to the wrapped provider's Lifecycle.Stop, if any.
func (r *RateLimited) Stop(ctx context.Context) error {
	return StopIfSupported(ctx, r.Provider)
}
