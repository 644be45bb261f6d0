// Package registry implements the accuracy-tier provider registry and
// the fallback-ladder traversal of §4.3, grounded on the teacher's
// decision-engine ladder/scoring style (pkg/decision/engine.go) and its
// cellular fallback fusion (pkg/gps/cellular_fusion.go), generalized
// from a fixed cellular-vs-WiFi ladder to the six-tier AccuracyTier
// ladder.
package registry

import (
	"context"
	"sync"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/logx"
	"github.com/corelocation/engine/internal/provider"
)

// Registry maps accuracy tiers to providers and walks the fallback
// ladder on RequestWithFallback. It tracks which provider is currently
// "started" so that Start/Stop hooks are invoked only on transition.
type Registry struct {
	logger *logx.Logger

	mu      sync.Mutex
	byTier  map[fix.AccuracyTier]provider.Provider
	started provider.Provider

	// onFallback, if set, is called once per advance to the next
	// candidate on the fallback ladder (i.e. once per provider failure
	// that isn't the last candidate tried).
	onFallback func()
}

// New creates an empty Registry.
func New(logger *logx.Logger) *Registry {
	return &Registry{
		logger: logger,
		byTier: make(map[fix.AccuracyTier]provider.Provider),
	}
}

// SetFallbackRecorder installs fn to be called every time
// RequestWithFallback advances from a failed candidate to the next one
// on the ladder. Passing nil disables recording.
func (r *Registry) SetFallbackRecorder(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onFallback = fn
}

// Register associates a provider with an accuracy tier. A provider may
// be registered for more than one tier.
func (r *Registry) Register(tier fix.AccuracyTier, p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTier[tier] = p
}

// candidates returns the distinct, in-ladder-order list of providers
// registered anywhere on the ladder for the requested tier. A provider
// registered under more than one tier of the ladder appears once, at
// its first (most preferred) occurrence.
func (r *Registry) candidates(requested fix.AccuracyTier) []provider.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool)
	var out []provider.Provider
	for _, tier := range fix.Ladder(requested) {
		p, ok := r.byTier[tier]
		if !ok {
			continue
		}
		if seen[p.ID()] {
			continue
		}
		seen[p.ID()] = true
		out = append(out, p)
	}
	return out
}

// RequestWithFallback walks the fallback ladder for the requested tier:
// it starts the chosen provider (stopping the previously-started one
// first), calls RequestLocation, and on failure advances to the next
// candidate. Start/stop failures do not abort the ladder. If every
// candidate fails, the returned error is FailedAllProviders wrapping the
// last underlying error. If no provider is registered anywhere on the
// ladder, the error is NoProviderForAccuracy.
func (r *Registry) RequestWithFallback(ctx context.Context, requested fix.AccuracyTier) (fix.Fix, error) {
	candidates := r.candidates(requested)
	if len(candidates) == 0 {
		return fix.Fix{}, provider.Errorf(provider.NoProviderForAccuracy,
			"no provider registered for tier %s or any fallback tier", requested)
	}

	var lastErr error
	for i, p := range candidates {
		if i > 0 {
			r.mu.Lock()
			onFallback := r.onFallback
			r.mu.Unlock()
			if onFallback != nil {
				onFallback()
			}
		}

		r.transitionTo(ctx, p)

		f, err := p.RequestLocation(ctx)
		if err != nil {
			if provider.IsCancelled(err) {
				return fix.Fix{}, err
			}
			r.logger.Debug("provider failed during fallback traversal", "provider", p.ID(), "error", err)
			lastErr = err
			continue
		}

		return f.WithSource(p.ID()), nil
	}

	return fix.Fix{}, provider.NewError(provider.FailedAllProviders,
		"all providers on the fallback ladder failed", lastErr)
}

// transitionTo stops the currently-started provider (if different) and
// starts p, in that order. Failures are logged, not propagated: §4.3
// requires start/stop failures not abort the ladder.
func (r *Registry) transitionTo(ctx context.Context, p provider.Provider) {
	r.mu.Lock()
	previous := r.started
	r.started = p
	r.mu.Unlock()

	if previous != nil && previous.ID() == p.ID() {
		return
	}

	if previous != nil {
		if err := provider.StopIfSupported(ctx, previous); err != nil {
			r.logger.Debug("provider stop failed", "provider", previous.ID(), "error", err)
		}
	}
	if err := provider.StartIfSupported(ctx, p); err != nil {
		r.logger.Debug("provider start failed", "provider", p.ID(), "error", err)
	}
}

// StartedProvider returns the identifier of the currently-started
// provider, or "" if none has been started yet.
func (r *Registry) StartedProvider() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started == nil {
		return ""
	}
	return r.started.ID()
}
