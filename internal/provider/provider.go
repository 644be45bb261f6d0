// Package provider defines the Provider collaborator interface, the
// engine's error taxonomy, and the per-provider freshness cache that
// sits in front of every concrete backend. Concrete providers (GPS
// daemon, WiFi-AP scan, IP geolocation) live under internal/providers;
// this package only knows about the trait they implement.
package provider

import (
	"context"
	"time"

	"github.com/corelocation/engine/internal/fix"
)

// Provider is one backend able to produce a single location fix
// asynchronously. Implementations must be safe to call concurrently,
// must not block the calling goroutine beyond ctx's deadline, and must
// treat RequestLocation as cancellable: once ctx is done, the call must
// return promptly without having emitted any side effect the engine
// would mistake for a delivered fix.
type Provider interface {
	// ID is the provider's stable identifier, unique within a process.
	ID() string

	// PollingInterval is the provider's nominal cadence; it governs the
	// freshness window of the Cache wrapping this provider.
	PollingInterval() time.Duration

	// RequestLocation fetches one fix from the backend. Implementations
	// are expected to internally rate-limit conservative with
	// PollingInterval (see the rate-limited base in ratelimit.go).
	RequestLocation(ctx context.Context) (fix.Fix, error)
}

// Lifecycle is an optional extension a Provider may implement: Start and
// Stop hooks that must be idempotent. The registry invokes them when a
// provider is selected or displaced; providers that don't need them
// simply don't implement this interface.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// StartIfSupported calls p.Start if p implements Lifecycle, otherwise
// it is a no-op that returns nil.
func StartIfSupported(ctx context.Context, p Provider) error {
	if lc, ok := p.(Lifecycle); ok {
		return lc.Start(ctx)
	}
	return nil
}

// StopIfSupported calls p.Stop if p implements Lifecycle, otherwise it
// is a no-op that returns nil.
func StopIfSupported(ctx context.Context, p Provider) error {
	if lc, ok := p.(Lifecycle); ok {
		return lc.Stop(ctx)
	}
	return nil
}
