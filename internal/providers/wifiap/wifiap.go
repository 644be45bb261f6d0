// Package wifiap implements internal/provider.Provider over a local
// access-point scan: observed BSSIDs and signal strengths are resolved
// to a position by an external resolver. Grounded on the teacher's
// pkg/wifi/gps_integration.go shape (scan → resolve → typed location)
// and pkg/wifi/gps_hook.go's scan-trigger pattern, generalized from
// "trigger WiFi optimization on GPS movement" to "resolve GPS position
// from a WiFi scan".
package wifiap

import (
	"context"
	"fmt"
	"time"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/provider"
)

// ID is this provider's stable identifier.
const ID = "wifiap"

// DefaultPollingInterval is conservative: AP scans are comparatively
// expensive and APs move far less often than GPS fixes are needed.
const DefaultPollingInterval = 30 * time.Second

// AccessPoint is one observed access point from a scan.
type AccessPoint struct {
	BSSID     string
	SignalDBm int
}

// Scanner performs a local WiFi scan on the configured interface.
type Scanner interface {
	Scan(ctx context.Context, iface string) ([]AccessPoint, error)
}

// Resolver turns a set of observed access points into a position, e.g.
// via a hosted WiFi-positioning API.
type Resolver interface {
	Resolve(ctx context.Context, aps []AccessPoint) (fix.Fix, error)
}

// Provider scans iface for visible access points and resolves them to
// a position via resolver.
type Provider struct {
	iface    string
	scanner  Scanner
	resolver Resolver
}

// New creates a Provider scanning iface, using scanner to observe
// access points and resolver to turn them into a Fix.
func New(iface string, scanner Scanner, resolver Resolver) *Provider {
	return &Provider{iface: iface, scanner: scanner, resolver: resolver}
}

// ID implements provider.Provider.
func (p *Provider) ID() string { return ID }

// PollingInterval implements provider.Provider.
func (p *Provider) PollingInterval() time.Duration { return DefaultPollingInterval }

// RequestLocation scans for nearby access points and resolves their
// position.
func (p *Provider) RequestLocation(ctx context.Context) (fix.Fix, error) {
	aps, err := p.scanner.Scan(ctx, p.iface)
	if err != nil {
		return fix.Fix{}, provider.NewError(provider.ProviderUnavailable,
			fmt.Sprintf("scan interface %s", p.iface), err)
	}
	if len(aps) == 0 {
		return fix.Fix{}, provider.Errorf(provider.ProviderNoFix, "no access points observed on %s", p.iface)
	}

	f, err := p.resolver.Resolve(ctx, aps)
	if err != nil {
		return fix.Fix{}, provider.NewError(provider.ProviderInvalidResponse, "resolve access point positions", err)
	}
	f.Timestamp = time.Now()
	return f, nil
}
