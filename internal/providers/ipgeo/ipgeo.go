// Package ipgeo implements internal/provider.Provider over the Google
// Geolocation API, grounded on the teacher's
// pkg/gps/google_source.go — collect nearby cell towers and WiFi
// access points, post them to Google's geolocation endpoint, turn the
// accuracy-radius response into a Fix. There the HTTP request/response
// structs were hand-rolled against googleapis.com directly; here the
// same request is made through googlemaps.github.io/maps's typed
// client, which is the corpus's own third-party wrapper around the
// identical API.
package ipgeo

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
	"github.com/corelocation/engine/internal/provider"
)

// ID is this provider's stable identifier.
const ID = "ipgeo"

// DefaultPollingInterval: cell/WiFi geolocation is coarse and
// comparatively costly per call, so it is polled far less often than
// GPS.
const DefaultPollingInterval = 2 * time.Minute

// Observer supplies the cell-tower and WiFi-access-point observations
// the Google Geolocation API triangulates from. A real implementation
// reads these from the host's modem/WiFi stack; tests supply a fake.
type Observer interface {
	CellTowers(ctx context.Context) ([]maps.GeolocationCellTower, error)
	WiFiAccessPoints(ctx context.Context) ([]maps.GeolocationWiFiAccessPoint, error)
}

// geolocateFunc matches (*maps.Client).Geolocate, abstracted so tests
// don't need a live API key or network access.
type geolocateFunc func(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error)

// Provider resolves a position from nearby cell towers and WiFi access
// points via Google's Geolocation API.
type Provider struct {
	observer  Observer
	geolocate geolocateFunc
}

// New creates a Provider backed by a real maps.Client constructed from
// apiKey.
func New(apiKey string, observer Observer) (*Provider, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("ipgeo: construct maps client: %w", err)
	}
	return &Provider{observer: observer, geolocate: client.Geolocate}, nil
}

// newWithGeolocate is the test seam: it injects geolocate directly,
// bypassing the real maps.Client.
func newWithGeolocate(observer Observer, geolocate geolocateFunc) *Provider {
	return &Provider{observer: observer, geolocate: geolocate}
}

// ID implements provider.Provider.
func (p *Provider) ID() string { return ID }

// PollingInterval implements provider.Provider.
func (p *Provider) PollingInterval() time.Duration { return DefaultPollingInterval }

// RequestLocation gathers the current cell/WiFi observation set and
// resolves it through the Google Geolocation API.
func (p *Provider) RequestLocation(ctx context.Context) (fix.Fix, error) {
	towers, err := p.observer.CellTowers(ctx)
	if err != nil {
		return fix.Fix{}, provider.NewError(provider.ProviderUnavailable, "observe cell towers", err)
	}
	aps, err := p.observer.WiFiAccessPoints(ctx)
	if err != nil {
		return fix.Fix{}, provider.NewError(provider.ProviderUnavailable, "observe wifi access points", err)
	}
	if len(towers) == 0 && len(aps) == 0 {
		return fix.Fix{}, provider.Errorf(provider.ProviderNoFix, "no cell towers or wifi access points observed")
	}

	result, err := p.geolocate(ctx, &maps.GeolocationRequest{
		ConsiderIP:       false,
		CellTowers:       towers,
		WiFiAccessPoints: aps,
	})
	if err != nil {
		return fix.Fix{}, provider.NewError(provider.ProviderInvalidResponse, "google geolocation request", err)
	}

	return fix.Fix{
		Coordinate: geo.Coordinate{
			Latitude:  result.Location.Lat,
			Longitude: result.Location.Lng,
		},
		HorizontalAccuracy: result.Accuracy,
		VerticalAccuracy:   fix.Unknown,
		Course:             fix.Unknown,
		CourseAccuracy:     fix.Unknown,
		Speed:              fix.Unknown,
		SpeedAccuracy:      fix.Unknown,
		Timestamp:          time.Now(),
	}, nil
}
