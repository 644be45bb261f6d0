package ipgeo

import (
	"context"
	"errors"
	"testing"

	"googlemaps.github.io/maps"

	"github.com/corelocation/engine/internal/provider"
)

type fakeObserver struct {
	towers []maps.GeolocationCellTower
	aps    []maps.GeolocationWiFiAccessPoint
	err    error
}

func (f fakeObserver) CellTowers(ctx context.Context) ([]maps.GeolocationCellTower, error) {
	return f.towers, f.err
}

func (f fakeObserver) WiFiAccessPoints(ctx context.Context) ([]maps.GeolocationWiFiAccessPoint, error) {
	return f.aps, f.err
}

func TestRequestLocationResolvesViaGeolocate(t *testing.T) {
	observer := fakeObserver{aps: []maps.GeolocationWiFiAccessPoint{{MACAddress: "aa:bb:cc"}}}
	p := newWithGeolocate(observer, func(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error) {
		return &maps.GeolocationResult{Location: maps.LatLng{Lat: 40, Lng: -73}, Accuracy: 150}, nil
	})

	f, err := p.RequestLocation(context.Background())
	if err != nil {
		t.Fatalf("RequestLocation: %v", err)
	}
	if f.Coordinate.Latitude != 40 || f.Coordinate.Longitude != -73 {
		t.Errorf("unexpected coordinate: %+v", f.Coordinate)
	}
	if f.HorizontalAccuracy != 150 {
		t.Errorf("HorizontalAccuracy = %v, want 150", f.HorizontalAccuracy)
	}
}

func TestRequestLocationNoObservations(t *testing.T) {
	p := newWithGeolocate(fakeObserver{}, func(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error) {
		t.Fatal("geolocate should not be called with zero observations")
		return nil, nil
	})

	_, err := p.RequestLocation(context.Background())
	kind, ok := provider.KindOf(err)
	if !ok || kind != provider.ProviderNoFix {
		t.Fatalf("err kind = %v (ok=%v), want ProviderNoFix", kind, ok)
	}
}

func TestRequestLocationObserverFailure(t *testing.T) {
	p := newWithGeolocate(fakeObserver{err: errors.New("modem busy")}, func(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error) {
		t.Fatal("geolocate should not be called when observation fails")
		return nil, nil
	})

	_, err := p.RequestLocation(context.Background())
	kind, ok := provider.KindOf(err)
	if !ok || kind != provider.ProviderUnavailable {
		t.Fatalf("err kind = %v (ok=%v), want ProviderUnavailable", kind, ok)
	}
}

func TestRequestLocationGeolocateFailure(t *testing.T) {
	observer := fakeObserver{aps: []maps.GeolocationWiFiAccessPoint{{MACAddress: "aa:bb:cc"}}}
	p := newWithGeolocate(observer, func(ctx context.Context, r *maps.GeolocationRequest) (*maps.GeolocationResult, error) {
		return nil, errors.New("quota exceeded")
	})

	_, err := p.RequestLocation(context.Background())
	kind, ok := provider.KindOf(err)
	if !ok || kind != provider.ProviderInvalidResponse {
		t.Fatalf("err kind = %v (ok=%v), want ProviderInvalidResponse", kind, ok)
	}
}
