package provider

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
)

type countingProvider struct {
	id    string
	fix   fix.Fix
	calls int
}

func (p *countingProvider) ID() string                   { return p.id }
func (p *countingProvider) PollingInterval() time.Duration { return time.Hour }
func (p *countingProvider) RequestLocation(ctx context.Context) (fix.Fix, error) {
	p.calls++
	return p.fix, nil
}

func TestPersistentCachePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	backend := &countingProvider{id: "gpsdaemon", fix: fix.Fix{
		Coordinate:         geo.Coordinate{Latitude: 10, Longitude: 20},
		HorizontalAccuracy: 5,
		Timestamp:          time.Now(),
		Source:             "gpsdaemon",
	}}

	pc1, err := NewPersistentCache(backend, dbPath)
	if err != nil {
		t.Fatalf("NewPersistentCache: %v", err)
	}
	if _, err := pc1.RequestLocation(context.Background()); err != nil {
		t.Fatalf("RequestLocation: %v", err)
	}
	if backend.calls != 1 {
		t.Fatalf("backend.calls = %d, want 1", backend.calls)
	}
	if err := pc1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A second provider instance (simulating a restart) should load the
	// persisted fix without ever calling the backend.
	backend2 := &countingProvider{id: "gpsdaemon", fix: fix.Fix{}}
	pc2, err := NewPersistentCache(backend2, dbPath)
	if err != nil {
		t.Fatalf("NewPersistentCache (reopen): %v", err)
	}
	defer pc2.Close()

	f, err := pc2.RequestLocation(context.Background())
	if err != nil {
		t.Fatalf("RequestLocation after reopen: %v", err)
	}
	if backend2.calls != 0 {
		t.Fatalf("backend2.calls = %d, want 0 (served from persisted cache)", backend2.calls)
	}
	if f.Coordinate.Latitude != 10 || f.Coordinate.Longitude != 20 {
		t.Fatalf("restored fix = %+v, want lat=10 lon=20", f.Coordinate)
	}
}

func TestPersistentCacheFallsBackToBackendWhenEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.db")

	backend := &countingProvider{id: "gpsdaemon", fix: fix.Fix{
		Coordinate: geo.Coordinate{Latitude: 1, Longitude: 2},
		Timestamp:  time.Now(),
	}}

	pc, err := NewPersistentCache(backend, dbPath)
	if err != nil {
		t.Fatalf("NewPersistentCache: %v", err)
	}
	defer pc.Close()

	f, err := pc.RequestLocation(context.Background())
	if err != nil {
		t.Fatalf("RequestLocation: %v", err)
	}
	if backend.calls != 1 {
		t.Fatalf("backend.calls = %d, want 1 (nothing persisted yet)", backend.calls)
	}
	if f.Coordinate.Latitude != 1 {
		t.Fatalf("Latitude = %v, want 1", f.Coordinate.Latitude)
	}
}
