package stationary

import (
	"testing"
	"time"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
)

func coord(lat, lon float64) geo.Coordinate {
	return geo.Coordinate{Latitude: lat, Longitude: lon}
}

func TestFirstObserveSeedsAnchorWithoutPausing(t *testing.T) {
	d := New(true)
	base := time.Now()

	d.Observe(fix.Fix{Coordinate: coord(10, 10), Timestamp: base})
	if d.Paused() {
		t.Fatalf("expected not paused on the first observed fix")
	}
}

func TestDwellBelowTimeoutDoesNotPause(t *testing.T) {
	d := New(true)
	base := time.Now()
	anchor := coord(10, 10)

	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base})
	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base.Add(DwellTimeout - time.Second)})

	if d.Paused() {
		t.Fatalf("expected not paused before DwellTimeout elapses")
	}
}

func TestDwellAtOrBeyondTimeoutPauses(t *testing.T) {
	d := New(true)
	base := time.Now()
	anchor := coord(10, 10)

	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base})
	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base.Add(DwellTimeout)})

	if !d.Paused() {
		t.Fatalf("expected paused once DwellTimeout elapses within the radius")
	}
}

func TestMovementBeyondRadiusResetsAnchor(t *testing.T) {
	d := New(true)
	base := time.Now()
	anchor := coord(10, 10)

	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base})
	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base.Add(DwellTimeout)})
	if !d.Paused() {
		t.Fatalf("expected paused after dwelling at the anchor")
	}

	// A fix well outside RadiusMeters must reset the anchor and clear
	// paused immediately, even though DwellTimeout has already elapsed
	// since the original anchor was set.
	moved := coord(10, 10.01) // roughly 1.1km east at this latitude, far beyond RadiusMeters
	if dist := geo.Haversine(anchor, moved); dist <= RadiusMeters {
		t.Fatalf("test fixture invalid: moved fix is only %v m from anchor, want > %v", dist, RadiusMeters)
	}
	d.Observe(fix.Fix{Coordinate: moved, Timestamp: base.Add(DwellTimeout + time.Second)})
	if d.Paused() {
		t.Fatalf("expected not paused immediately after the anchor resets")
	}

	// Dwelling at the new anchor for another full DwellTimeout pauses again.
	d.Observe(fix.Fix{Coordinate: moved, Timestamp: base.Add(2*DwellTimeout + time.Second)})
	if !d.Paused() {
		t.Fatalf("expected paused after dwelling at the new anchor for DwellTimeout")
	}
}

func TestDisablingAutoPauseClearsPausedImmediately(t *testing.T) {
	d := New(true)
	base := time.Now()
	anchor := coord(10, 10)

	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base})
	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base.Add(DwellTimeout)})
	if !d.Paused() {
		t.Fatalf("expected paused before disabling auto-pause")
	}

	d.SetAutoPause(false)
	if d.Paused() {
		t.Fatalf("expected not paused immediately after SetAutoPause(false)")
	}

	// While disabled, Observe must keep reporting not-paused regardless of dwell.
	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base.Add(2 * DwellTimeout)})
	if d.Paused() {
		t.Fatalf("expected not paused while auto-pause is disabled")
	}
}

func TestResetClearsAnchorAndPaused(t *testing.T) {
	d := New(true)
	base := time.Now()
	anchor := coord(10, 10)

	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base})
	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base.Add(DwellTimeout)})
	if !d.Paused() {
		t.Fatalf("expected paused before Reset")
	}

	d.Reset()
	if d.Paused() {
		t.Fatalf("expected not paused immediately after Reset")
	}

	// The next fix after Reset reseeds the anchor rather than resuming
	// the dwell clock from before Reset.
	d.Observe(fix.Fix{Coordinate: anchor, Timestamp: base.Add(DwellTimeout + time.Millisecond)})
	if d.Paused() {
		t.Fatalf("expected not paused on the first fix after Reset, even at the old anchor")
	}
}
