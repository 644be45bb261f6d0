// Package stationary implements the stationary detector of spec.md
// §4.5: it observes the reported fix stream and promotes the session
// between MOVING and STATIONARY based on dwell within a small radius.
// The detector is intentionally free of any scheduling concern — it
// only tracks an anchor and a paused flag; internal/scheduler consumes
// Paused() to pick a polling cadence.
package stationary

import (
	"sync"
	"time"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
)

// RadiusMeters and DwellTimeout are fixed by the design, not
// client-tunable (spec.md §4.5).
const (
	RadiusMeters = 10.0
	DwellTimeout = 60 * time.Second
)

// Detector tracks the stationary anchor and the paused flag for a
// single session.
type Detector struct {
	mu          sync.Mutex
	autoPause   bool
	anchor      fix.Fix
	hasAnchor   bool
	anchorStart time.Time
	paused      bool
}

// New creates a Detector with auto-pause initially set as given.
func New(autoPause bool) *Detector {
	return &Detector{autoPause: autoPause}
}

// SetAutoPause enables or disables the detector. Disabling clears the
// paused flag immediately (per §4.5 step 1).
func (d *Detector) SetAutoPause(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.autoPause = enabled
	if !enabled {
		d.paused = false
	}
}

// Paused reports whether the session is currently considered stationary.
func (d *Detector) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Observe feeds a newly reported Fix through the detector's state
// machine, implementing §4.5 steps 1-3 exactly.
func (d *Detector) Observe(f fix.Fix) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.autoPause {
		d.paused = false
		return
	}

	if !d.hasAnchor {
		d.anchor = f
		d.anchorStart = f.Timestamp
		d.hasAnchor = true
		d.paused = false
		return
	}

	distance := geo.Haversine(d.anchor.Coordinate, f.Coordinate)
	if distance > RadiusMeters {
		d.anchor = f
		d.anchorStart = f.Timestamp
		d.paused = false
		return
	}

	if f.Timestamp.Sub(d.anchorStart) >= DwellTimeout {
		d.paused = true
	}
}

// Reset clears the anchor, as on Session stop.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasAnchor = false
	d.anchor = fix.Fix{}
	d.paused = false
}
