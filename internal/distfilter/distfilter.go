// Package distfilter implements the distance filter of spec.md §4.4: a
// gating rule that discards fixes too close to the last reported fix.
package distfilter

import (
	"sync"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
)

// Disabled is the sentinel threshold value meaning "every fix passes".
const Disabled = -1.0

// Filter tracks the last reported Fix and gates new fixes against a
// threshold in meters. A non-positive threshold (including Disabled)
// disables filtering.
type Filter struct {
	mu        sync.Mutex
	threshold float64
	last      fix.Fix
	hasLast   bool
}

// New creates a Filter with the given threshold, in meters.
func New(thresholdMeters float64) *Filter {
	return &Filter{threshold: thresholdMeters}
}

// Threshold returns the current threshold, in meters.
func (f *Filter) Threshold() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threshold
}

// SetThreshold updates the threshold. The change is observed by the
// next call to Admit.
func (f *Filter) SetThreshold(thresholdMeters float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = thresholdMeters
}

// Admit reports whether candidate should be reported to the delegate,
// and if so, records it as the new last-reported fix.
func (f *Filter) Admit(candidate fix.Fix) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.threshold <= 0 {
		f.last = candidate
		f.hasLast = true
		return true
	}

	if !f.hasLast {
		f.last = candidate
		f.hasLast = true
		return true
	}

	d := geo.Haversine(f.last.Coordinate, candidate.Coordinate)
	if d < f.threshold {
		return false
	}

	f.last = candidate
	f.hasLast = true
	return true
}

// Reset clears the last-reported fix, as on Session stop: the next
// Admit call always passes.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasLast = false
	f.last = fix.Fix{}
}

// LastReported returns the most recently admitted fix, if any.
func (f *Filter) LastReported() (fix.Fix, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, f.hasLast
}
