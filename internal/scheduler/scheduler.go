// Package scheduler implements the adaptive scheduler of spec.md §4.5:
// it owns the polling cadence and switches between foreground,
// background, and stationary intervals, rescheduling its timer whenever
// the selected interval changes. Grounded on the teacher's
// pkg/adaptive/sampler.go ticker-rescheduling idiom, generalized from
// five connection-keyed modes down to the spec's fixed three-interval
// rule.
package scheduler

import (
	"context"
	"sync"
	"time"
)

// Fixed by the design, not client-tunable (spec.md §4.5).
const (
	ForegroundInterval = 1 * time.Second
	BackgroundInterval = 30 * time.Second
	StationaryInterval = 60 * time.Second
)

// Mode selects which of the three fixed intervals is active.
type Mode int

const (
	Foreground Mode = iota
	Background
	Stationary
)

func (m Mode) interval() time.Duration {
	switch m {
	case Background:
		return BackgroundInterval
	case Stationary:
		return StationaryInterval
	default:
		return ForegroundInterval
	}
}

// SelectMode implements §4.5's interval-selection rule.
func SelectMode(allowsBackground, paused bool) Mode {
	if paused {
		return Stationary
	}
	if allowsBackground {
		return Background
	}
	return Foreground
}

// Scheduler drives a repeating tick at an adaptively-selected interval.
// Whenever the selected interval changes, the running timer is cancelled
// and rescheduled, and the next tick fires immediately to preserve
// liveness, per §4.5.
type Scheduler struct {
	mu               sync.Mutex
	allowsBackground bool
	paused           bool
	mode             Mode

	running bool
	cancel  context.CancelFunc
	onTick  func(ctx context.Context)

	// newTimer is injectable for deterministic tests.
	newTimer func(d time.Duration) *time.Timer
}

// New creates a Scheduler with the given initial configuration.
func New(allowsBackground bool) *Scheduler {
	return &Scheduler{
		allowsBackground: allowsBackground,
		mode:             SelectMode(allowsBackground, false),
		newTimer:         time.NewTimer,
	}
}

// CurrentInterval returns the interval the scheduler is presently using.
func (s *Scheduler) CurrentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode.interval()
}

// CurrentMode returns the scheduler's presently selected mode.
func (s *Scheduler) CurrentMode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetAllowsBackground updates the background-allowed flag and
// reschedules if the effective mode changes. Observed by the next timer
// tick, not retroactively applied to a tick already in flight.
func (s *Scheduler) SetAllowsBackground(allowed bool) {
	s.mu.Lock()
	s.allowsBackground = allowed
	s.mu.Unlock()
	s.reconfigure()
}

// SetPaused updates the stationary-paused flag and reschedules if the
// effective mode changes.
func (s *Scheduler) SetPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
	s.reconfigure()
}

// reconfigure recomputes the mode and, if it changed while running,
// cancels and restarts the timer loop with the new interval.
func (s *Scheduler) reconfigure() {
	s.mu.Lock()
	newMode := SelectMode(s.allowsBackground, s.paused)
	changed := newMode != s.mode
	s.mode = newMode
	running := s.running
	onTick := s.onTick
	s.mu.Unlock()

	if running && changed {
		s.stopLocked()
		s.startLoop(onTick)
	}
}

// Start arms the timer at the current interval and begins calling onTick
// on every fire. Start is idempotent: calling it again without an
// intervening Stop has no effect beyond the first call (testable
// property 7).
func (s *Scheduler) Start(onTick func(ctx context.Context)) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.onTick = onTick
	s.mu.Unlock()

	s.startLoop(onTick)
}

// Stop cancels the pending tick and the timer loop.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// startLoop launches the goroutine driving repeated ticks at the
// current interval. The first tick fires immediately.
func (s *Scheduler) startLoop(onTick func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		onTick(ctx)
		if ctx.Err() != nil {
			return
		}

		for {
			s.mu.Lock()
			interval := s.mode.interval()
			s.mu.Unlock()

			timer := s.newTimer(interval)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				onTick(ctx)
				if ctx.Err() != nil {
					return
				}
			}
		}
	}()
}
