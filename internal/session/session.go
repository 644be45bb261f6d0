// Package session implements the Session facade of spec.md §4.7: the
// client-facing object carrying configuration, lifecycle, and the
// delegate sink, composing the registry, distance filter, stationary
// detector, adaptive scheduler, and region monitor into the single
// control task described in §5. Grounded on the teacher's
// pkg/controller/controller.go / pkg/decision/engine.go orchestration
// style: one struct owning several interacting sub-components behind a
// single mutex-protected control surface, with delegate-style callbacks
// dispatched off of a dedicated goroutine rather than under any lock.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/corelocation/engine/internal/distfilter"
	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/logx"
	"github.com/corelocation/engine/internal/provider"
	"github.com/corelocation/engine/internal/region"
	"github.com/corelocation/engine/internal/registry"
	"github.com/corelocation/engine/internal/scheduler"
	"github.com/corelocation/engine/internal/stationary"
)

// State is the Session's lifecycle state.
type State int

const (
	Idle State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	default:
		return "Idle"
	}
}

// Config is the client-settable configuration surface of spec.md §6.
type Config struct {
	DesiredAccuracy     fix.AccuracyTier
	DistanceFilter      float64 // meters; distfilter.Disabled to disable
	AllowsBackground    bool
	PausesAutomatically bool
}

// Session is the client-facing configuration-plus-lifecycle unit.
// Multiple Sessions may coexist in one process. Each Session uses the
// Registry passed to New; Registries built for different Sessions can
// register the same Cache-wrapped Providers, so those Sessions share the
// providers' caches.
type Session struct {
	logger *logx.Logger

	mu                  sync.Mutex
	state               State
	desiredAccuracy     fix.AccuracyTier
	allowsBackground    bool
	pausesAutomatically bool

	registry   *registry.Registry
	distFilter *distfilter.Filter
	stationary *stationary.Detector
	scheduler  *scheduler.Scheduler
	regions    *region.Monitor

	delegate Delegate

	dispatch chan func()
	wg       sync.WaitGroup
	closed   bool

	// nowFunc is injectable for deterministic tests.
	nowFunc func() time.Time
}

// New constructs an idle Session. reg is the accuracy-tier provider
// registry the session will fall back across; delegate receives events
// and must not be nil (use BaseDelegate{} for a no-op sink).
func New(logger *logx.Logger, reg *registry.Registry, delegate Delegate, cfg Config) *Session {
	s := &Session{
		logger:              logger,
		state:               Idle,
		desiredAccuracy:     cfg.DesiredAccuracy,
		allowsBackground:    cfg.AllowsBackground,
		pausesAutomatically: cfg.PausesAutomatically,
		registry:            reg,
		distFilter:          distfilter.New(cfg.DistanceFilter),
		stationary:          stationary.New(cfg.PausesAutomatically),
		scheduler:           scheduler.New(cfg.AllowsBackground),
		regions:             region.New(),
		delegate:            delegate,
		dispatch:            make(chan func(), 64),
		nowFunc:             time.Now,
	}

	s.wg.Add(1)
	go s.dispatchLoop()

	return s
}

// dispatchLoop is the Session's stable, serialised delegate execution
// context (§5): every Delegate callback is invoked from here, and
// nothing in the Session ever calls a Delegate method while holding mu.
func (s *Session) dispatchLoop() {
	defer s.wg.Done()
	for fn := range s.dispatch {
		fn()
	}
}

func (s *Session) emit(fn func()) {
	select {
	case s.dispatch <- fn:
	default:
		// Dispatch is backed up; run synchronously rather than drop an
		// event or block the caller indefinitely. This only happens
		// under pathological delegate slowness.
		fn()
	}
}

// Close stops the session (if running) and shuts down the dispatch
// goroutine. After Close, the Session must not be reused.
func (s *Session) Close() {
	s.Stop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.dispatch)
	s.wg.Wait()
}

// --- Configuration surface (spec.md §6) ---

// SetDesiredAccuracy updates the requested accuracy tier. Applied
// immediately; observed by the next tick or RequestLocation call.
func (s *Session) SetDesiredAccuracy(tier fix.AccuracyTier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.desiredAccuracy = tier
}

// DesiredAccuracy returns the currently configured tier.
func (s *Session) DesiredAccuracy() fix.AccuracyTier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desiredAccuracy
}

// SetDistanceFilter updates the distance filter threshold in meters;
// distfilter.Disabled disables filtering.
func (s *Session) SetDistanceFilter(meters float64) {
	s.distFilter.SetThreshold(meters)
}

// DistanceFilter returns the currently configured threshold in meters.
func (s *Session) DistanceFilter() float64 {
	return s.distFilter.Threshold()
}

// SetAllowsBackground updates the background-allowed flag and
// reconfigures the adaptive scheduler.
func (s *Session) SetAllowsBackground(allowed bool) {
	s.mu.Lock()
	s.allowsBackground = allowed
	s.mu.Unlock()
	s.scheduler.SetAllowsBackground(allowed)
}

// AllowsBackground returns the currently configured flag.
func (s *Session) AllowsBackground() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allowsBackground
}

// SetPausesAutomatically gates the stationary detector.
func (s *Session) SetPausesAutomatically(enabled bool) {
	s.mu.Lock()
	s.pausesAutomatically = enabled
	s.mu.Unlock()
	s.stationary.SetAutoPause(enabled)
	s.scheduler.SetPaused(s.stationary.Paused())
}

// PausesAutomatically returns the currently configured flag.
func (s *Session) PausesAutomatically() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pausesAutomatically
}

// State returns the Session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// --- Lifecycle (spec.md §4.7) ---

// StartUpdatingLocation (re)arms the adaptive scheduler at its current
// interval and emits the first fix on the next tick. Idempotent:
// calling it repeatedly without an intervening Stop has no additional
// effect (testable property 7).
func (s *Session) StartUpdatingLocation() {
	s.mu.Lock()
	if s.state == Idle {
		s.state = Running
	}
	s.mu.Unlock()

	s.scheduler.Start(s.tick)
}

// StopUpdatingLocation cancels the timer, clears the last-reported fix
// and the stationary anchor, and returns the Session to Idle. Region
// states are preserved.
func (s *Session) StopUpdatingLocation() {
	s.scheduler.Stop()
	s.distFilter.Reset()
	s.stationary.Reset()

	s.mu.Lock()
	s.state = Idle
	s.mu.Unlock()
}

// Stop is an alias for StopUpdatingLocation, used by Close.
func (s *Session) Stop() { s.StopUpdatingLocation() }

// RequestLocation runs the fallback ladder exactly once, applies the
// distance filter, evaluates regions, and emits exactly one OnUpdate or
// one OnFail. It does not touch the scheduler or the Running/Idle
// state: per spec.md §4.7's state machine, "any state →(requestOnce)→
// unchanged" — an Idle session issuing one-shot requests stays Idle
// even if PausesAutomatically is set.
func (s *Session) RequestLocation(ctx context.Context) {
	tier := s.DesiredAccuracy()

	f, err := s.registry.RequestWithFallback(ctx, tier)
	if err != nil {
		if provider.IsCancelled(err) {
			return
		}
		s.emit(func() { s.delegate.OnFail(err) })
		return
	}

	s.processFix(f, false)
}

// tick is the Scheduler's onTick callback: it runs one fallback request
// and processes the result. Errors other than Cancelled are surfaced to
// the delegate; Cancelled is absorbed.
func (s *Session) tick(ctx context.Context) {
	tier := s.DesiredAccuracy()

	f, err := s.registry.RequestWithFallback(ctx, tier)
	if err != nil {
		if provider.IsCancelled(err) {
			return
		}
		s.emit(func() { s.delegate.OnFail(err) })
		return
	}

	s.processFix(f, true)
}

// processFix implements the per-fix data flow of §2 and the ordering
// guarantees of §5 / §4.6: the stationary detector and region monitor
// observe every fetched fix (so region transitions and auto-pause
// dwell tracking are never masked by the distance filter or by the
// paused cadence); the distance filter alone decides whether
// OnUpdate fires; region callbacks for a fix are always emitted before
// that fix's OnUpdate.
//
// drivenByTick distinguishes a scheduler-driven fix (tick) from a
// one-shot RequestLocation call: only a tick-driven fix may update the
// stationary anchor, the scheduler's paused cadence, or the
// Running/Paused state, since RequestLocation must leave the Session's
// state machine untouched (spec.md §4.7).
func (s *Session) processFix(f fix.Fix, drivenByTick bool) {
	if !f.Valid() {
		return
	}

	if drivenByTick {
		s.stationary.Observe(f)
		s.scheduler.SetPaused(s.stationary.Paused())

		s.mu.Lock()
		if s.pausesAutomatically {
			if s.stationary.Paused() {
				s.state = Paused
			} else if s.state == Paused {
				s.state = Running
			}
		}
		s.mu.Unlock()
	}

	transitions := s.regions.OnFixReported(f)
	for _, t := range transitions {
		t := t
		if t.Entry {
			s.emit(func() { s.delegate.OnEnterRegion(t.Region) })
		} else {
			s.emit(func() { s.delegate.OnExitRegion(t.Region) })
		}
	}

	if s.distFilter.Admit(f) {
		s.emit(func() { s.delegate.OnUpdate(f) })
	}
}

// --- Region monitoring passthrough (spec.md §4.7) ---

// StartMonitoring adds r to the region monitor. On success,
// OnStartMonitoring is emitted; on failure (e.g. a non-circular shape or
// other invariant violation), OnMonitoringFailed is emitted instead.
func (s *Session) StartMonitoring(r region.Region) {
	if err := s.regions.Add(r); err != nil {
		s.emit(func() { s.delegate.OnMonitoringFailed(&r, err) })
		return
	}
	s.emit(func() { s.delegate.OnStartMonitoring(r) })
}

// StopMonitoring removes the region by identifier.
func (s *Session) StopMonitoring(id string) {
	s.regions.Remove(id)
}

// RequestRegionState asynchronously emits OnDetermineState for the
// region's current state against the most recently reported fix (or
// Unknown if none has been reported yet).
func (s *Session) RequestRegionState(id string) {
	r, ok := s.regions.Get(id)
	if !ok {
		return
	}
	state, _ := s.regions.RequestState(id)
	s.emit(func() { s.delegate.OnDetermineState(state, r) })
}

// MonitoredRegions returns every region currently being monitored.
func (s *Session) MonitoredRegions() []region.Region {
	return s.regions.All()
}

// NotifyAuthorizationChanged forwards an externally-driven authorization
// change to the delegate. The core engine never calls this itself.
func (s *Session) NotifyAuthorizationChanged(status AuthStatus) {
	s.emit(func() { s.delegate.OnAuthorizationChanged(status) })
}
