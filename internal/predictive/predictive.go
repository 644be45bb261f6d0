// Package predictive derives an advisory dwell/next-fix estimate from
// recent fix trend, grounded on the teacher's
// pkg/decision/cellular_predictive.go: a small analyzer that keeps a
// rolling window of recent samples, fits a trend, and turns that trend
// into a labeled recommendation. There it forecast cellular RSRP drift
// toward a failover decision; here it forecasts how long the current
// fix is likely to remain useful toward a next-poll-interval hint.
//
// The estimate is advisory only. Nothing in this package ever changes
// scheduler behavior directly — the adaptive scheduler's fixed
// thresholds remain the sole authority over polling cadence, and the
// predictor's output is only ever logged alongside them.
package predictive

import (
	"time"

	"github.com/sajari/regression"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
	"github.com/corelocation/engine/internal/logx"
)

// WindowSize is the number of most recent fixes the estimator regresses
// over. Matches the teacher's StabilityWindowSeconds-driven sample count
// in spirit: enough points for a trend, not so many that a long-past
// displacement still pulls on today's estimate.
const WindowSize = 10

// MinSamples is the fewest observations the estimator needs before it
// will produce anything but Insufficient.
const MinSamples = 4

// Trend classifies the direction of recent inter-fix displacement.
type Trend string

const (
	TrendInsufficient Trend = "insufficient_data"
	TrendSettling     Trend = "settling"     // displacement shrinking — likely approaching dwell
	TrendStable       Trend = "stable"       // displacement roughly flat
	TrendAccelerating Trend = "accelerating" // displacement growing — unlikely to dwell soon
)

// Estimate is the analyzer's advisory output for the current fix
// stream.
type Estimate struct {
	Trend            Trend
	EstimatedDwellIn time.Duration // advisory only; 0 if Trend == TrendInsufficient
	NextPollHint     time.Duration // advisory only; 0 if Trend == TrendInsufficient
	Reasoning        string
}

type sample struct {
	at           time.Time
	displacement float64 // meters, from the previous sample
}

// Analyzer keeps a rolling window of recent fixes and regresses their
// displacement trend to produce an Estimate.
type Analyzer struct {
	logger *logx.Logger

	window   []sample
	lastFix  *fix.Fix
}

// New creates an Analyzer.
func New(logger *logx.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

// Observe feeds f into the rolling window. Call this once per fetched
// fix, in the same order the engine reports them.
func (a *Analyzer) Observe(f fix.Fix) {
	if a.lastFix != nil {
		d := geo.Haversine(a.lastFix.Coordinate, f.Coordinate)
		a.window = append(a.window, sample{at: f.Timestamp, displacement: d})
		if len(a.window) > WindowSize {
			a.window = a.window[len(a.window)-WindowSize:]
		}
	}
	cp := f
	a.lastFix = &cp
}

// Reset clears the rolling window, e.g. when the session restarts.
func (a *Analyzer) Reset() {
	a.window = nil
	a.lastFix = nil
}

// Estimate fits a linear regression of displacement against elapsed
// time over the current window and returns an advisory trend and
// interval hint. It never mutates scheduler or session state.
func (a *Analyzer) Estimate() Estimate {
	if len(a.window) < MinSamples {
		return Estimate{Trend: TrendInsufficient, Reasoning: "not enough samples yet"}
	}

	r := new(regression.Regression)
	r.SetObserved("displacement_m")
	r.SetVar(0, "elapsed_s")

	t0 := a.window[0].at
	for _, s := range a.window {
		elapsed := s.at.Sub(t0).Seconds()
		r.Train(regression.DataPoint(s.displacement, []float64{elapsed}))
	}
	if err := r.Run(); err != nil {
		a.logger.Debug("predictive: regression run failed", "error", err)
		return Estimate{Trend: TrendInsufficient, Reasoning: "regression did not converge"}
	}

	slope := r.Coeff(1)
	switch {
	case slope < -0.05:
		return Estimate{
			Trend:            TrendSettling,
			EstimatedDwellIn: settlingETA(slope, a.window),
			NextPollHint:     2 * time.Minute,
			Reasoning:        "displacement trend decreasing, device may be settling",
		}
	case slope > 0.05:
		return Estimate{
			Trend:        TrendAccelerating,
			NextPollHint: 5 * time.Second,
			Reasoning:    "displacement trend increasing, device likely still moving",
		}
	default:
		return Estimate{
			Trend:        TrendStable,
			NextPollHint: 30 * time.Second,
			Reasoning:    "displacement trend flat",
		}
	}
}

// settlingETA extrapolates, from the fitted negative slope, how long
// until displacement would reach zero — a rough "time to dwell" hint.
// It is clamped to a sane advisory range; callers must treat it as a
// hint, never a deadline.
func settlingETA(slope float64, window []sample) time.Duration {
	if slope >= 0 {
		return 0
	}
	last := window[len(window)-1]
	if last.displacement <= 0 {
		return 0
	}
	seconds := -last.displacement / slope
	eta := time.Duration(seconds) * time.Second
	if eta < 0 {
		return 0
	}
	if eta > 10*time.Minute {
		return 10 * time.Minute
	}
	return eta
}
