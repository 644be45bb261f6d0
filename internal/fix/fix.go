// Package fix defines the engine's immutable location sample type and
// the accuracy-tier enumeration used to index the provider registry.
package fix

import (
	"time"

	"github.com/corelocation/engine/internal/geo"
)

// Unknown is the sentinel for accuracy/motion fields that a provider did
// not or could not report.
const Unknown = -1.0

// Fix is an immutable geospatial sample. Once constructed it must never
// be mutated; callers that need a modified copy take it by value and
// change the copy.
type Fix struct {
	Coordinate          geo.Coordinate
	Altitude            float64 // meters
	HorizontalAccuracy  float64 // meters, >= 0
	VerticalAccuracy    float64 // meters, >= 0, or Unknown
	Course              float64 // degrees, [0, 360), or Unknown
	CourseAccuracy      float64 // degrees, >= 0, or Unknown
	Speed               float64 // m/s, >= 0, or Unknown
	SpeedAccuracy       float64 // m/s, >= 0, or Unknown
	Timestamp           time.Time
	Source              string // identifier of the emitting provider
}

// Valid reports whether the Fix carries a reportable coordinate.
func (f Fix) Valid() bool {
	return f.Coordinate.Valid()
}

// WithSource returns a copy of f tagged with the given provider identifier.
func (f Fix) WithSource(source string) Fix {
	f.Source = source
	return f
}

// AccuracyTier is a discrete, ordered category of expected horizontal
// accuracy, most accurate first. The ladder is fixed: implementations
// must not introduce additional tiers.
type AccuracyTier int

const (
	Navigation AccuracyTier = iota // target <= 0.5 m
	Best                           // target <= 5 m
	TenMeters
	HundredMeters
	Kilometer
	ThreeKilometers

	tierCount
)

// AllTiers lists every tier from most to least accurate.
var AllTiers = []AccuracyTier{Navigation, Best, TenMeters, HundredMeters, Kilometer, ThreeKilometers}

func (t AccuracyTier) String() string {
	switch t {
	case Navigation:
		return "Navigation"
	case Best:
		return "Best"
	case TenMeters:
		return "TenMeters"
	case HundredMeters:
		return "HundredMeters"
	case Kilometer:
		return "Kilometer"
	case ThreeKilometers:
		return "ThreeKilometers"
	default:
		return "Unknown"
	}
}

// tierTargets holds the nominal target accuracy, in meters, for each tier.
var tierTargets = map[AccuracyTier]float64{
	Navigation:      0.5,
	Best:            5,
	TenMeters:       10,
	HundredMeters:   100,
	Kilometer:       1000,
	ThreeKilometers: 3000,
}

// TierForAccuracy maps a numeric horizontal-accuracy value (meters) to
// the nearest tier whose target is <= the requested value, defaulting to
// the coarsest tier (ThreeKilometers) when no tier matches — i.e. for a
// negative value or one finer than Navigation's 0.5 m target.
func TierForAccuracy(meters float64) AccuracyTier {
	if meters < 0 {
		return ThreeKilometers
	}
	best := ThreeKilometers
	for _, t := range AllTiers {
		if tierTargets[t] <= meters {
			best = t
		}
	}
	return best
}

// Ladder returns the fallback order for a requested tier: the requested
// tier first, then walking toward coarser tiers, and only as a last
// resort toward finer ones.
func Ladder(requested AccuracyTier) []AccuracyTier {
	order := make([]AccuracyTier, 0, len(AllTiers))
	order = append(order, requested)
	for t := requested + 1; t < tierCount; t++ {
		order = append(order, t)
	}
	for t := requested - 1; t >= Navigation; t-- {
		order = append(order, t)
	}
	return order
}
