package fix

import (
	"testing"

	"github.com/corelocation/engine/internal/geo"
)

func TestTierForAccuracy(t *testing.T) {
	cases := []struct {
		meters float64
		want   AccuracyTier
	}{
		{0.1, ThreeKilometers},
		{0.5, Navigation},
		{3, Navigation},
		{10, TenMeters},
		{50, TenMeters},
		{100, HundredMeters},
		{999, HundredMeters},
		{1000, Kilometer},
		{5000, ThreeKilometers},
		{-1, ThreeKilometers},
	}
	for _, tc := range cases {
		if got := TierForAccuracy(tc.meters); got != tc.want {
			t.Errorf("TierForAccuracy(%v) = %v, want %v", tc.meters, got, tc.want)
		}
	}
}

func TestLadderWalksCoarserThenFiner(t *testing.T) {
	l := Ladder(HundredMeters)
	want := []AccuracyTier{HundredMeters, Kilometer, ThreeKilometers, TenMeters, Best, Navigation}
	if len(l) != len(want) {
		t.Fatalf("ladder length = %d, want %d", len(l), len(want))
	}
	for i, tier := range want {
		if l[i] != tier {
			t.Fatalf("ladder[%d] = %v, want %v", i, l[i], tier)
		}
	}
}

func TestFixValid(t *testing.T) {
	f := Fix{Coordinate: geo.Coordinate{Latitude: 10, Longitude: 10}}
	if !f.Valid() {
		t.Fatalf("expected valid fix")
	}
	f.Coordinate.Latitude = 200
	if f.Valid() {
		t.Fatalf("expected invalid fix")
	}
}
