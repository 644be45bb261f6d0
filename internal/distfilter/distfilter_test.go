package distfilter

import (
	"testing"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
)

func coord(lat, lon float64) geo.Coordinate {
	return geo.Coordinate{Latitude: lat, Longitude: lon}
}

func TestS4DistanceFilterGates(t *testing.T) {
	f := New(1000)

	fixes := []fix.Fix{
		{Coordinate: coord(37.7749, -122.4194)},
		{Coordinate: coord(37.7751, -122.4194)},
		{Coordinate: coord(37.7900, -122.4194)},
	}

	var admitted []int
	for i, candidate := range fixes {
		if f.Admit(candidate) {
			admitted = append(admitted, i)
		}
	}

	if len(admitted) != 2 || admitted[0] != 0 || admitted[1] != 2 {
		t.Fatalf("admitted indices = %v, want [0 2]", admitted)
	}
}

func TestFirstFixAlwaysAdmitted(t *testing.T) {
	f := New(1000)
	if !f.Admit(fix.Fix{Coordinate: coord(0, 0)}) {
		t.Fatalf("expected first fix to be admitted")
	}
}

func TestDisabledFilterAdmitsEverything(t *testing.T) {
	f := New(Disabled)
	for i := 0; i < 5; i++ {
		if !f.Admit(fix.Fix{Coordinate: coord(float64(i), 0)}) {
			t.Fatalf("expected fix %d to be admitted with filter disabled", i)
		}
	}
}

func TestResetClearsLastReported(t *testing.T) {
	f := New(1000)
	f.Admit(fix.Fix{Coordinate: coord(0, 0)})
	f.Reset()

	if !f.Admit(fix.Fix{Coordinate: coord(0, 0.0001)}) {
		t.Fatalf("expected admit after reset to pass unconditionally")
	}
}

func TestDistanceFilterSoundness(t *testing.T) {
	f := New(500)
	candidates := []fix.Fix{
		{Coordinate: coord(0, 0)},
		{Coordinate: coord(0, 0.001)},
		{Coordinate: coord(0, 0.003)},
		{Coordinate: coord(0, 0.01)},
		{Coordinate: coord(0, 0.0105)},
	}

	var emitted []fix.Fix
	for _, c := range candidates {
		if f.Admit(c) {
			emitted = append(emitted, c)
		}
	}

	if len(emitted) == 0 || emitted[0] != candidates[0] {
		t.Fatalf("first fix must always be emitted")
	}
	for i := 1; i < len(emitted); i++ {
		d := geo.Haversine(emitted[i-1].Coordinate, emitted[i].Coordinate)
		if d < 500 {
			t.Fatalf("consecutive emitted fixes %v m apart, want >= 500", d)
		}
	}
}
