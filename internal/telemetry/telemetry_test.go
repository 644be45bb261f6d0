package telemetry

import (
	"testing"
	"time"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
	"github.com/corelocation/engine/internal/logx"
	"github.com/corelocation/engine/internal/region"
)

func TestDisabledPublisherIsNoop(t *testing.T) {
	p := New(logx.Noop(), Config{Enabled: false})

	if err := p.Connect(); err != nil {
		t.Fatalf("Connect on disabled publisher: %v", err)
	}

	f := fix.Fix{Coordinate: geo.Coordinate{Latitude: 1, Longitude: 1}, Timestamp: time.Now()}
	if err := p.PublishFix(f); err != nil {
		t.Fatalf("PublishFix on disabled publisher: %v", err)
	}

	tr := region.Transition{Region: region.Region{ID: "home"}, Entry: true}
	if err := p.PublishRegionEvent(tr); err != nil {
		t.Fatalf("PublishRegionEvent on disabled publisher: %v", err)
	}

	p.Disconnect() // must not panic absent a connection
}

func TestEnabledPublisherWithoutConnectionIsNoop(t *testing.T) {
	// Enabled but never Connect()-ed (e.g. broker unreachable at
	// startup): publishing must not block or error, it simply drops the
	// event, matching the teacher's "not connected" early return.
	p := New(logx.Noop(), Config{Enabled: true, Topic: "corelocation/fix"})

	f := fix.Fix{Coordinate: geo.Coordinate{Latitude: 1, Longitude: 1}, Timestamp: time.Now()}
	if err := p.PublishFix(f); err != nil {
		t.Fatalf("PublishFix before Connect: %v", err)
	}
}
