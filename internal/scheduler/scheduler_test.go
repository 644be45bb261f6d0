package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSelectMode(t *testing.T) {
	cases := []struct {
		bg, paused bool
		want       Mode
	}{
		{false, false, Foreground},
		{true, false, Background},
		{false, true, Stationary},
		{true, true, Stationary},
	}
	for _, tc := range cases {
		if got := SelectMode(tc.bg, tc.paused); got != tc.want {
			t.Errorf("SelectMode(%v, %v) = %v, want %v", tc.bg, tc.paused, got, tc.want)
		}
	}
}

func TestIdempotentStart(t *testing.T) {
	s := New(false)
	var ticks int64

	done := make(chan struct{}, 1)
	s.Start(func(ctx context.Context) {
		if atomic.AddInt64(&ticks, 1) == 1 {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	})
	s.Start(nil) // idempotent: second call is a no-op
	s.Start(nil)

	<-done
	s.Stop()

	if s.CurrentInterval() != ForegroundInterval {
		t.Fatalf("interval = %v, want %v", s.CurrentInterval(), ForegroundInterval)
	}
}

func TestSetPausedSwitchesToStationaryInterval(t *testing.T) {
	s := New(false)
	s.Start(func(ctx context.Context) {})
	defer s.Stop()

	s.SetPaused(true)
	if s.CurrentMode() != Stationary {
		t.Fatalf("mode = %v, want Stationary", s.CurrentMode())
	}
	if s.CurrentInterval() != StationaryInterval {
		t.Fatalf("interval = %v, want %v", s.CurrentInterval(), StationaryInterval)
	}

	s.SetPaused(false)
	if s.CurrentMode() != Foreground {
		t.Fatalf("mode = %v, want Foreground", s.CurrentMode())
	}
}

func TestSetAllowsBackgroundSwitchesInterval(t *testing.T) {
	s := New(false)
	if s.CurrentMode() != Foreground {
		t.Fatalf("initial mode = %v, want Foreground", s.CurrentMode())
	}

	s.SetAllowsBackground(true)
	if s.CurrentMode() != Background {
		t.Fatalf("mode = %v, want Background", s.CurrentMode())
	}
}

func TestStopCancelsPendingTick(t *testing.T) {
	s := New(false)
	var ticks int64
	s.Start(func(ctx context.Context) {
		atomic.AddInt64(&ticks, 1)
	})

	time.Sleep(10 * time.Millisecond)
	s.Stop()
	afterStop := atomic.LoadInt64(&ticks)

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt64(&ticks) != afterStop {
		t.Fatalf("ticks continued after Stop: %d -> %d", afterStop, atomic.LoadInt64(&ticks))
	}
}
