package provider

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
)

type fakeProvider struct {
	id       string
	interval time.Duration
	calls    int64
	fail     bool
	fixFunc  func() fix.Fix
}

func (f *fakeProvider) ID() string                    { return f.id }
func (f *fakeProvider) PollingInterval() time.Duration { return f.interval }

func (f *fakeProvider) RequestLocation(ctx context.Context) (fix.Fix, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.fail {
		return fix.Fix{}, Errorf(ProviderUnavailable, "fake failure")
	}
	if f.fixFunc != nil {
		return f.fixFunc(), nil
	}
	return fix.Fix{Coordinate: geo.Coordinate{Latitude: 1, Longitude: 1}, Source: f.id}, nil
}

func TestCacheFreshReadAvoidsBackendCall(t *testing.T) {
	backend := &fakeProvider{id: "p", interval: time.Minute}
	c := NewCache(backend)

	clock := time.Now()
	c.nowFunc = func() time.Time { return clock }

	for i := 0; i < 5; i++ {
		if _, err := c.RequestLocation(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if backend.calls != 1 {
		t.Fatalf("backend called %d times, want 1", backend.calls)
	}
}

func TestCacheExpiresAfterPollingInterval(t *testing.T) {
	backend := &fakeProvider{id: "p", interval: time.Minute}
	c := NewCache(backend)

	clock := time.Now()
	c.nowFunc = func() time.Time { return clock }

	if _, err := c.RequestLocation(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := c.RequestLocation(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if backend.calls != 2 {
		t.Fatalf("backend called %d times, want 2", backend.calls)
	}
}

func TestCacheStaleOnError(t *testing.T) {
	backend := &fakeProvider{id: "p", interval: time.Second}
	c := NewCache(backend)

	clock := time.Now()
	c.nowFunc = func() time.Time { return clock }

	good, err := c.RequestLocation(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Expire the freshness window but stay inside the 30s stale-on-error
	// window, and make the backend start failing.
	clock = clock.Add(5 * time.Second)
	backend.fail = true

	got, err := c.RequestLocation(context.Background())
	if err != nil {
		t.Fatalf("expected stale fix to be served, got error: %v", err)
	}
	if got.Coordinate != good.Coordinate {
		t.Fatalf("expected stale fix to match previous fix")
	}
}

func TestCachePropagatesErrorBeyondStaleWindow(t *testing.T) {
	backend := &fakeProvider{id: "p", interval: time.Second}
	c := NewCache(backend)

	clock := time.Now()
	c.nowFunc = func() time.Time { return clock }

	if _, err := c.RequestLocation(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	clock = clock.Add(60 * time.Second)
	backend.fail = true

	_, err := c.RequestLocation(context.Background())
	if err == nil {
		t.Fatalf("expected error once stale-on-error window elapsed")
	}
}

func TestCacheRecordsHitsAndMisses(t *testing.T) {
	backend := &fakeProvider{id: "p", interval: time.Minute}
	c := NewCache(backend)

	clock := time.Now()
	c.nowFunc = func() time.Time { return clock }

	var hits, misses int
	c.SetCacheRecorder(func() { hits++ }, func() { misses++ })

	if _, err := c.RequestLocation(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if misses != 1 || hits != 0 {
		t.Fatalf("after first call: hits=%d misses=%d, want hits=0 misses=1", hits, misses)
	}

	if _, err := c.RequestLocation(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if misses != 1 || hits != 1 {
		t.Fatalf("after second (fresh) call: hits=%d misses=%d, want hits=1 misses=1", hits, misses)
	}

	clock = clock.Add(2 * time.Minute)
	if _, err := c.RequestLocation(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if misses != 2 || hits != 1 {
		t.Fatalf("after expiry call: hits=%d misses=%d, want hits=1 misses=2", hits, misses)
	}
}

func TestCacheFreshnessBound(t *testing.T) {
	// Testable property 3: over an interval T, the number of backend
	// calls is at most ceil(T/pollingInterval) + 1.
	backend := &fakeProvider{id: "p", interval: 10 * time.Second}
	c := NewCache(backend)

	clock := time.Now()
	c.nowFunc = func() time.Time { return clock }

	const totalDuration = 95 * time.Second
	const step = time.Second

	for elapsed := time.Duration(0); elapsed <= totalDuration; elapsed += step {
		clock = clock.Add(step)
		if _, err := c.RequestLocation(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	maxCalls := int64(totalDuration/backend.interval) + 2 // ceil + 1, with slack for boundary stepping
	if backend.calls > maxCalls {
		t.Fatalf("backend called %d times, want at most %d", backend.calls, maxCalls)
	}
}
