package provider

import (
	"context"
	"sync"
	"time"

	"github.com/corelocation/engine/internal/fix"
)

// staleOnErrorWindow is the extra window (beyond normal freshness) for
// which a cache entry may still be served if a live fetch fails.
const staleOnErrorWindow = 30 * time.Second

// Cache wraps a Provider with per-provider memoization. Exactly one
// last-good Fix and its fetch timestamp are retained. Cache is safe for
// concurrent use: any number of fresh-reads proceed concurrently, and a
// single in-flight fetch holds an exclusive write lease for the duration
// of the backend call (reader-preferring exclusion, per §5).
type Cache struct {
	backend Provider

	mu        sync.RWMutex
	lastFix   fix.Fix
	hasFix    bool
	fetchedAt time.Time

	// nowFunc is injectable for deterministic tests.
	nowFunc func() time.Time

	backendCalls int64

	// onHit and onMiss, if set, are called once per RequestLocation
	// call: onHit when a fresh cached fix is served without touching
	// the backend, onMiss when the backend had to be invoked.
	onHit  func()
	onMiss func()
}

// NewCache wraps backend with a freshness cache keyed to its declared
// polling interval.
func NewCache(backend Provider) *Cache {
	return &Cache{backend: backend, nowFunc: time.Now}
}

// primeWith seeds the cache with a fix obtained from outside the
// wrapped backend (e.g. restored from disk by PersistentCache), keyed
// to the fix's own timestamp rather than "now" so normal freshness
// rules still apply to a fix that may already be old.
func (c *Cache) primeWith(f fix.Fix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFix = f
	c.hasFix = true
	c.fetchedAt = f.Timestamp
}

// SetCacheRecorder installs onHit/onMiss callbacks for cache hit/miss
// observability. Either may be nil.
func (c *Cache) SetCacheRecorder(onHit, onMiss func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHit = onHit
	c.onMiss = onMiss
}

// ID forwards to the wrapped backend.
func (c *Cache) ID() string { return c.backend.ID() }

// PollingInterval forwards to the wrapped backend.
func (c *Cache) PollingInterval() time.Duration { return c.backend.PollingInterval() }

// BackendCalls returns the number of times the wrapped backend was
// actually invoked (fresh-reads served from cache are not counted) —
// exposed for the cache-freshness testable property.
func (c *Cache) BackendCalls() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backendCalls
}

// RequestLocation implements the §4.2 cache contract: a fresh read is
// served without calling the backend; otherwise the backend is invoked,
// and on failure a cache entry less than staleOnErrorWindow old is
// served instead of propagating the error.
func (c *Cache) RequestLocation(ctx context.Context) (fix.Fix, error) {
	now := c.nowFunc()

	if cached, ok := c.freshRead(now); ok {
		c.recordHit()
		return cached, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check freshness under the write lock: a concurrent fetch may
	// have already refreshed the entry while we waited for the lock.
	if c.hasFix && now.Sub(c.fetchedAt) < c.backend.PollingInterval() {
		c.recordHitLocked()
		return c.lastFix, nil
	}

	c.recordMissLocked()
	c.backendCalls++
	f, err := c.backend.RequestLocation(ctx)
	if err != nil {
		if c.hasFix && now.Sub(c.fetchedAt) < staleOnErrorWindow {
			return c.lastFix, nil
		}
		return fix.Fix{}, err
	}

	c.lastFix = f
	c.hasFix = true
	c.fetchedAt = now
	return f, nil
}

// recordHit calls onHit without assuming any lock is held.
func (c *Cache) recordHit() {
	c.mu.RLock()
	onHit := c.onHit
	c.mu.RUnlock()
	if onHit != nil {
		onHit()
	}
}

// recordHitLocked calls onHit; caller must hold c.mu.
func (c *Cache) recordHitLocked() {
	if c.onHit != nil {
		c.onHit()
	}
}

// recordMissLocked calls onMiss; caller must hold c.mu.
func (c *Cache) recordMissLocked() {
	if c.onMiss != nil {
		c.onMiss()
	}
}

// freshRead attempts a read-lock-only fresh hit, the common, contention-
// free path.
func (c *Cache) freshRead(now time.Time) (fix.Fix, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.hasFix && now.Sub(c.fetchedAt) < c.backend.PollingInterval() {
		return c.lastFix, true
	}
	return fix.Fix{}, false
}
