package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
)

// fixBucket is the sole bbolt bucket PersistentCache uses: one
// provider ID per key, one encoded Fix per value.
const fixBucket = "fixes"

// persistedFix is the JSON wire shape stored in bbolt, grounded on the
// teacher's CachedCellLocation record (pkg/gps/enhanced_cell_cache.go):
// a plain JSON-tagged struct rather than gob, so the database file
// stays inspectable with any bbolt browser.
type persistedFix struct {
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           float64   `json:"altitude"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	VerticalAccuracy   float64   `json:"vertical_accuracy"`
	Course             float64   `json:"course"`
	CourseAccuracy     float64   `json:"course_accuracy"`
	Speed              float64   `json:"speed"`
	SpeedAccuracy      float64   `json:"speed_accuracy"`
	Timestamp          time.Time `json:"timestamp"`
	Source             string    `json:"source"`
}

// PersistentCache wraps a Cache with a bbolt-backed last-known-fix
// store, grounded on the teacher's enhanced cell cache
// (pkg/gps/enhanced_cell_cache.go): one bolt.DB file, one bucket,
// JSON-encoded records, opened once at construction. Where the teacher
// persisted cell-tower-keyed location samples across restarts for reuse
// by its LRU lookup, this persists exactly one entry per provider — the
// last fix actually served — so a freshly-restarted daemon has a
// last-known position to report immediately instead of blocking on the
// first live poll.
type PersistentCache struct {
	*Cache
	db  *bolt.DB
	key []byte
}

// NewPersistentCache wraps backend with a freshness Cache (as NewCache
// does) plus durable storage of the last-good fix at dbPath. On
// construction, if bbolt already holds a fix for this provider it is
// loaded into the in-memory Cache so it's immediately servable.
func NewPersistentCache(backend Provider, dbPath string) (*PersistentCache, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("persistentcache: create directory %s: %w", dir, err)
		}
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("persistentcache: open %s: %w", dbPath, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(fixBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("persistentcache: create bucket: %w", err)
	}

	pc := &PersistentCache{
		Cache: NewCache(backend),
		db:    db,
		key:   []byte(backend.ID()),
	}

	if last, ok, err := pc.load(); err != nil {
		db.Close()
		return nil, err
	} else if ok {
		pc.Cache.primeWith(last)
	}

	return pc, nil
}

// RequestLocation delegates to the wrapped Cache and, on a successful
// live fetch (a cache miss that actually reached the backend), persists
// the new fix to bbolt.
func (pc *PersistentCache) RequestLocation(ctx context.Context) (fix.Fix, error) {
	before := pc.Cache.BackendCalls()
	f, err := pc.Cache.RequestLocation(ctx)
	if err != nil {
		return fix.Fix{}, err
	}
	if pc.Cache.BackendCalls() > before {
		if perr := pc.persist(f); perr != nil {
			return f, nil // the fetched fix is still valid even if persistence failed
		}
	}
	return f, nil
}

// Close releases the underlying bbolt database handle.
func (pc *PersistentCache) Close() error { return pc.db.Close() }

func (pc *PersistentCache) persist(f fix.Fix) error {
	record := persistedFix{
		Latitude:           f.Coordinate.Latitude,
		Longitude:          f.Coordinate.Longitude,
		Altitude:           f.Altitude,
		HorizontalAccuracy: f.HorizontalAccuracy,
		VerticalAccuracy:   f.VerticalAccuracy,
		Course:             f.Course,
		CourseAccuracy:     f.CourseAccuracy,
		Speed:              f.Speed,
		SpeedAccuracy:      f.SpeedAccuracy,
		Timestamp:          f.Timestamp,
		Source:             f.Source,
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("persistentcache: marshal fix: %w", err)
	}

	return pc.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(fixBucket)).Put(pc.key, data)
	})
}

func (pc *PersistentCache) load() (fix.Fix, bool, error) {
	var record persistedFix
	found := false

	err := pc.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(fixBucket)).Get(pc.key)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return fix.Fix{}, false, fmt.Errorf("persistentcache: load %s: %w", string(pc.key), err)
	}
	if !found {
		return fix.Fix{}, false, nil
	}

	return fix.Fix{
		Coordinate: geo.Coordinate{
			Latitude:  record.Latitude,
			Longitude: record.Longitude,
		},
		Altitude:           record.Altitude,
		HorizontalAccuracy: record.HorizontalAccuracy,
		VerticalAccuracy:   record.VerticalAccuracy,
		Course:             record.Course,
		CourseAccuracy:     record.CourseAccuracy,
		Speed:              record.Speed,
		SpeedAccuracy:      record.SpeedAccuracy,
		Timestamp:          record.Timestamp,
		Source:             record.Source,
	}, true, nil
}
