// Package audit persists a tamper-evident history of fixes and region
// events to SQLite, grounded on the teacher's
// pkg/gps/local_cell_database.go: a database/sql handle over
// mattn/go-sqlite3, one CREATE TABLE IF NOT EXISTS at construction, and
// plain parameterized INSERT/SELECT statements. Each row additionally
// carries a blake2b-256 hash of its own content chained to the previous
// row's hash, so a row cannot be edited or deleted without breaking the
// chain — a property the teacher's table doesn't need (it is a cache,
// not a ledger) but this audit trail does.
package audit

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/blake2b"

	"github.com/corelocation/engine/internal/fix"
	"github.com/corelocation/engine/internal/geo"
	"github.com/corelocation/engine/internal/logx"
)

// Store is a SQLite-backed, hash-chained history of every admitted fix
// and region transition.
type Store struct {
	db     *sql.DB
	logger *logx.Logger

	mu       sync.Mutex
	lastHash []byte
	// nextSeq is a single monotonic counter shared by fix_events and
	// region_events: both tables chain into the same s.lastHash
	// sequence (RecordFix and RecordRegionEvent can interleave), but
	// each table's own AUTOINCREMENT id only orders rows within that
	// table. seq records the true cross-table insertion order so
	// VerifyChain can replay the chain in the order it was actually
	// built rather than assuming fix_events alone is the whole ledger.
	nextSeq int64
}

// Open creates (if needed) the database directory and schema at path
// and returns a ready Store.
func Open(path string, logger *logx.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadChainState(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS fix_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		horizontal_accuracy REAL NOT NULL,
		source TEXT NOT NULL,
		row_hash TEXT NOT NULL,
		prev_hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fix_events_timestamp ON fix_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_fix_events_seq ON fix_events(seq);

	CREATE TABLE IF NOT EXISTS region_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		region_id TEXT NOT NULL,
		entry BOOLEAN NOT NULL,
		row_hash TEXT NOT NULL,
		prev_hash TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_region_events_timestamp ON region_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_region_events_seq ON region_events(seq);
	`
	_, err := s.db.Exec(schema)
	return err
}

// loadChainState seeds the hash chain and the cross-table sequence
// counter from whichever row (in either table) was inserted last, so a
// reopened Store continues its predecessor's chain and seq numbering
// rather than silently restarting them.
func (s *Store) loadChainState() error {
	var fixHash sql.NullString
	var fixSeq sql.NullInt64

	row := s.db.QueryRow(`SELECT row_hash, seq FROM fix_events ORDER BY seq DESC LIMIT 1`)
	_ = row.Scan(&fixHash, &fixSeq)

	var regionHash sql.NullString
	var regionSeq sql.NullInt64

	row = s.db.QueryRow(`SELECT row_hash, seq FROM region_events ORDER BY seq DESC LIMIT 1`)
	_ = row.Scan(&regionHash, &regionSeq)

	switch {
	case fixSeq.Valid && regionSeq.Valid:
		if regionSeq.Int64 > fixSeq.Int64 {
			s.lastHash = mustDecodeHex(regionHash.String)
			s.nextSeq = regionSeq.Int64 + 1
		} else {
			s.lastHash = mustDecodeHex(fixHash.String)
			s.nextSeq = fixSeq.Int64 + 1
		}
	case fixSeq.Valid:
		s.lastHash = mustDecodeHex(fixHash.String)
		s.nextSeq = fixSeq.Int64 + 1
	case regionSeq.Valid:
		s.lastHash = mustDecodeHex(regionHash.String)
		s.nextSeq = regionSeq.Int64 + 1
	default:
		s.lastHash = make([]byte, blake2b.Size256)
		s.nextSeq = 0
	}
	return nil
}

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return make([]byte, blake2b.Size256)
	}
	return b
}

func (s *Store) chainHash(content string) []byte {
	h := blake2b.Sum256(append(s.lastHash, []byte(content)...))
	return h[:]
}

// RecordFix appends f to the fix history.
func (s *Store) RecordFix(f fix.Fix) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content := fmt.Sprintf("%s|%v|%v|%v|%s", f.Timestamp.UTC().Format(time.RFC3339Nano),
		f.Coordinate.Latitude, f.Coordinate.Longitude, f.HorizontalAccuracy, f.Source)
	prevHash := hex.EncodeToString(s.lastHash)
	rowHash := s.chainHash(content)
	seq := s.nextSeq

	_, err := s.db.Exec(
		`INSERT INTO fix_events (seq, timestamp, latitude, longitude, horizontal_accuracy, source, row_hash, prev_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		seq, f.Timestamp, f.Coordinate.Latitude, f.Coordinate.Longitude, f.HorizontalAccuracy, f.Source,
		hex.EncodeToString(rowHash), prevHash,
	)
	if err != nil {
		return fmt.Errorf("audit: record fix: %w", err)
	}
	s.lastHash = rowHash
	s.nextSeq++
	return nil
}

// RecordRegionEvent appends a region entry/exit event to the history.
func (s *Store) RecordRegionEvent(regionID string, entry bool, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content := fmt.Sprintf("%s|%s|%v", at.UTC().Format(time.RFC3339Nano), regionID, entry)
	prevHash := hex.EncodeToString(s.lastHash)
	rowHash := s.chainHash(content)
	seq := s.nextSeq

	_, err := s.db.Exec(
		`INSERT INTO region_events (seq, timestamp, region_id, entry, row_hash, prev_hash) VALUES (?, ?, ?, ?, ?, ?)`,
		seq, at, regionID, entry, hex.EncodeToString(rowHash), prevHash,
	)
	if err != nil {
		return fmt.Errorf("audit: record region event: %w", err)
	}
	s.lastHash = rowHash
	s.nextSeq++
	return nil
}

// FixRow is one row of fix history as returned by RecentFixes.
type FixRow struct {
	Timestamp time.Time
	Fix       fix.Fix
	RowHash   string
	PrevHash  string
}

// RecentFixes returns up to limit most-recently-recorded fixes, newest
// first.
func (s *Store) RecentFixes(limit int) ([]FixRow, error) {
	rows, err := s.db.Query(
		`SELECT timestamp, latitude, longitude, horizontal_accuracy, source, row_hash, prev_hash
		 FROM fix_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query recent fixes: %w", err)
	}
	defer rows.Close()

	var out []FixRow
	for rows.Next() {
		var r FixRow
		var lat, lon, acc float64
		var source string
		if err := rows.Scan(&r.Timestamp, &lat, &lon, &acc, &source, &r.RowHash, &r.PrevHash); err != nil {
			return nil, fmt.Errorf("audit: scan fix row: %w", err)
		}
		r.Fix = fix.Fix{
			Coordinate:         geo.Coordinate{Latitude: lat, Longitude: lon},
			HorizontalAccuracy: acc,
			Timestamp:          r.Timestamp,
			Source:             source,
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// chainRow is one row from either fix_events or region_events, carrying
// enough information to recompute its content hash and its position in
// the cross-table insertion order.
type chainRow struct {
	seq      int64
	content  string
	rowHash  string
	prevHash string
}

// VerifyChain walks every fix_events and region_events row together, in
// the cross-table order they were actually inserted (tracked by seq,
// not either table's own id), and reports whether the recorded hash
// chain is intact, i.e. no row has been edited, inserted, or deleted
// out of band. Verifying fix_events alone would false-positive on any
// untampered database that has region events interleaved between fix
// events, since those rows chain into the same sequence.
func (s *Store) VerifyChain() (bool, error) {
	fixRows, err := s.db.Query(
		`SELECT seq, timestamp, latitude, longitude, horizontal_accuracy, source, row_hash, prev_hash
		 FROM fix_events`)
	if err != nil {
		return false, fmt.Errorf("audit: query fix chain: %w", err)
	}
	defer fixRows.Close()

	var chain []chainRow
	for fixRows.Next() {
		var seq int64
		var ts time.Time
		var lat, lon, acc float64
		var source, rowHash, prevHash string
		if err := fixRows.Scan(&seq, &ts, &lat, &lon, &acc, &source, &rowHash, &prevHash); err != nil {
			return false, fmt.Errorf("audit: scan fix chain row: %w", err)
		}
		content := fmt.Sprintf("%s|%v|%v|%v|%s", ts.UTC().Format(time.RFC3339Nano), lat, lon, acc, source)
		chain = append(chain, chainRow{seq: seq, content: content, rowHash: rowHash, prevHash: prevHash})
	}
	if err := fixRows.Err(); err != nil {
		return false, fmt.Errorf("audit: query fix chain: %w", err)
	}

	regionRows, err := s.db.Query(
		`SELECT seq, timestamp, region_id, entry, row_hash, prev_hash FROM region_events`)
	if err != nil {
		return false, fmt.Errorf("audit: query region chain: %w", err)
	}
	defer regionRows.Close()

	for regionRows.Next() {
		var seq int64
		var ts time.Time
		var regionID string
		var entry bool
		var rowHash, prevHash string
		if err := regionRows.Scan(&seq, &ts, &regionID, &entry, &rowHash, &prevHash); err != nil {
			return false, fmt.Errorf("audit: scan region chain row: %w", err)
		}
		content := fmt.Sprintf("%s|%s|%v", ts.UTC().Format(time.RFC3339Nano), regionID, entry)
		chain = append(chain, chainRow{seq: seq, content: content, rowHash: rowHash, prevHash: prevHash})
	}
	if err := regionRows.Err(); err != nil {
		return false, fmt.Errorf("audit: query region chain: %w", err)
	}

	sort.Slice(chain, func(i, j int) bool { return chain[i].seq < chain[j].seq })

	running := make([]byte, blake2b.Size256)
	for _, row := range chain {
		if row.prevHash != hex.EncodeToString(running) {
			return false, nil
		}
		expect := blake2b.Sum256(append(running, []byte(row.content)...))
		if row.rowHash != hex.EncodeToString(expect[:]) {
			return false, nil
		}
		running = expect[:]
	}
	return true, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
