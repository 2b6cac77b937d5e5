// Package cache stores the most recent insights per connection in SQLite so
// repeated runs within the TTL skip the database round-trips.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jacobarthurs/pginsights/internal/insight"
)

const DefaultTTL = 24 * time.Hour

// Entry is one cached run.
type Entry struct {
	Connection string            `json:"connection"`
	Insights   []insight.Insight `json:"insights"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// Store is a SQLite-backed insight cache. One row is kept per connection and
// overwritten on every Set.
type Store struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

type Option func(*Store)

// WithTTL sets how long entries stay fresh. A non-positive TTL disables hits.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open opens or creates the cache database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return newStore(db, opts)
}

// OpenInMemory opens a private cache that lives as long as the Store.
func OpenInMemory(opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	return newStore(db, opts)
}

func newStore(db *sql.DB, opts []Option) (*Store, error) {
	// Every connection to ":memory:" is a separate database.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS insight_cache (
			connection TEXT PRIMARY KEY,
			insights TEXT NOT NULL,
			checked_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("migrating cache: %w", err)
	}
	return nil
}

// Get returns the entry for connection when one exists and is younger than
// the TTL.
func (s *Store) Get(ctx context.Context, connection string) (Entry, bool, error) {
	var raw, checkedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT insights, checked_at FROM insight_cache WHERE connection = ?", connection,
	).Scan(&raw, &checkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading cache entry %q: %w", connection, err)
	}

	at, err := time.Parse(time.RFC3339Nano, checkedAt)
	if err != nil {
		return Entry{}, false, fmt.Errorf("parsing cache timestamp %q: %w", checkedAt, err)
	}
	if s.ttl <= 0 || s.now().Sub(at) >= s.ttl {
		return Entry{}, false, nil
	}

	entry := Entry{Connection: connection, CheckedAt: at}
	if err := json.Unmarshal([]byte(raw), &entry.Insights); err != nil {
		return Entry{}, false, fmt.Errorf("decoding cache entry %q: %w", connection, err)
	}
	return entry, true, nil
}

// Set replaces the entry for connection.
func (s *Store) Set(ctx context.Context, connection string, insights []insight.Insight) error {
	if insights == nil {
		insights = []insight.Insight{}
	}
	raw, err := json.Marshal(insights)
	if err != nil {
		return fmt.Errorf("encoding insights: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO insight_cache (connection, insights, checked_at) VALUES (?, ?, ?)
		ON CONFLICT(connection) DO UPDATE SET insights = excluded.insights, checked_at = excluded.checked_at`,
		connection, string(raw), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("writing cache entry %q: %w", connection, err)
	}
	return nil
}

// Clear removes the entry for connection and reports whether one existed.
func (s *Store) Clear(ctx context.Context, connection string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM insight_cache WHERE connection = ?", connection)
	if err != nil {
		return false, fmt.Errorf("clearing cache entry %q: %w", connection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ClearAll removes every entry and returns how many were removed.
func (s *Store) ClearAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM insight_cache")
	if err != nil {
		return 0, fmt.Errorf("clearing cache: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
