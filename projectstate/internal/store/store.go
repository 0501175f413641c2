// Package store is the SQLite persistence layer of projectstate: a keyed
// document table holding whole JSON documents and an append-only refresh log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/famousjsons/dbopen"
	"github.com/hazyhaar/famousjsons/idgen"
)

// Schema is the DDL for the projectstate tables.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
    key        TEXT PRIMARY KEY,
    body       TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS refresh_log (
    id          TEXT PRIMARY KEY,
    kind        TEXT NOT NULL,
    ok          INTEGER NOT NULL,
    error       TEXT NOT NULL DEFAULT '',
    duration_ms INTEGER NOT NULL,
    at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refresh_log_at ON refresh_log(at DESC);
`

// Store is the projectstate database handle.
type Store struct {
	DB    *sql.DB
	newID idgen.Generator
}

// Open opens (or creates) the database at path and applies Schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an already-open database. The schema must have been applied.
func New(db *sql.DB) *Store {
	return &Store{DB: db, newID: idgen.Prefixed("rfl_", idgen.Default)}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Get returns the document stored under key, or nil, nil when there is none.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var body string
	err := s.DB.QueryRowContext(ctx, `SELECT body FROM documents WHERE key = ?`, key).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", key, err)
	}
	return []byte(body), nil
}

// Put replaces the document stored under key.
func (s *Store) Put(ctx context.Context, key string, doc []byte) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO documents (key, body, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		key, string(doc), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: put %s: %w", key, err)
	}
	return nil
}

// RefreshRecord is one row of the refresh log.
type RefreshRecord struct {
	ID       string        `json:"id"`
	Trigger  string        `json:"trigger"`
	OK       bool          `json:"ok"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
	At       time.Time     `json:"at"`
}

// LogRefresh appends rec. Empty ID and zero At are filled in.
func (s *Store) LogRefresh(ctx context.Context, rec *RefreshRecord) error {
	if rec.ID == "" {
		rec.ID = s.newID()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	ok := 0
	if rec.OK {
		ok = 1
	}
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO refresh_log (id, kind, ok, error, duration_ms, at) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Trigger, ok, rec.Error, rec.Duration.Milliseconds(), rec.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: log refresh: %w", err)
	}
	return nil
}

// RecentRefreshes returns up to limit refresh log rows, newest first.
func (s *Store) RecentRefreshes(ctx context.Context, limit int) ([]*RefreshRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, kind, ok, error, duration_ms, at FROM refresh_log ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent refreshes: %w", err)
	}
	defer rows.Close()

	var out []*RefreshRecord
	for rows.Next() {
		var (
			r       RefreshRecord
			ok      int
			durMs   int64
			atMilli int64
		)
		if err := rows.Scan(&r.ID, &r.Trigger, &ok, &r.Error, &durMs, &atMilli); err != nil {
			return nil, fmt.Errorf("store: scan refresh: %w", err)
		}
		r.OK = ok == 1
		r.Duration = time.Duration(durMs) * time.Millisecond
		r.At = time.UnixMilli(atMilli)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// PruneRefreshes deletes log rows older than before and returns how many.
func (s *Store) PruneRefreshes(ctx context.Context, before time.Time) (int64, error) {
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM refresh_log WHERE at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("store: prune refreshes: %w", err)
	}
	return res.RowsAffected()
}
