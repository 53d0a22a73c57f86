// CLAUDE:SUMMARY Key-value settings store (savedTime, savedDuration, overlayEnabled): SQLite with production pragmas and an in-memory twin.
// Package settings is the key-value settings collaborator shared by the
// daemon and the command-line client.
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	st, err := settings.Open("skipper.db")
//
// In tests:
//
//	st := settings.OpenMemory(t)
package settings

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// Keys used by the overlay and the client.
const (
	KeySavedTime      = "savedTime"
	KeySavedDuration  = "savedDuration"
	KeyOverlayEnabled = "overlayEnabled"
)

// Enabled reads overlayEnabled; anything but an explicit false is true.
func Enabled(vals map[string]string) bool {
	return !strings.EqualFold(strings.TrimSpace(vals[KeyOverlayEnabled]), "false")
}

// Store is the get/set collaborator. Missing keys are absent from Get's
// result.
type Store interface {
	Get(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
}

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	rev        INTEGER NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);`

type config struct {
	driver      string
	busyTimeout int
	synchronous string
	mkdirAll    bool
	ping        bool
}

func defaults() config {
	return config{
		driver:      "sqlite",
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		mkdirAll:    true,
		ping:        true,
	}
}

// Option customises Open.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithoutMkdirAll leaves the parent directory alone.
func WithoutMkdirAll() Option { return func(c *config) { c.mkdirAll = false } }

// SQLite is a Store backed by an SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open opens (and creates) the settings database at path. The caller must
// blank-import the driver.
func Open(path string, opts ...Option) (*SQLite, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("settings: mkdir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("settings: open: %w", err)
	}
	if err := applyPragmas(db, &cfg); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("settings: exec schema: %w", err)
	}
	if cfg.ping {
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("settings: ping: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// OpenMemory opens an in-memory store for tests. MaxOpenConns(1) keeps
// every query on the same in-memory database.
func OpenMemory(t testing.TB, opts ...Option) *SQLite {
	t.Helper()
	s, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("settings.OpenMemory: %v", err)
	}
	s.db.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

func applyPragmas(db *sql.DB, cfg *config) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.synchronous),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("settings: %s: %w", p, err)
		}
	}
	return nil
}

// DB exposes the handle for the change watcher.
func (s *SQLite) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	q := "SELECT key, value FROM settings WHERE key IN (?" + strings.Repeat(",?", len(keys)-1) + ")"
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("settings: get: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("settings: scan: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("settings: rows: %w", err)
	}
	return out, nil
}

// Set implements Store. All values are written in one transaction and
// share one revision.
func (s *SQLite) Set(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("settings: begin: %w", err)
	}
	defer tx.Rollback()

	var rev int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(rev), 0) + 1 FROM settings").Scan(&rev); err != nil {
		return fmt.Errorf("settings: next revision: %w", err)
	}
	for k, v := range values {
		_, err := tx.ExecContext(ctx, `
INSERT INTO settings (key, value, rev, updated_at) VALUES (?, ?, ?, unixepoch())
ON CONFLICT(key) DO UPDATE SET value = excluded.value, rev = excluded.rev, updated_at = excluded.updated_at`,
			k, v, rev)
		if err != nil {
			return fmt.Errorf("settings: set %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("settings: commit: %w", err)
	}
	return nil
}

// Memory is an in-process Store.
type Memory struct {
	mu   sync.RWMutex
	vals map[string]string
	rev  int64
}

// NewMemory returns an empty Memory store seeded with initial values.
func NewMemory(initial map[string]string) *Memory {
	m := &Memory{vals: make(map[string]string, len(initial))}
	for k, v := range initial {
		m.vals[k] = v
	}
	return m
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, keys []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.vals[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.vals[k] = v
	}
	if len(values) > 0 {
		m.rev++
	}
	return nil
}

// Revision increments on every non-empty Set.
func (m *Memory) Revision() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rev
}
