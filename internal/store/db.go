// Package store implements the SQLite-backed study store (C7): schema
// creation and additive migration, WAL/pragma configuration, multi-database
// directory management, and the persistence contracts C4/C5/C6 write
// through (save/load studies, trials, WFA windows, manual tests, study
// sets).
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// DB wraps one SQLite handle with the run lock that gates mutations and
// switches while an optimization is in flight.
type DB struct {
	sql  *sql.DB
	path string

	mu      sync.Mutex // guards running
	running bool
}

// columnDef names one column an additive migration adds to an existing
// table.
type columnDef struct {
	table      string
	column     string
	definition string
}

// Open opens (creating if absent) the SQLite file at path, applies the
// WAL/synchronous/cache/foreign-key pragmas, and brings the schema current.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	sqlDB.SetMaxOpenConns(1) // one writer at a time; WAL still allows concurrent readers

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	if _, err := sqlDB.Exec(createSchema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	if err := ensureColumns(sqlDB, additiveColumns); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &DB{sql: sqlDB, path: path}, nil
}

func (db *DB) Close() error { return db.sql.Close() }

// Path returns the filesystem path this handle was opened from.
func (db *DB) Path() string { return db.path }

// TryLock acquires the run lock gating DB mutations and study deletions
// while an optimization is in flight; it returns false if a run is already
// in progress.
func (db *DB) TryLock() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.running {
		return false
	}
	db.running = true
	return true
}

// Unlock releases the run lock.
func (db *DB) Unlock() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.running = false
}
