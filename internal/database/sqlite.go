package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// sqliteSchema mirrors the tables AutoMigrate creates on PostgreSQL.
// Timestamps are unix nanoseconds so range scans compare numerically;
// threshold arrays use the PostgreSQL array literal format.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL DEFAULT '',
		surname TEXT NOT NULL DEFAULT '',
		age_group TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		left_avg REAL,
		right_avg REAL,
		dissimilarity REAL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS screening_states (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE REFERENCES users(id) ON DELETE CASCADE,
		run_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		is_complete INTEGER NOT NULL DEFAULT 0,
		state TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_screening_states_open ON screening_states (is_complete, updated_at)`,
	`CREATE TABLE IF NOT EXISTS audiogram_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		run_id TEXT NOT NULL UNIQUE,
		frequencies TEXT NOT NULL,
		left_thresholds TEXT NOT NULL,
		right_thresholds TEXT NOT NULL,
		left_avg REAL NOT NULL,
		right_avg REAL NOT NULL,
		dissimilarity REAL NOT NULL,
		max_diff REAL NOT NULL,
		max_diff_frequency INTEGER NOT NULL,
		abandoned INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audiogram_results_latest ON audiogram_results (user_id, created_at)`,
}

// OpenSQLite opens (creating if needed) the SQLite database at path, applies
// pragmas and ensures the schema.
func OpenSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps compare-and-swap updates serialized and
	// makes :memory: databases usable.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}
