package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// All contains the ordered list of migrations to apply. Timestamps are
// unix milliseconds.
var All = []string{
	`CREATE TABLE runs (
		id          TEXT PRIMARY KEY,
		started_at  INTEGER NOT NULL,
		finished_at INTEGER,
		passed      INTEGER NOT NULL DEFAULT 0,
		failed      INTEGER NOT NULL DEFAULT 0,
		skipped     INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE scenario_results (
		id          TEXT PRIMARY KEY,
		run_id      TEXT NOT NULL REFERENCES runs(id),
		feature     TEXT NOT NULL,
		name        TEXT NOT NULL,
		status      TEXT NOT NULL,
		kind        TEXT NOT NULL DEFAULT '',
		diagnostic  TEXT NOT NULL DEFAULT '',
		started_at  INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL
	)`,
	`CREATE TABLE step_events (
		id          INTEGER PRIMARY KEY,
		scenario_id TEXT NOT NULL REFERENCES scenario_results(id),
		position    INTEGER NOT NULL,
		step        TEXT NOT NULL,
		input       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		kind        TEXT NOT NULL DEFAULT '',
		diagnostic  TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL
	)`,
	`CREATE INDEX scenario_results_run ON scenario_results(run_id)`,
}

// Open opens (creating if needed) the history database at path in WAL
// mode and applies pending migrations.
func Open(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Writers from parallel scenarios share one connection.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}
	if _, err := sqlDB.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}
	if err := Migrate(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

func Migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return fmt.Errorf("checking schema_version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("initializing schema version: %w", err)
		}
	}

	var current int
	if err := db.QueryRow(`SELECT version FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(All); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(All[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}

		if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, i+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("updating schema version to %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", i+1, err)
		}
	}

	return nil
}
