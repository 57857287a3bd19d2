package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress or was interrupted
	Passed     int
	Failed     int
	Skipped    int
}

type ScenarioRecord struct {
	ID         string
	RunID      string
	Feature    string
	Name       string
	Status     string
	Kind       string
	Diagnostic string
	StartedAt  time.Time
	Duration   time.Duration
}

type StepRecord struct {
	Position   int
	Step       string
	Input      string
	Status     string
	Kind       string
	Diagnostic string
	Duration   time.Duration
}

var ErrRunNotFound = errors.New("run not found")

func InsertRun(db *sql.DB, id string, started time.Time) error {
	_, err := db.Exec(`INSERT INTO runs (id, started_at) VALUES (?, ?)`, id, started.UnixMilli())
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

func FinishRun(db *sql.DB, id string, finished time.Time, passed, failed, skipped int) error {
	_, err := db.Exec(`UPDATE runs SET finished_at = ?, passed = ?, failed = ?, skipped = ? WHERE id = ?`,
		finished.UnixMilli(), passed, failed, skipped, id)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	return nil
}

// InsertScenario stores a scenario result with its steps in one transaction.
func InsertScenario(db *sql.DB, rec ScenarioRecord, steps []StepRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning scenario insert: %w", err)
	}
	_, err = tx.Exec(`INSERT INTO scenario_results (id, run_id, feature, name, status, kind, diagnostic, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, rec.Feature, rec.Name, rec.Status, rec.Kind, rec.Diagnostic,
		rec.StartedAt.UnixMilli(), rec.Duration.Milliseconds())
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("inserting scenario result: %w", err)
	}
	for _, s := range steps {
		_, err = tx.Exec(`INSERT INTO step_events (scenario_id, position, step, input, status, kind, diagnostic, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, s.Position, s.Step, s.Input, s.Status, s.Kind, s.Diagnostic, s.Duration.Milliseconds())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting step event: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing scenario result: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func RecentRuns(db *sql.DB, limit int) ([]Run, error) {
	rows, err := db.Query(`SELECT id, started_at, finished_at, passed, failed, skipped
		FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// FindRun looks a run up by id or unique id prefix.
func FindRun(db *sql.DB, prefix string) (Run, error) {
	rows, err := db.Query(`SELECT id, started_at, finished_at, passed, failed, skipped
		FROM runs WHERE id LIKE ? || '%' ORDER BY started_at DESC LIMIT 2`, prefix)
	if err != nil {
		return Run{}, fmt.Errorf("querying run: %w", err)
	}
	defer rows.Close()

	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	switch len(found) {
	case 0:
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, prefix)
	case 1:
		return found[0], nil
	}
	return Run{}, fmt.Errorf("run prefix %q is ambiguous", prefix)
}

func ScenarioResults(db *sql.DB, runID string) ([]ScenarioRecord, error) {
	rows, err := db.Query(`SELECT id, run_id, feature, name, status, kind, diagnostic, started_at, duration_ms
		FROM scenario_results WHERE run_id = ? ORDER BY feature, name`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying scenario results: %w", err)
	}
	defer rows.Close()

	var out []ScenarioRecord
	for rows.Next() {
		var (
			r          ScenarioRecord
			started    int64
			durationMS int64
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Feature, &r.Name, &r.Status, &r.Kind, &r.Diagnostic, &started, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning scenario result: %w", err)
		}
		r.StartedAt = time.UnixMilli(started)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func StepEvents(db *sql.DB, scenarioID string) ([]StepRecord, error) {
	rows, err := db.Query(`SELECT position, step, input, status, kind, diagnostic, duration_ms
		FROM step_events WHERE scenario_id = ? ORDER BY position`, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("querying step events: %w", err)
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		var (
			s          StepRecord
			durationMS int64
		)
		if err := rows.Scan(&s.Position, &s.Step, &s.Input, &s.Status, &s.Kind, &s.Diagnostic, &durationMS); err != nil {
			return nil, fmt.Errorf("scanning step event: %w", err)
		}
		s.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	if err := rows.Scan(&r.ID, &started, &finished, &r.Passed, &r.Failed, &r.Skipped); err != nil {
		return Run{}, fmt.Errorf("scanning run: %w", err)
	}
	r.StartedAt = time.UnixMilli(started)
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64)
	}
	return r, nil
}
