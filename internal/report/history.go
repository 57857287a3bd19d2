package report

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/chriserin/gherkit/internal/db"
)

// History records a run in the sqlite history database.
type History struct {
	db    *sql.DB
	runID string
	now   func() time.Time

	mu     sync.Mutex
	steps  map[string][]db.StepRecord
	counts map[Outcome]int
}

// OpenHistory opens (creating if needed) the history database at path and
// records the start of run runID. Close finishes the run and closes the
// database.
func OpenHistory(path, runID string, started time.Time) (*History, error) {
	sqlDB, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	h, err := NewHistory(sqlDB, runID, started)
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return h, nil
}

// NewHistory records the start of run runID in sqlDB. Close takes
// ownership of sqlDB and closes it.
func NewHistory(sqlDB *sql.DB, runID string, started time.Time) (*History, error) {
	if err := db.InsertRun(sqlDB, runID, started); err != nil {
		return nil, err
	}
	return &History{
		db:     sqlDB,
		runID:  runID,
		now:    time.Now,
		steps:  make(map[string][]db.StepRecord),
		counts: make(map[Outcome]int),
	}, nil
}

func (h *History) RunID() string { return h.runID }

func (h *History) ScenarioStarted(s Scenario) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps[s.ID] = nil
	return nil
}

func (h *History) Emit(e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps[e.Scenario.ID] = append(h.steps[e.Scenario.ID], db.StepRecord{
		Position:   e.Position,
		Step:       e.Step,
		Input:      e.Input,
		Status:     string(e.Outcome),
		Kind:       string(e.Kind),
		Diagnostic: e.Diagnostic,
		Duration:   e.Duration,
	})
	return nil
}

func (h *History) ScenarioFinished(r Result) error {
	h.mu.Lock()
	steps := h.steps[r.Scenario.ID]
	delete(h.steps, r.Scenario.ID)
	h.counts[r.Outcome]++
	h.mu.Unlock()

	return db.InsertScenario(h.db, db.ScenarioRecord{
		ID:         r.Scenario.ID,
		RunID:      h.runID,
		Feature:    r.Scenario.Feature,
		Name:       r.Scenario.Name,
		Status:     string(r.Outcome),
		Kind:       string(r.Kind),
		Diagnostic: r.Diagnostic,
		StartedAt:  r.Start,
		Duration:   r.Stop.Sub(r.Start),
	}, steps)
}

func (h *History) Close() error {
	h.mu.Lock()
	passed, failed, skipped := h.counts[Passed], h.counts[Failed], h.counts[Skipped]
	h.mu.Unlock()

	err := db.FinishRun(h.db, h.runID, h.now(), passed, failed, skipped)
	if cerr := h.db.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing history: %w", cerr)
	}
	return err
}
