package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory_RunLifecycle(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	started := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, InsertRun(db, "run-a", started))

	runs, err := RecentRuns(db, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].FinishedAt.IsZero())

	require.NoError(t, FinishRun(db, "run-a", started.Add(2*time.Second), 3, 1, 2))

	run, err := FindRun(db, "run-a")
	require.NoError(t, err)
	assert.Equal(t, started, run.StartedAt)
	assert.Equal(t, started.Add(2*time.Second), run.FinishedAt)
	assert.Equal(t, 3, run.Passed)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 2, run.Skipped)
}

func TestHistory_ScenarioWithSteps(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	started := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, InsertRun(db, "run-a", started))

	rec := ScenarioRecord{
		ID:         "sc-1",
		RunID:      "run-a",
		Feature:    "posts",
		Name:       "create post",
		Status:     "failed",
		Kind:       "assertion",
		Diagnostic: "status-equals failed",
		StartedAt:  started,
		Duration:   1500 * time.Millisecond,
	}
	steps := []StepRecord{
		{Position: 0, Step: `I send "GET" to "/posts/1"`, Input: "GET /posts/1", Status: "passed", Duration: time.Second},
		{Position: 1, Step: "the response status should be 201", Status: "failed", Kind: "assertion", Diagnostic: "expected 201"},
	}
	require.NoError(t, InsertScenario(db, rec, steps))

	results, err := ScenarioResults(db, "run-a")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, rec, results[0])

	events, err := StepEvents(db, "sc-1")
	require.NoError(t, err)
	assert.Equal(t, steps, events)
}

func TestHistory_RecentRunsNewestFirst(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	base := time.UnixMilli(1_700_000_000_000)
	for i, id := range []string{"old", "mid", "new"} {
		require.NoError(t, InsertRun(db, id, base.Add(time.Duration(i)*time.Minute)))
	}

	runs, err := RecentRuns(db, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
}

func TestFindRun_PrefixMatching(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	now := time.UnixMilli(1_700_000_000_000)
	require.NoError(t, InsertRun(db, "abc123", now))
	require.NoError(t, InsertRun(db, "abd456", now))

	run, err := FindRun(db, "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc123", run.ID)

	_, err = FindRun(db, "ab")
	assert.ErrorContains(t, err, "ambiguous")

	_, err = FindRun(db, "zzz")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
