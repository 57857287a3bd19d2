package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/chriserin/gherkit/internal/db"
	"github.com/chriserin/gherkit/internal/ui"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [<run-id>]",
	Short: "Show recent runs, or the scenario results of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return RunStatusReport(cmd.OutOrStdout(), configFlag, statusLimit)
		}
		return RunStatusDetail(cmd.OutOrStdout(), configFlag, args[0])
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 10, "Runs to show")
	rootCmd.AddCommand(statusCmd)
}

func openHistory(configPath string) (*sql.DB, error) {
	settings, err := loadSettings(configPath)
	if err != nil {
		return nil, err
	}
	path := settings.Report.HistoryPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("no history at %s, run `gherkit init` first", path)
	}
	sqlDB, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return sqlDB, nil
}

func RunStatusReport(w io.Writer, configPath string, limit int) error {
	h, err := openHistory(configPath)
	if err != nil {
		return err
	}
	defer h.Close()

	runs, err := db.RecentRuns(h, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Runs: %d\n", len(runs))
	for _, r := range runs {
		ui.RunRow(w, r.ID, r.StartedAt, r.Passed, r.Failed, r.Skipped, !r.FinishedAt.IsZero())
	}
	return nil
}

func RunStatusDetail(w io.Writer, configPath, runID string) error {
	h, err := openHistory(configPath)
	if err != nil {
		return err
	}
	defer h.Close()

	run, err := db.FindRun(h, runID)
	if err != nil {
		return err
	}
	ui.RunRow(w, run.ID, run.StartedAt, run.Passed, run.Failed, run.Skipped, !run.FinishedAt.IsZero())

	results, err := db.ScenarioResults(h, run.ID)
	if err != nil {
		return err
	}
	for _, r := range results {
		ui.ResultRow(w, r.Status, r.Feature, r.Name, r.Kind, r.Diagnostic)
	}
	return nil
}
