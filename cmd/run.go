package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chriserin/gherkit/internal/dispatch"
	"github.com/chriserin/gherkit/internal/failure"
	"github.com/chriserin/gherkit/internal/locator"
	"github.com/chriserin/gherkit/internal/logging"
	"github.com/chriserin/gherkit/internal/report"
	"github.com/chriserin/gherkit/internal/runner"
	"github.com/chriserin/gherkit/internal/ui"
)

type RunOptions struct {
	ConfigPath string
	Paths      []string
	Parallel   int // overrides the settings when positive
	Tags       string
	ResultsDir string // overrides the settings when set
	Cucumber   string // cucumber JSON output path, empty for none
	NoHistory  bool
	// LogOutput receives structured logs. Nil means stderr.
	LogOutput io.Writer
}

var runOpts RunOptions

var runCmd = &cobra.Command{
	Use:   "run [paths...]",
	Short: "Run feature files",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := runOpts
		opts.ConfigPath = configFlag
		opts.Paths = args
		return RunRun(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	runCmd.Flags().IntVar(&runOpts.Parallel, "parallel", 0, "Scenarios to run at once")
	runCmd.Flags().StringVar(&runOpts.Tags, "tags", "", "Tag filter, e.g. @smoke,~@wip")
	runCmd.Flags().StringVar(&runOpts.ResultsDir, "results", "", "Allure results directory")
	runCmd.Flags().StringVar(&runOpts.Cucumber, "cucumber", "", "Write a cucumber JSON report to this path")
	runCmd.Flags().BoolVar(&runOpts.NoHistory, "no-history", false, "Do not record the run in the history database")
	rootCmd.AddCommand(runCmd)
}

func RunRun(ctx context.Context, w io.Writer, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	settings, err := loadSettings(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.Parallel > 0 {
		settings.Parallel = opts.Parallel
	}
	if opts.ResultsDir != "" {
		settings.Report.AllureDir = opts.ResultsDir
	}

	logOut := opts.LogOutput
	if logOut == nil {
		logOut = os.Stderr
	}
	logger, err := logging.New(settings.LogLevel, logOut)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg := locator.NewRegistry()
	if _, err := os.Stat(settings.ElementsDir); err == nil {
		if err := reg.Load(settings.ElementsDir); err != nil {
			return err
		}
	}

	files, err := loadFeatures(opts.Paths, settings.FeaturesDir)
	if err != nil {
		return err
	}

	started := time.Now()
	runID := uuid.NewString()
	allure, err := report.NewAllure(settings.Report.AllureDir)
	if err != nil {
		return err
	}
	sinks := []report.Sink{report.NewLogSink(logger), allure}
	if !opts.NoHistory {
		history, err := report.OpenHistory(settings.Report.HistoryPath, runID, started)
		if err != nil {
			return err
		}
		sinks = append(sinks, history)
	}
	if opts.Cucumber != "" {
		sinks = append(sinks, report.NewCucumber(opts.Cucumber))
	}
	sink := report.Multi(sinks...)

	env := dispatch.NewEnv(reg, settings, logger)
	r := runner.New(env, sink, logger, runner.Options{
		Parallel:            settings.Parallel,
		Filter:              runner.ParseFilter(opts.Tags),
		ScreenshotOnFailure: settings.Screenshot.OnFailure,
	})
	sum, runErr := r.Run(ctx, files)
	if err := sink.Close(); err != nil {
		logger.Warn("Closing reports failed", zap.Error(err))
	}

	var pe *runner.ParseErrors
	if errors.As(runErr, &pe) {
		for _, f := range pe.Files {
			for _, e := range f.Errors {
				fmt.Fprintf(w, "%s:%d: %s\n", f.Path, e.Line, e.Message)
			}
		}
		return runErr
	}
	if runErr != nil {
		return runErr
	}

	for _, res := range sum.Scenarios {
		ui.ScenarioLine(w, string(res.Outcome), res.Feature, res.Name, res.Stop.Sub(res.Start))
		if res.Err == nil {
			continue
		}
		step := ""
		var se *failure.StepError
		if errors.As(res.Err, &se) {
			step = se.Step
		}
		ui.StepFailure(w, step, string(failure.KindOf(res.Err)), res.Err.Error())
	}
	ui.SummaryLine(w, sum.Passed, sum.Failed, sum.Skipped, time.Since(started))

	if !sum.OK() {
		return fmt.Errorf("%d of %d scenarios failed", sum.Failed, len(sum.Scenarios))
	}
	return nil
}
