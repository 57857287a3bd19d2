// Package runner executes parsed scenarios against the step table.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chriserin/gherkit/internal/dispatch"
	"github.com/chriserin/gherkit/internal/failure"
	"github.com/chriserin/gherkit/internal/logging"
	"github.com/chriserin/gherkit/internal/parser"
	"github.com/chriserin/gherkit/internal/report"
)

type Options struct {
	// Parallel bounds how many scenarios run at once. Values below 1 mean 1.
	Parallel int
	Filter   Filter
	// ScreenshotOnFailure attaches a page screenshot to the failing step
	// when the scenario has a browser open.
	ScreenshotOnFailure bool
}

type StepResult struct {
	Keyword  string
	Text     string
	Line     int
	Outcome  report.Outcome
	Err      error
	Duration time.Duration
}

type ScenarioResult struct {
	ID      string
	Feature string
	Path    string
	Name    string
	Line    int
	Tags    []string
	Outcome report.Outcome
	Err     error // first step error, nil when passed
	Steps   []StepResult
	Start   time.Time
	Stop    time.Time
}

type Summary struct {
	Scenarios []ScenarioResult
	Passed    int
	Failed    int
	Skipped   int
}

func (s Summary) OK() bool { return s.Failed == 0 }

type Runner struct {
	env    *dispatch.Env
	sink   report.Sink
	logger *zap.Logger
	opts   Options
	now    func() time.Time
}

func New(env *dispatch.Env, sink report.Sink, logger *zap.Logger, opts Options) *Runner {
	if sink == nil {
		sink = report.Discard
	}
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	return &Runner{
		env:    env,
		sink:   sink,
		logger: logging.Component(logger, "Runner"),
		opts:   opts,
		now:    time.Now,
	}
}

type job struct {
	file     *parser.ParsedFile
	scenario parser.ParsedScenario
}

// ParseErrors is returned when any feature file failed to parse. Nothing
// runs in that case.
type ParseErrors struct {
	Files []*parser.ParsedFile
}

func (e *ParseErrors) Error() string {
	n := 0
	for _, f := range e.Files {
		n += len(f.Errors)
	}
	return fmt.Sprintf("%d parse errors in %d files", n, len(e.Files))
}

// Run executes every selected scenario of files. A failing scenario never
// stops the others. The returned error is reserved for problems that
// prevent the run itself.
func (r *Runner) Run(ctx context.Context, files []*parser.ParsedFile) (Summary, error) {
	var broken []*parser.ParsedFile
	for _, f := range files {
		if len(f.Errors) > 0 {
			broken = append(broken, f)
		}
	}
	if len(broken) > 0 {
		return Summary{}, &ParseErrors{Files: broken}
	}

	var jobs []job
	for _, f := range files {
		for _, s := range f.Scenarios {
			if r.opts.Filter.Match(s.Tags) {
				jobs = append(jobs, job{file: f, scenario: s})
			}
		}
	}
	r.logger.Info("Run started", zap.Int("scenarios", len(jobs)), zap.Int("parallel", r.opts.Parallel))

	results := make([]ScenarioResult, len(jobs))
	g := new(errgroup.Group)
	g.SetLimit(r.opts.Parallel)
	for i, j := range jobs {
		g.Go(func() error {
			results[i] = r.runScenario(ctx, j)
			return nil
		})
	}
	_ = g.Wait()

	sum := Summary{Scenarios: results}
	for _, res := range results {
		switch res.Outcome {
		case report.Passed:
			sum.Passed++
		case report.Failed:
			sum.Failed++
		default:
			sum.Skipped++
		}
	}
	r.logger.Info("Run finished",
		zap.Int("passed", sum.Passed),
		zap.Int("failed", sum.Failed),
		zap.Int("skipped", sum.Skipped),
	)
	return sum, nil
}

func (r *Runner) runScenario(ctx context.Context, j job) ScenarioResult {
	res := ScenarioResult{
		ID:      uuid.NewString(),
		Feature: j.file.Name,
		Path:    j.file.Path,
		Name:    j.scenario.Name,
		Line:    j.scenario.Line,
		Tags:    j.scenario.Tags,
		Outcome: report.Passed,
		Start:   r.now(),
	}
	rs := report.Scenario{ID: res.ID, Feature: res.Feature, Path: res.Path, Name: res.Name, Line: res.Line, Tags: res.Tags}
	r.sinkErr(r.sink.ScenarioStarted(rs))

	sc := r.env.NewScenario(res.Name)
	defer func() {
		if err := sc.Close(); err != nil {
			r.logger.Warn("Releasing scenario resources failed", zap.String("scenario", res.Name), zap.Error(err))
		}
	}()
	sc.Reset()

	if len(j.scenario.Steps) == 0 || ctx.Err() != nil {
		res.Outcome = report.Skipped
	}

	for i, step := range j.scenario.Steps {
		ev := report.Event{
			Scenario: rs,
			Position: i,
			Keyword:  step.Keyword,
			Step:     step.Text,
			Line:     step.Line,
			Start:    r.now(),
		}
		sr := StepResult{Keyword: step.Keyword, Text: step.Text, Line: step.Line}

		if res.Outcome != report.Passed {
			ev.Outcome, sr.Outcome = report.Skipped, report.Skipped
			r.sinkErr(r.sink.Emit(ev))
			res.Steps = append(res.Steps, sr)
			continue
		}

		_, err := sc.Run(ctx, step.Text, step.Body, step.Table)
		ev.Duration = r.now().Sub(ev.Start)
		sr.Duration = ev.Duration
		for _, e := range sc.TakeEvidence() {
			ev.Attachments = append(ev.Attachments, report.Attachment{Name: e.Name, MediaType: e.MediaType, Data: e.Data})
		}
		if err != nil {
			ev.Outcome, sr.Outcome, sr.Err = report.Failed, report.Failed, err
			ev.Kind = failure.KindOf(err)
			ev.Diagnostic = err.Error()
			var se *failure.StepError
			if errors.As(err, &se) {
				ev.Input = se.Input
			}
			if r.opts.ScreenshotOnFailure {
				if img, ok := sc.Screenshot(context.WithoutCancel(ctx)); ok {
					ev.Attachments = append(ev.Attachments, report.Attachment{Name: "failure screenshot", MediaType: http.DetectContentType(img), Data: img})
				}
			}
			res.Outcome, res.Err = report.Failed, err
		} else {
			ev.Outcome, sr.Outcome = report.Passed, report.Passed
		}
		r.sinkErr(r.sink.Emit(ev))
		res.Steps = append(res.Steps, sr)
	}
	sc.Reset()

	res.Stop = r.now()
	result := report.Result{Scenario: rs, Outcome: res.Outcome, Start: res.Start, Stop: res.Stop}
	if res.Err != nil {
		result.Kind = failure.KindOf(res.Err)
		result.Diagnostic = res.Err.Error()
	}
	r.sinkErr(r.sink.ScenarioFinished(result))
	return res
}

func (r *Runner) sinkErr(err error) {
	if err != nil {
		r.logger.Warn("Report sink failed", zap.Error(err))
	}
}
