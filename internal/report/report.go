// Package report receives scenario and step outcomes from the runner.
//
// A Sink is shared by every scenario of a run, so implementations must be
// safe for concurrent use. Sink errors are reported by the runner but never
// change a scenario's outcome.
package report

import (
	"errors"
	"time"

	"github.com/chriserin/gherkit/internal/failure"
)

type Outcome string

const (
	Passed  Outcome = "passed"
	Failed  Outcome = "failed"
	Skipped Outcome = "skipped"
)

type Scenario struct {
	ID      string
	Feature string
	Path    string
	Name    string
	Line    int
	Tags    []string
}

type Attachment struct {
	Name      string
	MediaType string
	Data      []byte
}

// Event is the outcome of a single step.
type Event struct {
	Scenario    Scenario
	Position    int
	Keyword     string
	Step        string
	Line        int
	Input       string // step text after interpolation
	Outcome     Outcome
	Kind        failure.Kind
	Diagnostic  string
	Start       time.Time
	Duration    time.Duration
	Attachments []Attachment
}

type Result struct {
	Scenario   Scenario
	Outcome    Outcome
	Kind       failure.Kind
	Diagnostic string
	Start      time.Time
	Stop       time.Time
}

type Sink interface {
	ScenarioStarted(s Scenario) error
	Emit(e Event) error
	ScenarioFinished(r Result) error
	Close() error
}

type multi []Sink

// Multi fans every call out to sinks in order. All sinks see every call;
// the returned error joins their failures.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

func (m multi) ScenarioStarted(s Scenario) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.ScenarioStarted(s))
	}
	return errors.Join(errs...)
}

func (m multi) Emit(e Event) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.Emit(e))
	}
	return errors.Join(errs...)
}

func (m multi) ScenarioFinished(r Result) error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.ScenarioFinished(r))
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, sink := range m {
		errs = append(errs, sink.Close())
	}
	return errors.Join(errs...)
}

// Discard ignores everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) ScenarioStarted(Scenario) error { return nil }
func (discard) Emit(Event) error               { return nil }
func (discard) ScenarioFinished(Result) error  { return nil }
func (discard) Close() error                   { return nil }
