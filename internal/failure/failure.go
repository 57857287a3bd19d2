// Package failure defines the error kinds a scenario can fail with.
//
// Every error that leaves a step is one of the types below, usually wrapped
// in a StepError that records the step text and the interpolated input.
package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindUnknownLocator    Kind = "unknown-locator"
	KindUndefinedVariable Kind = "undefined-variable"
	KindAssertion         Kind = "assertion"
	KindUIAction          Kind = "ui-action"
	KindAPITransport      Kind = "api-transport"
	KindDatabase          Kind = "database"
	KindTimeout           Kind = "timeout"
	KindUnknown           Kind = "error"
)

// ConfigurationError reports a malformed locator or settings source.
type ConfigurationError struct {
	Source  string
	Page    string
	Element string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Source != "" {
		fmt.Fprintf(&b, " in %s", e.Source)
	}
	if e.Page != "" {
		fmt.Fprintf(&b, " at %s", e.Page)
		if e.Element != "" {
			fmt.Fprintf(&b, ".%s", e.Element)
		}
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	return b.String()
}

type UnknownLocatorError struct {
	Page    string
	Element string
}

func (e *UnknownLocatorError) Error() string {
	return fmt.Sprintf("unknown locator %s.%s", e.Page, e.Element)
}

type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("undefined variable %q", e.Name)
}

// AssertionFailure is the expected outcome of a check that does not hold.
// Path holds the JSON path or row coordinates when the check had one.
type AssertionFailure struct {
	Assertion string
	Expected  string
	Actual    string
	Path      string
	Reason    string
}

func (e *AssertionFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s failed", e.Assertion)
	if e.Path != "" {
		fmt.Fprintf(&b, " at %s", e.Path)
	}
	if e.Reason != "" {
		fmt.Fprintf(&b, ": %s", e.Reason)
	}
	fmt.Fprintf(&b, " (expected %q, actual %q)", e.Expected, e.Actual)
	return b.String()
}

type Collaborator string

const (
	UI       Collaborator = "ui"
	API      Collaborator = "api"
	Database Collaborator = "database"
)

// ActionError wraps an error returned by a collaborator. The core never
// retries these.
type ActionError struct {
	Collaborator Collaborator
	Operation    string
	Timeout      bool
	Err          error
}

func (e *ActionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s %s timed out: %v", e.Collaborator, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Operation, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// Action wraps a collaborator error, marking it as a timeout when the
// call's deadline expired. A nil err stays nil.
func Action(c Collaborator, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return err
	}
	return &ActionError{
		Collaborator: c,
		Operation:    op,
		Timeout:      errors.Is(err, context.DeadlineExceeded),
		Err:          err,
	}
}

// StepError attaches the failing step and the fully interpolated input.
type StepError struct {
	Step  string
	Input string
	Err   error
}

func (e *StepError) Error() string {
	if e.Input == "" {
		return fmt.Sprintf("step %q: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("step %q (input %s): %v", e.Step, e.Input, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// KindOf classifies err by the most specific failure type in its chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		cfg   *ConfigurationError
		loc   *UnknownLocatorError
		undef *UndefinedVariableError
		af    *AssertionFailure
		act   *ActionError
	)
	switch {
	case errors.As(err, &af):
		return KindAssertion
	case errors.As(err, &undef):
		return KindUndefinedVariable
	case errors.As(err, &loc):
		return KindUnknownLocator
	case errors.As(err, &cfg):
		return KindConfiguration
	case errors.As(err, &act):
		if act.Timeout {
			return KindTimeout
		}
		switch act.Collaborator {
		case UI:
			return KindUIAction
		case API:
			return KindAPITransport
		case Database:
			return KindDatabase
		}
	}
	return KindUnknown
}
