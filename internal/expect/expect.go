// Package expect evaluates declarative assertions against a Response.
package expect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/chriserin/gherkit/internal/failure"
	"github.com/chriserin/gherkit/internal/response"
	"github.com/chriserin/gherkit/internal/vars"
)

// Spec is one assertion. The concrete types below are the only
// implementations.
type Spec interface {
	Kind() string
	Describe() string
	evaluate(r *response.Response) *failure.AssertionFailure
}

type StatusEquals struct{ Code int }

type StatusSuccessful struct{}

type HeaderEquals struct{ Name, Value string }

type JSONPathEquals struct{ Path, Expected string }

type BodyContains struct{ Text string }

type BodyEquals struct{ Text string }

type IsJSON struct{}

type RowCountEquals struct{ N int }

type RowFieldEquals struct {
	Row      int
	Column   string
	Expected string
}

type ColumnPresent struct{ Column string }

type AffectedRowsEquals struct{ N int64 }

// Evaluate checks spec against r. It never mutates r. A failed check
// returns a *failure.AssertionFailure.
func Evaluate(r *response.Response, spec Spec) error {
	if r == nil {
		return &failure.AssertionFailure{Assertion: spec.Kind(), Reason: "no response captured", Expected: spec.Describe()}
	}
	if f := spec.evaluate(r); f != nil {
		f.Assertion = spec.Kind()
		return f
	}
	return nil
}

func (StatusEquals) Kind() string { return "status-equals" }
func (s StatusEquals) Describe() string { return fmt.Sprintf("status %d", s.Code) }
func (StatusSuccessful) Kind() string { return "status-successful" }
func (StatusSuccessful) Describe() string { return "status 2xx" }
func (HeaderEquals) Kind() string { return "header-equals" }
func (h HeaderEquals) Describe() string { return fmt.Sprintf("header %s = %q", h.Name, h.Value) }
func (JSONPathEquals) Kind() string { return "json-path-equals" }
func (j JSONPathEquals) Describe() string { return fmt.Sprintf("json %s = %q", j.Path, j.Expected) }
func (BodyContains) Kind() string { return "body-contains" }
func (b BodyContains) Describe() string { return fmt.Sprintf("body contains %q", b.Text) }
func (BodyEquals) Kind() string { return "body-equals" }
func (b BodyEquals) Describe() string { return fmt.Sprintf("body = %q", b.Text) }
func (IsJSON) Kind() string { return "is-json" }
func (IsJSON) Describe() string { return "body is JSON" }
func (RowCountEquals) Kind() string { return "row-count-equals" }
func (c RowCountEquals) Describe() string { return fmt.Sprintf("%d rows", c.N) }
func (RowFieldEquals) Kind() string { return "row-field-equals" }
func (f RowFieldEquals) Describe() string {
	return fmt.Sprintf("row %d column %s = %q", f.Row, f.Column, f.Expected)
}
func (ColumnPresent) Kind() string { return "column-present" }
func (c ColumnPresent) Describe() string { return fmt.Sprintf("column %s present", c.Column) }
func (AffectedRowsEquals) Kind() string { return "affected-rows-equals" }
func (a AffectedRowsEquals) Describe() string { return fmt.Sprintf("%d affected rows", a.N) }

func (s StatusEquals) evaluate(r *response.Response) *failure.AssertionFailure {
	if r.StatusCode == nil {
		return &failure.AssertionFailure{Reason: "response has no status code", Expected: strconv.Itoa(s.Code)}
	}
	if *r.StatusCode != s.Code {
		return &failure.AssertionFailure{Reason: "status mismatch", Expected: strconv.Itoa(s.Code), Actual: strconv.Itoa(*r.StatusCode)}
	}
	return nil
}

func (StatusSuccessful) evaluate(r *response.Response) *failure.AssertionFailure {
	if r.StatusCode == nil {
		return &failure.AssertionFailure{Reason: "response has no status code", Expected: "2xx"}
	}
	if c := *r.StatusCode; c < 200 || c >= 300 {
		return &failure.AssertionFailure{Reason: "status not successful", Expected: "2xx", Actual: strconv.Itoa(c)}
	}
	return nil
}

func (h HeaderEquals) evaluate(r *response.Response) *failure.AssertionFailure {
	v, ok := r.Header(h.Name)
	if !ok {
		return &failure.AssertionFailure{Reason: "header not found", Path: h.Name, Expected: h.Value}
	}
	if v != h.Value {
		return &failure.AssertionFailure{Reason: "header mismatch", Path: h.Name, Expected: h.Value, Actual: v}
	}
	return nil
}

func (j JSONPathEquals) evaluate(r *response.Response) *failure.AssertionFailure {
	v, found, err := r.Lookup(j.Path)
	if err != nil {
		return &failure.AssertionFailure{Reason: err.Error(), Path: j.Path, Expected: j.Expected, Actual: truncate(string(r.BodyRaw))}
	}
	if !found {
		return &failure.AssertionFailure{Reason: "path not found", Path: j.Path, Expected: j.Expected}
	}
	if actual := vars.String(v); actual != j.Expected {
		return &failure.AssertionFailure{Reason: "value mismatch", Path: j.Path, Expected: j.Expected, Actual: actual}
	}
	return nil
}

func (b BodyContains) evaluate(r *response.Response) *failure.AssertionFailure {
	if !strings.Contains(string(r.BodyRaw), b.Text) {
		return &failure.AssertionFailure{Reason: "text not found in body", Expected: b.Text, Actual: truncate(string(r.BodyRaw))}
	}
	return nil
}

func (b BodyEquals) evaluate(r *response.Response) *failure.AssertionFailure {
	if string(r.BodyRaw) != b.Text {
		return &failure.AssertionFailure{Reason: "body mismatch", Expected: b.Text, Actual: truncate(string(r.BodyRaw))}
	}
	return nil
}

func (IsJSON) evaluate(r *response.Response) *failure.AssertionFailure {
	if !r.IsJSON() {
		return &failure.AssertionFailure{Reason: "body is not JSON", Expected: "JSON", Actual: truncate(string(r.BodyRaw))}
	}
	return nil
}

func (c RowCountEquals) evaluate(r *response.Response) *failure.AssertionFailure {
	if r.Rows == nil {
		return &failure.AssertionFailure{Reason: "no query result", Expected: strconv.Itoa(c.N)}
	}
	if len(r.Rows) != c.N {
		return &failure.AssertionFailure{Reason: "row count mismatch", Expected: strconv.Itoa(c.N), Actual: strconv.Itoa(len(r.Rows))}
	}
	return nil
}

func (f RowFieldEquals) evaluate(r *response.Response) *failure.AssertionFailure {
	path := fmt.Sprintf("row %d column %s", f.Row, f.Column)
	if r.Rows == nil {
		return &failure.AssertionFailure{Reason: "no query result", Path: path, Expected: f.Expected}
	}
	if f.Row < 0 || f.Row >= len(r.Rows) {
		return &failure.AssertionFailure{
			Reason:   fmt.Sprintf("row index out of range, result has %d rows", len(r.Rows)),
			Path:     path,
			Expected: f.Expected,
		}
	}
	v, ok := response.Field(r.Rows[f.Row], f.Column)
	if !ok {
		return &failure.AssertionFailure{Reason: "column not found", Path: path, Expected: f.Expected}
	}
	if actual := vars.String(v); actual != f.Expected {
		return &failure.AssertionFailure{Reason: "value mismatch", Path: path, Expected: f.Expected, Actual: actual}
	}
	return nil
}

func (c ColumnPresent) evaluate(r *response.Response) *failure.AssertionFailure {
	if len(r.Rows) == 0 {
		return &failure.AssertionFailure{Reason: "no rows to inspect", Path: c.Column, Expected: c.Column}
	}
	if _, ok := response.Field(r.Rows[0], c.Column); !ok {
		cols := make([]string, 0, len(r.Rows[0]))
		for k := range r.Rows[0] {
			cols = append(cols, k)
		}
		sort.Strings(cols)
		return &failure.AssertionFailure{Reason: "column not found", Path: c.Column, Expected: c.Column, Actual: strings.Join(cols, ",")}
	}
	return nil
}

func (a AffectedRowsEquals) evaluate(r *response.Response) *failure.AssertionFailure {
	want := strconv.FormatInt(a.N, 10)
	if r.AffectedRows == nil {
		return &failure.AssertionFailure{Reason: "no update result", Expected: want}
	}
	if *r.AffectedRows != a.N {
		return &failure.AssertionFailure{Reason: "affected rows mismatch", Expected: want, Actual: strconv.FormatInt(*r.AffectedRows, 10)}
	}
	return nil
}

const maxActual = 512

func truncate(s string) string {
	if len(s) <= maxActual {
		return s
	}
	return s[:maxActual] + "..."
}

