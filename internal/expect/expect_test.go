package expect

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriserin/gherkit/internal/failure"
	"github.com/chriserin/gherkit/internal/response"
)

func assertionFailure(t *testing.T, err error) *failure.AssertionFailure {
	t.Helper()
	var af *failure.AssertionFailure
	require.True(t, errors.As(err, &af), "expected assertion failure, got %v", err)
	return af
}

func TestStatusEquals(t *testing.T) {
	require.NoError(t, Evaluate(response.FromHTTP(200, nil, nil), StatusEquals{Code: 200}))

	af := assertionFailure(t, Evaluate(response.FromHTTP(404, nil, nil), StatusEquals{Code: 200}))
	assert.Equal(t, "status-equals", af.Assertion)
	assert.Equal(t, "200", af.Expected)
	assert.Equal(t, "404", af.Actual)
}

func TestStatusEquals_NoStatusOnResponse(t *testing.T) {
	af := assertionFailure(t, Evaluate(response.FromRows(nil), StatusEquals{Code: 200}))
	assert.Equal(t, "response has no status code", af.Reason)
}

func TestStatusSuccessful(t *testing.T) {
	for _, code := range []int{200, 201, 204, 299} {
		assert.NoError(t, Evaluate(response.FromHTTP(code, nil, nil), StatusSuccessful{}), "code %d", code)
	}
	for _, code := range []int{199, 300, 404, 500} {
		af := assertionFailure(t, Evaluate(response.FromHTTP(code, nil, nil), StatusSuccessful{}))
		assert.Equal(t, "2xx", af.Expected)
	}
}

func TestHeaderEquals(t *testing.T) {
	r := response.FromHTTP(200, map[string]string{"Content-Type": "application/json; charset=utf-8"}, nil)
	require.NoError(t, Evaluate(r, HeaderEquals{Name: "content-type", Value: "application/json; charset=utf-8"}))

	af := assertionFailure(t, Evaluate(r, HeaderEquals{Name: "Content-Type", Value: "text/html"}))
	assert.Equal(t, "header mismatch", af.Reason)
	assert.Equal(t, "Content-Type", af.Path)

	af = assertionFailure(t, Evaluate(r, HeaderEquals{Name: "X-Trace", Value: "1"}))
	assert.Equal(t, "header not found", af.Reason)
}

func TestJSONPathEquals_CoercesScalars(t *testing.T) {
	r := response.FromHTTP(200, nil, []byte(`{"id": 1, "userId": 1, "done": false, "user": {"name": "Leanne"}}`))
	require.NoError(t, Evaluate(r, JSONPathEquals{Path: "id", Expected: "1"}))
	require.NoError(t, Evaluate(r, JSONPathEquals{Path: "done", Expected: "false"}))
	require.NoError(t, Evaluate(r, JSONPathEquals{Path: "user.name", Expected: "Leanne"}))
}

func TestJSONPathEquals_MissingPathDistinctFromMismatch(t *testing.T) {
	r := response.FromHTTP(200, nil, []byte(`{"id": 1}`))

	missing := assertionFailure(t, Evaluate(r, JSONPathEquals{Path: "missing", Expected: "x"}))
	assert.Equal(t, "path not found", missing.Reason)
	assert.Equal(t, "missing", missing.Path)

	mismatch := assertionFailure(t, Evaluate(r, JSONPathEquals{Path: "id", Expected: "2"}))
	assert.Equal(t, "value mismatch", mismatch.Reason)
	assert.Equal(t, "id", mismatch.Path)
	assert.Equal(t, "2", mismatch.Expected)
	assert.Equal(t, "1", mismatch.Actual)
}

func TestJSONPathEquals_NonJSONBody(t *testing.T) {
	af := assertionFailure(t, Evaluate(response.FromHTTP(200, nil, []byte("<html>")), JSONPathEquals{Path: "id", Expected: "1"}))
	assert.Equal(t, "response body is not JSON", af.Reason)
	assert.Equal(t, "<html>", af.Actual)
}

func TestBodyContains(t *testing.T) {
	r := response.FromHTTP(200, nil, []byte("hello world"))
	require.NoError(t, Evaluate(r, BodyContains{Text: "lo wo"}))
	af := assertionFailure(t, Evaluate(r, BodyContains{Text: "bye"}))
	assert.Equal(t, "bye", af.Expected)
	assert.Equal(t, "hello world", af.Actual)
}

func TestBodyEquals(t *testing.T) {
	r := response.FromText("Example Domain")
	require.NoError(t, Evaluate(r, BodyEquals{Text: "Example Domain"}))
	assert.Error(t, Evaluate(r, BodyEquals{Text: "Example"}))
}

func TestIsJSON(t *testing.T) {
	require.NoError(t, Evaluate(response.FromHTTP(200, nil, []byte(`[1,2]`)), IsJSON{}))
	assert.Error(t, Evaluate(response.FromHTTP(200, nil, []byte(`not json`)), IsJSON{}))
	assert.Error(t, Evaluate(response.FromHTTP(204, nil, nil), IsJSON{}))
}

func TestRowCountEquals(t *testing.T) {
	r := response.FromRows([]map[string]any{{"id": 1}, {"id": 2}})
	require.NoError(t, Evaluate(r, RowCountEquals{N: 2}))
	af := assertionFailure(t, Evaluate(r, RowCountEquals{N: 3}))
	assert.Equal(t, "3", af.Expected)
	assert.Equal(t, "2", af.Actual)

	require.NoError(t, Evaluate(response.FromRows(nil), RowCountEquals{N: 0}))
	assert.Error(t, Evaluate(response.FromHTTP(200, nil, nil), RowCountEquals{N: 0}))
}

func TestRowFieldEquals(t *testing.T) {
	r := response.FromRows([]map[string]any{{"id": int64(42), "title": []byte("hi")}})
	require.NoError(t, Evaluate(r, RowFieldEquals{Row: 0, Column: "id", Expected: "42"}))
	require.NoError(t, Evaluate(r, RowFieldEquals{Row: 0, Column: "title", Expected: "hi"}))

	af := assertionFailure(t, Evaluate(r, RowFieldEquals{Row: 0, Column: "id", Expected: "41"}))
	assert.Equal(t, "value mismatch", af.Reason)
	assert.Equal(t, "row 0 column id", af.Path)
}

func TestRowFieldEquals_OutOfRange(t *testing.T) {
	r := response.FromRows([]map[string]any{{"id": 1}})
	af := assertionFailure(t, Evaluate(r, RowFieldEquals{Row: 1, Column: "id", Expected: "1"}))
	assert.Contains(t, af.Reason, "out of range")
	assert.Equal(t, "row 1 column id", af.Path)

	af = assertionFailure(t, Evaluate(r, RowFieldEquals{Row: 0, Column: "nope", Expected: "1"}))
	assert.Equal(t, "column not found", af.Reason)
}

func TestColumnPresent(t *testing.T) {
	r := response.FromRows([]map[string]any{{"id": 1, "name": "x"}})
	require.NoError(t, Evaluate(r, ColumnPresent{Column: "name"}))
	af := assertionFailure(t, Evaluate(r, ColumnPresent{Column: "email"}))
	assert.Equal(t, "id,name", af.Actual)
}

func TestAffectedRowsEquals(t *testing.T) {
	require.NoError(t, Evaluate(response.FromAffected(3), AffectedRowsEquals{N: 3}))
	af := assertionFailure(t, Evaluate(response.FromAffected(1), AffectedRowsEquals{N: 3}))
	assert.Equal(t, "1", af.Actual)
	assert.Error(t, Evaluate(response.FromRows(nil), AffectedRowsEquals{N: 0}))
}

func TestEvaluate_NilResponse(t *testing.T) {
	af := assertionFailure(t, Evaluate(nil, StatusEquals{Code: 200}))
	assert.Equal(t, "no response captured", af.Reason)
}

func TestEvaluate_DoesNotMutateResponse(t *testing.T) {
	r := response.FromHTTP(200, map[string]string{"A": "b"}, []byte(`{"id": 1}`))
	before := *r
	_ = Evaluate(r, JSONPathEquals{Path: "id", Expected: "2"})
	_ = Evaluate(r, HeaderEquals{Name: "a", Value: "c"})
	assert.Equal(t, before, *r)
}
