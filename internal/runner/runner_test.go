package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/chriserin/gherkit/internal/browser"
	"github.com/chriserin/gherkit/internal/config"
	"github.com/chriserin/gherkit/internal/dispatch"
	"github.com/chriserin/gherkit/internal/failure"
	"github.com/chriserin/gherkit/internal/locator"
	"github.com/chriserin/gherkit/internal/parser"
	"github.com/chriserin/gherkit/internal/report"
)

type memorySink struct {
	mu       sync.Mutex
	started  []string
	events   []report.Event
	finished []report.Result
}

func (m *memorySink) ScenarioStarted(s report.Scenario) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, s.Name)
	return nil
}

func (m *memorySink) Emit(e report.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memorySink) ScenarioFinished(r report.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, r)
	return nil
}

func (m *memorySink) Close() error { return nil }

func (m *memorySink) eventsFor(name string) []report.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []report.Event
	for _, e := range m.events {
		if e.Scenario.Name == name {
			out = append(out, e)
		}
	}
	return out
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type shotDriver struct{}

func (shotDriver) Navigate(context.Context, string) error { return nil }
func (shotDriver) WaitLoad(context.Context) error         { return nil }
func (shotDriver) Act(context.Context, locator.Descriptor, browser.Action, string) (browser.Outcome, error) {
	return browser.Outcome{}, errors.New("element detached")
}
func (shotDriver) Title(context.Context) (string, error)      { return "", nil }
func (shotDriver) URL(context.Context) (string, error)        { return "", nil }
func (shotDriver) Screenshot(context.Context) ([]byte, error) { return pngHeader, nil }
func (shotDriver) Close() error                               { return nil }

func newEnv(t *testing.T) *dispatch.Env {
	t.Helper()
	reg := locator.NewRegistry()
	require.NoError(t, reg.LoadBytes("elements.yaml", []byte("home:\n  submit:\n    type: id\n    value: go\n")))
	env := dispatch.NewEnv(reg, config.Default(), zap.NewNop())
	env.NewBrowser = func() (browser.Driver, error) { return shotDriver{}, nil }
	return env
}

func parse(t *testing.T, name, content string) *parser.ParsedFile {
	t.Helper()
	return parser.ParseFile(name, []byte(content))
}

const posts = `@api
Feature: Posts

  Background:
    Given I set variable "base" to "https://api.example.test"

  Scenario: passes
    Given I set variable "post_id" to "42"
    Then I set variable "copy" to "{post_id}"

  @wip
  Scenario: fails then skips
    Given I set variable "a" to "{missing}"
    Then I set variable "b" to "1"
    And I set variable "c" to "2"
`

func TestRun_FailureSkipsRemainingStepsOnly(t *testing.T) {
	sink := &memorySink{}
	r := New(newEnv(t), sink, zap.NewNop(), Options{Parallel: 2})

	sum, err := r.Run(context.Background(), []*parser.ParsedFile{parse(t, "features/posts.feature", posts)})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Passed)
	assert.Equal(t, 1, sum.Failed)
	assert.False(t, sum.OK())

	passed := sum.Scenarios[0]
	assert.Equal(t, "passes", passed.Name)
	assert.Equal(t, report.Passed, passed.Outcome)
	require.Len(t, passed.Steps, 3, "background step comes first")

	failed := sum.Scenarios[1]
	assert.Equal(t, report.Failed, failed.Outcome)
	assert.Equal(t, failure.KindUndefinedVariable, failure.KindOf(failed.Err))
	outcomes := []report.Outcome{}
	for _, s := range failed.Steps {
		outcomes = append(outcomes, s.Outcome)
	}
	assert.Equal(t, []report.Outcome{report.Passed, report.Failed, report.Skipped, report.Skipped}, outcomes)

	events := sink.eventsFor("fails then skips")
	require.Len(t, events, 4)
	assert.Equal(t, failure.KindUndefinedVariable, events[1].Kind)
	assert.Contains(t, events[1].Diagnostic, `undefined variable "missing"`)
	assert.Equal(t, report.Skipped, events[3].Outcome)
	assert.Len(t, sink.finished, 2)
}

func TestRun_TagFilter(t *testing.T) {
	sink := &memorySink{}
	r := New(newEnv(t), sink, zap.NewNop(), Options{Filter: ParseFilter("@api, ~@wip")})

	sum, err := r.Run(context.Background(), []*parser.ParsedFile{parse(t, "features/posts.feature", posts)})
	require.NoError(t, err)
	require.Len(t, sum.Scenarios, 1)
	assert.Equal(t, "passes", sum.Scenarios[0].Name)
	assert.Equal(t, []string{"passes"}, sink.started)
}

func TestRun_ParseErrorsStopTheRun(t *testing.T) {
	sink := &memorySink{}
	r := New(newEnv(t), sink, zap.NewNop(), Options{})

	bad := parse(t, "features/bad.feature", "Feature: Bad\n  Scenario Outline: nope\n    Given x\n")
	_, err := r.Run(context.Background(), []*parser.ParsedFile{bad})

	var pe *ParseErrors
	require.True(t, errors.As(err, &pe))
	assert.Len(t, pe.Files, 1)
	assert.Empty(t, sink.started)
}

func TestRun_ScreenshotAttachedOnFailure(t *testing.T) {
	sink := &memorySink{}
	r := New(newEnv(t), sink, zap.NewNop(), Options{ScreenshotOnFailure: true})

	f := parse(t, "features/ui.feature", `Feature: UI
  Scenario: click fails
    Given I open page "home" with URL "https://example.test"
    When I click element "submit"
`)
	sum, err := r.Run(context.Background(), []*parser.ParsedFile{f})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Failed)
	assert.Equal(t, failure.KindUIAction, failure.KindOf(sum.Scenarios[0].Err))

	events := sink.eventsFor("click fails")
	require.Len(t, events, 2)
	require.Len(t, events[1].Attachments, 1)
	assert.Equal(t, "image/png", events[1].Attachments[0].MediaType)
	assert.Equal(t, pngHeader, events[1].Attachments[0].Data)
	assert.Contains(t, events[1].Input, "click home.submit")
}

func TestRun_ActionStepsCarryEvidence(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 7}`))
	}))
	defer srv.Close()

	sink := &memorySink{}
	r := New(newEnv(t), sink, zap.NewNop(), Options{})
	f := parse(t, "features/api.feature", `Feature: API
  Scenario: fetch a post
    Given I initialize API client with base URL "`+srv.URL+`"
    When I send "GET" request to "/posts/7"
    Then the response status code should be "200"
`)
	sum, err := r.Run(context.Background(), []*parser.ParsedFile{f})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Passed)

	events := sink.eventsFor("fetch a post")
	require.Len(t, events, 3)
	assert.Empty(t, events[0].Attachments)
	assert.Empty(t, events[2].Attachments)

	require.Len(t, events[1].Attachments, 1)
	att := events[1].Attachments[0]
	assert.Equal(t, "API request", att.Name)
	assert.Equal(t, "application/json", att.MediaType)
	assert.Equal(t, "GET", gjson.GetBytes(att.Data, "request.method").String())
	assert.Equal(t, srv.URL+"/posts/7", gjson.GetBytes(att.Data, "request.url").String())
	assert.Equal(t, int64(200), gjson.GetBytes(att.Data, "response.status_code").Int())
	assert.Equal(t, int64(7), gjson.GetBytes(att.Data, "response.body.id").Int())
}

func TestRun_ParallelScenariosAreIsolated(t *testing.T) {
	env := newEnv(t)
	var (
		running atomic.Int32
		peak    atomic.Int32
		leaks   atomic.Int32
	)
	barrier := func(ctx context.Context, sc *dispatch.Scenario, c dispatch.Call) error {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return nil
	}
	check := func(ctx context.Context, sc *dispatch.Scenario, c dispatch.Call) error {
		v, err := sc.Store().Get("owner")
		if err != nil {
			return err
		}
		if v != c.Args[0] {
			leaks.Add(1)
			return fmt.Errorf("saw %v", v)
		}
		return nil
	}
	require.NoError(t, env.Steps.Register("test.barrier", "everyone waits", barrier))
	require.NoError(t, env.Steps.Register("test.owner", `the owner is "{name}"`, check))

	content := "Feature: Isolation\n"
	for i := range 6 {
		content += fmt.Sprintf("  Scenario: s%d\n    Given I set variable \"owner\" to \"s%d\"\n    When everyone waits\n    Then the owner is \"s%d\"\n", i, i, i)
	}

	r := New(env, nil, zap.NewNop(), Options{Parallel: 3})
	sum, err := r.Run(context.Background(), []*parser.ParsedFile{parse(t, "features/iso.feature", content)})
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Passed)
	assert.Zero(t, leaks.Load())
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Greater(t, peak.Load(), int32(1))
}

func TestRun_CancelledContextSkipsScenarios(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(newEnv(t), nil, zap.NewNop(), Options{})

	sum, err := r.Run(ctx, []*parser.ParsedFile{parse(t, "features/posts.feature", posts)})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Skipped)
}

func TestParseFilter(t *testing.T) {
	f := ParseFilter("smoke, @api, ~@wip, not slow")
	assert.Equal(t, []string{"@smoke", "@api"}, f.Include)
	assert.Equal(t, []string{"@wip", "@slow"}, f.Exclude)

	assert.True(t, f.Match([]string{"@api"}))
	assert.False(t, f.Match([]string{"@api", "@wip"}))
	assert.False(t, f.Match([]string{"@db"}))
	assert.True(t, ParseFilter("").Match(nil))
	assert.False(t, ParseFilter("~wip").Match([]string{"@wip"}))
}
