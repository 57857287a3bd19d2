package dispatch

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chriserin/gherkit/internal/browser"
	"github.com/chriserin/gherkit/internal/config"
	"github.com/chriserin/gherkit/internal/database"
	"github.com/chriserin/gherkit/internal/httpclient"
	"github.com/chriserin/gherkit/internal/locator"
)

type actCall struct {
	Loc    locator.Descriptor
	Action browser.Action
	Value  string
}

type fakeDriver struct {
	mu       sync.Mutex
	visited  []string
	acts     []actCall
	outcome  browser.Outcome
	actErr   error
	title    string
	url      string
	image    []byte
	closed   bool
	blockAct bool
}

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visited = append(f.visited, url)
	f.url = url
	return nil
}

func (f *fakeDriver) WaitLoad(context.Context) error { return nil }

func (f *fakeDriver) Act(ctx context.Context, loc locator.Descriptor, action browser.Action, value string) (browser.Outcome, error) {
	f.mu.Lock()
	f.acts = append(f.acts, actCall{Loc: loc, Action: action, Value: value})
	block := f.blockAct
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return browser.Outcome{}, ctx.Err()
	}
	return f.outcome, f.actErr
}

func (f *fakeDriver) Title(context.Context) (string, error)      { return f.title, nil }
func (f *fakeDriver) URL(context.Context) (string, error)        { return f.url, nil }
func (f *fakeDriver) Screenshot(context.Context) ([]byte, error) { return f.image, nil }

func (f *fakeDriver) Close() error {
	f.closed = true
	return nil
}

type sqlCall struct {
	SQL  string
	Args []any
}

type fakeConn struct {
	queries []sqlCall
	execs   []sqlCall
	rows    []map[string]any
	closed  bool
}

func (f *fakeConn) Query(_ context.Context, q string, args ...any) ([]map[string]any, error) {
	f.queries = append(f.queries, sqlCall{SQL: q, Args: args})
	return f.rows, nil
}

func (f *fakeConn) Execute(_ context.Context, q string, args ...any) (int64, error) {
	f.execs = append(f.execs, sqlCall{SQL: q, Args: args})
	return 1, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

type blockingHTTP struct{}

func (blockingHTTP) Send(ctx context.Context, _ httpclient.Request) (httpclient.Reply, error) {
	<-ctx.Done()
	return httpclient.Reply{}, ctx.Err()
}

const loginElements = `
login_page:
  username_input:
    type: css
    value: "#user"
  submit:
    type: xpath
    value: "//button[@type='submit']"
home_page:
  greeting:
    type: id
    value: hello
`

// testEnv wires fakes for the browser and database and the real HTTP
// client.
func testEnv(t *testing.T) (*Env, *fakeDriver, *fakeConn) {
	t.Helper()
	reg := locator.NewRegistry()
	require.NoError(t, reg.LoadBytes("elements.yaml", []byte(loginElements)))

	settings := config.Default()
	settings.APIDataDir = t.TempDir()
	settings.Screenshot.Dir = filepath.Join(t.TempDir(), "shots")

	env := NewEnv(reg, settings, zap.NewNop())
	driver := &fakeDriver{title: "Example Domain"}
	conn := &fakeConn{}
	env.NewBrowser = func() (browser.Driver, error) { return driver, nil }
	env.OpenDB = func(context.Context, config.Database) (database.Conn, error) { return conn, nil }
	env.Sleep = func(context.Context, time.Duration) error { return nil }
	return env, driver, conn
}

func run(t *testing.T, sc *Scenario, text string) {
	t.Helper()
	_, err := sc.Run(context.Background(), text, "", nil)
	require.NoError(t, err, text)
}
