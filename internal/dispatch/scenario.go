package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chriserin/gherkit/internal/browser"
	"github.com/chriserin/gherkit/internal/config"
	"github.com/chriserin/gherkit/internal/database"
	"github.com/chriserin/gherkit/internal/failure"
	"github.com/chriserin/gherkit/internal/httpclient"
	"github.com/chriserin/gherkit/internal/interp"
	"github.com/chriserin/gherkit/internal/locator"
	"github.com/chriserin/gherkit/internal/logging"
	"github.com/chriserin/gherkit/internal/response"
	"github.com/chriserin/gherkit/internal/vars"
)

// Env holds what every scenario of a run shares. The registry is read-only
// once scenarios start.
type Env struct {
	Registry *locator.Registry
	Settings config.Settings
	Logger   *zap.Logger
	Steps    *Table

	NewHTTP    func() httpclient.Client
	NewBrowser func() (browser.Driver, error)
	OpenDB     func(ctx context.Context, cfg config.Database) (database.Conn, error)
	Sleep      func(ctx context.Context, d time.Duration) error
}

// NewEnv wires the real collaborators and the built-in step library.
func NewEnv(reg *locator.Registry, settings config.Settings, logger *zap.Logger) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{
		Registry: reg,
		Settings: settings,
		Logger:   logger,
		Steps:    Builtin(),
		NewHTTP: func() httpclient.Client {
			return httpclient.New(logger)
		},
		NewBrowser: func() (browser.Driver, error) {
			return browser.Launch(browser.OptionsFrom(settings.Browser), logger)
		},
		OpenDB: func(ctx context.Context, cfg config.Database) (database.Conn, error) {
			return database.Open(ctx, cfg, logger)
		},
		Sleep: sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Scenario is the state of one running scenario. It is not safe for
// concurrent use; steps of a scenario run one at a time.
type Scenario struct {
	env    *Env
	logger *zap.Logger
	store  *vars.Store
	interp *interp.Interpolator

	last        *response.Response
	headers     map[string]string
	queryParams url.Values
	apiBase     string
	page        string
	input       string
	evidence    []Evidence

	http    httpclient.Client
	browser browser.Driver
	db      database.Conn
	dbs     map[string]database.Conn
}

func (e *Env) NewScenario(name string) *Scenario {
	store := vars.NewStore()
	return &Scenario{
		env:     e,
		logger:  logging.Component(e.Logger, "Dispatch").With(zap.String("scenario", name)),
		store:   store,
		interp:  interp.New(store),
		headers: make(map[string]string),
		dbs:     make(map[string]database.Conn),
	}
}

func (sc *Scenario) Store() *vars.Store { return sc.store }

// Last is the most recent action result, or nil.
func (sc *Scenario) Last() *response.Response { return sc.last }

// Page is the page the last open-page step named.
func (sc *Scenario) Page() string { return sc.page }

// Reset clears the variables, the last response, request headers, unread
// evidence and the current page. Open collaborators stay open until Close.
func (sc *Scenario) Reset() {
	sc.store.Clear()
	sc.last = nil
	clear(sc.headers)
	sc.queryParams = nil
	sc.apiBase = ""
	sc.page = ""
	sc.input = ""
	sc.evidence = nil
}

// Run matches text against the step table and dispatches it. Errors carry
// text as the failing step.
func (sc *Scenario) Run(ctx context.Context, text, body string, table [][]string) (*response.Response, error) {
	id, args, ok := sc.env.Steps.Match(text)
	if !ok {
		return sc.last, &failure.StepError{Step: text, Err: fmt.Errorf("undefined step")}
	}
	r, err := sc.Dispatch(ctx, id, args, body, table)
	var se *failure.StepError
	if errors.As(err, &se) {
		se.Step = text
	}
	return r, err
}

// Dispatch interpolates args, body and table cells, then runs the handler
// registered under id. It returns the scenario's latest response. Any
// error comes back as a *failure.StepError naming the interpolated input.
func (sc *Scenario) Dispatch(ctx context.Context, id string, args []string, body string, table [][]string) (*response.Response, error) {
	b, ok := sc.env.Steps.byID[id]
	if !ok {
		return sc.last, fmt.Errorf("no step registered as %q", id)
	}
	step := render(b.pattern, args)

	call := Call{Args: make([]string, len(args))}
	for i, a := range args {
		if b.raw[i] {
			call.Args[i] = a
			continue
		}
		s, err := sc.interp.Interpolate(a)
		if err != nil {
			return sc.last, &failure.StepError{Step: step, Err: err}
		}
		call.Args[i] = s
	}
	var err error
	if call.Body, err = sc.interp.Interpolate(body); err != nil {
		return sc.last, &failure.StepError{Step: step, Err: err}
	}
	if table != nil {
		call.Table = make([][]string, len(table))
		for i, row := range table {
			if call.Table[i], err = sc.interp.InterpolateAll(row); err != nil {
				return sc.last, &failure.StepError{Step: step, Err: err}
			}
		}
	}

	sc.input = ""
	if err := b.handler(ctx, sc, call); err != nil {
		input := sc.input
		if input == "" {
			input = render(b.pattern, call.Args)
			if call.Body != "" {
				input += "\n" + call.Body
			}
		}
		return sc.last, &failure.StepError{Step: step, Input: input, Err: err}
	}
	return sc.last, nil
}

// sent records the input handed to a collaborator for error reports.
func (sc *Scenario) sent(format string, a ...any) {
	sc.input = fmt.Sprintf(format, a...)
}

// bound derives a context for one collaborator call.
func bound(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// element resolves an element reference. "page.element" names the page
// explicitly; a bare name resolves against the current page. A dotted name
// that is neither reports the lookup on the named page.
func (sc *Scenario) element(ref string) (locator.Descriptor, error) {
	page, name, explicit := strings.Cut(ref, ".")
	if !explicit {
		return sc.env.Registry.Resolve(sc.page, ref)
	}
	d, err := sc.env.Registry.Resolve(page, name)
	if err == nil {
		return d, nil
	}
	if sc.page != "" {
		if d, bareErr := sc.env.Registry.Resolve(sc.page, ref); bareErr == nil {
			return d, nil
		}
	}
	return locator.Descriptor{}, err
}

// Screenshot captures the current page when a browser is open.
func (sc *Scenario) Screenshot(ctx context.Context) ([]byte, bool) {
	if sc.browser == nil {
		return nil, false
	}
	ctx, cancel := bound(ctx, sc.env.Settings.Timeouts.Action())
	defer cancel()
	img, err := sc.browser.Screenshot(ctx)
	if err != nil {
		sc.logger.Warn("Screenshot failed", zap.Error(err))
		return nil, false
	}
	return img, true
}

// Close releases every collaborator the scenario acquired.
func (sc *Scenario) Close() error {
	var errs []error
	if sc.browser != nil {
		errs = append(errs, sc.browser.Close())
		sc.browser = nil
	}
	for name, conn := range sc.dbs {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database %s: %w", name, err))
		}
	}
	clear(sc.dbs)
	sc.db = nil
	sc.http = nil
	return errors.Join(errs...)
}

func (sc *Scenario) httpClient() httpclient.Client {
	if sc.http == nil {
		sc.http = sc.env.NewHTTP()
	}
	return sc.http
}

func (sc *Scenario) driver() (browser.Driver, error) {
	if sc.browser != nil {
		return sc.browser, nil
	}
	d, err := sc.env.NewBrowser()
	if err != nil {
		return nil, failure.Action(failure.UI, "launch", err)
	}
	sc.browser = d
	return d, nil
}

func (sc *Scenario) openPage() (browser.Driver, error) {
	if sc.browser == nil {
		return nil, failure.Action(failure.UI, "page", errors.New("no page open"))
	}
	return sc.browser, nil
}

func (sc *Scenario) conn() (database.Conn, error) {
	if sc.db == nil {
		return nil, failure.Action(failure.Database, "query", errors.New("not connected, connect to a database first"))
	}
	return sc.db, nil
}
