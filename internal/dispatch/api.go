package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chriserin/gherkit/internal/expect"
	"github.com/chriserin/gherkit/internal/failure"
	"github.com/chriserin/gherkit/internal/httpclient"
	"github.com/chriserin/gherkit/internal/response"
)

func registerAPI(t *Table) {
	t.mustRegister("api.init", `I initialize API client with base URL "{base_url}"`, apiInit)
	t.mustRegister("api.init.file", `I initialize API client with config file "{config_file}" and value "{yaml_path}"`, apiInitFromFile)
	t.mustRegister("api.init.configured", `I initialize API client with configured base URL`, apiInitConfigured)
	t.mustRegister("api.header", `I set API request header "{name}" to "{value}"`, apiHeader)
	t.mustRegister("api.auth", `I set API authentication as "{auth_type}" with credentials "{credentials}"`, apiAuth)

	t.mustRegister("api.send.file", `I send "{method}" request to "{endpoint}" with JSON file "{json_file}"`, apiSendFile)
	t.mustRegister("api.send.body", `I send "{method}" request to "{endpoint}" with request body`, apiSendBody)
	t.mustRegister("api.send.query", `I send "{method}" request to "{endpoint}" with query parameters`, apiSendQuery)
	t.mustRegister("api.send", `I send "{method}" request to "{endpoint}"`, apiSendPlain)

	t.mustRegister("api.status", `the response status code should be "{status}"`, apiStatus)
	t.mustRegister("api.status.ok", `the response status code should be successful`, check(expect.StatusSuccessful{}))
	t.mustRegister("api.header.equals", `the response header "{name}" should be "{value}"`, apiHeaderEquals)
	t.mustRegister("api.json.equals", `the response JSON value for "{path}" should be "{expected}"`, apiJSONEquals)
	t.mustRegister("api.text", `the response should contain text "{text}"`, apiContains)
	t.mustRegister("api.json", `the response should be in JSON format`, check(expect.IsJSON{}))
	t.mustRegister("api.save", `I save the response JSON value for "{path}" as "{variable}"`, apiSave)
}

func apiInit(_ context.Context, sc *Scenario, c Call) error {
	return sc.initAPI(c.Args[0])
}

func apiInitFromFile(_ context.Context, sc *Scenario, c Call) error {
	base, err := sc.env.Settings.LookupFile(c.Args[0], c.Args[1])
	if err != nil {
		return err
	}
	return sc.initAPI(base)
}

func apiInitConfigured(_ context.Context, sc *Scenario, _ Call) error {
	base, err := sc.env.Settings.APIBase()
	if err != nil {
		return &failure.ConfigurationError{Source: "settings", Reason: err.Error()}
	}
	return sc.initAPI(base)
}

func (sc *Scenario) initAPI(base string) error {
	if _, err := url.ParseRequestURI(base); err != nil {
		return fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	sc.apiBase = base
	sc.httpClient()
	sc.logger.Info("API client initialized", zap.String("baseURL", base))
	return nil
}

func apiHeader(_ context.Context, sc *Scenario, c Call) error {
	sc.headers[c.Args[0]] = c.Args[1]
	return nil
}

// apiAuth sets the Authorization header (or, for apikey, a named header).
// Credentials are "token" for bearer, "user:password" for basic and
// "Header-Name:value" for apikey.
func apiAuth(_ context.Context, sc *Scenario, c Call) error {
	kind, creds := strings.ToLower(c.Args[0]), c.Args[1]
	switch kind {
	case "bearer":
		sc.headers["Authorization"] = "Bearer " + creds
	case "basic":
		if !strings.Contains(creds, ":") {
			return fmt.Errorf("basic credentials must be user:password")
		}
		sc.headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(creds))
	case "apikey", "api_key":
		name, value, ok := strings.Cut(creds, ":")
		if !ok || name == "" {
			return fmt.Errorf("api key credentials must be Header-Name:value")
		}
		sc.headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	default:
		return fmt.Errorf("unsupported authentication type %q", c.Args[0])
	}
	return nil
}

func apiSendPlain(ctx context.Context, sc *Scenario, c Call) error {
	return sc.send(ctx, c.Args[0], c.Args[1], nil)
}

func apiSendBody(ctx context.Context, sc *Scenario, c Call) error {
	return sc.send(ctx, c.Args[0], c.Args[1], []byte(c.Body))
}

func apiSendFile(ctx context.Context, sc *Scenario, c Call) error {
	path := filepath.Join(sc.env.Settings.APIDataDir, c.Args[2])
	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}
	if !json.Valid(body) {
		return fmt.Errorf("%s is not valid JSON", path)
	}
	return sc.send(ctx, c.Args[0], c.Args[1], body)
}

// apiSendQuery reads a key/value table. The parameters stay set for later
// requests of the scenario.
func apiSendQuery(ctx context.Context, sc *Scenario, c Call) error {
	if len(c.Table) == 0 {
		return fmt.Errorf("query parameters need a table with key and value columns")
	}
	header := c.Table[0]
	if len(header) != 2 || header[0] != "key" || header[1] != "value" {
		return fmt.Errorf("query parameter table header must be | key | value |, got %v", header)
	}
	q := url.Values{}
	for _, row := range c.Table[1:] {
		q.Add(row[0], row[1])
	}
	sc.queryParams = q
	return sc.send(ctx, c.Args[0], c.Args[1], nil)
}

func (sc *Scenario) send(ctx context.Context, method, endpoint string, body []byte) error {
	target, err := httpclient.Join(sc.apiBase, endpoint)
	if err != nil {
		return failure.Action(failure.API, "send", err)
	}
	req := httpclient.Request{
		Method:  method,
		URL:     target,
		Headers: make(map[string]string, len(sc.headers)),
		Query:   sc.queryParams,
		Body:    body,
	}
	for k, v := range sc.headers {
		req.Headers[k] = v
	}

	sc.sent("%s %s", strings.ToUpper(method), target)
	if len(sc.queryParams) > 0 {
		sc.input += "?" + sc.queryParams.Encode()
	}
	if len(body) > 0 {
		sc.input += "\n" + string(body)
	}

	record := apiEvidence{
		Time: time.Now(),
		Request: apiRequest{
			Method:  strings.ToUpper(method),
			URL:     target,
			Query:   sc.queryParams,
			Headers: req.Headers,
			Body:    payload(body),
		},
	}

	ctx, cancel := bound(ctx, sc.env.Settings.Timeouts.Default())
	defer cancel()
	reply, err := sc.httpClient().Send(ctx, req)
	if err != nil {
		record.Error = err.Error()
		sc.recordJSON("API request", record)
		return failure.Action(failure.API, "send", err)
	}
	record.Response = &apiExchange{Status: reply.Status, Headers: reply.Headers, Body: payload(reply.Body)}
	sc.recordJSON("API request", record)
	sc.last = response.FromHTTP(reply.Status, reply.Headers, reply.Body)
	sc.logger.Info("Request sent",
		zap.String("method", strings.ToUpper(method)),
		zap.String("url", target),
		zap.Int("status", reply.Status),
	)
	return nil
}

func check(spec expect.Spec) Handler {
	return func(_ context.Context, sc *Scenario, _ Call) error {
		return expect.Evaluate(sc.last, spec)
	}
}

func apiStatus(_ context.Context, sc *Scenario, c Call) error {
	code, err := strconv.Atoi(c.Args[0])
	if err != nil {
		return fmt.Errorf("status code %q is not a number", c.Args[0])
	}
	return expect.Evaluate(sc.last, expect.StatusEquals{Code: code})
}

func apiHeaderEquals(_ context.Context, sc *Scenario, c Call) error {
	return expect.Evaluate(sc.last, expect.HeaderEquals{Name: c.Args[0], Value: c.Args[1]})
}

func apiJSONEquals(_ context.Context, sc *Scenario, c Call) error {
	return expect.Evaluate(sc.last, expect.JSONPathEquals{Path: c.Args[0], Expected: c.Args[1]})
}

func apiContains(_ context.Context, sc *Scenario, c Call) error {
	return expect.Evaluate(sc.last, expect.BodyContains{Text: c.Args[0]})
}

func apiSave(_ context.Context, sc *Scenario, c Call) error {
	v, err := response.Capture(sc.last, c.Args[0])
	if err != nil {
		return err
	}
	sc.store.Set(c.Args[1], v)
	sc.logger.Debug("Variable saved", zap.String("name", c.Args[1]), zap.String("path", c.Args[0]))
	return nil
}
