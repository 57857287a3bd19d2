// Package httpclient sends API step requests over net/http.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/chriserin/gherkit/internal/logging"
)

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   url.Values
	Body    []byte
}

type Reply struct {
	Status   int
	Headers  map[string]string
	Body     []byte
	Duration time.Duration
}

// Client is the API collaborator a scenario talks to.
type Client interface {
	Send(ctx context.Context, req Request) (Reply, error)
}

type HTTP struct {
	client *http.Client
	logger *zap.Logger
}

// New returns a client without its own timeout; callers bound each Send
// with the context.
func New(logger *zap.Logger) *HTTP {
	return &HTTP{
		client: &http.Client{},
		logger: logging.Component(logger, "HTTPClient"),
	}
}

func Build(ctx context.Context, r Request) (*http.Request, error) {
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(r.Method), r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if len(r.Body) > 0 && req.Header.Get("Content-Type") == "" && json.Valid(r.Body) {
		req.Header.Set("Content-Type", "application/json")
	}

	if len(r.Query) != 0 {
		q := req.URL.Query()
		for k, vs := range r.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
	return req, nil
}

func (c *HTTP) Send(ctx context.Context, r Request) (Reply, error) {
	req, err := Build(ctx, r)
	if err != nil {
		return Reply{}, err
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return Reply{Duration: time.Since(start)}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{Status: resp.StatusCode, Duration: time.Since(start)}, fmt.Errorf("reading response body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		headers[k] = strings.Join(v, ", ")
	}

	reply := Reply{
		Status:   resp.StatusCode,
		Headers:  headers,
		Body:     body,
		Duration: time.Since(start),
	}
	c.logger.Debug("Request sent",
		zap.String("method", req.Method),
		zap.String("url", req.URL.String()),
		zap.Int("status", reply.Status),
		zap.Duration("duration", reply.Duration),
	)
	return reply, nil
}

// Join resolves endpoint against base. An absolute endpoint is returned
// unchanged.
func Join(base, endpoint string) (string, error) {
	if u, err := url.Parse(endpoint); err == nil && u.IsAbs() {
		return endpoint, nil
	}
	if base == "" {
		return "", fmt.Errorf("no base URL for relative endpoint %q", endpoint)
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(endpoint, "/"), nil
}
