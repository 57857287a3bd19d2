package dispatch

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Evidence is a record of what one step exchanged with a collaborator. The
// runner attaches it to the step's report event.
type Evidence struct {
	Name      string
	MediaType string
	Data      []byte
}

type apiEvidence struct {
	Time     time.Time    `json:"timestamp"`
	Request  apiRequest   `json:"request"`
	Response *apiExchange `json:"response,omitempty"`
	Error    string       `json:"error,omitempty"`
}

type apiRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Query   url.Values        `json:"query,omitempty"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body,omitempty"`
}

type apiExchange struct {
	Status  int               `json:"status_code"`
	Headers map[string]string `json:"headers"`
	Body    any               `json:"body,omitempty"`
}

type sqlEvidence struct {
	Time     time.Time        `json:"timestamp"`
	SQL      string           `json:"query"`
	Params   []any            `json:"params,omitempty"`
	Rows     []map[string]any `json:"result,omitempty"`
	RowCount *int             `json:"row_count,omitempty"`
	Affected *int64           `json:"affected_rows,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// TakeEvidence returns what was recorded since the previous call and
// forgets it.
func (sc *Scenario) TakeEvidence() []Evidence {
	out := sc.evidence
	sc.evidence = nil
	return out
}

func (sc *Scenario) recordJSON(name string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		sc.logger.Warn("Evidence not recorded", zap.String("name", name), zap.Error(err))
		return
	}
	sc.evidence = append(sc.evidence, Evidence{Name: name, MediaType: "application/json", Data: data})
}

func (sc *Scenario) recordImage(name string, img []byte) {
	sc.evidence = append(sc.evidence, Evidence{Name: name, MediaType: http.DetectContentType(img), Data: img})
}

// payload keeps JSON bodies structured in the record and everything else
// as text.
func payload(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return string(b)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
