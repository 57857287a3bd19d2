package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/chriserin/gherkit/internal/failure"
)

// Allure writes one <uuid>-result.json per scenario, plus attachment files,
// in the layout the Allure command line reads. Timestamps are unix
// milliseconds.
type Allure struct {
	dir string

	mu      sync.Mutex
	pending map[string]*allureResult
}

type allureResult struct {
	UUID          string             `json:"uuid"`
	HistoryID     string             `json:"historyId"`
	Name          string             `json:"name"`
	FullName      string             `json:"fullName"`
	Status        string             `json:"status"`
	StatusDetails *allureDetails     `json:"statusDetails,omitempty"`
	Stage         string             `json:"stage"`
	Start         int64              `json:"start"`
	Stop          int64              `json:"stop"`
	Labels        []allureLabel      `json:"labels"`
	Steps         []allureStep       `json:"steps"`
	Attachments   []allureAttachment `json:"attachments"`
}

type allureStep struct {
	Name          string             `json:"name"`
	Status        string             `json:"status"`
	StatusDetails *allureDetails     `json:"statusDetails,omitempty"`
	Stage         string             `json:"stage"`
	Start         int64              `json:"start"`
	Stop          int64              `json:"stop"`
	Parameters    []allureParameter  `json:"parameters,omitempty"`
	Attachments   []allureAttachment `json:"attachments"`
}

type allureDetails struct {
	Message string `json:"message,omitempty"`
	Trace   string `json:"trace,omitempty"`
}

type allureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type allureParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type allureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

func NewAllure(dir string) (*Allure, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating allure results dir: %w", err)
	}
	return &Allure{dir: dir, pending: make(map[string]*allureResult)}, nil
}

func (a *Allure) ScenarioStarted(s Scenario) error {
	res := &allureResult{
		UUID:      uuid.NewString(),
		HistoryID: uuid.NewSHA1(uuid.NameSpaceURL, []byte(s.Path+"#"+s.Name)).String(),
		Name:      s.Name,
		FullName:  s.Feature + ": " + s.Name,
		Stage:     "running",
		Labels: []allureLabel{
			{Name: "feature", Value: s.Feature},
			{Name: "framework", Value: "gherkit"},
			{Name: "language", Value: "go"},
		},
		Steps:       []allureStep{},
		Attachments: []allureAttachment{},
	}
	for _, tag := range s.Tags {
		res.Labels = append(res.Labels, allureLabel{Name: "tag", Value: strings.TrimPrefix(tag, "@")})
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending[s.ID] = res
	return nil
}

func (a *Allure) Emit(e Event) error {
	a.mu.Lock()
	res, ok := a.pending[e.Scenario.ID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("allure: step for unknown scenario %q", e.Scenario.ID)
	}

	step := allureStep{
		Name:        strings.TrimSpace(e.Keyword + " " + e.Step),
		Status:      allureStatus(e.Outcome, e.Kind),
		Stage:       "finished",
		Start:       e.Start.UnixMilli(),
		Stop:        e.Start.Add(e.Duration).UnixMilli(),
		Attachments: []allureAttachment{},
	}
	if e.Input != "" && e.Input != e.Step {
		step.Parameters = []allureParameter{{Name: "input", Value: e.Input}}
	}
	if e.Diagnostic != "" {
		step.StatusDetails = &allureDetails{Message: e.Diagnostic}
	}
	for _, att := range e.Attachments {
		written, err := a.writeAttachment(att)
		if err != nil {
			return err
		}
		step.Attachments = append(step.Attachments, written)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	res.Steps = append(res.Steps, step)
	return nil
}

func (a *Allure) ScenarioFinished(r Result) error {
	a.mu.Lock()
	res, ok := a.pending[r.Scenario.ID]
	delete(a.pending, r.Scenario.ID)
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("allure: finish for unknown scenario %q", r.Scenario.ID)
	}

	res.Status = allureStatus(r.Outcome, r.Kind)
	res.Stage = "finished"
	res.Start = r.Start.UnixMilli()
	res.Stop = r.Stop.UnixMilli()
	if r.Diagnostic != "" {
		res.StatusDetails = &allureDetails{Message: r.Diagnostic}
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding allure result: %w", err)
	}
	path := filepath.Join(a.dir, res.UUID+"-result.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing allure result: %w", err)
	}
	return nil
}

// Close drops scenarios that never finished.
func (a *Allure) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.pending)
	return nil
}

func (a *Allure) writeAttachment(att Attachment) (allureAttachment, error) {
	source := uuid.NewString() + "-attachment" + extension(att.MediaType)
	if err := os.WriteFile(filepath.Join(a.dir, source), att.Data, 0o644); err != nil {
		return allureAttachment{}, fmt.Errorf("writing allure attachment: %w", err)
	}
	return allureAttachment{Name: att.Name, Source: source, Type: att.MediaType}, nil
}

// allureStatus maps assertion failures to "failed" and every other failure
// to "broken".
func allureStatus(o Outcome, kind failure.Kind) string {
	switch o {
	case Passed:
		return "passed"
	case Skipped:
		return "skipped"
	}
	if kind == failure.KindAssertion {
		return "failed"
	}
	return "broken"
}

func extension(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "application/json":
		return ".json"
	case "text/html":
		return ".html"
	case "text/plain":
		return ".txt"
	}
	return ""
}
