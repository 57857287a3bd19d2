package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Cucumber collects results and writes them as a single cucumber JSON
// document on Close.
type Cucumber struct {
	path string

	mu        sync.Mutex
	features  map[string]*cukeFeature
	scenarios map[string]*cukeElement
}

type cukeFeature struct {
	URI      string         `json:"uri"`
	ID       string         `json:"id"`
	Keyword  string         `json:"keyword"`
	Name     string         `json:"name"`
	Elements []*cukeElement `json:"elements"`
}

type cukeElement struct {
	ID      string     `json:"id"`
	Keyword string     `json:"keyword"`
	Type    string     `json:"type"`
	Name    string     `json:"name"`
	Line    int        `json:"line"`
	Tags    []cukeTag  `json:"tags,omitempty"`
	Steps   []cukeStep `json:"steps"`
}

type cukeTag struct {
	Name string `json:"name"`
}

type cukeStep struct {
	Keyword    string          `json:"keyword"`
	Name       string          `json:"name"`
	Line       int             `json:"line"`
	Result     cukeResult      `json:"result"`
	Embeddings []cukeEmbedding `json:"embeddings,omitempty"`
}

// cukeEmbedding data is base64 in the document, which encoding/json does
// for byte slices.
type cukeEmbedding struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
	Name     string `json:"name,omitempty"`
}

type cukeResult struct {
	Status       string `json:"status"`
	Duration     int64  `json:"duration,omitempty"` // nanoseconds
	ErrorMessage string `json:"error_message,omitempty"`
}

func NewCucumber(path string) *Cucumber {
	return &Cucumber{
		path:      path,
		features:  make(map[string]*cukeFeature),
		scenarios: make(map[string]*cukeElement),
	}
}

func (c *Cucumber) ScenarioStarted(s Scenario) error {
	el := &cukeElement{
		ID:      slug(s.Feature) + ";" + slug(s.Name),
		Keyword: "Scenario",
		Type:    "scenario",
		Name:    s.Name,
		Line:    s.Line,
		Steps:   []cukeStep{},
	}
	for _, t := range s.Tags {
		el.Tags = append(el.Tags, cukeTag{Name: t})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.features[s.Path]
	if !ok {
		f = &cukeFeature{URI: s.Path, ID: slug(s.Feature), Keyword: "Feature", Name: s.Feature}
		c.features[s.Path] = f
	}
	f.Elements = append(f.Elements, el)
	c.scenarios[s.ID] = el
	return nil
}

func (c *Cucumber) Emit(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.scenarios[e.Scenario.ID]
	if !ok {
		return fmt.Errorf("cucumber: step for unknown scenario %q", e.Scenario.ID)
	}
	step := cukeStep{
		Keyword: e.Keyword + " ",
		Name:    e.Step,
		Line:    e.Line,
		Result: cukeResult{
			Status:       string(e.Outcome),
			Duration:     e.Duration.Nanoseconds(),
			ErrorMessage: e.Diagnostic,
		},
	}
	for _, att := range e.Attachments {
		step.Embeddings = append(step.Embeddings, cukeEmbedding{Data: att.Data, MimeType: att.MediaType, Name: att.Name})
	}
	el.Steps = append(el.Steps, step)
	return nil
}

func (c *Cucumber) ScenarioFinished(Result) error { return nil }

func (c *Cucumber) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	features := make([]*cukeFeature, 0, len(c.features))
	for _, f := range c.features {
		sort.Slice(f.Elements, func(i, j int) bool { return f.Elements[i].Line < f.Elements[j].Line })
		features = append(features, f)
	}
	sort.Slice(features, func(i, j int) bool { return features[i].URI < features[j].URI })

	data, err := json.MarshalIndent(features, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cucumber report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating cucumber report dir: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("writing cucumber report: %w", err)
	}
	return nil
}

func slug(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), "-"))
}
