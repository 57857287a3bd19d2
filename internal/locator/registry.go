package locator

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/chriserin/gherkit/internal/failure"
)

type Strategy string

const (
	ID    Strategy = "id"
	Class Strategy = "class"
	CSS   Strategy = "css"
	XPath Strategy = "xpath"
	Name  Strategy = "name"
)

func parseStrategy(s string) (Strategy, bool) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case ID:
		return ID, true
	case Class:
		return Class, true
	case CSS:
		return CSS, true
	case XPath:
		return XPath, true
	case Name:
		return Name, true
	}
	return "", false
}

// Descriptor locates one element on one page.
type Descriptor struct {
	Page     string
	Element  string
	Strategy Strategy
	Value    string
}

// Selector renders the descriptor as a CSS selector, or as the raw XPath
// expression for the xpath strategy.
func (d Descriptor) Selector() string {
	switch d.Strategy {
	case ID:
		return "#" + d.Value
	case Class:
		return "." + d.Value
	case Name:
		return fmt.Sprintf("[name='%s']", d.Value)
	default:
		return d.Value
	}
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s.%s {%s, %q}", d.Page, d.Element, d.Strategy, d.Value)
}

type key struct {
	page    string
	element string
}

type entry struct {
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

type source struct {
	name string
	data []byte
	path string
}

// Registry holds locator descriptors keyed by page and element. It is safe
// for concurrent Resolve calls; Load and Refresh take the write lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[key]Descriptor
	sources []source
}

func NewRegistry() *Registry {
	return &Registry{entries: map[key]Descriptor{}}
}

// Load merges a YAML file, or every .yaml/.yml file under a directory, into
// the registry. Later loads override earlier entries for the same key.
func (r *Registry) Load(path string) error {
	files, err := yamlFiles(path)
	if err != nil {
		return &failure.ConfigurationError{Source: path, Reason: err.Error()}
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return &failure.ConfigurationError{Source: f, Reason: err.Error()}
		}
		if err := r.load(source{name: f, data: data, path: f}); err != nil {
			return err
		}
	}
	return nil
}

// LoadBytes merges an in-memory YAML document. name is used in errors.
func (r *Registry) LoadBytes(name string, data []byte) error {
	return r.load(source{name: name, data: data})
}

func (r *Registry) load(src source) error {
	parsed, err := parse(src.name, src.data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, d := range parsed {
		r.entries[k] = d
	}
	r.sources = append(r.sources, src)
	return nil
}

// Refresh rebuilds the registry from every source loaded so far, re-reading
// files from disk. On error the current table is kept.
func (r *Registry) Refresh() error {
	r.mu.RLock()
	sources := append([]source(nil), r.sources...)
	r.mu.RUnlock()

	fresh := map[key]Descriptor{}
	for i, src := range sources {
		if src.path != "" {
			data, err := os.ReadFile(src.path)
			if err != nil {
				return &failure.ConfigurationError{Source: src.path, Reason: err.Error()}
			}
			sources[i].data = data
		}
		parsed, err := parse(src.name, sources[i].data)
		if err != nil {
			return err
		}
		for k, d := range parsed {
			fresh[k] = d
		}
	}

	r.mu.Lock()
	r.entries = fresh
	r.sources = sources
	r.mu.Unlock()
	return nil
}

// Resolve never guesses: an absent pair is an UnknownLocatorError.
func (r *Registry) Resolve(page, element string) (Descriptor, error) {
	r.mu.RLock()
	d, ok := r.entries[key{page, element}]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, &failure.UnknownLocatorError{Page: page, Element: element}
	}
	return d, nil
}

func (r *Registry) Pages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := map[string]bool{}
	var pages []string
	for k := range r.entries {
		if !seen[k.page] {
			seen[k.page] = true
			pages = append(pages, k.page)
		}
	}
	sort.Strings(pages)
	return pages
}

func (r *Registry) Elements(page string) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Descriptor
	for k, d := range r.entries {
		if k.page == page {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Element < out[j].Element })
	return out
}

func parse(name string, data []byte) (map[key]Descriptor, error) {
	var tree map[string]map[string]entry
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, &failure.ConfigurationError{Source: name, Reason: err.Error()}
	}
	out := make(map[key]Descriptor)
	for page, elements := range tree {
		for element, e := range elements {
			strategy, ok := parseStrategy(e.Type)
			if !ok {
				return nil, &failure.ConfigurationError{
					Source:  name,
					Page:    page,
					Element: element,
					Reason:  fmt.Sprintf("unknown locator type %q", e.Type),
				}
			}
			if e.Value == "" {
				return nil, &failure.ConfigurationError{Source: name, Page: page, Element: element, Reason: "empty locator value"}
			}
			out[key{page, element}] = Descriptor{Page: page, Element: element, Strategy: strategy, Value: e.Value}
		}
	}
	return out, nil
}

func yamlFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yml" || ext == ".yaml" {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
