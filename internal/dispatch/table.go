// Package dispatch binds step text to handlers and runs them against a
// per-scenario context.
package dispatch

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Call is what a handler receives after interpolation.
type Call struct {
	Args  []string
	Body  string
	Table [][]string // header row first
}

type Handler func(ctx context.Context, sc *Scenario, call Call) error

type Option func(*binding)

// RawArgs leaves the listed argument positions uninterpolated; the handler
// interpolates them itself.
func RawArgs(positions ...int) Option {
	return func(b *binding) {
		for _, p := range positions {
			b.raw[p] = true
		}
	}
}

type binding struct {
	id      string
	pattern string
	re      *regexp.Regexp
	slots   []string
	handler Handler
	raw     map[int]bool
}

// Table maps pattern ids to handlers. Patterns are plain step text with
// "{name}" slots, each matching one double-quoted argument. Arguments may
// themselves contain quotes; the whole step must match, and patterns are
// tried in registration order, so more specific patterns register first.
type Table struct {
	bindings []*binding
	byID     map[string]*binding
}

func NewTable() *Table {
	return &Table{byID: make(map[string]*binding)}
}

var slotPattern = regexp.MustCompile(`"\{([A-Za-z_][A-Za-z0-9_]*)\}"`)

func (t *Table) Register(id, pattern string, h Handler, opts ...Option) error {
	if _, dup := t.byID[id]; dup {
		return fmt.Errorf("step %q already registered", id)
	}
	re, slots, err := compile(pattern)
	if err != nil {
		return fmt.Errorf("compiling step %q: %w", id, err)
	}
	b := &binding{id: id, pattern: pattern, re: re, slots: slots, handler: h, raw: make(map[int]bool)}
	for _, opt := range opts {
		opt(b)
	}
	t.bindings = append(t.bindings, b)
	t.byID[id] = b
	return nil
}

func (t *Table) mustRegister(id, pattern string, h Handler, opts ...Option) {
	if err := t.Register(id, pattern, h, opts...); err != nil {
		panic(err)
	}
}

// Match finds the first registered pattern matching text in full.
func (t *Table) Match(text string) (id string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	for _, b := range t.bindings {
		m := b.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return b.id, m[1:], true
	}
	return "", nil, false
}

// Pattern returns the pattern text registered under id.
func (t *Table) Pattern(id string) (string, bool) {
	b, ok := t.byID[id]
	if !ok {
		return "", false
	}
	return b.pattern, true
}

// IDs lists pattern ids in registration order.
func (t *Table) IDs() []string {
	ids := make([]string, len(t.bindings))
	for i, b := range t.bindings {
		ids[i] = b.id
	}
	return ids
}

func compile(pattern string) (*regexp.Regexp, []string, error) {
	var (
		b     strings.Builder
		slots []string
		last  int
	)
	b.WriteString("^")
	for _, m := range slotPattern.FindAllStringSubmatchIndex(pattern, -1) {
		b.WriteString(regexp.QuoteMeta(pattern[last:m[0]]))
		b.WriteString(`"(.*?)"`)
		slots = append(slots, pattern[m[2]:m[3]])
		last = m[1]
	}
	b.WriteString(regexp.QuoteMeta(pattern[last:]))
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, err
	}
	return re, slots, nil
}

// render fills the slots of pattern with args.
func render(pattern string, args []string) string {
	i := 0
	return slotPattern.ReplaceAllStringFunc(pattern, func(slot string) string {
		if i >= len(args) {
			return slot
		}
		s := `"` + args[i] + `"`
		i++
		return s
	})
}
