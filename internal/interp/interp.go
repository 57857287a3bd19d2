// Package interp substitutes {name} placeholders with captured variables.
//
// Substitution is purely textual. The surrounding text may be SQL, JSON, a
// URL or a header value; none of it is parsed.
package interp

import (
	"regexp"
	"strings"

	"github.com/chriserin/gherkit/internal/vars"
)

var placeholder = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Lookup is the read side of a variable store.
type Lookup interface {
	Get(name string) (any, error)
}

type Interpolator struct {
	vars Lookup
}

func New(l Lookup) *Interpolator {
	return &Interpolator{vars: l}
}

// Interpolate returns template with every placeholder replaced. If any
// placeholder is undefined nothing is returned but the error.
func (in *Interpolator) Interpolate(template string) (string, error) {
	matches := placeholder.FindAllStringSubmatchIndex(template, -1)
	if len(matches) == 0 {
		return template, nil
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		name := template[m[2]:m[3]]
		v, err := in.vars.Get(name)
		if err != nil {
			return "", err
		}
		b.WriteString(template[last:m[0]])
		b.WriteString(vars.String(v))
		last = m[1]
	}
	b.WriteString(template[last:])
	return b.String(), nil
}

func (in *Interpolator) InterpolateAll(templates []string) ([]string, error) {
	out := make([]string, len(templates))
	for i, t := range templates {
		s, err := in.Interpolate(t)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}
