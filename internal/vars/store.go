package vars

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/chriserin/gherkit/internal/failure"
)

// Store holds the values captured during one scenario. It is owned by a
// single scenario goroutine and is not safe for concurrent use.
type Store struct {
	values map[string]any
}

func NewStore() *Store {
	return &Store{values: map[string]any{}}
}

func (s *Store) Set(name string, value any) {
	s.values[name] = value
}

func (s *Store) Get(name string) (any, error) {
	v, ok := s.values[name]
	if !ok {
		return nil, &failure.UndefinedVariableError{Name: name}
	}
	return v, nil
}

func (s *Store) Clear() {
	clear(s.values)
}

func (s *Store) Names() []string {
	names := make([]string, 0, len(s.values))
	for n := range s.values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// String renders a stored value the way it is embedded into text.
func String(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case json.Number:
		return t.String()
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return formatFloat(t, 64)
	case float32:
		return formatFloat(float64(t), 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
	return fmt.Sprintf("%v", v)
}

func formatFloat(f float64, bits int) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 0, bits)
	}
	return strconv.FormatFloat(f, 'f', -1, bits)
}
