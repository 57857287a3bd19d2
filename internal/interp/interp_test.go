package interp

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriserin/gherkit/internal/failure"
	"github.com/chriserin/gherkit/internal/vars"
)

func newInterp(values map[string]any) *Interpolator {
	s := vars.NewStore()
	for k, v := range values {
		s.Set(k, v)
	}
	return New(s)
}

func TestInterpolate_IdentityWithoutPlaceholders(t *testing.T) {
	in := newInterp(nil)
	for _, s := range []string{
		"",
		"plain text",
		`{"title": "foo", "body": {"nested": true}}`,
		"SELECT * FROM t WHERE a = '{ }'",
		"{not-an-identifier} {} { name }",
	} {
		got, err := in.Interpolate(s)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestInterpolate_SingleVariable(t *testing.T) {
	in := newInterp(map[string]any{"name": "alice", "n": json.Number("42"), "f": float64(3), "ok": true})

	got, err := in.Interpolate("{name}")
	require.NoError(t, err)
	assert.Equal(t, "alice", got)

	got, err = in.Interpolate("{n}/{f}/{ok}")
	require.NoError(t, err)
	assert.Equal(t, "42/3/true", got)
}

func TestInterpolate_SQLTemplate(t *testing.T) {
	in := newInterp(map[string]any{"post_id": "42"})
	got, err := in.Interpolate("SELECT * FROM posts WHERE id = {post_id}")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM posts WHERE id = 42", got)
}

func TestInterpolate_InsideJSON(t *testing.T) {
	in := newInterp(map[string]any{"user_id": json.Number("7"), "title": "hello"})
	got, err := in.Interpolate(`{"userId": {user_id}, "title": "{title}", "meta": {"x": 1}}`)
	require.NoError(t, err)
	assert.Equal(t, `{"userId": 7, "title": "hello", "meta": {"x": 1}}`, got)
}

func TestInterpolate_UndefinedAbortsWholeString(t *testing.T) {
	in := newInterp(map[string]any{"a": "1"})
	for _, s := range []string{"{missing}", "x {a} y {missing} z", `{"id": {missing}}`} {
		got, err := in.Interpolate(s)
		var undef *failure.UndefinedVariableError
		require.True(t, errors.As(err, &undef), "template %q", s)
		assert.Equal(t, "missing", undef.Name)
		assert.Empty(t, got)
	}
}

func TestInterpolate_DoubleBracesKeepOuter(t *testing.T) {
	in := newInterp(map[string]any{"v": "x"})
	got, err := in.Interpolate("{{v}}")
	require.NoError(t, err)
	assert.Equal(t, "{x}", got)
}

func TestInterpolate_RepeatedPlaceholder(t *testing.T) {
	in := newInterp(map[string]any{"v": "x"})
	got, err := in.Interpolate("{v}-{v}")
	require.NoError(t, err)
	assert.Equal(t, "x-x", got)
}

func TestInterpolateAll(t *testing.T) {
	in := newInterp(map[string]any{"a": "1"})
	got, err := in.InterpolateAll([]string{"{a}", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "b"}, got)

	_, err = in.InterpolateAll([]string{"{a}", "{b}"})
	assert.Error(t, err)
}
