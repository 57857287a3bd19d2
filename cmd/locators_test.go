package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chriserin/gherkit/internal/failure"
)

const elementsYAML = `login_page:
  username_input:
    type: id
    value: user
  submit:
    type: xpath
    value: "//button[@type='submit']"
`

func TestLocators_ListsPagesAndElements(t *testing.T) {
	inTempDir(t)
	writeFile(t, "data/elements/login.yaml", elementsYAML)

	var buf bytes.Buffer
	require.NoError(t, RunLocators(&buf, defaultConfig, ""))

	out := buf.String()
	assert.Contains(t, out, "login_page")
	assert.Contains(t, out, "username_input")
	assert.Contains(t, out, "//button[@type='submit']")
}

func TestLocators_Resolve(t *testing.T) {
	inTempDir(t)
	writeFile(t, "data/elements/login.yaml", elementsYAML)

	var buf bytes.Buffer
	require.NoError(t, RunLocators(&buf, defaultConfig, "login_page.username_input"))
	assert.Equal(t, "login_page.username_input {id, \"user\"}\n#user\n", buf.String())
}

func TestLocators_ResolveUnknown(t *testing.T) {
	inTempDir(t)
	writeFile(t, "data/elements/login.yaml", elementsYAML)

	var buf bytes.Buffer
	err := RunLocators(&buf, defaultConfig, "login_page.password")
	var ule *failure.UnknownLocatorError
	assert.True(t, errors.As(err, &ule))
}

func TestLocators_ResolveNeedsPage(t *testing.T) {
	inTempDir(t)
	writeFile(t, "data/elements/login.yaml", elementsYAML)

	var buf bytes.Buffer
	assert.ErrorContains(t, RunLocators(&buf, defaultConfig, "username_input"), "expected page.element")
}

func TestLocators_InvalidFile(t *testing.T) {
	inTempDir(t)
	writeFile(t, "data/elements/bad.yaml", "login_page:\n  x:\n    type: magic\n    value: y\n")

	var buf bytes.Buffer
	var ce *failure.ConfigurationError
	assert.True(t, errors.As(RunLocators(&buf, defaultConfig, ""), &ce))
}
