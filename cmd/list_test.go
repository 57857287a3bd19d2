package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func runList(t *testing.T, tags string, paths ...string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, RunList(&buf, defaultConfig, paths, tags))
	return buf.String()
}

const loginFeature = `@auth
Feature: Login
  @smoke
  Scenario: User logs in
    Given I set variable "user" to "ada"

  @wip
  Scenario: User fails login
    Given I set variable "user" to "bob"
`

func TestList_ScenariosWithLocationAndTags(t *testing.T) {
	inTempDir(t)
	writeFile(t, "features/login.feature", loginFeature)

	out := runList(t, "")

	assert.Contains(t, out, "features/login.feature:4")
	assert.Contains(t, out, "User logs in")
	assert.Contains(t, out, "@auth @smoke")
	assert.Contains(t, out, "features/login.feature:8")
}

func TestList_ScenariosFromMultipleFilesInPathOrder(t *testing.T) {
	inTempDir(t)
	writeFile(t, "features/b.feature", "Feature: B\n  Scenario: second\n    Given I set variable \"a\" to \"1\"\n")
	writeFile(t, "features/nested/a.feature", "Feature: A\n  Scenario: first\n    Given I set variable \"a\" to \"1\"\n")

	out := runList(t, "")

	assert.Less(t, strings.Index(out, "features/b.feature"), strings.Index(out, "features/nested/a.feature"))
}

func TestList_TagFilter(t *testing.T) {
	inTempDir(t)
	writeFile(t, "features/login.feature", loginFeature)

	out := runList(t, "~@wip")

	assert.Contains(t, out, "User logs in")
	assert.NotContains(t, out, "User fails login")
}

func TestList_ExplicitPath(t *testing.T) {
	inTempDir(t)
	writeFile(t, "features/login.feature", loginFeature)
	writeFile(t, "other/posts.feature", "Feature: Posts\n  Scenario: read\n    Given I set variable \"a\" to \"1\"\n")

	out := runList(t, "", "other")

	assert.Contains(t, out, "read")
	assert.NotContains(t, out, "User logs in")
}

func TestList_ReportsParseErrors(t *testing.T) {
	inTempDir(t)
	writeFile(t, "features/outline.feature", "Feature: O\n  Scenario Outline: many\n    Given x\n")

	out := runList(t, "")

	assert.Contains(t, out, "features/outline.feature:2: Scenario Outline is not supported")
}

func TestList_Empty(t *testing.T) {
	inTempDir(t)
	require.NoError(t, os.Mkdir("features", 0o755))

	assert.Empty(t, runList(t, ""))
}

func TestList_MissingFeaturesDirectory(t *testing.T) {
	inTempDir(t)
	var buf bytes.Buffer
	err := RunList(&buf, defaultConfig, nil, "")
	assert.ErrorContains(t, err, "reading features")
}
