package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_WritesConsoleLines(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", &buf)
	require.NoError(t, err)

	Component(logger, "runner").Info("scenario passed", zap.String("scenario", "Read a post"))
	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "scenario passed")
	assert.Contains(t, out, `"component": "runner"`)
	assert.Contains(t, out, `"scenario": "Read a post"`)
	assert.NotContains(t, out, "hidden")
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, lvl)

	lvl, err = ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestComponent_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() { Component(nil, "x").Info("dropped") })
}
