package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Options{LogFormat: "json"}, &buf).Info("hello", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["msg"])
	assert.Equal(t, "v", line["k"])

	buf.Reset()
	newLogger(&Options{}, &buf).Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}

func TestNewFallbacks(t *testing.T) {
	var buf bytes.Buffer
	options := &Options{LogLevel: "loud", LogFormat: "yaml"}
	logger := newLogger(options, &buf)

	assert.Equal(t, "", options.LogLevel)
	assert.Equal(t, "text", options.LogFormat)
	assert.Contains(t, buf.String(), "could not parse logger format")
	assert.Contains(t, buf.String(), "could not parse logger level")

	buf.Reset()
	logger.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestNewLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Options{LogLevel: "WARN"}, &buf)
	logger.Info("hidden")
	assert.Empty(t, buf.String())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	newLogger(&Options{LogFile: path}, nil).Info("to file")

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "msg=\"to file\"")
}

func TestNewSource(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Options{LogSource: true}, &buf).Info("located")
	assert.Contains(t, buf.String(), "source=")
	assert.Contains(t, buf.String(), "logger_test.go:")

	buf.Reset()
	newLogger(&Options{}, &buf).Info("unlocated")
	assert.NotContains(t, buf.String(), "source=")
}
