package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yeectl/config"
)

func TestConsoleLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newWithOutput(config.LoggingConfig{Level: "warn", Format: "console"}, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, logger.Sync())

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "WARN")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newWithOutput(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	require.NoError(t, err)

	logger.Named("transport").Debug("request sent")
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request sent", entry["msg"])
	assert.Equal(t, "transport", entry["logger"])
}

func TestRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "yeectl.log")
	var buf bytes.Buffer
	logger, err := newWithOutput(config.LoggingConfig{
		Level:  "info",
		Format: "console",
		File:   config.FileConfig{Path: path, MaxSizeMB: 1},
	}, &buf)
	require.NoError(t, err)

	logger.Info("to both")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"to both"`)
	assert.Contains(t, buf.String(), "to both")
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = New(config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
