package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter("info", "json", &buf)

	Debug("hidden")
	HTTPRequest("POST", "/api/v1/rentals", 201, 15*time.Millisecond)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "HTTP request", record["msg"])
	assert.Equal(t, "/api/v1/rentals", record["path"])
	assert.Equal(t, float64(201), record["status"])
}

func TestExitMethodWithError(t *testing.T) {
	var buf bytes.Buffer
	InitializeWithWriter("debug", "text", &buf)

	ExitMethodWithError("RentalService.End", errors.New("rental is not active"), true)
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	ExitMethodWithError("RentalService.End", errors.New("connection refused"), false)
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "connection refused")
}
