package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notemap/pkg/config"
)

func TestInit(t *testing.T) {
	tempDir := t.TempDir()
	serverLog := filepath.Join(tempDir, "server.log")
	requestLog := filepath.Join(tempDir, "requests.log")

	// A previous run's log is rotated away
	require.NoError(t, os.WriteFile(serverLog, []byte("previous\n"), 0o644))

	cfg := &config.LogConfig{
		Server:   config.LogSettings{Path: serverLog, Level: "DEBUG"},
		Requests: config.LogSettings{Path: requestLog, Level: "INFO"},
	}

	prev := slog.Default()
	cleanup, err := Init(cfg)
	require.NoError(t, err)
	defer func() {
		cleanup()
		slog.SetDefault(prev)
	}()

	old, err := os.ReadFile(serverLog + ".old")
	require.NoError(t, err)
	assert.Equal(t, "previous\n", string(old))

	_, err = os.Stat(requestLog)
	assert.NoError(t, err, "request log file not created")

	slog.Debug("Test: debug line", "k", "v")
	slog.Info("Test: info line")
	RequestLogger.Info("Request Processed", "path", "/health")

	data, err := os.ReadFile(serverLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Test: debug line")
	assert.NotContains(t, string(data), "previous")

	// Capture only sees INFO and up
	assert.Contains(t, GlobalLogCapture.GetLastLine(), "Test: info line")

	reqData, err := os.ReadFile(requestLog)
	require.NoError(t, err)
	assert.Contains(t, string(reqData), "Request Processed")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"trace", slog.LevelDebug - 4},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMultiHandler_Levels(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	logger := slog.New(h).With("view", "default")

	assert.True(t, h.Enabled(context.Background(), slog.LevelDebug))
	logger.Info("Layer: update")
	logger.Warn("Layer: missing source")

	assert.Equal(t, 2, strings.Count(debugBuf.String(), "view=default"))
	assert.NotContains(t, warnBuf.String(), "Layer: update")
	assert.Contains(t, warnBuf.String(), "Layer: missing source")
}

func TestLogCapture(t *testing.T) {
	w := NewLogCapture(2)
	assert.Equal(t, "", w.GetLastLine())

	_, _ = w.Write([]byte("one\n"))
	_, _ = w.Write([]byte("two\n"))
	_, _ = w.Write([]byte("three\n"))

	assert.Equal(t, "three", w.GetLastLine())
	assert.Equal(t, []string{"two", "three"}, w.Lines(0))
	assert.Equal(t, []string{"three"}, w.Lines(1))
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	EnableTrace = false
	Trace(logger, "Engine: hidden")
	assert.Empty(t, buf.String())

	EnableTrace = true
	defer func() { EnableTrace = false }()
	Trace(logger, "Engine: shown")
	assert.Contains(t, buf.String(), "Engine: shown")
}
