package logging

import (
	"strings"
	"sync"
)

// DefaultCaptureLines is how many lines GlobalLogCapture keeps.
const DefaultCaptureLines = 50

// LogCaptureWriter is a thread-safe writer that keeps the most recent lines.
type LogCaptureWriter struct {
	mu    sync.RWMutex
	lines []string
	limit int
}

// GlobalLogCapture receives the server log at INFO and above.
var GlobalLogCapture = NewLogCapture(DefaultCaptureLines)

// NewLogCapture creates a writer keeping at most limit lines (minimum 1).
func NewLogCapture(limit int) *LogCaptureWriter {
	return &LogCaptureWriter{limit: max(limit, 1)}
}

// Write implements io.Writer. Each call is one slog record.
func (w *LogCaptureWriter) Write(p []byte) (n int, err error) {
	line := strings.TrimRight(string(p), "\n")
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, line)
	if over := len(w.lines) - w.limit; over > 0 {
		w.lines = append(w.lines[:0:0], w.lines[over:]...)
	}
	return len(p), nil
}

// GetLastLine returns the most recent log line.
func (w *LogCaptureWriter) GetLastLine() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.lines) == 0 {
		return ""
	}
	return w.lines[len(w.lines)-1]
}

// Lines returns up to n recent lines, oldest first. n <= 0 returns all.
func (w *LogCaptureWriter) Lines(n int) []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	start := 0
	if n > 0 && n < len(w.lines) {
		start = len(w.lines) - n
	}
	return append([]string(nil), w.lines[start:]...)
}
