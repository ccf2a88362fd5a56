package testutil

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
)

// NopLogger returns a logger that discards all output.
// Use this in tests to avoid log noise.
func NopLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// LogCapture collects JSON log records written by a CaptureLogger
type LogCapture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (c *LogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// Records decodes every captured record
func (c *LogCapture) Records() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	var records []map[string]any
	scanner := bufio.NewScanner(bytes.NewReader(c.buf.Bytes()))
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err == nil {
			records = append(records, rec)
		}
	}
	return records
}

// WithMessage returns the captured records whose msg equals msg
func (c *LogCapture) WithMessage(msg string) []map[string]any {
	var out []map[string]any
	for _, rec := range c.Records() {
		if rec[slog.MessageKey] == msg {
			out = append(out, rec)
		}
	}
	return out
}

// CaptureLogger returns a debug-level JSON logger and the capture it writes to
func CaptureLogger() (*slog.Logger, *LogCapture) {
	capture := &LogCapture{}
	return slog.New(slog.NewJSONHandler(capture, &slog.HandlerOptions{Level: slog.LevelDebug})), capture
}
