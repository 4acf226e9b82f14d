package testutil

import (
	"bytes"
	"strings"
	"sync"
)

// LogCapture is a concurrency-safe writer for *log.Logger output under test.
type LogCapture struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

// NewLogCapture creates an empty capture.
func NewLogCapture() *LogCapture {
	return &LogCapture{}
}

// Write implements io.Writer.
func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.Write(p)
}

// String returns all captured output.
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Reset clears the capture buffer.
func (lc *LogCapture) Reset() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.buf.Reset()
}

// Contains checks if the output contains the given substring.
func (lc *LogCapture) Contains(substr string) bool {
	return strings.Contains(lc.String(), substr)
}

// Count returns the number of times a substring appears.
func (lc *LogCapture) Count(substr string) int {
	return strings.Count(lc.String(), substr)
}

// Lines returns the captured lines.
func (lc *LogCapture) Lines() []string {
	content := strings.TrimSpace(lc.String())
	if content == "" {
		return []string{}
	}
	return strings.Split(content, "\n")
}
