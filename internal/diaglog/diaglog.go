// Package diaglog provides structured NDJSON diagnostic logging for qacut.
// Activated by QACUT_DEBUG=true. When the env var is absent, all Log calls
// are no-ops and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// ── Component labels ─────────────────────────────────────────────────────────

const (
	ComponentParser      = "parser"
	ComponentQuestions   = "question-bank"
	ComponentSegmenter   = "segmenter"
	ComponentExtractor   = "extractor"
	ComponentPipeline    = "pipeline"
	ComponentEmbedRemote = "embed-remote"
	ComponentEmbedWS     = "embed-ws"
	ComponentWatcher     = "watcher"
	ComponentSink        = "sink"
	ComponentDiagExport  = "diag-export"
)

// ── Event names ──────────────────────────────────────────────────────────────

const (
	EventRunStart        = "run_start"
	EventRunFinish       = "run_finish"
	EventCuesParsed      = "cues_parsed"
	EventBankLoaded      = "bank_loaded"
	EventChunkOpen       = "chunk_open"
	EventChunkClose      = "chunk_close"
	EventChunkClamp      = "chunk_clamp"
	EventQuestionMatch   = "question_match"
	EventQuestionMiss    = "question_miss"
	EventOrphanedSpeech  = "orphaned_speech"
	EventSliceStart      = "slice_start"
	EventSliceSkip       = "slice_skip"
	EventSliceDone       = "slice_done"
	EventSliceFailed     = "slice_failed"
	EventEmbedRetry      = "embed_retry"
	EventWSConnect       = "ws_connect"
	EventWSDisconnect    = "ws_disconnect"
	EventWSSend          = "ws_send"
	EventWSRecv          = "ws_recv"
	EventInboxDetected   = "inbox_detected"
	EventSinkPublished   = "sink_published"
	EventSinkFailed      = "sink_failed"
	EventArtifactWritten = "artifact_written"
	EventArtifactFailed  = "artifact_failed"
)

// ── LogEntry ─────────────────────────────────────────────────────────────────

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"`                // RFC3339Nano
	Component string      `json:"component"`         // see Component* constants
	Event     string      `json:"event"`             // see Event* constants
	RunID     string      `json:"run_id,omitempty"`  // pipeline run
	ChunkID   string      `json:"chunk_id,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// ── Logger ───────────────────────────────────────────────────────────────────

// Logger writes LogEntry values to a rolling NDJSON file. When debug mode is
// disabled every Log call is a no-op.
type Logger struct {
	rw      *rollingWriter
	mu      sync.Mutex
	enabled bool
}

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	rw, err := newRollingWriter(path, 10*1024*1024)
	if err != nil {
		return nil, err
	}
	return &Logger{rw: rw, enabled: true}, nil
}

// Log serialises entry to JSON, appends a newline, and writes to the rolling
// file. Sensitive payload fields are redacted before serialisation.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.rw.Write(data)
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rw.close()
}

// IsDebugEnabled reports whether QACUT_DEBUG is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("QACUT_DEBUG") == "true"
}

// DefaultPath returns QACUT_LOG_PATH or /tmp/qacut-debug.log.
func DefaultPath() string {
	if p := os.Getenv("QACUT_LOG_PATH"); p != "" {
		return p
	}
	return "/tmp/qacut-debug.log"
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a safe
// fallback when New fails (e.g., disk full, permissions error).
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
