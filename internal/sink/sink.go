// Package sink hands a finished run to downstream consumers. Sinks are
// best-effort: a failed publish is recorded in the run's error log and never
// fails the run.
package sink

import (
	"context"
	"time"

	"github.com/tiroq/qacut/internal/index"
)

// Manifest summarises one completed run.
type Manifest struct {
	RunID      string        `json:"run_id"`
	Source     string        `json:"source"` // transcript path
	Mode       string        `json:"mode"`
	Category   string        `json:"category,omitempty"`
	OutDir     string        `json:"out_dir"`
	CreatedAt  time.Time     `json:"created_at"`
	ErrorCount int           `json:"error_count"`
	Chunks     []index.Entry `json:"chunks"`
}

// Sink publishes manifests.
type Sink interface {
	Name() string
	Publish(ctx context.Context, m *Manifest) error
	Close() error
}
