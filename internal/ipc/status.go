package ipc

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/tiroq/qacut/internal/fileutil"
	"github.com/tiroq/qacut/internal/pidfile"
)

// State is what a watcher is doing right now.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StatePaused     State = "paused"
	StateStopped    State = "stopped"
)

// StatusSnapshot is the watcher state published for `qacut status`.
type StatusSnapshot struct {
	Inbox     string    `json:"inbox"`
	PID       int       `json:"pid"`
	State     State     `json:"state"`
	Current   string    `json:"current,omitempty"` // recording being processed
	Processed int       `json:"processed"`
	Failed    int       `json:"failed"`
	LastRunID string    `json:"last_run_id,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Paths locates the control files for the watcher of one inbox. They sit
// next to its PID file.
type Paths struct {
	Status  string
	Command string
}

// PathsFor returns the control file paths for inbox.
func PathsFor(inbox string) Paths {
	base := strings.TrimSuffix(pidfile.PathFor(inbox), ".pid")
	return Paths{
		Status:  base + ".status.json",
		Command: base + ".cmd",
	}
}

// WriteStatus persists a snapshot atomically.
func WriteStatus(path string, status *StatusSnapshot) error {
	return fileutil.WriteJSON(path, status)
}

// ReadStatus loads the snapshot at path.
func ReadStatus(path string) (*StatusSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}
