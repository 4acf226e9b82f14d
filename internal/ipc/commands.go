package ipc

import (
	"os"
	"path/filepath"
	"strings"
)

// Command is a control request sent to a running watcher.
type Command string

const (
	CmdPause  Command = "pause"  // finish the current recording, then hold
	CmdResume Command = "resume" // continue processing
	CmdQuit   Command = "quit"   // shut the watcher down
)

// ParseCommand validates a command name.
func ParseCommand(s string) (Command, bool) {
	switch cmd := Command(strings.TrimSpace(strings.ToLower(s))); cmd {
	case CmdPause, CmdResume, CmdQuit:
		return cmd, true
	default:
		return "", false
	}
}

// WriteCommand leaves cmd for the watcher to pick up.
func WriteCommand(path string, cmd Command) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(string(cmd)), 0644)
}

// ReadCommand reads and clears the pending command. It returns "" when none
// is pending or the file holds an unknown command.
func ReadCommand(path string) (Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	// Clear immediately so a command runs once.
	if err := os.WriteFile(path, nil, 0644); err != nil {
		return "", err
	}

	cmd, _ := ParseCommand(string(data))
	return cmd, nil
}
