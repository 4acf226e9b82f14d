// Package pidfile guards an inbox against two watchers processing it at the
// same time.
package pidfile

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/tiroq/qacut/internal/fileutil"
)

// ErrLocked is returned by Acquire when a live process holds the lock.
var ErrLocked = errors.New("inbox is already being watched")

// Lock is a held pid file.
type Lock struct {
	path string
	pid  int
}

// Acquire writes the current pid to path. A file left by a dead process is
// taken over; one held by a live process yields ErrLocked.
func Acquire(path string) (*Lock, error) {
	if owner, ok := Owner(path); ok && owner != os.Getpid() {
		return nil, fmt.Errorf("%w (PID %d, lock %s)", ErrLocked, owner, path)
	}

	pid := os.Getpid()
	if err := fileutil.WriteFile(path, []byte(strconv.Itoa(pid)+"\n")); err != nil {
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}
	return &Lock{path: path, pid: pid}, nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

// Release removes the file if it still holds our pid.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if pid, err := readPID(l.path); err == nil && pid == l.pid {
		return os.Remove(l.path)
	}
	return nil
}

// Owner returns the pid recorded at path when that process is alive.
func Owner(path string) (int, bool) {
	pid, err := readPID(path)
	if err != nil {
		return 0, false
	}
	return pid, isProcessRunning(pid)
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// isProcessRunning probes pid with signal 0.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// FindProcess always succeeds on Unix.
	err = process.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, syscall.EPERM):
		// exists, owned by someone else
		return true
	default:
		return false
	}
}

// PathFor returns the lock path for an inbox directory:
// ~/.cache/qacut/watch-<name>-<hash>.pid.
func PathFor(inbox string) string {
	abs, err := filepath.Abs(inbox)
	if err != nil {
		abs = inbox
	}
	sum := sha1.Sum([]byte(abs))
	name := fmt.Sprintf("watch-%s-%s.pid", fileutil.SanitizeForFilename(filepath.Base(abs)), hex.EncodeToString(sum[:4]))
	return filepath.Join(os.Getenv("HOME"), ".cache", "qacut", name)
}
