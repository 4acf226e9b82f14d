// Package subproc runs external tools in their own process group so a
// timeout or cancellation kills the whole tree.
package subproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ErrTimeout is wrapped by Run when the process was killed on timeout.
var ErrTimeout = errors.New("timed out")

// Command describes one invocation.
type Command struct {
	Path    string
	Args    []string
	Stdin   io.Reader
	Timeout time.Duration // zero means no timeout beyond ctx
}

// Result holds captured output.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Run starts the command and waits for it. When Timeout elapses or ctx is
// done the process group receives SIGKILL.
func Run(ctx context.Context, c Command) (*Result, error) {
	cmd := exec.Command(c.Path, c.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdin = c.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", c.Path, err)
	}

	var mu sync.Mutex
	var reason error
	kill := func(why error) {
		mu.Lock()
		if reason == nil {
			reason = why
		}
		mu.Unlock()
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var timer *time.Timer
	if c.Timeout > 0 {
		timer = time.AfterFunc(c.Timeout, func() {
			kill(fmt.Errorf("%w after %s", ErrTimeout, c.Timeout))
		})
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			kill(ctx.Err())
		case <-done:
		}
	}()

	err := cmd.Wait()
	close(done)
	if timer != nil {
		timer.Stop()
	}

	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		mu.Lock()
		why := reason
		mu.Unlock()
		if why != nil {
			return res, fmt.Errorf("%s: %w", c.Path, why)
		}
		return res, fmt.Errorf("%s failed: %w%s", c.Path, err, tail(res.Stderr))
	}
	return res, nil
}

// tail formats the last stderr line for error messages.
func tail(stderr []byte) string {
	s := strings.TrimSpace(string(stderr))
	if s == "" {
		return ""
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return ": " + s
}
