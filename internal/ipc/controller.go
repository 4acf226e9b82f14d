package ipc

import (
	"context"
	"os"
	"sync"
	"time"
)

// Controller tracks a watcher's progress, publishes it as a status file and
// applies commands read from the command file.
type Controller struct {
	paths Paths

	// Errorf receives publish and read failures; nil discards them.
	Errorf func(format string, args ...interface{})
	// Now is replaced in tests.
	Now func() time.Time

	mu      sync.Mutex
	status  StatusSnapshot
	paused  bool
	resumed chan struct{}
}

// NewController returns an idle controller for inbox.
func NewController(inbox string, paths Paths) *Controller {
	return &Controller{
		paths: paths,
		status: StatusSnapshot{
			Inbox: inbox,
			PID:   os.Getpid(),
			State: StateIdle,
		},
	}
}

func (c *Controller) errorf(format string, args ...interface{}) {
	if c.Errorf != nil {
		c.Errorf(format, args...)
	}
}

func (c *Controller) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// publish writes the snapshot. Callers hold c.mu.
func (c *Controller) publish() {
	c.status.Timestamp = c.now()
	snap := c.status
	if err := WriteStatus(c.paths.Status, &snap); err != nil {
		c.errorf("failed to write status: %v", err)
	}
}

// Snapshot returns a copy of the current status.
func (c *Controller) Snapshot() StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Begin marks job as in progress.
func (c *Controller) Begin(job string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.State = StateProcessing
	c.status.Current = job
	c.publish()
}

// Done records the outcome of the job started by Begin.
func (c *Controller) Done(runID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Current = ""
	if runID != "" {
		c.status.LastRunID = runID
	}
	if err != nil {
		c.status.Failed++
		c.status.LastError = err.Error()
	} else {
		c.status.Processed++
	}
	c.status.State = c.idleState()
	c.publish()
}

func (c *Controller) idleState() State {
	if c.paused {
		return StatePaused
	}
	return StateIdle
}

// Apply executes cmd and reports whether the watcher should quit.
func (c *Controller) Apply(cmd Command) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch cmd {
	case CmdPause:
		if !c.paused {
			c.paused = true
			c.resumed = make(chan struct{})
		}
	case CmdResume:
		if c.paused {
			c.paused = false
			close(c.resumed)
		}
	case CmdQuit:
		return true
	default:
		return false
	}
	if c.status.State != StateProcessing {
		c.status.State = c.idleState()
	}
	c.publish()
	return false
}

// Wait blocks while the controller is paused.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	if !c.paused {
		c.mu.Unlock()
		return nil
	}
	resumed := c.resumed
	c.mu.Unlock()

	select {
	case <-resumed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run polls the command file until ctx is done, calling quit when a quit
// command arrives. The final snapshot is marked stopped.
func (c *Controller) Run(ctx context.Context, interval time.Duration, quit func()) {
	c.mu.Lock()
	c.publish()
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer func() {
		c.mu.Lock()
		c.status.State = StateStopped
		c.status.Current = ""
		c.publish()
		c.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cmd, err := ReadCommand(c.paths.Command)
			if err != nil {
				c.errorf("failed to read command: %v", err)
				continue
			}
			if cmd != "" && c.Apply(cmd) {
				quit()
				return
			}
		}
	}
}
