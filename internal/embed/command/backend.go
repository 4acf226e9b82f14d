// Package command implements an embed.Backend that shells out to a local
// program. The program reads the text on stdin and prints a JSON array of
// floats (or {"embedding": [...]}) on stdout.
package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tiroq/qacut/internal/embed"
	"github.com/tiroq/qacut/internal/subproc"
)

// Config configures the command backend.
type Config struct {
	Path           string
	Args           []string
	TimeoutSeconds int // default 30
}

// Backend runs Config.Path once per Embed call.
type Backend struct {
	cfg Config
}

// NewBackend creates a command backend.
func NewBackend(cfg Config) *Backend {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	return &Backend{cfg: cfg}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return "command" }

// Embed pipes text to the program and parses its output.
func (b *Backend) Embed(ctx context.Context, text string) ([]float32, error) {
	if _, err := os.Stat(b.cfg.Path); err != nil {
		return nil, fmt.Errorf("command: binary not found at %q: %w", b.cfg.Path, err)
	}
	res, err := subproc.Run(ctx, subproc.Command{
		Path:    b.cfg.Path,
		Args:    b.cfg.Args,
		Stdin:   strings.NewReader(text),
		Timeout: time.Duration(b.cfg.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("command: %w", err)
	}
	return parseOutput(res.Stdout)
}

func parseOutput(out []byte) ([]float32, error) {
	out = bytes.TrimSpace(out)
	var vec []float32
	if bytes.HasPrefix(out, []byte("{")) {
		var obj struct {
			Embedding []float32 `json:"embedding"`
		}
		if err := json.Unmarshal(out, &obj); err != nil {
			return nil, fmt.Errorf("command: failed to parse JSON output: %w", err)
		}
		vec = obj.Embedding
	} else if err := json.Unmarshal(out, &vec); err != nil {
		return nil, fmt.Errorf("command: failed to parse JSON output: %w", err)
	}
	if len(vec) == 0 {
		return nil, errors.New("command: empty embedding")
	}
	return vec, nil
}

// HealthCheck verifies the program exists and is executable.
func (b *Backend) HealthCheck(ctx context.Context) (*embed.HealthStatus, error) {
	status := &embed.HealthStatus{Backend: b.Name()}
	info, err := os.Stat(b.cfg.Path)
	if err != nil {
		status.Message = fmt.Sprintf("binary not found at %q: %v", b.cfg.Path, err)
		return status, nil
	}
	if info.Mode()&0111 == 0 {
		status.Message = fmt.Sprintf("binary at %q is not executable", b.cfg.Path)
		return status, nil
	}
	if _, err := exec.LookPath(b.cfg.Path); err != nil {
		status.Message = fmt.Sprintf("binary failed lookup: %v", err)
		return status, nil
	}
	status.OK = true
	status.Message = "binary is available and executable"
	return status, nil
}
