// Package embed defines the text embedding backends used to match
// interviewer prompts against the question bank.
package embed

import (
	"context"
	"fmt"
	"time"
)

// HealthStatus reports backend health.
type HealthStatus struct {
	OK      bool
	Backend string
	Message string
	Latency time.Duration
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Backend is the interface that embedding backends must implement.
type Backend interface {
	Embedder
	Name() string
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// WithTimeout bounds every Embed call on e by d. A non-positive d returns e
// unchanged.
func WithTimeout(e Embedder, d time.Duration) Embedder {
	if d <= 0 {
		return e
	}
	return &timeoutEmbedder{next: e, timeout: d}
}

type timeoutEmbedder struct {
	next    Embedder
	timeout time.Duration
}

func (t *timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		vec []float32
		err error
	}
	done := make(chan result, 1)
	go func() {
		vec, err := t.next.Embed(ctx, text)
		done <- result{vec, err}
	}()

	select {
	case r := <-done:
		return r.vec, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("embed: timed out after %s: %w", t.timeout, ctx.Err())
	}
}
