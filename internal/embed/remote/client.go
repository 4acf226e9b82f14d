// Package remote implements an embed.Backend that calls an HTTP embedding
// service.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/tiroq/qacut/internal/diaglog"
	"github.com/tiroq/qacut/internal/embed"
)

// Config configures the remote embedding client.
type Config struct {
	BaseURL        string
	Token          string // optional auth token, sent as Bearer
	TimeoutSeconds int    // default 30
	Retries        int    // default 3
	Model          string // passed through when set
}

// Client is an embed.Backend that POSTs text to {BaseURL}/v1/embed.
type Client struct {
	cfg         Config
	client      *http.Client
	backoffBase time.Duration // default time.Second; tests override to 1ms

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a new remote embedding client.
func NewClient(cfg Config) *Client {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = 30
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Client{
		cfg:         cfg,
		backoffBase: time.Second,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
	}
}

// SetLogger injects a diaglog.Logger for debug logging.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if entry.Component == "" {
		entry.Component = diaglog.ComponentEmbedRemote
	}
	l.Log(entry)
}

// Name returns the backend identifier.
func (c *Client) Name() string {
	return "remote"
}

type embedRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed sends text to the service and returns its embedding. Transient
// failures (5xx, network) are retried with exponential backoff.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Text: text, Model: c.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			backoff := c.backoff(attempt)
			c.log(diaglog.LogEntry{
				Event:   diaglog.EventEmbedRetry,
				Reason:  lastErr.Error(),
				Payload: map[string]interface{}{"attempt": attempt, "backoff_ms": backoff.Milliseconds()},
			})
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("embed: %w", ctx.Err())
			}
		}

		vec, err := c.doEmbed(ctx, body)
		if err == nil {
			return vec, nil
		}
		if !isRetryable(err) || ctx.Err() != nil {
			return nil, fmt.Errorf("embed: %w", err)
		}
		lastErr = err
	}

	return nil, fmt.Errorf("embed: all %d retries exhausted: %w", c.cfg.Retries, lastErr)
}

func (c *Client) doEmbed(ctx context.Context, body []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("http request: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &retryableError{err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return nil, &retryableError{err: fmt.Errorf("server error %d: %s", resp.StatusCode, truncate(data, 200))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, truncate(data, 200))
	}

	var parsed embedResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, errors.New("response contained an empty embedding")
	}
	return parsed.Embedding, nil
}

// HealthCheck queries the service health endpoint. Transport failures are
// reported in the status rather than as an error.
func (c *Client) HealthCheck(ctx context.Context) (*embed.HealthStatus, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v1/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create health request: %w", err)
	}
	c.authorize(req)

	status := &embed.HealthStatus{Backend: c.Name()}
	resp, err := c.client.Do(req)
	status.Latency = time.Since(start)
	if err != nil {
		status.Message = fmt.Sprintf("health check failed: %v", err)
		return status, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		status.Message = fmt.Sprintf("unhealthy: http %d: %s", resp.StatusCode, truncate(body, 200))
		return status, nil
	}

	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		status.Message = fmt.Sprintf("invalid health response: %v", err)
		return status, nil
	}
	status.OK = parsed.OK
	status.Message = "healthy"
	if !parsed.OK {
		status.Message = "service reports not ok"
	}
	return status, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
}

// ── helpers ──────────────────────────────────────────────────────────────────

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

// backoff returns base * 2^(attempt-1) plus up to 25% jitter.
func (c *Client) backoff(attempt int) time.Duration {
	base := c.backoffBase
	if base <= 0 {
		base = time.Second
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
