package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient creates a Client pointing at the given test server with fast
// retry settings.
func newTestClient(ts *httptest.Server) *Client {
	c := NewClient(Config{
		BaseURL:        ts.URL,
		TimeoutSeconds: 5,
		Retries:        3,
		Model:          "minilm",
	})
	c.backoffBase = time.Millisecond
	return c
}

func TestEmbed_Success(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/embed" {
			t.Errorf("expected /v1/embed, got %s", r.URL.Path)
		}
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Text != "Tell me about yourself" {
			t.Errorf("text = %q", req.Text)
		}
		if req.Model != "minilm" {
			t.Errorf("model = %q", req.Model)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"embedding": [0.6, 0.8]}`)
	}))
	defer ts.Close()

	vec, err := newTestClient(ts).Embed(context.Background(), "Tell me about yourself")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.6 || vec[1] != 0.8 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestEmbed_RetryOn500(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"error": "temporary failure"}`)
			return
		}
		fmt.Fprint(w, `{"embedding": [1]}`)
	}))
	defer ts.Close()

	if _, err := newTestClient(ts).Embed(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", got)
	}
}

func TestEmbed_RetriesExhausted(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := newTestClient(ts).Embed(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "retries exhausted") {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Errorf("expected 4 calls (1 + 3 retries), got %d", got)
	}
}

func TestEmbed_NoRetryOn4xx(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error": "text too long"}`)
	}))
	defer ts.Close()

	_, err := newTestClient(ts).Embed(context.Background(), "q")
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected 400 error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected a single call, got %d", got)
	}
}

func TestEmbed_EmptyEmbedding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"embedding": []}`)
	}))
	defer ts.Close()

	if _, err := newTestClient(ts).Embed(context.Background(), "q"); err == nil {
		t.Fatal("expected error for empty embedding")
	}
}

func TestEmbed_ContextTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		fmt.Fprint(w, `{"embedding": [1]}`)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := newTestClient(ts).Embed(ctx, "q"); err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > 250*time.Millisecond {
		t.Errorf("context deadline not honoured, took %s", time.Since(start))
	}
}

func TestEmbed_BearerToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `{"embedding": [1]}`)
	}))
	defer ts.Close()

	c := NewClient(Config{BaseURL: ts.URL, Token: "secret"})
	if _, err := c.Embed(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHealthCheck_Healthy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/health" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer ts.Close()

	status, err := newTestClient(ts).HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.OK || status.Message != "healthy" || status.Backend != "remote" {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestHealthCheck_Unhealthy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error": "loading model"}`)
	}))
	defer ts.Close()

	status, err := newTestClient(ts).HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.OK {
		t.Error("expected OK=false")
	}
	if !strings.Contains(status.Message, "503") {
		t.Errorf("expected status code in message, got %q", status.Message)
	}
}

func TestBackoffGrows(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused"})
	c.backoffBase = 100 * time.Millisecond
	for attempt, min := range map[int]time.Duration{1: 100, 2: 200, 3: 400} {
		d := c.backoff(attempt)
		lo := min * time.Millisecond
		if d < lo || d > lo+lo/4 {
			t.Errorf("attempt %d: backoff %s outside [%s, %s]", attempt, d, lo, lo+lo/4)
		}
	}
}
