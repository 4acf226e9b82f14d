package embed

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
)

// mockBackend is a test double for the Backend interface.
type mockBackend struct {
	name  string
	vec   []float32
	err   error
	delay time.Duration
	calls int
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

func (m *mockBackend) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &HealthStatus{OK: true, Backend: m.name}, nil
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	b := &mockBackend{name: "test"}
	r.Register("test", b)

	got, ok := r.Get("test")
	if !ok {
		t.Fatal("expected backend to be found")
	}
	if got.Name() != "test" {
		t.Errorf("expected name %q, got %q", "test", got.Name())
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing backend lookup to fail")
	}
}

func TestRegistryPrimary(t *testing.T) {
	r := NewRegistry()
	r.Register("first", &mockBackend{name: "first"})
	r.Register("second", &mockBackend{name: "second"})

	if p := r.Primary(); p == nil || p.Name() != "first" {
		t.Fatalf("expected first registered backend as primary, got %v", p)
	}
	r.SetPrimary("second")
	if p := r.Primary(); p.Name() != "second" {
		t.Errorf("expected primary %q, got %q", "second", p.Name())
	}
	if r.Fallback() != nil {
		t.Error("expected no fallback by default")
	}
}

func TestRegistryBackendsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("remote", &mockBackend{name: "remote"})
	r.Register("onnx", &mockBackend{name: "onnx"})
	got := strings.Join(r.Backends(), ",")
	if got != "onnx,remote" {
		t.Errorf("Backends() = %q", got)
	}
}

func TestEmbed_PrimarySucceeds(t *testing.T) {
	r := NewRegistry()
	primary := &mockBackend{name: "primary", vec: []float32{1, 0}}
	fallback := &mockBackend{name: "fallback", vec: []float32{0, 1}}
	r.Register("primary", primary)
	r.Register("fallback", fallback)
	r.SetFallback("fallback")

	vec, err := r.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[0] != 1 {
		t.Errorf("expected primary vector, got %v", vec)
	}
	if fallback.calls != 0 {
		t.Errorf("fallback should not be called, got %d calls", fallback.calls)
	}
}

func TestEmbed_PrimaryFailsFallbackSucceeds(t *testing.T) {
	r := NewRegistry()
	r.Register("primary", &mockBackend{name: "primary", err: fmt.Errorf("primary down")})
	r.Register("fallback", &mockBackend{name: "fallback", vec: []float32{0, 1}})
	r.SetFallback("fallback")

	vec, err := r.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vec[1] != 1 {
		t.Errorf("expected fallback vector, got %v", vec)
	}
}

func TestEmbed_BothFail(t *testing.T) {
	r := NewRegistry()
	r.Register("primary", &mockBackend{name: "primary", err: fmt.Errorf("primary down")})
	r.Register("fallback", &mockBackend{name: "fallback", err: fmt.Errorf("fallback down")})
	r.SetFallback("fallback")

	_, err := r.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error when both backends fail")
	}
	if !strings.Contains(err.Error(), "primary") || !strings.Contains(err.Error(), "also failed") {
		t.Errorf("expected error to mention both backends, got: %v", err)
	}
}

func TestEmbed_NoPrimary(t *testing.T) {
	_, err := NewRegistry().Embed(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "no primary backend") {
		t.Fatalf("expected 'no primary backend' error, got: %v", err)
	}
}

func TestEmbed_CancelledSkipsFallback(t *testing.T) {
	r := NewRegistry()
	fallback := &mockBackend{name: "fallback", vec: []float32{1}}
	r.Register("primary", &mockBackend{name: "primary", delay: time.Second})
	r.Register("fallback", fallback)
	r.SetFallback("fallback")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Embed(ctx, "hello"); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if fallback.calls != 0 {
		t.Errorf("fallback should not run after cancellation")
	}
}

func TestWithTimeout(t *testing.T) {
	slow := &mockBackend{name: "slow", delay: time.Second, vec: []float32{1}}
	e := WithTimeout(slow, 20*time.Millisecond)

	start := time.Now()
	_, err := e.Embed(context.Background(), "hi")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("timeout not enforced, took %s", time.Since(start))
	}

	if WithTimeout(slow, 0) != Embedder(slow) {
		t.Error("zero timeout should return the embedder unchanged")
	}
}

func TestHealthCheckReportsErrors(t *testing.T) {
	r := NewRegistry()
	r.Register("a", &mockBackend{name: "a"})
	r.Register("b", &mockBackend{name: "b", err: fmt.Errorf("unreachable")})

	st := r.HealthCheck(context.Background())
	if len(st) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(st))
	}
	if !st[0].OK || st[1].OK {
		t.Errorf("unexpected statuses: %+v %+v", st[0], st[1])
	}
	if st[1].Message != "unreachable" {
		t.Errorf("message = %q", st[1].Message)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("Normalize = %v", v)
	}
	if Normalize([]float32{0, 0}) != nil {
		t.Error("zero vector should normalize to nil")
	}
	if Normalize([]float32{float32(math.NaN())}) != nil {
		t.Error("NaN vector should normalize to nil")
	}
}

func TestDot(t *testing.T) {
	if got := Dot([]float32{1, 2}, []float32{3, 4}); got != 11 {
		t.Errorf("Dot = %v, want 11", got)
	}
	if got := Dot([]float32{1}, []float32{1, 2}); got != 0 {
		t.Errorf("mismatched Dot = %v, want 0", got)
	}
}
