package redisq

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tiroq/qacut/internal/sink"
)

func TestPublish_Unreachable(t *testing.T) {
	q := New(Config{Addr: "127.0.0.1:1", Queue: "qacut:runs", DialTimeout: 200 * time.Millisecond})
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := q.Publish(ctx, &sink.Manifest{RunID: "r1"})
	if err == nil || !strings.Contains(err.Error(), "seen set") {
		t.Fatalf("expected connection error, got %v", err)
	}
	if _, err := q.Len(ctx); err == nil {
		t.Error("expected Len to fail")
	}
}

func TestNameAndSeenSet(t *testing.T) {
	q := New(Config{Addr: "127.0.0.1:1", Queue: "jobs"})
	defer q.Close()
	if q.Name() != "redis" {
		t.Errorf("name = %q", q.Name())
	}
	if q.seenSet != "jobs:seen" {
		t.Errorf("seen set = %q", q.seenSet)
	}
}

func TestSeenKey_StableAcrossRuns(t *testing.T) {
	first := &sink.Manifest{RunID: "run-a", Source: "/inbox/talk.vtt", OutDir: "/out/talk"}
	rerun := &sink.Manifest{RunID: "run-b", Source: "/inbox/./talk.vtt", OutDir: "/out/talk/"}
	if seenKey(first) != seenKey(rerun) {
		t.Errorf("rerun key %q differs from %q", seenKey(rerun), seenKey(first))
	}

	elsewhere := &sink.Manifest{RunID: "run-a", Source: "/inbox/talk.vtt", OutDir: "/out/other"}
	if seenKey(first) == seenKey(elsewhere) {
		t.Error("different output directories must not share a key")
	}
	other := &sink.Manifest{RunID: "run-a", Source: "/inbox/panel.vtt", OutDir: "/out/talk"}
	if seenKey(first) == seenKey(other) {
		t.Error("different sources must not share a key")
	}
}
