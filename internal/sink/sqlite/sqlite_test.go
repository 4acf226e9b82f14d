package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/tiroq/qacut/internal/index"
	"github.com/tiroq/qacut/internal/sink"
)

func manifest(runID string, created time.Time) *sink.Manifest {
	q := "Q1"
	score := 0.91
	return &sink.Manifest{
		RunID:     runID,
		Source:    "/in/interview.vtt",
		Mode:      "question",
		Category:  "narrative_defense",
		OutDir:    "/out/interview",
		CreatedAt: created,
		Chunks: []index.Entry{
			{ChunkID: "chunk_001", Start: 0, End: 10, SpeakerTag: "Guest", AudioFile: "chunk_001_audio.m4a"},
			{ChunkID: "chunk_002", QuestionID: &q, SimilarityScore: &score, Start: 12, End: 25, SpeakerTag: "Guest"},
		},
	}
}

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "catalog", "qacut.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPublishAndQuery(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if err := s.Publish(ctx, manifest("run-a", now)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := s.Publish(ctx, manifest("run-b", now.Add(time.Hour))); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].RunID != "run-b" {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[1].Chunks != 2 || runs[1].Category != "narrative_defense" || !runs[1].CreatedAt.Equal(now) {
		t.Errorf("run-a = %+v", runs[1])
	}

	keys, err := s.ChunksForQuestion(ctx, "Q1")
	if err != nil {
		t.Fatalf("ChunksForQuestion: %v", err)
	}
	if len(keys) != 2 || keys[0] != "run-a/chunk_002" {
		t.Errorf("keys = %v", keys)
	}
}

func TestPublish_RepublishReplacesChunks(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	m := manifest("run-a", time.Now())
	if err := s.Publish(ctx, m); err != nil {
		t.Fatal(err)
	}
	m.Chunks = m.Chunks[:1]
	m.ErrorCount = 3
	if err := s.Publish(ctx, m); err != nil {
		t.Fatal(err)
	}

	runs, _ := s.Runs(ctx)
	if len(runs) != 1 || runs[0].Chunks != 1 || runs[0].ErrorCount != 3 {
		t.Errorf("runs = %+v", runs)
	}
}

func TestPublish_CancelledContext(t *testing.T) {
	s := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Publish(ctx, manifest("run-a", time.Now())); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestName(t *testing.T) {
	if got := openTemp(t).Name(); got != "sqlite" {
		t.Errorf("name = %q", got)
	}
}
