package cassandra

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tiroq/qacut/internal/index"
	"github.com/tiroq/qacut/internal/sink"
)

func TestRows(t *testing.T) {
	q := "Q3"
	score := 0.88
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	m := &sink.Manifest{
		RunID:     "run-1",
		Source:    "a.vtt",
		CreatedAt: created,
		Chunks: []index.Entry{
			{ChunkID: "chunk_001", Start: 1, End: 2, SpeakerTag: "G"},
			{ChunkID: "chunk_002", QuestionID: &q, SimilarityScore: &score, Start: 3, End: 4, SpeakerTag: "G", VideoFile: "v.mp4"},
		},
	}

	rows := Rows(m)
	if len(rows) != 2 {
		t.Fatalf("rows = %d", len(rows))
	}
	if cols := strings.Count(insertQuery, "?"); len(rows[0]) != cols {
		t.Fatalf("row has %d values for %d placeholders", len(rows[0]), cols)
	}
	if rows[0][2] != nil || rows[0][7] != nil {
		t.Errorf("unmatched chunk should bind nulls: %v", rows[0])
	}
	if rows[1][2] != "Q3" || rows[1][7] != 0.88 || rows[1][8] != "v.mp4" {
		t.Errorf("matched row = %v", rows[1])
	}
	if rows[1][11] != created {
		t.Errorf("created_at = %v", rows[1][11])
	}
}

func TestPublish_UnreachableCluster(t *testing.T) {
	s := New(Config{Hosts: []string{"127.0.0.1:1"}, Keyspace: "qacut", Timeout: 200 * time.Millisecond})
	defer s.Close()

	err := s.Publish(context.Background(), &sink.Manifest{RunID: "r"})
	if err == nil || !strings.Contains(err.Error(), "failed to connect") {
		t.Fatalf("expected connection error, got %v", err)
	}
}

func TestName(t *testing.T) {
	if New(Config{}).Name() != "cassandra" {
		t.Error("unexpected name")
	}
}
