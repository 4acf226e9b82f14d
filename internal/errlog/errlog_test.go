package errlog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func fixedClock() func() time.Time {
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

func TestAdd_FillsTimeAndRunID(t *testing.T) {
	l := New("run-1")
	l.SetClock(fixedClock())
	l.TrackFailure("chunk_002", "video", "ffmpeg exited 1")

	e := l.Entries()[0]
	if e.RunID != "run-1" {
		t.Errorf("run id = %q", e.RunID)
	}
	if !e.Time.Equal(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("time = %v", e.Time)
	}
	if e.Kind != KindTrackFailure || e.ChunkID != "chunk_002" || e.Track != "video" {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestEntries_ChunkIDsOrderedNumerically(t *testing.T) {
	l := New("run")
	l.TrackFailure("chunk_1000", "video", "x")
	l.TrackFailure("chunk_999", "video", "x")
	l.TrackFailure("chunk_010", "video", "x")

	var got []string
	for _, e := range l.Entries() {
		got = append(got, e.ChunkID)
	}
	if want := "chunk_010 chunk_999 chunk_1000"; strings.Join(got, " ") != want {
		t.Errorf("order = %q, want %q", strings.Join(got, " "), want)
	}
}

func TestEntries_DeterministicOrder(t *testing.T) {
	l := New("run")
	p := 3.0
	l.TrackFailure("chunk_003", "subtitle", "s")
	l.TrackFailure("chunk_001", "audio", "a")
	l.ParseWarning(&p, "bad cue")
	l.TrackFailure("chunk_001", "video", "v")
	l.MatchWarning("chunk_001", 40, "no match")
	l.IOFailure("chunk_metadata.json", errors.New("disk full"))
	l.ParseWarning(nil, "out of order")

	var got []string
	for _, e := range l.Entries() {
		got = append(got, string(e.Kind)+":"+e.ChunkID+"/"+e.Track+e.Artifact)
	}
	want := []string{
		"parse_warning:/",
		"io_failure:/chunk_metadata.json",
		"parse_warning:/",
		"match_warning:chunk_001/",
		"track_failure:chunk_001/video",
		"track_failure:chunk_001/audio",
		"track_failure:chunk_003/subtitle",
	}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("order:\n got %v\nwant %v", got, want)
	}
}

func TestEntries_IndependentOfInsertionInterleaving(t *testing.T) {
	build := func(reverse bool) []Entry {
		l := New("run")
		l.SetClock(fixedClock())
		ids := []string{"chunk_001", "chunk_002", "chunk_003", "chunk_004"}
		if reverse {
			for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
				ids[i], ids[j] = ids[j], ids[i]
			}
		}
		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				l.TrackFailure(id, "video", "failed")
			}(id)
		}
		wg.Wait()
		return l.Entries()
	}
	a, b := build(false), build(true)
	for i := range a {
		if a[i].ChunkID != b[i].ChunkID {
			t.Fatalf("position %d differs: %s vs %s", i, a[i].ChunkID, b[i].ChunkID)
		}
	}
}

func TestCount(t *testing.T) {
	l := New("run")
	l.TrackFailure("chunk_001", "video", "x")
	l.TrackFailure("chunk_002", "video", "x")
	l.SinkFailure("redis", errors.New("connection refused"))
	if got := l.Count(KindTrackFailure); got != 2 {
		t.Errorf("track failures = %d, want 2", got)
	}
	if got := l.Count(KindSinkFailure); got != 1 {
		t.Errorf("sink failures = %d, want 1", got)
	}
	if l.Len() != 3 {
		t.Errorf("Len = %d, want 3", l.Len())
	}
}

func TestWrite_EmptyLogIsEmptyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.json")
	if err := New("run").Write(path); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "[]" {
		t.Errorf("expected [], got %s", data)
	}
}

func TestWrite_JSONShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.json")
	l := New("run-9")
	l.SetClock(fixedClock())
	l.MatchWarning("", 12.5, "best Q3 scored 0.41")
	if err := l.Write(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	var out []map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(out))
	}
	e := out[0]
	if e["kind"] != "match_warning" || e["offset"] != 12.5 || e["run_id"] != "run-9" {
		t.Errorf("unexpected entry %v", e)
	}
	if _, ok := e["chunk_id"]; ok {
		t.Error("empty chunk_id should be omitted")
	}
	if e["ts"] != "2026-03-01T09:00:00Z" {
		t.Errorf("ts = %v", e["ts"])
	}
}

func TestEntryString(t *testing.T) {
	e := Entry{
		Time:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Kind:    KindTrackFailure,
		ChunkID: "chunk_002",
		Track:   "video",
		Message: "timeout",
	}
	if got := e.String(); got != "[2026-03-01T09:00:00Z] track_failure chunk_002/video: timeout" {
		t.Errorf("String = %q", got)
	}
}
