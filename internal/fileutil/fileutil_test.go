package fileutil

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteFile_CreatesParentAndContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "nested", "transcript_chunks.md")
	if err := WriteFile(path, []byte("## chunk_001\n")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "## chunk_001\n" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteFile_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")
	for i := 0; i < 3; i++ {
		if err := WriteFile(path, []byte("[]\n")); err != nil {
			t.Fatalf("WriteFile #%d: %v", i, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "index.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("expected only index.json, got %v", names)
	}
}

func TestWriteFile_RenameOntoDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "chunk_metadata.json")
	if err := os.MkdirAll(filepath.Join(target, "blocker"), 0755); err != nil {
		t.Fatal(err)
	}
	err := WriteFile(target, []byte("{}"))
	if err == nil {
		t.Fatal("expected error when target is a non-empty directory")
	}
	if !strings.Contains(err.Error(), "renaming") {
		t.Errorf("expected rename error, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}

func TestWriteJSON_Indented(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.json")
	in := []map[string]interface{}{{"chunk_id": "chunk_002", "track": "video"}}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  {") {
		t.Errorf("expected indented output, got %s", data)
	}
	var out []map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out[0]["track"] != "video" {
		t.Errorf("round trip lost data: %v", out)
	}
}

func TestWriteJSON_NoHTMLEscaping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	if err := WriteJSON(path, map[string]string{"text": "a <b> & c"}); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "a <b> & c") {
		t.Errorf("text was escaped: %s", data)
	}
}

func TestNonEmpty(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.mp4")
	empty := filepath.Join(dir, "empty.mp4")
	_ = os.WriteFile(full, []byte("x"), 0644)
	_ = os.WriteFile(empty, nil, 0644)

	if !NonEmpty(full) {
		t.Error("full file should be non-empty")
	}
	if NonEmpty(empty) {
		t.Error("zero-length file should not count")
	}
	if NonEmpty(filepath.Join(dir, "missing.mp4")) {
		t.Error("missing file should not count")
	}
	if NonEmpty(dir) {
		t.Error("directory should not count")
	}
}

func TestSanitizeForFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Interview: Jane Doe", "Interview-Jane-Doe"},
		{"  spaced   out  ", "spaced-out"},
		{"a/b\\c", "a-b-c"},
		{"", "recording"},
		{"...", "recording"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		if got := SanitizeForFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeForFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStem(t *testing.T) {
	if got := Stem("/inbox/2025-01-15_interview.vtt"); got != "2025-01-15_interview" {
		t.Errorf("Stem = %q", got)
	}
	if got := Stem("noext"); got != "noext" {
		t.Errorf("Stem = %q", got)
	}
}
