// Package index joins chunk records with extraction results into the run's
// index.json and moves extraction failures into the error log.
package index

import (
	"bytes"
	"encoding/json"
	"path/filepath"

	"github.com/tiroq/qacut/internal/artifact"
	"github.com/tiroq/qacut/internal/errlog"
	"github.com/tiroq/qacut/internal/extract"
	"github.com/tiroq/qacut/internal/fileutil"
)

// File names inside a run directory.
const (
	IndexFile  = "index.json"
	ErrorsFile = "errors.json"
)

// Entry is one index row. Media paths are relative to the output directory
// and empty, written as null, for tracks that were not extracted.
type Entry struct {
	ChunkID         string   `json:"chunk_id"`
	QuestionID      *string  `json:"question_id"`
	QuestionLabel   string   `json:"question_label,omitempty"`
	Start           float64  `json:"start"`
	End             float64  `json:"end"`
	Duration        float64  `json:"duration"`
	SpeakerTag      string   `json:"speaker_tag"`
	SimilarityScore *float64 `json:"similarity_score"`
	VideoFile       string   `json:"video_file"`
	AudioFile       string   `json:"audio_file"`
	SubtitleFile    string   `json:"subtitle_file"`
}

// MarshalJSON writes missing media paths as null.
func (e Entry) MarshalJSON() ([]byte, error) {
	type plain Entry
	row := struct {
		plain
		VideoFile    *string `json:"video_file"`
		AudioFile    *string `json:"audio_file"`
		SubtitleFile *string `json:"subtitle_file"`
	}{plain(e), orNull(e.VideoFile), orNull(e.AudioFile), orNull(e.SubtitleFile)}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(row); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func orNull(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Assemble returns one entry per record in record order. Each failed result
// is appended to log as a track_failure; results for chunks without a
// record are ignored.
func Assemble(outDir string, records []artifact.Record, results []extract.TrackResult, log *errlog.Log) []Entry {
	entries := make([]Entry, 0, len(records))
	pos := make(map[string]int, len(records))
	for i, r := range records {
		pos[r.ChunkID] = i
		entries = append(entries, Entry{
			ChunkID:         r.ChunkID,
			QuestionID:      r.QuestionID,
			QuestionLabel:   r.QuestionLabel,
			Start:           r.Start,
			End:             r.End,
			Duration:        r.Duration,
			SpeakerTag:      r.SpeakerTag,
			SimilarityScore: r.SimilarityScore,
		})
	}

	for _, res := range results {
		i, ok := pos[res.ChunkID]
		if !ok {
			continue
		}
		if res.Status != extract.StatusOK {
			msg := "extraction failed"
			if res.Err != nil {
				msg = res.Err.Error()
			}
			log.TrackFailure(res.ChunkID, string(res.Track), msg)
			continue
		}
		rel := relative(outDir, res.Path)
		switch res.Track {
		case extract.TrackVideo:
			entries[i].VideoFile = rel
		case extract.TrackAudio:
			entries[i].AudioFile = rel
		case extract.TrackSubtitle:
			entries[i].SubtitleFile = rel
		}
	}
	return entries
}

func relative(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

// Write atomically persists entries as a JSON array.
func Write(path string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	return fileutil.WriteJSON(path, entries)
}

// WriteErrors atomically persists the sorted error log.
func WriteErrors(path string, log *errlog.Log) error {
	entries := log.Entries()
	if entries == nil {
		entries = []errlog.Entry{}
	}
	return fileutil.WriteJSON(path, entries)
}
