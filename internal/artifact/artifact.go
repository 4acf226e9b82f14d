// Package artifact renders chunks into the markdown transcript and the
// metadata records handed to downstream consumers.
package artifact

import (
	"fmt"
	"math"
	"strings"

	"github.com/tiroq/qacut/internal/fileutil"
	"github.com/tiroq/qacut/internal/question"
	"github.com/tiroq/qacut/internal/segment"
	"github.com/tiroq/qacut/internal/transcript"
)

// Output file names inside a run directory.
const (
	MarkdownFile = "transcript_chunks.md"
	MetadataFile = "chunk_metadata.json"
	VectorsFile  = "chunk_vectors.json"
)

// TokenCounter counts model tokens; *tokencount.Counter satisfies it.
type TokenCounter interface {
	Count(text string) int
}

// Record is the metadata for one chunk.
type Record struct {
	ChunkID         string   `json:"chunk_id"`
	QuestionID      *string  `json:"question_id"`
	QuestionText    string   `json:"question_text,omitempty"`
	QuestionLabel   string   `json:"question_label,omitempty"`
	Start           float64  `json:"start"`
	End             float64  `json:"end"`
	Duration        float64  `json:"duration"`
	SpeakerTag      string   `json:"speaker_tag"`
	SimilarityScore *float64 `json:"similarity_score"`
	Text            string   `json:"text"`
	TokenCount      int      `json:"token_count,omitempty"`
}

// Artifact is the rendered form of one chunk.
type Artifact struct {
	Markdown string
	Record   Record
}

// Builder renders chunks. Both fields are optional.
type Builder struct {
	Bank   *question.Bank
	Tokens TokenCounter
}

// Build renders c. The output depends only on c and the builder's inputs,
// so rebuilding the same chunk is byte-identical.
func (b Builder) Build(c segment.Chunk) Artifact {
	var q question.Question
	var known bool
	if c.QuestionID != "" {
		q, known = b.Bank.Get(c.QuestionID)
	}

	rec := Record{
		ChunkID:    c.ID,
		Start:      round(c.Start, 3),
		End:        round(c.End, 3),
		Duration:   round(c.End-c.Start, 3),
		SpeakerTag: c.Speaker,
		Text:       c.Text,
	}
	if c.QuestionID != "" {
		id := c.QuestionID
		rec.QuestionID = &id
	}
	if known {
		rec.QuestionText = q.Text
		rec.QuestionLabel = q.Label
	}
	if c.Score != nil {
		s := round(*c.Score, 4)
		rec.SimilarityScore = &s
	}
	if b.Tokens != nil {
		rec.TokenCount = b.Tokens.Count(c.Text)
	}

	return Artifact{Markdown: markdown(c, q, known), Record: rec}
}

func markdown(c segment.Chunk, q question.Question, known bool) string {
	var sb strings.Builder
	sb.WriteString("## ")
	sb.WriteString(c.ID)
	if c.QuestionID != "" {
		fmt.Fprintf(&sb, " · [%s]", c.QuestionID)
		if known && q.Label != "" {
			sb.WriteString(" " + q.Label)
		}
	}
	sb.WriteString("\n")

	if known {
		fmt.Fprintf(&sb, "**Matched Question**: %s\n", q.Text)
	}
	if c.Score != nil {
		fmt.Fprintf(&sb, "**Similarity**: %.2f\n", *c.Score)
	}
	fmt.Fprintf(&sb, "**Timestamp**: %s — %s\n\n", transcript.FormatClock(c.Start), transcript.FormatClock(c.End))

	for _, line := range strings.Split(c.Text, "\n") {
		if strings.TrimSpace(line) == "" {
			sb.WriteString(">\n")
			continue
		}
		sb.WriteString("> " + line + "\n")
	}
	return sb.String()
}

// Document joins markdown blocks in order, separated by a blank line.
func Document(blocks []string) string {
	return strings.Join(blocks, "\n")
}

// WriteMarkdown atomically writes the joined blocks to path.
func WriteMarkdown(path string, blocks []string) error {
	return fileutil.WriteFile(path, []byte(Document(blocks)))
}

// WriteMetadata atomically writes records as a JSON array. A nil slice is
// written as [].
func WriteMetadata(path string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	return fileutil.WriteJSON(path, records)
}

// WriteVectors atomically writes chunk_id -> embedding.
func WriteVectors(path string, vectors map[string][]float32) error {
	if vectors == nil {
		vectors = map[string][]float32{}
	}
	return fileutil.WriteJSON(path, vectors)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
