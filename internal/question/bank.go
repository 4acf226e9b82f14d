// Package question loads the question bank used to match interviewer
// prompts: a core set plus exactly one category set, embedded once at load.
package question

import (
	"context"
	"fmt"

	"github.com/tiroq/qacut/internal/config"
	"github.com/tiroq/qacut/internal/embed"
)

// Question is one embedded reference prompt.
type Question struct {
	ID        string
	Text      string
	Label     string
	Group     string
	Tags      []string
	Tips      []string
	Category  string    // "core" or the category key
	Embedding []float32 // unit length
}

// CoreCategory tags questions from the core set.
const CoreCategory = "core"

// Bank is an immutable, ordered question set: core first, then the chosen
// category, each in file order.
type Bank struct {
	category  string
	questions []Question
	byID      map[string]int
	dim       int
}

// Load reads the core and category sets from src, validates them and embeds
// every question with emb. All failures are *config.ConfigurationError.
func Load(ctx context.Context, src Source, category string, emb embed.Embedder) (*Bank, error) {
	known, err := src.Categories()
	if err != nil {
		return nil, config.Errorf("questions.dir", "failed to list categories: %v", err)
	}
	if !contains(known, category) {
		return nil, config.Errorf("questions.category", "unknown category %q (known: %v)", category, known)
	}

	core, err := src.Core()
	if err != nil {
		return nil, config.Errorf("questions.dir", "core questions: %v", err)
	}
	cat, err := src.Category(category)
	if err != nil {
		return nil, config.Errorf("questions.dir", "category %q questions: %v", category, err)
	}

	b := &Bank{category: category, byID: make(map[string]int)}
	if err := b.add(core, CoreCategory); err != nil {
		return nil, err
	}
	if err := b.add(cat, category); err != nil {
		return nil, err
	}
	if len(b.questions) == 0 {
		return nil, config.Errorf("questions", "bank for category %q is empty", category)
	}

	for i := range b.questions {
		q := &b.questions[i]
		vec, err := emb.Embed(ctx, q.Text)
		if err != nil {
			return nil, config.Errorf("questions", "embedding question %s: %v", q.ID, err)
		}
		unit := embed.Normalize(vec)
		if unit == nil {
			return nil, config.Errorf("questions", "question %s has a zero or invalid embedding", q.ID)
		}
		if b.dim == 0 {
			b.dim = len(unit)
		} else if len(unit) != b.dim {
			return nil, config.Errorf("questions", "question %s embedding has dimension %d, expected %d", q.ID, len(unit), b.dim)
		}
		q.Embedding = unit
	}
	return b, nil
}

func (b *Bank) add(entries []Entry, category string) error {
	for i, e := range entries {
		id := string(e.ID)
		if id == "" {
			return config.Errorf("questions", "%s entry %d has an empty id", category, i+1)
		}
		text := e.Prompt()
		if text == "" {
			return config.Errorf("questions", "question %s has empty text", id)
		}
		if _, dup := b.byID[id]; dup {
			return config.Errorf("questions", "duplicate question_id %q", id)
		}
		b.byID[id] = len(b.questions)
		b.questions = append(b.questions, Question{
			ID:       id,
			Text:     text,
			Label:    e.Label,
			Group:    e.Group,
			Tags:     append([]string(nil), e.Tags...),
			Tips:     append([]string(nil), e.Tips...),
			Category: category,
		})
	}
	return nil
}

// Get returns the question with id.
func (b *Bank) Get(id string) (Question, bool) {
	if b == nil {
		return Question{}, false
	}
	i, ok := b.byID[id]
	if !ok {
		return Question{}, false
	}
	return b.questions[i], true
}

// Questions returns the questions in load order. The slice is shared and
// must not be modified.
func (b *Bank) Questions() []Question { return b.questions }

// Len returns the number of questions.
func (b *Bank) Len() int { return len(b.questions) }

// Category returns the selected category key.
func (b *Bank) Category() string { return b.category }

// Dim returns the embedding dimensionality.
func (b *Bank) Dim() int { return b.dim }

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// String summarizes the bank for logs.
func (b *Bank) String() string {
	return fmt.Sprintf("%d questions (category %s, dim %d)", len(b.questions), b.category, b.dim)
}
