// Package match finds the question in a bank closest to an embedding.
package match

import (
	"github.com/tiroq/qacut/internal/config"
	"github.com/tiroq/qacut/internal/embed"
	"github.com/tiroq/qacut/internal/question"
)

// DefaultThreshold is the minimum accepted cosine similarity.
const DefaultThreshold = config.DefaultThreshold

// Result is the best candidate for an embedding.
type Result struct {
	QuestionID string
	Score      float64
}

// Matcher compares embeddings against a bank. It is safe for concurrent use.
type Matcher struct {
	bank      *question.Bank
	threshold float64
}

// New returns a matcher over bank. A threshold <= 0 selects DefaultThreshold.
func New(bank *question.Bank, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{bank: bank, threshold: threshold}
}

// Threshold returns the acceptance threshold.
func (m *Matcher) Threshold() float64 { return m.threshold }

// Match returns the highest scoring question and whether its score reaches
// the threshold. Ties go to the question loaded first. A zero vector or a
// dimension mismatch yields an empty Result and false.
func (m *Matcher) Match(vec []float32) (Result, bool) {
	if m.bank == nil || len(vec) != m.bank.Dim() {
		return Result{}, false
	}
	unit := embed.Normalize(vec)
	if unit == nil {
		return Result{}, false
	}

	var best Result
	found := false
	for _, q := range m.bank.Questions() {
		score := embed.Dot(unit, q.Embedding)
		if !found || score > best.Score {
			best = Result{QuestionID: q.ID, Score: score}
			found = true
		}
	}
	if !found {
		return Result{}, false
	}
	return best, best.Score >= m.threshold
}
