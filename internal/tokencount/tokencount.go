// Package tokencount counts model tokens in chunk text.
package tokencount

import (
	"fmt"
	"sync"

	tokenizer "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// Counter wraps a HuggingFace tokenizer.json.
type Counter struct {
	mu  sync.Mutex
	tok *tokenizer.Tokenizer
}

// Load reads the tokenizer at path.
func Load(path string) (*Counter, error) {
	tok, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return &Counter{tok: tok}, nil
}

// Count returns the number of tokens in text without special tokens. A
// tokenizer failure counts as zero.
func (c *Counter) Count(text string) int {
	if c == nil || text == "" {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	enc, err := c.tok.EncodeSingle(text, false)
	if err != nil {
		return 0
	}
	return len(enc.GetIds())
}
