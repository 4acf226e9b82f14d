package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tiroq/qacut/internal/extract"
	"github.com/tiroq/qacut/internal/fileutil"
	"github.com/tiroq/qacut/internal/transcript"
)

// Subtitle cuts subtitle tracks without external tools. Cues overlapping the
// window are clipped and rebased so the slice starts at zero, then written
// in the output's format (.vtt, .srt or .json).
type Subtitle struct {
	mu     sync.Mutex
	parsed map[string][]transcript.Cue
}

// Slice writes the cues of req.Source that fall inside the window.
func (s *Subtitle) Slice(ctx context.Context, req extract.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cues, err := s.load(req.Source)
	if err != nil {
		return err
	}
	window := transcript.Window(cues, req.Start, req.End)
	if len(window) == 0 {
		return fmt.Errorf("subtitle: no cues between %s and %s",
			transcript.FormatClock(req.Start), transcript.FormatClock(req.End))
	}

	if strings.EqualFold(filepath.Ext(req.Output), ".json") {
		return fileutil.WriteJSON(req.Output, window)
	}
	if err := transcript.WriteAs(req.Output, window); err != nil {
		return fmt.Errorf("subtitle: %w", err)
	}
	return nil
}

// load parses each source once.
func (s *Subtitle) load(path string) ([]transcript.Cue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cues, ok := s.parsed[path]; ok {
		return cues, nil
	}
	res, err := transcript.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("subtitle: %w", err)
	}
	if s.parsed == nil {
		s.parsed = make(map[string][]transcript.Cue)
	}
	s.parsed[path] = res.Cues
	return res.Cues, nil
}
