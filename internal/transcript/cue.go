// Package transcript parses timestamped, speaker-tagged transcripts (WebVTT,
// SubRip or a structured JSON transcript) into an ordered cue sequence and
// writes cue sequences back out as subtitle files.
package transcript

// UnknownSpeaker is assigned to cues without a usable speaker label.
const UnknownSpeaker = "unknown"

// Cue is one timestamped, speaker-tagged line from the source transcript.
// Start and End are seconds from the beginning of the recording. Ordinal is
// the cue's 1-based position in the source file, counting dropped cues.
type Cue struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Ordinal int     `json:"-"`
}

// Duration returns End - Start in seconds.
func (c Cue) Duration() float64 {
	return c.End - c.Start
}

// Warning describes a cue that was skipped or adjusted during parsing.
// Index is the 1-based source ordinal of the offending cue.
type Warning struct {
	Index   int
	Start   *float64
	Message string
}

// Result is the outcome of parsing one transcript.
type Result struct {
	Cues     []Cue
	Warnings []Warning
}

// Window returns the cues overlapping [start, end), clipped to the window and
// rebased so that start becomes zero. Input order is preserved.
func Window(cues []Cue, start, end float64) []Cue {
	var out []Cue
	for _, c := range cues {
		if c.End <= start || c.Start >= end {
			continue
		}
		s, e := c.Start, c.End
		if s < start {
			s = start
		}
		if e > end {
			e = end
		}
		out = append(out, Cue{
			Speaker: c.Speaker,
			Start:   roundMillis(s - start),
			End:     roundMillis(e - start),
			Text:    c.Text,
			Ordinal: c.Ordinal,
		})
	}
	return out
}
