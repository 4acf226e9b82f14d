package transcript

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tiroq/qacut/internal/fileutil"
)

// EncodeSRT renders cues as a SubRip document. Each cue is numbered
// sequentially with start/end timestamps in HH:MM:SS,mmm format; known
// speakers are written back as a "Name: " prefix.
func EncodeSRT(cues []Cue) []byte {
	var b strings.Builder
	for i, c := range cues {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", FormatSRTTimestamp(c.Start), FormatSRTTimestamp(c.End))
		if known(c.Speaker) {
			b.WriteString(c.Speaker + ": ")
		}
		fmt.Fprintf(&b, "%s\n", c.Text)
	}
	return []byte(b.String())
}

// EncodeVTT renders cues as a WebVTT document preceded by the WEBVTT header.
// Known speakers are written as voice tags.
func EncodeVTT(cues []Cue) []byte {
	var b strings.Builder
	b.WriteString("WEBVTT\n")
	for _, c := range cues {
		b.WriteByte('\n')
		fmt.Fprintf(&b, "%s --> %s\n", FormatVTTTimestamp(c.Start), FormatVTTTimestamp(c.End))
		if known(c.Speaker) {
			fmt.Fprintf(&b, "<v %s>", c.Speaker)
		}
		fmt.Fprintf(&b, "%s\n", c.Text)
	}
	return []byte(b.String())
}

// WriteSRT writes a SubRip (.srt) file atomically.
func WriteSRT(path string, cues []Cue) error {
	return fileutil.WriteFile(path, EncodeSRT(cues))
}

// WriteVTT writes a WebVTT (.vtt) file atomically.
func WriteVTT(path string, cues []Cue) error {
	return fileutil.WriteFile(path, EncodeVTT(cues))
}

// WriteAs writes cues in the format implied by path's extension. Paths that
// are neither .srt nor .vtt are rejected.
func WriteAs(path string, cues []Cue) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".srt":
		return WriteSRT(path, cues)
	case ".vtt":
		return WriteVTT(path, cues)
	default:
		return fmt.Errorf("unsupported subtitle format %q", ext)
	}
}

func known(speaker string) bool {
	return speaker != "" && speaker != UnknownSpeaker
}
