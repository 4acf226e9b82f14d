package transcript

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sampleCues() []Cue {
	return []Cue{
		{Speaker: "Speaker 1", Start: 0, End: 5.23, Text: "Hello, welcome to the interview."},
		{Speaker: UnknownSpeaker, Start: 5.5, End: 10.1, Text: "Let's begin."},
	}
}

func TestEncodeSRT(t *testing.T) {
	got := string(EncodeSRT(sampleCues()))

	if !strings.HasPrefix(got, "1\n") {
		t.Errorf("SRT should start with cue number 1; got:\n%s", got)
	}
	if !strings.Contains(got, "00:00:00,000 --> 00:00:05,230") {
		t.Errorf("missing first SRT timestamp; got:\n%s", got)
	}
	if !strings.Contains(got, "00:00:05,500 --> 00:00:10,100") {
		t.Errorf("missing second SRT timestamp; got:\n%s", got)
	}
	if !strings.Contains(got, "Speaker 1: Hello, welcome to the interview.") {
		t.Errorf("speaker prefix missing; got:\n%s", got)
	}
	if strings.Contains(got, "unknown:") {
		t.Errorf("unknown speaker must not be written; got:\n%s", got)
	}
	if !strings.Contains(got, "\n2\n") {
		t.Errorf("missing cue number 2; got:\n%s", got)
	}
}

func TestEncodeVTT(t *testing.T) {
	got := string(EncodeVTT(sampleCues()))

	if !strings.HasPrefix(got, "WEBVTT\n") {
		t.Errorf("VTT should start with WEBVTT header; got:\n%s", got)
	}
	if !strings.Contains(got, "00:00:00.000 --> 00:00:05.230") {
		t.Errorf("missing VTT timestamp; got:\n%s", got)
	}
	if !strings.Contains(got, "<v Speaker 1>Hello") {
		t.Errorf("voice tag missing; got:\n%s", got)
	}
}

func TestEncodeVTT_ReparsesToSameCues(t *testing.T) {
	in := sampleCues()
	res, err := Parse(bytes.NewReader(EncodeVTT(in)), FormatAuto)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Cues) != len(in) {
		t.Fatalf("expected %d cues, got %d", len(in), len(res.Cues))
	}
	for i := range in {
		want := in[i]
		want.Ordinal = i + 1
		if res.Cues[i] != want {
			t.Errorf("cue %d = %+v, want %+v", i, res.Cues[i], want)
		}
	}
}

func TestWriteAs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"clip.srt", "clip.vtt"} {
		path := filepath.Join(dir, name)
		if err := WriteAs(path, sampleCues()); err != nil {
			t.Fatalf("WriteAs(%s): %v", name, err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	if err := WriteAs(filepath.Join(dir, "clip.ass"), sampleCues()); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestTimestampFormatting(t *testing.T) {
	tests := []struct {
		sec                float64
		clock, srt, vtt string
	}{
		{0, "00:00:00", "00:00:00,000", "00:00:00.000"},
		{12.5, "00:00:12", "00:00:12,500", "00:00:12.500"},
		{3723.004, "01:02:03", "01:02:03,004", "01:02:03.004"},
		{-1, "00:00:00", "00:00:00,000", "00:00:00.000"},
	}
	for _, tt := range tests {
		if got := FormatClock(tt.sec); got != tt.clock {
			t.Errorf("FormatClock(%v) = %q, want %q", tt.sec, got, tt.clock)
		}
		if got := FormatSRTTimestamp(tt.sec); got != tt.srt {
			t.Errorf("FormatSRTTimestamp(%v) = %q, want %q", tt.sec, got, tt.srt)
		}
		if got := FormatVTTTimestamp(tt.sec); got != tt.vtt {
			t.Errorf("FormatVTTTimestamp(%v) = %q, want %q", tt.sec, got, tt.vtt)
		}
	}
}

func TestWindow(t *testing.T) {
	cues := []Cue{
		{Speaker: "A", Start: 0, End: 10, Text: "before and into"},
		{Speaker: "B", Start: 10, End: 12, Text: "inside"},
		{Speaker: "A", Start: 12, End: 30, Text: "past the end"},
		{Speaker: "A", Start: 30, End: 31, Text: "outside"},
	}
	got := Window(cues, 8, 20)
	if len(got) != 3 {
		t.Fatalf("expected 3 cues, got %+v", got)
	}
	if got[0].Start != 0 || got[0].End != 2 {
		t.Errorf("first cue not clipped/rebased: %+v", got[0])
	}
	if got[1].Start != 2 || got[1].End != 4 {
		t.Errorf("second cue not rebased: %+v", got[1])
	}
	if got[2].Start != 4 || got[2].End != 12 {
		t.Errorf("third cue not clipped: %+v", got[2])
	}
}
