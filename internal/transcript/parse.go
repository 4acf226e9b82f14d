package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Format identifies a transcript encoding.
type Format int

const (
	FormatAuto Format = iota
	FormatVTT
	FormatSRT
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatVTT:
		return "vtt"
	case FormatSRT:
		return "srt"
	case FormatJSON:
		return "json"
	default:
		return "auto"
	}
}

// FormatFromPath maps a file extension to a Format. Unknown extensions map
// to FormatAuto.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".vtt":
		return FormatVTT
	case ".srt":
		return FormatSRT
	case ".json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

var (
	voiceRe   = regexp.MustCompile(`^<v(?:\.[^\s>]+)*\s+([^>]+)>\s*(.*)$`)
	bracketRe = regexp.MustCompile(`^\[([^\]]{1,40})\]:\s*(.*)$`)
	parenRe   = regexp.MustCompile(`^\(([^)]{1,40})\)\s*(.*)$`)
	colonRe   = regexp.MustCompile(`^([A-Za-z][\w .'\-]{0,39}):\s+(.+)$`)
	tagRe     = regexp.MustCompile(`<[^>]*>`)
)

// ParseFile reads and parses the transcript at path. The format is chosen
// from the extension, falling back to content sniffing.
func ParseFile(path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return Parse(f, FormatFromPath(path))
}

// Parse reads a transcript and returns its cues in non-decreasing start
// order. Malformed cues are skipped and reported as warnings; an error is
// returned only when the input cannot be read or is not a JSON document
// when JSON was requested.
func Parse(r io.Reader, format Format) (*Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	if format == FormatAuto {
		format = sniff(text)
	}

	res := &Result{}
	switch format {
	case FormatJSON:
		if err := parseJSON(data, res); err != nil {
			return nil, err
		}
	default:
		parseBlocks(text, format == FormatVTT, res)
	}

	sortCues(res)
	return res, nil
}

func sniff(text string) Format {
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(trimmed, "WEBVTT"):
		return FormatVTT
	case strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{"):
		return FormatJSON
	default:
		return FormatSRT
	}
}

// parseBlocks handles both WebVTT and SubRip; they differ only in the header
// and in which non-cue blocks may appear.
func parseBlocks(text string, vtt bool, res *Result) {
	index := 0
	for _, block := range splitBlocks(text) {
		first := strings.TrimSpace(block[0])
		if vtt && (strings.HasPrefix(first, "WEBVTT") || strings.HasPrefix(first, "NOTE") ||
			first == "STYLE" || first == "REGION") {
			continue
		}
		index++

		timing := -1
		for i, line := range block {
			if strings.Contains(line, "-->") {
				timing = i
				break
			}
		}
		if timing < 0 {
			res.Warnings = append(res.Warnings, Warning{Index: index, Message: "cue has no timing line"})
			continue
		}

		start, end, err := parseTiming(block[timing])
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{Index: index, Message: err.Error()})
			continue
		}
		addCue(res, index, start, end, "", block[timing+1:])
	}
}

func splitBlocks(text string) [][]string {
	var blocks [][]string
	var cur []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				blocks = append(blocks, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

func parseTiming(line string) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	startField := strings.TrimSpace(parts[0])
	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return 0, 0, fmt.Errorf("malformed timing line %q", strings.TrimSpace(line))
	}
	start, err := ParseTimestamp(startField)
	if err != nil {
		return 0, 0, err
	}
	// Anything after the end timestamp is VTT cue settings.
	end, err := ParseTimestamp(endFields[0])
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// addCue validates timing, resolves the speaker and appends the cue. Cues
// whose text is empty after cleanup are dropped without a warning.
func addCue(res *Result, index int, start, end float64, speaker string, lines []string) {
	if end <= start {
		s := start
		res.Warnings = append(res.Warnings, Warning{
			Index:   index,
			Start:   &s,
			Message: fmt.Sprintf("cue end %.3f is not after start %.3f", end, start),
		})
		return
	}

	labels := map[string]bool{}
	var ordered []string
	var text []string
	for _, line := range lines {
		label, body := splitSpeaker(strings.TrimSpace(line))
		if label != "" && !labels[label] {
			labels[label] = true
			ordered = append(ordered, label)
		}
		body = cleanText(body)
		if body != "" {
			text = append(text, body)
		}
	}
	if len(text) == 0 {
		return
	}

	if speaker == "" {
		switch len(ordered) {
		case 0:
			speaker = UnknownSpeaker
		case 1:
			speaker = ordered[0]
		default:
			s := start
			res.Warnings = append(res.Warnings, Warning{
				Index:   index,
				Start:   &s,
				Message: fmt.Sprintf("conflicting speaker labels %s", strings.Join(ordered, ", ")),
			})
			speaker = UnknownSpeaker
		}
	}

	res.Cues = append(res.Cues, Cue{
		Speaker: speaker,
		Start:   start,
		End:     end,
		Text:    strings.Join(text, "\n"),
		Ordinal: index,
	})
}

// splitSpeaker extracts a leading speaker label from one text line.
func splitSpeaker(line string) (string, string) {
	for _, re := range []*regexp.Regexp{voiceRe, bracketRe, parenRe, colonRe} {
		if m := re.FindStringSubmatch(line); m != nil {
			if label := strings.TrimSpace(m[1]); label != "" {
				return label, m[2]
			}
		}
	}
	return "", line
}

func cleanText(s string) string {
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// jsonCue is one entry of a structured transcript. Start and End may be
// numbers (seconds) or timestamp strings.
type jsonCue struct {
	Speaker string          `json:"speaker"`
	Start   json.RawMessage `json:"start"`
	End     json.RawMessage `json:"end"`
	Text    string          `json:"text"`
}

func parseJSON(data []byte, res *Result) error {
	var cues []jsonCue
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("{")) {
		var doc struct {
			Segments []jsonCue `json:"segments"`
			Cues     []jsonCue `json:"cues"`
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return fmt.Errorf("decode transcript: %w", err)
		}
		cues = append(doc.Segments, doc.Cues...)
	} else if err := json.Unmarshal(trimmed, &cues); err != nil {
		return fmt.Errorf("decode transcript: %w", err)
	}

	for i, jc := range cues {
		index := i + 1
		start, err := jsonSeconds(jc.Start)
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{Index: index, Message: "start: " + err.Error()})
			continue
		}
		end, err := jsonSeconds(jc.End)
		if err != nil {
			res.Warnings = append(res.Warnings, Warning{Index: index, Message: "end: " + err.Error()})
			continue
		}
		addCue(res, index, start, end, strings.TrimSpace(jc.Speaker), strings.Split(jc.Text, "\n"))
	}
	return nil
}

func jsonSeconds(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing timestamp")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if v, err := strconv.ParseFloat(s, 64); err == nil && v >= 0 {
			return v, nil
		}
		return ParseTimestamp(s)
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("invalid timestamp %s", raw)
	}
	if v < 0 || math.IsNaN(v) {
		return 0, fmt.Errorf("negative timestamp %v", v)
	}
	return v, nil
}

// sortCues reports each cue that starts before its predecessor and then
// stable-sorts by start, so cues sharing a start keep their input order.
func sortCues(res *Result) {
	for i := 1; i < len(res.Cues); i++ {
		if res.Cues[i].Start < res.Cues[i-1].Start {
			s := res.Cues[i].Start
			res.Warnings = append(res.Warnings, Warning{
				Index:   res.Cues[i].Ordinal,
				Start:   &s,
				Message: fmt.Sprintf("out-of-order cue at %.3f precedes %.3f; input re-sorted", s, res.Cues[i-1].Start),
			})
		}
	}
	sort.SliceStable(res.Cues, func(i, j int) bool {
		return res.Cues[i].Start < res.Cues[j].Start
	})
}
