package transcript

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// timestampRe accepts HH:MM:SS.mmm, HH:MM:SS,mmm, MM:SS.mmm and MM:SS,mmm
// with a 1-3 digit fraction.
var timestampRe = regexp.MustCompile(`^(?:(\d+):)?(\d{1,2}):(\d{1,2})(?:[.,](\d{1,3}))?$`)

// ParseTimestamp converts a subtitle timestamp to seconds.
func ParseTimestamp(s string) (float64, error) {
	m := timestampRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	var h int64
	if m[1] != "" {
		h, _ = strconv.ParseInt(m[1], 10, 64)
	}
	min, _ := strconv.ParseInt(m[2], 10, 64)
	sec, _ := strconv.ParseInt(m[3], 10, 64)
	if sec > 59 || (m[1] != "" && min > 59) {
		return 0, fmt.Errorf("invalid timestamp %q: field out of range", s)
	}
	var ms int64
	if frac := m[4]; frac != "" {
		ms, _ = strconv.ParseInt(frac, 10, 64)
		for i := len(frac); i < 3; i++ {
			ms *= 10
		}
	}
	total := ((h*60+min)*60+sec)*1000 + ms
	return float64(total) / 1000, nil
}

// FormatClock formats seconds as HH:MM:SS, truncating the fraction.
func FormatClock(sec float64) string {
	h, m, s, _ := split(sec)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatSRTTimestamp formats seconds as HH:MM:SS,mmm (SRT subtitle format).
func FormatSRTTimestamp(sec float64) string {
	h, m, s, ms := split(sec)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// FormatVTTTimestamp formats seconds as HH:MM:SS.mmm (WebVTT format).
func FormatVTTTimestamp(sec float64) string {
	h, m, s, ms := split(sec)
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

func split(sec float64) (h, m, s, ms int64) {
	if sec < 0 {
		sec = 0
	}
	total := int64(math.Round(sec * 1000))
	ms = total % 1000
	total /= 1000
	s = total % 60
	m = (total / 60) % 60
	h = total / 3600
	return h, m, s, ms
}

func roundMillis(sec float64) float64 {
	return math.Round(sec*1000) / 1000
}
