package fileutil

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	illegalChars = regexp.MustCompile(`[\/\\:*?"<>|]`)
	whitespace   = regexp.MustCompile(`[\s_]+`)
)

// SanitizeForFilename sanitizes a string for safe use as a file or directory
// name. Illegal characters become underscores, runs of whitespace and
// underscores collapse to a single hyphen, and the result is capped at 50
// characters.
func SanitizeForFilename(input string) string {
	sanitized := illegalChars.ReplaceAllString(input, "_")
	sanitized = whitespace.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, "-.")

	if len(sanitized) > 50 {
		sanitized = sanitized[:50]
		// Remove trailing hyphen if truncation created one
		sanitized = strings.TrimRight(sanitized, "-")
	}

	if sanitized == "" {
		return "recording"
	}
	return sanitized
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
