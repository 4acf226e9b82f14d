package segment

import (
	"fmt"
	"strconv"
	"strings"
)

const idPrefix = "chunk_"

// FormatID returns the id of the n-th chunk, counting from one.
func FormatID(n int) string {
	return fmt.Sprintf("%s%03d", idPrefix, n)
}

// Ordinal returns the number carried by a chunk id. ok is false for ids
// not minted by FormatID.
func Ordinal(id string) (n int, ok bool) {
	digits, found := strings.CutPrefix(id, idPrefix)
	if !found || digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// LessID orders chunk ids by ordinal so chunk_999 sorts before chunk_1000.
// Ids without an ordinal sort after numbered ones, lexically.
func LessID(a, b string) bool {
	na, oka := Ordinal(a)
	nb, okb := Ordinal(b)
	switch {
	case oka && okb:
		if na != nb {
			return na < nb
		}
		return a < b
	case oka != okb:
		return oka
	default:
		return a < b
	}
}
