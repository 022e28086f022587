package textutil

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize maps text to a canonical comparison form: NFKC (full-width digits
// and colons become ASCII), Unicode case folding, and collapsed whitespace.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	folded := folder.String(norm.NFKC.String(text))
	return strings.Join(strings.Fields(folded), " ")
}

// Canonical applies NFKC only, preserving case and spacing. Rune offsets are
// not guaranteed to survive Normalize, so callers that need to slice the
// original text use Canonical.
func Canonical(text string) string {
	return norm.NFKC.String(text)
}

// Truncate shortens text to at most limit runes, appending an ellipsis when cut.
func Truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit == 1 {
		return "…"
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
