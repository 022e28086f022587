package temporal

import (
	"sort"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// canonicalText is the NFKC form of a source string plus the byte offsets
// needed to slice the source at positions found in the canonical form.
// Normalization segments are independent, so each is normalized alone and
// its canonical start is paired with its source start.
type canonicalText struct {
	text   string
	source string
	canon  []int
	orig   []int
}

func canonicalize(source string) canonicalText {
	ct := canonicalText{source: source}
	buf := make([]byte, 0, len(source))
	for i := 0; i < len(source); {
		n := norm.NFKC.NextBoundaryInString(source[i:], true)
		if n <= 0 {
			_, n = utf8.DecodeRuneInString(source[i:])
		}
		ct.canon = append(ct.canon, len(buf))
		ct.orig = append(ct.orig, i)
		buf = norm.NFKC.AppendString(buf, source[i:i+n])
		i += n
	}
	ct.text = string(buf)
	return ct
}

// sourceStart maps a canonical offset to the start of the source segment
// that produced it.
func (ct canonicalText) sourceStart(pos int) int {
	idx := sort.Search(len(ct.canon), func(i int) bool { return ct.canon[i] > pos }) - 1
	if idx < 0 {
		return 0
	}
	return ct.orig[idx]
}

// sourceEnd maps a canonical offset to the end of the source segment that
// contains the byte before it, so a slice never cuts a source rune.
func (ct canonicalText) sourceEnd(pos int) int {
	if pos >= len(ct.text) {
		return len(ct.source)
	}
	idx := sort.Search(len(ct.canon), func(i int) bool { return ct.canon[i] >= pos })
	if idx >= len(ct.orig) {
		return len(ct.source)
	}
	return ct.orig[idx]
}

// slice returns the source text behind the canonical span [start, end).
func (ct canonicalText) slice(start, end int) string {
	return ct.source[ct.sourceStart(start):ct.sourceEnd(end)]
}
