package textutil

import (
	"math"
	"strings"
	"unicode"
)

// Fingerprint represents a term-frequency vector for text similarity comparison.
type Fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// NewFingerprint creates a fingerprint from the provided text.
// Returns nil if the text produces no valid tokens.
func NewFingerprint(text string) *Fingerprint {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]float64, len(tokens))
	for _, token := range tokens {
		counts[token]++
	}
	var sum float64
	for _, count := range counts {
		sum += count * count
	}
	return &Fingerprint{tokens: counts, norm: math.Sqrt(sum)}
}

// Tokenize splits normalized text into tokens. Latin-style words shorter than
// three runes are dropped; Han, Hiragana, Katakana and Hangul runes each form
// their own token since those scripts do not separate words with spaces.
func Tokenize(text string) []string {
	normalized := Normalize(text)
	terms := make([]string, 0, len(normalized)/4)
	var word strings.Builder
	flush := func() {
		if word.Len() == 0 {
			return
		}
		if token := word.String(); len([]rune(token)) >= 3 {
			terms = append(terms, token)
		}
		word.Reset()
	}
	for _, r := range normalized {
		switch {
		case isIdeographic(r):
			flush()
			terms = append(terms, string(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return terms
}

// TokenCount returns the number of unique tokens in the fingerprint.
func (f *Fingerprint) TokenCount() int {
	if f == nil {
		return 0
	}
	return len(f.tokens)
}

func isIdeographic(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}
