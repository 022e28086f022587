package analysis

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "cl100k_base"

// TokenCounter returns the number of tokens in text.
type TokenCounter func(text string) int

// EstimateTokens approximates a token count as one token per three runes.
func EstimateTokens(text string) int {
	return (utf8.RuneCountInString(text) + 2) / 3
}

var (
	tiktokenOnce    sync.Once
	tiktokenCounter TokenCounter
)

// DefaultTokenCounter counts with the cl100k_base encoding and falls back to
// EstimateTokens when the encoding cannot be loaded.
func DefaultTokenCounter() TokenCounter {
	tiktokenOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			tiktokenCounter = EstimateTokens
			return
		}
		tiktokenCounter = func(text string) int {
			return len(enc.Encode(text, nil, nil))
		}
	})
	return tiktokenCounter
}

// PromptBudget caps the size of the planning prompt.
type PromptBudget struct {
	count TokenCounter
	limit int
}

// NewPromptBudget builds a budget of limit tokens. A non-positive limit
// disables the cap.
func NewPromptBudget(limit int, count TokenCounter) PromptBudget {
	if count == nil {
		count = EstimateTokens
	}
	return PromptBudget{count: count, limit: limit}
}

// Count returns the token count of text.
func (b PromptBudget) Count(text string) int {
	return b.count(text)
}

// Fits reports whether the combined texts stay within the budget.
func (b PromptBudget) Fits(texts ...string) bool {
	if b.limit <= 0 {
		return true
	}
	total := 0
	for _, t := range texts {
		total += b.count(t)
	}
	return total <= b.limit
}
