package textutil

// CosineSimilarity compares two fingerprints, returning 0 when either is
// empty. The shorter vector is walked.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a.TokenCount() == 0 || b.TokenCount() == 0 {
		return 0
	}
	if len(a.tokens) > len(b.tokens) {
		a, b = b, a
	}
	var dot float64
	for token, count := range a.tokens {
		dot += count * b.tokens[token]
	}
	return min(dot/(a.norm*b.norm), 1)
}

// NearDuplicate reports whether two texts are similar enough that keeping
// both adds nothing. Texts without tokens are compared after normalization.
func NearDuplicate(a, b string, threshold float64) bool {
	fa, fb := NewFingerprint(a), NewFingerprint(b)
	if fa == nil || fb == nil {
		return Normalize(a) == Normalize(b)
	}
	return CosineSimilarity(fa, fb) >= threshold
}
