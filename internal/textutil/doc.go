// Package textutil provides text processing utilities shared by the analysis
// stages: Unicode normalization for cue matching, token fingerprints for
// near-duplicate detection, and token sanitization for file names.
//
// Normalization is NFKC followed by case folding, so "１：０５" and "1:05"
// compare equal and English cues match regardless of capitalization.
package textutil
