// Package quality scores a DecisionDocument against the items of its job.
//
// The score is a weighted sum of five sub-scores, each in [0,1]: coverage of
// job items, fit to the target duration, diversity across items, share of
// duration from high-priority segments, and share of segments that carry a
// rationale. Scoring is pure; the same document and items always produce the
// same Score.
package quality
