// Package decision holds the DecisionDocument schema and the parser that
// recovers it from free-form inference output.
//
// Parse tries, in order: the longest fenced block labelled json, then a
// bracket-matched span of the raw text. Each candidate is decoded as-is and
// then after cumulative syntactic repairs (trailing commas, single quotes,
// comments, bare keys, unclosed brackets). The first candidate that passes
// schema validation wins; segments that fail validation are dropped one by
// one rather than rejecting the document. Parse never panics and never
// returns an error value: callers branch on Result.OK.
package decision
