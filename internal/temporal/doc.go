// Package temporal turns natural-language time mentions into timestamps.
//
// Extract recognizes HH:MM:SS, MM:SS, and bare seconds ("65s", "65.5 seconds",
// "第30秒", "around 65"), scores each hit by the emphasis vocabulary near it,
// and merges hits that land within MergeWindow seconds of each other so the
// same moment is never reported twice.
package temporal
