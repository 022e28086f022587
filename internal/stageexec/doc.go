// Package stageexec runs a single pipeline stage for one subject under a
// retry policy and records every attempt in the progress store.
package stageexec
