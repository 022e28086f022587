// Package stage defines the contracts between the orchestrator and the
// pipeline stages, plus the data each stage hands to the next.
package stage
