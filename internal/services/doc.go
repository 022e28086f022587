// Package services defines shared utilities consumed by the pipeline stage
// handlers and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, item IDs, stage names, attempt
//     numbers, and correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified as transient, item-fatal, decision-fatal, quality-gate, or
//     execution failures.
//   - ReasonCode, which turns a job-level failure into the terminal reason
//     shown by status queries.
package services
