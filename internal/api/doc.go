// Package api defines wire-format types and converters for the HTTP and IPC
// layers. It translates workflow snapshots and queue models into
// transport-friendly DTOs so clients never couple to internal types.
//
// # Key Types
//
// SubmitRequest/SubmitResponse: the job descriptor accepted by Submit and the
// id it returns.
//
// JobStatus: one job with per-item stage progress, the quality score and the
// artifact location once available.
//
// CancelResponse: {ok} or {not_found}.
//
// DaemonStatus: daemon runtime information, workflow state, stage health and
// external dependencies.
//
// # Converters
//
// ToJobRequest: SubmitRequest -> workflow.JobRequest.
//
// FromSnapshot: workflow.JobSnapshot -> JobStatus.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// # Design Notes
//
// DTOs use snake_case JSON tags to match the completion callback payload.
// Enums are exposed as lowercase strings. Timestamps use RFC3339 with
// milliseconds in UTC.
package api
