package ipc

import "clipforge/internal/api"

// ServiceName is the RPC service the daemon registers.
const ServiceName = "Clipforge"

// StartRequest triggers daemon workflow startup.
type StartRequest struct{}

// StartResponse indicates whether the daemon was started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops daemon workflow.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status. WithChecks also runs preflight.
type StatusRequest struct {
	WithChecks bool `json:"with_checks"`
}

// StatusResponse is the daemon status DTO shared with the HTTP API.
type StatusResponse = api.DaemonStatus

// SubmitRequest is the job descriptor shared with the HTTP API.
type SubmitRequest = api.SubmitRequest

// SubmitResponse carries the new job id.
type SubmitResponse = api.SubmitResponse

// JobStatusRequest fetches one job.
type JobStatusRequest struct {
	ID string `json:"id"`
}

// JobStatusResponse wraps the job status DTO.
type JobStatusResponse struct {
	Job api.JobStatus `json:"job"`
}

// JobListRequest filters job listings.
type JobListRequest struct {
	Statuses []string `json:"statuses"`
	Limit    int      `json:"limit"`
}

// JobListResponse contains job entries, newest first.
type JobListResponse = api.JobListResponse

// CancelRequest cancels one job.
type CancelRequest struct {
	ID string `json:"id"`
}

// CancelResponse reports the cancellation outcome.
type CancelResponse = api.CancelResponse

// LogTailRequest fetches log lines based on offset and follow semantics.
// JobID narrows the read to one job.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	JobID      string `json:"job_id,omitempty"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
	Path   string   `json:"path"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	SchemaVersion    int    `json:"schema_version"`
	TotalJobs        int    `json:"total_jobs"`
	Error            string `json:"error"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
