package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ItemSource is one input of a submitted job.
type ItemSource struct {
	Kind     string `json:"source_kind"`
	Location string `json:"source_location"`
}

// SubmitRequest is the job descriptor accepted by Submit.
type SubmitRequest struct {
	Items            []ItemSource `json:"items"`
	TargetDuration   float64      `json:"target_duration"`
	QualityThreshold *float64     `json:"quality_threshold,omitempty"`
	Strategy         string       `json:"strategy,omitempty"`
	CustomPrompt     string       `json:"custom_prompt,omitempty"`
	OutputQuality    string       `json:"output_quality,omitempty"`
	CallbackURL      string       `json:"callback_url,omitempty"`
}

// SubmitResponse carries the id of an accepted job.
type SubmitResponse struct {
	JobID string `json:"job_id"`
}

// CancelResponse reports the outcome of a cancel request. Exactly one of OK
// and NotFound is true.
type CancelResponse struct {
	OK       bool `json:"ok,omitempty"`
	NotFound bool `json:"not_found,omitempty"`
}

// StageAttempt is the latest attempt of one stage.
type StageAttempt struct {
	Stage     string `json:"stage"`
	Status    string `json:"status"`
	Attempt   int    `json:"attempt"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ItemStatus is one item with its stage progress.
type ItemStatus struct {
	ItemID         string         `json:"item_id"`
	Position       int            `json:"position"`
	SourceKind     string         `json:"source_kind"`
	SourceLocation string         `json:"source_location"`
	Stage          string         `json:"stage,omitempty"`
	Status         string         `json:"status"`
	Duration       float64        `json:"duration,omitempty"`
	ErrorKind      string         `json:"error_kind,omitempty"`
	Error          string         `json:"error,omitempty"`
	Stages         []StageAttempt `json:"stages,omitempty"`
}

// QualityScore is the persisted score-gate outcome.
type QualityScore struct {
	Total      float64            `json:"total"`
	Threshold  float64            `json:"threshold"`
	Pass       bool               `json:"pass"`
	Components map[string]float64 `json:"components"`
}

// Segment is one planned clip.
type Segment struct {
	Item      int     `json:"item"`
	ItemID    string  `json:"item_id,omitempty"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Priority  int     `json:"priority"`
	Rationale string  `json:"rationale,omitempty"`
}

// Decision is the validated plan that passed to execute.
type Decision struct {
	Theme     string    `json:"theme,omitempty"`
	Reasoning string    `json:"reasoning,omitempty"`
	Segments  []Segment `json:"segments"`
}

// JobOptions mirrors the caller's output preferences.
type JobOptions struct {
	Strategy      string `json:"strategy,omitempty"`
	CustomPrompt  string `json:"custom_prompt,omitempty"`
	OutputQuality string `json:"output_quality,omitempty"`
	CallbackURL   string `json:"callback_url,omitempty"`
}

// JobStatus describes one job in a transport-friendly format.
type JobStatus struct {
	JobID            string         `json:"job_id"`
	Status           string         `json:"status"`
	Stage            string         `json:"stage,omitempty"`
	Reason           string         `json:"reason,omitempty"`
	Error            string         `json:"error,omitempty"`
	TargetDuration   float64        `json:"target_duration"`
	QualityThreshold float64        `json:"quality_threshold"`
	Options          JobOptions     `json:"options"`
	CancelRequested  bool           `json:"cancel_requested,omitempty"`
	PerItem          []ItemStatus   `json:"per_item"`
	Stages           []StageAttempt `json:"stages,omitempty"`
	FailedItems      []string       `json:"failed_items,omitempty"`
	QualityScore     *QualityScore  `json:"quality_score,omitempty"`
	Decision         *Decision      `json:"decision,omitempty"`
	ArtifactLocation string         `json:"artifact_location,omitempty"`
	CreatedAt        string         `json:"created_at,omitempty"`
	UpdatedAt        string         `json:"updated_at,omitempty"`
	StartedAt        string         `json:"started_at,omitempty"`
	CompletedAt      string         `json:"completed_at,omitempty"`
}

// JobListResponse wraps a collection of jobs. List entries omit per-item
// detail.
type JobListResponse struct {
	Jobs []JobStatus `json:"jobs"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	ActiveJobs  []string       `json:"active_jobs"`
	QueueStats  map[string]int `json:"queue_stats"`
	LastError   string         `json:"last_error,omitempty"`
	StageHealth []StageHealth  `json:"stage_health"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult is one preflight check outcome.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queue_db_path"`
	LockFilePath string             `json:"lock_file_path"`
	StorageRoot  string             `json:"storage_root"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Checks       []CheckResult      `json:"checks,omitempty"`
}

// ErrorResponse is the body of every non-2xx HTTP reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
