package queue

import (
	"encoding/json"
	"time"
)

// JobStatus is the lifecycle of a job.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the job will not run again.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// ItemStatus is the lifecycle of one item inside a job.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemRunning   ItemStatus = "running"
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
)

// StageStatus is the status of one stage attempt.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageSucceeded StageStatus = "succeeded"
	StageFailed    StageStatus = "failed"
	StageRetrying  StageStatus = "retrying"
)

// IsTerminal reports whether the attempt record is immutable.
func (s StageStatus) IsTerminal() bool {
	switch s {
	case StageSucceeded, StageFailed, StageRetrying:
		return true
	default:
		return false
	}
}

// Pipeline stage names.
const (
	StagePrepare      = "prepare"
	StageTransform    = "transform"
	StageAnalyze      = "analyze"
	StageAggregate    = "aggregate"
	StagePlanGenerate = "plan-generate"
	StageScoreGate    = "score-gate"
	StageExecute      = "execute"
	StageFinalize     = "finalize"
)

// ItemStages run once per item, in order.
var ItemStages = []string{StagePrepare, StageTransform, StageAnalyze}

// JobStages run once per job after the barrier.
var JobStages = []string{StageAggregate, StagePlanGenerate, StageScoreGate, StageExecute, StageFinalize}

// Source kinds accepted in item descriptors.
const (
	SourceLocal  = "local"
	SourceURL    = "url"
	SourceObject = "object"
)

// JobOptions carries the caller's output preferences.
type JobOptions struct {
	Strategy      string `json:"strategy,omitempty"`
	CustomPrompt  string `json:"custom_prompt,omitempty"`
	OutputQuality string `json:"output_quality,omitempty"`
	CallbackURL   string `json:"callback_url,omitempty"`
}

// Job is one submitted request.
type Job struct {
	ID               string
	Status           JobStatus
	TargetDuration   float64
	QualityThreshold float64
	Options          JobOptions
	CurrentStage     string
	Reason           string
	ErrorMessage     string
	DecisionJSON     string
	QualityJSON      string
	ArtifactLocation string
	CancelRequested  bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
}

// Item is one input media unit of a job.
type Item struct {
	ID             string
	JobID          string
	Position       int
	SourceKind     string
	SourceLocation string
	Status         ItemStatus
	CurrentStage   string
	Duration       float64
	ErrorKind      string
	ErrorMessage   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// StageResult is one attempt of one stage for one subject.
type StageResult struct {
	SubjectID    string
	JobID        string
	Stage        string
	Attempt      int
	Status       StageStatus
	Payload      json.RawMessage
	ErrorKind    string
	ErrorMessage string
	StartedAt    time.Time
	UpdatedAt    time.Time
}

// CancelOutcome describes what RequestCancel did.
type CancelOutcome struct {
	Found  bool
	Status JobStatus
	// Immediate is true when a queued job was cancelled without running.
	Immediate bool
}

// DatabaseHealth describes the progress database for diagnostics.
type DatabaseHealth struct {
	DBPath           string `json:"db_path"`
	DatabaseExists   bool   `json:"database_exists"`
	DatabaseReadable bool   `json:"database_readable"`
	SchemaVersion    int    `json:"schema_version"`
	TotalJobs        int    `json:"total_jobs"`
	Error            string `json:"error,omitempty"`
}
