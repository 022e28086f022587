package api

import (
	"sort"
	"strings"
	"time"

	"clipforge/internal/decision"
	"clipforge/internal/quality"
	"clipforge/internal/queue"
	"clipforge/internal/stage"
	"clipforge/internal/workflow"
)

// ToJobRequest converts a submit descriptor into the workflow request.
// Normalization and validation happen in the workflow.
func ToJobRequest(req SubmitRequest) workflow.JobRequest {
	out := workflow.JobRequest{
		Items:            make([]workflow.ItemSource, 0, len(req.Items)),
		TargetDuration:   req.TargetDuration,
		QualityThreshold: req.QualityThreshold,
		Options: queue.JobOptions{
			Strategy:      req.Strategy,
			CustomPrompt:  req.CustomPrompt,
			OutputQuality: req.OutputQuality,
			CallbackURL:   req.CallbackURL,
		},
	}
	for _, src := range req.Items {
		out.Items = append(out.Items, workflow.ItemSource{Kind: src.Kind, Location: src.Location})
	}
	return out
}

// FromJob converts a job record without item detail.
func FromJob(job *queue.Job) JobStatus {
	if job == nil {
		return JobStatus{}
	}
	dto := JobStatus{
		JobID:            job.ID,
		Status:           string(job.Status),
		Stage:            job.CurrentStage,
		Reason:           job.Reason,
		Error:            job.ErrorMessage,
		TargetDuration:   job.TargetDuration,
		QualityThreshold: job.QualityThreshold,
		Options: JobOptions{
			Strategy:      job.Options.Strategy,
			CustomPrompt:  job.Options.CustomPrompt,
			OutputQuality: job.Options.OutputQuality,
			CallbackURL:   job.Options.CallbackURL,
		},
		CancelRequested:  job.CancelRequested,
		ArtifactLocation: job.ArtifactLocation,
		CreatedAt:        formatTime(job.CreatedAt),
		UpdatedAt:        formatTime(job.UpdatedAt),
		PerItem:          []ItemStatus{},
	}
	if job.StartedAt != nil {
		dto.StartedAt = formatTime(*job.StartedAt)
	}
	if job.CompletedAt != nil {
		dto.CompletedAt = formatTime(*job.CompletedAt)
	}
	return dto
}

// FromJobs converts a slice of job records.
func FromJobs(jobs []*queue.Job) []JobStatus {
	out := make([]JobStatus, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromSnapshot converts a workflow snapshot into the full status DTO.
func FromSnapshot(snap *workflow.JobSnapshot) JobStatus {
	if snap == nil || snap.Job == nil {
		return JobStatus{}
	}
	dto := FromJob(snap.Job)
	dto.PerItem = make([]ItemStatus, 0, len(snap.Items))
	for _, item := range snap.Items {
		dto.PerItem = append(dto.PerItem, fromItemSnapshot(item))
	}
	dto.Stages = fromStageSnapshots(snap.Stages)
	if failed := snap.FailedItems(); len(failed) > 0 {
		dto.FailedItems = failed
	}
	if snap.Quality != nil {
		dto.QualityScore = FromScore(*snap.Quality)
	}
	if snap.Decision != nil {
		dto.Decision = FromDecision(*snap.Decision)
	}
	return dto
}

func fromItemSnapshot(snap workflow.ItemSnapshot) ItemStatus {
	item := snap.Item
	if item == nil {
		return ItemStatus{}
	}
	return ItemStatus{
		ItemID:         item.ID,
		Position:       item.Position,
		SourceKind:     item.SourceKind,
		SourceLocation: item.SourceLocation,
		Stage:          item.CurrentStage,
		Status:         string(item.Status),
		Duration:       item.Duration,
		ErrorKind:      item.ErrorKind,
		Error:          item.ErrorMessage,
		Stages:         fromStageSnapshots(snap.Stages),
	}
}

func fromStageSnapshots(stages []workflow.StageSnapshot) []StageAttempt {
	if len(stages) == 0 {
		return nil
	}
	out := make([]StageAttempt, 0, len(stages))
	for _, s := range stages {
		out = append(out, StageAttempt{
			Stage:     s.Stage,
			Status:    string(s.Status),
			Attempt:   s.Attempt,
			ErrorKind: s.ErrorKind,
			Error:     s.Error,
		})
	}
	return out
}

// FromScore converts a quality score.
func FromScore(score quality.Score) *QualityScore {
	return &QualityScore{
		Total:      score.Total,
		Threshold:  score.Threshold,
		Pass:       score.Pass,
		Components: score.Components(),
	}
}

// FromDecision converts a decision document.
func FromDecision(doc decision.Document) *Decision {
	out := &Decision{Theme: doc.Theme, Reasoning: doc.Reasoning, Segments: make([]Segment, 0, len(doc.Segments))}
	for _, seg := range doc.Segments {
		out.Segments = append(out.Segments, Segment{
			Item:      seg.Item,
			ItemID:    seg.ItemID,
			Start:     seg.Start,
			End:       seg.End,
			Priority:  seg.Priority,
			Rationale: seg.Rationale,
		})
	}
	return out
}

// FromStatusSummary converts workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	active := summary.ActiveJobs
	if active == nil {
		active = []string{}
	}
	return WorkflowStatus{
		Running:     summary.Running,
		ActiveJobs:  active,
		QueueStats:  MergeQueueStats(summary.QueueStats),
		LastError:   summary.LastError,
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
}

// MergeQueueStats keys counts by status string and fills in every status.
func MergeQueueStats(stats map[queue.JobStatus]int) map[string]int {
	out := map[string]int{
		string(queue.JobQueued):    0,
		string(queue.JobRunning):   0,
		string(queue.JobCompleted): 0,
		string(queue.JobFailed):    0,
		string(queue.JobCancelled): 0,
	}
	for status, count := range stats {
		out[strings.ToLower(string(status))] += count
	}
	return out
}

// stageOrder is the pipeline order used to sort health reports.
var stageOrder = func() map[string]int {
	order := map[string]int{}
	for i, name := range append(append([]string{}, queue.ItemStages...), queue.JobStages...) {
		order[name] = i
	}
	return order
}()

// StageHealthSlice orders stage health by pipeline position.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for name, h := range health {
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.Slice(out, func(i, j int) bool {
		oi, iok := stageOrder[out[i].Name]
		oj, jok := stageOrder[out[j].Name]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
