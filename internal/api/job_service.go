package api

import (
	"context"
	"errors"

	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/workflow"
)

// DefaultListLimit bounds job listings when the caller gives no limit.
const DefaultListLimit = 50

// JobManager is the workflow surface the API drives.
type JobManager interface {
	Submit(ctx context.Context, req workflow.JobRequest) (*queue.Job, error)
	GetStatus(ctx context.Context, id string) (*workflow.JobSnapshot, error)
	Cancel(ctx context.Context, id string) (bool, error)
}

// JobLister reads job records for listings.
type JobLister interface {
	ListJobs(ctx context.Context, limit int, statuses ...queue.JobStatus) ([]*queue.Job, error)
}

// JobService exposes the external interfaces returning API DTOs. HTTP and
// IPC handlers share it.
type JobService struct {
	manager JobManager
	jobs    JobLister
}

// NewJobService constructs a JobService.
func NewJobService(manager JobManager, jobs JobLister) *JobService {
	return &JobService{manager: manager, jobs: jobs}
}

// Submit validates and enqueues a job.
func (s *JobService) Submit(ctx context.Context, req SubmitRequest) (SubmitResponse, error) {
	job, err := s.manager.Submit(ctx, ToJobRequest(req))
	if err != nil {
		return SubmitResponse{}, err
	}
	return SubmitResponse{JobID: job.ID}, nil
}

// Describe returns the status of one job. A missing job wraps
// services.ErrNotFound.
func (s *JobService) Describe(ctx context.Context, id string) (JobStatus, error) {
	snap, err := s.manager.GetStatus(ctx, id)
	if err != nil {
		return JobStatus{}, err
	}
	return FromSnapshot(snap), nil
}

// List returns recent jobs, newest first, optionally filtered by status.
func (s *JobService) List(ctx context.Context, limit int, statuses ...string) (JobListResponse, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	filter := make([]queue.JobStatus, 0, len(statuses))
	for _, st := range statuses {
		status, err := ParseJobStatus(st)
		if err != nil {
			return JobListResponse{}, err
		}
		filter = append(filter, status)
	}
	jobs, err := s.jobs.ListJobs(ctx, limit, filter...)
	if err != nil {
		return JobListResponse{}, err
	}
	return JobListResponse{Jobs: FromJobs(jobs)}, nil
}

// Cancel requests cancellation. It is idempotent.
func (s *JobService) Cancel(ctx context.Context, id string) (CancelResponse, error) {
	found, err := s.manager.Cancel(ctx, id)
	if err != nil {
		return CancelResponse{}, err
	}
	if !found {
		return CancelResponse{NotFound: true}, nil
	}
	return CancelResponse{OK: true}, nil
}

// ParseJobStatus validates a status filter.
func ParseJobStatus(value string) (queue.JobStatus, error) {
	switch status := queue.JobStatus(value); status {
	case queue.JobQueued, queue.JobRunning, queue.JobCompleted, queue.JobFailed, queue.JobCancelled:
		return status, nil
	default:
		return "", services.Wrap(services.ErrValidation, "api", "parse status", "unknown job status "+value, nil)
	}
}

// IsNotFound reports whether err means the requested job does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, services.ErrNotFound)
}
