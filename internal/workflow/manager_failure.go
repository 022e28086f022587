package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/queue"
	"clipforge/internal/services"
)

func (m *Manager) failJob(ctx context.Context, logger *slog.Logger, st *jobState, reason string, jobErr error) error {
	job := st.job
	details := services.Details(jobErr)
	now := m.now().UTC()
	job.Status = queue.JobFailed
	job.Reason = reason
	job.ErrorMessage = strings.TrimSpace(details.Message)
	job.CompletedAt = &now

	logging.ErrorWithContext(logger, "job failed", "job_failed",
		logging.String(logging.FieldReason, reason),
		logging.String(logging.FieldErrorKind, details.Kind),
		logging.String("failed_stage", job.CurrentStage),
		logging.Int("failed_items", len(st.failedItems)),
		logging.Alert("job_failure"),
		logging.Error(jobErr),
		logging.String(logging.FieldErrorHint, failureHint(reason)),
	)
	if err := m.store.UpdateJob(ctx, job); err != nil {
		m.setLastError(err)
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not persist job failure")
			return err
		}
		logger.Error("failed to persist job failure", logging.Error(err))
		return err
	}
	m.setLastError(jobErr)
	m.notifyCompletion(ctx, logger, notifications.EventJobFailed, st)
	return nil
}

func (m *Manager) cancelJob(ctx context.Context, logger *slog.Logger, set StageSet, st *jobState) error {
	m.release(ctx, logger, set, st)
	job := st.job
	now := m.now().UTC()
	job.Status = queue.JobCancelled
	job.Reason = services.ReasonCancelled
	job.ErrorMessage = ""
	job.CompletedAt = &now
	if err := m.store.UpdateJob(ctx, job); err != nil {
		logger.Error("failed to persist job cancellation", logging.Error(err))
		return err
	}
	logger.Info("job cancelled",
		logging.String(logging.FieldEventType, "job_cancelled"),
		logging.String("stopped_at", job.CurrentStage),
	)
	return nil
}

func (m *Manager) completeJob(ctx context.Context, logger *slog.Logger, st *jobState, elapsed time.Duration) error {
	job := st.job
	now := m.now().UTC()
	job.Status = queue.JobCompleted
	job.Reason = ""
	job.ErrorMessage = ""
	job.ArtifactLocation = st.artifact.Location
	if job.ArtifactLocation == "" {
		job.ArtifactLocation = st.artifact.Path
	}
	job.CompletedAt = &now
	if err := m.store.UpdateJob(ctx, job); err != nil {
		m.setLastError(err)
		logger.Error("failed to persist job completion", logging.Error(err))
		return err
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "job_complete"),
		logging.String("artifact", job.ArtifactLocation),
		logging.Int("segments", len(st.doc.Segments)),
		logging.Int("failed_items", len(st.failedItems)),
		logging.Duration("elapsed", elapsed),
	}
	if st.score != nil {
		attrs = append(attrs, logging.Float64("quality_score", st.score.Total))
	}
	logger.Info("job completed", logging.Args(attrs...)...)
	m.notifyCompletion(ctx, logger, notifications.EventJobCompleted, st)
	return nil
}

// release asks the finalizer to delete the job's temporary objects. Finalize
// is the only stage allowed to delete them, so failure and cancellation paths
// go through it as well.
func (m *Manager) release(ctx context.Context, logger *slog.Logger, set StageSet, st *jobState) {
	if set.Finalizer == nil || len(st.works) == 0 {
		return
	}
	if err := set.Finalizer.Release(ctx, st.job, st.works); err != nil {
		logging.WarnWithContext(logger, "temporary objects not released", "release_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check object storage access"),
			logging.String(logging.FieldImpact, "temporary objects remain until the expiry sweep"),
		)
	}
}

func failureHint(reason string) string {
	switch reason {
	case services.ReasonNoItemsSurvived:
		return "inspect per-item errors with clipforge status"
	case services.ReasonDecisionUnparseable:
		return "the planning model returned text that could not be repaired into a decision"
	case services.ReasonQualityGateFailed:
		return "lower the quality threshold or adjust the target duration"
	case services.ReasonInferenceFailed:
		return "check the planning model endpoint and API key"
	case services.ReasonExecutionFailed:
		return "check ffmpeg output in the job log"
	case services.ReasonFinalizeFailed:
		return "check object storage access"
	default:
		return "see the job log for the underlying error"
	}
}
