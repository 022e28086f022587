package workflow

import (
	"context"
	"errors"
	"log/slog"

	"clipforge/internal/logging"
	"clipforge/internal/notifications"
)

func (m *Manager) notifyCompletion(ctx context.Context, logger *slog.Logger, event notifications.Event, st *jobState) {
	if m.notifier == nil {
		return
	}
	job := st.job
	completion := notifications.Completion{
		JobID:            job.ID,
		Status:           string(job.Status),
		ArtifactLocation: job.ArtifactLocation,
		QualityScore:     st.score,
		FailedItems:      append([]string{}, st.failedItems...),
		Error:            job.ErrorMessage,
		Reason:           job.Reason,
		CallbackURL:      job.Options.CallbackURL,
	}
	if err := m.notifier.Publish(ctx, event, notifications.CompletionPayload(completion)); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not send completion notification")
		} else {
			logging.WarnWithContext(logger, "completion notification failed", "notification_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ntfy topic and webhook settings"),
				logging.String(logging.FieldImpact, "the job result was stored but not pushed"),
			)
		}
	}
}
