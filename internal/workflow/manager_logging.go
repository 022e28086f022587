package workflow

import (
	"context"
	"log/slog"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
)

// jobLogger returns the logger for one job run and a func closing its file.
// Without a job log directory the manager logger is used.
func (m *Manager) jobLogger(ctx context.Context, job *queue.Job) (*slog.Logger, func()) {
	base := logging.WithContext(ctx, m.logger)
	if m.jobLogs == nil {
		return base, func() {}
	}
	jobLog, path, closer, err := m.jobLogs.Open(job.ID)
	if err != nil {
		logging.WarnWithContext(base, "job log unavailable", "job_log_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check log directory permissions"),
			logging.String(logging.FieldImpact, "job logs go to the daemon log"),
		)
		return base, func() {}
	}
	base.Info("job log opened",
		logging.String(logging.FieldEventType, "job_log_opened"),
		logging.String("log_file", path),
	)
	logger := logging.WithContext(ctx, logging.NewComponentLogger(jobLog, "workflow"))
	return logger, func() {
		if err := closer.Close(); err != nil {
			base.Debug("job log close failed", logging.Error(err))
		}
	}
}
