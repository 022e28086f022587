package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clipforge/internal/logging"
)

// Start re-queues jobs interrupted by a previous shutdown, then begins the
// job loops and the retention loop.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if err := m.stages.validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	requeued, err := m.store.RequeueInterrupted(ctx)
	if err != nil {
		return err
	}
	if requeued > 0 {
		logging.WarnWithContext(m.logger, "re-queued interrupted jobs", "jobs_requeued",
			logging.Int("count", requeued),
			logging.String(logging.FieldErrorHint, "previous daemon stopped while jobs were running"),
			logging.String(logging.FieldImpact, "interrupted jobs restart from prepare"),
		)
	}

	lanes := m.cfg.Workflow.MaxConcurrentJobs
	if lanes <= 0 {
		lanes = 1
	}

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(lanes + 1)
	m.mu.Unlock()

	for i := 0; i < lanes; i++ {
		go m.runJobLoop(runCtx, i)
	}
	go m.runMaintenanceLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for in-flight stage
// invocations to return. Jobs still running stay running in the store.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) runJobLoop(ctx context.Context, lane int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("lane", lane))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.ClaimNextQueued(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleNextJobError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}
		if err := m.processJob(ctx, job); err != nil && errors.Is(err, context.Canceled) {
			return
		}
	}
}

func (m *Manager) handleNextJobError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to claim next job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check progress database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-m.wake:
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) runMaintenanceLoop(ctx context.Context) {
	defer m.wg.Done()
	interval := time.Duration(m.cfg.Workflow.MaintenanceInterval) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := m.RunMaintenance(ctx); err != nil && ctx.Err() == nil {
			logging.WarnWithContext(m.logger, "maintenance pass failed", "maintenance_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check progress database and storage access"),
				logging.String(logging.FieldImpact, "expired jobs or temporary objects remain until the next pass"),
			)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunMaintenance purges terminal jobs past retention and sweeps expired
// temporary objects when the finalizer supports it.
func (m *Manager) RunMaintenance(ctx context.Context) error {
	now := m.now()
	var errs []error
	if hours := m.cfg.Workflow.RetentionHours; hours > 0 {
		purged, err := m.store.PurgeExpired(ctx, now.Add(-time.Duration(hours)*time.Hour))
		if err != nil {
			errs = append(errs, err)
		} else if len(purged) > 0 {
			m.logger.Info("purged expired jobs",
				logging.String(logging.FieldEventType, "jobs_purged"),
				logging.Int("count", len(purged)),
			)
			if m.jobLogs != nil {
				m.jobLogs.Remove(purged)
			}
		}
	}
	if sweeper, ok := m.stageSet().Finalizer.(TempSweeper); ok {
		if hours := m.cfg.Storage.TempExpiryHours; hours > 0 {
			swept, err := sweeper.SweepTemp(ctx, now.Add(-time.Duration(hours)*time.Hour))
			if err != nil {
				errs = append(errs, err)
			} else if swept > 0 {
				m.logger.Info("swept expired temporary objects",
					logging.String(logging.FieldEventType, "temp_swept"),
					logging.Int("count", swept),
				)
			}
		}
	}
	return errors.Join(errs...)
}
