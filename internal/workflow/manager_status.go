package workflow

import (
	"context"
	"encoding/json"
	"sort"

	"clipforge/internal/decision"
	"clipforge/internal/logging"
	"clipforge/internal/quality"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running     bool
	LastError   string
	ActiveJobs  []string
	QueueStats  map[queue.JobStatus]int
	StageHealth map[string]stage.Health
}

// StageSnapshot is the latest attempt of one stage for one subject.
type StageSnapshot struct {
	Stage     string
	Status    queue.StageStatus
	Attempt   int
	ErrorKind string
	Error     string
}

// ItemSnapshot is one item with its per-stage progress.
type ItemSnapshot struct {
	Item   *queue.Item
	Stages []StageSnapshot
}

// JobSnapshot is everything Status reports about one job, rebuilt from the
// store without replaying the pipeline.
type JobSnapshot struct {
	Job      *queue.Job
	Items    []ItemSnapshot
	Stages   []StageSnapshot
	Quality  *quality.Score
	Decision *decision.Document
}

// FailedItems lists the ids of items that did not survive.
func (s *JobSnapshot) FailedItems() []string {
	failed := make([]string, 0)
	for _, item := range s.Items {
		if item.Item.Status == queue.ItemFailed {
			failed = append(failed, item.Item.ID)
		}
	}
	return failed
}

// GetStatus returns a snapshot of job id. A missing job wraps
// services.ErrNotFound.
func (m *Manager) GetStatus(ctx context.Context, id string) (*JobSnapshot, error) {
	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, services.Wrap(services.ErrNotFound, "status", "lookup job", "job "+id+" not found", nil)
	}
	items, err := m.store.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}
	results, err := m.store.StageResults(ctx, id)
	if err != nil {
		return nil, err
	}
	latest := queue.LatestResults(results)

	snap := &JobSnapshot{Job: job, Items: make([]ItemSnapshot, 0, len(items))}
	for _, item := range items {
		snap.Items = append(snap.Items, ItemSnapshot{
			Item:   item,
			Stages: stageSnapshots(latest[item.ID], queue.ItemStages),
		})
	}
	snap.Stages = stageSnapshots(latest[job.ID], queue.JobStages)

	if job.QualityJSON != "" {
		var score quality.Score
		if err := json.Unmarshal([]byte(job.QualityJSON), &score); err == nil {
			snap.Quality = &score
		} else {
			m.logger.Debug("stored quality score unreadable", logging.String(logging.FieldJobID, id), logging.Error(err))
		}
	}
	if job.DecisionJSON != "" {
		if doc, ok := decision.Parse(job.DecisionJSON); ok {
			snap.Decision = &doc
		}
	}
	return snap, nil
}

func stageSnapshots(byStage map[string]queue.StageResult, order []string) []StageSnapshot {
	out := make([]StageSnapshot, 0, len(byStage))
	for _, name := range order {
		res, ok := byStage[name]
		if !ok {
			continue
		}
		out = append(out, StageSnapshot{
			Stage:     name,
			Status:    res.Status,
			Attempt:   res.Attempt,
			ErrorKind: res.ErrorKind,
			Error:     res.ErrorMessage,
		})
	}
	return out
}

// Cancel requests cancellation of job id. It reports false when the job does
// not exist; cancelling a finished job is a no-op that still reports true.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	outcome, err := m.store.RequestCancel(ctx, id)
	if err != nil {
		return false, err
	}
	if !outcome.Found {
		return false, nil
	}
	if run := m.activeRun(id); run != nil {
		run.cancelled.Store(true)
	}
	logging.WithContext(services.WithJobID(ctx, id), m.logger).Info("job cancel requested",
		logging.String(logging.FieldEventType, "job_cancel_requested"),
		logging.String("status", string(outcome.Status)),
		logging.Bool("immediate", outcome.Immediate),
	)
	return true, nil
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	set := m.stages
	active := make([]string, 0, len(m.active))
	for id := range m.active {
		active = append(active, id)
	}
	m.mu.RUnlock()
	sort.Strings(active)

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	checkers := map[string]stage.HealthChecker{
		queue.StagePrepare:      set.Prepare,
		queue.StageTransform:    set.Transform,
		queue.StageAnalyze:      set.Analyze,
		queue.StageAggregate:    set.Aggregator,
		queue.StagePlanGenerate: set.Planner,
		queue.StageExecute:      set.Executor,
		queue.StageFinalize:     set.Finalizer,
	}
	health := make(map[string]stage.Health, len(checkers))
	for name, checker := range checkers {
		if checker == nil {
			continue
		}
		health[name] = checker.HealthCheck(ctx)
	}

	summary := StatusSummary{Running: running, ActiveJobs: active, QueueStats: stats, StageHealth: health}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}
