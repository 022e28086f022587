package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"clipforge/internal/decision"
	"clipforge/internal/logging"
	"clipforge/internal/quality"
	"clipforge/internal/queue"
	"clipforge/internal/retry"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/stageexec"
)

// jobState accumulates one job run as it moves past the barrier.
type jobState struct {
	job         *queue.Job
	works       []*stage.ItemWork
	survivors   []*stage.ItemWork
	failedItems []string
	digest      stage.Digest
	doc         decision.Document
	score       *quality.Score
	artifact    stage.Artifact
}

type planPayload struct {
	Strategy string          `json:"strategy"`
	Repairs  []string        `json:"repairs,omitempty"`
	Dropped  []decision.Drop `json:"dropped,omitempty"`
	Segments int             `json:"segments"`
	Removed  int             `json:"duplicates_removed,omitempty"`
}

// processJob runs one claimed job to a terminal state. It returns
// context.Canceled only when the manager is shutting down, in which case the
// job is left running for RequeueInterrupted.
func (m *Manager) processJob(ctx context.Context, job *queue.Job) error {
	run := m.track(job.ID)
	defer m.untrack(job.ID)

	jobCtx := services.WithRequestID(services.WithJobID(ctx, job.ID), m.newID())
	logger, closeLog := m.jobLogger(jobCtx, job)
	defer closeLog()
	set := m.stageSet()
	started := time.Now()

	items, err := m.store.ListItems(jobCtx, job.ID)
	if err != nil {
		m.setLastError(err)
		return m.failJob(jobCtx, logger, &jobState{job: job}, services.ReasonInternal, err)
	}
	st := &jobState{job: job, works: make([]*stage.ItemWork, 0, len(items))}
	for _, item := range items {
		st.works = append(st.works, &stage.ItemWork{Job: job, Item: item})
	}
	logger.Info("job started",
		logging.String(logging.FieldEventType, "job_start"),
		logging.Int("items", len(items)),
		logging.Float64("target_duration", job.TargetDuration),
	)

	branches := m.runBranches(jobCtx, logger, run, set, st.works)
	if ctx.Err() != nil {
		logger.Info("job interrupted by shutdown", logging.String(logging.FieldEventType, "job_interrupted"))
		return ctx.Err()
	}
	st.survivors, st.failedItems = splitBranches(branches)
	logger.Info("barrier released",
		logging.String(logging.FieldEventType, "barrier_release"),
		logging.Int("items", len(branches)),
		logging.Int("survived", len(st.survivors)),
		logging.Int("failed", len(st.failedItems)),
	)

	if m.cancelRequested(jobCtx, run) {
		return m.cancelJob(jobCtx, logger, set, st)
	}
	if len(st.survivors) == 0 {
		err := services.Wrap(services.ErrItemFatal, queue.StageAggregate, "collect branches",
			fmt.Sprintf("none of %d items survived", len(branches)), firstBranchError(branches))
		m.release(jobCtx, logger, set, st)
		return m.failJob(jobCtx, logger, st, services.ReasonNoItemsSurvived, err)
	}

	failedStage, err := m.runJobStages(jobCtx, logger, run, set, st, branches)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("job interrupted by shutdown", logging.String(logging.FieldEventType, "job_interrupted"))
			return ctx.Err()
		}
		if errors.Is(err, services.ErrCancelled) || run.cancelled.Load() {
			return m.cancelJob(jobCtx, logger, set, st)
		}
		reason := services.StageReasonCode(failedStage, err)
		if failedStage != queue.StageFinalize {
			m.release(jobCtx, logger, set, st)
		}
		return m.failJob(jobCtx, logger, st, reason, err)
	}

	return m.completeJob(jobCtx, logger, st, time.Since(started))
}

// runJobStages runs the once-per-job stages in order and reports the stage
// that failed.
func (m *Manager) runJobStages(ctx context.Context, logger *slog.Logger, run *jobRun, set StageSet, st *jobState, branches []stage.BranchResult) (string, error) {
	job := st.job

	err := m.runJobStage(ctx, logger, run, job, queue.StageAggregate, retry.Once(), func(ctx context.Context) (any, error) {
		digest, err := set.Aggregator.Aggregate(ctx, job, branches)
		if err != nil {
			return nil, err
		}
		st.digest = digest
		return digest, nil
	})
	if err != nil {
		return queue.StageAggregate, err
	}

	err = m.runJobStage(ctx, logger, run, job, queue.StagePlanGenerate, retry.FromConfig(m.cfg.Retry.PlanGenerate), func(ctx context.Context) (any, error) {
		raw, err := set.Planner.Plan(ctx, job, st.digest)
		if err != nil {
			return nil, err
		}
		res := decision.NewParser(st.digest.Bounds()).Parse(raw)
		if !res.OK {
			return nil, services.Wrap(services.ErrDecision, queue.StagePlanGenerate, "parse decision", res.Diagnostic, nil)
		}
		doc := decision.Dedupe(res.Document, dedupeWindow)
		if len(res.Dropped) > 0 {
			logging.WarnWithContext(logging.WithContext(ctx, logger), "decision segments dropped", "segments_dropped",
				logging.Int("dropped", len(res.Dropped)),
				logging.Any("reasons", res.Dropped),
				logging.String(logging.FieldErrorHint, "inference referenced unknown items or offsets past an item's end"),
				logging.String(logging.FieldImpact, "dropped segments are excluded from scoring and output"),
			)
		}
		st.doc = doc
		return planPayload{
			Strategy: res.Strategy,
			Repairs:  res.Repairs,
			Dropped:  res.Dropped,
			Segments: len(doc.Segments),
			Removed:  len(res.Document.Segments) - len(doc.Segments),
		}, nil
	})
	if err != nil {
		return queue.StagePlanGenerate, err
	}
	if data, encErr := st.doc.Marshal(); encErr == nil {
		job.DecisionJSON = string(data)
	}

	err = m.runJobStage(ctx, logger, run, job, queue.StageScoreGate, retry.Once(), func(ctx context.Context) (any, error) {
		scorer := m.scorer.WithThreshold(job.QualityThreshold)
		score := scorer.Score(st.doc, stage.JobBounds(st.works), job.TargetDuration)
		st.score = &score
		if data, encErr := json.Marshal(score); encErr == nil {
			job.QualityJSON = string(data)
		}
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "quality_gate"),
			logging.Float64("total", score.Total),
			logging.Float64("threshold", score.Threshold),
			logging.Bool("pass", score.Pass),
		}
		for name, value := range score.Components() {
			attrs = append(attrs, logging.Float64(name, value))
		}
		logging.WithContext(ctx, logger).Info("quality gate evaluated", logging.Args(attrs...)...)
		if !score.Pass {
			return nil, services.Wrap(services.ErrQualityGate, queue.StageScoreGate, "evaluate",
				fmt.Sprintf("score %.3f below threshold %.3f", score.Total, score.Threshold), nil)
		}
		return score, nil
	})
	if err != nil {
		return queue.StageScoreGate, err
	}

	err = m.runJobStage(ctx, logger, run, job, queue.StageExecute, retry.FromConfig(m.cfg.Retry.Execute), func(ctx context.Context) (any, error) {
		artifact, err := set.Executor.Execute(ctx, job, st.doc, st.survivors)
		if err != nil {
			if services.IsFatal(err) || errors.Is(err, services.ErrExecution) {
				return nil, err
			}
			return nil, services.Wrap(services.ErrExecution, queue.StageExecute, "render", "", err)
		}
		st.artifact = artifact
		return artifact, nil
	})
	if err != nil {
		return queue.StageExecute, err
	}

	err = m.runJobStage(ctx, logger, run, job, queue.StageFinalize, retry.FromConfig(m.cfg.Retry.Finalize), func(ctx context.Context) (any, error) {
		artifact, err := set.Finalizer.Finalize(ctx, job, st.artifact, st.works)
		if err != nil {
			return nil, err
		}
		st.artifact = artifact
		return artifact, nil
	})
	if err != nil {
		return queue.StageFinalize, err
	}
	return "", nil
}

// runJobStage runs one job-level stage on a pool slot, recording attempts
// under the job id.
func (m *Manager) runJobStage(ctx context.Context, logger *slog.Logger, run *jobRun, job *queue.Job, name string, policy retry.Policy, fn stageexec.Func) error {
	if m.cancelRequested(ctx, run) {
		return services.Wrap(services.ErrCancelled, name, "start stage", "job cancellation requested", nil)
	}
	job.CurrentStage = name
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("persist job stage: %w", err)
	}
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.releaseSlot()
	_, err := stageexec.Run(ctx, stageexec.Options{
		Logger:    logger,
		Store:     m.store,
		Stage:     name,
		JobID:     job.ID,
		SubjectID: job.ID,
		Policy:    policy,
		Cancelled: func() bool { return m.cancelRequested(ctx, run) },
	}, fn)
	return err
}

func firstBranchError(branches []stage.BranchResult) error {
	for _, br := range branches {
		if br.Err != nil {
			return br.Err
		}
	}
	return nil
}
