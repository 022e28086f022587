package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/retry"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/stageexec"
)

type itemStage struct {
	name    string
	handler stage.ItemHandler
	policy  retry.Policy
}

func (m *Manager) itemStages(set StageSet) []itemStage {
	return []itemStage{
		{name: queue.StagePrepare, handler: set.Prepare, policy: retry.FromConfig(m.cfg.Retry.Prepare)},
		{name: queue.StageTransform, handler: set.Transform, policy: retry.FromConfig(m.cfg.Retry.Transform)},
		{name: queue.StageAnalyze, handler: set.Analyze, policy: retry.FromConfig(m.cfg.Retry.Analyze)},
	}
}

// runBranches launches one branch per item and blocks until the barrier has
// seen every branch settle.
func (m *Manager) runBranches(ctx context.Context, logger *slog.Logger, run *jobRun, set StageSet, works []*stage.ItemWork) []stage.BranchResult {
	b := newBarrier(len(works))
	stages := m.itemStages(set)
	for _, work := range works {
		go func(work *stage.ItemWork) {
			res := stage.BranchResult{Work: work}
			defer func() {
				if r := recover(); r != nil {
					res.Succeeded = false
					res.Err = services.Wrap(services.ErrItemFatal, work.Item.CurrentStage, "run branch", fmt.Sprintf("panic: %v", r), nil)
					logging.ErrorWithContext(logger, "item branch panicked", "branch_panic",
						logging.String(logging.FieldItemID, work.Item.ID),
						logging.Error(res.Err),
					)
				}
				if !b.Arrive(res) {
					logger.Warn("duplicate branch arrival ignored",
						logging.String(logging.FieldItemID, work.Item.ID),
						logging.Alert("barrier_duplicate"),
					)
				}
			}()
			res = m.runBranch(ctx, logger, run, stages, work)
		}(work)
	}
	return b.Wait()
}

// runBranch runs the item stages in strict order. The first failure ends the
// branch; the failure stays on the item.
func (m *Manager) runBranch(ctx context.Context, logger *slog.Logger, run *jobRun, stages []itemStage, work *stage.ItemWork) stage.BranchResult {
	item := work.Item
	for _, st := range stages {
		if err := m.runItemStage(ctx, logger, run, st, work); err != nil {
			return stage.BranchResult{Work: work, Err: err}
		}
	}
	item.Status = queue.ItemSucceeded
	item.ErrorKind = ""
	item.ErrorMessage = ""
	if err := m.store.UpdateItem(ctx, item); err != nil {
		logger.Error("failed to persist item success", logging.String(logging.FieldItemID, item.ID), logging.Error(err))
	}
	return stage.BranchResult{Work: work, Succeeded: true}
}

func (m *Manager) runItemStage(ctx context.Context, logger *slog.Logger, run *jobRun, st itemStage, work *stage.ItemWork) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.releaseSlot()
	_, err := stageexec.Run(ctx, stageexec.Options{
		Logger:    logger,
		Store:     m.store,
		Stage:     st.name,
		JobID:     work.Item.JobID,
		SubjectID: work.Item.ID,
		Item:      work.Item,
		Policy:    st.policy,
		Cancelled: func() bool { return m.cancelRequested(ctx, run) },
	}, m.itemAttempt(st, work))
	return err
}

func (m *Manager) itemAttempt(st itemStage, work *stage.ItemWork) stageexec.Func {
	return func(ctx context.Context) (any, error) {
		payload, err := st.handler.Execute(ctx, work)
		if err != nil {
			return nil, err
		}
		if st.name == queue.StagePrepare {
			if limit := m.cfg.Workflow.MaxItemDuration; limit > 0 && work.Duration > limit {
				return nil, services.Wrap(services.ErrItemFatal, st.name, "check duration",
					fmt.Sprintf("duration %.1fs exceeds the limit of %.1fs", work.Duration, limit), nil)
			}
			work.Item.Duration = work.Duration
		}
		return payload, nil
	}
}

func splitBranches(branches []stage.BranchResult) (survivors []*stage.ItemWork, failedItems []string) {
	for _, br := range branches {
		if br.Succeeded {
			survivors = append(survivors, br.Work)
			continue
		}
		if br.Work != nil && br.Work.Item != nil {
			failedItems = append(failedItems, br.Work.Item.ID)
		}
	}
	return survivors, failedItems
}
