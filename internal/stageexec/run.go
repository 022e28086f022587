package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/retry"
	"clipforge/internal/services"
	"clipforge/internal/stage"
)

// Func is one attempt of a stage. Its return value becomes the attempt payload.
type Func func(ctx context.Context) (any, error)

// Options controls how one stage runs for one subject.
type Options struct {
	Logger *slog.Logger
	Store  *queue.Store
	Stage  string
	JobID  string
	// SubjectID is the item id for per-item stages and the job id otherwise.
	SubjectID string
	// Item, when set, tracks the current stage and failure on the item row.
	Item   *queue.Item
	Policy retry.Policy
	// Cancelled is polled before each attempt; a true result stops the stage
	// without starting another attempt.
	Cancelled func() bool
}

// Run executes fn under the retry policy, recording every attempt in the
// progress store keyed by (subject, stage, attempt). Attempt numbers continue
// from the highest already recorded.
func Run(ctx context.Context, opts Options, fn Func) (any, error) {
	if opts.Store == nil {
		return nil, errors.New("progress store is required")
	}
	if strings.TrimSpace(opts.Stage) == "" || strings.TrimSpace(opts.SubjectID) == "" {
		return nil, errors.New("stage and subject are required")
	}

	stageCtx := services.WithStage(ctx, opts.Stage)
	if opts.Item != nil {
		stageCtx = services.WithItemID(stageCtx, opts.Item.ID)
	}
	logger := logging.WithContext(stageCtx, opts.Logger)

	base, err := opts.Store.NextAttempt(stageCtx, opts.SubjectID, opts.Stage)
	if err != nil {
		return nil, err
	}
	if opts.Item != nil {
		opts.Item.Status = queue.ItemRunning
		opts.Item.CurrentStage = opts.Stage
		if err := opts.Store.UpdateItem(stageCtx, opts.Item); err != nil {
			return nil, fmt.Errorf("persist stage start: %w", err)
		}
	}

	var (
		payload    any
		skipped    bool
		recordErrs []error
	)
	policy := opts.Policy
	userHook := policy.OnAttempt
	policy.OnAttempt = func(a retry.Attempt) {
		if userHook != nil {
			userHook(a)
		}
		if skipped {
			return
		}
		number := base + a.Number - 1
		res := queue.StageResult{
			SubjectID: opts.SubjectID,
			JobID:     opts.JobID,
			Stage:     opts.Stage,
			Attempt:   number,
		}
		switch {
		case a.Err == nil:
			res.Status = queue.StageSucceeded
			encoded, encErr := stage.EncodePayload(payload)
			if encErr != nil {
				logger.Warn("stage payload not recorded", logging.Error(encErr))
			}
			res.Payload = encoded
		case a.WillRetry:
			res.Status = queue.StageRetrying
		default:
			res.Status = queue.StageFailed
		}
		if a.Err != nil {
			details := services.Details(a.Err)
			res.ErrorKind = details.Kind
			res.ErrorMessage = details.Message
		}
		if _, err := opts.Store.UpsertStageResult(stageCtx, res); err != nil {
			recordErrs = append(recordErrs, err)
		}
		if a.WillRetry {
			logging.WarnWithContext(logger, "stage attempt failed; retrying", "stage_retry",
				logging.Int(logging.FieldAttempt, number),
				logging.Duration("retry_in", a.Delay),
				logging.String(logging.FieldErrorKind, services.Kind(a.Err)),
				logging.Error(a.Err),
				logging.String(logging.FieldImpact, "stage will run again after the delay"),
			)
		}
	}

	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("first_attempt", base),
		logging.Int("max_attempts", max(policy.MaxAttempts, 1)),
	)
	started := time.Now()

	attempts, runErr := policy.Do(stageCtx, func(ctx context.Context, attempt int) error {
		if opts.Cancelled != nil && opts.Cancelled() {
			skipped = true
			return services.Wrap(services.ErrCancelled, opts.Stage, "start attempt", "job cancellation requested", nil)
		}
		skipped = false
		number := base + attempt - 1
		attemptCtx := services.WithAttempt(ctx, number)
		if _, err := opts.Store.UpsertStageResult(attemptCtx, queue.StageResult{
			SubjectID: opts.SubjectID,
			JobID:     opts.JobID,
			Stage:     opts.Stage,
			Attempt:   number,
			Status:    queue.StageRunning,
		}); err != nil {
			return fmt.Errorf("record attempt start: %w", err)
		}
		out, err := fn(attemptCtx)
		if err == nil {
			payload = out
		}
		return err
	})
	if len(recordErrs) > 0 {
		logger.Warn("stage attempts not fully recorded", logging.Error(errors.Join(recordErrs...)))
	}

	if runErr != nil {
		return nil, handleFailure(stageCtx, logger, opts, attempts, runErr)
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.Int("attempts", attempts),
		logging.Duration("elapsed", time.Since(started)),
	)
	return payload, nil
}

func handleFailure(ctx context.Context, logger *slog.Logger, opts Options, attempts int, stageErr error) error {
	details := services.Details(stageErr)
	if opts.Item != nil {
		opts.Item.Status = queue.ItemFailed
		opts.Item.ErrorKind = details.Kind
		opts.Item.ErrorMessage = details.Message
		if err := opts.Store.UpdateItem(ctx, opts.Item); err != nil {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
	if errors.Is(stageErr, services.ErrCancelled) {
		logger.Info("stage stopped by cancellation",
			logging.String(logging.FieldEventType, "stage_cancelled"),
			logging.Int("attempts", attempts),
		)
		return stageErr
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.Int("attempts", attempts),
		logging.String(logging.FieldErrorKind, details.Kind),
		logging.Bool("fatal", services.IsFatal(stageErr)),
		logging.Error(stageErr),
	)
	return stageErr
}
