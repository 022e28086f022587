package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"clipforge/internal/analysis"
	"clipforge/internal/assembly"
	"clipforge/internal/config"
	"clipforge/internal/ingest"
	"clipforge/internal/media/ffmpeg"
	"clipforge/internal/queue"
	"clipforge/internal/services/llm"
	"clipforge/internal/sources"
	"clipforge/internal/storage"
	"clipforge/internal/workflow"
)

// BuildStages constructs the production stage handlers: local object
// storage, the source fetcher, the ffmpeg runner, and one inference provider
// per configured model.
func BuildStages(cfg *config.Config, store *queue.Store, logger *slog.Logger) (workflow.StageSet, error) {
	if cfg == nil || store == nil {
		return workflow.StageSet{}, fmt.Errorf("stages require config and store")
	}

	objects, err := storage.NewLocal(cfg.Storage)
	if err != nil {
		return workflow.StageSet{}, fmt.Errorf("open object storage: %w", err)
	}
	fetcher := sources.NewFetcher(objects, sources.WithLogger(logger))
	runner := ffmpeg.NewRunner(cfg.Media.FFmpegBinary, time.Duration(cfg.Media.CommandTimeoutSeconds)*time.Second, logger)

	vision, err := llm.FromConfig(cfg.LLM, cfg.LLM.VisionModel)
	if err != nil {
		return workflow.StageSet{}, fmt.Errorf("vision provider: %w", err)
	}
	planning, err := llm.FromConfig(cfg.LLM, cfg.LLM.PlanModel)
	if err != nil {
		return workflow.StageSet{}, fmt.Errorf("planning provider: %w", err)
	}

	activeJobs := func(ctx context.Context) ([]string, error) {
		jobs, err := store.ListJobs(ctx, 0, queue.JobQueued, queue.JobRunning)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(jobs))
		for _, job := range jobs {
			ids = append(ids, job.ID)
		}
		return ids, nil
	}

	return workflow.StageSet{
		Prepare:    ingest.NewPreparer(cfg, fetcher, logger),
		Transform:  ingest.NewTransformer(cfg, runner, objects, logger),
		Analyze:    analysis.NewAnalyzer(cfg, vision, objects, logger),
		Aggregator: analysis.NewAggregator(logger),
		Planner:    analysis.NewPlanner(cfg, planning, logger),
		Executor:   assembly.NewExecutor(cfg, runner, logger),
		Finalizer:  assembly.NewFinalizer(cfg, objects, logger, assembly.WithActiveJobs(activeJobs)),
	}, nil
}
