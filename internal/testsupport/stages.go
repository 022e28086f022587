package testsupport

import (
	"context"

	"clipforge/internal/decision"
	"clipforge/internal/queue"
	"clipforge/internal/stage"
	"clipforge/internal/workflow"
)

type noopStage struct{ name string }

func (s noopStage) HealthCheck(context.Context) stage.Health { return stage.Healthy(s.name) }

func (noopStage) Execute(context.Context, *stage.ItemWork) (any, error) { return nil, nil }

func (noopStage) Aggregate(context.Context, *queue.Job, []stage.BranchResult) (stage.Digest, error) {
	return stage.Digest{}, nil
}

func (noopStage) Plan(context.Context, *queue.Job, stage.Digest) (string, error) {
	return `{"segments": []}`, nil
}

type noopExecutor struct{ noopStage }

func (noopExecutor) Execute(context.Context, *queue.Job, decision.Document, []*stage.ItemWork) (stage.Artifact, error) {
	return stage.Artifact{}, nil
}

type noopFinalizer struct{ noopStage }

func (noopFinalizer) Finalize(_ context.Context, _ *queue.Job, a stage.Artifact, _ []*stage.ItemWork) (stage.Artifact, error) {
	return a, nil
}

func (noopFinalizer) Release(context.Context, *queue.Job, []*stage.ItemWork) error { return nil }

// NoopStages returns a complete stage set whose handlers succeed without
// doing any work. Each stage reports healthy under its pipeline name.
func NoopStages() workflow.StageSet {
	return workflow.StageSet{
		Prepare:    noopStage{queue.StagePrepare},
		Transform:  noopStage{queue.StageTransform},
		Analyze:    noopStage{queue.StageAnalyze},
		Aggregator: noopStage{queue.StageAggregate},
		Planner:    noopStage{queue.StagePlanGenerate},
		Executor:   noopExecutor{noopStage{queue.StageExecute}},
		Finalizer:  noopFinalizer{noopStage{queue.StageFinalize}},
	}
}
