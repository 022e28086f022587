package stage

import (
	"context"
	"log/slog"

	"clipforge/internal/decision"
	"clipforge/internal/queue"
)

// HealthChecker reports stage readiness.
type HealthChecker interface {
	HealthCheck(context.Context) Health
}

// ItemHandler runs one per-item stage (prepare, transform, analyze). It
// updates work in place and returns the payload recorded on the attempt.
type ItemHandler interface {
	HealthChecker
	Execute(ctx context.Context, work *ItemWork) (any, error)
}

// Aggregator merges the settled branch results into the planning digest.
type Aggregator interface {
	HealthChecker
	Aggregate(ctx context.Context, job *queue.Job, branches []BranchResult) (Digest, error)
}

// Planner asks the inference collaborator for a raw decision text.
type Planner interface {
	HealthChecker
	Plan(ctx context.Context, job *queue.Job, digest Digest) (string, error)
}

// Executor renders a validated decision into one output artifact.
type Executor interface {
	HealthChecker
	Execute(ctx context.Context, job *queue.Job, doc decision.Document, works []*ItemWork) (Artifact, error)
}

// Finalizer persists the artifact and is the only stage allowed to delete
// temporary objects.
type Finalizer interface {
	HealthChecker
	Finalize(ctx context.Context, job *queue.Job, artifact Artifact, works []*ItemWork) (Artifact, error)
	Release(ctx context.Context, job *queue.Job, works []*ItemWork) error
}

// LoggerAware is implemented by stages that accept a per-run logger.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
