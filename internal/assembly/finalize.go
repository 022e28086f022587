package assembly

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/staging"
	"clipforge/internal/storage"
)

// ArtifactStore publishes artifacts and owns temporary objects.
type ArtifactStore interface {
	ArtifactKey(jobID, name string) string
	Put(ctx context.Context, key, src string) (storage.Object, error)
	Locate(key string) (string, error)
	Delete(ctx context.Context, key string) error
	SweepTemp(ctx context.Context, olderThan time.Time) (int, error)
	CheckWritable() error
}

// ActiveJobsFunc lists the jobs whose staging directories must survive a sweep.
type ActiveJobsFunc func(ctx context.Context) ([]string, error)

// Finalizer is the finalize stage handler.
type Finalizer struct {
	cfg    *config.Config
	store  ArtifactStore
	active ActiveJobsFunc
	logger *slog.Logger
}

// FinalizerOption customizes a Finalizer.
type FinalizerOption func(*Finalizer)

// WithActiveJobs protects the staging directories of the listed jobs from
// SweepTemp.
func WithActiveJobs(fn ActiveJobsFunc) FinalizerOption {
	return func(f *Finalizer) {
		f.active = fn
	}
}

// NewFinalizer constructs the finalize handler.
func NewFinalizer(cfg *config.Config, store ArtifactStore, logger *slog.Logger, opts ...FinalizerOption) *Finalizer {
	f := &Finalizer{cfg: cfg, store: store}
	f.SetLogger(logger)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetLogger replaces the stage logger.
func (f *Finalizer) SetLogger(logger *slog.Logger) {
	f.logger = logging.NewComponentLogger(logger, queue.StageFinalize)
}

// Finalize stores the artifact under the job's artifact key and releases
// the job's temporary objects. Release failures are logged; the artifact is
// already durable at that point.
func (f *Finalizer) Finalize(ctx context.Context, job *queue.Job, artifact stage.Artifact, works []*stage.ItemWork) (stage.Artifact, error) {
	if job == nil || artifact.Path == "" {
		return stage.Artifact{}, services.Wrap(services.ErrValidation, queue.StageFinalize, "validate inputs", "no rendered artifact", nil)
	}
	logger := logging.WithContext(ctx, f.logger)
	key := f.store.ArtifactKey(job.ID, OutputName)
	obj, err := f.store.Put(ctx, key, artifact.Path)
	if err != nil {
		return stage.Artifact{}, err
	}
	location, err := f.store.Locate(key)
	if err != nil {
		return stage.Artifact{}, err
	}
	artifact.Location = location
	artifact.Size = obj.Size

	if err := f.Release(ctx, job, works); err != nil {
		logging.WarnWithContext(logger, "temporary objects not fully released", "release_incomplete",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the maintenance sweep removes leftovers after storage.temp_expiry_hours"),
			logging.String(logging.FieldImpact, "temporary storage is reclaimed later"),
		)
	}
	logger.Info("artifact published",
		logging.String(logging.FieldEventType, "artifact_published"),
		logging.String("artifact_key", obj.Key),
		logging.String("location", location),
		logging.Int64("size_bytes", obj.Size),
	)
	return artifact, nil
}

// Release deletes every temporary object of the job's items and removes the
// job's staging directory. It is safe to call more than once.
func (f *Finalizer) Release(ctx context.Context, job *queue.Job, works []*stage.ItemWork) error {
	var errs []error
	released := 0
	for _, w := range works {
		if w == nil || w.TempKey == "" {
			continue
		}
		if err := f.store.Delete(ctx, w.TempKey); err != nil {
			errs = append(errs, err)
			continue
		}
		w.TempKey = ""
		w.TempURL = ""
		released++
	}
	if job != nil {
		if err := staging.RemoveJob(f.cfg.Paths.StagingDir, job.ID); err != nil {
			errs = append(errs, err)
		}
	}
	logging.WithContext(ctx, f.logger).Debug("temporary objects released",
		logging.Int("objects", released),
		logging.Int("errors", len(errs)),
	)
	return errors.Join(errs...)
}

// SweepTemp expires temporary objects and stale staging directories last
// modified before olderThan.
func (f *Finalizer) SweepTemp(ctx context.Context, olderThan time.Time) (int, error) {
	removed, err := f.store.SweepTemp(ctx, olderThan)
	active := map[string]struct{}{}
	if f.active != nil {
		ids, listErr := f.active(ctx)
		if listErr != nil {
			return removed, errors.Join(err, listErr)
		}
		for _, id := range ids {
			active[id] = struct{}{}
		}
	}
	result := staging.CleanStale(ctx, f.cfg.Paths.StagingDir, olderThan, active, f.logger)
	for _, e := range result.Errors {
		err = errors.Join(err, e.Error)
	}
	return removed + len(result.Removed), err
}

// HealthCheck reports whether the object store is writable.
func (f *Finalizer) HealthCheck(context.Context) stage.Health {
	if f.store == nil {
		return stage.Unhealthy(queue.StageFinalize, "object store unavailable")
	}
	if err := f.store.CheckWritable(); err != nil {
		return stage.Unavailable(queue.StageFinalize, "object store not writable", err)
	}
	return stage.Healthy(queue.StageFinalize)
}
