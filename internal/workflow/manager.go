package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/quality"
	"clipforge/internal/queue"
	"clipforge/internal/stage"
)

// dedupeWindow is the distance in seconds under which two segments of the
// same item count as the same clip.
const dedupeWindow = 5.0

// StageSet bundles the concrete stage handlers the manager orchestrates.
type StageSet struct {
	Prepare    stage.ItemHandler
	Transform  stage.ItemHandler
	Analyze    stage.ItemHandler
	Aggregator stage.Aggregator
	Planner    stage.Planner
	Executor   stage.Executor
	Finalizer  stage.Finalizer
}

func (s StageSet) validate() error {
	missing := make([]string, 0)
	if s.Prepare == nil {
		missing = append(missing, queue.StagePrepare)
	}
	if s.Transform == nil {
		missing = append(missing, queue.StageTransform)
	}
	if s.Analyze == nil {
		missing = append(missing, queue.StageAnalyze)
	}
	if s.Aggregator == nil {
		missing = append(missing, queue.StageAggregate)
	}
	if s.Planner == nil {
		missing = append(missing, queue.StagePlanGenerate)
	}
	if s.Executor == nil {
		missing = append(missing, queue.StageExecute)
	}
	if s.Finalizer == nil {
		missing = append(missing, queue.StageFinalize)
	}
	if len(missing) > 0 {
		return fmt.Errorf("workflow stages not configured: %v", missing)
	}
	return nil
}

// TempSweeper is implemented by finalizers that can expire orphaned
// temporary objects.
type TempSweeper interface {
	SweepTemp(ctx context.Context, olderThan time.Time) (int, error)
}

// Manager coordinates job processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	scorer       *quality.Scorer
	jobLogs      *JobLogger
	pollInterval time.Duration
	newID        func() string
	now          func() time.Time

	// slots bounds concurrent stage invocations across all jobs.
	slots chan struct{}
	wake  chan struct{}

	mu      sync.RWMutex
	stages  StageSet
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	active  map[string]*jobRun
}

type jobRun struct {
	id        string
	cancelled atomic.Bool
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithNotifier replaces the notifier built from configuration.
func WithNotifier(n notifications.Service) ManagerOption {
	return func(m *Manager) {
		m.notifier = n
	}
}

// WithIDGenerator replaces the uuid generator used for job and item ids.
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// WithJobLogs toggles dedicated per-job log files under the log directory.
func WithJobLogs(enabled bool) ManagerOption {
	return func(m *Manager) {
		if !enabled {
			m.jobLogs = nil
		}
	}
}

// NewManager constructs a workflow manager. Stages are registered separately
// with ConfigureStages.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	if cfg == nil || store == nil {
		return nil, fmt.Errorf("workflow manager requires config and store")
	}
	scorer, err := quality.NewScorerFromConfig(cfg.Quality)
	if err != nil {
		return nil, fmt.Errorf("quality scorer: %w", err)
	}
	workers := cfg.Workflow.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	poll := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if poll <= 0 {
		poll = time.Second
	}
	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logging.NewComponentLogger(logger, "workflow"),
		notifier:     notifications.NewService(cfg),
		scorer:       scorer,
		jobLogs:      NewJobLogger(cfg),
		pollInterval: poll,
		newID:        uuid.NewString,
		now:          time.Now,
		slots:        make(chan struct{}, workers),
		wake:         make(chan struct{}, 1),
		active:       make(map[string]*jobRun),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// ConfigureStages registers the stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) error {
	if err := set.validate(); err != nil {
		return err
	}
	for _, handler := range []any{set.Prepare, set.Transform, set.Analyze, set.Aggregator, set.Planner, set.Executor, set.Finalizer} {
		if aware, ok := handler.(stage.LoggerAware); ok {
			aware.SetLogger(m.logger)
		}
	}
	m.mu.Lock()
	m.stages = set
	m.mu.Unlock()
	return nil
}

func (m *Manager) stageSet() StageSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stages
}

func (m *Manager) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) releaseSlot() {
	<-m.slots
}

func (m *Manager) track(id string) *jobRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := &jobRun{id: id}
	m.active[id] = run
	return run
}

func (m *Manager) untrack(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}

func (m *Manager) activeRun(id string) *jobRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[id]
}

// cancelRequested checks the in-memory flag first and falls back to the
// durable flag so cancels recorded by another process are honoured.
func (m *Manager) cancelRequested(ctx context.Context, run *jobRun) bool {
	if run.cancelled.Load() {
		return true
	}
	flagged, err := m.store.IsCancelRequested(context.WithoutCancel(ctx), run.id)
	if err != nil {
		m.logger.Debug("cancel flag lookup failed", logging.String(logging.FieldJobID, run.id), logging.Error(err))
		return false
	}
	if flagged {
		run.cancelled.Store(true)
	}
	return flagged
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}
