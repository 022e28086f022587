package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"clipforge/internal/config"
	"clipforge/internal/decision"
	"clipforge/internal/logging"
	"clipforge/internal/notifications"
	"clipforge/internal/queue"
	"clipforge/internal/stage"
	"clipforge/internal/testsupport"
	"clipforge/internal/workflow"
)

type itemStub struct {
	name  string
	calls atomic.Int32
	run   func(ctx context.Context, work *stage.ItemWork) (any, error)
}

func (s *itemStub) HealthCheck(context.Context) stage.Health { return stage.Healthy(s.name) }

func (s *itemStub) Execute(ctx context.Context, work *stage.ItemWork) (any, error) {
	s.calls.Add(1)
	if s.run != nil {
		return s.run(ctx, work)
	}
	return nil, nil
}

type aggregatorStub struct {
	mu       sync.Mutex
	calls    int
	branches []stage.BranchResult
}

func (a *aggregatorStub) HealthCheck(context.Context) stage.Health { return stage.Healthy("aggregate") }

func (a *aggregatorStub) Aggregate(_ context.Context, _ *queue.Job, branches []stage.BranchResult) (stage.Digest, error) {
	a.mu.Lock()
	a.calls++
	a.branches = append([]stage.BranchResult(nil), branches...)
	a.mu.Unlock()

	var digest stage.Digest
	for _, br := range branches {
		if !br.Succeeded {
			digest.FailedItems = append(digest.FailedItems, br.Work.Item.ID)
			continue
		}
		digest.Items = append(digest.Items, stage.ItemDigest{
			Index:    br.Work.Index(),
			ItemID:   br.Work.Item.ID,
			Duration: br.Work.Duration,
			Summary:  "summary",
		})
		digest.TotalDuration += br.Work.Duration
	}
	return digest, nil
}

func (a *aggregatorStub) snapshot() (int, []stage.BranchResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls, a.branches
}

type plannerStub struct {
	calls atomic.Int32
	raw   string
	err   error
}

func (p *plannerStub) HealthCheck(context.Context) stage.Health { return stage.Healthy("plan-generate") }

func (p *plannerStub) Plan(context.Context, *queue.Job, stage.Digest) (string, error) {
	p.calls.Add(1)
	return p.raw, p.err
}

type executorStub struct {
	calls    atomic.Int32
	err      error
	segments atomic.Int32
}

func (e *executorStub) HealthCheck(context.Context) stage.Health { return stage.Healthy("execute") }

func (e *executorStub) Execute(_ context.Context, job *queue.Job, doc decision.Document, _ []*stage.ItemWork) (stage.Artifact, error) {
	e.calls.Add(1)
	if e.err != nil {
		return stage.Artifact{}, e.err
	}
	e.segments.Store(int32(len(doc.Segments)))
	return stage.Artifact{Path: "/tmp/" + job.ID + ".mp4", Duration: doc.TotalDuration(), Segments: len(doc.Segments)}, nil
}

type finalizerStub struct {
	finalized atomic.Int32
	released  atomic.Int32
	swept     atomic.Int32
}

func (f *finalizerStub) HealthCheck(context.Context) stage.Health { return stage.Healthy("finalize") }

func (f *finalizerStub) Finalize(_ context.Context, job *queue.Job, artifact stage.Artifact, _ []*stage.ItemWork) (stage.Artifact, error) {
	f.finalized.Add(1)
	artifact.Location = "artifacts/" + job.ID + "/output.mp4"
	return artifact, nil
}

func (f *finalizerStub) Release(context.Context, *queue.Job, []*stage.ItemWork) error {
	f.released.Add(1)
	return nil
}

func (f *finalizerStub) SweepTemp(context.Context, time.Time) (int, error) {
	f.swept.Add(1)
	return 2, nil
}

type notifierStub struct {
	mu     sync.Mutex
	events []notifications.Event
	last   notifications.Completion
}

func (n *notifierStub) Publish(_ context.Context, event notifications.Event, payload notifications.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	if c, ok := payload[notifications.KeyCompletion].(notifications.Completion); ok {
		n.last = c
	}
	return nil
}

func (n *notifierStub) snapshot() ([]notifications.Event, notifications.Completion) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifications.Event(nil), n.events...), n.last
}

type harness struct {
	cfg        *config.Config
	store      *queue.Store
	manager    *workflow.Manager
	prepare    *itemStub
	transform  *itemStub
	analyze    *itemStub
	aggregator *aggregatorStub
	planner    *plannerStub
	executor   *executorStub
	finalizer  *finalizerStub
	notifier   *notifierStub
}

const twoItemPlan = `{"theme": "best of", "segments": [
	{"item": 0, "start": 0, "end": 30, "priority": 8, "rationale": "opening"},
	{"item": 2, "start": 10, "end": 40, "priority": 8, "rationale": "finale"}
]}`

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithWorkerCount(2))
	cfg.Workflow.QueuePollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)

	h := &harness{
		cfg:   cfg,
		store: store,
		prepare: &itemStub{name: "prepare", run: func(_ context.Context, work *stage.ItemWork) (any, error) {
			work.Duration = 120
			return map[string]float64{"duration": work.Duration}, nil
		}},
		transform:  &itemStub{name: "transform"},
		analyze:    &itemStub{name: "analyze"},
		aggregator: &aggregatorStub{},
		planner:    &plannerStub{raw: twoItemPlan},
		executor:   &executorStub{},
		finalizer:  &finalizerStub{},
		notifier:   &notifierStub{},
	}
	var seq atomic.Int64
	mgr, err := workflow.NewManager(cfg, store, logging.NewNop(),
		workflow.WithNotifier(h.notifier),
		workflow.WithIDGenerator(func() string { return fmt.Sprintf("id-%03d", seq.Add(1)) }),
	)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if err := mgr.ConfigureStages(workflow.StageSet{
		Prepare:    h.prepare,
		Transform:  h.transform,
		Analyze:    h.analyze,
		Aggregator: h.aggregator,
		Planner:    h.planner,
		Executor:   h.executor,
		Finalizer:  h.finalizer,
	}); err != nil {
		t.Fatalf("ConfigureStages: %v", err)
	}
	h.manager = mgr
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.manager.Stop)
}

func (h *harness) submit(t *testing.T, items int) *queue.Job {
	t.Helper()
	req := workflow.JobRequest{TargetDuration: 60}
	for i := 0; i < items; i++ {
		req.Items = append(req.Items, workflow.ItemSource{Kind: queue.SourceLocal, Location: fmt.Sprintf("/media/clip-%d.mp4", i)})
	}
	job, err := h.manager.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return job
}

func waitForTerminal(t *testing.T, m *workflow.Manager, id string) *workflow.JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := m.GetStatus(context.Background(), id)
		if err != nil {
			t.Fatalf("GetStatus: %v", err)
		}
		if snap.Job.Status.IsTerminal() {
			return snap
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", id)
	return nil
}

func itemAt(t *testing.T, snap *workflow.JobSnapshot, position int) workflow.ItemSnapshot {
	t.Helper()
	for _, item := range snap.Items {
		if item.Item.Position == position {
			return item
		}
	}
	t.Fatalf("no item at position %d", position)
	return workflow.ItemSnapshot{}
}

func jobStage(snap *workflow.JobSnapshot, name string) (workflow.StageSnapshot, bool) {
	for _, st := range snap.Stages {
		if st.Stage == name {
			return st, true
		}
	}
	return workflow.StageSnapshot{}, false
}

var errUnreachable = errors.New("connection reset by peer")
