package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"clipforge/internal/decision"
	"clipforge/internal/logging"
	"clipforge/internal/quality"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/stage"
	"clipforge/internal/testsupport"
	"clipforge/internal/workflow"
)

func newService(t *testing.T) (*JobService, *queue.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr, err := workflow.NewManager(cfg, store, logging.NewNop(), workflow.WithJobLogs(false))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return NewJobService(mgr, store), store
}

func TestSubmitDescribeCancel(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	threshold := 0.7
	resp, err := svc.Submit(ctx, SubmitRequest{
		Items: []ItemSource{
			{Kind: "local", Location: "/media/a.mp4"},
			{Kind: "url", Location: "https://example.com/b.mp4"},
		},
		TargetDuration:   45,
		QualityThreshold: &threshold,
		Strategy:         "Summary",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if resp.JobID == "" {
		t.Fatal("expected job id")
	}

	status, err := svc.Describe(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if status.Status != string(queue.JobQueued) || status.QualityThreshold != 0.7 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Options.Strategy != "summary" || status.Options.OutputQuality != "medium" {
		t.Fatalf("expected normalized options, got %+v", status.Options)
	}
	if len(status.PerItem) != 2 || status.PerItem[1].SourceKind != "url" || status.PerItem[1].Position != 1 {
		t.Fatalf("unexpected items: %+v", status.PerItem)
	}

	cancel, err := svc.Cancel(ctx, resp.JobID)
	if err != nil || !cancel.OK {
		t.Fatalf("Cancel: %+v err=%v", cancel, err)
	}
	again, err := svc.Cancel(ctx, resp.JobID)
	if err != nil || !again.OK {
		t.Fatalf("second Cancel should be idempotent: %+v err=%v", again, err)
	}
	missing, err := svc.Cancel(ctx, "nope")
	if err != nil || !missing.NotFound || missing.OK {
		t.Fatalf("expected not_found, got %+v err=%v", missing, err)
	}
	if _, err := svc.Describe(ctx, "nope"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitRejectsInvalidDescriptor(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	cases := []SubmitRequest{
		{TargetDuration: 30},
		{Items: []ItemSource{{Kind: "local", Location: "relative.mp4"}}, TargetDuration: 30},
		{Items: []ItemSource{{Kind: "local", Location: "/a.mp4"}}, TargetDuration: 0},
		{Items: []ItemSource{{Kind: "ftp", Location: "ftp://x"}}, TargetDuration: 30},
	}
	for i, req := range cases {
		if _, err := svc.Submit(ctx, req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
	jobs, err := store.ListJobs(ctx, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("rejected requests must persist nothing, got %d jobs", len(jobs))
	}
}

func TestListFiltersByStatus(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	testsupport.NewJob(t, store, "one", 1)
	testsupport.NewJob(t, store, "two", 1)
	if _, err := store.RequestCancel(ctx, "two"); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}

	all, err := svc.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all.Jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all.Jobs))
	}
	queued, err := svc.List(ctx, 10, "queued")
	if err != nil {
		t.Fatalf("List queued: %v", err)
	}
	if len(queued.Jobs) != 1 || queued.Jobs[0].JobID != "one" {
		t.Fatalf("unexpected filtered list: %+v", queued.Jobs)
	}
	if _, err := svc.List(ctx, 10, "bogus"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown status, got %v", err)
	}
}

func TestFromSnapshotIncludesScoreAndDecision(t *testing.T) {
	completed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &workflow.JobSnapshot{
		Job: &queue.Job{
			ID:               "job",
			Status:           queue.JobCompleted,
			ArtifactLocation: "https://cdn.example.com/artifacts/job/output.mp4",
			CompletedAt:      &completed,
		},
		Items: []workflow.ItemSnapshot{
			{Item: &queue.Item{ID: "a", Status: queue.ItemSucceeded}},
			{
				Item: &queue.Item{ID: "b", Position: 1, Status: queue.ItemFailed, ErrorKind: "item_fatal", ErrorMessage: "too long"},
				Stages: []workflow.StageSnapshot{
					{Stage: queue.StagePrepare, Status: queue.StageFailed, Attempt: 1, ErrorKind: "item_fatal"},
				},
			},
		},
		Quality:  &quality.Score{Coverage: 0.5, Total: 0.8, Threshold: 0.65, Pass: true},
		Decision: &decision.Document{Theme: "t", Segments: []decision.Segment{{Item: 0, Start: 1, End: 4, Priority: 7}}},
	}

	dto := FromSnapshot(snap)

	if dto.ArtifactLocation != snap.Job.ArtifactLocation || dto.CompletedAt != "2026-03-01T12:00:00.000Z" {
		t.Fatalf("unexpected job fields: %+v", dto)
	}
	if len(dto.FailedItems) != 1 || dto.FailedItems[0] != "b" {
		t.Fatalf("unexpected failed items: %v", dto.FailedItems)
	}
	if dto.PerItem[1].Error != "too long" || len(dto.PerItem[1].Stages) != 1 {
		t.Fatalf("unexpected item detail: %+v", dto.PerItem[1])
	}
	if dto.QualityScore == nil || !dto.QualityScore.Pass || dto.QualityScore.Components[quality.Coverage] != 0.5 {
		t.Fatalf("unexpected quality score: %+v", dto.QualityScore)
	}
	if dto.Decision == nil || len(dto.Decision.Segments) != 1 || dto.Decision.Segments[0].Priority != 7 {
		t.Fatalf("unexpected decision: %+v", dto.Decision)
	}
}

func TestStageHealthSliceFollowsPipelineOrder(t *testing.T) {
	health := map[string]stage.Health{
		queue.StageFinalize: stage.Healthy(queue.StageFinalize),
		queue.StagePrepare:  stage.Unhealthy(queue.StagePrepare, "ffprobe missing"),
		queue.StageAnalyze:  stage.Healthy(queue.StageAnalyze),
		"extra":             stage.Healthy("extra"),
	}
	got := StageHealthSlice(health)
	want := []string{queue.StagePrepare, queue.StageAnalyze, queue.StageFinalize, "extra"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Fatalf("position %d: got %s want %s", i, got[i].Name, name)
		}
	}
	if got[0].Ready || got[0].Detail != "ffprobe missing" {
		t.Fatalf("unexpected prepare health: %+v", got[0])
	}
}

func TestMergeQueueStatsFillsEveryStatus(t *testing.T) {
	stats := MergeQueueStats(map[queue.JobStatus]int{queue.JobRunning: 2})
	if len(stats) != 5 || stats["running"] != 2 || stats["queued"] != 0 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}
