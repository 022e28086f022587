package stageexec_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"clipforge/internal/queue"
	"clipforge/internal/retry"
	"clipforge/internal/services"
	"clipforge/internal/stageexec"
	"clipforge/internal/testsupport"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestRunRecordsEveryAttempt(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	_, items := testsupport.NewJob(t, store, "job-1", 1)

	calls := 0
	out, err := stageexec.Run(ctx, stageexec.Options{
		Store:     store,
		Stage:     queue.StagePrepare,
		JobID:     "job-1",
		SubjectID: items[0].ID,
		Item:      items[0],
		Policy:    retry.Policy{MaxAttempts: 3, Sleep: noSleep},
	}, func(context.Context) (any, error) {
		calls++
		if calls < 3 {
			return nil, services.Wrap(services.ErrTransient, "prepare", "download", "reset by peer", nil)
		}
		return map[string]float64{"duration": 42}, nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if out == nil {
		t.Fatal("expected payload from final attempt")
	}

	results, err := store.StageResults(ctx, "job-1")
	if err != nil {
		t.Fatalf("StageResults failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 attempt rows, got %d", len(results))
	}
	byAttempt := map[int]queue.StageResult{}
	for _, res := range results {
		byAttempt[res.Attempt] = res
	}
	if byAttempt[1].Status != queue.StageRetrying || byAttempt[2].Status != queue.StageRetrying {
		t.Fatalf("expected first two attempts retrying, got %s and %s", byAttempt[1].Status, byAttempt[2].Status)
	}
	if byAttempt[1].ErrorKind != "transient" {
		t.Fatalf("expected transient error kind, got %q", byAttempt[1].ErrorKind)
	}
	if byAttempt[3].Status != queue.StageSucceeded || string(byAttempt[3].Payload) != `{"duration":42}` {
		t.Fatalf("unexpected final attempt: %#v", byAttempt[3])
	}
	if items[0].Status != queue.ItemRunning || items[0].CurrentStage != queue.StagePrepare {
		t.Fatalf("unexpected item state: %#v", items[0])
	}
}

func TestRunStopsOnFatalAndMarksItem(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	_, items := testsupport.NewJob(t, store, "job-1", 1)

	calls := 0
	_, err := stageexec.Run(ctx, stageexec.Options{
		Store:     store,
		Stage:     queue.StagePrepare,
		JobID:     "job-1",
		SubjectID: items[0].ID,
		Item:      items[0],
		Policy:    retry.Policy{MaxAttempts: 4, Sleep: noSleep},
	}, func(context.Context) (any, error) {
		calls++
		return nil, services.Wrap(services.ErrItemFatal, "prepare", "limits", "duration 900s exceeds 600s", nil)
	})
	if !errors.Is(err, services.ErrItemFatal) {
		t.Fatalf("expected item fatal error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("fatal error retried: %d calls", calls)
	}

	stored, err := store.GetItem(ctx, items[0].ID)
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if stored.Status != queue.ItemFailed || stored.ErrorKind != "item_fatal" {
		t.Fatalf("unexpected stored item: %#v", stored)
	}
	results, _ := store.StageResults(ctx, "job-1")
	if len(results) != 1 || results[0].Status != queue.StageFailed {
		t.Fatalf("expected one failed attempt, got %#v", results)
	}
}

func TestRunContinuesAttemptNumbering(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewJob(t, store, "job-1", 1)
	opts := stageexec.Options{
		Store:     store,
		Stage:     queue.StagePlanGenerate,
		JobID:     "job-1",
		SubjectID: "job-1",
		Policy:    retry.Once(),
	}

	if _, err := stageexec.Run(ctx, opts, func(context.Context) (any, error) {
		return nil, errors.New("upstream 502")
	}); err == nil {
		t.Fatal("expected first run to fail")
	}
	if _, err := stageexec.Run(ctx, opts, func(context.Context) (any, error) {
		return "ok", nil
	}); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	results, _ := store.StageResults(ctx, "job-1")
	latest := queue.LatestResults(results)["job-1"][queue.StagePlanGenerate]
	if latest.Attempt != 2 || latest.Status != queue.StageSucceeded {
		t.Fatalf("unexpected latest attempt: %#v", latest)
	}
}

func TestRunSkipsAttemptsAfterCancel(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.NewJob(t, store, "job-1", 1)

	called := false
	_, err := stageexec.Run(ctx, stageexec.Options{
		Store:     store,
		Stage:     queue.StageExecute,
		JobID:     "job-1",
		SubjectID: "job-1",
		Policy:    retry.Policy{MaxAttempts: 3, Sleep: noSleep},
		Cancelled: func() bool { return true },
	}, func(context.Context) (any, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(err, services.ErrCancelled) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if called {
		t.Fatal("stage body ran after cancellation")
	}
	results, _ := store.StageResults(ctx, "job-1")
	if len(results) != 0 {
		t.Fatalf("expected no attempt rows, got %d", len(results))
	}
}
