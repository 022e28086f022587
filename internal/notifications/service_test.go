package notifications_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"clipforge/internal/config"
	"clipforge/internal/notifications"
	"clipforge/internal/quality"
)

type capture struct {
	mu       sync.Mutex
	requests []capturedRequest
}

type capturedRequest struct {
	header http.Header
	body   []byte
}

func (c *capture) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.requests = append(c.requests, capturedRequest{header: r.Header.Clone(), body: body})
	c.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (c *capture) all() []capturedRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedRequest(nil), c.requests...)
}

func TestPublishIsNoopWithoutTransports(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	payload := notifications.CompletionPayload(notifications.Completion{JobID: "job-1", Status: "completed"})
	if err := svc.Publish(context.Background(), notifications.EventJobCompleted, payload); err != nil {
		t.Fatalf("expected noop publish, got %v", err)
	}
	if err := svc.Publish(context.Background(), notifications.EventTest, nil); err != nil {
		t.Fatalf("expected noop test notification, got %v", err)
	}
}

func TestNtfyFormatsCompletion(t *testing.T) {
	rec := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = srv.URL
	svc := notifications.NewService(&cfg)

	score := quality.Score{Total: 0.82, Pass: true}
	err := svc.Publish(context.Background(), notifications.EventJobCompleted, notifications.CompletionPayload(notifications.Completion{
		JobID:            "0123456789abcdef",
		Status:           "completed",
		ArtifactLocation: "artifacts/0123/output.mp4",
		QualityScore:     &score,
		FailedItems:      []string{"item-2"},
	}))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	reqs := rec.all()
	if len(reqs) != 1 {
		t.Fatalf("expected one ntfy request, got %d", len(reqs))
	}
	got := reqs[0]
	if title := got.header.Get("Title"); title != "clipforge - Complete" {
		t.Fatalf("unexpected title %q", title)
	}
	if tags := got.header.Get("Tags"); tags != "clipforge,job,completed" {
		t.Fatalf("unexpected tags %q", tags)
	}
	body := string(got.body)
	for _, want := range []string{"Job 01234567 complete", "artifacts/0123/output.mp4", "Quality: 0.82", "Skipped items: 1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("message %q missing %q", body, want)
		}
	}
}

func TestWebhookSignsCompletionPayload(t *testing.T) {
	rec := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notifications.WebhookSecret = "s3cret"
	svc := notifications.NewService(&cfg)

	err := svc.Publish(context.Background(), notifications.EventJobFailed, notifications.CompletionPayload(notifications.Completion{
		JobID:       "job-1",
		Status:      "failed",
		Reason:      "quality_gate_failed",
		Error:       "score 0.41 below threshold 0.65",
		CallbackURL: srv.URL,
	}))
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	reqs := rec.all()
	if len(reqs) != 1 {
		t.Fatalf("expected one webhook request, got %d", len(reqs))
	}
	got := reqs[0]
	if !notifications.Verify("s3cret", got.body, got.header.Get(notifications.SignatureHeader)) {
		t.Fatalf("signature %q does not verify", got.header.Get(notifications.SignatureHeader))
	}
	var decoded map[string]any
	if err := json.Unmarshal(got.body, &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if decoded["job_id"] != "job-1" || decoded["status"] != "failed" {
		t.Fatalf("unexpected payload: %v", decoded)
	}
	if items, ok := decoded["failed_items"].([]any); !ok || len(items) != 0 {
		t.Fatalf("expected empty failed_items array, got %v", decoded["failed_items"])
	}
	if _, ok := decoded["callback_url"]; ok {
		t.Fatal("callback url must not leak into payload")
	}
}

func TestDisabledEventsAreSkipped(t *testing.T) {
	rec := &capture{}
	srv := httptest.NewServer(http.HandlerFunc(rec.handler))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notifications.WebhookURL = srv.URL
	cfg.Notifications.JobFailed = false
	svc := notifications.NewService(&cfg)

	payload := notifications.CompletionPayload(notifications.Completion{JobID: "job-1", Status: "failed"})
	if err := svc.Publish(context.Background(), notifications.EventJobFailed, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if n := len(rec.all()); n != 0 {
		t.Fatalf("expected disabled event to be skipped, got %d requests", n)
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notifications.WebhookURL = srv.URL
	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventJobCompleted,
		notifications.CompletionPayload(notifications.Completion{JobID: "job-1", Status: "completed"}))
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected 502 error, got %v", err)
	}
}

func TestJobEventRequiresCompletion(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventJobCompleted, notifications.Payload{}); err == nil {
		t.Fatal("expected error for missing completion")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	body := []byte(`{"job_id":"a"}`)
	header := "sha256=" + notifications.Sign("k", body)
	if !notifications.Verify("k", body, header) {
		t.Fatal("expected signature to verify")
	}
	if notifications.Verify("k", []byte(`{"job_id":"b"}`), header) {
		t.Fatal("tampered body verified")
	}
	if notifications.Verify("k", body, notifications.Sign("k", body)) {
		t.Fatal("header without scheme verified")
	}
}
