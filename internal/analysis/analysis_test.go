package analysis

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/services/llm"
	"clipforge/internal/stage"
	"clipforge/internal/temporal"
	"clipforge/internal/testsupport"
)

type providerStub struct {
	mu       sync.Mutex
	model    string
	response string
	err      error
	requests []llm.Request
}

func (p *providerStub) Name() string  { return "stub" }
func (p *providerStub) Model() string { return p.model }

func (p *providerStub) Complete(_ context.Context, req llm.Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return p.response, p.err
}

func (p *providerStub) HealthCheck(context.Context) error { return nil }

func (p *providerStub) last(t *testing.T) llm.Request {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		t.Fatal("provider was not called")
	}
	return p.requests[len(p.requests)-1]
}

type openerStub map[string]string

func (o openerStub) Open(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := o[key]
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "storage", "open", key, nil)
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func analyzedWork(index int, duration float64) *stage.ItemWork {
	return &stage.ItemWork{
		Job:      &queue.Job{ID: "job-1"},
		Item:     &queue.Item{ID: "item-" + string(rune('a'+index)), JobID: "job-1", Position: index},
		Duration: duration,
		Width:    1280,
		Height:   720,
		TempKey:  "tmp/job-1/item/proxy.mp4",
		TempURL:  "https://cdn.example.com/tmp/job-1/item/proxy.mp4",
	}
}

func TestAnalyzeRecordsSummaryAndVerifiedMoments(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	provider := &providerStub{model: "qwen-vl-plus", response: "```json\n" + `{"summary": "A skate session at the park.",
		"key_moments": [
			{"time": "0:05", "description": "huge moment as the rider lands a kickflip"},
			{"time": "0:07", "description": "crowd cheers"},
			{"time": "0:42", "description": "slow walk back"},
			{"time": "9:59", "description": "credits"}
		]}` + "\n```"}
	a := NewAnalyzer(cfg, provider, nil, nil)
	work := analyzedWork(0, 60)

	payload, err := a.Execute(context.Background(), work)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	req := provider.last(t)
	if !req.JSON || len(req.Media) != 1 || req.Media[0].Kind != llm.MediaVideo || req.Media[0].URL != work.TempURL {
		t.Fatalf("unexpected request %+v", req)
	}
	if !strings.Contains(req.User, "60.0 seconds") {
		t.Fatalf("user prompt missing duration: %q", req.User)
	}
	analysis := payload.(*stage.Analysis)
	if work.Analysis != analysis || analysis.Summary != "A skate session at the park." || analysis.Model != "qwen-vl-plus" {
		t.Fatalf("unexpected analysis %+v", analysis)
	}
	if len(analysis.Moments) != 2 {
		t.Fatalf("expected merged 0:05/0:07 and 0:42, got %+v", analysis.Moments)
	}
	for _, m := range analysis.Moments {
		if m.Offset > 60 {
			t.Fatalf("moment beyond duration kept: %+v", m)
		}
	}
	if analysis.Moments[0].Confidence <= analysis.Moments[1].Confidence {
		t.Fatalf("cue should raise the first moment's confidence: %+v", analysis.Moments)
	}
}

func TestAnalyzeFallsBackToPlainText(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	provider := &providerStub{model: "m", response: "The best bit is at 0:12 when the dog jumps."}
	work := analyzedWork(0, 30)

	if _, err := NewAnalyzer(cfg, provider, nil, nil).Execute(context.Background(), work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if work.Analysis.Summary != "The best bit is at 0:12 when the dog jumps." {
		t.Fatalf("unexpected summary %q", work.Analysis.Summary)
	}
	if len(work.Analysis.Moments) != 1 || work.Analysis.Moments[0].Offset != 12 {
		t.Fatalf("unexpected moments %+v", work.Analysis.Moments)
	}
}

func TestAnalyzeInlinesPrivateProxy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	provider := &providerStub{model: "m", response: `{"summary": "ok"}`}
	work := analyzedWork(0, 10)
	work.TempURL = "file:///objects/tmp/job-1/item/proxy.mp4"
	objects := openerStub{work.TempKey: "proxy-bytes"}

	if _, err := NewAnalyzer(cfg, provider, objects, nil).Execute(context.Background(), work); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "data:video/mp4;base64," + base64.StdEncoding.EncodeToString([]byte("proxy-bytes"))
	if got := provider.last(t).Media[0].URL; got != want {
		t.Fatalf("unexpected media url %q", got)
	}

	_, err := NewAnalyzer(cfg, provider, nil, nil).Execute(context.Background(), work)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error without object access, got %v", err)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	empty := &providerStub{model: "m", response: "   "}
	if _, err := NewAnalyzer(cfg, empty, nil, nil).Execute(context.Background(), analyzedWork(0, 10)); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error for empty reply, got %v", err)
	}

	transient := services.Wrap(services.ErrTransient, "llm", "complete", "502", nil)
	failing := &providerStub{model: "m", err: transient}
	if _, err := NewAnalyzer(cfg, failing, nil, nil).Execute(context.Background(), analyzedWork(0, 10)); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected provider error, got %v", err)
	}

	work := analyzedWork(0, 10)
	work.TempKey = ""
	if _, err := NewAnalyzer(cfg, empty, nil, nil).Execute(context.Background(), work); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAggregateOrdersTruncatesAndVerifies(t *testing.T) {
	long := strings.Repeat("字", 300)
	w0 := analyzedWork(0, 20)
	w0.Analysis = &stage.Analysis{Summary: long, Moments: []temporal.Reference{{Offset: 5}, {Offset: 25}}}
	w1 := analyzedWork(1, 40)
	w2 := analyzedWork(2, 30)
	w2.Analysis = &stage.Analysis{Summary: "short"}

	digest, err := NewAggregator(nil).Aggregate(context.Background(), &queue.Job{ID: "job-1"}, []stage.BranchResult{
		{Work: w2, Succeeded: true},
		{Work: w1, Succeeded: false},
		{Work: w0, Succeeded: true},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(digest.Items) != 2 || digest.Items[0].Index != 0 || digest.Items[1].Index != 2 {
		t.Fatalf("unexpected digest items %+v", digest.Items)
	}
	if n := len([]rune(digest.Items[0].Summary)); n != SummaryLimit {
		t.Fatalf("summary has %d runes, want %d", n, SummaryLimit)
	}
	if len(digest.Items[0].Moments) != 1 || digest.Items[0].Moments[0].Offset != 5 {
		t.Fatalf("unexpected verified moments %+v", digest.Items[0].Moments)
	}
	if len(digest.FailedItems) != 1 || digest.FailedItems[0] != w1.Item.ID {
		t.Fatalf("unexpected failed items %v", digest.FailedItems)
	}
	if digest.TotalDuration != 50 {
		t.Fatalf("unexpected total duration %v", digest.TotalDuration)
	}
}

func planDigest() stage.Digest {
	return stage.Digest{
		Items: []stage.ItemDigest{
			{Index: 0, ItemID: "a", Duration: 30, Summary: "Opening ceremony with fireworks.",
				Moments: []temporal.Reference{{Offset: 12, Confidence: 0.8, Sentence: "Fireworks peak at 0:12."}}},
			{Index: 2, ItemID: "c", Duration: 45, Summary: "Crowd dancing."},
		},
		FailedItems:   []string{"b"},
		TotalDuration: 75,
	}
}

func TestPlanPromptCarriesBriefAndDigest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	provider := &providerStub{model: "qwen-plus", response: `{"segments": []}`}
	p := NewPlanner(cfg, provider, nil, WithTokenCounter(EstimateTokens))
	job := &queue.Job{ID: "job-1", TargetDuration: 30, Options: queue.JobOptions{Strategy: "summary"}}

	raw, err := p.Plan(context.Background(), job, planDigest())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if raw != `{"segments": []}` {
		t.Fatalf("raw text must be returned untouched, got %q", raw)
	}
	req := provider.last(t)
	if req.System != PlanSystemPrompt || !req.JSON || req.Temperature == nil || *req.Temperature != cfg.LLM.Temperature {
		t.Fatalf("unexpected request %+v", req)
	}
	for _, want := range []string{
		"Target duration: 30.0 seconds.",
		strategyGuidance["summary"],
		"[item 0] id=a duration=30.0s",
		"[item 2] id=c duration=45.0s",
		"moment 0:12 (12.0s, confidence 0.80)",
		"1 source(s) could not be analyzed",
	} {
		if !strings.Contains(req.User, want) {
			t.Fatalf("prompt missing %q:\n%s", want, req.User)
		}
	}
}

func TestPlanCustomStrategyUsesCustomPrompt(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	provider := &providerStub{model: "m", response: "{}"}
	job := &queue.Job{TargetDuration: 20, Options: queue.JobOptions{Strategy: "custom", CustomPrompt: "Only show the dog."}}

	if _, err := NewPlanner(cfg, provider, nil, WithTokenCounter(EstimateTokens)).Plan(context.Background(), job, planDigest()); err != nil {
		t.Fatalf("Plan: %v", err)
	}
	user := provider.last(t).User
	if !strings.Contains(user, "Editing brief: Only show the dog.") || strings.Contains(user, "Additional instructions") {
		t.Fatalf("unexpected custom brief:\n%s", user)
	}
}

func TestPlanShrinksDigestToBudget(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	digest := planDigest()
	digest.Items[0].Summary = strings.Repeat("word ", 200)
	full := renderPlanPrompt(&queue.Job{TargetDuration: 30}, digest, detailLevels[0])
	lean := renderPlanPrompt(&queue.Job{TargetDuration: 30}, digest, detailLevels[len(detailLevels)-1])
	cfg.LLM.MaxPromptTokens = EstimateTokens(PlanSystemPrompt) + EstimateTokens(lean) + 1
	if EstimateTokens(PlanSystemPrompt)+EstimateTokens(full) <= cfg.LLM.MaxPromptTokens {
		t.Fatal("test digest should not fit at full detail")
	}
	p := NewPlanner(cfg, &providerStub{model: "m"}, nil, WithTokenCounter(EstimateTokens))

	prompt, level, tokens := p.buildPrompt(&queue.Job{TargetDuration: 30}, digest)
	if level == 0 || tokens > cfg.LLM.MaxPromptTokens {
		t.Fatalf("expected a reduced level within budget, got level %d tokens %d", level, tokens)
	}
	if len(prompt) >= len(full) {
		t.Fatal("reduced prompt should be shorter than the full rendering")
	}
}

func TestPlanRejectsEmptyDigest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := NewPlanner(cfg, &providerStub{model: "m"}, nil, WithTokenCounter(EstimateTokens)).
		Plan(context.Background(), &queue.Job{}, stage.Digest{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if h := NewAnalyzer(cfg, &providerStub{model: "m"}, nil, nil).HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("analyze should be ready: %+v", h)
	}
	cfg.LLM.APIKey = ""
	if h := NewPlanner(cfg, &providerStub{model: "m"}, nil, WithTokenCounter(EstimateTokens)).HealthCheck(context.Background()); h.Ready {
		t.Fatal("planner without api key should be unhealthy")
	}
	if h := NewAggregator(nil).HealthCheck(context.Background()); !h.Ready {
		t.Fatal("aggregate should always be ready")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens("abcdef"); got != 2 {
		t.Fatalf("EstimateTokens = %d, want 2", got)
	}
	if got := EstimateTokens("abcd"); got != 2 {
		t.Fatalf("EstimateTokens = %d, want 2", got)
	}
	if !NewPromptBudget(0, nil).Fits(strings.Repeat("x", 100000)) {
		t.Fatal("zero limit should disable the budget")
	}
}
