package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
	"clipforge/internal/services/llm"
	"clipforge/internal/stage"
	"clipforge/internal/temporal"
	"clipforge/internal/textutil"
)

// digestDetail is one rendering level of the digest, from richest to leanest.
type digestDetail struct {
	moments      int
	summaryRunes int
}

var detailLevels = []digestDetail{
	{moments: 8, summaryRunes: SummaryLimit},
	{moments: 4, summaryRunes: SummaryLimit},
	{moments: 2, summaryRunes: 120},
	{moments: 0, summaryRunes: 60},
}

// Planner is the plan-generate stage handler.
type Planner struct {
	cfg      *config.Config
	provider llm.Provider
	budget   PromptBudget
	logger   *slog.Logger
}

// PlannerOption customizes a Planner.
type PlannerOption func(*Planner)

// WithTokenCounter replaces the prompt token counter.
func WithTokenCounter(count TokenCounter) PlannerOption {
	return func(p *Planner) {
		p.budget = NewPromptBudget(p.cfg.LLM.MaxPromptTokens, count)
	}
}

// NewPlanner constructs the plan-generate handler around a planning provider.
func NewPlanner(cfg *config.Config, provider llm.Provider, logger *slog.Logger, opts ...PlannerOption) *Planner {
	p := &Planner{cfg: cfg, provider: provider}
	p.SetLogger(logger)
	for _, opt := range opts {
		opt(p)
	}
	if p.budget.count == nil {
		p.budget = NewPromptBudget(cfg.LLM.MaxPromptTokens, DefaultTokenCounter())
	}
	return p
}

// SetLogger replaces the stage logger.
func (p *Planner) SetLogger(logger *slog.Logger) {
	p.logger = logging.NewComponentLogger(logger, queue.StagePlanGenerate)
}

// Plan asks the planning model for a decision document and returns its raw
// text; parsing happens in the orchestrator.
func (p *Planner) Plan(ctx context.Context, job *queue.Job, digest stage.Digest) (string, error) {
	if job == nil {
		return "", services.Wrap(services.ErrValidation, queue.StagePlanGenerate, "validate inputs", "job is nil", nil)
	}
	if len(digest.Items) == 0 {
		return "", services.Wrap(services.ErrValidation, queue.StagePlanGenerate, "validate inputs", "digest has no items", nil)
	}
	logger := logging.WithContext(ctx, p.logger)

	user, level, tokens := p.buildPrompt(job, digest)
	if !p.budget.Fits(PlanSystemPrompt, user) {
		logging.WarnWithContext(logger, "planning prompt exceeds token budget", "prompt_over_budget",
			logging.Int("tokens", tokens),
			logging.Int("limit", p.cfg.LLM.MaxPromptTokens),
			logging.String(logging.FieldErrorHint, "lower max_items_per_job or raise llm.max_prompt_tokens"),
			logging.String(logging.FieldImpact, "the model may truncate the digest"),
		)
	}

	temperature := p.cfg.LLM.Temperature
	raw, err := p.provider.Complete(ctx, llm.Request{
		System:      PlanSystemPrompt,
		User:        user,
		JSON:        true,
		Temperature: &temperature,
	})
	if err != nil {
		return "", err
	}
	logger.Info("plan generated",
		logging.String(logging.FieldEventType, "plan_generated"),
		logging.String("model", p.provider.Model()),
		logging.String("strategy", job.Options.Strategy),
		logging.Int("prompt_tokens", tokens),
		logging.Int("detail_level", level),
		logging.Int("response_runes", len([]rune(raw))),
	)
	return raw, nil
}

// buildPrompt renders the richest digest that fits the budget and returns
// the prompt, the detail level used, and its token count.
func (p *Planner) buildPrompt(job *queue.Job, digest stage.Digest) (string, int, int) {
	var (
		prompt string
		tokens int
	)
	for i, detail := range detailLevels {
		prompt = renderPlanPrompt(job, digest, detail)
		tokens = p.budget.Count(PlanSystemPrompt) + p.budget.Count(prompt)
		if p.budget.Fits(PlanSystemPrompt, prompt) {
			return prompt, i, tokens
		}
	}
	return prompt, len(detailLevels) - 1, tokens
}

func renderPlanPrompt(job *queue.Job, digest stage.Digest, detail digestDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Target duration: %.1f seconds.\n", job.TargetDuration)
	guidance := strategyGuidance[job.Options.Strategy]
	if job.Options.Strategy == "custom" || guidance == "" {
		guidance = strings.TrimSpace(job.Options.CustomPrompt)
	}
	if guidance == "" {
		guidance = strategyGuidance["highlights"]
	}
	fmt.Fprintf(&b, "Editing brief: %s\n", guidance)
	if extra := strings.TrimSpace(job.Options.CustomPrompt); extra != "" && extra != guidance {
		fmt.Fprintf(&b, "Additional instructions: %s\n", extra)
	}
	fmt.Fprintf(&b, "Total source footage: %.1f seconds across %d items.\n\nSources:\n", digest.TotalDuration, len(digest.Items))

	for _, item := range digest.Items {
		fmt.Fprintf(&b, "\n[item %d] id=%s duration=%.1fs\n", item.Index, item.ItemID, item.Duration)
		if summary := textutil.Truncate(item.Summary, detail.summaryRunes); summary != "" {
			fmt.Fprintf(&b, "summary: %s\n", summary)
		}
		for _, m := range topMoments(item.Moments, detail.moments) {
			fmt.Fprintf(&b, "moment %s (%.1fs, confidence %.2f): %s\n",
				temporal.FormatOffset(m.Offset), m.Offset, m.Confidence, textutil.Truncate(m.Sentence, 120))
		}
	}
	if len(digest.FailedItems) > 0 {
		fmt.Fprintf(&b, "\n%d source(s) could not be analyzed and must not be referenced.\n", len(digest.FailedItems))
	}
	return b.String()
}

// topMoments keeps the n most confident moments, returned in offset order.
func topMoments(moments []temporal.Reference, n int) []temporal.Reference {
	if n <= 0 || len(moments) == 0 {
		return nil
	}
	picked := append([]temporal.Reference(nil), moments...)
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Confidence > picked[j].Confidence })
	if len(picked) > n {
		picked = picked[:n]
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Offset < picked[j].Offset })
	return picked
}

// HealthCheck reports whether the planning model is configured.
func (p *Planner) HealthCheck(context.Context) stage.Health {
	return providerHealth(queue.StagePlanGenerate, p.cfg, p.provider)
}
