package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"clipforge/internal/config"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
)

// Output strategies accepted in JobOptions.Strategy.
const (
	StrategyHighlights = "highlights"
	StrategySummary    = "summary"
	StrategyCustom     = "custom"
)

// Output qualities accepted in JobOptions.OutputQuality.
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
	QualitySource = "source"
)

// ItemSource describes where one input item comes from.
type ItemSource struct {
	Kind     string
	Location string
}

// JobRequest is a job descriptor accepted by Submit.
type JobRequest struct {
	Items          []ItemSource
	TargetDuration float64
	// QualityThreshold overrides the configured gate threshold when set.
	QualityThreshold *float64
	Options          queue.JobOptions
}

// Submit validates req, persists the job as queued and wakes a job loop.
// Validation failures wrap services.ErrValidation and persist nothing.
func (m *Manager) Submit(ctx context.Context, req JobRequest) (*queue.Job, error) {
	if err := m.validateRequest(&req); err != nil {
		return nil, err
	}
	threshold := m.cfg.Quality.Threshold
	if req.QualityThreshold != nil {
		threshold = *req.QualityThreshold
	}
	job := &queue.Job{
		ID:               m.newID(),
		Status:           queue.JobQueued,
		TargetDuration:   req.TargetDuration,
		QualityThreshold: threshold,
		Options:          req.Options,
	}
	items := make([]*queue.Item, 0, len(req.Items))
	for _, src := range req.Items {
		items = append(items, &queue.Item{
			ID:             m.newID(),
			SourceKind:     src.Kind,
			SourceLocation: src.Location,
		})
	}
	if err := m.store.CreateJob(ctx, job, items); err != nil {
		return nil, fmt.Errorf("persist job: %w", err)
	}
	ctx = services.WithJobID(ctx, job.ID)
	logging.WithContext(ctx, m.logger).Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.Int("items", len(items)),
		logging.Float64("target_duration", job.TargetDuration),
		logging.Float64("quality_threshold", job.QualityThreshold),
		logging.String("strategy", job.Options.Strategy),
	)
	m.signal()
	return job, nil
}

func (m *Manager) validateRequest(req *JobRequest) error {
	invalid := func(format string, args ...any) error {
		return services.Wrap(services.ErrValidation, "submit", "validate request", fmt.Sprintf(format, args...), nil)
	}
	wf := m.cfg.Workflow
	if len(req.Items) == 0 {
		return invalid("at least one item is required")
	}
	if wf.MaxItemsPerJob > 0 && len(req.Items) > wf.MaxItemsPerJob {
		return invalid("%d items exceeds the limit of %d", len(req.Items), wf.MaxItemsPerJob)
	}
	for i := range req.Items {
		src := &req.Items[i]
		src.Kind = strings.ToLower(strings.TrimSpace(src.Kind))
		src.Location = strings.TrimSpace(src.Location)
		if err := validateSource(*src); err != nil {
			return invalid("item %d: %v", i, err)
		}
	}
	if req.TargetDuration <= 0 {
		return invalid("target duration must be positive")
	}
	if wf.MaxTargetDuration > 0 && req.TargetDuration > wf.MaxTargetDuration {
		return invalid("target duration %.1fs exceeds the limit of %.1fs", req.TargetDuration, wf.MaxTargetDuration)
	}
	if t := req.QualityThreshold; t != nil && (*t < 0 || *t > 1) {
		return invalid("quality threshold %.3f outside [0, 1]", *t)
	}

	opts := &req.Options
	opts.Strategy = strings.ToLower(strings.TrimSpace(opts.Strategy))
	opts.OutputQuality = strings.ToLower(strings.TrimSpace(opts.OutputQuality))
	opts.CustomPrompt = strings.TrimSpace(opts.CustomPrompt)
	opts.CallbackURL = strings.TrimSpace(opts.CallbackURL)
	switch opts.Strategy {
	case "":
		opts.Strategy = StrategyHighlights
	case StrategyHighlights, StrategySummary:
	case StrategyCustom:
		if opts.CustomPrompt == "" {
			return invalid("custom strategy requires a custom prompt")
		}
	default:
		return invalid("unknown strategy %q", opts.Strategy)
	}
	switch opts.OutputQuality {
	case "":
		opts.OutputQuality = QualityMedium
	case QualityLow, QualityMedium, QualityHigh, QualitySource:
	default:
		return invalid("unknown output quality %q", opts.OutputQuality)
	}
	if opts.CallbackURL != "" && !config.IsHTTPURL(opts.CallbackURL) {
		return invalid("callback url must be http or https")
	}
	return nil
}

func validateSource(src ItemSource) error {
	if src.Location == "" {
		return fmt.Errorf("source location is required")
	}
	switch src.Kind {
	case queue.SourceLocal:
		if !filepath.IsAbs(src.Location) {
			return fmt.Errorf("local source %q must be an absolute path", src.Location)
		}
	case queue.SourceURL:
		if !config.IsHTTPURL(src.Location) {
			return fmt.Errorf("url source %q must start with http:// or https://", src.Location)
		}
	case queue.SourceObject:
		if strings.HasPrefix(src.Location, "/") || strings.Contains(src.Location, "..") {
			return fmt.Errorf("object key %q must be relative", src.Location)
		}
	default:
		return fmt.Errorf("unknown source kind %q", src.Kind)
	}
	return nil
}
