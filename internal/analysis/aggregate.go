package analysis

import (
	"context"
	"log/slog"
	"sort"

	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/stage"
	"clipforge/internal/temporal"
	"clipforge/internal/textutil"
)

// SummaryLimit caps the runes of each item summary in the digest.
const SummaryLimit = 200

// Aggregator is the aggregate stage handler.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator constructs the aggregate handler.
func NewAggregator(logger *slog.Logger) *Aggregator {
	a := &Aggregator{}
	a.SetLogger(logger)
	return a
}

// SetLogger replaces the stage logger.
func (a *Aggregator) SetLogger(logger *slog.Logger) {
	a.logger = logging.NewComponentLogger(logger, queue.StageAggregate)
}

// Aggregate builds the digest from the settled branches in item order.
// Moments past an item's duration are dropped.
func (a *Aggregator) Aggregate(ctx context.Context, job *queue.Job, branches []stage.BranchResult) (stage.Digest, error) {
	ordered := append([]stage.BranchResult(nil), branches...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Work.Index() < ordered[j].Work.Index()
	})

	digest := stage.Digest{Items: make([]stage.ItemDigest, 0, len(ordered))}
	dropped := 0
	for _, br := range ordered {
		work := br.Work
		if work == nil || work.Item == nil {
			continue
		}
		if !br.Succeeded {
			digest.FailedItems = append(digest.FailedItems, work.Item.ID)
			continue
		}
		item := stage.ItemDigest{
			Index:    work.Index(),
			ItemID:   work.Item.ID,
			Duration: work.Duration,
		}
		if work.Analysis != nil {
			item.Summary = textutil.Truncate(work.Analysis.Summary, SummaryLimit)
			item.Moments = temporal.Within(work.Analysis.Moments, work.Duration)
			dropped += len(work.Analysis.Moments) - len(item.Moments)
		}
		digest.Items = append(digest.Items, item)
		digest.TotalDuration += work.Duration
	}

	logging.WithContext(ctx, a.logger).Info("analyses aggregated",
		logging.String(logging.FieldEventType, "digest_built"),
		logging.Int("items", len(digest.Items)),
		logging.Int("failed_items", len(digest.FailedItems)),
		logging.Int("moments_dropped", dropped),
		logging.Float64("total_duration", digest.TotalDuration),
	)
	return digest, nil
}

// HealthCheck always reports ready; aggregation has no collaborators.
func (a *Aggregator) HealthCheck(context.Context) stage.Health {
	return stage.Healthy(queue.StageAggregate)
}
