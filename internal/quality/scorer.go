package quality

import (
	"fmt"
	"math"

	"clipforge/internal/config"
	"clipforge/internal/decision"
)

// Sub-score names, as reported in Score.Components and logs.
const (
	Coverage        = "coverage"
	DurationFit     = "duration_fit"
	Diversity       = "diversity"
	PriorityQuality = "priority_quality"
	Reasoning       = "reasoning"
)

// Score is the evaluated quality of one decision document.
type Score struct {
	Coverage        float64 `json:"coverage"`
	DurationFit     float64 `json:"duration_fit"`
	Diversity       float64 `json:"diversity"`
	PriorityQuality float64 `json:"priority_quality"`
	Reasoning       float64 `json:"reasoning"`
	Total           float64 `json:"total"`
	Threshold       float64 `json:"threshold"`
	Pass            bool    `json:"pass"`
}

// Components returns the sub-scores keyed by name.
func (s Score) Components() map[string]float64 {
	return map[string]float64{
		Coverage:        s.Coverage,
		DurationFit:     s.DurationFit,
		Diversity:       s.Diversity,
		PriorityQuality: s.PriorityQuality,
		Reasoning:       s.Reasoning,
	}
}

// Scorer evaluates documents with fixed weights and thresholds.
type Scorer struct {
	weights           config.QualityWeights
	threshold         float64
	priorityThreshold int
}

// NewScorer validates the weights and returns a scorer.
func NewScorer(weights config.QualityWeights, threshold float64, priorityThreshold int) (*Scorer, error) {
	if err := config.ValidateWeights(weights); err != nil {
		return nil, err
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("quality threshold %.3f outside [0,1]", threshold)
	}
	return &Scorer{weights: weights, threshold: threshold, priorityThreshold: priorityThreshold}, nil
}

// NewScorerFromConfig builds a scorer from the quality config section.
func NewScorerFromConfig(q config.Quality) (*Scorer, error) {
	return NewScorer(q.Weights, q.Threshold, q.PriorityThreshold)
}

// WithThreshold returns a copy of s that gates on threshold instead. A value
// outside [0,1] keeps the configured threshold; 0 is a valid threshold that
// passes every document.
func (s *Scorer) WithThreshold(threshold float64) *Scorer {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return s
	}
	clone := *s
	clone.threshold = threshold
	return &clone
}

// Threshold reports the pass threshold.
func (s *Scorer) Threshold() float64 {
	return s.threshold
}

// Score evaluates doc against every item of the job, including items that
// failed earlier stages, and the job's target duration in seconds.
// An empty segment list scores 0 on every component and never passes.
func (s *Scorer) Score(doc decision.Document, items []decision.ItemBounds, target float64) Score {
	out := Score{Threshold: s.threshold}
	if len(doc.Segments) == 0 {
		return out
	}
	out.Coverage = coverage(doc.Segments, items)
	out.DurationFit = durationFit(doc.TotalDuration(), target)
	out.Diversity = diversity(doc.Segments, len(items))
	out.PriorityQuality = priorityShare(doc.Segments, s.priorityThreshold)
	out.Reasoning = reasoningShare(doc.Segments)

	total := s.weights.Coverage*out.Coverage +
		s.weights.DurationFit*out.DurationFit +
		s.weights.Diversity*out.Diversity +
		s.weights.PriorityQuality*out.PriorityQuality +
		s.weights.Reasoning*out.Reasoning
	out.Total = clamp(total)
	out.Pass = out.Total >= s.threshold
	return out
}

func coverage(segments []decision.Segment, items []decision.ItemBounds) float64 {
	if len(items) == 0 {
		return 0
	}
	known := make(map[int]bool, len(items))
	for _, item := range items {
		known[item.Index] = false
	}
	referenced := 0
	for _, seg := range segments {
		seen, ok := known[seg.Item]
		if ok && !seen {
			known[seg.Item] = true
			referenced++
		}
	}
	return clamp(float64(referenced) / float64(len(items)))
}

func durationFit(total, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return clamp(1 - math.Abs(total-target)/target)
}

// diversity averages how many segments there are relative to the item count
// with how evenly those segments spread across items.
func diversity(segments []decision.Segment, itemCount int) float64 {
	if itemCount <= 0 {
		return 0
	}
	countFactor := math.Min(1, float64(len(segments))/float64(itemCount))
	spread := 1.0
	if itemCount > 1 {
		perItem := map[int]int{}
		for _, seg := range segments {
			perItem[seg.Item]++
		}
		var entropy float64
		n := float64(len(segments))
		for _, count := range perItem {
			p := float64(count) / n
			entropy -= p * math.Log(p)
		}
		spread = entropy / math.Log(float64(itemCount))
	}
	return clamp(0.5*countFactor + 0.5*clamp(spread))
}

func priorityShare(segments []decision.Segment, threshold int) float64 {
	var total, high float64
	for _, seg := range segments {
		d := seg.Duration()
		if d <= 0 {
			continue
		}
		total += d
		if seg.Priority > threshold {
			high += d
		}
	}
	if total == 0 {
		return 0
	}
	return clamp(high / total)
}

func reasoningShare(segments []decision.Segment) float64 {
	withRationale := 0
	for _, seg := range segments {
		if seg.Rationale != "" {
			withRationale++
		}
	}
	return clamp(float64(withRationale) / float64(len(segments)))
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
