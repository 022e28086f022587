package stage

import (
	"encoding/json"
	"fmt"

	"clipforge/internal/decision"
	"clipforge/internal/queue"
	"clipforge/internal/temporal"
)

// ItemWork carries one item's state through its branch. Only the branch
// that owns it writes to it until the barrier releases.
type ItemWork struct {
	Job  *queue.Job
	Item *queue.Item

	// SourcePath is the local original media after prepare.
	SourcePath string
	// Downloaded marks SourcePath as a staging copy owned by the item.
	Downloaded bool
	Duration   float64
	Width      int
	Height     int

	// ProxyPath and TempKey locate the compressed copy from transform.
	ProxyPath string
	TempKey   string
	TempURL   string

	Analysis *Analysis
}

// Index is the item's position in the job.
func (w *ItemWork) Index() int {
	if w == nil || w.Item == nil {
		return -1
	}
	return w.Item.Position
}

// Analysis is the analyze stage output for one item.
type Analysis struct {
	Summary string               `json:"summary"`
	Model   string               `json:"model,omitempty"`
	Moments []temporal.Reference `json:"moments,omitempty"`
}

// BranchResult is one settled item branch as seen by the barrier.
type BranchResult struct {
	Work      *ItemWork
	Succeeded bool
	Err       error
}

// ItemDigest is what the planner sees about one surviving item.
type ItemDigest struct {
	Index    int                  `json:"index"`
	ItemID   string               `json:"item_id"`
	Duration float64              `json:"duration"`
	Summary  string               `json:"summary"`
	Moments  []temporal.Reference `json:"moments,omitempty"`
}

// Digest is the aggregate stage output.
type Digest struct {
	Items         []ItemDigest `json:"items"`
	FailedItems   []string     `json:"failed_items,omitempty"`
	TotalDuration float64      `json:"total_duration"`
}

// Bounds lists the surviving items for decision cross-validation.
func (d Digest) Bounds() []decision.ItemBounds {
	bounds := make([]decision.ItemBounds, 0, len(d.Items))
	for _, item := range d.Items {
		bounds = append(bounds, decision.ItemBounds{Index: item.Index, ID: item.ItemID, Duration: item.Duration})
	}
	return bounds
}

// Artifact is the execute output, later relocated by finalize.
type Artifact struct {
	Path     string  `json:"path,omitempty"`
	Location string  `json:"location,omitempty"`
	Duration float64 `json:"duration"`
	Size     int64   `json:"size"`
	Segments int     `json:"segments"`
}

// JobBounds lists every item of a job, including failed ones, for scoring.
func JobBounds(works []*ItemWork) []decision.ItemBounds {
	bounds := make([]decision.ItemBounds, 0, len(works))
	for _, w := range works {
		if w == nil || w.Item == nil {
			continue
		}
		bounds = append(bounds, decision.ItemBounds{Index: w.Item.Position, ID: w.Item.ID, Duration: w.Duration})
	}
	return bounds
}

// EncodePayload marshals a stage payload for persistence. Nil yields nil.
func EncodePayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode stage payload: %w", err)
	}
	return data, nil
}
