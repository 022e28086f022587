package decision

import (
	"encoding/json"
	"math"
)

// MinPriority and MaxPriority bound Segment.Priority.
const (
	MinPriority = 0
	MaxPriority = 10
)

// Segment is one sub-range of an item selected for the output.
type Segment struct {
	Item      int     `json:"item"`
	ItemID    string  `json:"item_id,omitempty"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Priority  int     `json:"priority"`
	Rationale string  `json:"rationale,omitempty"`
}

// Duration is End minus Start.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Document is the validated plan the execute stage acts on.
type Document struct {
	Theme     string    `json:"theme,omitempty"`
	Reasoning string    `json:"reasoning,omitempty"`
	Segments  []Segment `json:"segments"`
}

// TotalDuration sums segment durations.
func (d Document) TotalDuration() float64 {
	var total float64
	for _, seg := range d.Segments {
		total += seg.Duration()
	}
	return total
}

// Marshal renders the document in the same shape Parse accepts.
func (d Document) Marshal() ([]byte, error) {
	if d.Segments == nil {
		d.Segments = []Segment{}
	}
	return json.Marshal(d)
}

// Dedupe removes segments of the same item whose start and end both lie within
// window seconds of an earlier kept segment. The higher priority wins; order of
// the survivors is preserved.
func Dedupe(doc Document, window float64) Document {
	kept := make([]Segment, 0, len(doc.Segments))
	for _, seg := range doc.Segments {
		dup := -1
		for i, existing := range kept {
			if existing.Item == seg.Item &&
				math.Abs(existing.Start-seg.Start) < window &&
				math.Abs(existing.End-seg.End) < window {
				dup = i
				break
			}
		}
		switch {
		case dup < 0:
			kept = append(kept, seg)
		case seg.Priority > kept[dup].Priority:
			kept[dup] = seg
		}
	}
	doc.Segments = kept
	return doc
}
