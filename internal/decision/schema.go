package decision

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"clipforge/internal/temporal"
)

var (
	itemKeys      = []string{"item", "item_index", "video_index", "index"}
	itemIDKeys    = []string{"item_id", "video_id"}
	startKeys     = []string{"start", "start_time", "start_offset", "from"}
	endKeys       = []string{"end", "end_time", "end_offset", "to"}
	durationKeys  = []string{"duration", "length"}
	priorityKeys  = []string{"priority", "importance"}
	rationaleKeys = []string{"rationale", "reason", "description"}
	themeKeys     = []string{"theme", "strategy", "title"}
	reasoningKeys = []string{"reasoning", "explanation"}
	segmentsKeys  = []string{"segments", "clips", "selections"}
)

// Drop records a segment that failed validation.
type Drop struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// decodeStrict decodes exactly one JSON value, keeping numbers as json.Number.
func decodeStrict(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, err
	}
	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return value, nil
}

// buildDocument validates the decoded value against the document schema.
// A structural mismatch is an error; individual bad segments are dropped.
func buildDocument(value any) (Document, []Drop, error) {
	var rawSegments []any
	doc := Document{}
	switch v := value.(type) {
	case map[string]any:
		fields := lowerKeys(v)
		segs, ok := lookup(fields, segmentsKeys)
		if !ok {
			return Document{}, nil, errors.New("missing segments array")
		}
		list, ok := segs.([]any)
		if !ok {
			return Document{}, nil, fmt.Errorf("segments is %s, want array", typeName(segs))
		}
		rawSegments = list
		doc.Theme = stringField(fields, themeKeys)
		doc.Reasoning = stringField(fields, reasoningKeys)
	case []any:
		rawSegments = v
	default:
		return Document{}, nil, fmt.Errorf("top-level value is %s, want object", typeName(value))
	}

	doc.Segments = make([]Segment, 0, len(rawSegments))
	var drops []Drop
	for i, raw := range rawSegments {
		seg, err := buildSegment(raw)
		if err != nil {
			drops = append(drops, Drop{Index: i, Reason: err.Error()})
			continue
		}
		doc.Segments = append(doc.Segments, seg)
	}
	return doc, drops, nil
}

func buildSegment(raw any) (Segment, error) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Segment{}, fmt.Errorf("segment is %s, want object", typeName(raw))
	}
	fields := lowerKeys(obj)
	var seg Segment

	seg.ItemID = stringField(fields, itemIDKeys)
	if v, found := lookup(fields, itemKeys); found {
		idx, err := integerValue(v)
		if err != nil {
			return Segment{}, fmt.Errorf("item: %w", err)
		}
		if idx < 0 {
			return Segment{}, fmt.Errorf("item: negative index %d", idx)
		}
		seg.Item = idx
	} else if seg.ItemID == "" {
		return Segment{}, errors.New("item: missing")
	} else {
		seg.Item = -1
	}

	start, found := lookup(fields, startKeys)
	if !found {
		return Segment{}, errors.New("start: missing")
	}
	var err error
	if seg.Start, err = offsetValue(start); err != nil {
		return Segment{}, fmt.Errorf("start: %w", err)
	}
	if end, ok := lookup(fields, endKeys); ok {
		if seg.End, err = offsetValue(end); err != nil {
			return Segment{}, fmt.Errorf("end: %w", err)
		}
	} else if dur, ok := lookup(fields, durationKeys); ok {
		length, derr := offsetValue(dur)
		if derr != nil {
			return Segment{}, fmt.Errorf("duration: %w", derr)
		}
		seg.End = seg.Start + length
	} else {
		return Segment{}, errors.New("end: missing")
	}
	if seg.Start < 0 {
		return Segment{}, fmt.Errorf("start: negative offset %.3f", seg.Start)
	}
	if seg.End <= seg.Start {
		return Segment{}, fmt.Errorf("end %.3f not after start %.3f", seg.End, seg.Start)
	}

	if v, ok := lookup(fields, priorityKeys); ok {
		p, perr := numberValue(v)
		if perr != nil {
			return Segment{}, fmt.Errorf("priority: %w", perr)
		}
		rounded := int(math.Round(p))
		if rounded < MinPriority || rounded > MaxPriority {
			return Segment{}, fmt.Errorf("priority %d outside %d-%d", rounded, MinPriority, MaxPriority)
		}
		seg.Priority = rounded
	}
	seg.Rationale = stringField(fields, rationaleKeys)
	return seg, nil
}

func lowerKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, exists := out[key]; !exists {
			out[key] = v
		}
	}
	return out
}

func lookup(fields map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		if v, ok := fields[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(fields map[string]any, keys []string) string {
	v, ok := lookup(fields, keys)
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func numberValue(v any) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", n.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("got %s, want number", typeName(v))
	}
}

func integerValue(v any) (int, error) {
	f, err := numberValue(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("non-integer index %v", f)
	}
	return int(f), nil
}

func offsetValue(v any) (float64, error) {
	if s, ok := v.(string); ok {
		if offset, parsed := temporal.ParseOffset(s); parsed {
			return offset, nil
		}
		return 0, fmt.Errorf("unparseable offset %q", s)
	}
	f, err := numberValue(v)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("non-finite offset")
	}
	return f, nil
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
