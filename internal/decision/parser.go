package decision

import (
	"fmt"
	"strings"
)

// Strategy names reported in Result.Strategy.
const (
	StrategyFenced  = "fenced"
	StrategyBracket = "bracket"
	StrategyRaw     = "raw"
)

const boundsEpsilon = 1e-6

// ItemBounds describes a surviving item a segment may reference.
type ItemBounds struct {
	Index    int
	ID       string
	Duration float64
}

// Attempt records one decode try for diagnostics.
type Attempt struct {
	Strategy string   `json:"strategy"`
	Repairs  []string `json:"repairs,omitempty"`
	Error    string   `json:"error"`
}

// Result is the outcome of a parse. When OK is false Document is empty and
// Diagnostic explains every attempt.
type Result struct {
	Document   Document
	OK         bool
	Strategy   string
	Repairs    []string
	Dropped    []Drop
	Attempts   []Attempt
	Diagnostic string
}

// Parser validates segments against the items that survived analysis.
// A zero Parser skips cross-validation.
type Parser struct {
	byIndex map[int]ItemBounds
	byID    map[string]ItemBounds
}

// NewParser builds a parser that drops segments referencing unknown items or
// exceeding an item's duration.
func NewParser(items []ItemBounds) *Parser {
	p := &Parser{
		byIndex: make(map[int]ItemBounds, len(items)),
		byID:    make(map[string]ItemBounds, len(items)),
	}
	for _, item := range items {
		p.byIndex[item.Index] = item
		if item.ID != "" {
			p.byID[item.ID] = item
		}
	}
	return p
}

// Parse recovers a Document without item cross-validation.
func Parse(raw string) (Document, bool) {
	res := (&Parser{}).Parse(raw)
	return res.Document, res.OK
}

type candidate struct {
	strategy string
	text     string
}

// Parse recovers a Document from raw inference output.
func (p *Parser) Parse(raw string) Result {
	if strings.TrimSpace(raw) == "" {
		return Result{Diagnostic: "empty response"}
	}

	var candidates []candidate
	seen := map[string]bool{}
	add := func(strategy, text string) {
		text = strings.TrimSpace(text)
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		candidates = append(candidates, candidate{strategy: strategy, text: text})
	}
	for _, block := range fencedBlocks(raw) {
		add(StrategyFenced, block.body)
	}
	if span, ok := bracketSpan(raw); ok {
		add(StrategyBracket, span)
	}
	add(StrategyRaw, raw)

	var attempts []Attempt
	for _, cand := range candidates {
		text := cand.text
		var applied []string
		for step := 0; step <= len(repairs); step++ {
			if step > 0 {
				fix := repairs[step-1]
				next := fix.apply(text)
				if next == text {
					continue
				}
				text = next
				applied = append(applied, fix.name)
			}
			doc, drops, err := p.decode(text)
			if err != nil {
				attempts = append(attempts, Attempt{
					Strategy: cand.strategy,
					Repairs:  append([]string(nil), applied...),
					Error:    err.Error(),
				})
				continue
			}
			return Result{
				Document: doc,
				OK:       true,
				Strategy: cand.strategy,
				Repairs:  applied,
				Dropped:  drops,
				Attempts: attempts,
			}
		}
	}
	return Result{Attempts: attempts, Diagnostic: diagnose(attempts)}
}

func (p *Parser) decode(text string) (Document, []Drop, error) {
	value, err := decodeStrict(text)
	if err != nil {
		return Document{}, nil, err
	}
	doc, drops, err := buildDocument(value)
	if err != nil {
		return Document{}, nil, err
	}
	if len(p.byIndex) == 0 && len(p.byID) == 0 {
		kept := doc.Segments[:0]
		for i, seg := range doc.Segments {
			if seg.Item < 0 {
				drops = append(drops, Drop{Index: i, Reason: fmt.Sprintf("item %q is unknown", seg.ItemID)})
				continue
			}
			kept = append(kept, seg)
		}
		doc.Segments = kept
		return doc, drops, nil
	}
	kept := make([]Segment, 0, len(doc.Segments))
	for i, seg := range doc.Segments {
		resolved, reason := p.crossCheck(seg)
		if reason != "" {
			drops = append(drops, Drop{Index: i, Reason: reason})
			continue
		}
		kept = append(kept, resolved)
	}
	doc.Segments = kept
	return doc, drops, nil
}

func (p *Parser) crossCheck(seg Segment) (Segment, string) {
	var (
		item ItemBounds
		ok   bool
	)
	if seg.Item >= 0 {
		item, ok = p.byIndex[seg.Item]
		if !ok {
			return seg, fmt.Sprintf("item %d is not a surviving item", seg.Item)
		}
		if seg.ItemID != "" && item.ID != "" && seg.ItemID != item.ID {
			return seg, fmt.Sprintf("item %d does not match id %q", seg.Item, seg.ItemID)
		}
	} else {
		item, ok = p.byID[seg.ItemID]
		if !ok {
			return seg, fmt.Sprintf("item %q is not a surviving item", seg.ItemID)
		}
		seg.Item = item.Index
	}
	if item.Duration > 0 && seg.End > item.Duration+boundsEpsilon {
		return seg, fmt.Sprintf("end %.3f exceeds item %d duration %.3f", seg.End, item.Index, item.Duration)
	}
	if seg.ItemID == "" {
		seg.ItemID = item.ID
	}
	return seg, ""
}

func diagnose(attempts []Attempt) string {
	if len(attempts) == 0 {
		return "no JSON candidate found"
	}
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		label := a.Strategy
		if len(a.Repairs) > 0 {
			label += "[" + strings.Join(a.Repairs, ",") + "]"
		}
		parts = append(parts, label+": "+a.Error)
	}
	return strings.Join(parts, "; ")
}
