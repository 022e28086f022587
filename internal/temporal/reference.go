package temporal

import (
	"sort"
	"strings"

	"clipforge/internal/textutil"
)

// MergeWindow is the distance in seconds below which two references are one moment.
const MergeWindow = 5.0

// Reference is one recognized time mention. Text and Sentence quote the
// input verbatim, full-width digits included.
type Reference struct {
	Text       string  `json:"text"`
	Offset     float64 `json:"offset"`
	Confidence float64 `json:"confidence"`
	Sentence   string  `json:"sentence"`

	position int
}

// Within drops references past duration. A non-positive duration keeps everything.
func Within(refs []Reference, duration float64) []Reference {
	if duration <= 0 {
		return refs
	}
	kept := make([]Reference, 0, len(refs))
	for _, ref := range refs {
		if ref.Offset <= duration {
			kept = append(kept, ref)
		}
	}
	return kept
}

// merge collapses references closer than MergeWindow. Clusters are built over
// offset-sorted references, so any two results differ by at least MergeWindow.
func merge(refs []Reference) []Reference {
	if len(refs) == 0 {
		return nil
	}
	sorted := append([]Reference(nil), refs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Offset != sorted[j].Offset {
			return sorted[i].Offset < sorted[j].Offset
		}
		return sorted[i].position < sorted[j].position
	})

	out := make([]Reference, 0, len(sorted))
	cluster := []Reference{sorted[0]}
	for _, ref := range sorted[1:] {
		if ref.Offset-cluster[len(cluster)-1].Offset < MergeWindow {
			cluster = append(cluster, ref)
			continue
		}
		out = append(out, collapse(cluster))
		cluster = []Reference{ref}
	}
	return append(out, collapse(cluster))
}

func collapse(cluster []Reference) Reference {
	best := cluster[0]
	for _, ref := range cluster[1:] {
		if ref.Confidence > best.Confidence || (ref.Confidence == best.Confidence && ref.position < best.position) {
			best = ref
		}
	}
	if len(cluster) == 1 {
		return best
	}

	byPosition := append([]Reference(nil), cluster...)
	sort.SliceStable(byPosition, func(i, j int) bool { return byPosition[i].position < byPosition[j].position })

	texts := make([]string, 0, len(byPosition))
	sentences := make([]string, 0, len(byPosition))
	for _, ref := range byPosition {
		texts = appendDistinct(texts, ref.Text, 1)
		sentences = appendDistinct(sentences, ref.Sentence, sentenceSimilarity)
	}
	best.Text = strings.Join(texts, " / ")
	best.Sentence = strings.Join(sentences, " | ")
	return best
}

const sentenceSimilarity = 0.9

func appendDistinct(values []string, candidate string, threshold float64) []string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return values
	}
	for _, existing := range values {
		if existing == candidate || textutil.NearDuplicate(existing, candidate, threshold) {
			return values
		}
	}
	return append(values, candidate)
}
