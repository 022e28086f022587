package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"clipforge/internal/textutil"
)

const (
	baseConfidence  = 0.4
	cueConfidence   = 0.6
	cueStep         = 0.2
	negativePenalty = 0.1
	cueWindowRunes  = 40
)

var (
	hmsPattern     = regexp.MustCompile(`\b(\d{1,2}):([0-5]\d):([0-5]\d)(\.\d+)?\b`)
	msPattern      = regexp.MustCompile(`\b(\d{1,3}):([0-5]\d)(\.\d+)?\b`)
	secondsPattern = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(seconds|second|secs|sec|s|秒)`)
	barePattern    = regexp.MustCompile(`(?i)(?:\b(?:at|around|about|near|approximately|approx\.?)\s+|@\s*)(\d+(?:\.\d+)?)\b`)

	sentenceBreak = regexp.MustCompile(`[.!?。！？;；\n]+`)
)

var defaultPositiveCues = []string{
	"highlight", "highlights", "huge moment", "key moment", "best", "climax", "peak",
	"exciting", "amazing", "stunning", "incredible", "epic", "must-see", "memorable",
	"important", "dramatic", "精彩", "亮点", "高潮", "惊艳", "震撼", "感动", "关键", "名场面",
}

var defaultNegativeCues = []string{
	"mistake", "error", "boring", "blurry", "失误", "错误", "问题", "遗憾", "无聊",
}

// Extractor recognizes time references. The zero value is not usable; call NewExtractor.
type Extractor struct {
	positive []string
	negative []string
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithCues replaces the emphasis vocabulary.
func WithCues(positive, negative []string) Option {
	return func(e *Extractor) {
		e.positive = normalizeCues(positive)
		e.negative = normalizeCues(negative)
	}
}

// NewExtractor returns an extractor using the built-in English and Chinese cue lists.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		positive: normalizeCues(defaultPositiveCues),
		negative: normalizeCues(defaultNegativeCues),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultExtractor = NewExtractor()

// Extract runs the default extractor.
func Extract(text string) []Reference {
	return defaultExtractor.Extract(text)
}

type span struct{ start, end int }

type hit struct {
	span
	offset float64
}

// Extract returns merged references ordered by offset. It never fails:
// text without recognizable times yields nil. Matching runs on the NFKC form
// of text; Text and Sentence are sliced from text itself.
func (e *Extractor) Extract(text string) []Reference {
	ct := canonicalize(text)
	canonical := ct.text
	if strings.TrimSpace(canonical) == "" {
		return nil
	}

	hits := collectHits(canonical)
	if len(hits) == 0 {
		return nil
	}

	sentences := sentenceSpans(canonical)
	refs := make([]Reference, 0, len(hits))
	for _, h := range hits {
		sentence := sentences.containing(h.start)
		window := cueWindow(canonical, h.span, sentence)
		refs = append(refs, Reference{
			Text:       ct.slice(h.start, h.end),
			Offset:     h.offset,
			Confidence: e.confidence(window),
			Sentence:   strings.TrimSpace(ct.slice(sentence.start, sentence.end)),
			position:   h.start,
		})
	}
	return merge(refs)
}

func collectHits(text string) []hit {
	var taken []span
	overlaps := func(s span) bool {
		for _, t := range taken {
			if s.start < t.end && t.start < s.end {
				return true
			}
		}
		return false
	}

	var hits []hit
	add := func(s span, offset float64) {
		if overlaps(s) || offset < 0 {
			return
		}
		taken = append(taken, s)
		hits = append(hits, hit{span: s, offset: offset})
	}

	for _, m := range hmsPattern.FindAllStringSubmatchIndex(text, -1) {
		s := span{m[0], m[1]}
		if colonAdjacent(text, s) {
			continue
		}
		h := atoi(text[m[2]:m[3]])
		mm := atoi(text[m[4]:m[5]])
		ss := atoi(text[m[6]:m[7]])
		add(s, float64(h*3600+mm*60+ss)+fraction(text, m[8], m[9]))
	}
	for _, m := range msPattern.FindAllStringSubmatchIndex(text, -1) {
		s := span{m[0], m[1]}
		if colonAdjacent(text, s) {
			continue
		}
		mm := atoi(text[m[2]:m[3]])
		ss := atoi(text[m[4]:m[5]])
		add(s, float64(mm*60+ss)+fraction(text, m[6], m[7]))
	}
	for _, m := range secondsPattern.FindAllStringSubmatchIndex(text, -1) {
		s := span{m[0], m[1]}
		if unit := text[m[4]:m[5]]; unit != "秒" && letterFollows(text, s.end) {
			continue
		}
		value, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		add(s, value)
	}
	for _, m := range barePattern.FindAllStringSubmatchIndex(text, -1) {
		s := span{m[2], m[3]}
		if s.end < len(text) {
			if next, _ := utf8.DecodeRuneInString(text[s.end:]); next == ':' || next == '%' {
				continue
			}
		}
		value, err := strconv.ParseFloat(text[m[2]:m[3]], 64)
		if err != nil {
			continue
		}
		add(s, value)
	}
	return hits
}

func (e *Extractor) confidence(window string) float64 {
	normalized := textutil.Normalize(window)
	positives := countCues(normalized, e.positive)
	negatives := countCues(normalized, e.negative)

	score := baseConfidence
	if positives > 0 {
		score = cueConfidence + cueStep*float64(positives-1)
	}
	score -= negativePenalty * float64(negatives)
	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

func countCues(text string, cues []string) int {
	count := 0
	for _, cue := range cues {
		if containsCue(text, cue) {
			count++
		}
	}
	return count
}

// containsCue matches ASCII cues on word boundaries and other cues as substrings.
func containsCue(text, cue string) bool {
	if !isASCII(cue) {
		return strings.Contains(text, cue)
	}
	from := 0
	for {
		idx := strings.Index(text[from:], cue)
		if idx < 0 {
			return false
		}
		start := from + idx
		end := start + len(cue)
		if !letterBefore(text, start) && !letterFollows(text, end) {
			return true
		}
		from = start + 1
	}
}

type sentenceList []span

func sentenceSpans(text string) sentenceList {
	var spans sentenceList
	start := 0
	for _, m := range sentenceBreak.FindAllStringIndex(text, -1) {
		// decimal points inside numbers are not sentence breaks
		if text[m[0]:m[1]] == "." && m[0] > 0 && m[1] < len(text) && isDigitAt(text, m[0]-1) && isDigitAt(text, m[1]) {
			continue
		}
		spans = append(spans, span{start, m[1]})
		start = m[1]
	}
	if start < len(text) {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}

func (l sentenceList) containing(pos int) span {
	for _, s := range l {
		if pos >= s.start && pos < s.end {
			return s
		}
	}
	if len(l) == 0 {
		return span{}
	}
	return l[len(l)-1]
}

// cueWindow returns up to cueWindowRunes runes on either side of s, clipped to the sentence.
func cueWindow(text string, s span, sentence span) string {
	start := s.start
	for i := 0; i < cueWindowRunes && start > sentence.start; i++ {
		_, size := utf8.DecodeLastRuneInString(text[sentence.start:start])
		start -= size
	}
	end := s.end
	for i := 0; i < cueWindowRunes && end < sentence.end; i++ {
		_, size := utf8.DecodeRuneInString(text[end:sentence.end])
		end += size
	}
	return text[start:end]
}

func normalizeCues(cues []string) []string {
	out := make([]string, 0, len(cues))
	for _, cue := range cues {
		if normalized := textutil.Normalize(cue); normalized != "" {
			out = append(out, normalized)
		}
	}
	return out
}

func colonAdjacent(text string, s span) bool {
	if s.start > 0 && text[s.start-1] == ':' {
		return true
	}
	return s.end < len(text) && text[s.end] == ':'
}

func letterBefore(text string, pos int) bool {
	if pos <= 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:pos])
	return unicode.IsLetter(r)
}

func letterFollows(text string, pos int) bool {
	if pos >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[pos:])
	return unicode.IsLetter(r)
}

func isDigitAt(text string, pos int) bool {
	return pos >= 0 && pos < len(text) && text[pos] >= '0' && text[pos] <= '9'
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func fraction(text string, start, end int) float64 {
	if start < 0 || end <= start {
		return 0
	}
	value, err := strconv.ParseFloat("0"+text[start:end], 64)
	if err != nil {
		return 0
	}
	return value
}
