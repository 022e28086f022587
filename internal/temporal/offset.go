package temporal

import (
	"strconv"
	"strings"

	"clipforge/internal/textutil"
)

// ParseOffset converts a standalone time literal ("1:05", "00:01:05.5",
// "65", "65s", "65 seconds", "65秒") into seconds.
func ParseOffset(value string) (float64, bool) {
	value = strings.TrimSpace(textutil.Canonical(value))
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return seconds, seconds >= 0
	}
	hits := collectHits(value)
	if len(hits) != 1 {
		return 0, false
	}
	h := hits[0]
	if strings.TrimSpace(value[:h.start]) != "" || strings.TrimSpace(value[h.end:]) != "" {
		return 0, false
	}
	return h.offset, true
}

// FormatOffset renders seconds as M:SS or H:MM:SS with an optional fraction.
func FormatOffset(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	whole := int(seconds)
	frac := seconds - float64(whole)
	h, m, s := whole/3600, (whole%3600)/60, whole%60
	var out string
	if h > 0 {
		out = strconv.Itoa(h) + ":" + pad2(m) + ":" + pad2(s)
	} else {
		out = strconv.Itoa(m) + ":" + pad2(s)
	}
	if frac >= 0.05 {
		out += strings.TrimPrefix(strconv.FormatFloat(frac, 'f', 1, 64), "0")
	}
	return out
}

func pad2(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}
