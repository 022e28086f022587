package decision

import (
	"regexp"
	"sort"
	"strings"
)

// repair is one syntactic fix applied to a candidate before re-decoding.
type repair struct {
	name  string
	apply func(string) string
}

// repairs run cumulatively: each step sees the output of the previous one.
var repairs = []repair{
	{name: "trailing_commas", apply: stripTrailingCommas},
	{name: "comments", apply: func(s string) string { return stripTrailingCommas(stripComments(s)) }},
	{name: "single_quotes", apply: normalizeSingleQuotes},
	{name: "bare_keys", apply: quoteBareKeys},
	{name: "close_brackets", apply: closeBrackets},
}

var fencePattern = regexp.MustCompile("(?s)```([A-Za-z0-9_-]*)[ \t]*\r?\n?(.*?)```")

type fencedBlock struct {
	label string
	body  string
}

// fencedBlocks returns json-labelled blocks longest first, followed by the
// longest unlabelled block.
func fencedBlocks(raw string) []fencedBlock {
	var labelled, plain []fencedBlock
	for _, m := range fencePattern.FindAllStringSubmatch(raw, -1) {
		block := fencedBlock{label: strings.ToLower(m[1]), body: strings.TrimSpace(m[2])}
		if block.body == "" {
			continue
		}
		switch block.label {
		case "json", "json5", "jsonc":
			labelled = append(labelled, block)
		case "":
			plain = append(plain, block)
		}
	}
	byLength := func(blocks []fencedBlock) {
		sort.SliceStable(blocks, func(i, j int) bool { return len(blocks[i].body) > len(blocks[j].body) })
	}
	byLength(labelled)
	byLength(plain)
	if len(plain) > 0 {
		labelled = append(labelled, plain[0])
	}
	return labelled
}

// bracketSpan returns the text from the first opening bracket to its matching
// close. Brackets inside quoted strings and comments are ignored. When the
// structure never closes the span runs to the end of the text.
func bracketSpan(raw string) (string, bool) {
	start := strings.IndexAny(raw, "{[")
	if start < 0 {
		return "", false
	}
	depth := 0
	var quote byte
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch {
		case c == '/' && i+1 < len(raw) && raw[i+1] == '/':
			if nl := strings.IndexByte(raw[i:], '\n'); nl >= 0 {
				i += nl
			} else {
				i = len(raw)
			}
		case c == '/' && i+1 < len(raw) && raw[i+1] == '*':
			if end := strings.Index(raw[i+2:], "*/"); end >= 0 {
				i += end + 3
			} else {
				i = len(raw)
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return raw[start:], true
}

// scanner walks text while tracking double-quoted strings.
type scanner struct {
	src     []rune
	pos     int
	out     strings.Builder
	inStr   bool
	escaped bool
}

func newScanner(s string) *scanner {
	return &scanner{src: []rune(s)}
}

func (sc *scanner) done() bool { return sc.pos >= len(sc.src) }

func (sc *scanner) peek(offset int) rune {
	if sc.pos+offset >= len(sc.src) {
		return 0
	}
	return sc.src[sc.pos+offset]
}

// copyStringRune copies the current rune when inside a string and reports
// whether it did.
func (sc *scanner) copyStringRune() bool {
	if !sc.inStr {
		return false
	}
	r := sc.src[sc.pos]
	switch {
	case sc.escaped:
		sc.escaped = false
	case r == '\\':
		sc.escaped = true
	case r == '"':
		sc.inStr = false
	}
	sc.out.WriteRune(r)
	sc.pos++
	return true
}

func (sc *scanner) emit() {
	r := sc.src[sc.pos]
	if r == '"' {
		sc.inStr = true
	}
	sc.out.WriteRune(r)
	sc.pos++
}

func stripTrailingCommas(s string) string {
	sc := newScanner(s)
	for !sc.done() {
		if sc.copyStringRune() {
			continue
		}
		if sc.src[sc.pos] == ',' {
			j := sc.pos + 1
			for j < len(sc.src) && isSpace(sc.src[j]) {
				j++
			}
			if j < len(sc.src) && (sc.src[j] == '}' || sc.src[j] == ']') {
				sc.pos++
				continue
			}
		}
		sc.emit()
	}
	return sc.out.String()
}

func normalizeSingleQuotes(s string) string {
	sc := newScanner(s)
	for !sc.done() {
		if sc.copyStringRune() {
			continue
		}
		if sc.src[sc.pos] != '\'' {
			sc.emit()
			continue
		}
		sc.pos++
		sc.out.WriteByte('"')
		for !sc.done() {
			r := sc.src[sc.pos]
			if r == '\\' && sc.peek(1) == '\'' {
				sc.out.WriteRune('\'')
				sc.pos += 2
				continue
			}
			if r == '\\' && sc.peek(1) != 0 {
				sc.out.WriteRune(r)
				sc.out.WriteRune(sc.peek(1))
				sc.pos += 2
				continue
			}
			sc.pos++
			if r == '\'' {
				break
			}
			if r == '"' {
				sc.out.WriteString(`\"`)
				continue
			}
			sc.out.WriteRune(r)
		}
		sc.out.WriteByte('"')
	}
	return sc.out.String()
}

func stripComments(s string) string {
	sc := newScanner(s)
	for !sc.done() {
		if sc.copyStringRune() {
			continue
		}
		r := sc.src[sc.pos]
		switch {
		case r == '/' && sc.peek(1) == '/':
			for !sc.done() && sc.src[sc.pos] != '\n' {
				sc.pos++
			}
		case r == '/' && sc.peek(1) == '*':
			sc.pos += 2
			for !sc.done() && !(sc.src[sc.pos] == '*' && sc.peek(1) == '/') {
				sc.pos++
			}
			sc.pos += 2
			if sc.pos > len(sc.src) {
				sc.pos = len(sc.src)
			}
		case r == '#':
			for !sc.done() && sc.src[sc.pos] != '\n' {
				sc.pos++
			}
		case r == '\'':
			sc.copySingleQuoted()
		default:
			sc.emit()
		}
	}
	return sc.out.String()
}

// copySingleQuoted copies a single-quoted string verbatim, so comment markers
// inside it survive until the quotes are normalized.
func (sc *scanner) copySingleQuoted() {
	sc.out.WriteRune(sc.src[sc.pos])
	sc.pos++
	for !sc.done() {
		r := sc.src[sc.pos]
		sc.out.WriteRune(r)
		sc.pos++
		if r == '\\' && !sc.done() {
			sc.out.WriteRune(sc.src[sc.pos])
			sc.pos++
			continue
		}
		if r == '\'' {
			return
		}
	}
}

func quoteBareKeys(s string) string {
	sc := newScanner(s)
	expectKey := false
	for !sc.done() {
		if sc.copyStringRune() {
			continue
		}
		r := sc.src[sc.pos]
		switch {
		case r == '{' || r == ',':
			expectKey = true
			sc.emit()
		case isSpace(r):
			sc.emit()
		case expectKey && isIdentStart(r):
			end := sc.pos
			for end < len(sc.src) && isIdentPart(sc.src[end]) {
				end++
			}
			next := end
			for next < len(sc.src) && isSpace(sc.src[next]) {
				next++
			}
			if next < len(sc.src) && sc.src[next] == ':' {
				sc.out.WriteByte('"')
				sc.out.WriteString(string(sc.src[sc.pos:end]))
				sc.out.WriteByte('"')
				sc.pos = end
			} else {
				sc.emit()
			}
			expectKey = false
		default:
			expectKey = false
			sc.emit()
		}
	}
	return sc.out.String()
}

func closeBrackets(s string) string {
	var stack []rune
	sc := newScanner(s)
	for !sc.done() {
		if sc.copyStringRune() {
			continue
		}
		switch sc.src[sc.pos] {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
		sc.emit()
	}
	out := sc.out.String()
	if sc.inStr {
		if sc.escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	}
	if len(stack) == 0 {
		return out
	}
	out = strings.TrimRightFunc(out, isSpace)
	out = strings.TrimSuffix(out, ",")
	out = strings.TrimSuffix(out, ":")
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return stripTrailingCommas(out)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}
