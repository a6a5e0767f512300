package wikitext

import (
	"strconv"
	"strings"
)

// rawTags are extension tags whose contents are kept verbatim.
var rawTags = []string{"nowiki", "pre", "math", "source", "syntaxhighlight"}

// Parse tokenizes wikitext. It never fails: anything that does not form a
// complete construct is kept as text, so String() reproduces the input.
func Parse(text string) *Wikicode {
	return &Wikicode{nodes: parseNodes(text)}
}

// scanner tokenizes one string. Bracket and raw tag matches are memoized
// by start offset so every construct is scanned at most once, which keeps
// unbalanced input linear.
type scanner struct {
	s    string
	memo map[int]match
}

type match struct {
	name string
	end  int
	ok   bool
}

func newScanner(s string) *scanner {
	return &scanner{s: s, memo: make(map[int]match)}
}

func parseNodes(s string) []Node {
	return newScanner(s).nodes()
}

func (sc *scanner) nodes() []Node {
	s := sc.s
	var nodes []Node
	textStart := 0
	flush := func(end int) {
		if end > textStart {
			nodes = append(nodes, &Text{Value: s[textStart:end]})
		}
	}

	i := 0
	for i < len(s) {
		switch {
		case strings.HasPrefix(s[i:], "<!--"):
			flush(i)
			end := strings.Index(s[i+4:], "-->")
			if end < 0 {
				nodes = append(nodes, &Comment{Contents: s[i+4:], unclosed: true})
				i = len(s)
			} else {
				nodes = append(nodes, &Comment{Contents: s[i+4 : i+4+end]})
				i += 4 + end + 3
			}
			textStart = i
			continue

		case s[i] == '<':
			if name, end, ok := sc.rawTag(i); ok {
				flush(i)
				nodes = append(nodes, &Tag{Name: name, Raw: s[i:end]})
				i = end
				textStart = i
				continue
			}

		case strings.HasPrefix(s[i:], "{{"):
			if end, ok := sc.close(i); ok {
				flush(i)
				nodes = append(nodes, parseTemplate(s[i+2:end-2]))
				i = end
				textStart = i
				continue
			}

		case strings.HasPrefix(s[i:], "[["):
			if end, ok := sc.close(i); ok {
				flush(i)
				nodes = append(nodes, parseWikilink(s[i+2:end-2]))
				i = end
				textStart = i
				continue
			}

		case s[i] == '=' && (i == 0 || s[i-1] == '\n'):
			if h, end, ok := parseHeading(s, i); ok {
				flush(i)
				nodes = append(nodes, h)
				i = end
				textStart = i
				continue
			}
		}
		i++
	}
	flush(len(s))
	return nodes
}

// rawTag matches <name ...>...</name> or <name .../> for a raw tag
// starting at i, case-insensitively.
func (sc *scanner) rawTag(i int) (string, int, bool) {
	if m, ok := sc.memo[i]; ok {
		return m.name, m.end, m.ok
	}
	name, end, ok := matchRawTag(sc.s, i)
	sc.memo[i] = match{name: name, end: end, ok: ok}
	return name, end, ok
}

func matchRawTag(s string, i int) (string, int, bool) {
	for _, name := range rawTags {
		n := i + 1 + len(name)
		if n >= len(s) || !strings.EqualFold(s[i+1:n], name) {
			continue
		}
		if c := s[n]; !(c == '>' || c == '/' || c == ' ' || c == '\t' || c == '\n') {
			continue
		}
		gt := strings.IndexByte(s[n:], '>')
		if gt < 0 {
			return "", 0, false
		}
		openEnd := n + gt + 1
		if s[openEnd-2] == '/' {
			return name, openEnd, true
		}
		idx := indexFold(s[openEnd:], "</"+name)
		if idx < 0 {
			return "", 0, false
		}
		after := openEnd + idx + len(name) + 2
		gt = strings.IndexByte(s[after:], '>')
		if gt < 0 {
			return "", 0, false
		}
		return name, after + gt + 1, true
	}
	return "", 0, false
}

// indexFold is strings.Index with ASCII case folding.
func indexFold(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(substr)], substr) {
			return i
		}
	}
	return -1
}

// skipOpaque returns the end of a comment or raw tag starting at i.
func (sc *scanner) skipOpaque(i int) (int, bool) {
	s := sc.s
	if strings.HasPrefix(s[i:], "<!--") {
		end := strings.Index(s[i+4:], "-->")
		if end < 0 {
			return len(s), true
		}
		return i + 4 + end + 3, true
	}
	if s[i] == '<' {
		if _, end, ok := sc.rawTag(i); ok {
			return end, true
		}
	}
	return 0, false
}

// close finds the end (exclusive) of the "{{" or "[[" pair opened at i.
// Nested templates and links are balanced independently.
func (sc *scanner) close(i int) (int, bool) {
	if m, ok := sc.memo[i]; ok {
		return m.end, m.ok
	}
	end, ok := sc.matchClose(i)
	sc.memo[i] = match{end: end, ok: ok}
	return end, ok
}

func (sc *scanner) matchClose(i int) (int, bool) {
	s := sc.s
	closer := "}}"
	if s[i] == '[' {
		closer = "]]"
	}
	j := i + 2
	for j < len(s) {
		if end, ok := sc.skipOpaque(j); ok {
			j = end
			continue
		}
		if strings.HasPrefix(s[j:], closer) {
			return j + len(closer), true
		}
		if strings.HasPrefix(s[j:], "{{") {
			end, ok := sc.close(j)
			if !ok {
				return 0, false
			}
			j = end
			continue
		}
		if strings.HasPrefix(s[j:], "[[") {
			end, ok := sc.close(j)
			if ok {
				j = end
				continue
			}
			// An unclosed inner link walked the rest of s looking for the
			// same "]]", so an enclosing link cannot close either. Inside
			// a template it is text.
			if closer == "]]" {
				return 0, false
			}
			j += 2
			continue
		}
		j++
	}
	return 0, false
}

// splitTopLevel splits s at sep occurrences outside nested constructs.
// With limit > 0 at most limit pieces are returned.
func splitTopLevel(s string, sep byte, limit int) []string {
	sc := newScanner(s)
	var parts []string
	start := 0
	j := 0
	for j < len(s) {
		if limit > 0 && len(parts) == limit-1 {
			break
		}
		if end, ok := sc.skipOpaque(j); ok {
			j = end
			continue
		}
		if strings.HasPrefix(s[j:], "{{") || strings.HasPrefix(s[j:], "[[") {
			if end, ok := sc.close(j); ok {
				j = end
				continue
			}
		}
		if s[j] == sep {
			parts = append(parts, s[start:j])
			start = j + 1
		}
		j++
	}
	return append(parts, s[start:])
}

func parseTemplate(body string) *Template {
	pieces := splitTopLevel(body, '|', 0)
	tpl := &Template{Name: pieces[0]}
	positional := 0
	for _, raw := range pieces[1:] {
		kv := splitTopLevel(raw, '=', 2)
		if len(kv) == 2 {
			tpl.Params = append(tpl.Params, &Parameter{
				Name:    strings.TrimSpace(kv[0]),
				Value:   Parse(kv[1]),
				Showkey: true,
				rawName: kv[0],
			})
			continue
		}
		positional++
		name := strconv.Itoa(positional)
		tpl.Params = append(tpl.Params, &Parameter{
			Name:    name,
			Value:   Parse(raw),
			rawName: name,
		})
	}
	return tpl
}

func parseWikilink(body string) *Wikilink {
	pieces := splitTopLevel(body, '|', 2)
	link := &Wikilink{Title: pieces[0]}
	if len(pieces) == 2 {
		link.Text = Parse(pieces[1])
	}
	return link
}

// parseHeading parses a heading line starting at i (a line start).
func parseHeading(s string, i int) (*Heading, int, bool) {
	eol := strings.IndexByte(s[i:], '\n')
	if eol < 0 {
		eol = len(s)
	} else {
		eol += i
	}
	line := s[i:eol]
	trimmed := strings.TrimRight(line, " \t")
	left := len(trimmed) - len(strings.TrimLeft(trimmed, "="))
	right := len(trimmed) - len(strings.TrimRight(trimmed, "="))
	level := min(left, right, 6)
	if level > 0 && len(trimmed) < 2*level+1 {
		level = (len(trimmed) - 1) / 2
	}
	if level < 1 {
		return nil, 0, false
	}
	return &Heading{
		Level:    level,
		Title:    Parse(trimmed[level : len(trimmed)-level]),
		Trailing: line[len(trimmed):],
	}, eol, true
}
