package wikitext

import (
	"regexp"
	"strings"
)

// Wikicode is an ordered list of nodes. Sections and node contents
// (heading titles, link text, template values) are Wikicode too.
type Wikicode struct {
	nodes []Node
}

// String serializes the nodes back to wikitext.
func (w *Wikicode) String() string {
	if w == nil {
		return ""
	}
	var b strings.Builder
	for _, n := range w.nodes {
		b.WriteString(n.String())
	}
	return b.String()
}

// Nodes returns the top-level nodes.
func (w *Wikicode) Nodes() []Node {
	return w.nodes
}

// children returns the Wikicode containers directly owned by n.
func children(n Node) []*Wikicode {
	switch v := n.(type) {
	case *Heading:
		return []*Wikicode{v.Title}
	case *Wikilink:
		if v.Text != nil {
			return []*Wikicode{v.Text}
		}
	case *Template:
		out := make([]*Wikicode, 0, len(v.Params))
		for _, p := range v.Params {
			out = append(out, p.Value)
		}
		return out
	}
	return nil
}

// Filter returns nodes in document order. With recursive it also
// descends into heading titles, link text and template parameters.
func (w *Wikicode) Filter(recursive bool) []Node {
	var out []Node
	var walk func(*Wikicode)
	walk = func(code *Wikicode) {
		for _, n := range code.nodes {
			out = append(out, n)
			if recursive {
				for _, c := range children(n) {
					walk(c)
				}
			}
		}
	}
	walk(w)
	return out
}

// Wikilinks returns every link, including nested ones.
func (w *Wikicode) Wikilinks() []*Wikilink {
	var out []*Wikilink
	for _, n := range w.Filter(true) {
		if l, ok := n.(*Wikilink); ok {
			out = append(out, l)
		}
	}
	return out
}

// Templates returns every template, including nested ones.
func (w *Wikicode) Templates() []*Template {
	var out []*Template
	for _, n := range w.Filter(true) {
		if t, ok := n.(*Template); ok {
			out = append(out, t)
		}
	}
	return out
}

// Headings returns the top-level headings.
func (w *Wikicode) Headings() []*Heading {
	var out []*Heading
	for _, n := range w.nodes {
		if h, ok := n.(*Heading); ok {
			out = append(out, h)
		}
	}
	return out
}

// SectionOptions selects sections.
type SectionOptions struct {
	// Levels restricts the headings that start a section. Empty means all.
	Levels []int
	// Flat ends each section at the next heading of any level instead of
	// the next heading of the same or a higher level.
	Flat bool
	// IncludeLead adds the text before the first heading, if any.
	IncludeLead bool
}

// Sections splits the code by headings. Sections share nodes with w.
func (w *Wikicode) Sections(opts SectionOptions) []*Wikicode {
	var out []*Wikicode
	first := len(w.nodes)
	for i, n := range w.nodes {
		if _, ok := n.(*Heading); ok {
			first = i
			break
		}
	}
	if opts.IncludeLead && first > 0 {
		out = append(out, &Wikicode{nodes: w.nodes[:first:first]})
	}
	for i := first; i < len(w.nodes); i++ {
		h, ok := w.nodes[i].(*Heading)
		if !ok || !levelWanted(opts.Levels, h.Level) {
			continue
		}
		end := len(w.nodes)
		for j := i + 1; j < len(w.nodes); j++ {
			next, ok := w.nodes[j].(*Heading)
			if ok && (opts.Flat || next.Level <= h.Level) {
				end = j
				break
			}
		}
		out = append(out, &Wikicode{nodes: w.nodes[i:end:end]})
	}
	return out
}

func levelWanted(levels []int, level int) bool {
	if len(levels) == 0 {
		return true
	}
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

// locate finds the container holding target and its index.
func (w *Wikicode) locate(target Node) (*Wikicode, int) {
	for i, n := range w.nodes {
		if n == target {
			return w, i
		}
		for _, c := range children(n) {
			if owner, idx := c.locate(target); owner != nil {
				return owner, idx
			}
		}
	}
	return nil, -1
}

// Contains reports whether target is anywhere in the tree.
func (w *Wikicode) Contains(target Node) bool {
	owner, _ := w.locate(target)
	return owner != nil
}

// Index returns the top-level index of node, or -1.
func (w *Wikicode) Index(node Node) int {
	for i, n := range w.nodes {
		if n == node {
			return i
		}
	}
	return -1
}

// Get returns the top-level node at index.
func (w *Wikicode) Get(index int) Node {
	return w.nodes[index]
}

// Insert parses value and inserts its nodes at the top-level index.
func (w *Wikicode) Insert(index int, value string) {
	w.insertNodes(index, Parse(value).nodes)
}

// InsertNode inserts node at the top-level index.
func (w *Wikicode) InsertNode(index int, node Node) {
	w.insertNodes(index, []Node{node})
}

func (w *Wikicode) insertNodes(index int, nodes []Node) {
	if index < 0 {
		index = 0
	}
	if index > len(w.nodes) {
		index = len(w.nodes)
	}
	merged := make([]Node, 0, len(w.nodes)+len(nodes))
	merged = append(merged, w.nodes[:index]...)
	merged = append(merged, nodes...)
	merged = append(merged, w.nodes[index:]...)
	w.nodes = merged
}

// InsertAfter parses value and inserts it directly after target, wherever
// target sits in the tree. It reports whether target was found.
func (w *Wikicode) InsertAfter(target Node, value string) bool {
	owner, idx := w.locate(target)
	if owner == nil {
		return false
	}
	owner.insertNodes(idx+1, Parse(value).nodes)
	return true
}

// Remove deletes target from the tree. It reports whether it was found.
func (w *Wikicode) Remove(target Node) bool {
	owner, idx := w.locate(target)
	if owner == nil {
		return false
	}
	owner.nodes = append(owner.nodes[:idx:idx], owner.nodes[idx+1:]...)
	return true
}

// Previous returns the node before target in its container, or nil.
func (w *Wikicode) Previous(target Node) Node {
	owner, idx := w.locate(target)
	if owner == nil || idx == 0 {
		return nil
	}
	return owner.nodes[idx-1]
}

// IsPlainText reports whether the code holds only text nodes.
func (w *Wikicode) IsPlainText() bool {
	for _, n := range w.nodes {
		if _, ok := n.(*Text); !ok {
			return false
		}
	}
	return true
}

var commentRe = regexp.MustCompile(`(?s)<!--.*?(?:-->|$)`)

// RemoveDisabledParts strips comments (tag name "comment") and the
// contents of the named tags from text before parsing.
func RemoveDisabledParts(text string, tags ...string) string {
	for _, tag := range tags {
		if tag == "comment" {
			text = commentRe.ReplaceAllString(text, "")
			continue
		}
		name := regexp.QuoteMeta(tag)
		re := regexp.MustCompile(`(?is)<` + name + `(?:\s[^>]*)?>.*?</` + name + `\s*>|<` + name + `(?:\s[^>]*)?/>`)
		text = re.ReplaceAllString(text, "")
	}
	return text
}
