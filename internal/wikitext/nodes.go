package wikitext

import (
	"strconv"
	"strings"
)

// Node is one element of parsed wikitext.
type Node interface {
	String() string
	node()
}

// Text is plain text between other nodes.
type Text struct {
	Value string
}

func (t *Text) String() string { return t.Value }
func (*Text) node()            {}

// Comment is an HTML comment. Unclosed comments run to the end of input.
type Comment struct {
	Contents string
	unclosed bool
}

func (c *Comment) String() string {
	if c.unclosed {
		return "<!--" + c.Contents
	}
	return "<!--" + c.Contents + "-->"
}
func (*Comment) node() {}

// Tag is an extension tag whose contents are never parsed, such as
// <nowiki> or <pre>. Raw holds the whole tag including its contents.
type Tag struct {
	Name string
	Raw  string
}

func (t *Tag) String() string { return t.Raw }
func (*Tag) node()            {}

// Heading is a section heading on its own line.
type Heading struct {
	Level int
	Title *Wikicode
	// Trailing is whitespace after the closing equals signs.
	Trailing string
}

func (h *Heading) String() string {
	marks := strings.Repeat("=", h.Level)
	return marks + h.Title.String() + marks + h.Trailing
}
func (*Heading) node() {}

// Wikilink is an internal link. Text is nil when the link has no pipe.
type Wikilink struct {
	Title string
	Text  *Wikicode
}

func (l *Wikilink) String() string {
	if l.Text == nil {
		return "[[" + l.Title + "]]"
	}
	return "[[" + l.Title + "|" + l.Text.String() + "]]"
}
func (*Wikilink) node() {}

// SetTitle replaces the link target while keeping any link text.
func (l *Wikilink) SetTitle(title string) {
	l.Title = title
}

// IsTextlink reports whether the link title starts with a colon.
func (l *Wikilink) IsTextlink() bool {
	return strings.HasPrefix(strings.TrimSpace(l.Title), ":")
}

// Template is a template transclusion.
type Template struct {
	Name   string
	Params []*Parameter
}

func (t *Template) String() string {
	var b strings.Builder
	b.WriteString("{{")
	b.WriteString(t.Name)
	for _, p := range t.Params {
		b.WriteByte('|')
		b.WriteString(p.String())
	}
	b.WriteString("}}")
	return b.String()
}
func (*Template) node() {}

// Parameter is a template argument. Positional parameters have Showkey
// false and a Name of their 1-based position.
type Parameter struct {
	Name    string
	Value   *Wikicode
	Showkey bool
	rawName string
}

func (p *Parameter) String() string {
	if p.Showkey {
		return p.rawName + "=" + p.Value.String()
	}
	return p.Value.String()
}

// Get returns the parameter with the given name, or nil.
func (t *Template) Get(name string) *Parameter {
	name = strings.TrimSpace(name)
	for _, p := range t.Params {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Has reports whether the parameter exists. With ignoreEmpty a parameter
// whose value is blank counts as absent.
func (t *Template) Has(name string, ignoreEmpty bool) bool {
	p := t.Get(name)
	if p == nil {
		return false
	}
	if ignoreEmpty && strings.TrimSpace(p.Value.String()) == "" {
		return false
	}
	return true
}

// Add sets the parameter value, appending it when absent.
func (t *Template) Add(name, value string) {
	name = strings.TrimSpace(name)
	if p := t.Get(name); p != nil {
		p.Value = Parse(value)
		return
	}
	positional := 0
	for _, p := range t.Params {
		if !p.Showkey {
			positional++
		}
	}
	p := &Parameter{Name: name, Value: Parse(value), rawName: name}
	if n, err := strconv.Atoi(name); err != nil || n != positional+1 {
		p.Showkey = true
	}
	t.Params = append(t.Params, p)
}

// Remove drops the named parameter. It reports whether one was removed.
func (t *Template) Remove(name string) bool {
	name = strings.TrimSpace(name)
	for i, p := range t.Params {
		if p.Name == name {
			t.Params = append(t.Params[:i], t.Params[i+1:]...)
			return true
		}
	}
	return false
}

// NewTemplate builds a template with no parameters.
func NewTemplate(name string) *Template {
	return &Template{Name: name}
}
