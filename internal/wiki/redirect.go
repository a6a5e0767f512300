package wiki

import (
	"regexp"
	"strings"

	"github.com/cfdbot/cfdw/internal/wikitext"
)

var hardRedirectRe = regexp.MustCompile(`(?i)^\s*#REDIRECT\s*:?\s*\[\[([^\]|]+)(?:\|[^\]]*)?\]\]`)

// DefaultCategoryRedirectTemplates are the templates that turn a category
// into a soft redirect.
var DefaultCategoryRedirectTemplates = []string{"Category redirect"}

// TemplateSet is a set of template titles, usually one template plus the
// redirects to it.
type TemplateSet map[Title]bool

// NewTemplateSet builds a set from template names with or without the
// Template: prefix. Names that are not valid titles are skipped.
func NewTemplateSet(names ...string) TemplateSet {
	set := make(TemplateSet, len(names))
	for _, name := range names {
		if t, _, err := ParseTitle(name, NSTemplate); err == nil {
			set[t] = true
		}
	}
	return set
}

// Matches reports whether a template node transcludes one of the set.
func (s TemplateSet) Matches(tpl *wikitext.Template) bool {
	name := wikitext.RemoveDisabledParts(tpl.Name, "comment")
	t, _, err := ParseTitle(name, NSTemplate)
	if err != nil {
		return false
	}
	return s[t]
}

// Titles returns the members of the set.
func (s TemplateSet) Titles() []Title {
	out := make([]Title, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	return out
}

// ParseRedirect finds the redirect target encoded in page text: a
// #REDIRECT line, or a category redirect template whose first parameter
// names a category.
func ParseRedirect(text string, categoryRedirects TemplateSet) (Title, bool) {
	if m := hardRedirectRe.FindStringSubmatch(text); m != nil {
		if t, _, err := ParseTitle(m[1], NSMain); err == nil {
			return t, true
		}
	}
	if len(categoryRedirects) == 0 {
		return Title{}, false
	}
	code := wikitext.Parse(wikitext.RemoveDisabledParts(text, "comment", "nowiki"))
	for _, tpl := range code.Templates() {
		if !categoryRedirects.Matches(tpl) || !tpl.Has("1", true) {
			continue
		}
		target := strings.TrimSpace(tpl.Get("1").Value.String())
		if t, _, err := ParseTitle(target, NSCategory); err == nil {
			return t, true
		}
	}
	return Title{}, false
}
