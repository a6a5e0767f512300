package cfd

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cfdbot/cfdw/internal/config"
	"github.com/cfdbot/cfdw/internal/wiki"
	"github.com/cfdbot/cfdw/internal/wikitext"
)

// disabledTags are never parsed for instructions or links.
var disabledTags = []string{"comment", "math", "nowiki", "pre", "source"}

// cfdBlockRe matches the block the nomination templates are wrapped in.
var cfdBlockRe = regexp.MustCompile(`(?ims)<!--\s*BEGIN CFD TEMPLATE\s*-->.*?<!--\s*END CFD TEMPLATE\s*-->\n*`)

// Templates holds each template the engine reads or writes together with
// the redirects to it.
type Templates struct {
	// CategoryReference templates such as {{C}} link a category by name.
	CategoryReference wiki.TemplateSet
	// CfD are the nomination templates placed on discussed categories.
	CfD wiki.TemplateSet
	// OldCfD records a past discussion on the category talk page.
	OldCfD wiki.TemplateSet
	// CategoryRedirect marks a soft category redirect.
	CategoryRedirect wiki.TemplateSet

	oldCfDName           string
	categoryRedirectName string
}

// NewTemplates builds the sets from configured names only.
func NewTemplates(cfg config.TemplateConfig) *Templates {
	return &Templates{
		CategoryReference:    wiki.NewTemplateSet(cfg.CategoryReference...),
		CfD:                  wiki.NewTemplateSet(cfg.CfD...),
		OldCfD:               wiki.NewTemplateSet(cfg.OldCfD),
		CategoryRedirect:     wiki.NewTemplateSet(cfg.CategoryRedirect),
		oldCfDName:           cfg.OldCfD,
		categoryRedirectName: cfg.CategoryRedirect,
	}
}

// LoadTemplates builds the sets and adds every redirect to each existing
// template. A configured name that redirects is replaced by its target
// first. Names always match themselves even when the template is missing.
func LoadTemplates(ctx context.Context, site wiki.Site, cfg config.TemplateConfig) (*Templates, error) {
	t := NewTemplates(cfg)
	for _, set := range []wiki.TemplateSet{t.CategoryReference, t.CfD, t.OldCfD, t.CategoryRedirect} {
		if err := expandTemplateSet(ctx, site, set); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func expandTemplateSet(ctx context.Context, site wiki.Site, set wiki.TemplateSet) error {
	for _, tpl := range set.Titles() {
		if target, ok, err := site.RedirectTarget(ctx, tpl); err != nil {
			return fmt.Errorf("failed to resolve template %s: %w", tpl, err)
		} else if ok {
			tpl = target
			set[tpl] = true
		}
		exists, err := site.Exists(ctx, tpl)
		if err != nil {
			return fmt.Errorf("failed to check template %s: %w", tpl, err)
		}
		if !exists {
			continue
		}
		redirects, err := site.Redirects(ctx, tpl)
		if err != nil {
			return fmt.Errorf("failed to list redirects to %s: %w", tpl, err)
		}
		for _, r := range redirects {
			set[r] = true
		}
	}
	return nil
}

// categoryOf returns the category a template or wikilink node refers to.
// Category reference templates name it in their first parameter.
func (t *Templates) categoryOf(node wikitext.Node) (wiki.Title, bool) {
	switch n := node.(type) {
	case *wikitext.Template:
		if !t.CategoryReference.Matches(n) || !n.Has("1", false) {
			return wiki.Title{}, false
		}
		return parseCategory(n.Get("1").Value.String(), wiki.NSCategory)
	case *wikitext.Wikilink:
		return parseCategory(n.Title, wiki.NSMain)
	}
	return wiki.Title{}, false
}

func parseCategory(raw string, defaultNS int) (wiki.Title, bool) {
	title, _, err := wiki.ParseTitle(strings.TrimSpace(raw), defaultNS)
	if err != nil || title.Namespace != wiki.NSCategory {
		return wiki.Title{}, false
	}
	return title, true
}

// StripCfDTemplates removes the nomination block and any nomination
// template left outside it.
func (t *Templates) StripCfDTemplates(text string) string {
	text = cfdBlockRe.ReplaceAllString(text, "")
	code := wikitext.Parse(text)
	for _, tpl := range code.Templates() {
		if t.CfD.Matches(tpl) {
			code.Remove(tpl)
		}
	}
	return strings.TrimSpace(code.String())
}

// AddOldCfD prepends an {{Old CfD}} note for the discussion. It reports
// false when a note with the same date is already present.
func (t *Templates) AddOldCfD(text string, discussion DiscussionRef, action, result string) (string, bool) {
	date := discussion.Date()
	code := wikitext.Parse(text)
	for _, tpl := range code.Templates() {
		if !t.OldCfD.Matches(tpl) || !tpl.Has("date", true) {
			continue
		}
		if strings.TrimSpace(tpl.Get("date").Value.String()) == date {
			return text, false
		}
	}
	note := wikitext.NewTemplate(t.oldCfDName)
	note.Add("action", action)
	note.Add("date", date)
	note.Add("section", discussion.Section)
	note.Add("result", result)
	code.Insert(0, "\n")
	code.InsertNode(0, note)
	return code.String(), true
}

// CategoryRedirectText is the full text of a category redirected to target.
func (t *Templates) CategoryRedirectText(target wiki.Title) string {
	tpl := wikitext.NewTemplate(t.categoryRedirectName)
	tpl.Add("1", target.Name)
	return tpl.String()
}

func isMissing(err error) bool {
	return errors.Is(err, wiki.ErrMissing)
}
