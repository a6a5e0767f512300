package cfd

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/cfdbot/cfdw/internal/wiki"
	"github.com/cfdbot/cfdw/internal/wikitext"
)

var (
	resultRe  = regexp.MustCompile(`(?i)the result of the discussion was:(?:'')?\s+'''(.+?)'''`)
	proposeRe = regexp.MustCompile(`'''Propose (.+?)'''`)
)

// Resolver finds the discussion of a category on a daily log page. Each
// log page is fetched and parsed once per Resolver.
type Resolver struct {
	site      wiki.Site
	templates *Templates
	logger    *slog.Logger

	mu    sync.Mutex
	pages map[wiki.Title]*wikitext.Wikicode
}

// NewResolver creates a resolver with an empty page cache.
func NewResolver(site wiki.Site, templates *Templates, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		site:      site,
		templates: templates,
		logger:    logger,
		pages:     make(map[wiki.Title]*wikitext.Wikicode),
	}
}

// page returns the parsed log page. A missing page parses as empty.
func (r *Resolver) page(ctx context.Context, title wiki.Title) (*wikitext.Wikicode, error) {
	r.mu.Lock()
	code, ok := r.pages[title]
	r.mu.Unlock()
	if ok {
		return code, nil
	}

	text, err := r.site.GetText(ctx, title)
	if isMissing(err) {
		r.logger.Debug("discussion page does not exist", "page", title.String())
		text = ""
	} else if err != nil {
		return nil, fmt.Errorf("failed to read discussion %s: %w", title, err)
	}
	code = wikitext.Parse(wikitext.RemoveDisabledParts(text, disabledTags...))

	r.mu.Lock()
	r.pages[title] = code
	r.mu.Unlock()
	return code, nil
}

// Find narrows ref to the section discussing category. A ref that
// already has a section is returned unchanged. A level-4 heading equal to
// the category title wins; otherwise the nomination (the text between
// the first and second "(UTC)" signature) is searched for the category.
// Without a match the whole page is the discussion.
func (r *Resolver) Find(ctx context.Context, ref DiscussionRef, category wiki.Title) (DiscussionRef, error) {
	if ref.Section != "" {
		return ref, nil
	}
	code, err := r.page(ctx, ref.Page)
	if err != nil {
		return ref, err
	}
	for _, sec := range code.Sections(wikitext.SectionOptions{Levels: []int{4}}) {
		heading := sec.Get(0).(*wikitext.Heading)
		discussion := ref
		// Headings with links or templates cannot be section anchors.
		if heading.Title.IsPlainText() {
			title := strings.TrimSpace(heading.Title.String())
			discussion = DiscussionRef{Page: ref.Page, Section: title}
			if title == category.String() {
				return discussion, nil
			}
		}
		parts := strings.Split(sec.String(), "(UTC)")
		if len(parts) < 3 {
			continue
		}
		for _, node := range wikitext.Parse(parts[1]).Filter(true) {
			if cat, ok := r.templates.categoryOf(node); ok && cat == category {
				return discussion, nil
			}
		}
	}
	return ref, nil
}

// ResultAction reads the closing result and the proposed action for
// category from the discussion section. Either may be empty.
func (r *Resolver) ResultAction(ctx context.Context, ref DiscussionRef, category wiki.Title) (result, action string, err error) {
	if ref.Section == "" {
		return "", "", nil
	}
	code, err := r.page(ctx, ref.Page)
	if err != nil {
		return "", "", err
	}
	var section *wikitext.Wikicode
	for _, sec := range code.Sections(wikitext.SectionOptions{Levels: []int{4}}) {
		heading := sec.Get(0).(*wikitext.Heading)
		if strings.TrimSpace(heading.Title.String()) == ref.Section {
			section = sec
			break
		}
	}
	if section == nil {
		return "", "", nil
	}
	for _, line := range strings.Split(section.String(), "\n") {
		if m := resultRe.FindStringSubmatch(line); m != nil {
			result = m[1]
		}
		for _, node := range wikitext.Parse(line).Filter(true) {
			if cat, ok := r.templates.categoryOf(node); ok && cat == category {
				if m := proposeRe.FindStringSubmatch(line); m != nil {
					action = m[1]
				}
				break
			}
		}
	}
	return result, action, nil
}
