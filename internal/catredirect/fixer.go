// Package catredirect fixes category redirects that point at another
// category redirect by retargeting them to the end of the chain.
package catredirect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cfdbot/cfdw/internal/bot"
	"github.com/cfdbot/cfdw/internal/events"
	"github.com/cfdbot/cfdw/internal/wiki"
	"github.com/cfdbot/cfdw/internal/wikitext"
)

// ShutoffTask names the kill switch page of the fixer.
const ShutoffTask = "CategoryDoubleRedirectFixerBot"

// DefaultSummary is the edit summary of a fix.
const DefaultSummary = "Fix double redirect"

// Fixer retargets double category redirects.
type Fixer struct {
	site      wiki.Site
	templates wiki.TemplateSet
	runner    *bot.Runner
	recorder  *events.Recorder
	logger    *slog.Logger

	// Summary is used for every edit.
	Summary string
}

// New creates a fixer that recognizes template and every redirect to it.
// A zero shutoff title disables the kill switch; recorder may be nil.
func New(ctx context.Context, site wiki.Site, template string, shutoff wiki.Title, concurrency int, recorder *events.Recorder, logger *slog.Logger) (*Fixer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	templates := wiki.NewTemplateSet(template)
	for _, tpl := range templates.Titles() {
		redirects, err := site.Redirects(ctx, tpl)
		if err != nil {
			return nil, fmt.Errorf("failed to list redirects to %s: %w", tpl, err)
		}
		for _, r := range redirects {
			templates[r] = true
		}
	}
	return &Fixer{
		site:      site,
		templates: templates,
		runner:    bot.NewRunner(site, shutoff, concurrency, logger),
		recorder:  recorder,
		logger:    logger,
		Summary:   DefaultSummary,
	}, nil
}

// Run fixes each page. Pages that are not double category redirects are
// skipped.
func (f *Fixer) Run(ctx context.Context, pages []wiki.Title) (bot.Stats, error) {
	f.logger.Info("fixing double category redirects", "pages", len(pages))
	return f.runner.Run(ctx, pages, f.treat)
}

// Candidates lists the members of a tracking category.
func (f *Fixer) Candidates(ctx context.Context, category wiki.Title) ([]wiki.Title, error) {
	members, err := f.site.ListMembers(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of %s: %w", category, err)
	}
	return members, nil
}

func (f *Fixer) treat(ctx context.Context, page wiki.Title) (bool, error) {
	if page.Namespace != wiki.NSCategory {
		f.logger.Error("not a category", "page", page.String())
		return false, nil
	}
	text, err := f.site.GetText(ctx, page)
	if errors.Is(err, wiki.ErrMissing) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", page, err)
	}
	code := wikitext.Parse(text)
	tpl, first, ok := f.redirectTemplate(code)
	if !ok {
		f.logger.Error("not a category redirect", "page", page.String())
		return false, nil
	}

	final, hops, err := f.follow(ctx, page, first)
	if err != nil || hops == 0 {
		return false, err
	}
	if final.IsZero() {
		return false, nil
	}

	tpl.Add("1", final.String())
	if err := f.site.SaveText(ctx, page, code.String(), f.Summary, wiki.SaveOptions{NoCreate: true}); err != nil {
		return false, fmt.Errorf("failed to save %s: %w", page, err)
	}
	f.logger.Info("fixed double redirect", "page", page.String(), "from", first.String(), "to", final.String())
	data := events.RedirectFixedData{Page: page.String(), OldTarget: first.String(), NewTarget: final.String()}
	if ev, err := events.NewRedirectFixedEvent(f.recorder.RunID(), fmt.Sprintf("retargeted %s to %s", page, final), data); err == nil {
		f.recorder.Record(ctx, ev)
	}
	return true, nil
}

// follow walks the chain starting at target. It returns the last
// category and how many redirects were passed on the way, or a zero
// title when the chain loops.
func (f *Fixer) follow(ctx context.Context, page, target wiki.Title) (wiki.Title, int, error) {
	seen := map[wiki.Title]bool{page: true, target: true}
	hops := 0
	for {
		next, ok, err := f.targetOf(ctx, target)
		if err != nil {
			return wiki.Title{}, hops, err
		}
		if !ok {
			return target, hops, nil
		}
		if seen[next] {
			f.logger.Error("skipping possible circular redirect", "page", page.String(), "at", next.String())
			return wiki.Title{}, hops, nil
		}
		seen[next] = true
		target = next
		hops++
	}
}

// targetOf reads the category redirect target of page, if it is one.
func (f *Fixer) targetOf(ctx context.Context, page wiki.Title) (wiki.Title, bool, error) {
	text, err := f.site.GetText(ctx, page)
	if errors.Is(err, wiki.ErrMissing) {
		return wiki.Title{}, false, nil
	}
	if err != nil {
		return wiki.Title{}, false, fmt.Errorf("failed to read %s: %w", page, err)
	}
	_, target, ok := f.redirectTemplate(wikitext.Parse(text))
	return target, ok, nil
}

// redirectTemplate finds the first category redirect template with a
// valid target.
func (f *Fixer) redirectTemplate(code *wikitext.Wikicode) (*wikitext.Template, wiki.Title, bool) {
	for _, tpl := range code.Templates() {
		if !f.templates.Matches(tpl) || !tpl.Has("1", true) {
			continue
		}
		target, _, err := wiki.ParseTitle(strings.TrimSpace(tpl.Get("1").Value.String()), wiki.NSCategory)
		if err != nil || target.Namespace != wiki.NSCategory {
			continue
		}
		return tpl, target, true
	}
	return nil, wiki.Title{}, false
}
