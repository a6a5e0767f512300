package cfd

import (
	"context"
	"fmt"
	"strings"

	"github.com/cfdbot/cfdw/internal/bot"
	"github.com/cfdbot/cfdw/internal/events"
	"github.com/cfdbot/cfdw/internal/wiki"
	"github.com/cfdbot/cfdw/internal/wikitext"
)

// categoryRef is a node that names a category: a wikilink, or in textlink
// mode also a category reference template.
type categoryRef struct {
	node  wikitext.Node
	title wiki.Title
}

// RewriteCategories replaces old with news in text. Only category links
// of the requested kind are touched: [[Category:X]] memberships, or with
// textlinks [[:Category:X]] links and {{C|X}}-style templates.
//
// A single new category not yet on the page takes over the old link in
// place, keeping its sort key. Otherwise the missing targets are inserted
// after the last old link and every old link is removed. Text without the
// old category comes back unchanged, so rewriting twice is a no-op.
func (t *Templates) RewriteCategories(text string, old wiki.Title, news []wiki.Title, textlinks bool) string {
	code := wikitext.Parse(text)
	present := make(map[wiki.Title]bool)
	var olds []categoryRef
	for _, node := range code.Filter(true) {
		ref, ok := t.categoryRef(node, textlinks)
		if !ok {
			continue
		}
		present[ref.title] = true
		if ref.title == old {
			olds = append(olds, ref)
		}
	}
	if len(olds) == 0 {
		return text
	}

	if len(news) == 1 && !present[news[0]] {
		for _, ref := range olds {
			retarget(ref.node, news[0], textlinks)
		}
		return code.String()
	}

	var missing []wiki.Title
	for _, cat := range sortedTitles(news) {
		if !present[cat] {
			missing = append(missing, cat)
		}
	}
	anchor := olds[len(olds)-1]
	if tpl, ok := anchor.node.(*wikitext.Template); ok {
		// Templates sit inside running text: reuse the anchor for the
		// first target and add the rest beside it.
		if len(missing) > 0 {
			retarget(tpl, missing[0], textlinks)
			var b strings.Builder
			for _, cat := range missing[1:] {
				b.WriteString(" {{" + strings.TrimSpace(tpl.Name) + "|" + cat.Name + "}}")
			}
			code.InsertAfter(tpl, b.String())
			olds = olds[:len(olds)-1]
		}
	} else {
		// Links on their own line get one line per target; a link inside
		// running text is replaced by the targets joined with spaces.
		sep, first := "\n", "\n"
		if isInline(code, anchor.node) {
			sep, first = " ", ""
		}
		var b strings.Builder
		for i, cat := range missing {
			if i == 0 {
				b.WriteString(first)
			} else {
				b.WriteString(sep)
			}
			b.WriteString(cat.Link(textlinks))
		}
		code.InsertAfter(anchor.node, b.String())
	}
	for _, ref := range olds {
		removeWithNewline(code, ref.node)
	}
	return code.String()
}

func (t *Templates) categoryRef(node wikitext.Node, textlinks bool) (categoryRef, bool) {
	switch n := node.(type) {
	case *wikitext.Wikilink:
		if n.IsTextlink() != textlinks {
			return categoryRef{}, false
		}
	case *wikitext.Template:
		if !textlinks {
			return categoryRef{}, false
		}
	default:
		return categoryRef{}, false
	}
	title, ok := t.categoryOf(node)
	if !ok {
		return categoryRef{}, false
	}
	return categoryRef{node: node, title: title}, true
}

func retarget(node wikitext.Node, cat wiki.Title, textlinks bool) {
	switch n := node.(type) {
	case *wikitext.Wikilink:
		n.SetTitle(cat.LinkTitle(textlinks))
	case *wikitext.Template:
		n.Add("1", cat.Name)
	}
}

// isInline reports whether node follows text on the same line.
func isInline(code *wikitext.Wikicode, node wikitext.Node) bool {
	prev, ok := code.Previous(node).(*wikitext.Text)
	return ok && prev.Value != "" && !strings.HasSuffix(prev.Value, "\n")
}

// removeWithNewline removes node and one newline directly before it.
func removeWithNewline(code *wikitext.Wikicode, node wikitext.Node) {
	if _, ok := node.(*wikitext.Wikilink); ok {
		if prev, ok := code.Previous(node).(*wikitext.Text); ok {
			prev.Value = strings.TrimSuffix(prev.Value, "\n")
		}
	}
	code.Remove(node)
}

// memberPages lists the pages to recategorize: category members and
// textlinking pages, each followed by its existing documentation subpage.
func (e *Engine) memberPages(ctx context.Context, category wiki.Title) ([]wiki.Title, error) {
	members, err := e.site.ListMembers(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of %s: %w", category, err)
	}
	linking, err := e.site.Backlinks(ctx, category, e.cfg.Engine.TextlinkNamespaces)
	if err != nil {
		return nil, fmt.Errorf("failed to list backlinks of %s: %w", category, err)
	}

	seen := make(map[wiki.Title]bool)
	var pages []wiki.Title
	add := func(page wiki.Title) {
		if !seen[page] {
			seen[page] = true
			pages = append(pages, page)
		}
	}
	for _, page := range append(members, linking...) {
		add(page)
		if !page.HasSubpages() || e.cfg.Engine.DocSubpage == "" {
			continue
		}
		doc := page.Subpage(e.cfg.Engine.DocSubpage)
		exists, err := e.site.Exists(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", doc, err)
		}
		if exists {
			add(doc)
		}
	}
	return pages, nil
}

func (e *Engine) isTextlinkNamespace(ns int) bool {
	for _, n := range e.cfg.Engine.TextlinkNamespaces {
		if n == ns {
			return true
		}
	}
	return false
}

// recategorize rewrites every member page of the instruction's old
// category. Page failures are skipped; only an abort is returned.
func (e *Engine) recategorize(ctx context.Context, ins Instruction, summary string) (bot.Stats, error) {
	pages, err := e.memberPages(ctx, ins.OldCategory)
	if err != nil {
		return bot.Stats{}, err
	}
	e.logger.Info("recategorizing pages", "category", ins.OldCategory.String(), "pages", len(pages))

	return e.runner.Run(ctx, pages, func(ctx context.Context, page wiki.Title) (bool, error) {
		changed, err := e.treatPage(ctx, page, ins, summary)
		if err != nil {
			e.recorder.Emit(ctx, events.EventTypePageFailed, ins.OldCategory.String(), events.SeverityWarning,
				fmt.Sprintf("failed to recategorize %s", page), map[string]interface{}{"page": page.String(), "error": err.Error()})
		}
		return changed, err
	})
}

func (e *Engine) treatPage(ctx context.Context, page wiki.Title, ins Instruction, summary string) (bool, error) {
	text, err := e.site.GetText(ctx, page)
	if isMissing(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", page, err)
	}

	newText := e.templates.RewriteCategories(text, ins.OldCategory, ins.NewCategories, false)
	if e.isTextlinkNamespace(page.Namespace) {
		newText = e.templates.RewriteCategories(newText, ins.OldCategory, ins.NewCategories, true)
	}
	if newText == text {
		// The membership index lags behind edits.
		e.logger.Debug("category not found on page", "category", ins.OldCategory.String(), "page", page.String())
		return false, nil
	}

	if err := e.site.SaveText(ctx, page, newText, summary, wiki.SaveOptions{NoCreate: true}); err != nil {
		return false, fmt.Errorf("failed to save %s: %w", page, err)
	}
	e.recorder.Emit(ctx, events.EventTypePageRecategorized, ins.OldCategory.String(), events.SeverityInfo,
		fmt.Sprintf("recategorized %s", page), map[string]interface{}{"page": page.String()})
	return true, nil
}
