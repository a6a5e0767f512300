// Package memwiki is an in-memory wiki.Site. Its category membership index
// can lag behind edits the way the real one does, which makes settle and
// recheck logic testable without a network.
package memwiki

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cfdbot/cfdw/internal/wiki"
	"github.com/cfdbot/cfdw/internal/wikitext"
)

// Edit is one write recorded by the site.
type Edit struct {
	Action  string // "save", "delete", "rename"
	Page    wiki.Title
	Target  wiki.Title // rename destination
	Summary string
	Text    string
}

// Site is an in-memory wiki. The zero value is not usable; call New.
type Site struct {
	mu                sync.Mutex
	pages             map[wiki.Title]string
	protection        map[wiki.Title]string
	index             map[wiki.Title][]wiki.Title
	failures          map[wiki.Title]error
	staleIndex        bool
	categoryRedirects wiki.TemplateSet
	edits             []Edit
}

var _ wiki.Site = (*Site)(nil)

// Option configures a Site.
type Option func(*Site)

// WithStaleIndex keeps the membership index frozen until Reindex is called.
func WithStaleIndex() Option {
	return func(s *Site) { s.staleIndex = true }
}

// WithCategoryRedirectTemplates sets the templates that mark a category
// redirect. The default is wiki.DefaultCategoryRedirectTemplates.
func WithCategoryRedirectTemplates(names ...string) Option {
	return func(s *Site) { s.categoryRedirects = wiki.NewTemplateSet(names...) }
}

// New creates an empty site.
func New(opts ...Option) *Site {
	s := &Site{
		pages:             make(map[wiki.Title]string),
		protection:        make(map[wiki.Title]string),
		index:             make(map[wiki.Title][]wiki.Title),
		failures:          make(map[wiki.Title]error),
		categoryRedirects: wiki.NewTemplateSet(wiki.DefaultCategoryRedirectTemplates...),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPage creates or replaces a page without recording an edit.
func (s *Site) SetPage(page wiki.Title, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page] = text
	s.touch()
}

// Page returns the stored text of page.
func (s *Site) Page(page wiki.Title) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.pages[page]
	return text, ok
}

// SetProtection sets the edit protection level of page.
func (s *Site) SetProtection(page wiki.Title, level string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protection[page] = level
}

// FailWrites makes every write to page return err.
func (s *Site) FailWrites(page wiki.Title, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[page] = err
}

// Edits returns the writes made so far.
func (s *Site) Edits() []Edit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Edit(nil), s.edits...)
}

// Reindex rebuilds the category membership index from page text.
func (s *Site) Reindex() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reindex()
}

func (s *Site) touch() {
	if !s.staleIndex {
		s.reindex()
	}
}

func (s *Site) reindex() {
	index := make(map[wiki.Title][]wiki.Title)
	for page, text := range s.pages {
		for _, cat := range categoriesOf(text) {
			index[cat] = append(index[cat], page)
		}
	}
	s.index = index
}

// categoriesOf returns the categories a page text assigns, ignoring
// textlinks and disabled markup.
func categoriesOf(text string) []wiki.Title {
	code := wikitext.Parse(wikitext.RemoveDisabledParts(text, "comment", "nowiki", "pre"))
	seen := make(map[wiki.Title]bool)
	var out []wiki.Title
	for _, link := range code.Wikilinks() {
		if link.IsTextlink() {
			continue
		}
		t, _, err := wiki.ParseTitle(link.Title, wiki.NSMain)
		if err != nil || t.Namespace != wiki.NSCategory || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func sortTitles(titles []wiki.Title) {
	sort.Slice(titles, func(i, j int) bool {
		if titles[i].Namespace != titles[j].Namespace {
			return titles[i].Namespace < titles[j].Namespace
		}
		return titles[i].Name < titles[j].Name
	})
}

// GetText implements wiki.Site.
func (s *Site) GetText(ctx context.Context, page wiki.Title) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.pages[page]
	if !ok {
		return "", fmt.Errorf("%s: %w", page, wiki.ErrMissing)
	}
	return text, nil
}

// SaveText implements wiki.Site.
func (s *Site) SaveText(ctx context.Context, page wiki.Title, text, summary string, opts wiki.SaveOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[page]; err != nil {
		return err
	}
	if _, ok := s.pages[page]; !ok && opts.NoCreate {
		return fmt.Errorf("%s: %w", page, wiki.ErrMissing)
	}
	s.pages[page] = text
	s.edits = append(s.edits, Edit{Action: "save", Page: page, Summary: summary, Text: text})
	s.touch()
	return nil
}

// Delete implements wiki.Site.
func (s *Site) Delete(ctx context.Context, page wiki.Title, reason string, deleteTalk bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[page]; err != nil {
		return err
	}
	if _, ok := s.pages[page]; !ok {
		return fmt.Errorf("%s: %w", page, wiki.ErrMissing)
	}
	delete(s.pages, page)
	s.edits = append(s.edits, Edit{Action: "delete", Page: page, Summary: reason})
	if deleteTalk {
		if _, ok := s.pages[page.Talk()]; ok {
			delete(s.pages, page.Talk())
			s.edits = append(s.edits, Edit{Action: "delete", Page: page.Talk(), Summary: reason})
		}
	}
	s.touch()
	return nil
}

// Rename implements wiki.Site. The talk page moves along.
func (s *Site) Rename(ctx context.Context, from, to wiki.Title, reason string, keepRedirect bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[from]; err != nil {
		return err
	}
	text, ok := s.pages[from]
	if !ok {
		return fmt.Errorf("%s: %w", from, wiki.ErrMissing)
	}
	if _, ok := s.pages[to]; ok {
		return fmt.Errorf("%s: %w", to, wiki.ErrExists)
	}
	s.move(from, to, keepRedirect)
	s.edits = append(s.edits, Edit{Action: "rename", Page: from, Target: to, Summary: reason, Text: text})
	if talk, ok := s.pages[from.Talk()]; ok {
		if _, exists := s.pages[to.Talk()]; !exists {
			s.move(from.Talk(), to.Talk(), keepRedirect)
			s.edits = append(s.edits, Edit{Action: "rename", Page: from.Talk(), Target: to.Talk(), Summary: reason, Text: talk})
		}
	}
	s.touch()
	return nil
}

func (s *Site) move(from, to wiki.Title, keepRedirect bool) {
	s.pages[to] = s.pages[from]
	if keepRedirect {
		s.pages[from] = "#REDIRECT " + to.Link(true)
	} else {
		delete(s.pages, from)
	}
}

// ListMembers implements wiki.Site from the (possibly stale) index.
func (s *Site) ListMembers(ctx context.Context, category wiki.Title) ([]wiki.Title, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := append([]wiki.Title(nil), s.index[category]...)
	sortTitles(members)
	return members, nil
}

// IsEmptyCategory implements wiki.Site from the (possibly stale) index.
func (s *Site) IsEmptyCategory(ctx context.Context, category wiki.Title) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.index[category]) == 0, nil
}

// RedirectTarget implements wiki.Site.
func (s *Site) RedirectTarget(ctx context.Context, page wiki.Title) (wiki.Title, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.pages[page]
	if !ok {
		return wiki.Title{}, false, nil
	}
	target, ok := wiki.ParseRedirect(text, s.categoryRedirects)
	return target, ok, nil
}

// Exists implements wiki.Site.
func (s *Site) Exists(ctx context.Context, page wiki.Title) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pages[page]
	return ok, nil
}

// Backlinks implements wiki.Site. Textlinks count as links.
func (s *Site) Backlinks(ctx context.Context, page wiki.Title, namespaces []int) ([]wiki.Title, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[int]bool, len(namespaces))
	for _, ns := range namespaces {
		wanted[ns] = true
	}
	var out []wiki.Title
	for title, text := range s.pages {
		if len(wanted) > 0 && !wanted[title.Namespace] {
			continue
		}
		for _, link := range wikitext.Parse(text).Wikilinks() {
			if t, _, err := wiki.ParseTitle(link.Title, wiki.NSMain); err == nil && t == page {
				out = append(out, title)
				break
			}
		}
	}
	sortTitles(out)
	return out, nil
}

// Redirects implements wiki.Site.
func (s *Site) Redirects(ctx context.Context, page wiki.Title) ([]wiki.Title, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []wiki.Title
	for title, text := range s.pages {
		if target, ok := wiki.ParseRedirect(text, nil); ok && target == page {
			out = append(out, title)
		}
	}
	sortTitles(out)
	return out, nil
}

// EditProtection implements wiki.Site.
func (s *Site) EditProtection(ctx context.Context, page wiki.Title) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protection[page], nil
}
