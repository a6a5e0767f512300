package cfd

import (
	"log/slog"
	"strings"

	"github.com/cfdbot/cfdw/internal/types"
	"github.com/cfdbot/cfdw/internal/wiki"
	"github.com/cfdbot/cfdw/internal/wikitext"
)

// Parser reads working pages. It never fails: lines it cannot make sense
// of are annotations and yield nothing.
type Parser struct {
	templates        *Templates
	discussionPrefix wiki.Title
	shortcuts        []string
	disableMarker    string
	logger           *slog.Logger
}

// NewParser creates a parser. discussionPrefix is the canonical title
// prefix of discussion pages and shortcuts are link prefixes that expand
// to it.
func NewParser(templates *Templates, discussionPrefix string, shortcuts []string, disableMarker string, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	prefix, _, err := wiki.ParseTitle(discussionPrefix, wiki.NSMain)
	if err != nil {
		logger.Warn("invalid discussion prefix, no links will resolve", "prefix", discussionPrefix, "error", err)
	}
	return &Parser{
		templates:        templates,
		discussionPrefix: prefix,
		shortcuts:        shortcuts,
		disableMarker:    disableMarker,
		logger:           logger,
	}
}

// candidate is a working page line that names a discussion and a category.
type candidate struct {
	Mode          types.Mode
	Discussion    DiscussionRef
	OldCategory   wiki.Title
	NewCategories []wiki.Title
	// Prefix and Suffix include those of the governing discussion line.
	Prefix string
	Suffix string
	Line   string
}

// lineResult is what a single line holds.
type lineResult struct {
	Discussion    *DiscussionRef
	OldCategory   wiki.Title
	NewCategories []wiki.Title
	Prefix        string
	Suffix        string
}

// ParseWorkingPage splits text into sections whose heading names a mode.
// The first mode found in the lower-cased heading wins; other sections
// are ignored.
func (p *Parser) ParseWorkingPage(text string) []Section {
	code := wikitext.Parse(wikitext.RemoveDisabledParts(text, disabledTags...))
	var sections []Section
	for _, sec := range code.Sections(wikitext.SectionOptions{Flat: true}) {
		heading, ok := sec.Get(0).(*wikitext.Heading)
		if !ok {
			continue
		}
		title := strings.ToLower(heading.Title.String())
		for _, mode := range types.Modes {
			if strings.Contains(title, string(mode)) {
				sections = append(sections, Section{Mode: mode, Text: sec.String()})
				break
			}
		}
	}
	return sections
}

// parseSection returns the candidates of one section. A discussion link
// governs the lines after it until another one appears.
func (p *Parser) parseSection(section Section) []candidate {
	var (
		out        []candidate
		discussion *DiscussionRef
		discPrefix string
		discSuffix string
	)
	for _, line := range strings.Split(section.Text, "\n") {
		line = strings.TrimRight(line, "\r")
		res := p.parseLine(line)
		if res.Discussion != nil {
			discussion = res.Discussion
			discPrefix = res.Prefix
			discSuffix = res.Suffix
		}
		if discussion == nil || res.OldCategory.IsZero() {
			continue
		}
		prefix := res.Prefix + " " + discPrefix
		suffix := res.Suffix
		if suffix == "" {
			suffix = discSuffix
		}
		if strings.Contains(prefix, p.disableMarker) {
			p.logger.Debug("bot disabled for line", "line", line)
			continue
		}
		out = append(out, candidate{
			Mode:          section.Mode,
			Discussion:    *discussion,
			OldCategory:   res.OldCategory,
			NewCategories: res.NewCategories,
			Prefix:        prefix,
			Suffix:        suffix,
			Line:          strings.TrimSpace(line),
		})
	}
	return out
}

// parseLine reads the top-level nodes of a line. Text before the first
// link is the prefix and a text node ending the line after a link is the
// suffix. The first category is the old one, later ones are targets.
func (p *Parser) parseLine(line string) lineResult {
	var res lineResult
	linkFound := false
	nodes := wikitext.Parse(line).Nodes()
	for n, node := range nodes {
		if text, ok := node.(*wikitext.Text); ok {
			if !linkFound {
				res.Prefix = strings.TrimSpace(text.Value)
			} else if n == len(nodes)-1 {
				res.Suffix = strings.TrimSpace(text.Value)
			}
			continue
		}
		if cat, ok := p.templates.categoryOf(node); ok {
			linkFound = true
			if res.OldCategory.IsZero() {
				res.OldCategory = cat
			} else {
				res.NewCategories = append(res.NewCategories, cat)
			}
			continue
		}
		if link, ok := node.(*wikitext.Wikilink); ok {
			linkFound = true
			if ref, ok := p.discussionOf(link); ok {
				res.Discussion = &ref
			}
		}
	}
	return res
}

// discussionOf returns the discussion a link points at, expanding
// shortcuts such as "WP:CFD/".
func (p *Parser) discussionOf(link *wikitext.Wikilink) (DiscussionRef, bool) {
	if p.discussionPrefix.IsZero() {
		return DiscussionRef{}, false
	}
	raw := strings.TrimPrefix(strings.TrimSpace(link.Title), ":")
	for _, shortcut := range p.shortcuts {
		if len(raw) >= len(shortcut) && strings.EqualFold(raw[:len(shortcut)], shortcut) {
			raw = p.discussionPrefix.String() + raw[len(shortcut):]
			break
		}
	}
	title, fragment, err := wiki.ParseTitle(raw, wiki.NSMain)
	if err != nil || title.Namespace != p.discussionPrefix.Namespace ||
		!strings.HasPrefix(title.Name, p.discussionPrefix.Name) {
		return DiscussionRef{}, false
	}
	return DiscussionRef{Page: title, Section: fragment}, true
}
