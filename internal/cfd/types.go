// Package cfd executes Categories for discussion working pages: it reads
// the closed discussions listed there, rejects conflicting or impossible
// instructions, recategorizes member pages and then deletes, redirects,
// renames or archives each category.
package cfd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cfdbot/cfdw/internal/types"
	"github.com/cfdbot/cfdw/internal/wiki"
)

// DiscussionRef identifies a discussion page and, once resolved, the
// level-4 section holding the discussion of one category.
type DiscussionRef struct {
	Page    wiki.Title
	Section string
}

// String returns the full title including the section fragment.
func (d DiscussionRef) String() string {
	if d.Section == "" {
		return d.Page.String()
	}
	return d.Page.String() + "#" + d.Section
}

// Link renders the reference as a wikilink for edit summaries.
func (d DiscussionRef) Link() string {
	return "[[" + d.String() + "]]"
}

// Date returns the last title component of the log page, which is the
// day the discussion was opened ("2024 January 1").
func (d DiscussionRef) Date() string {
	return d.Page.BaseName()
}

// Section is one mode-tagged section of a working page.
type Section struct {
	Mode types.Mode
	Text string
}

// Instruction is one approved or proposed action on a category.
type Instruction struct {
	Mode          types.Mode
	OldCategory   wiki.Title
	NewCategories []wiki.Title
	Discussion    DiscussionRef

	// Redirect turns the emptied category into a category redirect (merge only).
	Redirect bool
	// NoRedirect suppresses the redirect left behind by a rename (move only).
	NoRedirect bool
	// Action and Result describe the closed discussion (retain only).
	Action string
	Result string

	// Line is the working page line the instruction came from.
	Line string
}

// Equal compares instructions by value, ignoring the source line.
func (i Instruction) Equal(o Instruction) bool {
	if i.Mode != o.Mode || i.OldCategory != o.OldCategory || i.Discussion != o.Discussion ||
		i.Redirect != o.Redirect || i.NoRedirect != o.NoRedirect ||
		i.Action != o.Action || i.Result != o.Result ||
		len(i.NewCategories) != len(o.NewCategories) {
		return false
	}
	for n := range i.NewCategories {
		if i.NewCategories[n] != o.NewCategories[n] {
			return false
		}
	}
	return true
}

// Categories returns the old category followed by each distinct target.
func (i Instruction) Categories() []wiki.Title {
	seen := map[wiki.Title]bool{i.OldCategory: true}
	out := []wiki.Title{i.OldCategory}
	for _, cat := range i.NewCategories {
		if !seen[cat] {
			seen[cat] = true
			out = append(out, cat)
		}
	}
	return out
}

// HasTarget reports whether cat is one of the new categories.
func (i Instruction) HasTarget(cat wiki.Title) bool {
	for _, c := range i.NewCategories {
		if c == cat {
			return true
		}
	}
	return false
}

func (i Instruction) String() string {
	if len(i.NewCategories) == 0 {
		return fmt.Sprintf("%s %s per %s", i.Mode, i.OldCategory, i.Discussion)
	}
	return fmt.Sprintf("%s %s to %s per %s", i.Mode, i.OldCategory, joinTitles(i.NewCategories), i.Discussion)
}

func joinTitles(titles []wiki.Title) string {
	names := make([]string, len(titles))
	for n, t := range titles {
		names[n] = t.String()
	}
	return strings.Join(names, ", ")
}

// sortedTitles returns a copy of titles in ascending order.
func sortedTitles(titles []wiki.Title) []wiki.Title {
	out := append([]wiki.Title(nil), titles...)
	sort.Slice(out, func(a, b int) bool {
		return out[a].String() < out[b].String()
	})
	return out
}
