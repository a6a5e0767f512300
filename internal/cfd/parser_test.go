package cfd

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfdbot/cfdw/internal/config"
	"github.com/cfdbot/cfdw/internal/types"
	"github.com/cfdbot/cfdw/internal/wiki"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestParser() *Parser {
	cfg := config.Default()
	return NewParser(NewTemplates(cfg.Templates), cfg.Engine.DiscussionPrefix,
		cfg.Engine.DiscussionShortcuts, cfg.Engine.DisableMarker, testLogger())
}

func logPage(date string) wiki.Title {
	return wiki.MustParseTitle("Wikipedia:Categories for discussion/Log/"+date, wiki.NSMain)
}

func TestParseWorkingPage_Sections(t *testing.T) {
	text := `Intro text with [[:Category:Ignored]]
== Categories to move ==
* a
== Merge ==
* b
=== Empty then delete ===
* c
== Retain ==
* d
== Notes ==
* e
<!--
== Merge ==
* hidden
-->
`
	sections := newTestParser().ParseWorkingPage(text)
	require.Len(t, sections, 4)
	assert.Equal(t, types.ModeMove, sections[0].Mode)
	assert.Contains(t, sections[0].Text, "* a")
	assert.NotContains(t, sections[0].Text, "* b", "sections are flat")
	assert.Equal(t, types.ModeMerge, sections[1].Mode)
	assert.Equal(t, types.ModeEmpty, sections[2].Mode)
	assert.Equal(t, types.ModeRetain, sections[3].Mode)
}

func TestParseWorkingPage_FirstModeWins(t *testing.T) {
	sections := newTestParser().ParseWorkingPage("== Retain or move ==\n* x\n")
	require.Len(t, sections, 1)
	assert.Equal(t, types.ModeMove, sections[0].Mode)
}

func TestParseLine(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name       string
		line       string
		old        string
		news       []string
		discussion *DiscussionRef
		prefix     string
		suffix     string
	}{
		{
			name:   "links and discussion",
			line:   "* [[:Category:Old]] to [[:Category:New]] per [[Wikipedia:Categories for discussion/Log/2024 January 1#Old]] done",
			old:    "Category:Old",
			news:   []string{"Category:New"},
			prefix: "*",
			suffix: "done",
			discussion: &DiscussionRef{
				Page:    logPage("2024 January 1"),
				Section: "Old",
			},
		},
		{
			name: "reference templates",
			line: "REDIRECT {{cl|Old}} to {{C|A}} and {{lc|B}}",
			old:  "Category:Old",
			news: []string{"Category:A", "Category:B"},
			// Text between links is neither prefix nor suffix
			prefix: "REDIRECT",
		},
		{
			name: "shortcut link",
			line: "[[WP:CFD/Log/2024 March 3]]",
			discussion: &DiscussionRef{
				Page: logPage("2024 March 3"),
			},
		},
		{
			name: "lower-case shortcut",
			line: "[[wd:cfd/Log/2024 March 3#Category:X]]",
			discussion: &DiscussionRef{
				Page:    logPage("2024 March 3"),
				Section: "Category:X",
			},
		},
		{
			name:   "other links are not discussions",
			line:   "see [[Help:Category]] and [[User:Someone]] tail",
			prefix: "see",
			suffix: "tail",
		},
		{
			name:   "plain text",
			line:   "Just a note",
			prefix: "Just a note",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.parseLine(tt.line)
			if tt.old == "" {
				assert.True(t, res.OldCategory.IsZero())
			} else {
				assert.Equal(t, tt.old, res.OldCategory.String())
			}
			var news []string
			for _, c := range res.NewCategories {
				news = append(news, c.String())
			}
			assert.Equal(t, tt.news, news)
			assert.Equal(t, tt.discussion, res.Discussion)
			assert.Equal(t, tt.prefix, res.Prefix)
			assert.Equal(t, tt.suffix, res.Suffix)
		})
	}
}

func TestParseSection_DiscussionPersists(t *testing.T) {
	section := Section{Mode: types.ModeMerge, Text: `== Merge ==
;[[Wikipedia:Categories for discussion/Log/2024 May 5#Fruit]] merged
* [[:Category:Apples]] to [[:Category:Fruit]]
* [[:Category:Pears]] to [[:Category:Fruit]]
;[[Wikipedia:Categories for discussion/Log/2024 May 6#Veg]]
* [[:Category:Kale]] to [[:Category:Veg]]
`}
	cands := newTestParser().parseSection(section)
	require.Len(t, cands, 3)

	assert.Equal(t, "Fruit", cands[0].Discussion.Section)
	assert.Equal(t, "Fruit", cands[1].Discussion.Section)
	assert.Equal(t, "merged", cands[1].Suffix, "the discussion suffix applies to following lines")
	assert.Equal(t, "* ;", cands[1].Prefix)
	assert.Equal(t, "Veg", cands[2].Discussion.Section)
	assert.Equal(t, "", cands[2].Suffix)
}

func TestParseSection_LinesWithoutDiscussionAreSkipped(t *testing.T) {
	section := Section{Mode: types.ModeEmpty, Text: "== Empty ==\n* [[:Category:Orphan]]\nnote\n"}
	assert.Empty(t, newTestParser().parseSection(section))
}

func TestParseSection_DisableMarker(t *testing.T) {
	section := Section{Mode: types.ModeEmpty, Text: `== Empty ==
;[[WP:CFD/Log/2024 June 1#A]]
* NO BOT [[:Category:A]]
* [[:Category:B]]
;NO BOT [[WP:CFD/Log/2024 June 2#C]]
* [[:Category:C]]
* [[:Category:D]]
`}
	cands := newTestParser().parseSection(section)
	require.Len(t, cands, 1, "marked lines and lines under a marked discussion are dropped")
	assert.Equal(t, wiki.Category("B"), cands[0].OldCategory)
}

func TestDiscussionRef(t *testing.T) {
	ref := DiscussionRef{Page: logPage("2024 January 1"), Section: "Category:Old"}
	assert.Equal(t, "Wikipedia:Categories for discussion/Log/2024 January 1#Category:Old", ref.String())
	assert.Equal(t, "[[Wikipedia:Categories for discussion/Log/2024 January 1#Category:Old]]", ref.Link())
	assert.Equal(t, "2024 January 1", ref.Date())

	whole := DiscussionRef{Page: logPage("2024 January 1")}
	assert.Equal(t, "Wikipedia:Categories for discussion/Log/2024 January 1", whole.String())
}
