package cfd

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cfdbot/cfdw/internal/types"
	"github.com/cfdbot/cfdw/internal/wiki"
	"github.com/cfdbot/cfdw/internal/wiki/memwiki"
)

func cats(names ...string) []wiki.Title {
	var out []wiki.Title
	for _, name := range names {
		out = append(out, wiki.Category(name))
	}
	return out
}

func instruction(mode types.Mode, old string, news ...string) Instruction {
	return Instruction{
		Mode:          mode,
		OldCategory:   wiki.Category(old),
		NewCategories: cats(news...),
		Discussion:    DiscussionRef{Page: logPage("2024 January 1"), Section: "Category:" + old},
	}
}

func newValidationSite() *memwiki.Site {
	site := memwiki.New()
	site.SetPage(wiki.Category("Old"), "Old category")
	site.SetPage(wiki.Category("Target"), "Target category")
	site.SetPage(wiki.Category("Redirected"), "{{Category redirect|Target}}")
	site.SetPage(wiki.Category("Moved away"), "{{Category redirect|Elsewhere}}")
	return site
}

func TestValidate_Preconditions(t *testing.T) {
	retain := instruction(types.ModeRetain, "Old")
	retain.Result, retain.Action = "no consensus", "delete"

	tests := []struct {
		name string
		ins  Instruction
		code string
	}{
		{name: "empty", ins: instruction(types.ModeEmpty, "Old")},
		{name: "empty with targets", ins: instruction(types.ModeEmpty, "Old", "Target"), code: CodeEmptyHasTargets},
		{name: "self target", ins: instruction(types.ModeMerge, "Old", "Old"), code: CodeSelfTarget},
		{name: "merge", ins: instruction(types.ModeMerge, "Old", "Target")},
		{name: "merge without targets", ins: instruction(types.ModeMerge, "Old"), code: CodeMergeNoTargets},
		{name: "merge to missing", ins: instruction(types.ModeMerge, "Old", "Target", "Missing"), code: CodeTargetMissing},
		{name: "merge to redirect", ins: instruction(types.ModeMerge, "Old", "Redirected"), code: CodeTargetRedirect},
		{name: "move", ins: instruction(types.ModeMove, "Old", "Fresh")},
		{name: "move onto existing target", ins: instruction(types.ModeMove, "Old", "Target")},
		{name: "move to two targets", ins: instruction(types.ModeMove, "Old", "A", "B"), code: CodeMoveTargetCount},
		{name: "move already done elsewhere", ins: instruction(types.ModeMove, "Moved away", "Fresh"), code: CodeMoveNoSource},
		{name: "move to redirect", ins: instruction(types.ModeMove, "Old", "Redirected"), code: CodeTargetRedirect},
		{name: "retain", ins: retain},
		{name: "retain missing category", ins: instruction(types.ModeRetain, "Missing"), code: CodeSourceMissing},
		{name: "retain with targets", ins: instruction(types.ModeRetain, "Old", "Target"), code: CodeRetainTargets},
		{name: "retain without result", ins: instruction(types.ModeRetain, "Old"), code: CodeRetainResult},
		{name: "unknown mode", ins: instruction(types.Mode("listify"), "Old"), code: CodeUnknownMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Validate(context.Background(), newValidationSite(), []Instruction{tt.ins}, testLogger())
			require.NoError(t, err)
			if tt.code == "" {
				assert.Equal(t, []Instruction{tt.ins}, res.Approved)
				assert.Empty(t, res.Rejected)
				return
			}
			assert.Empty(t, res.Approved)
			require.Len(t, res.Rejected, 1)
			assert.Equal(t, tt.code, res.Rejected[0].Code)
			assert.NotEmpty(t, res.Rejected[0].Message)
		})
	}
}

func TestValidate_DuplicatesAreNotConflicts(t *testing.T) {
	first := instruction(types.ModeEmpty, "Old")
	first.Line = "* [[:Category:Old]]"
	second := first
	second.Line = "* {{lc|Old}}"

	res, err := Validate(context.Background(), newValidationSite(), []Instruction{first, second}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, []Instruction{first}, res.Approved)
	assert.Empty(t, res.Rejected)
}

func TestValidate_SharedTarget(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	site := newValidationSite()
	site.SetPage(wiki.Category("Other"), "Other category")
	site.SetPage(wiki.Category("Lone"), "Lone category")
	instructions := []Instruction{
		instruction(types.ModeMerge, "Old", "Target"),
		instruction(types.ModeMerge, "Other", "Target"),
		instruction(types.ModeEmpty, "Lone"),
	}

	res, err := Validate(context.Background(), site, instructions, logger)
	require.NoError(t, err)
	assert.Equal(t, instructions[2:], res.Approved)
	require.Len(t, res.Rejected, 2)
	for _, rej := range res.Rejected {
		assert.Equal(t, CodeConflict, rej.Code)
		assert.Contains(t, rej.Message, "Category:Target")
	}
	assert.Equal(t, 2, strings.Count(buf.String(), "skipping conflicting instruction"))
}

func TestValidate_ChainedInstructionsConflict(t *testing.T) {
	site := newValidationSite()
	site.SetPage(wiki.Category("Middle"), "Middle category")
	instructions := []Instruction{
		instruction(types.ModeMerge, "Old", "Middle"),
		instruction(types.ModeMerge, "Middle", "Target"),
	}

	res, err := Validate(context.Background(), site, instructions, testLogger())
	require.NoError(t, err)
	assert.Empty(t, res.Approved)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, CodeConflict, res.Rejected[0].Code)
	assert.Equal(t, CodeConflict, res.Rejected[1].Code)
}
