package cfd

import (
	"context"
	"regexp"
	"strings"

	"github.com/cfdbot/cfdw/internal/types"
)

var (
	noConsensusRe = regexp.MustCompile(`(?i)\b(no consensus) (?:for|to) (\w+)\b`)
	notActionRe   = regexp.MustCompile(`(?i)\b(not )(\w+)\b`)
	pastTenseRe   = regexp.MustCompile(`ed$`)
)

// build turns candidates into instructions, resolving each discussion
// and deriving the mode-specific fields from the line text.
func (e *Engine) build(ctx context.Context, candidates []candidate) ([]Instruction, error) {
	instructions := make([]Instruction, 0, len(candidates))
	for _, c := range candidates {
		discussion, err := e.resolver.Find(ctx, c.Discussion, c.OldCategory)
		if err != nil {
			return nil, err
		}
		ins := Instruction{
			Mode:          c.Mode,
			OldCategory:   c.OldCategory,
			NewCategories: c.NewCategories,
			Discussion:    discussion,
			Line:          c.Line,
		}
		switch c.Mode {
		case types.ModeMerge:
			ins.Redirect = strings.Contains(c.Prefix, "REDIRECT")
		case types.ModeMove:
			ins.NoRedirect = !strings.Contains(c.Prefix, "REDIRECT")
		case types.ModeRetain:
			result, action, ok := retainFromSuffix(c.Suffix)
			if !ok {
				result, action, err = e.resolver.ResultAction(ctx, discussion, c.OldCategory)
				if err != nil {
					return nil, err
				}
			}
			ins.Result = result
			ins.Action = action
		}
		instructions = append(instructions, ins)
	}
	return instructions, nil
}

// retainFromSuffix reads the close from text after the links, e.g.
// "no consensus to delete", "not renamed" or "keep".
//
// "not <verb>ed" becomes the action "<verb>e", which is only right for
// verbs like "deleted" or "renamed": "not merged" yields "merge" but
// "not split" stays "split" and "not listified" gives "listifie".
func retainFromSuffix(suffix string) (result, action string, ok bool) {
	if m := noConsensusRe.FindStringSubmatch(suffix); m != nil {
		return m[1], m[2], true
	}
	if m := notActionRe.FindStringSubmatch(suffix); m != nil {
		return m[1] + m[2], pastTenseRe.ReplaceAllString(m[2], "e"), true
	}
	if strings.Contains(strings.ToLower(suffix), "keep") {
		return "keep", "delete", true
	}
	return "", "", false
}
