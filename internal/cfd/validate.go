package cfd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cfdbot/cfdw/internal/types"
	"github.com/cfdbot/cfdw/internal/wiki"
)

// Rejection codes.
const (
	CodeConflict        = "CONFLICT"
	CodeSelfTarget      = "SELF_TARGET"
	CodeEmptyHasTargets = "EMPTY_HAS_TARGETS"
	CodeMergeNoTargets  = "MERGE_NO_TARGETS"
	CodeTargetMissing   = "TARGET_MISSING"
	CodeTargetRedirect  = "TARGET_REDIRECT"
	CodeMoveTargetCount = "MOVE_TARGET_COUNT"
	CodeMoveNoSource    = "MOVE_NO_SOURCE"
	CodeSourceMissing   = "SOURCE_MISSING"
	CodeRetainTargets   = "RETAIN_HAS_TARGETS"
	CodeRetainResult    = "RETAIN_UNRESOLVED"
	CodeUnknownMode     = "UNKNOWN_MODE"
)

// Rejection is an instruction dropped before execution.
type Rejection struct {
	Instruction Instruction
	// Code is a machine-readable reason (e.g., "CONFLICT", "TARGET_MISSING").
	Code string
	// Message is a human-readable reason.
	Message string
}

func (r Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// ValidationResult splits instructions into those safe to execute and
// those dropped.
type ValidationResult struct {
	Approved []Instruction
	Rejected []Rejection
}

// Validate checks the instructions of a whole working page before
// anything is executed. Duplicates are dropped first. Any category named
// by more than one remaining instruction makes every instruction naming
// it a conflict. Survivors then get the checks of their mode. Errors are
// only returned when the site cannot be read.
func Validate(ctx context.Context, site wiki.Site, instructions []Instruction, logger *slog.Logger) (ValidationResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Pass 1: dedup and count categories across distinct instructions.
	var unique []Instruction
	for _, ins := range instructions {
		if !containsInstruction(unique, ins) {
			unique = append(unique, ins)
		}
	}
	uses := make(map[wiki.Title]int)
	for _, ins := range unique {
		for _, cat := range ins.Categories() {
			uses[cat]++
		}
	}

	// Pass 2: filter conflicts, then per-mode preconditions.
	var result ValidationResult
	for _, ins := range unique {
		if cat, ok := contested(ins, uses); ok {
			rej := Rejection{
				Instruction: ins,
				Code:        CodeConflict,
				Message:     fmt.Sprintf("%s is involved in multiple instructions", cat),
			}
			logger.Warn("skipping conflicting instruction", "category", cat.String(), "instruction", ins.String())
			result.Rejected = append(result.Rejected, rej)
			continue
		}
		rej, err := checkInstruction(ctx, site, ins)
		if err != nil {
			return ValidationResult{}, err
		}
		if rej != nil {
			logger.Error("invalid instruction", "code", rej.Code, "error", rej.Message, "instruction", ins.String())
			result.Rejected = append(result.Rejected, *rej)
			continue
		}
		result.Approved = append(result.Approved, ins)
	}
	return result, nil
}

func containsInstruction(list []Instruction, ins Instruction) bool {
	for _, other := range list {
		if other.Equal(ins) {
			return true
		}
	}
	return false
}

func contested(ins Instruction, uses map[wiki.Title]int) (wiki.Title, bool) {
	for _, cat := range ins.Categories() {
		if uses[cat] > 1 {
			return cat, true
		}
	}
	return wiki.Title{}, false
}

// checkInstruction runs the preconditions of the instruction's mode.
func checkInstruction(ctx context.Context, site wiki.Site, ins Instruction) (*Rejection, error) {
	reject := func(code, format string, args ...interface{}) (*Rejection, error) {
		return &Rejection{Instruction: ins, Code: code, Message: fmt.Sprintf(format, args...)}, nil
	}
	old := ins.OldCategory
	news := ins.NewCategories

	if ins.HasTarget(old) {
		return reject(CodeSelfTarget, "%s is also a %s target", old, ins.Mode)
	}

	switch ins.Mode {
	case types.ModeEmpty:
		if len(news) > 0 {
			return reject(CodeEmptyHasTargets, "empty mode has new categories for %s", old)
		}

	case types.ModeMerge:
		if len(news) == 0 {
			return reject(CodeMergeNoTargets, "merge mode has no new categories for %s", old)
		}
		for _, cat := range news {
			exists, err := site.Exists(ctx, cat)
			if err != nil {
				return nil, fmt.Errorf("failed to check %s: %w", cat, err)
			}
			if !exists {
				return reject(CodeTargetMissing, "%s does not exist", cat)
			}
			redirect, err := wiki.IsRedirect(ctx, site, cat)
			if err != nil {
				return nil, fmt.Errorf("failed to check %s: %w", cat, err)
			}
			if redirect {
				return reject(CodeTargetRedirect, "%s is a redirect", cat)
			}
		}

	case types.ModeMove:
		if len(news) != 1 {
			return reject(CodeMoveTargetCount, "move mode has %d new categories", len(news))
		}
		target := news[0]
		sourceRedirect, err := wiki.IsRedirect(ctx, site, old)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", old, err)
		}
		targetExists, err := site.Exists(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", target, err)
		}
		if sourceRedirect && !targetExists {
			return reject(CodeMoveNoSource, "no target for move to %s", target)
		}
		targetRedirect, err := wiki.IsRedirect(ctx, site, target)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", target, err)
		}
		if targetRedirect {
			return reject(CodeTargetRedirect, "%s is a redirect", target)
		}

	case types.ModeRetain:
		exists, err := site.Exists(ctx, old)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", old, err)
		}
		if !exists {
			return reject(CodeSourceMissing, "%s does not exist", old)
		}
		if len(news) > 0 {
			return reject(CodeRetainTargets, "retain mode has new categories for %s", old)
		}
		if ins.Action == "" || ins.Result == "" {
			return reject(CodeRetainResult, "missing action or result for %s", old)
		}

	default:
		return reject(CodeUnknownMode, "unknown mode %q", ins.Mode)
	}
	return nil, nil
}
