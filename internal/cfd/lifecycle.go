package cfd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cfdbot/cfdw/internal/bot"
	"github.com/cfdbot/cfdw/internal/types"
	"github.com/cfdbot/cfdw/internal/wiki"
)

// Result is what executing one instruction did.
type Result struct {
	Instruction Instruction
	Outcome     types.Outcome
	// Target is the rename or redirect target, if any.
	Target wiki.Title
	// Cascade lists talk pages and redirects deleted with the category.
	Cascade []wiki.Title
	Pages   bot.Stats
	// Err is set when a step failed without aborting the run.
	Err error
}

// execute carries out an approved instruction. Only an abort or a
// canceled context is returned as an error; other failures leave the
// category pending for a later run.
func (e *Engine) execute(ctx context.Context, ins Instruction) (Result, error) {
	res := Result{Instruction: ins, Outcome: types.OutcomePending}
	var err error
	switch ins.Mode {
	case types.ModeEmpty:
		err = e.executeEmpty(ctx, ins, &res)
	case types.ModeMerge:
		err = e.executeMerge(ctx, ins, &res)
	case types.ModeMove:
		err = e.executeMove(ctx, ins, &res)
	case types.ModeRetain:
		err = e.executeRetain(ctx, ins, &res)
	default:
		err = fmt.Errorf("unknown mode %q", ins.Mode)
	}
	if err == nil {
		return res, nil
	}
	if errors.Is(err, bot.ErrAborted) || ctx.Err() != nil {
		res.Outcome = types.OutcomeAborted
		return res, err
	}
	res.Outcome = types.OutcomePending
	res.Err = err
	e.logger.Error("instruction failed", "instruction", ins.String(), "error", err)
	return res, nil
}

func (e *Engine) executeEmpty(ctx context.Context, ins Instruction, res *Result) error {
	link := ins.Discussion.Link()
	summary := fmt.Sprintf("Removing %s per %s", ins.OldCategory.Link(true), link)
	stats, err := e.recategorize(ctx, ins, summary)
	res.Pages = stats
	if err != nil {
		return err
	}
	empty, err := e.settledEmpty(ctx, ins.OldCategory)
	if err != nil || !empty {
		return err
	}
	cascade, err := e.deletePage(ctx, ins.OldCategory, link)
	res.Cascade = cascade
	if err != nil {
		return err
	}
	res.Outcome = types.OutcomeDeleted
	return nil
}

func (e *Engine) executeMerge(ctx context.Context, ins Instruction, res *Result) error {
	link := ins.Discussion.Link()
	redirect := false
	var targets string
	switch n := len(ins.NewCategories); n {
	case 1:
		targets = ins.NewCategories[0].Link(true)
		redirect = ins.Redirect
	case 2:
		targets = ins.NewCategories[0].Link(true) + " and " + ins.NewCategories[1].Link(true)
	default:
		targets = fmt.Sprintf("%d categories", n)
	}
	summary := fmt.Sprintf("Merging %s to %s per %s", ins.OldCategory.Link(true), targets, link)
	stats, err := e.recategorize(ctx, ins, summary)
	res.Pages = stats
	if err != nil {
		return err
	}
	empty, err := e.settledEmpty(ctx, ins.OldCategory)
	if err != nil || !empty {
		return err
	}
	isRedirect, err := wiki.IsRedirect(ctx, e.site, ins.OldCategory)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", ins.OldCategory, err)
	}
	if isRedirect {
		e.logger.Info("category is already a redirect", "category", ins.OldCategory.String())
		return nil
	}

	if redirect {
		target := ins.NewCategories[0]
		if err := e.runner.CheckShutoff(ctx); err != nil {
			return err
		}
		text := e.templates.CategoryRedirectText(target)
		reason := fmt.Sprintf("Merged to %s per %s", targets, link)
		if err := e.site.SaveText(ctx, ins.OldCategory, text, reason, wiki.SaveOptions{}); err != nil {
			return fmt.Errorf("failed to redirect %s: %w", ins.OldCategory, err)
		}
		res.Outcome = types.OutcomeRedirected
		res.Target = target
		return nil
	}

	cascade, err := e.deletePage(ctx, ins.OldCategory, link)
	res.Cascade = cascade
	if err != nil {
		return err
	}
	res.Outcome = types.OutcomeDeleted
	return nil
}

func (e *Engine) executeMove(ctx context.Context, ins Instruction, res *Result) error {
	link := ins.Discussion.Link()
	target := ins.NewCategories[0]
	res.Target = target

	if err := e.runner.CheckShutoff(ctx); err != nil {
		return err
	}
	renamed, existing := false, false
	err := e.site.Rename(ctx, ins.OldCategory, target, link, !ins.NoRedirect)
	switch {
	case err == nil:
		renamed = true
	case errors.Is(err, wiki.ErrExists):
		// The target page is already there: move the members into it and
		// retire the source the way a merge does.
		e.logger.Info("move target exists, completing as a merge", "from", ins.OldCategory.String(), "to", target.String())
		existing = true
	default:
		e.logger.Warn("failed to rename category", "from", ins.OldCategory.String(), "to", target.String(), "error", err)
	}
	if renamed || existing {
		if err := e.removeCfDTemplate(ctx, target, "Category moved"); err != nil {
			if errors.Is(err, bot.ErrAborted) {
				return err
			}
			e.logger.Warn("failed to remove CfD template", "page", target.String(), "error", err)
		}
	}

	summary := fmt.Sprintf("Moving %s to %s per %s", ins.OldCategory.Link(true), target.Link(true), link)
	stats, err := e.recategorize(ctx, ins, summary)
	res.Pages = stats
	if err != nil {
		return err
	}
	if renamed {
		res.Outcome = types.OutcomeRenamed
		return nil
	}
	if existing {
		return e.retireMoved(ctx, ins, target, res)
	}
	return nil
}

// retireMoved finishes a move whose target already existed. Once the
// source is empty it becomes a category redirect to target, or is deleted
// with NoRedirect. A source that already redirects counts as renamed.
func (e *Engine) retireMoved(ctx context.Context, ins Instruction, target wiki.Title, res *Result) error {
	empty, err := e.settledEmpty(ctx, ins.OldCategory)
	if err != nil || !empty {
		return err
	}
	isRedirect, err := wiki.IsRedirect(ctx, e.site, ins.OldCategory)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", ins.OldCategory, err)
	}
	if isRedirect {
		res.Outcome = types.OutcomeRenamed
		return nil
	}

	link := ins.Discussion.Link()
	if ins.NoRedirect {
		cascade, err := e.deletePage(ctx, ins.OldCategory, link)
		res.Cascade = cascade
		if err != nil {
			return err
		}
		res.Outcome = types.OutcomeDeleted
		return nil
	}
	if err := e.runner.CheckShutoff(ctx); err != nil {
		return err
	}
	reason := fmt.Sprintf("Moved to %s per %s", target.Link(true), link)
	if err := e.site.SaveText(ctx, ins.OldCategory, e.templates.CategoryRedirectText(target), reason, wiki.SaveOptions{}); err != nil {
		return fmt.Errorf("failed to redirect %s: %w", ins.OldCategory, err)
	}
	res.Outcome = types.OutcomeRedirected
	return nil
}

func (e *Engine) executeRetain(ctx context.Context, ins Instruction, res *Result) error {
	summary := fmt.Sprintf("%s closed as %s", ins.Discussion.Link(), ins.Result)
	if err := e.removeCfDTemplate(ctx, ins.OldCategory, summary); err != nil {
		return err
	}

	talk := ins.OldCategory.Talk()
	text, err := e.site.GetText(ctx, talk)
	if err != nil && !isMissing(err) {
		return fmt.Errorf("failed to read %s: %w", talk, err)
	}
	newText, added := e.templates.AddOldCfD(text, ins.Discussion, ins.Action, ins.Result)
	if added {
		if err := e.runner.CheckShutoff(ctx); err != nil {
			return err
		}
		if err := e.site.SaveText(ctx, talk, newText, summary, wiki.SaveOptions{}); err != nil {
			return fmt.Errorf("failed to save %s: %w", talk, err)
		}
	} else {
		e.logger.Debug("Old CfD note already present", "page", talk.String(), "date", ins.Discussion.Date())
	}
	res.Outcome = types.OutcomeRetained
	return nil
}

// settledEmpty waits once for the membership index to catch up, then
// reports whether the category exists and has no members.
func (e *Engine) settledEmpty(ctx context.Context, category wiki.Title) (bool, error) {
	if err := e.Sleep(ctx, e.cfg.Engine.SettleDelay); err != nil {
		return false, err
	}
	exists, err := e.site.Exists(ctx, category)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", category, err)
	}
	if !exists {
		e.logger.Info("category does not exist", "category", category.String())
		return false, nil
	}
	empty, err := e.site.IsEmptyCategory(ctx, category)
	if err != nil {
		return false, fmt.Errorf("failed to count members of %s: %w", category, err)
	}
	if !empty {
		e.logger.Info("category still has members after settle delay", "category", category.String())
	}
	return empty, nil
}

// removeCfDTemplate strips the nomination templates from page.
func (e *Engine) removeCfDTemplate(ctx context.Context, page wiki.Title, summary string) error {
	text, err := e.site.GetText(ctx, page)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", page, err)
	}
	newText := e.templates.StripCfDTemplates(text)
	if newText == text {
		return nil
	}
	if err := e.runner.CheckShutoff(ctx); err != nil {
		return err
	}
	if err := e.site.SaveText(ctx, page, newText, summary, wiki.SaveOptions{NoCreate: true}); err != nil {
		return fmt.Errorf("failed to save %s: %w", page, err)
	}
	return nil
}

// deletePage deletes page with its talk page. Once it is gone every
// redirect to it is deleted too. Failing redirect deletions are logged.
func (e *Engine) deletePage(ctx context.Context, page wiki.Title, reason string) ([]wiki.Title, error) {
	if err := e.runner.CheckShutoff(ctx); err != nil {
		return nil, err
	}
	var cascade []wiki.Title
	talkExists, err := e.site.Exists(ctx, page.Talk())
	if err != nil {
		return nil, fmt.Errorf("failed to check %s: %w", page.Talk(), err)
	}
	if err := e.site.Delete(ctx, page, reason, talkExists); err != nil {
		return nil, fmt.Errorf("failed to delete %s: %w", page, err)
	}
	if talkExists {
		cascade = append(cascade, page.Talk())
	}
	if exists, err := e.site.Exists(ctx, page); err != nil || exists {
		return cascade, err
	}

	redirects, err := e.site.Redirects(ctx, page)
	if err != nil {
		return cascade, fmt.Errorf("failed to list redirects to %s: %w", page, err)
	}
	g8 := fmt.Sprintf("[[WP:G8|G8]]: Redirect to deleted page %s", page.Link(true))
	for _, r := range redirects {
		if err := e.runner.CheckShutoff(ctx); err != nil {
			return cascade, err
		}
		rTalk, err := e.site.Exists(ctx, r.Talk())
		if err != nil {
			e.logger.Warn("failed to check talk page", "page", r.Talk().String(), "error", err)
			continue
		}
		if err := e.site.Delete(ctx, r, g8, rTalk); err != nil {
			e.logger.Warn("failed to delete redirect", "page", r.String(), "error", err)
			continue
		}
		cascade = append(cascade, r)
		if rTalk {
			cascade = append(cascade, r.Talk())
		}
	}
	return cascade, nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
