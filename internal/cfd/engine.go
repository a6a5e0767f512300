package cfd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cfdbot/cfdw/internal/bot"
	"github.com/cfdbot/cfdw/internal/config"
	"github.com/cfdbot/cfdw/internal/events"
	"github.com/cfdbot/cfdw/internal/types"
	"github.com/cfdbot/cfdw/internal/wiki"
)

var (
	// ErrNotWorkingPage is returned for pages outside the working page prefix.
	ErrNotWorkingPage = errors.New("not a working page")
	// ErrNotProtected is returned when the working page lacks the required edit protection.
	ErrNotProtected = errors.New("working page is not protected")
)

// Config configures an Engine.
type Config struct {
	Engine    config.EngineConfig
	Templates config.TemplateConfig
	// Shutoff is the kill switch page; the zero Title disables it.
	Shutoff wiki.Title
}

// DefaultConfig returns the engine part of config.Default.
func DefaultConfig() Config {
	cfg := config.Default()
	return Config{Engine: cfg.Engine, Templates: cfg.Templates}
}

// Engine plans and executes working pages.
type Engine struct {
	site      wiki.Site
	cfg       Config
	templates *Templates
	parser    *Parser
	resolver  *Resolver
	runner    *bot.Runner
	recorder  *events.Recorder
	logger    *slog.Logger

	// Sleep waits out the settle delay. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates an engine and loads the template sets from site. recorder
// may be nil.
func New(ctx context.Context, site wiki.Site, cfg Config, recorder *events.Recorder, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	templates, err := LoadTemplates(ctx, site, cfg.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	return &Engine{
		site:      site,
		cfg:       cfg,
		templates: templates,
		parser:    NewParser(templates, cfg.Engine.DiscussionPrefix, cfg.Engine.DiscussionShortcuts, cfg.Engine.DisableMarker, logger),
		resolver:  NewResolver(site, templates, logger),
		runner:    bot.NewRunner(site, cfg.Shutoff, cfg.Engine.Concurrency, logger),
		recorder:  recorder,
		logger:    logger,
		Sleep:     sleepContext,
	}, nil
}

// Plan is a parsed and validated working page.
type Plan struct {
	Page         wiki.Title
	Sections     []Section
	Instructions []Instruction
	Validation   ValidationResult
}

// Report is the outcome of one run.
type Report struct {
	Plan    *Plan
	Results []Result
	Pages   bot.Stats
}

// Outcomes counts results by outcome, including rejections.
func (r *Report) Outcomes() map[types.Outcome]int {
	out := make(map[types.Outcome]int)
	if r.Plan != nil && len(r.Plan.Validation.Rejected) > 0 {
		out[types.OutcomeRejected] = len(r.Plan.Validation.Rejected)
	}
	for _, res := range r.Results {
		out[res.Outcome]++
	}
	return out
}

// CheckWorkingPage returns ErrNotWorkingPage unless page carries the
// working page prefix.
func (e *Engine) CheckWorkingPage(page wiki.Title) error {
	prefix, _, err := wiki.ParseTitle(e.cfg.Engine.WorkingPagePrefix, wiki.NSMain)
	if err != nil {
		return fmt.Errorf("invalid working page prefix: %w", err)
	}
	if page.Namespace != prefix.Namespace || !strings.HasPrefix(page.Name, prefix.Name) {
		return fmt.Errorf("%s: %w", page, ErrNotWorkingPage)
	}
	return nil
}

// Plan reads the working page and returns its validated instructions
// without making any edit.
func (e *Engine) Plan(ctx context.Context, page wiki.Title) (*Plan, error) {
	if err := e.CheckWorkingPage(page); err != nil {
		return nil, err
	}
	text, err := e.site.GetText(ctx, page)
	if err != nil {
		return nil, fmt.Errorf("failed to read working page: %w", err)
	}

	plan := &Plan{Page: page, Sections: e.parser.ParseWorkingPage(text)}
	var candidates []candidate
	for _, sec := range plan.Sections {
		candidates = append(candidates, e.parser.parseSection(sec)...)
	}
	plan.Instructions, err = e.build(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("failed to build instructions: %w", err)
	}
	for _, ins := range plan.Instructions {
		e.logger.Debug("parsed instruction", "instruction", ins.String())
		if ev, err := events.NewInstructionEvent(e.recorder.RunID(), ins.String(), instructionData(ins)); err == nil {
			e.recorder.Record(ctx, ev)
		}
	}

	plan.Validation, err = Validate(ctx, e.site, plan.Instructions, e.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to validate instructions: %w", err)
	}
	for _, rej := range plan.Validation.Rejected {
		data := events.RejectionData{InstructionData: instructionData(rej.Instruction), Code: rej.Code}
		if ev, err := events.NewRejectionEvent(e.recorder.RunID(), rej.Message, data); err == nil {
			if rej.Code != CodeConflict {
				ev.Severity = events.SeverityError
			}
			e.recorder.Record(ctx, ev)
		}
	}
	return plan, nil
}

// Run plans the working page and executes each approved instruction once,
// in order. The page must carry the configured edit protection. A tripped
// kill switch stops the run and is returned wrapping bot.ErrAborted.
func (e *Engine) Run(ctx context.Context, page wiki.Title) (*Report, error) {
	if err := e.CheckWorkingPage(page); err != nil {
		return nil, err
	}
	if level := e.cfg.Engine.RequiredProtection; level != "" {
		got, err := e.site.EditProtection(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("failed to read protection of %s: %w", page, err)
		}
		if got != level {
			return nil, fmt.Errorf("%s has edit protection %q, want %q: %w", page, got, level, ErrNotProtected)
		}
	}

	plan, err := e.Plan(ctx, page)
	if err != nil {
		return nil, err
	}
	report := &Report{Plan: plan}
	e.logger.Info("executing working page", "page", page.String(),
		"approved", len(plan.Validation.Approved), "rejected", len(plan.Validation.Rejected))

	for _, ins := range plan.Validation.Approved {
		res, err := e.execute(ctx, ins)
		report.Results = append(report.Results, res)
		report.Pages.Add(res.Pages)
		e.recordResult(ctx, res)
		if err != nil {
			return report, fmt.Errorf("stopped at %s: %w", ins.OldCategory, err)
		}
	}
	return report, nil
}

func (e *Engine) recordResult(ctx context.Context, res Result) {
	eventType := events.EventTypeCategoryPending
	severity := events.SeverityInfo
	switch res.Outcome {
	case types.OutcomeDeleted:
		eventType = events.EventTypeCategoryDeleted
	case types.OutcomeRedirected:
		eventType = events.EventTypeCategoryRedirected
	case types.OutcomeRenamed:
		eventType = events.EventTypeCategoryRenamed
	case types.OutcomeRetained:
		eventType = events.EventTypeCategoryRetained
	case types.OutcomeAborted:
		severity = events.SeverityCritical
	}
	if res.Err != nil {
		severity = events.SeverityError
	}

	data := events.LifecycleData{
		Mode:    res.Instruction.Mode.String(),
		Outcome: string(res.Outcome),
		Changed: res.Pages.Changed,
		Failed:  res.Pages.Failed,
	}
	if !res.Target.IsZero() {
		data.Target = res.Target.String()
	}
	for _, p := range res.Cascade {
		data.Cascade = append(data.Cascade, p.String())
	}
	message := fmt.Sprintf("%s: %s", res.Instruction.OldCategory, res.Outcome)
	if res.Err != nil {
		message += ": " + res.Err.Error()
	}
	ev, err := events.NewLifecycleEvent(eventType, e.recorder.RunID(), res.Instruction.OldCategory.String(), severity, message, data)
	if err != nil {
		e.logger.Warn("failed to build lifecycle event", "error", err)
		return
	}
	e.recorder.Record(ctx, ev)
}

func instructionData(ins Instruction) events.InstructionData {
	data := events.InstructionData{
		Mode:        ins.Mode.String(),
		OldCategory: ins.OldCategory.String(),
		Discussion:  ins.Discussion.String(),
		Line:        ins.Line,
	}
	for _, cat := range ins.NewCategories {
		data.NewCategories = append(data.NewCategories, cat.String())
	}
	return data
}
