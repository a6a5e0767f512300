package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cfdbot/cfdw/internal/bot"
	"github.com/cfdbot/cfdw/internal/cfd"
	"github.com/cfdbot/cfdw/internal/events"
	"github.com/cfdbot/cfdw/internal/storage"
	"github.com/cfdbot/cfdw/internal/types"
	"github.com/cfdbot/cfdw/internal/wiki"
)

var runCmd = &cobra.Command{
	Use:   "run [working-page]",
	Short: "Execute the instructions on a working page",
	Long: `Read the working page, validate every instruction and execute the
approved ones in order.

The working page must be edit-protected at the configured level. A
non-blank kill switch page stops the run before the next edit.

Examples:
  cfdw run                      # Execute the configured working page
  cfdw run --dry-run            # Log the edits instead of making them
  cfdw run "Wikipedia:Categories for discussion/Working/Manual"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		page, err := workingPage(args)
		if err != nil {
			return err
		}

		lockPath, err := storage.AcquireRunLock(cfg.Database, page.String(), version)
		if err != nil {
			return err
		}
		defer func() {
			if err := storage.ReleaseRunLock(lockPath); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
		}()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		site, err := connect(ctx, dryRun)
		if err != nil {
			return err
		}
		shutoff, err := shutoffTitle(cfg.ShutoffPage())
		if err != nil {
			return err
		}

		run := &types.Run{
			ID:          uuid.New().String(),
			WorkingPage: page.String(),
			DryRun:      dryRun,
			Status:      types.RunStatusRunning,
			StartedAt:   time.Now(),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		recorder := events.NewRecorder(store, run.ID, logger)
		recordSummary(ctx, recorder, events.EventTypeRunStarted, events.SeverityInfo,
			fmt.Sprintf("run started on %s", page), events.RunSummaryData{})

		if dryRun {
			fmt.Printf("%s\n", color.YellowString("DRY RUN MODE - No edits will be made"))
		}
		fmt.Printf("Executing %s (run %s)...\n\n", page, run.ID)

		engine, err := cfd.New(ctx, site, cfd.Config{Engine: cfg.Engine, Templates: cfg.Templates, Shutoff: shutoff}, recorder, logger)
		var report *cfd.Report
		if err == nil {
			report, err = engine.Run(ctx, page)
		}
		finishRun(context.WithoutCancel(ctx), store, recorder, run, report, err)

		if report != nil {
			printReport(report)
		}
		if err != nil {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("\n%s Run %s after %s\n", red("✗"), run.Status, run.Duration().Round(time.Millisecond))
			return err
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("\n%s Run complete in %s\n", green("✓"), run.Duration().Round(time.Millisecond))
		return nil
	},
}

func init() {
	runCmd.Flags().Bool("dry-run", false, "Log edits instead of making them")
	rootCmd.AddCommand(runCmd)
}

// workingPage returns the page named in args or the configured one.
func workingPage(args []string) (wiki.Title, error) {
	name := cfg.Engine.WorkingPage
	if len(args) > 0 {
		name = args[0]
	}
	page, _, err := wiki.ParseTitle(name, wiki.NSMain)
	if err != nil {
		return wiki.Title{}, fmt.Errorf("invalid working page %q: %w", name, err)
	}
	return page, nil
}

// finishRun stores the final state of run and its summary event.
func finishRun(ctx context.Context, store storage.Storage, recorder *events.Recorder, run *types.Run, report *cfd.Report, runErr error) {
	now := time.Now()
	run.CompletedAt = &now
	data := events.RunSummaryData{DurationMs: run.Duration().Milliseconds()}
	if report != nil && report.Plan != nil {
		run.Approved = len(report.Plan.Validation.Approved)
		run.Rejected = len(report.Plan.Validation.Rejected)
		data.Approved, data.Rejected = run.Approved, run.Rejected
		data.Outcomes = make(map[string]int)
		for outcome, n := range report.Outcomes() {
			data.Outcomes[string(outcome)] = n
		}
	}

	eventType, severity := events.EventTypeRunCompleted, events.SeverityInfo
	message := fmt.Sprintf("run completed on %s", run.WorkingPage)
	switch {
	case runErr == nil:
		run.Status = types.RunStatusCompleted
	case errors.Is(runErr, bot.ErrAborted):
		run.Status = types.RunStatusAborted
		eventType, severity = events.EventTypeRunAborted, events.SeverityCritical
		message = fmt.Sprintf("run aborted on %s", run.WorkingPage)
	default:
		run.Status = types.RunStatusFailed
		eventType, severity = events.EventTypeRunFailed, events.SeverityError
		message = fmt.Sprintf("run failed on %s", run.WorkingPage)
	}
	if runErr != nil {
		run.Error = runErr.Error()
		data.Error = runErr.Error()
	}

	recordSummary(ctx, recorder, eventType, severity, message, data)
	if err := store.UpdateRun(ctx, run); err != nil {
		logger.Warn("failed to update run", "run", run.ID, "error", err)
	}
}

func recordSummary(ctx context.Context, recorder *events.Recorder, eventType events.EventType, severity events.EventSeverity, message string, data events.RunSummaryData) {
	ev, err := events.NewRunSummaryEvent(eventType, recorder.RunID(), severity, message, data)
	if err != nil {
		logger.Warn("failed to build run event", "type", string(eventType), "error", err)
		return
	}
	recorder.Record(ctx, ev)
}

// printReport shows one line per executed or rejected instruction.
func printReport(report *cfd.Report) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	for _, res := range report.Results {
		glyph := green("✓")
		switch res.Outcome {
		case types.OutcomePending:
			glyph = yellow("⚠")
		case types.OutcomeAborted:
			glyph = red("✗")
		}
		line := fmt.Sprintf("%s %s → %s", glyph, res.Instruction.OldCategory, res.Outcome)
		if !res.Target.IsZero() {
			line += fmt.Sprintf(" (%s)", res.Target)
		}
		fmt.Printf("%s %s\n", line, gray(fmt.Sprintf("[%d changed, %d failed]", res.Pages.Changed, res.Pages.Failed)))
		if res.Err != nil {
			fmt.Printf("  %s\n", gray(res.Err.Error()))
		}
	}
	if report.Plan != nil {
		printRejections(report.Plan.Validation.Rejected)
	}

	outcomes := report.Outcomes()
	names := make([]string, 0, len(outcomes))
	for outcome := range outcomes {
		names = append(names, string(outcome))
	}
	sort.Strings(names)
	fmt.Printf("\nSummary:\n")
	for _, name := range names {
		fmt.Printf("  %-10s %s\n", name+":", formatNumber(outcomes[types.Outcome(name)]))
	}
	fmt.Printf("  %-10s %s\n", "pages:", report.Pages)
}

func printRejections(rejected []cfd.Rejection) {
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	for _, rej := range rejected {
		glyph := red("✗")
		if rej.Code == cfd.CodeConflict {
			glyph = yellow("⚠")
		}
		fmt.Printf("%s %s rejected: %s (%s)\n", glyph, rej.Instruction.OldCategory, rej.Message, rej.Code)
	}
}
