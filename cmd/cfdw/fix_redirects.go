package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cfdbot/cfdw/internal/bot"
	"github.com/cfdbot/cfdw/internal/catredirect"
	"github.com/cfdbot/cfdw/internal/events"
	"github.com/cfdbot/cfdw/internal/types"
	"github.com/cfdbot/cfdw/internal/wiki"
)

var fixRedirectsCmd = &cobra.Command{
	Use:   "fix-redirects [category...]",
	Short: "Retarget category redirects that point at other redirects",
	Long: `Follow each category redirect chain to its end and point the first
redirect straight at the final category.

Pages are taken from the arguments and from the members of --category.
Circular chains and pages that are not double category redirects are
skipped.

Examples:
  cfdw fix-redirects "Category:Foo" "Category:Bar"
  cfdw fix-redirects --category "Category:Wikipedia soft redirected categories"
  cfdw fix-redirects --category "Category:Wikipedia soft redirected categories" --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		tracking, _ := cmd.Flags().GetString("category")
		if len(args) == 0 && tracking == "" {
			return fmt.Errorf("no pages given: pass category titles or --category")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		site, err := connect(ctx, dryRun)
		if err != nil {
			return err
		}
		shutoff, err := shutoffTitle(cfg.TaskShutoffPage(catredirect.ShutoffTask))
		if err != nil {
			return err
		}

		label := "fix-redirects"
		if tracking != "" {
			label = tracking
		}
		run := &types.Run{
			ID:          uuid.New().String(),
			WorkingPage: label,
			DryRun:      dryRun,
			Status:      types.RunStatusRunning,
			StartedAt:   time.Now(),
		}
		if err := store.CreateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		recorder := events.NewRecorder(store, run.ID, logger)
		recordSummary(ctx, recorder, events.EventTypeRunStarted, events.SeverityInfo,
			"double redirect fix started", events.RunSummaryData{})

		if dryRun {
			fmt.Printf("%s\n", color.YellowString("DRY RUN MODE - No edits will be made"))
		}

		stats, err := fixRedirects(ctx, site, shutoff, recorder, args, tracking)
		finishRun(context.WithoutCancel(ctx), store, recorder, run, nil, err)

		fmt.Printf("\n%s %s\n", color.New(color.FgCyan, color.Bold).Sprint("Pages:"), stats)
		if err != nil {
			return err
		}
		fmt.Printf("%s Fixed %s redirect(s)\n", color.GreenString("✓"), formatNumber(stats.Changed))
		return nil
	},
}

func init() {
	fixRedirectsCmd.Flags().String("category", "", "Tracking category whose members are checked")
	fixRedirectsCmd.Flags().Bool("dry-run", false, "Log edits instead of making them")
	rootCmd.AddCommand(fixRedirectsCmd)
}

// fixRedirects collects the candidate pages and runs the fixer over them.
func fixRedirects(ctx context.Context, site wiki.Site, shutoff wiki.Title, recorder *events.Recorder, names []string, tracking string) (bot.Stats, error) {
	fixer, err := catredirect.New(ctx, site, cfg.Templates.CategoryRedirect, shutoff, cfg.Engine.Concurrency, recorder, logger)
	if err != nil {
		return bot.Stats{}, err
	}

	var pages []wiki.Title
	for _, name := range names {
		page, _, err := wiki.ParseTitle(name, wiki.NSCategory)
		if err != nil {
			return bot.Stats{}, fmt.Errorf("invalid page %q: %w", name, err)
		}
		pages = append(pages, page)
	}
	if tracking != "" {
		category, _, err := wiki.ParseTitle(tracking, wiki.NSCategory)
		if err != nil {
			return bot.Stats{}, fmt.Errorf("invalid category %q: %w", tracking, err)
		}
		members, err := fixer.Candidates(ctx, category)
		if err != nil {
			return bot.Stats{}, err
		}
		pages = append(pages, members...)
	}

	return fixer.Run(ctx, pages)
}
