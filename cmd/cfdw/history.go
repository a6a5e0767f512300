package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cfdbot/cfdw/internal/events"
	"github.com/cfdbot/cfdw/internal/types"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show past runs and their events",
	Long: `Without arguments, list the most recent runs.

With a run ID, show the events recorded during that run.

Examples:
  cfdw history                               # Last 20 runs
  cfdw history 3f2a...                       # Every event of one run
  cfdw history 3f2a... --severity error      # Only errors
  cfdw history 3f2a... --category "Category:Foo"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		ctx := context.Background()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		if len(args) == 0 {
			runs, err := store.GetRecentRuns(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Printf("\n%s No runs recorded in %s\n\n", color.YellowString("⚠"), cfg.Database)
				return nil
			}
			for _, run := range runs {
				displayRun(run)
			}
			return nil
		}

		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load run: %w", err)
		}
		eventType, _ := cmd.Flags().GetString("type")
		category, _ := cmd.Flags().GetString("category")
		severity, _ := cmd.Flags().GetString("severity")
		evs, err := store.GetEvents(ctx, events.EventFilter{
			RunID:    run.ID,
			Type:     events.EventType(eventType),
			Category: category,
			Severity: events.EventSeverity(severity),
			Limit:    limit,
		})
		if err != nil {
			return fmt.Errorf("failed to load events: %w", err)
		}

		displayRun(run)
		fmt.Println()
		for _, ev := range evs {
			displayRunEvent(ev)
		}
		if len(evs) == 0 {
			fmt.Println("No matching events")
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs or events to show")
	historyCmd.Flags().String("type", "", "Only show events of this type (e.g. page_failed)")
	historyCmd.Flags().String("category", "", "Only show events about this category")
	historyCmd.Flags().String("severity", "", "Only show events of this severity")
	rootCmd.AddCommand(historyCmd)
}

// displayRun prints a one-line summary of a stored run.
func displayRun(run *types.Run) {
	var glyph string
	switch run.Status {
	case types.RunStatusCompleted:
		glyph = color.GreenString("✓")
	case types.RunStatusRunning:
		glyph = color.CyanString("→")
	case types.RunStatusAborted:
		glyph = color.YellowString("⚠")
	default:
		glyph = color.RedString("✗")
	}

	fields := []string{
		string(run.Status),
		fmt.Sprintf("%d approved", run.Approved),
		fmt.Sprintf("%d rejected", run.Rejected),
	}
	if d := run.Duration(); d > 0 {
		fields = append(fields, d.Round(time.Second).String())
	}
	if run.DryRun {
		fields = append(fields, "dry run")
	}

	fmt.Printf("%s [%s] %s %s\n", glyph, run.StartedAt.Format("2006-01-02 15:04"), color.GreenString(run.ID), run.WorkingPage)
	fmt.Printf("  %s\n", color.New(color.FgHiBlack).Sprint(joinFields(fields)))
	if run.Error != "" {
		fmt.Printf("  %s\n", color.RedString(truncateString(run.Error, 100)))
	}
}
