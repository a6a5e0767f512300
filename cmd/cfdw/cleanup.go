package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Cleanup and maintenance commands",
	Long:  `Commands for cleaning up old run history and performing database maintenance.`,
}

var cleanupHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Delete old runs and events",
	Long: `Delete old run history according to the retention policy.

Executes two cleanup passes in sequence:
  1. Events: info and warning events after history.retention_days,
     error and critical events after history.retention_critical_days
  2. Runs: finished runs after history.run_retention_days, with their events

Examples:
  cfdw cleanup history             # Run cleanup with configured retention
  cfdw cleanup history --vacuum    # Run cleanup and reclaim disk space
  cfdw cleanup history --dry-run   # Show the policy and current counts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		vacuum, _ := cmd.Flags().GetBool("vacuum")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		retention := cfg.History
		fmt.Printf("History Retention Configuration:\n")
		fmt.Printf("  Regular events: %d days\n", retention.RetentionDays)
		fmt.Printf("  Critical events: %d days\n", retention.RetentionCriticalDays)
		fmt.Printf("  Runs: %d days\n", retention.RunRetentionDays)
		fmt.Printf("  Batch size: %d rows/statement\n", retention.CleanupBatchSize)
		if dryRun {
			fmt.Printf("\n%s\n", color.YellowString("DRY RUN MODE - Nothing will be deleted"))
		}
		fmt.Println()

		before, err := store.GetEventCounts(ctx)
		if err != nil {
			return fmt.Errorf("failed to get event counts: %w", err)
		}
		fmt.Printf("Current state:\n")
		fmt.Printf("  Total runs: %s\n", formatNumber(before.TotalRuns))
		fmt.Printf("  Total events: %s\n", formatNumber(before.TotalEvents))
		fmt.Println()

		if dryRun {
			fmt.Println("Dry run complete. Use without --dry-run to perform cleanup.")
			return nil
		}

		startTime := time.Now()

		fmt.Printf("Running event cleanup (>%d days, critical >%d days)...\n",
			retention.RetentionDays, retention.RetentionCriticalDays)
		eventsDeleted, err := store.CleanupEventsByAge(ctx,
			retention.RetentionDays,
			retention.RetentionCriticalDays,
			retention.CleanupBatchSize)
		if err != nil {
			return fmt.Errorf("event cleanup failed: %w", err)
		}
		fmt.Printf("  Deleted %s events\n", formatNumber(eventsDeleted))

		fmt.Printf("\nRunning run cleanup (>%d days)...\n", retention.RunRetentionDays)
		runsDeleted, err := store.CleanupRunsByAge(ctx, retention.RunRetentionDays, retention.CleanupBatchSize)
		if err != nil {
			return fmt.Errorf("run cleanup failed: %w", err)
		}
		fmt.Printf("  Deleted %s runs\n", formatNumber(runsDeleted))

		after, err := store.GetEventCounts(ctx)
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("\n%s Cleanup complete\n", green("✓"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to get final event counts: %v\n", err)
		} else {
			fmt.Printf("  Runs remaining: %s\n", formatNumber(after.TotalRuns))
			fmt.Printf("  Events remaining: %s\n", formatNumber(after.TotalEvents))
		}
		fmt.Printf("  Time taken: %s\n", time.Since(startTime).Round(time.Millisecond))

		if vacuum {
			fmt.Printf("\nRunning VACUUM to reclaim disk space...\n")
			if err := store.VacuumDatabase(ctx); err != nil {
				return fmt.Errorf("VACUUM failed: %w", err)
			}
			fmt.Printf("%s VACUUM complete\n", green("✓"))
		} else {
			fmt.Printf("\nNote: Use --vacuum to reclaim disk space\n")
		}
		return nil
	},
}

func init() {
	cleanupHistoryCmd.Flags().Bool("dry-run", false, "Show the policy and counts without deleting")
	cleanupHistoryCmd.Flags().Bool("vacuum", false, "Run VACUUM after cleanup to reclaim disk space")

	cleanupCmd.AddCommand(cleanupHistoryCmd)
	rootCmd.AddCommand(cleanupCmd)
}

// formatNumber formats a number with thousand separators
// Handles numbers from 0 to billions with proper formatting
func formatNumber(n int) string {
	if n < 0 {
		return fmt.Sprintf("-%s", formatNumber(-n))
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%d,%03d", n/1000, n%1000)
	}
	if n < 1000000000 {
		return fmt.Sprintf("%d,%03d,%03d", n/1000000, (n/1000)%1000, n%1000)
	}
	return fmt.Sprintf("%d,%03d,%03d,%03d", n/1000000000, (n/1000000)%1000, (n/1000)%1000, n%1000)
}
