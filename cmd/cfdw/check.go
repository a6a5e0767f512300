package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cfdbot/cfdw/internal/cfd"
)

var checkCmd = &cobra.Command{
	Use:   "check [working-page]",
	Short: "Parse and validate a working page without editing",
	Long: `Show the instructions cfdw would execute and the ones it would reject.

Nothing is written to the wiki or to the run history. Credentials are
optional; without them the page is read anonymously.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		page, err := workingPage(args)
		if err != nil {
			return err
		}
		site, err := connect(ctx, true)
		if err != nil {
			return err
		}
		engine, err := cfd.New(ctx, site, cfd.Config{Engine: cfg.Engine, Templates: cfg.Templates}, nil, logger)
		if err != nil {
			return err
		}
		plan, err := engine.Plan(ctx, page)
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n", cyan(fmt.Sprintf("=== %s ===", page)))
		fmt.Printf("%d section(s), %d instruction(s)\n\n", len(plan.Sections), len(plan.Instructions))
		for _, ins := range plan.Validation.Approved {
			fmt.Printf("%s %s\n", green("→"), ins)
			if ins.Result != "" {
				fmt.Printf("  %s\n", gray(fmt.Sprintf("closed as %q, action %q", ins.Result, ins.Action)))
			}
		}
		printRejections(plan.Validation.Rejected)

		fmt.Printf("\n%d approved, %d rejected\n", len(plan.Validation.Approved), len(plan.Validation.Rejected))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
