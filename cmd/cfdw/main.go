package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cfdbot/cfdw/internal/config"
	"github.com/cfdbot/cfdw/internal/storage"
	"github.com/cfdbot/cfdw/internal/wiki"
	"github.com/cfdbot/cfdw/internal/wiki/mediawiki"
)

const version = "0.4.0"

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cfdw",
	Short: "Categories for discussion working page bot",
	Long: `cfdw carries out closed Categories for discussion (CfD) decisions.

Admins list closed discussions on a protected working page. cfdw reads
that page, rejects conflicting or impossible instructions, recategorizes
the member pages and then deletes, redirects, renames or archives each
category.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
			loaded.Database = dbPath
		}
		cfg = loaded

		verbose, _ := cmd.Flags().GetBool("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		logger = newLogger(verbose, jsonLogs)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default: cfdw.yaml in the current directory)")
	rootCmd.PersistentFlags().String("db", "", "Run history database path (overrides config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose, jsonLogs bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		opts.Level = slog.LevelDebug
	}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// connect returns the wiki client, logged in when credentials are set.
// With dryRun every write is logged and dropped.
func connect(ctx context.Context, dryRun bool) (wiki.Site, error) {
	client, err := mediawiki.New(mediawiki.Config{
		APIURL:                    cfg.Wiki.APIURL,
		UserAgent:                 cfg.Wiki.UserAgent,
		Username:                  cfg.Wiki.Username,
		Password:                  cfg.Wiki.Password,
		MaxLag:                    cfg.Wiki.MaxLag,
		EditRate:                  cfg.Wiki.EditRate,
		CategoryRedirectTemplates: []string{cfg.Templates.CategoryRedirect},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create wiki client: %w", err)
	}
	if cfg.Wiki.Username != "" {
		if err := client.Login(ctx); err != nil {
			return nil, fmt.Errorf("failed to log in: %w", err)
		}
	} else if !dryRun {
		return nil, fmt.Errorf("wiki.username is required unless --dry-run is set")
	}
	if dryRun {
		return wiki.ReadOnly(client, logger), nil
	}
	return client, nil
}

// openStore opens the run history database.
func openStore(ctx context.Context) (storage.Storage, error) {
	store, err := storage.NewStorage(ctx, &storage.Config{Path: cfg.Database})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", cfg.Database, err)
	}
	return store, nil
}

// shutoffTitle parses a kill switch page name; "" disables the switch.
func shutoffTitle(name string) (wiki.Title, error) {
	if name == "" {
		return wiki.Title{}, nil
	}
	title, _, err := wiki.ParseTitle(name, wiki.NSMain)
	if err != nil {
		return wiki.Title{}, fmt.Errorf("invalid kill switch page %q: %w", name, err)
	}
	return title, nil
}
