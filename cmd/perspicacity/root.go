package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/FranksOps/perspicacity/internal/config"
)

// NewRootCmd creates the root command. Without a subcommand it starts the
// interactive prompt.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perspicacity",
		Short: "Search the web and answer questions from what it finds",
		Long: `PerSpicacity expands a query, searches for it, extracts readable text
from the results while skipping blocked and inaccessible sites, and
synthesizes an answer with an OpenAI-compatible language model.

Configuration is read from defaults, an optional YAML file (--config),
PERSPICACITY_* environment variables and flags, in that order.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runREPLCmd,
	}

	flags := cmd.PersistentFlags()
	flags.StringP("config", "c", "", "Configuration file path (YAML)")
	flags.BoolP("verbose", "v", false, "Enable verbose logging")
	flags.Int("metrics-port", 0, "Serve Prometheus metrics on this port (0 = disabled)")
	flags.Int("num-results", 0, "Number of pages to collect per query (0 = configured default)")
	flags.String("storage", "", "Attempt storage backend: none, sqlite, postgres, json or csv")
	flags.String("dsn", "", "Storage DSN or file path")
	flags.String("fingerprint", "", "TLS fingerprint: go, chrome, firefox, safari, random or match")
	flags.String("proxy-file", "", "File with one proxy URL per line")
	flags.Bool("respect-robots", false, "Skip results disallowed by robots.txt")
	flags.String("searxng-url", "", "SearxNG base URL")
	flags.String("search-file", "", "Offline search results file (JSON)")
	flags.String("model", "", "Language model name")

	cmd.AddCommand(NewAskCmd())
	cmd.AddCommand(NewREPLCmd())
	cmd.AddCommand(NewReportCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration for cmd, applying flags that were set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, nil
}

// setupLogger creates a text logger on stderr.
func setupLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
