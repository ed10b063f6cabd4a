package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/perspicacity/internal/report"
	"github.com/FranksOps/perspicacity/internal/storage"
)

// NewReportCmd creates the command summarising stored fetch attempts.
func NewReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise stored fetch attempts",
		Long: `Report reads fetch attempts from the configured storage backend and
prints totals, outcomes by reason and status code, bot-protection
detections and the acceptance rate.

Examples:
  perspicacity report --storage sqlite --dsn attempts.db
  perspicacity report --format html --since 24h > report.html`,
		Args: cobra.NoArgs,
		RunE: runReportCmd,
	}
	cmd.Flags().StringP("format", "f", "text", "Output format: text, json or html")
	cmd.Flags().StringP("query", "q", "", "Only include attempts made for this query")
	cmd.Flags().String("reason", "", "Only include attempts with this outcome reason")
	cmd.Flags().Duration("since", 0, "Only include attempts newer than this (e.g. 24h)")
	cmd.Flags().Int("limit", 0, "Only include the newest N attempts (0 = all)")
	return cmd
}

func runReportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd)

	filter, format, err := reportOptions(cmd)
	if err != nil {
		return err
	}

	backend, err := openBackend(cmd.Context(), cfg.Storage)
	if err != nil {
		return err
	}
	if backend == nil {
		return errors.New("no storage backend configured (set --storage and --dsn)")
	}
	defer closeBackend(backend, logger)

	attempts, err := backend.Query(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("query attempts: %w", err)
	}

	summary := report.GenerateSummary(attempts)
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		return report.WriteJSON(out, summary)
	case "html":
		return report.WriteHTML(out, summary)
	default:
		return report.WriteText(out, summary)
	}
}

func reportOptions(cmd *cobra.Command) (storage.Filter, string, error) {
	var filter storage.Filter

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return filter, "", err
	}
	switch format {
	case "text", "json", "html":
	default:
		return filter, "", fmt.Errorf("unknown report format %q (want text, json or html)", format)
	}

	if filter.Query, err = cmd.Flags().GetString("query"); err != nil {
		return filter, "", err
	}
	if filter.Reason, err = cmd.Flags().GetString("reason"); err != nil {
		return filter, "", err
	}
	if filter.Limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return filter, "", err
	}
	since, err := cmd.Flags().GetDuration("since")
	if err != nil {
		return filter, "", err
	}
	if since > 0 {
		t := time.Now().Add(-since)
		filter.Since = &t
	}
	return filter, format, nil
}
