package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// NewAskCmd creates the one-shot query command.
func NewAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer a single query and exit",
		Long: `Ask runs one query through the full pipeline: query expansion, search,
page extraction and answer synthesis. The answer and its numbered sources
are printed to stdout.

Examples:
  perspicacity ask "how do tides work"
  perspicacity ask --json what is a monad`,
		Args: cobra.MinimumNArgs(1),
		RunE: runAskCmd,
	}
	cmd.Flags().BoolP("json", "j", false, "Print the answer as JSON")
	return cmd
}

func runAskCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ans, err := a.pipeline.Run(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ans); err != nil {
			return fmt.Errorf("encode answer: %w", err)
		}
		return nil
	}
	printAnswer(out, ans)
	return nil
}
