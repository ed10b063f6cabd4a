package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FranksOps/perspicacity/internal/pipeline"
)

const (
	promptText   = "Enter a query (or 'quit' to exit): "
	ruleWidth    = 80
	quitCommand  = "quit"
	farewellText = "\nThank you for using PerSpicacity!\n"
	exitingText  = "\n\nExiting the system...\n"
)

// answerer is satisfied by *pipeline.Pipeline.
type answerer interface {
	Run(ctx context.Context, query string) (pipeline.Answer, error)
}

// NewREPLCmd creates the interactive prompt command.
func NewREPLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Answer queries interactively until 'quit'",
		Args:  cobra.NoArgs,
		RunE:  runREPLCmd,
	}
}

func runREPLCmd(cmd *cobra.Command, _ []string) error {
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

	return runREPL(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a.pipeline)
}

// runREPL reads queries line by line from in until "quit", end of input or
// cancellation of ctx. Errors from a single query are printed and the loop
// continues.
func runREPL(ctx context.Context, in io.Reader, out io.Writer, a answerer) error {
	fmt.Fprint(out, "Welcome to the PerSpicacity\n")
	fmt.Fprint(out, "Enter your queries below. Type 'quit' to exit.\n\n")

	done := make(chan struct{})
	defer close(done)
	lines := readLines(in, done)

	for {
		fmt.Fprint(out, promptText)

		var (
			line string
			ok   bool
		)
		select {
		case <-ctx.Done():
			fmt.Fprint(out, exitingText)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			fmt.Fprint(out, farewellText)
			return nil
		}

		query := strings.TrimSpace(line)
		if query == "" {
			fmt.Fprintln(out, "Please enter a valid query.")
			continue
		}
		if strings.EqualFold(query, quitCommand) {
			fmt.Fprint(out, farewellText)
			return nil
		}

		fmt.Fprintf(out, "\nQuery: %s\n", query)
		fmt.Fprintln(out, "Searching and analyzing content...")

		ans, err := safeRun(ctx, a, query)
		if ctx.Err() != nil {
			fmt.Fprint(out, exitingText)
			return nil
		}
		if err != nil {
			fmt.Fprintf(out, "\nAn error occurred: %v\n", err)
			fmt.Fprint(out, "Please try again with a different query.\n\n")
			continue
		}
		printAnswer(out, ans)
	}
}

// readLines feeds lines from in to the returned channel, which is closed at
// end of input. The reader goroutine exits once done is closed.
func readLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}

// safeRun turns a panic in a single query into an error.
func safeRun(ctx context.Context, a answerer, query string) (ans pipeline.Answer, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	return a.Run(ctx, query)
}

func printAnswer(out io.Writer, ans pipeline.Answer) {
	rule := strings.Repeat("-", ruleWidth)
	fmt.Fprint(out, "\nGenerated Response:\n")
	fmt.Fprintln(out, rule)
	fmt.Fprintln(out, ans.Response)
	fmt.Fprintln(out, rule)
	fmt.Fprint(out, "\nSources:\n")
	for i, src := range ans.Sources {
		fmt.Fprintf(out, "%d. %s\n", i+1, src)
	}
	fmt.Fprint(out, "\n\n")
}
