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

	"kite-agent-bridge/internal/agent"
	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/store"
)

var chatCmd = &cobra.Command{
	Use:   "chat [request]",
	Short: "Talk to your Kite account in plain English",
	Long: `Route natural-language requests through the agents. With arguments the
request is answered once; without, an interactive prompt starts. Type
"reset" to forget the conversation and "exit" to quit.

The proxy API must be running (kitebridge serve).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		router := newRouter(ctx, cfg)
		if len(args) > 0 {
			return answer(ctx, router, cmd.OutOrStdout(), strings.Join(args, " "))
		}
		return repl(ctx, router, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func newRouter(ctx context.Context, c *store.Config) *agent.Router {
	return agent.NewRouter(
		initializeDecider(ctx, c),
		initializeToolClient(c),
		initializeResearcher(ctx, c),
		agent.WithMaxSteps(c.LLM.MaxSteps),
	)
}

func answer(ctx context.Context, router *agent.Router, out io.Writer, text string) error {
	reply, err := router.Handle(ctx, text)
	if err != nil {
		logger.ErrorWithErr(ctx, "Request failed", err)
		return err
	}
	fmt.Fprintln(out, reply)
	return nil
}

func repl(ctx context.Context, router *agent.Router, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, `Ask about your Kite account. Type "exit" to quit.`)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "reset":
			router.Reset()
			fmt.Fprintln(out, "Conversation cleared.")
			continue
		}

		if err := answer(ctx, router, out, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}
