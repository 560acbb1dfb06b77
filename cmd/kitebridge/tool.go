package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kite-agent-bridge/internal/agent"
)

var toolCmd = &cobra.Command{
	Use:   "tool [name] [json-arguments]",
	Short: "Call a single proxy tool directly",
	Long: `Invoke one tool against the running proxy API and print the envelope.
Without arguments, list the available tools.

  kitebridge tool get_holdings
  kitebridge tool get_margins '{"segment":"equity"}'`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tools := agent.AllTools(initializeToolClient(cfg), initializeResearcher(ctx, cfg))
		if len(args) == 0 {
			return listTools(cmd.OutOrStdout(), tools)
		}

		tool, ok := tools[args[0]]
		if !ok {
			return fmt.Errorf("unknown tool %q", args[0])
		}
		var raw json.RawMessage
		if len(args) == 2 {
			raw = json.RawMessage(args[1])
		}

		env := tool.Run(ctx, raw)
		b, err := json.MarshalIndent(env, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(b))
		if !env.OK() {
			return fmt.Errorf("%s failed", tool.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolCmd)
}

func listTools(out io.Writer, tools map[string]agent.Tool) error {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPRIVILEGED\tDESCRIPTION")
	for _, name := range names {
		t := tools[name]
		fmt.Fprintf(w, "%s\t%v\t%s\n", t.Name, t.Privileged, firstSentence(t.Description))
	}
	return w.Flush()
}

func firstSentence(s string) string {
	for i, r := range s {
		if r == '.' {
			return s[:i+1]
		}
	}
	return s
}
