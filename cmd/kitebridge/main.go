package main

import (
	"os"

	"github.com/spf13/cobra"

	"kite-agent-bridge/internal/store"
)

// flags holds the persistent command-line overrides. They win over the
// environment, which wins over config.yaml.
type flags struct {
	configPath string
	apiKey     string
	apiSecret  string
	port       int
	mode       string
	proxyURL   string
	provider   string
}

var (
	opts flags
	cfg  *store.Config
)

var rootCmd = &cobra.Command{
	Use:   "kitebridge",
	Short: "Natural-language bridge to the Zerodha Kite API",
	Long: `kitebridge runs a local proxy in front of the Kite Connect API and an
agent that turns plain-English requests into proxy calls.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		shutdown(cmd.Context())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML config file")
	pf.StringVar(&opts.apiKey, "api-key", "", "Kite API key (overrides ZERODHA_API_KEY)")
	pf.StringVar(&opts.apiSecret, "api-secret", "", "Kite API secret (overrides ZERODHA_API_SECRET)")
	pf.IntVar(&opts.port, "port", 0, "proxy port (overrides PORT)")
	pf.StringVar(&opts.mode, "mode", "", "server mode: development, production or run_once (overrides SERVER_MODE)")
	pf.StringVar(&opts.proxyURL, "proxy-url", "", "proxy base URL used by the agent (overrides KITE_PROXY_URL)")
	pf.StringVar(&opts.provider, "provider", "", "decider: RULES, OPENAI or CLAUDE (overrides LLM_PROVIDER)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
