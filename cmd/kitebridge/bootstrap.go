package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"kite-agent-bridge/internal/api"
	"kite-agent-bridge/internal/broker/brokerobs"
	"kite-agent-bridge/internal/broker/zerodha"
	"kite-agent-bridge/internal/interfaces"
	"kite-agent-bridge/internal/llm/claude"
	"kite-agent-bridge/internal/llm/llmobs"
	"kite-agent-bridge/internal/llm/openai"
	"kite-agent-bridge/internal/llm/rules"
	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/research"
	"kite-agent-bridge/internal/store"
	"kite-agent-bridge/internal/trace"
)

// bootstrap initializes logger and tracer, then loads the configuration
func bootstrap(cmd *cobra.Command) (*store.Config, error) {
	// Load environment variables
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	ctx := cmd.Context()
	c, err := store.LoadConfig(opts.configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err)
		return nil, err
	}
	if err := applyFlags(cmd, c); err != nil {
		return nil, err
	}
	logger.Debug(ctx, "Configuration loaded", "config", c.String())
	return c, nil
}

// applyFlags copies explicitly set flags over the loaded config
func applyFlags(cmd *cobra.Command, c *store.Config) error {
	pf := cmd.Flags()
	if pf.Changed("api-key") {
		c.Broker.APIKey = opts.apiKey
	}
	if pf.Changed("api-secret") {
		c.Broker.APISecret = opts.apiSecret
	}
	if pf.Changed("port") {
		c.Server.Port = opts.port
		if !pf.Changed("proxy-url") {
			c.Client.BaseURL = "http://" + c.Addr()
		}
	}
	if pf.Changed("mode") {
		c.Server.Mode = opts.mode
	}
	if pf.Changed("proxy-url") {
		c.Client.BaseURL = opts.proxyURL
	}
	if pf.Changed("provider") {
		c.LLM.Provider = strings.ToUpper(opts.provider)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func shutdown(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := trace.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush traces: %v\n", err)
	}
}

// initializeBroker creates the session holder with observability
func initializeBroker(ctx context.Context, c *store.Config) interfaces.Broker {
	if err := c.RequireBroker(); err != nil {
		logger.Warn(ctx, "Broker credentials incomplete, login will fail until they are set", "error", err.Error())
	}
	holder := zerodha.NewHolder(zerodha.Params{
		APIKey:    c.Broker.APIKey,
		APISecret: c.Broker.APISecret,
		Factory:   zerodha.NewKiteFactory(c.Broker.BaseURI, c.Broker.Timeout),
	})
	return brokerobs.Wrap(holder)
}

// initializeDecider picks the decider for the configured provider and wraps
// it with observability. A provider without an API key falls back to rules.
func initializeDecider(ctx context.Context, c *store.Config) interfaces.Decider {
	var (
		decider interfaces.Decider
		err     error
	)

	switch c.LLM.Provider {
	case "OPENAI":
		decider, err = openai.NewOpenAIDecider(c)
	case "CLAUDE":
		decider, err = claude.NewClaudeDecider(c)
	}
	if err != nil {
		logger.Warn(ctx, "LLM provider unavailable, using rules decider", "provider", c.LLM.Provider, "error", err.Error())
	}
	provider := c.LLM.Provider
	if decider == nil || err != nil {
		decider = rules.NewRulesDecider()
		provider = "RULES"
	}
	return llmobs.Wrap(decider, provider)
}

// initializeResearcher returns nil when research cannot be configured; the
// agent then runs without a research capability.
func initializeResearcher(ctx context.Context, c *store.Config) interfaces.Researcher {
	svc, err := research.NewService(c.Research)
	if err != nil {
		logger.Warn(ctx, "Research disabled", "error", err.Error())
		return nil
	}
	return svc
}

// initializeToolClient points the tool client at the configured proxy
func initializeToolClient(c *store.Config) *api.ToolClient {
	var toolOpts []api.ToolOption
	if !c.Client.OpenBrowser {
		toolOpts = append(toolOpts, api.WithBrowserOpener(nil))
	}
	return api.NewToolClient(c.Client.BaseURL, toolOpts...)
}
