package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kite-agent-bridge/internal/interfaces"
	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/proxy"
	"kite-agent-bridge/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local Kite proxy API",
	Long: `Start the proxy API that holds the Kite session. In run_once mode the
server stops a few seconds after the first successful login.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newProxyFor(broker interfaces.Broker, c *store.Config) *proxy.Server {
	return proxy.NewServer(broker, proxy.Options{
		Addr:              c.Addr(),
		RunOnce:           c.RunOnce(),
		ShutdownDelay:     c.Server.ShutdownDelay,
		ExposeCredentials: c.Server.ExposeCredentials,
		Mode:              c.Server.Mode,
	})
}

func serve(ctx context.Context, c *store.Config) error {
	srv := newProxyFor(initializeBroker(ctx, c), c)
	if err := srv.Run(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Proxy API stopped with error", err)
		return err
	}
	logger.Info(ctx, "Proxy API stopped")
	return nil
}
