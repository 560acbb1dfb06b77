package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kite-agent-bridge/internal/api"
	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/store"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to Kite once and exit",
	Long: `Start the proxy in run_once mode, open the Kite login page and wait for
the redirect. The server stops shortly after the session is created.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return login(ctx, cmd, cfg)
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func login(ctx context.Context, cmd *cobra.Command, c *store.Config) error {
	if err := c.RequireBroker(); err != nil {
		return err
	}
	c.Server.Mode = store.ModeRunOnce

	broker := initializeBroker(ctx, c)
	srv := newProxyFor(broker, c)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	select {
	case addr := <-srv.Listening():
		logger.Debug(ctx, "Login server ready", "addr", addr)
	case err := <-errCh:
		return err
	}

	loginURL, err := broker.LoginURL(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to log in:\n%s\n", loginURL)
	if c.Server.OpenBrowser {
		if err := api.OpenBrowser(loginURL); err != nil {
			logger.Warn(ctx, "Could not open browser", "error", err.Error())
		}
	}

	if err := <-errCh; err != nil {
		return err
	}
	if broker.Authenticated() {
		fmt.Fprintln(cmd.OutOrStdout(), "Login successful.")
	}
	return nil
}
