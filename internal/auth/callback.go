// Package auth implements the Kite login redirect handling: the one-time
// request token is exchanged for a session exactly once per redirect.
package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/types"
)

type State int

const (
	AwaitingRedirect State = iota
	Authenticated
)

func (s State) String() string {
	switch s {
	case Authenticated:
		return "authenticated"
	default:
		return "awaiting_redirect"
	}
}

// Exchanger turns a request token into an installed session.
type Exchanger interface {
	GenerateSession(ctx context.Context, requestToken string) (types.Credentials, error)
}

// ShutdownScheduler stops the hosting server after a delay.
type ShutdownScheduler interface {
	ScheduleShutdown(delay time.Duration)
}

type Options struct {
	// RunOnce asks Scheduler to stop the server ShutdownDelay after the first
	// successful login.
	RunOnce       bool
	ShutdownDelay time.Duration
	Scheduler     ShutdownScheduler
}

// Callback is the redirect state machine. Once Authenticated it never goes
// back; later redirects may still replace the session.
type Callback struct {
	exchanger Exchanger
	opts      Options

	mu    sync.Mutex
	state State
}

func NewCallback(exchanger Exchanger, opts Options) *Callback {
	return &Callback{exchanger: exchanger, opts: opts}
}

func (c *Callback) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handle processes one redirect. A status other than "success" and a missing
// token are rejected before any exchange. The session is untouched on every
// error path.
func (c *Callback) Handle(ctx context.Context, r types.LoginRedirect) (types.Credentials, error) {
	if r.Status != "" && !strings.EqualFold(r.Status, types.StatusSuccess) {
		logger.Warn(ctx, "Login redirect reported failure", "status", r.Status, "action", r.Action)
		return types.Credentials{}, fmt.Errorf("%w. Status: %s", types.ErrLoginNotSuccessful, r.Status)
	}
	if r.RequestToken == "" {
		logger.Warn(ctx, "Login redirect without request_token", "action", r.Action)
		return types.Credentials{}, types.ErrMissingToken
	}

	creds, err := c.exchanger.GenerateSession(ctx, r.RequestToken)
	if err != nil {
		logger.ErrorWithErr(ctx, "Request token exchange failed", err, "state", c.State().String())
		return types.Credentials{}, fmt.Errorf("%w: %w", types.ErrAuthExchangeFailed, err)
	}

	c.mu.Lock()
	c.state = Authenticated
	c.mu.Unlock()

	logger.Auth(ctx, "login_completed", "user_id", creds.UserID, "run_once", c.opts.RunOnce)

	if c.opts.RunOnce && c.opts.Scheduler != nil {
		c.opts.Scheduler.ScheduleShutdown(c.opts.ShutdownDelay)
		logger.Info(ctx, "Server will stop after login", "delay", c.opts.ShutdownDelay.String())
	}
	return creds, nil
}
