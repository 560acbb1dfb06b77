// Package proxy serves the Kite session over local HTTP. Every route answers
// with a status/data/message envelope; privileged routes sit behind one
// session gate.
package proxy

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"kite-agent-bridge/internal/auth"
	"kite-agent-bridge/internal/interfaces"
	"kite-agent-bridge/internal/logger"
)

const (
	ServiceName    = "kite-agent-bridge"
	ServiceVersion = "1.0.0"

	defaultShutdownDelay = 3 * time.Second
	drainTimeout         = 5 * time.Second
)

type Options struct {
	Addr string
	// RunOnce stops the server ShutdownDelay after the first successful login.
	RunOnce       bool
	ShutdownDelay time.Duration
	// ExposeCredentials returns raw token values from the redirect and renew
	// routes instead of masked ones.
	ExposeCredentials bool
	Mode              string
}

type Server struct {
	broker   interfaces.Broker
	callback *auth.Callback
	opts     Options
	validate *validator.Validate
	handler  http.Handler
	routes   []route

	mu        sync.Mutex
	timer     *time.Timer
	stopOnce  sync.Once
	stopped   chan struct{}
	listening chan string
}

var _ auth.ShutdownScheduler = (*Server)(nil)

func NewServer(broker interfaces.Broker, opts Options) *Server {
	if opts.ShutdownDelay <= 0 {
		opts.ShutdownDelay = defaultShutdownDelay
	}
	s := &Server{
		broker:    broker,
		opts:      opts,
		validate:  newValidator(),
		stopped:   make(chan struct{}),
		listening: make(chan string, 1),
	}
	s.callback = auth.NewCallback(broker, auth.Options{
		RunOnce:       opts.RunOnce,
		ShutdownDelay: opts.ShutdownDelay,
		Scheduler:     s,
	})
	s.handler = s.buildRoutes()
	return s
}

// Handler exposes the routed handler, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ScheduleShutdown arms the delayed stop. The first call wins; later calls
// are ignored until the timer is cancelled.
func (s *Server) ScheduleShutdown(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(delay, s.requestShutdown)
}

// CancelShutdown disarms a pending delayed stop and reports whether one was
// pending.
func (s *Server) CancelShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return false
	}
	pending := s.timer.Stop()
	s.timer = nil
	return pending
}

// ShutdownRequested is closed once the server has been asked to stop.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.stopped
}

// Listening yields the bound address once Run has started accepting.
func (s *Server) Listening() <-chan string {
	return s.listening
}

func (s *Server) requestShutdown() {
	s.stopOnce.Do(func() { close(s.stopped) })
}

// Run serves until ctx is done or a shutdown is requested, then drains
// in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	addr := ln.Addr().String()
	s.listening <- addr
	logger.Info(ctx, "Proxy API listening", "addr", addr, "mode", s.opts.Mode, "run_once", s.opts.RunOnce)

	select {
	case <-ctx.Done():
		logger.Info(ctx, "Stopping proxy API", "reason", "context done")
	case <-s.stopped:
		logger.Info(ctx, "Stopping proxy API", "reason", "shutdown requested")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	s.CancelShutdown()
	s.requestShutdown()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
