package proxy

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/trace"
	"kite-agent-bridge/internal/types"
)

const requestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// Middleware decorates one route handler.
type Middleware func(http.Handler) http.Handler

// chain applies middlewares so the first one listed runs outermost.
func chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// routeGroup registers routes on a mux behind a shared middleware stack.
type routeGroup struct {
	mux         *http.ServeMux
	middlewares []Middleware
}

func newRouteGroup(mux *http.ServeMux, middlewares ...Middleware) *routeGroup {
	return &routeGroup{mux: mux, middlewares: middlewares}
}

func (g *routeGroup) HandleFunc(pattern string, fn http.HandlerFunc) {
	g.mux.Handle(pattern, chain(fn, g.middlewares...))
}

// with returns a sub-group with extra middleware appended.
func (g *routeGroup) with(middlewares ...Middleware) *routeGroup {
	all := make([]Middleware, 0, len(g.middlewares)+len(middlewares))
	all = append(all, g.middlewares...)
	all = append(all, middlewares...)
	return &routeGroup{mux: g.mux, middlewares: all}
}

// RequestID returns the id assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observe opens one span per request, tags it with a request id and logs the
// outcome. Query strings are not logged since the redirect carries a token.
func observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := context.WithValue(r.Context(), requestIDKey, id)
		ctx, span := trace.StartSpan(ctx, "http "+r.Pattern,
			oteltrace.WithSpanKind(oteltrace.SpanKindServer),
			oteltrace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.Pattern),
				attribute.String("request.id", id),
			))
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rec.status))
		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", id,
		}
		if rec.status >= http.StatusInternalServerError {
			logger.Warn(ctx, "Request failed", fields...)
		} else {
			logger.Info(ctx, "Request served", fields...)
		}
	})
}

// requireSession rejects the request with 401 when no access token is
// installed. The handler and the broker are never reached in that case.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.broker.Authenticated() {
			logger.Warn(r.Context(), "Rejected unauthenticated request", "path", r.URL.Path)
			writeEnvelope(w, http.StatusUnauthorized, types.Failure(msgNotAuthenticated))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanics turns a handler panic into an error envelope.
func recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error(r.Context(), "Handler panicked", "path", r.URL.Path, "panic", v)
				writeEnvelope(w, http.StatusInternalServerError, types.Failure("Internal server error."))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
