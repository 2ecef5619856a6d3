package toolgram

import (
	"context"
	"log/slog"
	"time"
)

// Middleware wraps a tool handler with cross-cutting behavior (logging, recovery, timeout).
// It receives the tool being invoked and the next handler in the chain.
type Middleware func(t *Tool, next HandlerFunc) HandlerFunc

// Use replaces the middleware chain. The first middleware is outermost. The chain applies to
// every invocation from now on, including tools registered later.
func (r *Registry) Use(middlewares ...Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = middlewares
}

// WithLogging returns a middleware that logs start, end, duration, and errors.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(t *Tool, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, args []any) (any, error) {
			logger.InfoContext(ctx, "tool start", "tool", t.Name())
			start := time.Now()
			res, err := next(ctx, args)
			dur := time.Since(start)
			if err != nil {
				logger.ErrorContext(ctx, "tool error", "tool", t.Name(), "duration", dur, "error", err)
				return nil, err
			}
			logger.InfoContext(ctx, "tool end", "tool", t.Name(), "duration", dur)
			return res, nil
		}
	}
}

// WithRecovery returns a middleware that turns handler panics into *ExecutionError. Registries
// recover by default; this is for registries built with WithRecoverPanics(false) that still
// want recovery around selected chains.
func WithRecovery() Middleware {
	return func(t *Tool, next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, args []any) (res any, err error) {
			defer func() {
				if p := recover(); p != nil {
					res = nil
					err = &ExecutionError{Tool: t.Name(), Err: &panicError{p: p}}
				}
			}()
			return next(ctx, args)
		}
	}
}

// WithTimeoutMiddleware returns a middleware that gives each handler call a deadline context.
// Handlers are expected to honour ctx; a handler that ignores it runs to completion.
func WithTimeoutMiddleware(d time.Duration) Middleware {
	return func(_ *Tool, next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, args []any) (any, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, args)
		}
	}
}
