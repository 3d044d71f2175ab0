package oracle

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/skosovsky/toolsynth"
)

// Func is one attempt of an oracle call.
type Func func(ctx context.Context) error

// Middleware wraps a Func with cross-cutting behavior (logging, recovery, timeout).
type Middleware func(op string, next Func) Func

// Chain applies middlewares in onion order: the first is outermost.
func Chain(op string, fn Func, middlewares ...Middleware) Func {
	for i := len(middlewares) - 1; i >= 0; i-- {
		fn = middlewares[i](op, fn)
	}
	return fn
}

// WithLogging logs every finished attempt with its duration, and errors at warn level.
func WithLogging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(op string, next Func) Func {
		return func(ctx context.Context) error {
			start := time.Now()
			err := next(ctx)
			dur := time.Since(start)
			if err != nil {
				logger.WarnContext(ctx, "oracle call failed", "op", op, "duration", dur, "error", err)
				return err
			}
			logger.DebugContext(ctx, "oracle call", "op", op, "duration", dur)
			return nil
		}
	}
}

// WithRecovery turns a panic inside the call into a *toolsynth.SystemError.
func WithRecovery() Middleware {
	return func(_ string, next Func) Func {
		return func(ctx context.Context) (err error) {
			defer func() {
				if p := recover(); p != nil {
					err = &toolsynth.SystemError{Err: &toolsynth.PanicError{Value: p}}
				}
			}()
			return next(ctx)
		}
	}
}

// WithTimeout bounds each attempt. A non-positive d disables it.
func WithTimeout(d time.Duration) Middleware {
	return func(_ string, next Func) Func {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx)
		}
	}
}

// WithRateLimit waits for a token from limiter before each attempt. A nil limiter disables it.
func WithRateLimit(limiter *rate.Limiter) Middleware {
	return func(_ string, next Func) Func {
		if limiter == nil {
			return next
		}
		return func(ctx context.Context) error {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}
