// Package oracle hardens calls to external judgment and generation models. Every call goes
// through a Guard that rate limits, bounds, retries, recovers and measures it, and turns the
// final failure into a *toolsynth.OracleError.
package oracle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/skosovsky/toolsynth"
)

var (
	callsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolsynth",
		Subsystem: "oracle",
		Name:      "calls_total",
		Help:      "Oracle calls by operation and outcome",
	}, []string{"op", "outcome"})
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "toolsynth",
		Subsystem: "oracle",
		Name:      "attempts_total",
		Help:      "Oracle attempts including retries",
	}, []string{"op"})
	callDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "toolsynth",
		Subsystem: "oracle",
		Name:      "call_duration_seconds",
		Help:      "Oracle call latency including retries",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"op"})
)

type options struct {
	timeout         time.Duration
	maxAttempts     uint
	maxElapsed      time.Duration
	initialInterval time.Duration
	maxInterval     time.Duration
	limiter         *rate.Limiter
	logger          *slog.Logger
}

// Option configures a Guard.
type Option func(*options)

// WithAttemptTimeout bounds each attempt.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithMaxAttempts bounds the attempts per call, first one included.
func WithMaxAttempts(n uint) Option {
	return func(o *options) { o.maxAttempts = n }
}

// WithMaxElapsed bounds the total time spent retrying one call.
func WithMaxElapsed(d time.Duration) Option {
	return func(o *options) { o.maxElapsed = d }
}

// WithBackoff sets the exponential backoff interval range.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(o *options) {
		o.initialInterval = initial
		o.maxInterval = maxInterval
	}
}

// WithRequestsPerSecond limits attempts across all calls sharing the Guard. rps <= 0 disables.
func WithRequestsPerSecond(rps float64, burst int) Option {
	return func(o *options) {
		if rps <= 0 {
			o.limiter = nil
			return
		}
		o.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Guard runs oracle calls. It is safe for concurrent use.
type Guard struct {
	opts options
}

// NewGuard creates a Guard. Defaults: 60s per attempt, 3 attempts, 500ms..10s backoff,
// 2m total, no rate limit.
func NewGuard(opts ...Option) *Guard {
	o := options{
		timeout:         60 * time.Second,
		maxAttempts:     3,
		maxElapsed:      2 * time.Minute,
		initialInterval: 500 * time.Millisecond,
		maxInterval:     10 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.maxAttempts == 0 {
		o.maxAttempts = 1
	}
	return &Guard{opts: o}
}

// Do runs fn under op until it succeeds, fails permanently, or runs out of attempts.
// Any failure is returned as a *toolsynth.OracleError.
func (g *Guard) Do(ctx context.Context, op string, fn Func) error {
	attempt := Chain(op, fn,
		WithRateLimit(g.opts.limiter),
		WithLogging(g.opts.logger),
		WithRecovery(),
		WithTimeout(g.opts.timeout),
	)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.opts.initialInterval
	b.MaxInterval = g.opts.maxInterval

	start := time.Now()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attemptsTotal.WithLabelValues(op).Inc()
		err := attempt(ctx)
		if err != nil && (ctx.Err() != nil || !retryable(err)) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(g.opts.maxAttempts),
		backoff.WithMaxElapsedTime(g.opts.maxElapsed),
	)
	callDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err == nil {
		callsTotal.WithLabelValues(op, "ok").Inc()
		return nil
	}
	callsTotal.WithLabelValues(op, "error").Inc()
	return asOracleError(op, err)
}

// Call is Do for calls that return a value.
func Call[T any](ctx context.Context, g *Guard, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// retryable reports whether repeating the same request may help.
func retryable(err error) bool {
	if toolsynth.IsSystemError(err) || toolsynth.IsClientError(err) {
		return false
	}
	var oe *toolsynth.OracleError
	if errors.As(err, &oe) {
		return oe.Retryable
	}
	return true
}

func asOracleError(op string, err error) error {
	var oe *toolsynth.OracleError
	if errors.As(err, &oe) {
		if oe.Op == "" {
			oe.Op = op
		}
		return oe
	}
	return &toolsynth.OracleError{
		Op:        op,
		Reason:    err.Error(),
		Retryable: retryable(err),
		Err:       err,
	}
}
