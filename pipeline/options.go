package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/toolsynth/augment"
	"github.com/skosovsky/toolsynth/fsp"
	"github.com/skosovsky/toolsynth/sandbox"
)

type runnerOptions struct {
	workers            int
	argumentAttempts   int
	maxUnresolvedTurns int
	seed               uint64
	augment            []augment.Option
	sandbox            *sandbox.Sandbox
	onPathStart        func(ctx context.Context, pathID string, p fsp.Path)
	onPathDone         func(ctx context.Context, rec PathRecord, err error, dur time.Duration)
	logger             *slog.Logger
	tracer             trace.TracerProvider
}

// Option configures a Runner.
type Option func(*runnerOptions)

// WithWorkers bounds the number of paths run at once. 0 or negative means unlimited.
func WithWorkers(n int) Option {
	return func(o *runnerOptions) { o.workers = n }
}

// WithArgumentAttempts sets how many times arguments are requested for one call before the
// turn is given up. Each retry carries the previous validation error as feedback.
func WithArgumentAttempts(n int) Option {
	return func(o *runnerOptions) { o.argumentAttempts = n }
}

// WithMaxUnresolvedTurns sets how many unresolved turns a path may have and still succeed.
func WithMaxUnresolvedTurns(n int) Option {
	return func(o *runnerOptions) { o.maxUnresolvedTurns = n }
}

// WithSeed sets the base seed. Path i uses a generator seeded with (seed, i).
func WithSeed(seed uint64) Option {
	return func(o *runnerOptions) { o.seed = seed }
}

// WithAugmentOptions configures the augmenter.
func WithAugmentOptions(opts ...augment.Option) Option {
	return func(o *runnerOptions) { o.augment = append(o.augment, opts...) }
}

// WithSandbox sets the sandbox sessions are opened from.
func WithSandbox(s *sandbox.Sandbox) Option {
	return func(o *runnerOptions) { o.sandbox = s }
}

// WithOnPathStart sets a hook invoked before a path runs.
func WithOnPathStart(fn func(ctx context.Context, pathID string, p fsp.Path)) Option {
	return func(o *runnerOptions) { o.onPathStart = fn }
}

// WithOnPathDone sets a hook invoked after every path, failed or not.
func WithOnPathDone(fn func(ctx context.Context, rec PathRecord, err error, dur time.Duration)) Option {
	return func(o *runnerOptions) { o.onPathDone = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *runnerOptions) { o.logger = logger }
}

// WithTracerProvider sets the tracer provider for path spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *runnerOptions) { o.tracer = tp }
}
