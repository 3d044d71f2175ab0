package graph

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

type builderOptions struct {
	maxCandidates int
	seed          uint64
	concurrency   int
	filter        FieldFilter
	logger        *slog.Logger
	tracer        trace.TracerProvider
}

// Option configures a Builder.
type Option func(*builderOptions)

// WithMaxCandidates caps the candidate neighbors judged per source tool.
func WithMaxCandidates(n int) Option {
	return func(o *builderOptions) {
		o.maxCandidates = n
	}
}

// WithSeed sets the seed of the candidate sampler.
func WithSeed(seed uint64) Option {
	return func(o *builderOptions) {
		o.seed = seed
	}
}

// WithConcurrency bounds concurrent oracle calls. Pass 0 or negative for unlimited.
func WithConcurrency(n int) Option {
	return func(o *builderOptions) {
		o.concurrency = n
	}
}

// WithFieldFilter sets the oracle that flags output fields semantically identical to the
// tool's own inputs. Without it only name equality is filtered.
func WithFieldFilter(f FieldFilter) Option {
	return func(o *builderOptions) {
		o.filter = f
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *builderOptions) {
		o.logger = logger
	}
}

// WithTracerProvider sets the tracer provider. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *builderOptions) {
		o.tracer = tp
	}
}
