package toolsynth

import (
	"log/slog"
	"time"
)

// recordOptions hold optional ToolRecord settings.
type recordOptions struct {
	description string
	schema      map[string]any
	inputs      []Field
	outputs     []Field
	class       Class
	tags        []string
	domain      string
}

// RecordOption configures a ToolRecord built with NewToolRecord.
type RecordOption func(*recordOptions)

// WithDescription sets the tool description.
func WithDescription(desc string) RecordOption {
	return func(o *recordOptions) {
		o.description = desc
	}
}

// WithInputSchema sets the raw input JSON Schema. The map is copied, never mutated.
func WithInputSchema(schema map[string]any) RecordOption {
	return func(o *recordOptions) {
		o.schema = schema
	}
}

// WithInputs declares input fields. Ignored when WithInputSchema is also given.
func WithInputs(fields ...Field) RecordOption {
	return func(o *recordOptions) {
		o.inputs = fields
	}
}

// WithOutputs declares the (inferred) output fields.
func WithOutputs(fields ...Field) RecordOption {
	return func(o *recordOptions) {
		o.outputs = fields
	}
}

// WithClass sets the behavioral class.
func WithClass(c Class) RecordOption {
	return func(o *recordOptions) {
		o.class = c
	}
}

// WithTags sets tool tags. The first tag is the primary category.
func WithTags(tags ...string) RecordOption {
	return func(o *recordOptions) {
		o.tags = tags
	}
}

// WithDomain pins the tool to a sandbox domain, overriding category-based assignment.
func WithDomain(domain string) RecordOption {
	return func(o *recordOptions) {
		o.domain = domain
	}
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*normalizerOptions)

type normalizerOptions struct {
	concurrency int
	timeout     time.Duration
	maxExamples int
	logger      *slog.Logger
}

// WithConcurrency bounds concurrent oracle calls in NormalizeAll.
// Pass 0 or negative for unlimited concurrency.
func WithConcurrency(n int) NormalizerOption {
	return func(o *normalizerOptions) {
		o.concurrency = n
	}
}

// WithInferenceTimeout sets a per-tool timeout for the schema oracle call.
func WithInferenceTimeout(d time.Duration) NormalizerOption {
	return func(o *normalizerOptions) {
		o.timeout = d
	}
}

// WithMaxExamples caps the number of call examples sent to the schema oracle.
func WithMaxExamples(n int) NormalizerOption {
	return func(o *normalizerOptions) {
		o.maxExamples = n
	}
}

// WithLogger sets the logger used for fallbacks and rejections.
func WithLogger(logger *slog.Logger) NormalizerOption {
	return func(o *normalizerOptions) {
		o.logger = logger
	}
}
