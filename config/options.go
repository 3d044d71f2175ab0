package config

import (
	"log/slog"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/augment"
	"github.com/skosovsky/toolsynth/graph"
	"github.com/skosovsky/toolsynth/oracle"
	"github.com/skosovsky/toolsynth/pipeline"
	"github.com/skosovsky/toolsynth/sandbox"
	"github.com/skosovsky/toolsynth/walk"
)

// GuardOptions translates the oracle section.
func (c Config) GuardOptions(logger *slog.Logger) []oracle.Option {
	return []oracle.Option{
		oracle.WithAttemptTimeout(c.Oracle.Timeout),
		oracle.WithMaxAttempts(uint(c.Oracle.MaxAttempts)),
		oracle.WithRequestsPerSecond(c.Oracle.RequestsPerSecond, c.Oracle.Burst),
		oracle.WithLogger(logger),
	}
}

// NormalizerOptions translates the normalize section.
func (c Config) NormalizerOptions(logger *slog.Logger) []toolsynth.NormalizerOption {
	return []toolsynth.NormalizerOption{
		toolsynth.WithConcurrency(c.Normalize.Concurrency),
		toolsynth.WithInferenceTimeout(c.Normalize.Timeout),
		toolsynth.WithMaxExamples(c.Normalize.MaxExamples),
		toolsynth.WithLogger(logger),
	}
}

// GraphOptions translates the graph section. The field filter is supplied by the caller.
func (c Config) GraphOptions(logger *slog.Logger, filter graph.FieldFilter) []graph.Option {
	opts := []graph.Option{
		graph.WithMaxCandidates(c.Graph.MaxCandidates),
		graph.WithConcurrency(c.Graph.Concurrency),
		graph.WithSeed(c.Graph.Seed),
		graph.WithLogger(logger),
	}
	if filter != nil {
		opts = append(opts, graph.WithFieldFilter(filter))
	}
	return opts
}

// WalkOptions translates the walk section.
func (c Config) WalkOptions(logger *slog.Logger) []walk.Option {
	opts := []walk.Option{
		walk.WithMaxSteps(c.Walk.MaxSteps),
		walk.WithWalksPerNode(c.Walk.WalksPerNode),
		walk.WithSeed(c.Walk.Seed),
		walk.WithLogger(logger),
	}
	if c.Walk.TagAffinity > 0 {
		opts = append(opts, walk.WithScorer(walk.TagAffinity(c.Walk.TagAffinity)))
	}
	return opts
}

// SandboxOptions translates the sandbox section.
func (c Config) SandboxOptions(logger *slog.Logger) []sandbox.Option {
	opts := []sandbox.Option{sandbox.WithLogger(logger)}
	if len(c.Sandbox.Categories) > 0 {
		opts = append(opts, sandbox.WithCategories(c.Sandbox.Categories))
	}
	if len(c.Sandbox.IdentityArgs) > 0 {
		opts = append(opts, sandbox.WithIdentityArgs(c.Sandbox.IdentityArgs...))
	}
	if len(c.Sandbox.TransientFields) > 0 {
		opts = append(opts, sandbox.WithTransientFields(c.Sandbox.TransientFields...))
	}
	return opts
}

// RunnerOptions translates the augment, pipeline and sandbox sections.
func (c Config) RunnerOptions(logger *slog.Logger) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithWorkers(c.Pipeline.Workers),
		pipeline.WithArgumentAttempts(c.Pipeline.ArgumentAttempts),
		pipeline.WithMaxUnresolvedTurns(c.Pipeline.MaxUnresolvedTurns),
		pipeline.WithSeed(c.Pipeline.Seed),
		pipeline.WithSandbox(sandbox.New(c.SandboxOptions(logger)...)),
		pipeline.WithAugmentOptions(
			augment.WithMergeProbability(c.Augment.Merge),
			augment.WithInsertProbability(c.Augment.Insert),
			augment.WithLongProbability(c.Augment.Long),
			augment.WithSplitProbability(c.Augment.Split),
			augment.WithMaxSplits(c.Augment.MaxSplits),
		),
		pipeline.WithLogger(logger),
	}
}
