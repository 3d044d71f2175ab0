package oracle

import (
	"context"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/graph"
	"github.com/skosovsky/toolsynth/pipeline"
)

// Operation names used for metrics and logs.
const (
	OpInfer     = "infer"
	OpJudge     = "judge"
	OpFilter    = "filter"
	OpUtterance = "utterance"
	OpArguments = "arguments"
	OpSimulate  = "simulate"
)

// Backend is a model that offers every oracle capability.
type Backend interface {
	toolsynth.SchemaInferrer
	graph.EdgeJudge
	graph.FieldFilter
	pipeline.QueryGenerator
	pipeline.ArgumentFiller
	pipeline.Simulator
}

// Guarded routes every call of a Backend through a Guard.
type Guarded struct {
	backend Backend
	guard   *Guard
}

// NewGuarded wraps backend.
func NewGuarded(backend Backend, guard *Guard) *Guarded {
	return &Guarded{backend: backend, guard: guard}
}

// Oracles returns the pipeline view of g.
func (g *Guarded) Oracles() pipeline.Oracles {
	return pipeline.Oracles{Query: g, Arguments: g, Simulator: g}
}

func (g *Guarded) Infer(ctx context.Context, req toolsynth.InferRequest) (toolsynth.Inference, error) {
	return Call(ctx, g.guard, OpInfer, func(ctx context.Context) (toolsynth.Inference, error) {
		return g.backend.Infer(ctx, req)
	})
}

func (g *Guarded) Judge(ctx context.Context, req graph.EdgeRequest) (graph.Judgment, error) {
	return Call(ctx, g.guard, OpJudge, func(ctx context.Context) (graph.Judgment, error) {
		return g.backend.Judge(ctx, req)
	})
}

func (g *Guarded) IdenticalFields(ctx context.Context, tool *toolsynth.ToolRecord, outputs []toolsynth.Field) ([]string, error) {
	return Call(ctx, g.guard, OpFilter, func(ctx context.Context) ([]string, error) {
		return g.backend.IdenticalFields(ctx, tool, outputs)
	})
}

func (g *Guarded) Utterance(ctx context.Context, req pipeline.UtteranceRequest) (string, error) {
	return Call(ctx, g.guard, OpUtterance, func(ctx context.Context) (string, error) {
		return g.backend.Utterance(ctx, req)
	})
}

func (g *Guarded) Arguments(ctx context.Context, req pipeline.ArgumentRequest) (pipeline.Arguments, error) {
	return Call(ctx, g.guard, OpArguments, func(ctx context.Context) (pipeline.Arguments, error) {
		return g.backend.Arguments(ctx, req)
	})
}

func (g *Guarded) Simulate(ctx context.Context, req pipeline.SimulationRequest) (map[string]any, error) {
	return Call(ctx, g.guard, OpSimulate, func(ctx context.Context) (map[string]any, error) {
		return g.backend.Simulate(ctx, req)
	})
}

var _ Backend = (*Guarded)(nil)
