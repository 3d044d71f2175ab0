// Package testutil provides test helpers for toolsynth (fixture tools and oracle fakes).
package testutil

import (
	"context"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/graph"
)

// MockInferrer is a configurable toolsynth.SchemaInferrer.
type MockInferrer struct {
	InferFn func(ctx context.Context, req toolsynth.InferRequest) (toolsynth.Inference, error)
}

// Infer runs InferFn if set, otherwise classifies the tool by name and infers no outputs.
func (m *MockInferrer) Infer(ctx context.Context, req toolsynth.InferRequest) (toolsynth.Inference, error) {
	if m.InferFn != nil {
		return m.InferFn(ctx, req)
	}
	return toolsynth.Inference{Class: toolsynth.ClassifyByName(req.Name)}, nil
}

// MockJudge is a configurable graph.EdgeJudge.
type MockJudge struct {
	JudgeFn func(ctx context.Context, req graph.EdgeRequest) (graph.Judgment, error)
}

// Judge runs JudgeFn if set, otherwise returns Full when a source output name matches a
// target input name and None otherwise.
func (m *MockJudge) Judge(ctx context.Context, req graph.EdgeRequest) (graph.Judgment, error) {
	if m.JudgeFn != nil {
		return m.JudgeFn(ctx, req)
	}
	mapping := make(map[string]string)
	for _, out := range req.SourceOutputs {
		if _, ok := req.Target.Input(out.Name); ok {
			mapping[out.Name] = out.Name
		}
	}
	if len(mapping) == 0 {
		return graph.Judgment{Kind: graph.None}, nil
	}
	return graph.Judgment{Kind: graph.Full, Mapping: mapping, Justification: "name match"}, nil
}

// MockFieldFilter is a configurable graph.FieldFilter.
type MockFieldFilter struct {
	IdenticalFn func(ctx context.Context, tool *toolsynth.ToolRecord, outputs []toolsynth.Field) ([]string, error)
}

// IdenticalFields runs IdenticalFn if set, otherwise reports nothing identical.
func (m *MockFieldFilter) IdenticalFields(
	ctx context.Context,
	tool *toolsynth.ToolRecord,
	outputs []toolsynth.Field,
) ([]string, error) {
	if m.IdenticalFn != nil {
		return m.IdenticalFn(ctx, tool, outputs)
	}
	return nil, nil
}

var (
	_ toolsynth.SchemaInferrer = (*MockInferrer)(nil)
	_ graph.EdgeJudge          = (*MockJudge)(nil)
	_ graph.FieldFilter        = (*MockFieldFilter)(nil)
)
