package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/graph"
)

// Tool builds a ToolRecord with required string inputs and string outputs. Extra options
// are applied after the fields.
func Tool(tb testing.TB, name string, inputs, outputs []string, opts ...toolsynth.RecordOption) *toolsynth.ToolRecord {
	tb.Helper()
	in := make([]toolsynth.Field, 0, len(inputs))
	for _, n := range inputs {
		in = append(in, toolsynth.Field{Name: n, Type: "string", Required: true})
	}
	out := make([]toolsynth.Field, 0, len(outputs))
	for _, n := range outputs {
		out = append(out, toolsynth.Field{Name: n, Type: "string"})
	}
	all := append([]toolsynth.RecordOption{
		toolsynth.WithInputs(in...),
		toolsynth.WithOutputs(out...),
	}, opts...)
	rec, err := toolsynth.NewToolRecord(name, all...)
	require.NoError(tb, err)
	return rec
}

// NewTestCatalog returns a Catalog holding tools.
func NewTestCatalog(tb testing.TB, tools ...*toolsynth.ToolRecord) *toolsynth.Catalog {
	tb.Helper()
	c, err := toolsynth.NewCatalog(tools...)
	require.NoError(tb, err)
	return c
}

// NewTestGraph returns a Graph over tools with Full edges given as from->to pairs.
func NewTestGraph(tb testing.TB, tools []*toolsynth.ToolRecord, pairs ...[2]string) *graph.Graph {
	tb.Helper()
	edges := make([]graph.Edge, 0, len(pairs))
	for _, p := range pairs {
		edges = append(edges, graph.Edge{From: p[0], To: p[1], Kind: graph.Full})
	}
	g, err := graph.New(tools, edges)
	require.NoError(tb, err)
	return g
}
