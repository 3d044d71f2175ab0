package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolsynth"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"))
}

func tool(t *testing.T, name string, inputs, outputs []string, tags ...string) *toolsynth.ToolRecord {
	t.Helper()
	var in, out []toolsynth.Field
	for _, n := range inputs {
		in = append(in, toolsynth.Field{Name: n, Type: "string", Required: true})
	}
	for _, n := range outputs {
		out = append(out, toolsynth.Field{Name: n, Type: "string"})
	}
	rec, err := toolsynth.NewToolRecord(name,
		toolsynth.WithInputs(in...),
		toolsynth.WithOutputs(out...),
		toolsynth.WithTags(tags...),
	)
	require.NoError(t, err)
	return rec
}

func TestKind_ParseAndString(t *testing.T) {
	for _, k := range []Kind{None, Full, Partial, Prerequisite} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	_, err := ParseKind("strong")
	require.Error(t, err)
	assert.True(t, Full.IsData())
	assert.True(t, Partial.IsData())
	assert.False(t, Prerequisite.IsData())

	var k Kind
	require.NoError(t, k.UnmarshalText([]byte("PARTIAL")))
	assert.Equal(t, Partial, k)
}

func TestNew_Validation(t *testing.T) {
	a := tool(t, "a", nil, nil)
	b := tool(t, "b", nil, nil)
	tests := []struct {
		name  string
		tools []*toolsynth.ToolRecord
		edges []Edge
	}{
		{"self-loop", []*toolsynth.ToolRecord{a, b}, []Edge{{From: "a", To: "a", Kind: Full}}},
		{"none edge", []*toolsynth.ToolRecord{a, b}, []Edge{{From: "a", To: "b", Kind: None}}},
		{"unknown source", []*toolsynth.ToolRecord{a, b}, []Edge{{From: "x", To: "b", Kind: Full}}},
		{"unknown target", []*toolsynth.ToolRecord{a, b}, []Edge{{From: "a", To: "x", Kind: Full}}},
		{"duplicate tool", []*toolsynth.ToolRecord{a, a}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.tools, tt.edges)
			require.Error(t, err)
		})
	}
}

func TestGraph_Queries(t *testing.T) {
	a, b, c := tool(t, "a", nil, nil), tool(t, "b", nil, nil), tool(t, "c", nil, nil)
	g, err := New([]*toolsynth.ToolRecord{c, a, b}, []Edge{
		{From: "a", To: "c", Kind: Partial, Mapping: map[string]string{"x": "y"}},
		{From: "a", To: "b", Kind: Full},
		{From: "a", To: "b", Kind: Prerequisite},
		{From: "b", To: "a", Kind: Prerequisite},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, g.Nodes())
	assert.Equal(t, 3, g.Len())
	assert.Equal(t, 3, g.EdgeCount(), "duplicate pair keeps first edge")

	succ := g.Successors("a")
	require.Len(t, succ, 2)
	assert.Equal(t, "b", succ[0].To)
	assert.Equal(t, Full, succ[0].Kind)
	assert.Len(t, g.Successors("b", DataKinds...), 0)
	assert.Len(t, g.Successors("b"), 1)
	assert.Empty(t, g.Successors("c"))

	assert.True(t, g.HasEdge("b", "a"), "cycles are allowed")
	e, ok := g.Edge("a", "c")
	require.True(t, ok)
	e.Mapping["x"] = "mutated"
	e2, _ := g.Edge("a", "c")
	assert.Equal(t, "y", e2.Mapping["x"])

	assert.Equal(t, map[Kind]int{Full: 1, Partial: 1, Prerequisite: 1}, g.CountByKind())
	rec, ok := g.Tool("b")
	require.True(t, ok)
	assert.Same(t, b, rec)
	assert.Len(t, g.Tools(), 3)
}

func TestSnapshot_RoundTripThroughCatalog(t *testing.T) {
	a, b := tool(t, "a", nil, nil), tool(t, "b", nil, nil)
	g, err := New([]*toolsynth.ToolRecord{a, b}, []Edge{{From: "a", To: "b", Kind: Full, Justification: "id flows"}})
	require.NoError(t, err)
	catalog, err := toolsynth.NewCatalog(a, b)
	require.NoError(t, err)

	g2, err := FromSnapshot(catalog, g.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, g.Edges(), g2.Edges())

	small, err := toolsynth.NewCatalog(a)
	require.NoError(t, err)
	_, err = FromSnapshot(small, g.Snapshot())
	require.ErrorIs(t, err, toolsynth.ErrToolNotFound)
}
