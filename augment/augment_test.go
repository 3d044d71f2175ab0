package augment

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/fsp"
	"github.com/skosovsky/toolsynth/graph"
	"github.com/skosovsky/toolsynth/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"))
}

func newRand(seed uint64) *rand.Rand { return rand.New(rand.NewPCG(seed, seed)) }

// fiveTurns returns t0..t4 with a single helper h fed by t2.
func fiveTurns(t *testing.T) (*graph.Graph, fsp.Path) {
	t.Helper()
	tools := []*toolsynth.ToolRecord{
		testutil.Tool(t, "t0", nil, []string{"a"}),
		testutil.Tool(t, "t1", []string{"a"}, []string{"b"}),
		testutil.Tool(t, "t2", []string{"b"}, []string{"c"}),
		testutil.Tool(t, "t3", []string{"c"}, []string{"d"}),
		testutil.Tool(t, "t4", []string{"d"}, nil),
		testutil.Tool(t, "h", []string{"c"}, nil),
	}
	g := testutil.NewTestGraph(t, tools,
		[2]string{"t0", "t1"}, [2]string{"t1", "t2"}, [2]string{"t2", "t3"}, [2]string{"t3", "t4"},
		[2]string{"t2", "h"})
	return g, fsp.New("t0", "t1", "t2", "t3", "t4")
}

func TestIdentityResolutionSurvivesSplit(t *testing.T) {
	g, p := fiveTurns(t)
	inserted, entries := Insert(p, g, newRand(1), InsertOptions{Probability: 1})
	require.Len(t, entries, 1)
	assert.Equal(t, fsp.InsertEntry{Source: "t2", Nested: "h", Dependency: fsp.Short, SourcePosition: 2, TargetPosition: 2}, entries[0])
	ledger := fsp.Ledger{Inserts: entries}

	before := fsp.Resolve(2, inserted.Turns[2], ledger)
	require.Len(t, before.Inserts, 1)

	split, entry, err := SplitAt(inserted, 0, fsp.MissFunction)
	require.NoError(t, err)
	ledger.Splits = append(ledger.Splits, entry)
	require.NoError(t, ledger.Validate(split))
	require.Equal(t, 6, split.Len())

	at3 := fsp.Resolve(3, split.Turns[3], ledger)
	assert.Equal(t, before.Inserts, at3.Inserts)
	assert.Equal(t, fsp.RoleImplicit, at3.Roles["h"])
	assert.Equal(t, fsp.StyleInsertShort, at3.Style)

	at2 := fsp.Resolve(2, split.Turns[2], ledger)
	assert.Empty(t, at2.Inserts)
	assert.Equal(t, fsp.StyleNormal, at2.Style)

	// the stored position is stale and untouched
	assert.Equal(t, 2, ledger.Inserts[0].TargetPosition)
}

func TestSplitProducesEmptyTurn(t *testing.T) {
	p := fsp.New("a", "b", "c")
	for seed := range uint64(20) {
		out, entries := Split(p, newRand(seed), 1, 1)
		require.Len(t, entries, 1)
		require.Equal(t, 4, out.Len())
		empty := out.EmptyTurns()
		require.Len(t, empty, 1)
		assert.True(t, out.Turns[empty[0]].Miss.Valid())
		assert.Equal(t, empty[0], entries[0].Position)
		assert.GreaterOrEqual(t, entries[0].Position, 1)
		assert.Equal(t, []string{"a", "b", "c"}, out.Tools())
	}
	assert.Equal(t, 3, p.Len(), "input path must not change")
}

func TestSplit_SingleTurnUntouched(t *testing.T) {
	out, entries := Split(fsp.New("a"), newRand(1), 1, 3)
	assert.Empty(t, entries)
	assert.Equal(t, 1, out.Len())
}

func TestSplitAt_Errors(t *testing.T) {
	p := fsp.New("a", "b")
	_, _, err := SplitAt(p, 3, fsp.MissFunction)
	require.Error(t, err)
	_, _, err = SplitAt(p, -1, fsp.MissFunction)
	require.Error(t, err)
	_, _, err = SplitAt(p, 1, "bogus")
	require.Error(t, err)

	out, entry, err := SplitAt(p, 2, fsp.MissParameters)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Position)
	assert.True(t, out.Turns[2].Empty())
}

func TestMerge(t *testing.T) {
	p := fsp.New("a", "b", "c", "d")

	out, entries := Merge(p, newRand(1), 1)
	want := fsp.Path{Turns: []fsp.Turn{{Tools: []string{"a", "b"}}, {Tools: []string{"c", "d"}}}}
	if diff := cmp.Diff(want, out); diff != "" {
		t.Fatalf("merged path mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []fsp.MergeEntry{
		{Tools: []string{"a", "b"}, Position: 0},
		{Tools: []string{"c", "d"}, Position: 1},
	}, entries)

	out, entries = Merge(p, newRand(1), 0)
	assert.Equal(t, p, out)
	assert.Empty(t, entries)
}

func TestMergeContainment(t *testing.T) {
	_, entries := Merge(fsp.New("a", "b", "c"), newRand(1), 1)
	require.Len(t, entries, 1)
	ledger := fsp.Ledger{Merges: entries}

	tests := []struct {
		name  string
		tools []string
		want  bool
	}{
		{"exact set", []string{"a", "b"}, true},
		{"superset", []string{"a", "b", "x"}, true},
		{"partial overlap", []string{"a", "c"}, false},
		{"single member", []string{"b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := fsp.Resolve(0, fsp.Turn{Tools: tt.tools}, ledger)
			assert.Equal(t, tt.want, ops.Merge != nil)
		})
	}
}

func TestInsert_Long(t *testing.T) {
	g, p := fiveTurns(t)
	out, entries := Insert(p, g, newRand(3), InsertOptions{Probability: 1, LongProbability: 1})
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, fsp.Long, e.Dependency)
	assert.Equal(t, 2, e.SourcePosition)
	assert.Greater(t, e.TargetPosition, 2)
	assert.True(t, out.Turns[e.TargetPosition].Contains("h"))
	require.NoError(t, fsp.Ledger{Inserts: entries}.Validate(out))

	src, ok := fsp.SourceTurn(out, e.TargetPosition, "t2")
	require.True(t, ok)
	assert.Equal(t, 2, src)
}

func TestInsert_LastTurnIsAlwaysShort(t *testing.T) {
	a := testutil.Tool(t, "a", nil, []string{"x"})
	h := testutil.Tool(t, "h", []string{"x"}, nil)
	g := testutil.NewTestGraph(t, []*toolsynth.ToolRecord{a, h}, [2]string{"a", "h"})
	out, entries := Insert(fsp.New("a"), g, newRand(1), InsertOptions{Probability: 1, LongProbability: 1})
	require.Len(t, entries, 1)
	assert.Equal(t, fsp.Short, entries[0].Dependency)
	assert.Equal(t, []string{"a", "h"}, out.Turns[0].Tools)
}

func TestInsert_SkipsToolsInPathAndPrerequisites(t *testing.T) {
	a := testutil.Tool(t, "a", nil, []string{"x"})
	b := testutil.Tool(t, "b", []string{"x"}, nil)
	pre := testutil.Tool(t, "pre", nil, nil)
	g, err := graph.New([]*toolsynth.ToolRecord{a, b, pre}, []graph.Edge{
		{From: "a", To: "b", Kind: graph.Full},
		{From: "a", To: "pre", Kind: graph.Prerequisite},
	})
	require.NoError(t, err)
	out, entries := Insert(fsp.New("a", "b"), g, newRand(1), InsertOptions{Probability: 1})
	assert.Empty(t, entries)
	assert.Equal(t, fsp.New("a", "b"), out)
}

func TestFeedsRequiredInput(t *testing.T) {
	n := testutil.Tool(t, "n", []string{"id"}, nil)
	assert.True(t, FeedsRequiredInput(graph.Edge{}, n))
	assert.True(t, FeedsRequiredInput(graph.Edge{Mapping: map[string]string{"id": "user_id"}}, n))
	assert.False(t, FeedsRequiredInput(graph.Edge{Mapping: map[string]string{"other": "user_id"}}, n))
}

func TestAugment_LedgerAlwaysValid(t *testing.T) {
	g, p := fiveTurns(t)
	a := New(g,
		WithMergeProbability(0.5),
		WithInsertProbability(1),
		WithLongProbability(0.5),
		WithSplitProbability(1),
		WithMaxSplits(2),
	)
	for seed := range uint64(50) {
		out, ledger, err := a.Augment(p, newRand(seed))
		require.NoError(t, err, "seed %d", seed)
		require.NoError(t, ledger.Validate(out))
		assert.Len(t, out.EmptyTurns(), len(ledger.Splits))
		for i, ops := range fsp.ResolvePath(out, ledger) {
			assert.Equal(t, out.Turns[i].Empty(), ops.Empty)
		}
	}
}

func TestAugment_Deterministic(t *testing.T) {
	g, p := fiveTurns(t)
	a := New(g)
	p1, l1, err := a.Augment(p, newRand(9))
	require.NoError(t, err)
	p2, l2, err := a.Augment(p, newRand(9))
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, l1, l2)
}
