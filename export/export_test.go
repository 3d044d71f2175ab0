package export

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolsynth/fsp"
	"github.com/skosovsky/toolsynth/pipeline"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func sample(id string, created time.Time) pipeline.PathRecord {
	p := fsp.Path{Turns: []fsp.Turn{{Tools: []string{"write_file", "read_file"}}, {Miss: fsp.MissFunction}}}
	ledger := fsp.Ledger{
		Inserts: []fsp.InsertEntry{{Source: "write_file", Nested: "read_file", Dependency: fsp.Short}},
		Splits:  []fsp.SplitEntry{{Position: 1, Miss: fsp.MissFunction}},
	}
	ops := fsp.ResolvePath(p, ledger)
	return pipeline.PathRecord{
		ID:        id,
		SessionID: "session-" + id,
		Ledger:    ledger,
		CreatedAt: created,
		Turns: []pipeline.TurnRecord{
			{
				Index: 0, Tools: p.Turns[0].Tools, Ops: ops[0], Utterance: "save and show notes",
				Records: []pipeline.ExecutionRecord{
					{Tool: "write_file", Arguments: map[string]any{"path": "/n"}, Output: map[string]any{"status": "ok"}, Attempts: 1},
					{Tool: "read_file", Arguments: map[string]any{"path": "/n"}, Output: map[string]any{"content": "hi"}, Attempts: 1},
				},
			},
			{
				Index: 1, Tools: nil, Ops: ops[1], Utterance: "book me a flight",
				Records: []pipeline.ExecutionRecord{{Sentinel: true, Miss: fsp.MissFunction, Output: map[string]any{"message": pipeline.MissingFunctionText}}},
			},
		},
	}
}

func TestJSONL_WriteRead(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONLWriter(&buf)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := []pipeline.PathRecord{sample("a", created), sample("b", created)}
	require.NoError(t, w.Write(context.Background(), in))
	assert.Equal(t, 2, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), `"is_split_empty":true`)

	out, err := ReadJSONL(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONL_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewJSONLWriter(&bytes.Buffer{}).Write(ctx, []pipeline.PathRecord{sample("a", time.Now())})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReadJSONL_Malformed(t *testing.T) {
	_, err := ReadJSONL(strings.NewReader("{\"id\":\"a\"}\nnot json\n"))
	require.Error(t, err)
}

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "paths.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_WriteGetList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Write(ctx, []pipeline.PathRecord{sample("b", t0.Add(time.Minute)), sample("a", t0)}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	if diff := cmp.Diff(sample("a", t0), got); diff != "" {
		t.Fatalf("record mismatch (-want +got):\n%s", diff)
	}

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, []string{"write_file", "read_file"}, list[0].Tools)
	assert.Equal(t, 2, list[0].Turns)
	assert.True(t, t0.Equal(list[0].CreatedAt))

	list, err = s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSQLite_UpsertAndMissing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	rec := sample("a", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, s.Write(ctx, []pipeline.PathRecord{rec}))
	rec.Turns[0].Unresolved = "read_file: oracle simulate: timeout"
	require.NoError(t, s.Write(ctx, []pipeline.PathRecord{rec}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, list[0].Unresolved)

	_, err = s.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrPathNotFound)
}
