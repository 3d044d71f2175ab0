package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/goleak"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/augment"
	"github.com/skosovsky/toolsynth/fsp"
	"github.com/skosovsky/toolsynth/graph"
	"github.com/skosovsky/toolsynth/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"))
}

type utterFunc func(ctx context.Context, req UtteranceRequest) (string, error)

func (f utterFunc) Utterance(ctx context.Context, req UtteranceRequest) (string, error) {
	return f(ctx, req)
}

type argsFunc func(ctx context.Context, req ArgumentRequest) (Arguments, error)

func (f argsFunc) Arguments(ctx context.Context, req ArgumentRequest) (Arguments, error) {
	return f(ctx, req)
}

type simFunc func(ctx context.Context, req SimulationRequest) (map[string]any, error)

func (f simFunc) Simulate(ctx context.Context, req SimulationRequest) (map[string]any, error) {
	return f(ctx, req)
}

func defaultOracles() Oracles {
	return Oracles{
		Query: utterFunc(func(_ context.Context, req UtteranceRequest) (string, error) {
			names := make([]string, 0, len(req.Tools))
			for _, t := range req.Tools {
				names = append(names, t.Name())
			}
			return "please " + strings.Join(names, " and "), nil
		}),
		Arguments: argsFunc(func(_ context.Context, req ArgumentRequest) (Arguments, error) {
			args := Arguments{Values: map[string]any{}, Provenance: map[string]Provenance{}}
			for _, name := range req.Tool.RequiredInputs() {
				args.Values[name] = "/notes.txt"
				args.Provenance[name] = FromUtterance
			}
			return args, nil
		}),
		Simulator: simFunc(func(_ context.Context, req SimulationRequest) (map[string]any, error) {
			return map[string]any{"content": "guess from " + req.Tool.Name()}, nil
		}),
	}
}

func noAugment() Option {
	return WithAugmentOptions(
		augment.WithMergeProbability(0),
		augment.WithInsertProbability(0),
		augment.WithSplitProbability(0),
	)
}

func fileGraph(t *testing.T) *graph.Graph {
	t.Helper()
	write := testutil.Tool(t, "write_file", []string{"path"}, []string{"path"},
		toolsynth.WithClass(toolsynth.Action), toolsynth.WithTags("File Management"))
	read := testutil.Tool(t, "read_file", []string{"path"}, []string{"content"},
		toolsynth.WithClass(toolsynth.Query), toolsynth.WithTags("File Management"))
	count := testutil.Tool(t, "count_words", []string{"text"}, []string{"count"},
		toolsynth.WithClass(toolsynth.Computation), toolsynth.WithTags("File Management"))
	return testutil.NewTestGraph(t, []*toolsynth.ToolRecord{write, read, count},
		[2]string{"write_file", "read_file"}, [2]string{"read_file", "count_words"})
}

func quietLogger() Option { return WithLogger(slog.New(slog.DiscardHandler)) }

func TestRunner_ReadAfterWriteAcrossTurns(t *testing.T) {
	oracles := defaultOracles()
	oracles.Simulator = simFunc(func(_ context.Context, req SimulationRequest) (map[string]any, error) {
		if req.Tool.Name() == "write_file" {
			return map[string]any{"status": "ok", "content": "hello"}, nil
		}
		return map[string]any{"content": "oracle guess"}, nil
	})
	r := NewRunner(fileGraph(t), oracles, noAugment(), quietLogger())

	records, report, err := r.Run(context.Background(), []fsp.Path{fsp.New("write_file", "read_file")})
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 1, Succeeded: 1}, report)
	require.Len(t, records, 1)
	rec := records[0]
	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.SessionID)
	assert.False(t, rec.CreatedAt.IsZero())
	require.Len(t, rec.Turns, 2)

	assert.Equal(t, "please write_file", rec.Turns[0].Utterance)
	assert.Equal(t, fsp.StyleNormal, rec.Turns[0].Ops.Style)
	read := rec.Turns[1].Records[0]
	assert.Equal(t, "read_file", read.Tool)
	assert.Equal(t, map[string]any{"path": "/notes.txt"}, read.Arguments)
	assert.Equal(t, FromUtterance, read.Provenance["path"])
	assert.Equal(t, "hello", read.Output["content"])
	assert.Equal(t, 1, read.Attempts)
	assert.Equal(t, fsp.New("write_file", "read_file"), rec.Path())
}

func TestRunner_EmptyTurnGetsSentinel(t *testing.T) {
	var mu sync.Mutex
	var filled []string
	oracles := defaultOracles()
	base := oracles.Arguments
	oracles.Arguments = argsFunc(func(ctx context.Context, req ArgumentRequest) (Arguments, error) {
		mu.Lock()
		filled = append(filled, req.Tool.Name())
		mu.Unlock()
		return base.Arguments(ctx, req)
	})
	r := NewRunner(fileGraph(t), oracles, quietLogger(), WithAugmentOptions(
		augment.WithMergeProbability(0),
		augment.WithInsertProbability(0),
		augment.WithSplitProbability(1),
	))
	records, _, err := r.Run(context.Background(), []fsp.Path{fsp.New("write_file", "read_file")})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Len(t, records[0].Turns, 3)

	var sentinels int
	for _, turn := range records[0].Turns {
		if !turn.Ops.Empty {
			continue
		}
		sentinels++
		require.Len(t, turn.Records, 1)
		s := turn.Records[0]
		assert.True(t, s.Sentinel)
		assert.True(t, s.Miss.Valid())
		assert.Equal(t, SentinelText(s.Miss), s.Output["message"])
		assert.Empty(t, s.Tool)
	}
	assert.Equal(t, 1, sentinels)
	assert.Equal(t, []string{"write_file", "read_file"}, filled)
	assert.Len(t, records[0].Ledger.Splits, 1)
}

func TestRunner_RetriesInvalidArguments(t *testing.T) {
	var feedback []string
	oracles := defaultOracles()
	oracles.Arguments = argsFunc(func(_ context.Context, req ArgumentRequest) (Arguments, error) {
		feedback = append(feedback, req.Feedback)
		if req.Feedback == "" {
			return Arguments{Values: map[string]any{"wrong": 1}}, nil
		}
		return Arguments{Values: map[string]any{"path": "/ok"}}, nil
	})
	r := NewRunner(fileGraph(t), oracles, noAugment(), quietLogger())
	records, report, err := r.Run(context.Background(), []fsp.Path{fsp.New("write_file")})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	require.Len(t, feedback, 2)
	assert.Empty(t, feedback[0])
	assert.NotEmpty(t, feedback[1])
	assert.Equal(t, 2, records[0].Turns[0].Records[0].Attempts)
}

func TestRunner_UnresolvedTurns(t *testing.T) {
	failRead := func() Oracles {
		o := defaultOracles()
		o.Simulator = simFunc(func(_ context.Context, req SimulationRequest) (map[string]any, error) {
			if req.Tool.Name() == "read_file" {
				return nil, &toolsynth.OracleError{Op: "simulate", Reason: "timeout", Retryable: true}
			}
			return map[string]any{}, nil
		})
		return o
	}

	t.Run("within budget", func(t *testing.T) {
		r := NewRunner(fileGraph(t), failRead(), noAugment(), quietLogger())
		records, report, err := r.Run(context.Background(), []fsp.Path{fsp.New("write_file", "read_file")})
		require.NoError(t, err)
		assert.Equal(t, 1, report.Succeeded)
		turn := records[0].Turns[1]
		assert.Contains(t, turn.Unresolved, "read_file")
		assert.Empty(t, turn.Records)
	})

	t.Run("over budget", func(t *testing.T) {
		r := NewRunner(fileGraph(t), failRead(), noAugment(), quietLogger(), WithMaxUnresolvedTurns(0))
		records, report, err := r.Run(context.Background(), []fsp.Path{fsp.New("write_file", "read_file")})
		require.NoError(t, err)
		assert.Empty(t, records)
		require.Len(t, report.Failures, 1)
		f := report.Failures[0]
		assert.Equal(t, ReasonUnresolved, f.Reason)
		assert.Equal(t, []string{"write_file", "read_file"}, f.Tools)
		require.ErrorIs(t, f.Err, ErrUnresolved)
		assert.True(t, toolsynth.IsOracleError(f.Err))
	})

	t.Run("utterance failure", func(t *testing.T) {
		o := defaultOracles()
		o.Query = utterFunc(func(context.Context, UtteranceRequest) (string, error) {
			return "", &toolsynth.OracleError{Op: "utterance", Reason: "refused"}
		})
		r := NewRunner(fileGraph(t), o, noAugment(), quietLogger())
		records, _, err := r.Run(context.Background(), []fsp.Path{fsp.New("write_file")})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Contains(t, records[0].Turns[0].Unresolved, "utterance")
	})
}

func TestRunner_FailuresAreIsolated(t *testing.T) {
	oracles := defaultOracles()
	oracles.Simulator = simFunc(func(_ context.Context, req SimulationRequest) (map[string]any, error) {
		if req.Tool.Name() == "count_words" {
			panic("simulator bug")
		}
		return map[string]any{}, nil
	})
	r := NewRunner(fileGraph(t), oracles, noAugment(), quietLogger(), WithWorkers(2))
	paths := []fsp.Path{
		fsp.New("write_file", "read_file"),
		fsp.New("ghost_tool"),
		fsp.New("count_words"),
		fsp.New("read_file"),
	}
	records, report, err := r.Run(context.Background(), paths)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	require.Len(t, records, 2)
	assert.Equal(t, "write_file", records[0].Turns[0].Tools[0])
	assert.Equal(t, "read_file", records[1].Turns[0].Tools[0])

	require.Len(t, report.Failures, 2)
	assert.Equal(t, ReasonStructural, report.Failures[0].Reason)
	assert.Equal(t, []string{"ghost_tool"}, report.Failures[0].Tools)
	assert.NotEmpty(t, report.Failures[0].PathID)
	assert.Equal(t, ReasonPanic, report.Failures[1].Reason)
	assert.True(t, toolsynth.IsSystemError(report.Failures[1].Err))
}

func TestRunner_CrossTurnHelperSeesSource(t *testing.T) {
	g := fileGraph(t)
	r := NewRunner(g, defaultOracles(), quietLogger())
	p := fsp.Path{Turns: []fsp.Turn{
		{Tools: []string{"write_file"}},
		{Tools: []string{"read_file"}},
		{Tools: []string{"count_words"}},
	}}
	ledger := fsp.Ledger{Inserts: []fsp.InsertEntry{{Source: "write_file", Nested: "count_words", Dependency: fsp.Long}}}
	history := []TurnRecord{
		{Index: 0, Records: []ExecutionRecord{{Tool: "write_file", Output: map[string]any{"n": 1}}}},
		{Index: 1, Records: []ExecutionRecord{{Tool: "read_file"}}},
	}
	ops := fsp.Resolve(2, p.Turns[2], ledger)
	src := r.sourceRecords(p, ops, "count_words", history)
	require.Len(t, src, 1)
	assert.Equal(t, "write_file", src[0].Tool)
	assert.Empty(t, r.sourceRecords(p, ops, "read_file", history))
}

func TestRunner_HooksAndSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	var mu sync.Mutex
	started, finished := 0, 0
	r := NewRunner(fileGraph(t), defaultOracles(), noAugment(), quietLogger(),
		WithTracerProvider(tp),
		WithOnPathStart(func(context.Context, string, fsp.Path) {
			mu.Lock()
			started++
			mu.Unlock()
		}),
		WithOnPathDone(func(_ context.Context, _ PathRecord, _ error, dur time.Duration) {
			mu.Lock()
			finished++
			mu.Unlock()
			assert.GreaterOrEqual(t, dur, time.Duration(0))
		}),
	)
	_, _, err := r.Run(context.Background(), []fsp.Path{fsp.New("write_file"), fsp.New("missing")})
	require.NoError(t, err)
	assert.Equal(t, 2, started)
	assert.Equal(t, 2, finished)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	statuses := map[string]bool{}
	for _, s := range spans {
		assert.Equal(t, "pipeline.path", s.Name())
		for _, kv := range s.Attributes() {
			if kv.Key == "status" {
				statuses[kv.Value.AsString()] = true
			}
		}
	}
	assert.Equal(t, map[string]bool{"ok": true, ReasonStructural: true}, statuses)
}

func TestRunner_Shutdown(t *testing.T) {
	r := NewRunner(fileGraph(t), defaultOracles(), quietLogger())
	require.NoError(t, r.Shutdown(context.Background()))
	require.NoError(t, r.Shutdown(context.Background()))
	_, _, err := r.Run(context.Background(), []fsp.Path{fsp.New("write_file")})
	require.ErrorIs(t, err, ErrShutdown)
}

func TestRunner_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewRunner(fileGraph(t), defaultOracles(), quietLogger())
	records, report, err := r.Run(ctx, []fsp.Path{fsp.New("write_file"), fsp.New("read_file")})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 2, report.Failed)
	for _, f := range report.Failures {
		assert.Equal(t, ReasonCancelled, f.Reason)
	}
}

func TestReasonOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&toolsynth.StructuralError{Reason: "x"}, ReasonStructural},
		{ErrUnresolved, ReasonUnresolved},
		{context.Canceled, ReasonCancelled},
		{&toolsynth.OracleError{Op: "judge"}, ReasonOracle},
		{&toolsynth.SystemError{Err: &toolsynth.PanicError{Value: 1}}, ReasonPanic},
		{errors.New("disk"), ReasonInternal},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, reasonOf(tt.err))
		})
	}
}
