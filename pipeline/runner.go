package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/augment"
	"github.com/skosovsky/toolsynth/fsp"
	"github.com/skosovsky/toolsynth/graph"
	"github.com/skosovsky/toolsynth/sandbox"
)

// Runner turns walked paths into executed trajectories. Paths run concurrently and share
// only read-only state; each has its own sandbox session and RNG.
type Runner struct {
	g         *graph.Graph
	oracles   Oracles
	augmenter *augment.Augmenter
	sandbox   *sandbox.Sandbox
	tracer    trace.Tracer
	sem       chan struct{}
	opts      runnerOptions
	done      chan struct{}
	running   sync.WaitGroup
	mu        sync.Mutex
}

// NewRunner creates a Runner over g. Every oracle in oracles must be set.
func NewRunner(g *graph.Graph, oracles Oracles, opts ...Option) *Runner {
	o := runnerOptions{
		workers:            4,
		argumentAttempts:   2,
		maxUnresolvedTurns: 1,
		seed:               42,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.tracer == nil {
		o.tracer = otel.GetTracerProvider()
	}
	if o.sandbox == nil {
		o.sandbox = sandbox.New(sandbox.WithLogger(o.logger))
	}
	if o.argumentAttempts < 1 {
		o.argumentAttempts = 1
	}
	var sem chan struct{}
	if o.workers > 0 {
		sem = make(chan struct{}, o.workers)
	}
	augOpts := append([]augment.Option{augment.WithLogger(o.logger)}, o.augment...)
	return &Runner{
		g:         g,
		oracles:   oracles,
		augmenter: augment.New(g, augOpts...),
		sandbox:   o.sandbox,
		tracer:    o.tracer.Tracer("toolsynth/pipeline"),
		sem:       sem,
		opts:      o,
		done:      make(chan struct{}),
	}
}

type outcome struct {
	rec PathRecord
	err error
}

// Run executes paths and returns the records of the successful ones in input order, plus a
// report listing every failure. A failing path never affects its siblings. The error is
// non-nil only when the runner is shut down.
func (r *Runner) Run(ctx context.Context, paths []fsp.Path) ([]PathRecord, Report, error) {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil, Report{}, ErrShutdown
	default:
	}
	r.running.Add(1)
	r.mu.Unlock()
	defer r.running.Done()

	results := make([]outcome, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		if err := r.acquireSemaphore(ctx); err != nil {
			results[i] = outcome{rec: PathRecord{ID: uuid.NewString()}, err: err}
			continue
		}
		wg.Go(func() {
			defer r.releaseSemaphore()
			rec, err := r.runPath(ctx, i, p)
			results[i] = outcome{rec: rec, err: err}
		})
	}
	wg.Wait()

	report := Report{Total: len(paths)}
	var records []PathRecord
	for i, res := range results {
		if res.err == nil {
			report.Succeeded++
			records = append(records, res.rec)
			continue
		}
		report.Failed++
		report.Failures = append(report.Failures, PathFailure{
			PathID: res.rec.ID,
			Tools:  paths[i].Tools(),
			Reason: reasonOf(res.err),
			Err:    res.err,
			Error:  res.err.Error(),
		})
	}
	r.opts.logger.InfoContext(ctx, "paths synthesized",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed)
	return records, report, nil
}

func (r *Runner) acquireSemaphore(ctx context.Context) error {
	if r.sem == nil {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) releaseSemaphore() {
	if r.sem != nil {
		<-r.sem
	}
}

// runPath augments, executes and records one path. The returned record always carries the
// path ID, even on failure.
func (r *Runner) runPath(ctx context.Context, index int, p fsp.Path) (rec PathRecord, err error) {
	rec.ID = uuid.NewString()
	ctx, span := r.tracer.Start(ctx, "pipeline.path", trace.WithAttributes(
		attribute.String("path.id", rec.ID),
		attribute.Int("path.turns", p.Len()),
	))
	defer span.End()

	start := time.Now()
	// Registered before the recover so it observes the recovered error.
	defer func() {
		dur := time.Since(start)
		pathDuration.Observe(dur.Seconds())
		status := "ok"
		if err != nil {
			status = reasonOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			r.opts.logger.WarnContext(ctx, "path failed", "path_id", rec.ID, "path", p.String(), "reason", status, "error", err)
		}
		span.SetAttributes(attribute.String("status", status))
		pathsTotal.WithLabelValues(status).Inc()
		if r.opts.onPathDone != nil {
			r.opts.onPathDone(ctx, rec, err, dur)
		}
	}()
	defer func() {
		if v := recover(); v != nil {
			err = &toolsynth.SystemError{Err: &toolsynth.PanicError{Value: v}}
		}
	}()

	if r.opts.onPathStart != nil {
		r.opts.onPathStart(ctx, rec.ID, p)
	}

	rng := rand.New(rand.NewPCG(r.opts.seed, uint64(index)))
	augmented, ledger, err := r.augmenter.Augment(p, rng)
	if err != nil {
		return rec, err
	}
	tools, err := r.lookup(augmented)
	if err != nil {
		return rec, err
	}

	session := r.sandbox.Open(uuid.NewString())
	defer session.Close()
	rec.SessionID = session.ID()
	rec.Ledger = ledger
	rec.CreatedAt = time.Now().UTC()

	unresolved := 0
	for i, ops := range fsp.ResolvePath(augmented, ledger) {
		if err := ctx.Err(); err != nil {
			return rec, err
		}
		tr, err := r.runTurn(ctx, session, augmented, ops, tools, rec)
		rec.Turns = append(rec.Turns, tr)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return rec, ctxErr
		}
		if !toolsynth.IsOracleError(err) && !toolsynth.IsClientError(err) {
			return rec, err
		}
		unresolved++
		if unresolved > r.opts.maxUnresolvedTurns {
			return rec, fmt.Errorf("%w: %d of %d turns (last at turn %d: %w)",
				ErrUnresolved, unresolved, augmented.Len(), i, err)
		}
	}
	return rec, nil
}

// lookup resolves every tool of p against the graph.
func (r *Runner) lookup(p fsp.Path) (map[string]*toolsynth.ToolRecord, error) {
	out := make(map[string]*toolsynth.ToolRecord)
	for _, name := range p.Tools() {
		t, ok := r.g.Tool(name)
		if !ok {
			return nil, &toolsynth.StructuralError{Reason: "path references a tool outside the graph", Tool: name, Err: toolsynth.ErrToolNotFound}
		}
		out[name] = t
	}
	return out, nil
}

// runTurn executes one turn. An oracle or argument failure leaves the turn unresolved with
// the records gathered so far and is returned so the caller can count it.
func (r *Runner) runTurn(
	ctx context.Context,
	session *sandbox.Session,
	p fsp.Path,
	ops fsp.TurnOps,
	tools map[string]*toolsynth.ToolRecord,
	rec PathRecord,
) (TurnRecord, error) {
	turn := p.Turns[ops.Index]
	tr := TurnRecord{Index: ops.Index, Tools: slices.Clone(turn.Tools), Ops: ops}
	req := UtteranceRequest{PathID: rec.ID, Ops: ops, History: rec.Turns}
	for _, name := range turn.Tools {
		req.Tools = append(req.Tools, tools[name])
	}
	utterance, err := r.oracles.Query.Utterance(ctx, req)

	if ops.Empty {
		if err != nil {
			r.opts.logger.WarnContext(ctx, "no utterance for empty turn", "path_id", rec.ID, "turn", ops.Index, "error", err)
		}
		tr.Utterance = utterance
		tr.Records = []ExecutionRecord{{
			Sentinel: true,
			Miss:     ops.Miss,
			Output:   map[string]any{"message": SentinelText(ops.Miss)},
		}}
		turnsTotal.WithLabelValues("empty").Inc()
		return tr, nil
	}
	if err != nil {
		tr.Unresolved = "utterance: " + err.Error()
		turnsTotal.WithLabelValues("unresolved").Inc()
		return tr, err
	}
	tr.Utterance = utterance

	prior := priorRecords(rec.Turns)
	for _, name := range turn.Tools {
		exec, err := r.execute(ctx, session, tools[name], ops, utterance,
			slices.Concat(prior, tr.Records), r.sourceRecords(p, ops, name, rec.Turns))
		if err != nil {
			tr.Unresolved = name + ": " + err.Error()
			turnsTotal.WithLabelValues("unresolved").Inc()
			return tr, err
		}
		tr.Records = append(tr.Records, exec)
	}
	turnsTotal.WithLabelValues("resolved").Inc()
	return tr, nil
}

// sourceRecords returns the records of the source tool feeding a cross-turn helper, taken
// from the nearest earlier turn that called it.
func (r *Runner) sourceRecords(p fsp.Path, ops fsp.TurnOps, tool string, history []TurnRecord) []ExecutionRecord {
	var out []ExecutionRecord
	for _, in := range ops.Inserts {
		if in.Dependency != fsp.Long || in.Nested != tool {
			continue
		}
		src, ok := fsp.SourceTurn(p, ops.Index, in.Source)
		if !ok || src >= len(history) {
			continue
		}
		for _, er := range history[src].Records {
			if er.Tool == in.Source {
				out = append(out, er)
			}
		}
	}
	return out
}

// execute fills, validates, simulates and applies one call.
func (r *Runner) execute(
	ctx context.Context,
	session *sandbox.Session,
	tool *toolsynth.ToolRecord,
	ops fsp.TurnOps,
	utterance string,
	prior, source []ExecutionRecord,
) (ExecutionRecord, error) {
	req := ArgumentRequest{
		Tool:      tool,
		Role:      ops.Roles[tool.Name()],
		Utterance: utterance,
		Prior:     prior,
		Source:    source,
	}
	var (
		args    Arguments
		invalid error
	)
	attempts := 0
	for attempts < r.opts.argumentAttempts {
		attempts++
		var err error
		args, err = r.oracles.Arguments.Arguments(ctx, req)
		if err != nil {
			return ExecutionRecord{}, err
		}
		invalid = toolsynth.ValidateArguments(tool, args.Values)
		if invalid == nil {
			break
		}
		req.Feedback = invalid.Error()
	}
	if invalid != nil {
		return ExecutionRecord{}, fmt.Errorf("arguments rejected after %d attempts: %w", attempts, invalid)
	}

	nominal, err := r.oracles.Simulator.Simulate(ctx, SimulationRequest{
		Tool:      tool,
		Arguments: args.Values,
		History:   prior,
	})
	if err != nil {
		return ExecutionRecord{}, err
	}
	output, err := session.Invoke(tool, args.Values, nominal)
	if err != nil {
		return ExecutionRecord{}, err
	}
	return ExecutionRecord{
		Tool:       tool.Name(),
		Arguments:  args.Values,
		Provenance: args.Provenance,
		Output:     output,
		Attempts:   attempts,
	}, nil
}

func priorRecords(turns []TurnRecord) []ExecutionRecord {
	var out []ExecutionRecord
	for _, t := range turns {
		out = append(out, t.Records...)
	}
	return out
}

// Shutdown stops accepting runs and waits for in-flight ones or ctx.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	select {
	case <-r.done:
		r.mu.Unlock()
		return nil
	default:
		close(r.done)
	}
	r.mu.Unlock()
	done := make(chan struct{})
	go func() {
		r.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
