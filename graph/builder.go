package graph

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/skosovsky/toolsynth"
)

// EdgeRequest asks whether Target depends on Source. SourceOutputs holds only the source's
// informative outputs (pass-through fields removed).
type EdgeRequest struct {
	Source        *toolsynth.ToolRecord
	Target        *toolsynth.ToolRecord
	SourceOutputs []toolsynth.Field
}

// Judgment is the edge oracle's verdict.
type Judgment struct {
	Kind          Kind
	Justification string
	Mapping       map[string]string
}

// EdgeJudge classifies the dependency between two tools. Implementations must be safe for
// concurrent use.
type EdgeJudge interface {
	Judge(ctx context.Context, req EdgeRequest) (Judgment, error)
}

// FieldFilter names the output fields of tool that merely restate one of its inputs.
type FieldFilter interface {
	IdenticalFields(ctx context.Context, tool *toolsynth.ToolRecord, outputs []toolsynth.Field) ([]string, error)
}

// BuildStats summarizes a build.
type BuildStats struct {
	Tools          int
	Candidates     int
	Filtered       int
	Judged         int
	JudgeFailures  int
	FilterFailures int
	Edges          int
	ByKind         map[Kind]int
	Duration       time.Duration
}

// Builder constructs dependency graphs. A Builder is safe for concurrent use.
type Builder struct {
	judge EdgeJudge
	opts  builderOptions
}

// NewBuilder creates a Builder that consults judge for every surviving candidate pair.
func NewBuilder(judge EdgeJudge, opts ...Option) *Builder {
	o := builderOptions{
		maxCandidates: 30,
		seed:          42,
		concurrency:   8,
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
	return &Builder{judge: judge, opts: o}
}

// Fingerprint describes the builder settings that change which graph a catalog yields.
// Snapshot stores use it to avoid serving a graph built under other settings.
func (b *Builder) Fingerprint() string {
	return fmt.Sprintf("max_candidates=%d;seed=%d;field_filter=%t",
		b.opts.maxCandidates, b.opts.seed, b.opts.filter != nil)
}

type pair struct {
	source, target *toolsynth.ToolRecord
	outputs        []toolsynth.Field
}

// Build judges candidate pairs among tools and returns the resulting graph. Oracle failures
// become None edges; only context cancellation aborts the build.
func (b *Builder) Build(ctx context.Context, tools []*toolsynth.ToolRecord) (*Graph, BuildStats, error) {
	start := time.Now()
	ctx, span := b.opts.tracer.Tracer("toolsynth/graph").Start(ctx, "graph.Build",
		trace.WithAttributes(attribute.Int("graph.tools", len(tools))))
	defer span.End()

	sorted := slices.Clone(tools)
	slices.SortFunc(sorted, func(a, c *toolsynth.ToolRecord) int { return strings.Compare(a.Name(), c.Name()) })
	stats := BuildStats{Tools: len(sorted), ByKind: make(map[Kind]int)}

	informative, filterFailures, err := b.informativeOutputs(ctx, sorted)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, stats, err
	}
	stats.FilterFailures = filterFailures

	rng := rand.New(rand.NewPCG(b.opts.seed, b.opts.seed))
	var pairs []pair
	for i, src := range sorted {
		for _, cand := range b.candidates(rng, src, sorted) {
			stats.Candidates++
			if trivialPair(informative[i], cand) {
				stats.Filtered++
				continue
			}
			pairs = append(pairs, pair{source: src, target: cand, outputs: informative[i]})
		}
	}
	candidatePairsTotal.WithLabelValues("filtered").Add(float64(stats.Filtered))
	candidatePairsTotal.WithLabelValues("judged").Add(float64(len(pairs)))

	judgments, failures, err := b.judgeAll(ctx, pairs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, stats, err
	}
	stats.Judged = len(pairs)
	stats.JudgeFailures = failures

	var edges []Edge
	for i, p := range pairs {
		j := judgments[i]
		if j.Kind == None || p.source.Name() == p.target.Name() {
			continue
		}
		edges = append(edges, Edge{
			From:          p.source.Name(),
			To:            p.target.Name(),
			Kind:          j.Kind,
			Justification: j.Justification,
			Mapping:       j.Mapping,
		})
	}
	g, err := New(sorted, edges)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, stats, err
	}
	stats.ByKind = g.CountByKind()
	stats.Edges = g.EdgeCount()
	for kind, n := range stats.ByKind {
		edgesTotal.WithLabelValues(kind.String()).Add(float64(n))
	}
	stats.Duration = time.Since(start)
	buildDurationSeconds.Observe(stats.Duration.Seconds())
	span.SetAttributes(
		attribute.Int("graph.edges", stats.Edges),
		attribute.Int("graph.judge_failures", stats.JudgeFailures),
	)
	b.opts.logger.Info("dependency graph built",
		"tools", stats.Tools,
		"candidates", stats.Candidates,
		"filtered", stats.Filtered,
		"edges", stats.Edges,
		"judge_failures", stats.JudgeFailures,
		"duration", stats.Duration)
	return g, stats, nil
}

// candidates returns up to maxCandidates tools sharing a tag with src, sorted by name.
func (b *Builder) candidates(rng *rand.Rand, src *toolsynth.ToolRecord, all []*toolsynth.ToolRecord) []*toolsynth.ToolRecord {
	var out []*toolsynth.ToolRecord
	for _, t := range all {
		if t.Name() != src.Name() && src.SharesTag(t) {
			out = append(out, t)
		}
	}
	if b.opts.maxCandidates > 0 && len(out) > b.opts.maxCandidates {
		rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
		out = out[:b.opts.maxCandidates]
		slices.SortFunc(out, func(a, c *toolsynth.ToolRecord) int { return strings.Compare(a.Name(), c.Name()) })
	}
	return out
}

// informativeOutputs strips each tool's pass-through outputs: fields named like one of its
// own inputs, then fields the FieldFilter flags as restating an input.
func (b *Builder) informativeOutputs(ctx context.Context, tools []*toolsynth.ToolRecord) ([][]toolsynth.Field, int, error) {
	out := make([][]toolsynth.Field, len(tools))
	var failures atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	if b.opts.concurrency > 0 {
		g.SetLimit(b.opts.concurrency)
	}
	for i, t := range tools {
		inputs := make(map[string]bool)
		for _, f := range t.Inputs() {
			inputs[strings.ToLower(f.Name)] = true
		}
		var kept []toolsynth.Field
		for _, f := range t.Outputs() {
			if !inputs[strings.ToLower(f.Name)] {
				kept = append(kept, f)
			}
		}
		out[i] = kept
		if b.opts.filter == nil || len(kept) == 0 {
			continue
		}
		g.Go(func() error {
			identical, err := b.opts.filter.IdenticalFields(gctx, t, kept)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failures.Add(1)
				oracleFallbacksTotal.WithLabelValues("field_filter").Inc()
				b.opts.logger.Warn("field filter failed, keeping name-filtered outputs",
					"tool", t.Name(), "error", err)
				return nil
			}
			out[i] = slices.DeleteFunc(slices.Clone(kept), func(f toolsynth.Field) bool {
				return slices.ContainsFunc(identical, func(s string) bool { return strings.EqualFold(s, f.Name) })
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return out, int(failures.Load()), nil
}

// trivialPair reports whether one of the source's informative outputs has the same name as
// one of the target's inputs.
func trivialPair(outputs []toolsynth.Field, target *toolsynth.ToolRecord) bool {
	for _, in := range target.Inputs() {
		for _, out := range outputs {
			if strings.EqualFold(in.Name, out.Name) {
				return true
			}
		}
	}
	return false
}

func (b *Builder) judgeAll(ctx context.Context, pairs []pair) ([]Judgment, int, error) {
	judgments := make([]Judgment, len(pairs))
	var failures atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	if b.opts.concurrency > 0 {
		g.SetLimit(b.opts.concurrency)
	}
	for i, p := range pairs {
		g.Go(func() error {
			j, err := b.judge.Judge(gctx, EdgeRequest{Source: p.source, Target: p.target, SourceOutputs: p.outputs})
			if err == nil && (j.Kind < None || j.Kind > Prerequisite) {
				err = &toolsynth.OracleError{Op: "judge_edge", Reason: "verdict out of range: " + j.Kind.String()}
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				failures.Add(1)
				oracleFallbacksTotal.WithLabelValues("judge_edge").Inc()
				b.opts.logger.Debug("edge judgment failed, treating as none",
					"source", p.source.Name(), "target", p.target.Name(), "error", err)
				return nil
			}
			judgments[i] = j
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return judgments, int(failures.Load()), nil
}
