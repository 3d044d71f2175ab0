// Package walk turns a dependency graph into initial function signature paths by bounded
// random walks.
package walk

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/fsp"
	"github.com/skosovsky/toolsynth/graph"
)

var walksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "toolsynth",
	Subsystem: "walk",
	Name:      "walks_total",
	Help:      "Random walks by outcome",
}, []string{"outcome"})

// Stats summarizes one Walk call.
type Stats struct {
	Walks int
	// DeadEnds counts walks that stopped early because the current tool had no unvisited
	// outgoing neighbor.
	DeadEnds   int
	Duplicates int
	Paths      int
}

type options struct {
	maxSteps     int
	walksPerNode int
	seed         uint64
	scorer       NeighborScorer
	kinds        []graph.Kind
	logger       *slog.Logger
}

// Option configures a Walker.
type Option func(*options)

// WithMaxSteps bounds the number of edges a walk follows; a path has at most steps+1 tools.
func WithMaxSteps(steps int) Option {
	return func(o *options) { o.maxSteps = steps }
}

// WithWalksPerNode sets how many walks start from each start node.
func WithWalksPerNode(n int) Option {
	return func(o *options) { o.walksPerNode = n }
}

// WithSeed sets the RNG seed.
func WithSeed(seed uint64) Option {
	return func(o *options) { o.seed = seed }
}

// WithScorer sets the neighbor scoring function. Defaults to Uniform.
func WithScorer(s NeighborScorer) Option {
	return func(o *options) { o.scorer = s }
}

// WithKinds sets the edge kinds a walk may follow. Defaults to graph.DataKinds.
func WithKinds(kinds ...graph.Kind) Option {
	return func(o *options) { o.kinds = kinds }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Walker performs bounded random walks. It never mutates the graph.
type Walker struct {
	opts options
}

// New creates a Walker.
func New(opts ...Option) *Walker {
	o := options{
		maxSteps:     4,
		walksPerNode: 3,
		seed:         42,
		scorer:       Uniform,
		kinds:        graph.DataKinds,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.walksPerNode < 1 {
		o.walksPerNode = 1
	}
	if o.maxSteps < 0 {
		o.maxSteps = 0
	}
	return &Walker{opts: o}
}

// Walk runs WalksPerNode walks from every start (all nodes when starts is empty) and returns
// the distinct resulting paths in discovery order, one tool per turn. Unknown starts are
// skipped. A tool never appears twice in one walk.
func (w *Walker) Walk(ctx context.Context, g *graph.Graph, starts []string) ([]fsp.Path, Stats, error) {
	if len(starts) == 0 {
		starts = g.Nodes()
	}
	rng := rand.New(rand.NewPCG(w.opts.seed, w.opts.seed^0x9e3779b97f4a7c15))
	seen := make(map[string]bool)
	var (
		paths []fsp.Path
		stats Stats
	)
	for _, start := range starts {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}
		if _, ok := g.Tool(start); !ok {
			w.opts.logger.Warn("walk start is not in the graph", "tool", start)
			continue
		}
		for range w.opts.walksPerNode {
			tools, deadEnd := w.walkOnce(rng, g, start)
			stats.Walks++
			if deadEnd {
				stats.DeadEnds++
			}
			p := fsp.New(tools...)
			if seen[p.Key()] {
				stats.Duplicates++
				continue
			}
			seen[p.Key()] = true
			paths = append(paths, p)
		}
	}
	stats.Paths = len(paths)
	walksTotal.WithLabelValues("dead_end").Add(float64(stats.DeadEnds))
	walksTotal.WithLabelValues("duplicate").Add(float64(stats.Duplicates))
	walksTotal.WithLabelValues("kept").Add(float64(stats.Paths))
	return paths, stats, nil
}

// walkOnce returns the visited tools and whether the walk stopped before maxSteps.
func (w *Walker) walkOnce(rng *rand.Rand, g *graph.Graph, start string) ([]string, bool) {
	tools := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for range w.opts.maxSteps {
		var next []*toolsynth.ToolRecord
		for _, e := range g.Successors(current, w.opts.kinds...) {
			if visited[e.To] {
				continue
			}
			if rec, ok := g.Tool(e.To); ok {
				next = append(next, rec)
			}
		}
		if len(next) == 0 {
			return tools, true
		}
		from, _ := g.Tool(current)
		weights := w.opts.scorer(from, next)
		if len(weights) != len(next) {
			weights = Uniform(from, next)
		}
		chosen := next[pick(rng, weights)]
		current = chosen.Name()
		visited[current] = true
		tools = append(tools, current)
	}
	return tools, false
}

// pick draws an index proportionally to weights, uniformly when no weight is positive.
func pick(rng *rand.Rand, weights []float64) int {
	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return rng.IntN(len(weights))
	}
	r := rng.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		if r < w {
			return i
		}
		r -= w
	}
	// float rounding left r just past the last positive weight
	last := len(weights) - 1
	for weights[last] <= 0 {
		last--
	}
	return last
}
