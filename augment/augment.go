// Package augment applies the structural edits Merge, Insert and Split to walked paths,
// recording each edit in an identity-keyed ledger.
package augment

import (
	"log/slog"
	"math/rand/v2"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/skosovsky/toolsynth/fsp"
	"github.com/skosovsky/toolsynth/graph"
)

var editsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "toolsynth",
	Subsystem: "augment",
	Name:      "edits_total",
	Help:      "Structural edits applied to paths by operator",
}, []string{"op"})

type options struct {
	merge     float64
	insert    InsertOptions
	split     float64
	maxSplits int
	logger    *slog.Logger
}

// Option configures an Augmenter.
type Option func(*options)

// WithMergeProbability sets the chance that an adjacent pair of turns is merged.
func WithMergeProbability(p float64) Option {
	return func(o *options) { o.merge = p }
}

// WithInsertProbability sets the chance that a turn receives a helper tool.
func WithInsertProbability(p float64) Option {
	return func(o *options) { o.insert.Probability = p }
}

// WithLongProbability sets the chance that a helper is placed in a later turn.
func WithLongProbability(p float64) Option {
	return func(o *options) { o.insert.LongProbability = p }
}

// WithNested sets the helper filter used by Insert.
func WithNested(fn NestedFunc) Option {
	return func(o *options) { o.insert.Nested = fn }
}

// WithSplitProbability sets the chance of each split attempt.
func WithSplitProbability(p float64) Option {
	return func(o *options) { o.split = p }
}

// WithMaxSplits bounds the number of empty turns added to one path.
func WithMaxSplits(n int) Option {
	return func(o *options) { o.maxSplits = n }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Augmenter applies Merge, Insert and Split, in that order, against a read-only graph.
// It is safe for concurrent use; randomness comes from the caller.
type Augmenter struct {
	g    *graph.Graph
	opts options
}

// New creates an Augmenter over g.
func New(g *graph.Graph, opts ...Option) *Augmenter {
	o := options{
		merge:     0.3,
		insert:    InsertOptions{Probability: 0.5, LongProbability: 0.3},
		split:     0.15,
		maxSplits: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Augmenter{g: g, opts: o}
}

// Augment returns the edited path and its ledger. The input path is not modified.
// A ledger that no longer describes the path is reported as a *toolsynth.StructuralError.
func (a *Augmenter) Augment(p fsp.Path, rng *rand.Rand) (fsp.Path, fsp.Ledger, error) {
	var ledger fsp.Ledger
	out, merges := Merge(p, rng, a.opts.merge)
	ledger.Merges = merges
	out, ledger.Inserts = Insert(out, a.g, rng, a.opts.insert)
	out, ledger.Splits = Split(out, rng, a.opts.split, a.opts.maxSplits)

	editsTotal.WithLabelValues("merge").Add(float64(len(ledger.Merges)))
	editsTotal.WithLabelValues("insert").Add(float64(len(ledger.Inserts)))
	editsTotal.WithLabelValues("split").Add(float64(len(ledger.Splits)))

	if err := ledger.Validate(out); err != nil {
		a.opts.logger.Error("augmented path diverged from its ledger", "path", out.String(), "error", err)
		return fsp.Path{}, fsp.Ledger{}, err
	}
	a.opts.logger.Debug("path augmented", "path", out.String(), "edits", ledger.Len())
	return out, ledger, nil
}
