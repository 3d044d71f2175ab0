package walk

import (
	"github.com/skosovsky/toolsynth"
)

// NeighborScorer weights the candidate next steps of a walk. It returns one weight per
// candidate; non-positive weights exclude a candidate. If every weight is non-positive the
// walker falls back to a uniform choice.
type NeighborScorer func(from *toolsynth.ToolRecord, candidates []*toolsynth.ToolRecord) []float64

// Uniform gives every candidate the same weight.
func Uniform(_ *toolsynth.ToolRecord, candidates []*toolsynth.ToolRecord) []float64 {
	w := make([]float64, len(candidates))
	for i := range w {
		w[i] = 1
	}
	return w
}

// TagAffinity favors candidates sharing more tags with the current tool. Each shared tag
// adds bias to a base weight of 1.
func TagAffinity(bias float64) NeighborScorer {
	return func(from *toolsynth.ToolRecord, candidates []*toolsynth.ToolRecord) []float64 {
		w := make([]float64, len(candidates))
		for i, c := range candidates {
			w[i] = 1
			for _, tag := range from.Tags() {
				if c.HasTag(tag) {
					w[i] += bias
				}
			}
		}
		return w
	}
}

// PreferClass multiplies the weight of candidates of class c by factor, modelling a
// persona that reads more than it writes (or the reverse).
func PreferClass(c toolsynth.Class, factor float64) NeighborScorer {
	return func(_ *toolsynth.ToolRecord, candidates []*toolsynth.ToolRecord) []float64 {
		w := make([]float64, len(candidates))
		for i, cand := range candidates {
			w[i] = 1
			if cand.Class() == c {
				w[i] = factor
			}
		}
		return w
	}
}
