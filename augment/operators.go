package augment

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/skosovsky/toolsynth"
	"github.com/skosovsky/toolsynth/fsp"
	"github.com/skosovsky/toolsynth/graph"
)

// NestedFunc decides whether neighbor may be inserted as a helper of the tool at e.From.
type NestedFunc func(e graph.Edge, neighbor *toolsynth.ToolRecord) bool

// FeedsRequiredInput is the default NestedFunc: the edge's mapping covers at least one
// required input of the neighbor. Edges without a mapping are accepted.
func FeedsRequiredInput(e graph.Edge, neighbor *toolsynth.ToolRecord) bool {
	if len(e.Mapping) == 0 {
		return true
	}
	for _, name := range neighbor.RequiredInputs() {
		if _, ok := e.Mapping[name]; ok {
			return true
		}
	}
	return false
}

// Merge scans adjacent turns left to right and, with probability prob, combines turns i and
// i+1 into one turn holding both tool sets in order. A merged turn is not merged again.
func Merge(p fsp.Path, rng *rand.Rand, prob float64) (fsp.Path, []fsp.MergeEntry) {
	src := p.Clone()
	out := fsp.Path{Turns: make([]fsp.Turn, 0, src.Len())}
	var entries []fsp.MergeEntry
	for i := 0; i < src.Len(); i++ {
		turn := src.Turns[i]
		if i+1 < src.Len() && !turn.Empty() && !src.Turns[i+1].Empty() && rng.Float64() < prob {
			merged := fsp.Turn{Tools: slices.Concat(turn.Tools, src.Turns[i+1].Tools)}
			entries = append(entries, fsp.MergeEntry{
				Tools:    slices.Clone(merged.Tools),
				Position: len(out.Turns),
			})
			out.Turns = append(out.Turns, merged)
			i++
			continue
		}
		out.Turns = append(out.Turns, turn)
	}
	return out, entries
}

// InsertOptions configures Insert.
type InsertOptions struct {
	Probability     float64
	LongProbability float64
	// Nested filters candidate helpers. Nil means FeedsRequiredInput.
	Nested NestedFunc
}

// Insert visits each turn in order and, with opts.Probability, adds one helper tool fed by
// the turn's trailing tool. Helpers are successors over data edges not already in the path.
// With opts.LongProbability (and when a later turn exists) the helper goes to a random later
// turn; otherwise it joins the same turn.
func Insert(p fsp.Path, g *graph.Graph, rng *rand.Rand, opts InsertOptions) (fsp.Path, []fsp.InsertEntry) {
	nested := opts.Nested
	if nested == nil {
		nested = FeedsRequiredInput
	}
	out := p.Clone()
	var entries []fsp.InsertEntry
	for i := range out.Turns {
		source, ok := out.Turns[i].Last()
		if !ok || rng.Float64() >= opts.Probability {
			continue
		}
		var candidates []string
		for _, e := range g.Successors(source, graph.DataKinds...) {
			if out.Contains(e.To) {
				continue
			}
			if rec, ok := g.Tool(e.To); ok && nested(e, rec) {
				candidates = append(candidates, e.To)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		helper := candidates[rng.IntN(len(candidates))]
		entry := fsp.InsertEntry{Source: source, Nested: helper, Dependency: fsp.Short, SourcePosition: i, TargetPosition: i}
		if later := out.Len() - i - 1; later > 0 && rng.Float64() < opts.LongProbability {
			entry.Dependency = fsp.Long
			entry.TargetPosition = i + 1 + rng.IntN(later)
		}
		target := &out.Turns[entry.TargetPosition]
		target.Tools = append(target.Tools, helper)
		entries = append(entries, entry)
	}
	return out, entries
}

// Split inserts up to max empty turns. Each attempt fires with probability prob and only on
// paths of more than one turn; the boundary and miss type are random.
func Split(p fsp.Path, rng *rand.Rand, prob float64, maxSplits int) (fsp.Path, []fsp.SplitEntry) {
	out := p.Clone()
	var entries []fsp.SplitEntry
	for range maxSplits {
		if out.Len() <= 1 || rng.Float64() >= prob {
			continue
		}
		index := 1 + rng.IntN(out.Len())
		miss := fsp.MissTypes[rng.IntN(len(fsp.MissTypes))]
		next, entry, err := SplitAt(out, index, miss)
		if err != nil {
			continue
		}
		out = next
		entries = append(entries, entry)
	}
	return out, entries
}

// SplitAt inserts an empty turn tagged miss before the turn at index (index == Len appends).
// Turns at or after index shift by one; no ledger entry is touched.
func SplitAt(p fsp.Path, index int, miss fsp.MissType) (fsp.Path, fsp.SplitEntry, error) {
	if index < 0 || index > p.Len() {
		return fsp.Path{}, fsp.SplitEntry{}, fmt.Errorf("split index %d out of range [0,%d]", index, p.Len())
	}
	if !miss.Valid() {
		return fsp.Path{}, fsp.SplitEntry{}, fmt.Errorf("unknown miss type %q", miss)
	}
	out := p.Clone()
	out.Turns = slices.Insert(out.Turns, index, fsp.Turn{Miss: miss})
	return out, fsp.SplitEntry{Position: index, Miss: miss}, nil
}
