package fsp

import (
	"fmt"
	"slices"

	"github.com/skosovsky/toolsynth"
)

// Dependency says where an inserted tool's data comes from.
type Dependency string

const (
	// Short: source and nested tool share a turn.
	Short Dependency = "short"
	// Long: the source lives in a strictly earlier turn.
	Long Dependency = "long"
)

// MergeEntry records that Tools were combined into one turn. Position is the index of the
// merged turn when it was created and is never used for lookups.
type MergeEntry struct {
	Tools    []string `json:"tools"`
	Position int      `json:"position"`
}

// InsertEntry records that Nested was added as a helper fed by Source.
// Positions are diagnostic only.
type InsertEntry struct {
	Source         string     `json:"source"`
	Nested         string     `json:"nested"`
	Dependency     Dependency `json:"dependency"`
	SourcePosition int        `json:"source_position"`
	TargetPosition int        `json:"target_position"`
}

// SplitEntry records an empty turn insertion. Position is the index the empty turn had
// when inserted; later splits may have moved it.
type SplitEntry struct {
	Position int      `json:"position"`
	Miss     MissType `json:"miss"`
}

// Ledger is the record of structural edits applied to a path, keyed by tool identity.
type Ledger struct {
	Merges  []MergeEntry  `json:"merges,omitempty"`
	Inserts []InsertEntry `json:"inserts,omitempty"`
	Splits  []SplitEntry  `json:"splits,omitempty"`
}

// Clone returns a deep copy.
func (l Ledger) Clone() Ledger {
	out := Ledger{
		Inserts: slices.Clone(l.Inserts),
		Splits:  slices.Clone(l.Splits),
	}
	for _, m := range l.Merges {
		out.Merges = append(out.Merges, MergeEntry{Tools: slices.Clone(m.Tools), Position: m.Position})
	}
	return out
}

// Len returns the total number of entries.
func (l Ledger) Len() int { return len(l.Merges) + len(l.Inserts) + len(l.Splits) }

// Validate asserts that the ledger still describes p. It checks tool uniqueness, merge
// co-location, short inserts sharing a turn, long inserts having an earlier source, and
// one tagged empty turn per split. Any divergence is a *toolsynth.StructuralError.
func (l Ledger) Validate(p Path) error {
	seen := make(map[string]int)
	for i, t := range p.Turns {
		for _, tool := range t.Tools {
			if prev, ok := seen[tool]; ok {
				return &toolsynth.StructuralError{
					Reason: fmt.Sprintf("tool appears in turns %d and %d", prev, i),
					Tool:   tool,
				}
			}
			seen[tool] = i
		}
		if t.Empty() && !t.Miss.Valid() {
			return &toolsynth.StructuralError{Reason: fmt.Sprintf("empty turn %d has no miss type", i)}
		}
		if !t.Empty() && t.Miss != "" {
			return &toolsynth.StructuralError{Reason: fmt.Sprintf("turn %d has tools and a miss type", i)}
		}
	}
	absent := func(tool string) error {
		return &toolsynth.StructuralError{Reason: "ledger references a tool absent from the path", Tool: tool}
	}

	for _, m := range l.Merges {
		if len(m.Tools) < 2 {
			return &toolsynth.StructuralError{Reason: "merge entry with fewer than two tools"}
		}
		for _, tool := range m.Tools {
			if _, ok := seen[tool]; !ok {
				return absent(tool)
			}
		}
		if !slices.ContainsFunc(p.Turns, func(t Turn) bool { return t.ContainsAll(m.Tools) }) {
			return &toolsynth.StructuralError{Reason: "merged tools are not in one turn", Tool: m.Tools[0]}
		}
	}

	for _, in := range l.Inserts {
		src, ok := seen[in.Source]
		if !ok {
			return absent(in.Source)
		}
		nested, ok := seen[in.Nested]
		if !ok {
			return absent(in.Nested)
		}
		switch in.Dependency {
		case Short:
			if src != nested {
				return &toolsynth.StructuralError{Reason: "short insert split across turns", Tool: in.Nested}
			}
		case Long:
			if src >= nested {
				return &toolsynth.StructuralError{Reason: "long insert source is not in an earlier turn", Tool: in.Nested}
			}
		default:
			return &toolsynth.StructuralError{Reason: fmt.Sprintf("unknown dependency %q", in.Dependency), Tool: in.Nested}
		}
	}

	if empty := len(p.EmptyTurns()); empty != len(l.Splits) {
		return &toolsynth.StructuralError{
			Reason: fmt.Sprintf("%d empty turns but %d split entries", empty, len(l.Splits)),
		}
	}
	return nil
}
