package fsp

// Role is how a tool enters a turn, as seen by the query generator.
type Role string

const (
	// RoleExplicit tools are requested by the user.
	RoleExplicit Role = "explicit"
	// RoleImplicit tools are same-turn helpers the user never names.
	RoleImplicit Role = "implicit"
	// RoleCrossTurn tools consume a result from an earlier turn.
	RoleCrossTurn Role = "cross-turn"
)

// Style summarizes the structure of a turn, highest precedence first.
type Style string

const (
	StyleEmpty            Style = "empty"
	StyleMergedWithInsert Style = "merged_with_insert"
	StyleMerged           Style = "merged"
	StyleInsertMixed      Style = "insert_mixed"
	StyleInsertLong       Style = "insert_long"
	StyleInsertShort      Style = "insert_short"
	StyleNormal           Style = "normal"
)

// TurnOps is the resolved operation metadata of one turn.
type TurnOps struct {
	Index   int             `json:"index"`
	Empty   bool            `json:"is_split_empty"`
	Miss    MissType        `json:"miss,omitempty"`
	Merge   *MergeEntry     `json:"merge,omitempty"`
	Inserts []InsertEntry   `json:"inserts,omitempty"`
	Roles   map[string]Role `json:"roles,omitempty"`
	Style   Style           `json:"style"`
}

// Resolve finds the ledger entries that apply to turn by tool identity alone. Stored
// positions are never consulted, so the answer is unaffected by splits that happened after
// an entry was recorded. index is only echoed back.
//
// A merge applies iff all of its tools are in the turn. A short insert applies iff its
// source and nested tool both are. A long insert applies iff its nested tool is.
func Resolve(index int, turn Turn, l Ledger) TurnOps {
	ops := TurnOps{Index: index, Empty: turn.Empty()}
	if ops.Empty {
		ops.Miss = turn.Miss
		ops.Style = StyleEmpty
		return ops
	}

	for i := range l.Merges {
		if turn.ContainsAll(l.Merges[i].Tools) {
			m := l.Merges[i]
			ops.Merge = &m
			break
		}
	}

	ops.Roles = make(map[string]Role, len(turn.Tools))
	for _, tool := range turn.Tools {
		ops.Roles[tool] = RoleExplicit
	}
	var short, long bool
	for _, in := range l.Inserts {
		switch in.Dependency {
		case Short:
			if turn.Contains(in.Source) && turn.Contains(in.Nested) {
				ops.Inserts = append(ops.Inserts, in)
				ops.Roles[in.Nested] = RoleImplicit
				short = true
			}
		case Long:
			if turn.Contains(in.Nested) {
				ops.Inserts = append(ops.Inserts, in)
				ops.Roles[in.Nested] = RoleCrossTurn
				long = true
			}
		}
	}

	switch {
	case ops.Merge != nil && len(ops.Inserts) > 0:
		ops.Style = StyleMergedWithInsert
	case ops.Merge != nil:
		ops.Style = StyleMerged
	case short && long:
		ops.Style = StyleInsertMixed
	case long:
		ops.Style = StyleInsertLong
	case short:
		ops.Style = StyleInsertShort
	default:
		ops.Style = StyleNormal
	}
	return ops
}

// ResolvePath resolves every turn of p.
func ResolvePath(p Path, l Ledger) []TurnOps {
	out := make([]TurnOps, len(p.Turns))
	for i, t := range p.Turns {
		out[i] = Resolve(i, t, l)
	}
	return out
}

// SourceTurn returns the nearest turn before index before that calls tool.
// When several earlier turns could supply a long dependency, the nearest one wins.
func SourceTurn(p Path, before int, tool string) (int, bool) {
	if before > len(p.Turns) {
		before = len(p.Turns)
	}
	for i := before - 1; i >= 0; i-- {
		if p.Turns[i].Contains(tool) {
			return i, true
		}
	}
	return -1, false
}
