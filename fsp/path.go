// Package fsp models function signature paths: ordered turns of tool identities, the
// ledger of structural edits applied to them, and identity-based resolution of that ledger.
package fsp

import (
	"slices"
	"strings"
)

// MissType tags an empty turn with the reason the agent cannot act on it.
type MissType string

const (
	MissFunction   MissType = "missing-function"
	MissParameters MissType = "missing-parameters"
)

// MissTypes lists every valid miss type.
var MissTypes = []MissType{MissFunction, MissParameters}

// Valid reports whether m is a known miss type.
func (m MissType) Valid() bool {
	return m == MissFunction || m == MissParameters
}

// Turn is one exchange: zero or more tool identities, in call order. Only empty turns
// carry a Miss tag.
type Turn struct {
	Tools []string `json:"tools"`
	Miss  MissType `json:"miss,omitempty"`
}

// Empty reports whether the turn holds no tool.
func (t Turn) Empty() bool { return len(t.Tools) == 0 }

// Contains reports whether tool is called in the turn.
func (t Turn) Contains(tool string) bool { return slices.Contains(t.Tools, tool) }

// ContainsAll reports whether every one of tools is called in the turn.
// An empty set is never contained.
func (t Turn) ContainsAll(tools []string) bool {
	if len(tools) == 0 {
		return false
	}
	for _, tool := range tools {
		if !t.Contains(tool) {
			return false
		}
	}
	return true
}

// Last returns the trailing tool of the turn.
func (t Turn) Last() (string, bool) {
	if len(t.Tools) == 0 {
		return "", false
	}
	return t.Tools[len(t.Tools)-1], true
}

// Path is a function signature path. Turn positions are not stable identities:
// they shift under Merge and Split.
type Path struct {
	Turns []Turn `json:"turns"`
}

// New builds a path with one tool per turn.
func New(tools ...string) Path {
	turns := make([]Turn, len(tools))
	for i, tool := range tools {
		turns[i] = Turn{Tools: []string{tool}}
	}
	return Path{Turns: turns}
}

// Len returns the number of turns.
func (p Path) Len() int { return len(p.Turns) }

// Clone returns a deep copy.
func (p Path) Clone() Path {
	turns := make([]Turn, len(p.Turns))
	for i, t := range p.Turns {
		turns[i] = Turn{Tools: slices.Clone(t.Tools), Miss: t.Miss}
	}
	return Path{Turns: turns}
}

// Tools returns every tool identity in call order.
func (p Path) Tools() []string {
	var out []string
	for _, t := range p.Turns {
		out = append(out, t.Tools...)
	}
	return out
}

// Contains reports whether tool is called anywhere in the path.
func (p Path) Contains(tool string) bool { return p.TurnOf(tool) >= 0 }

// TurnOf returns the index of the first turn calling tool, or -1.
func (p Path) TurnOf(tool string) int {
	return slices.IndexFunc(p.Turns, func(t Turn) bool { return t.Contains(tool) })
}

// EmptyTurns returns the indexes of empty turns.
func (p Path) EmptyTurns() []int {
	var out []int
	for i, t := range p.Turns {
		if t.Empty() {
			out = append(out, i)
		}
	}
	return out
}

// Key identifies the path by its ordered turn structure; equal keys mean equal paths.
func (p Path) Key() string {
	var b strings.Builder
	for i, t := range p.Turns {
		if i > 0 {
			b.WriteByte('\x1e')
		}
		b.WriteString(strings.Join(t.Tools, "\x1f"))
		if t.Empty() {
			b.WriteString(string(t.Miss))
		}
	}
	return b.String()
}

func (p Path) String() string {
	parts := make([]string, len(p.Turns))
	for i, t := range p.Turns {
		if t.Empty() {
			parts[i] = "[<" + string(t.Miss) + ">]"
			continue
		}
		parts[i] = "[" + strings.Join(t.Tools, " ") + "]"
	}
	return strings.Join(parts, " ")
}
