// Package graph builds and holds the directed tool dependency graph.
package graph

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/skosovsky/toolsynth"
)

// Kind is the type of dependency an edge represents.
type Kind int

const (
	// None means no dependency. Never stored in a graph.
	None Kind = iota
	// Full: the target's required inputs are all satisfiable from the source's output.
	Full
	// Partial: some of the target's inputs come from the source's output.
	Partial
	// Prerequisite: the source must run first, without passing data.
	Prerequisite
)

var kindNames = [...]string{"none", "full", "partial", "prerequisite"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind parses a kind name case-insensitively.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Kind(i), nil
		}
	}
	return None, fmt.Errorf("unknown dependency kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsData reports whether the edge carries data from source output to target input.
func (k Kind) IsData() bool { return k == Full || k == Partial }

// DataKinds are the edge kinds that carry data.
var DataKinds = []Kind{Full, Partial}

// Edge is a directed dependency from one tool to another.
type Edge struct {
	From          string `json:"from"`
	To            string `json:"to"`
	Kind          Kind   `json:"kind"`
	Justification string `json:"justification,omitempty"`
	// Mapping maps target input names to the source output fields that feed them.
	Mapping map[string]string `json:"mapping,omitempty"`
}

func (e Edge) clone() Edge {
	e.Mapping = maps.Clone(e.Mapping)
	return e
}

// Graph is an immutable directed graph over tools. It may contain cycles but never
// self-loops. Safe for concurrent reads.
type Graph struct {
	tools map[string]*toolsynth.ToolRecord
	nodes []string
	out   map[string][]Edge
	edges []Edge
}

// New builds a Graph. Every edge endpoint must be one of tools; self-loops and
// None edges are rejected; for duplicate (from, to) pairs the first edge wins.
func New(tools []*toolsynth.ToolRecord, edges []Edge) (*Graph, error) {
	g := &Graph{
		tools: make(map[string]*toolsynth.ToolRecord, len(tools)),
		out:   make(map[string][]Edge),
	}
	for _, t := range tools {
		if _, dup := g.tools[t.Name()]; dup {
			return nil, fmt.Errorf("%w: %s", toolsynth.ErrDuplicateTool, t.Name())
		}
		g.tools[t.Name()] = t
		g.nodes = append(g.nodes, t.Name())
	}
	slices.Sort(g.nodes)

	seen := make(map[[2]string]bool, len(edges))
	for _, e := range edges {
		switch {
		case e.From == e.To:
			return nil, fmt.Errorf("self-loop on %s", e.From)
		case e.Kind == None || e.Kind > Prerequisite:
			return nil, fmt.Errorf("edge %s->%s has invalid kind %s", e.From, e.To, e.Kind)
		case g.tools[e.From] == nil:
			return nil, fmt.Errorf("%w: edge source %s", toolsynth.ErrToolNotFound, e.From)
		case g.tools[e.To] == nil:
			return nil, fmt.Errorf("%w: edge target %s", toolsynth.ErrToolNotFound, e.To)
		}
		key := [2]string{e.From, e.To}
		if seen[key] {
			continue
		}
		seen[key] = true
		e = e.clone()
		g.edges = append(g.edges, e)
		g.out[e.From] = append(g.out[e.From], e)
	}
	for _, out := range g.out {
		slices.SortFunc(out, func(a, b Edge) int { return strings.Compare(a.To, b.To) })
	}
	return g, nil
}

// Nodes returns the tool names, sorted.
func (g *Graph) Nodes() []string { return slices.Clone(g.nodes) }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Tool returns the record of a node.
func (g *Graph) Tool(name string) (*toolsynth.ToolRecord, bool) {
	t, ok := g.tools[name]
	return t, ok
}

// Tools returns the records of all nodes, sorted by name.
func (g *Graph) Tools() []*toolsynth.ToolRecord {
	out := make([]*toolsynth.ToolRecord, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = g.tools[n]
	}
	return out
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	for i, e := range g.edges {
		out[i] = e.clone()
	}
	return out
}

// Successors returns the outgoing edges of name, sorted by target. When kinds is
// non-empty only edges of those kinds are returned.
func (g *Graph) Successors(name string, kinds ...Kind) []Edge {
	var out []Edge
	for _, e := range g.out[name] {
		if len(kinds) == 0 || slices.Contains(kinds, e.Kind) {
			out = append(out, e.clone())
		}
	}
	return out
}

// Edge returns the edge from -> to.
func (g *Graph) Edge(from, to string) (Edge, bool) {
	for _, e := range g.out[from] {
		if e.To == to {
			return e.clone(), true
		}
	}
	return Edge{}, false
}

// HasEdge reports whether from -> to exists.
func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.Edge(from, to)
	return ok
}

// CountByKind tallies edges per kind.
func (g *Graph) CountByKind() map[Kind]int {
	out := make(map[Kind]int)
	for _, e := range g.edges {
		out[e.Kind]++
	}
	return out
}

// Snapshot is the serializable form of a Graph. Tool records are not included; they are
// re-attached from a catalog by FromSnapshot.
type Snapshot struct {
	Nodes []string `json:"nodes"`
	Edges []Edge   `json:"edges"`
}

// Snapshot returns the serializable form of g.
func (g *Graph) Snapshot() Snapshot {
	return Snapshot{Nodes: g.Nodes(), Edges: g.Edges()}
}

// FromSnapshot rebuilds a Graph, taking tool records from catalog.
func FromSnapshot(catalog *toolsynth.Catalog, s Snapshot) (*Graph, error) {
	tools := make([]*toolsynth.ToolRecord, 0, len(s.Nodes))
	for _, name := range s.Nodes {
		t, err := catalog.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("snapshot node: %w", err)
		}
		tools = append(tools, t)
	}
	return New(tools, s.Edges)
}
