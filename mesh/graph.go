// Package mesh holds the weighted connectivity graph between controllers
// and the shortest-path routing derived from it.
package mesh

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

var (
	ErrUnknownVertex = errors.New("unknown vertex")
	ErrSelfLoop      = errors.New("self loop")
	ErrInvalidWeight = errors.New("invalid edge weight")
)

// Phase tracks how a graph came to be.
type Phase int

const (
	PhaseEmpty Phase = iota
	// PhaseBuilt is the result of the first full connectivity pass.
	PhaseBuilt
	// PhaseUpdated is any later rebuild.
	PhaseUpdated
)

func (p Phase) String() string {
	switch p {
	case PhaseEmpty:
		return "empty"
	case PhaseBuilt:
		return "built"
	case PhaseUpdated:
		return "updated"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Next returns the phase of a graph rebuilt on top of one in phase p.
func (p Phase) Next() Phase {
	if p == PhaseEmpty {
		return PhaseBuilt
	}
	return PhaseUpdated
}

// Graph is an undirected graph with non-negative weights and no self
// loops. A Graph is not safe for concurrent mutation; published graphs are
// treated as read-only.
type Graph struct {
	phase Phase
	adj   map[string]map[string]float64
	edges int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{adj: make(map[string]map[string]float64)}
}

// Phase reports the lifecycle phase of g.
func (g *Graph) Phase() Phase { return g.phase }

// AddVertex is a no-op for existing vertices.
func (g *Graph) AddVertex(name string) {
	if _, ok := g.adj[name]; !ok {
		g.adj[name] = make(map[string]float64)
	}
}

// HasVertex reports whether name is a vertex of g.
func (g *Graph) HasVertex(name string) bool {
	_, ok := g.adj[name]
	return ok
}

// SetEdge inserts or replaces the undirected edge a-b.
func (g *Graph) SetEdge(a, b string, w float64) error {
	if a == b {
		return fmt.Errorf("%w: %s", ErrSelfLoop, a)
	}
	if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
		return fmt.Errorf("%w: %s-%s weight %v", ErrInvalidWeight, a, b, w)
	}
	if !g.HasVertex(a) {
		return fmt.Errorf("%w: %s", ErrUnknownVertex, a)
	}
	if !g.HasVertex(b) {
		return fmt.Errorf("%w: %s", ErrUnknownVertex, b)
	}
	if _, ok := g.adj[a][b]; !ok {
		g.edges++
	}
	g.adj[a][b] = w
	g.adj[b][a] = w
	return nil
}

// RemoveEdge deletes a-b if present.
func (g *Graph) RemoveEdge(a, b string) {
	if _, ok := g.adj[a][b]; !ok {
		return
	}
	delete(g.adj[a], b)
	delete(g.adj[b], a)
	g.edges--
}

// Weight returns the weight of a-b.
func (g *Graph) Weight(a, b string) (float64, bool) {
	w, ok := g.adj[a][b]
	return w, ok
}

// Neighbors returns the sorted neighbours of v.
func (g *Graph) Neighbors(v string) []string {
	out := make([]string, 0, len(g.adj[v]))
	for n := range g.adj[v] {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Vertices returns all vertices in sorted order.
func (g *Graph) Vertices() []string {
	out := make([]string, 0, len(g.adj))
	for v := range g.adj {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Order is the number of vertices.
func (g *Graph) Order() int { return len(g.adj) }

// Size is the number of undirected edges.
func (g *Graph) Size() int { return g.edges }

// Clone returns a deep copy.
func (g *Graph) Clone() *Graph {
	out := &Graph{phase: g.phase, edges: g.edges, adj: make(map[string]map[string]float64, len(g.adj))}
	for v, row := range g.adj {
		cp := make(map[string]float64, len(row))
		for n, w := range row {
			cp[n] = w
		}
		out.adj[v] = cp
	}
	return out
}

// WeightFor converts a link into an edge weight: stronger links are
// cheaper and every weight is at least 1.
func WeightFor(sig model.SignalResult) float64 {
	return core.MaxStrength + 1 - sig.Percent
}

// FromEdges builds a graph in the given phase from connectivity output.
// Every name becomes a vertex even when it has no edges.
func FromEdges(names []string, edges []model.Edge, phase Phase) (*Graph, error) {
	g := New()
	g.phase = phase
	for _, n := range names {
		g.AddVertex(n)
	}
	for _, e := range edges {
		if err := g.SetEdge(e.A, e.B, WeightFor(e.Signal)); err != nil {
			return nil, err
		}
	}
	return g, nil
}
