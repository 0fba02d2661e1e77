package mesh

import (
	"container/heap"
	"fmt"
	"math/rand/v2"
)

// Routing is the shortest-path tree from Root. Pred maps every reachable
// vertex except Root to its predecessor; Dist holds the path cost of every
// reachable vertex including Root.
type Routing struct {
	Root string             `json:"root"`
	Pred map[string]string  `json:"pred"`
	Dist map[string]float64 `json:"dist"`
}

// Reachable reports whether v has a route to Root.
func (r *Routing) Reachable(v string) bool {
	_, ok := r.Dist[v]
	return ok
}

// PathTo returns the hop sequence from Root to v.
func (r *Routing) PathTo(v string) ([]string, bool) {
	if !r.Reachable(v) {
		return nil, false
	}
	path := []string{v}
	for v != r.Root {
		p, ok := r.Pred[v]
		if !ok || len(path) > len(r.Dist) {
			return nil, false
		}
		path = append(path, p)
		v = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, true
}

type queueItem struct {
	vertex string
	dist   float64
}

// distQueue is a min-heap by distance, ties broken by name so the
// resulting tree does not depend on map iteration order.
type distQueue []queueItem

func (q distQueue) Len() int { return len(q) }
func (q distQueue) Less(i, j int) bool {
	if q[i].dist != q[j].dist {
		return q[i].dist < q[j].dist
	}
	return q[i].vertex < q[j].vertex
}
func (q distQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *distQueue) Push(x any) {
	*q = append(*q, x.(queueItem))
}

func (q *distQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}

// Dijkstra computes single-source shortest paths from root. Stale queue
// entries are skipped on pop instead of decreased in place.
func Dijkstra(g *Graph, root string) (*Routing, error) {
	if !g.HasVertex(root) {
		return nil, fmt.Errorf("%w: root %s", ErrUnknownVertex, root)
	}
	r := &Routing{
		Root: root,
		Pred: make(map[string]string),
		Dist: map[string]float64{root: 0},
	}
	done := make(map[string]bool, g.Order())
	q := &distQueue{{vertex: root}}

	for q.Len() > 0 {
		cur := heap.Pop(q).(queueItem)
		if done[cur.vertex] {
			continue
		}
		done[cur.vertex] = true

		for _, n := range g.Neighbors(cur.vertex) {
			if done[n] {
				continue
			}
			alt := cur.dist + g.adj[cur.vertex][n]
			if d, ok := r.Dist[n]; !ok || alt < d {
				r.Dist[n] = alt
				r.Pred[n] = cur.vertex
				heap.Push(q, queueItem{vertex: n, dist: alt})
			}
		}
	}
	return r, nil
}

// RootPicker draws the routing root. *rand.Rand satisfies it.
type RootPicker interface {
	IntN(n int) int
}

// ChooseRoot returns preferred when it names a vertex, otherwise a vertex
// drawn from rng (or the global source when rng is nil).
func ChooseRoot(g *Graph, preferred string, rng RootPicker) (string, error) {
	if preferred != "" {
		if !g.HasVertex(preferred) {
			return "", fmt.Errorf("%w: root %s", ErrUnknownVertex, preferred)
		}
		return preferred, nil
	}
	vs := g.Vertices()
	if len(vs) == 0 {
		return "", fmt.Errorf("%w: graph has no vertices", ErrUnknownVertex)
	}
	if rng == nil {
		return vs[rand.IntN(len(vs))], nil
	}
	return vs[rng.IntN(len(vs))], nil
}
