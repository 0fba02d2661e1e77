package mesh

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangle(t *testing.T) *Graph {
	t.Helper()
	g := New()
	for _, v := range []string{"A", "B", "C"} {
		g.AddVertex(v)
	}
	require.NoError(t, g.SetEdge("A", "B", 2))
	require.NoError(t, g.SetEdge("B", "C", 3))
	require.NoError(t, g.SetEdge("A", "C", 10))
	return g
}

func TestDijkstra_Triangle(t *testing.T) {
	r, err := Dijkstra(triangle(t), "A")
	require.NoError(t, err)

	assert.Equal(t, "B", r.Pred["C"])
	assert.Equal(t, "A", r.Pred["B"])
	assert.Equal(t, 5.0, r.Dist["C"])
	_, hasRootPred := r.Pred["A"]
	assert.False(t, hasRootPred)

	path, ok := r.PathTo("C")
	require.True(t, ok)
	assert.Equal(t, []string{"A", "B", "C"}, path)
}

func TestDijkstra_Unreachable(t *testing.T) {
	g := triangle(t)
	g.AddVertex("island")

	r, err := Dijkstra(g, "A")
	require.NoError(t, err)
	assert.False(t, r.Reachable("island"))
	_, ok := r.Pred["island"]
	assert.False(t, ok)
	_, ok = r.PathTo("island")
	assert.False(t, ok)

	_, err = Dijkstra(g, "nowhere")
	assert.ErrorIs(t, err, ErrUnknownVertex)
}

func TestChooseRoot(t *testing.T) {
	g := triangle(t)

	root, err := ChooseRoot(g, "C", nil)
	require.NoError(t, err)
	assert.Equal(t, "C", root)

	_, err = ChooseRoot(g, "Z", nil)
	assert.ErrorIs(t, err, ErrUnknownVertex)

	a, err := ChooseRoot(g, "", rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	b, err := ChooseRoot(g, "", rand.New(rand.NewPCG(7, 7)))
	require.NoError(t, err)
	assert.Equal(t, a, b, "same seed must pick the same root")

	_, err = ChooseRoot(New(), "", nil)
	assert.ErrorIs(t, err, ErrUnknownVertex)
}

func TestDijkstraPredecessorChains(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("predecessors reach the root with strictly decreasing distance", prop.ForAll(
		func(n int, seed uint64, density float64) bool {
			rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
			names := make([]string, n)
			for i := range names {
				names[i] = fmt.Sprintf("v%02d", i)
			}
			var edges []model.Edge
			for i := 0; i < n; i++ {
				for j := i + 1; j < n; j++ {
					if rng.Float64() < density {
						edges = append(edges, model.Edge{
							A: names[i], B: names[j],
							Signal: model.SignalResult{Percent: rng.Float64() * 100},
						})
					}
				}
			}
			g, err := FromEdges(names, edges, PhaseBuilt)
			if err != nil {
				return false
			}
			r, err := Dijkstra(g, names[0])
			if err != nil {
				return false
			}
			for v := range r.Dist {
				steps := 0
				for cur := v; cur != r.Root; steps++ {
					p, ok := r.Pred[cur]
					if !ok || steps > n || !(r.Dist[p] < r.Dist[cur]) {
						return false
					}
					cur = p
				}
			}
			for v := range r.Pred {
				if !r.Reachable(v) {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 25),
		gen.UInt64(),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}
