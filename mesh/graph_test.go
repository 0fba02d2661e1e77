package mesh

import (
	"math"
	"testing"

	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph_SetEdge(t *testing.T) {
	g := New()
	g.AddVertex("a")
	g.AddVertex("b")

	require.NoError(t, g.SetEdge("a", "b", 3))
	w, ok := g.Weight("b", "a")
	require.True(t, ok)
	assert.Equal(t, 3.0, w)
	assert.Equal(t, 1, g.Size())

	require.NoError(t, g.SetEdge("b", "a", 4))
	assert.Equal(t, 1, g.Size(), "replacing an edge must not add one")

	assert.ErrorIs(t, g.SetEdge("a", "a", 1), ErrSelfLoop)
	assert.ErrorIs(t, g.SetEdge("a", "b", -1), ErrInvalidWeight)
	assert.ErrorIs(t, g.SetEdge("a", "b", math.NaN()), ErrInvalidWeight)
	assert.ErrorIs(t, g.SetEdge("a", "zz", 1), ErrUnknownVertex)

	g.RemoveEdge("a", "b")
	_, ok = g.Weight("a", "b")
	assert.False(t, ok)
	assert.Equal(t, 0, g.Size())
	g.RemoveEdge("a", "b")
	assert.Equal(t, 0, g.Size())
}

func TestGraph_CloneIsIndependent(t *testing.T) {
	g := New()
	for _, v := range []string{"a", "b", "c"} {
		g.AddVertex(v)
	}
	require.NoError(t, g.SetEdge("a", "b", 1))

	cp := g.Clone()
	require.NoError(t, cp.SetEdge("b", "c", 2))
	cp.RemoveEdge("a", "b")

	_, ok := g.Weight("a", "b")
	assert.True(t, ok)
	_, ok = g.Weight("b", "c")
	assert.False(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, cp.Vertices())
}

func TestFromEdges(t *testing.T) {
	edges := []model.Edge{
		{A: "a", B: "b", Signal: model.SignalResult{Percent: 80, DBm: -63}},
		{A: "b", B: "c", Signal: model.SignalResult{Percent: 100, DBm: 0}},
	}
	g, err := FromEdges([]string{"a", "b", "c", "lonely"}, edges, PhaseBuilt)
	require.NoError(t, err)

	assert.Equal(t, PhaseBuilt, g.Phase())
	assert.Equal(t, 4, g.Order())
	assert.Empty(t, g.Neighbors("lonely"))
	assert.Equal(t, []string{"a", "c"}, g.Neighbors("b"))

	w, _ := g.Weight("a", "b")
	assert.Equal(t, core.MaxStrength+1-80, w)
	w, _ = g.Weight("c", "b")
	assert.Equal(t, 1.0, w, "a perfect link still costs one hop")

	_, err = FromEdges([]string{"a"}, edges, PhaseBuilt)
	assert.ErrorIs(t, err, ErrUnknownVertex)
}

func TestPhaseNext(t *testing.T) {
	assert.Equal(t, PhaseBuilt, PhaseEmpty.Next())
	assert.Equal(t, PhaseUpdated, PhaseBuilt.Next())
	assert.Equal(t, PhaseUpdated, PhaseUpdated.Next())
	assert.Equal(t, "updated", PhaseUpdated.String())
}
