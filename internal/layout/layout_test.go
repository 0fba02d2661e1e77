package layout

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generate(t *testing.T, w Warehouse) *core.VoxelGrid {
	t.Helper()
	g, err := w.Generate(context.Background(), nil)
	require.NoError(t, err)
	return g
}

func TestWarehouseIsDeterministicAndFrozen(t *testing.T) {
	w := Warehouse{Width: 40, Depth: 30, Height: 6, Seed: 7}
	a, b := generate(t, w), generate(t, w)
	assert.True(t, a.Frozen())
	assert.Equal(t, a.Cells(), b.Cells())

	other := generate(t, Warehouse{Width: 40, Depth: 30, Height: 6, Seed: 8})
	assert.Equal(t, a.Count(model.Shelf), other.Count(model.Shelf), "shelves do not depend on the seed")
}

func TestWarehouseFeatures(t *testing.T) {
	g := generate(t, Warehouse{Width: 40, Depth: 30, Height: 6, Seed: 1, Partition: true})

	for x := 0; x < 40; x++ {
		assert.Equal(t, model.Wall, g.At(x, 0, 0))
		assert.Equal(t, model.Wall, g.At(x, 29, 5))
	}
	for y := 0; y < 30; y++ {
		assert.Equal(t, model.Wall, g.At(0, y, 3))
		assert.Equal(t, model.Wall, g.At(39, y, 3))
	}
	assert.Positive(t, g.Count(model.Shelf))
	assert.Equal(t, model.Empty, g.At(20, 15, 0), "doorway stays open")
	assert.Equal(t, model.Wall, g.At(20, 2, 0))
}

func TestWarehouseReportsSteps(t *testing.T) {
	var steps []string
	var values []float64
	_, err := Warehouse{Width: 10, Depth: 10, Height: 3}.Generate(context.Background(), func(v float64, s string) {
		values = append(values, v)
		if s != "" {
			steps = append(steps, s)
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{StepGenerating, StepFeatures}, steps)
	assert.Equal(t, []float64{0, 0.5, 1}, values)
}

func TestWarehouseRejectsTinyAndCancelled(t *testing.T) {
	_, err := Warehouse{Width: 2, Depth: 10, Height: 3}.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Warehouse{Width: 10, Depth: 10, Height: 3}.Generate(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScatterPlacesDistinctFreeNodes(t *testing.T) {
	g := generate(t, Warehouse{Width: 30, Depth: 20, Height: 5, Seed: 3})
	nodes, err := Scatter(g, ScatterConfig{Count: 40, BeamformFraction: 0.5, MobileFraction: 1, Seed: 9})
	require.NoError(t, err)
	require.Len(t, nodes, 40)

	seen := map[mgl64.Vec3]bool{}
	for i, n := range nodes {
		assert.Equal(t, NodeName(i), n.Name)
		assert.False(t, seen[n.Pos], "duplicate position %v", n.Pos)
		seen[n.Pos] = true
		x, y, z := int(n.Pos.X()), int(n.Pos.Y()), int(n.Pos.Z())
		assert.Equal(t, model.Empty, g.At(x, y, z), "node %s inside an obstacle", n.Name)
		assert.True(t, n.Mobile)
	}

	again, err := Scatter(g, ScatterConfig{Count: 40, BeamformFraction: 0.5, MobileFraction: 1, Seed: 9})
	require.NoError(t, err)
	assert.Equal(t, nodes, again)
}

func TestScatterErrors(t *testing.T) {
	g, err := core.NewVoxelGrid(2, 2, 1)
	require.NoError(t, err)
	require.NoError(t, g.Set(0, 0, 0, model.Wall))

	_, err = Scatter(g, ScatterConfig{Count: 4})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = Scatter(g, ScatterConfig{Count: 0})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = Scatter(g, ScatterConfig{Count: 1, MobileFraction: 2})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	_, err = Scatter(nil, ScatterConfig{Count: 1})
	assert.ErrorIs(t, err, core.ErrInvalidInput)

	nodes, err := Scatter(g, ScatterConfig{Count: 3})
	require.NoError(t, err)
	assert.Len(t, nodes, 3)
}

func TestDriftKeepsNodesFreeAndDistinct(t *testing.T) {
	g := generate(t, Warehouse{Width: 20, Depth: 20, Height: 4, Seed: 2})
	nodes, err := Scatter(g, ScatterConfig{Count: 30, MobileFraction: 0.5, Seed: 4})
	require.NoError(t, err)

	d := NewDrift(g, 2, 11)
	cur := nodes
	moved := false
	for tick := 1; tick <= 20; tick++ {
		next := d.Move(tick, cur)
		require.Len(t, next, len(cur))
		seen := map[mgl64.Vec3]bool{}
		for i, n := range next {
			if !cur[i].Mobile {
				assert.Equal(t, cur[i].Pos, n.Pos, "static node moved")
			}
			if n.Pos != cur[i].Pos {
				moved = true
			}
			assert.False(t, seen[n.Pos])
			seen[n.Pos] = true
			assert.Equal(t, model.Empty, g.At(int(n.Pos.X()), int(n.Pos.Y()), int(n.Pos.Z())))
		}
		cur = next
	}
	assert.True(t, moved)
	assert.Equal(t, nodes, Static{}.Move(0, nodes))
}

func TestGridFileRoundTrip(t *testing.T) {
	g := generate(t, Warehouse{Width: 12, Depth: 9, Height: 3, Seed: 5})
	path := filepath.Join(t.TempDir(), "grid.wmvg")
	require.NoError(t, SaveGrid(path, g))

	loaded, err := LoadGrid(path)
	require.NoError(t, err)
	assert.True(t, loaded.Frozen())
	x, y, z := loaded.Dims()
	assert.Equal(t, [3]int{12, 9, 3}, [3]int{x, y, z})
	assert.Equal(t, g.Cells(), loaded.Cells())

	fromFile, err := FileGenerator{Path: path}.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, g.Cells(), fromFile.Cells())
}

func TestLoadGridRejectsCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	g := generate(t, Warehouse{Width: 8, Depth: 8, Height: 2})
	good := filepath.Join(dir, "good")
	require.NoError(t, SaveGrid(good, g))
	raw, err := os.ReadFile(good)
	require.NoError(t, err)

	cases := map[string][]byte{
		"short":     raw[:5],
		"magic":     append([]byte("XXXX"), raw[4:]...),
		"truncated": raw[:len(raw)-1],
		"material":  append(append([]byte{}, raw[:len(raw)-1]...), 9),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, body, 0o644))
			_, err := LoadGrid(path)
			assert.ErrorIs(t, err, ErrBadGridFile)
		})
	}
}
