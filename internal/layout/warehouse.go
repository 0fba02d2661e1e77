// Package layout produces the static warehouse environment and the node
// population that lives in it.
package layout

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

// Progress steps reported by the warehouse generator.
const (
	StepGenerating = "Generating layout"
	StepFeatures   = "Placing features"
)

// Generator builds a complete, frozen voxel grid.
type Generator interface {
	Generate(ctx context.Context, report core.ProgressFunc) (*core.VoxelGrid, error)
}

// Warehouse is the default floor-plan generator: perimeter walls, double
// shelf rows separated by aisles, scattered piles and an optional interior
// partition wall with a doorway.
type Warehouse struct {
	Width, Depth, Height int
	Seed                 uint64
	Partition            bool
}

const (
	shelfDepth   = 2
	aisleWidth   = 3
	crossAisle   = 12
	doorwayWidth = 4
)

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Generate lays out the warehouse. The same Seed always yields the same
// grid.
func (w Warehouse) Generate(ctx context.Context, report core.ProgressFunc) (*core.VoxelGrid, error) {
	if report == nil {
		report = func(float64, string) {}
	}
	if w.Width < 4 || w.Depth < 4 || w.Height < 2 {
		return nil, fmt.Errorf("%w: warehouse %dx%dx%d is too small", core.ErrInvalidInput, w.Width, w.Depth, w.Height)
	}
	report(0, StepGenerating)
	grid, err := core.NewVoxelGrid(w.Width, w.Depth, w.Height)
	if err != nil {
		return nil, err
	}
	rng := newRand(w.Seed)

	if err := w.walls(grid); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report(0.5, StepFeatures)
	if err := w.shelves(grid); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := w.piles(grid, rng); err != nil {
		return nil, err
	}
	report(1, "")
	return grid.Freeze(), nil
}

func (w Warehouse) walls(g *core.VoxelGrid) error {
	h := w.Height
	boxes := [][6]int{
		{0, 0, 0, w.Width, 1, h},
		{0, w.Depth - 1, 0, w.Width, w.Depth, h},
		{0, 0, 0, 1, w.Depth, h},
		{w.Width - 1, 0, 0, w.Width, w.Depth, h},
	}
	if w.Partition {
		mid := w.Width / 2
		door0 := w.Depth/2 - doorwayWidth/2
		boxes = append(boxes,
			[6]int{mid, 0, 0, mid + 1, door0, h},
			[6]int{mid, door0 + doorwayWidth, 0, mid + 1, w.Depth, h},
		)
	}
	for _, b := range boxes {
		if err := g.FillBox(b[0], b[1], b[2], b[3], b[4], b[5], model.Wall); err != nil {
			return err
		}
	}
	return nil
}

// shelves places rows along x. Rows leave a one-cell gap to the walls and
// are cut by a cross aisle every crossAisle cells.
func (w Warehouse) shelves(g *core.VoxelGrid) error {
	top := w.Height * 2 / 3
	if top < 1 {
		top = 1
	}
	mid := w.Width / 2
	for y := 1 + aisleWidth; y+shelfDepth < w.Depth-aisleWidth; y += shelfDepth + aisleWidth {
		for x0 := 2; x0 < w.Width-2; x0 += crossAisle {
			x1 := min(x0+crossAisle-aisleWidth, w.Width-2)
			if w.Partition && x0 <= mid+1 && x1 >= mid-1 {
				// Keep a clear lane on both sides of the partition.
				if err := g.FillBox(x0, y, 0, mid-1, y+shelfDepth, top, model.Shelf); err != nil {
					return err
				}
				x0b := mid + 2
				if err := g.FillBox(x0b, y, 0, x1, y+shelfDepth, top, model.Shelf); err != nil {
					return err
				}
				continue
			}
			if err := g.FillBox(x0, y, 0, x1, y+shelfDepth, top, model.Shelf); err != nil {
				return err
			}
		}
	}
	return nil
}

// piles drops small stacks of goods into empty floor space.
func (w Warehouse) piles(g *core.VoxelGrid, rng *rand.Rand) error {
	n := w.Width * w.Depth / 150
	maxH := max(1, w.Height/3)
	for i := 0; i < n; i++ {
		sx, sy := 1+rng.IntN(2), 1+rng.IntN(2)
		x := 1 + rng.IntN(max(1, w.Width-2-sx))
		y := 1 + rng.IntN(max(1, w.Depth-2-sy))
		if !floorClear(g, x, y, sx, sy) || w.blocksDoorway(x, sx) {
			continue
		}
		if err := g.FillBox(x, y, 0, x+sx, y+sy, 1+rng.IntN(maxH), model.Pile); err != nil {
			return err
		}
	}
	return nil
}

func (w Warehouse) blocksDoorway(x, sx int) bool {
	mid := w.Width / 2
	return w.Partition && x <= mid+1 && x+sx > mid-1
}

func floorClear(g *core.VoxelGrid, x, y, sx, sy int) bool {
	for i := x; i < x+sx; i++ {
		for j := y; j < y+sy; j++ {
			if g.ColumnTop(i, j) != 0 {
				return false
			}
		}
	}
	return true
}

// FileGenerator loads a previously saved grid instead of generating one.
type FileGenerator struct {
	Path string
}

// Generate reads the grid file.
func (f FileGenerator) Generate(ctx context.Context, report core.ProgressFunc) (*core.VoxelGrid, error) {
	if report == nil {
		report = func(float64, string) {}
	}
	report(0, StepGenerating)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	g, err := LoadGrid(f.Path)
	if err != nil {
		return nil, err
	}
	report(1, StepFeatures)
	return g, nil
}
