package core

import (
	"fmt"

	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

// VoxelGrid is a dense occupancy field over [0,X)x[0,Y)x[0,Z).
//
// A grid is filled once by a layout generator and then frozen. A frozen
// grid is never written again, so it can be shared by any number of
// concurrent occlusion queries without locking.
type VoxelGrid struct {
	x, y, z int
	cells   []model.MaterialKind
	frozen  bool
}

// NewVoxelGrid allocates an all-Empty grid.
func NewVoxelGrid(x, y, z int) (*VoxelGrid, error) {
	if x <= 0 || y <= 0 || z <= 0 {
		return nil, fmt.Errorf("%w: grid extent %dx%dx%d", ErrInvalidInput, x, y, z)
	}
	return &VoxelGrid{
		x:     x,
		y:     y,
		z:     z,
		cells: make([]model.MaterialKind, x*y*z),
	}, nil
}

// VoxelGridFromCells wraps an existing cell slice laid out x-major, then y,
// then z. The slice is taken over, not copied.
func VoxelGridFromCells(x, y, z int, cells []model.MaterialKind) (*VoxelGrid, error) {
	if x <= 0 || y <= 0 || z <= 0 {
		return nil, fmt.Errorf("%w: grid extent %dx%dx%d", ErrInvalidInput, x, y, z)
	}
	if len(cells) != x*y*z {
		return nil, fmt.Errorf("%w: %d cells for a %dx%dx%d grid", ErrInvalidInput, len(cells), x, y, z)
	}
	for i, c := range cells {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: cell %d holds unknown material %d", ErrInvalidInput, i, c)
		}
	}
	return &VoxelGrid{x: x, y: y, z: z, cells: cells}, nil
}

// Dims returns the grid extent.
func (g *VoxelGrid) Dims() (x, y, z int) { return g.x, g.y, g.z }

// Len is the number of cells.
func (g *VoxelGrid) Len() int { return len(g.cells) }

// InBounds reports whether (x,y,z) addresses a cell.
func (g *VoxelGrid) InBounds(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.x && y < g.y && z < g.z
}

func (g *VoxelGrid) index(x, y, z int) int {
	return (x*g.y+y)*g.z + z
}

// At returns the material at (x,y,z). Out-of-bounds reads are Empty.
func (g *VoxelGrid) At(x, y, z int) model.MaterialKind {
	if !g.InBounds(x, y, z) {
		return model.Empty
	}
	return g.cells[g.index(x, y, z)]
}

// Set writes one cell.
func (g *VoxelGrid) Set(x, y, z int, kind model.MaterialKind) error {
	if g.frozen {
		return ErrGridFrozen
	}
	if !g.InBounds(x, y, z) {
		return fmt.Errorf("%w: cell (%d,%d,%d) outside %dx%dx%d", ErrInvalidInput, x, y, z, g.x, g.y, g.z)
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: material %d", ErrInvalidInput, kind)
	}
	g.cells[g.index(x, y, z)] = kind
	return nil
}

// FillBox sets every cell in the half-open box [x0,x1)x[y0,y1)x[z0,z1),
// clipped to the grid.
func (g *VoxelGrid) FillBox(x0, y0, z0, x1, y1, z1 int, kind model.MaterialKind) error {
	if g.frozen {
		return ErrGridFrozen
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: material %d", ErrInvalidInput, kind)
	}
	x0, x1 = clampRange(x0, x1, g.x)
	y0, y1 = clampRange(y0, y1, g.y)
	z0, z1 = clampRange(z0, z1, g.z)
	for x := x0; x < x1; x++ {
		for y := y0; y < y1; y++ {
			for z := z0; z < z1; z++ {
				g.cells[g.index(x, y, z)] = kind
			}
		}
	}
	return nil
}

func clampRange(lo, hi, limit int) (int, int) {
	if lo < 0 {
		lo = 0
	}
	if hi > limit {
		hi = limit
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

// Freeze marks the grid read-only and returns it for chaining.
func (g *VoxelGrid) Freeze() *VoxelGrid {
	g.frozen = true
	return g
}

// Frozen reports whether Freeze has been called.
func (g *VoxelGrid) Frozen() bool { return g.frozen }

// Count returns how many cells hold kind.
func (g *VoxelGrid) Count(kind model.MaterialKind) int {
	n := 0
	for _, c := range g.cells {
		if c == kind {
			n++
		}
	}
	return n
}

// ColumnTop returns one past the highest occupied z in column (x,y), or 0
// when the column is empty or out of bounds.
func (g *VoxelGrid) ColumnTop(x, y int) int {
	if x < 0 || y < 0 || x >= g.x || y >= g.y {
		return 0
	}
	for z := g.z - 1; z >= 0; z-- {
		if g.cells[g.index(x, y, z)] != model.Empty {
			return z + 1
		}
	}
	return 0
}

// Cells returns a copy of the raw cell data in storage order.
func (g *VoxelGrid) Cells() []model.MaterialKind {
	out := make([]model.MaterialKind, len(g.cells))
	copy(out, g.cells)
	return out
}

// Validate fails for nil or zero-extent grids.
func (g *VoxelGrid) Validate() error {
	if g == nil {
		return fmt.Errorf("%w: nil voxel grid", ErrInvalidInput)
	}
	if g.x <= 0 || g.y <= 0 || g.z <= 0 || len(g.cells) != g.x*g.y*g.z {
		return fmt.Errorf("%w: grid extent %dx%dx%d", ErrInvalidInput, g.x, g.y, g.z)
	}
	return nil
}
