package core

import (
	"errors"
	"testing"

	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

func TestVoxelGrid_SetAndFreeze(t *testing.T) {
	g := mustGrid(t, 3, 4, 5)
	if err := g.Set(2, 3, 4, model.Pile); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := g.At(2, 3, 4); got != model.Pile {
		t.Fatalf("At = %v, want pile", got)
	}
	if err := g.Set(3, 0, 0, model.Wall); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("out-of-bounds Set: err = %v, want ErrInvalidInput", err)
	}
	if err := g.Set(0, 0, 0, model.MaterialKind(200)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown kind: err = %v, want ErrInvalidInput", err)
	}

	g.Freeze()
	if err := g.Set(0, 0, 0, model.Wall); !errors.Is(err, ErrGridFrozen) {
		t.Fatalf("Set after Freeze: err = %v, want ErrGridFrozen", err)
	}
	if err := g.FillBox(0, 0, 0, 1, 1, 1, model.Wall); !errors.Is(err, ErrGridFrozen) {
		t.Fatalf("FillBox after Freeze: err = %v, want ErrGridFrozen", err)
	}
	if got := g.At(-1, 0, 0); got != model.Empty {
		t.Fatalf("At(out of bounds) = %v, want empty", got)
	}
}

func TestVoxelGrid_FillBoxClips(t *testing.T) {
	g := mustGrid(t, 4, 4, 4)
	if err := g.FillBox(-2, -2, 0, 2, 10, 2, model.Shelf); err != nil {
		t.Fatalf("FillBox: %v", err)
	}
	if got, want := g.Count(model.Shelf), 2*4*2; got != want {
		t.Fatalf("Count(shelf) = %d, want %d", got, want)
	}
	if got := g.ColumnTop(1, 3); got != 2 {
		t.Fatalf("ColumnTop = %d, want 2", got)
	}
	if got := g.ColumnTop(3, 3); got != 0 {
		t.Fatalf("ColumnTop(empty column) = %d, want 0", got)
	}
}

func TestVoxelGrid_InvalidExtent(t *testing.T) {
	if _, err := NewVoxelGrid(0, 1, 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("NewVoxelGrid(0,1,1): err = %v, want ErrInvalidInput", err)
	}
	if _, err := VoxelGridFromCells(2, 2, 2, make([]model.MaterialKind, 7)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("short cell slice: err = %v, want ErrInvalidInput", err)
	}
	var nilGrid *VoxelGrid
	if err := nilGrid.Validate(); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("nil grid: err = %v, want ErrInvalidInput", err)
	}
}
