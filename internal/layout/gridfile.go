package layout

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
	"golang.org/x/exp/mmap"
)

// Grid files start with a fixed little-endian header followed by one byte
// per cell in VoxelGrid storage order.
const (
	gridMagic   uint32 = 0x47564d57 // "WMVG"
	gridVersion uint16 = 1
)

// ErrBadGridFile is returned for files that are not voxel grids.
var ErrBadGridFile = errors.New("bad grid file")

type gridHeader struct {
	Magic   uint32
	Version uint16
	_       uint16
	X, Y, Z uint32
}

// SaveGrid writes g to path, replacing any existing file.
func SaveGrid(path string, g *core.VoxelGrid) (err error) {
	if err := g.Validate(); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create grid file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	x, y, z := g.Dims()
	w := bufio.NewWriter(f)
	hdr := gridHeader{Magic: gridMagic, Version: gridVersion, X: uint32(x), Y: uint32(y), Z: uint32(z)}
	if err := binary.Write(w, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("write grid header: %w", err)
	}
	cells := g.Cells()
	buf := make([]byte, len(cells))
	for i, c := range cells {
		buf[i] = byte(c)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write grid cells: %w", err)
	}
	return w.Flush()
}

// LoadGrid memory-maps path and returns the frozen grid it holds.
func LoadGrid(path string) (*core.VoxelGrid, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grid file: %w", err)
	}
	defer r.Close()

	hdrSize := binary.Size(gridHeader{})
	if r.Len() < hdrSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrBadGridFile, path, r.Len())
	}
	hdrBuf := make([]byte, hdrSize)
	if _, err := r.ReadAt(hdrBuf, 0); err != nil {
		return nil, fmt.Errorf("read grid header: %w", err)
	}
	var hdr gridHeader
	if err := binary.Read(bytes.NewReader(hdrBuf), binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("decode grid header: %w", err)
	}
	if hdr.Magic != gridMagic {
		return nil, fmt.Errorf("%w: magic %#x", ErrBadGridFile, hdr.Magic)
	}
	if hdr.Version != gridVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadGridFile, hdr.Version)
	}

	n := int64(hdr.X) * int64(hdr.Y) * int64(hdr.Z)
	if n == 0 || int64(r.Len()-hdrSize) != n {
		return nil, fmt.Errorf("%w: %dx%dx%d grid with %d cell bytes", ErrBadGridFile, hdr.X, hdr.Y, hdr.Z, r.Len()-hdrSize)
	}
	raw := make([]byte, n)
	if _, err := r.ReadAt(raw, int64(hdrSize)); err != nil {
		return nil, fmt.Errorf("read grid cells: %w", err)
	}
	cells := make([]model.MaterialKind, n)
	for i, b := range raw {
		cells[i] = model.MaterialKind(b)
	}
	g, err := core.VoxelGridFromCells(int(hdr.X), int(hdr.Y), int(hdr.Z), cells)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadGridFile, err)
	}
	return g.Freeze(), nil
}
