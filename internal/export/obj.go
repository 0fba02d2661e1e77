// Package export writes the voxel scene as a Wavefront OBJ mesh for
// external viewers.
package export

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

// Progress steps reported during an export.
const (
	StepMarching = "Marching cubes"
	StepMesh     = "Creating mesh"
	StepExported = "Scene exported"
)

// marchShare is the part of the progress range spent on face marching.
const marchShare = 0.7

// Colours per material, as linear RGB.
var palette = map[model.MaterialKind][3]float64{
	model.Shelf: {0.8039, 0.5216, 0.24706},
	model.Pile:  {0.62745, 0.32157, 0.17647},
	model.Wall:  {0.6, 0.6, 0.6},
}

// faceDirs lists the six voxel faces as (outward normal, four corners in
// counter-clockwise order seen from outside).
var faceDirs = [6]struct {
	normal  [3]int
	corners [4][3]int
}{
	{[3]int{-1, 0, 0}, [4][3]int{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}}},
	{[3]int{1, 0, 0}, [4][3]int{{1, 0, 0}, {1, 1, 0}, {1, 1, 1}, {1, 0, 1}}},
	{[3]int{0, -1, 0}, [4][3]int{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}}},
	{[3]int{0, 1, 0}, [4][3]int{{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}}},
	{[3]int{0, 0, -1}, [4][3]int{{0, 0, 0}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}},
	{[3]int{0, 0, 1}, [4][3]int{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}}},
}

// Quad is one exposed voxel face: vertex indices (1-based, OBJ style) and
// the normal index.
type Quad struct {
	V      [4]int
	Normal int
}

// Mesh is the surface of the occupied voxels grouped by material.
type Mesh struct {
	Vertices [][3]int
	Faces    map[model.MaterialKind][]Quad
	X, Y, Z  int
}

// FaceCount returns the number of quads over all materials.
func (m *Mesh) FaceCount() int {
	n := 0
	for _, f := range m.Faces {
		n += len(f)
	}
	return n
}

// March collects every voxel face that borders an empty cell or the grid
// boundary. Shared corners are emitted once.
func March(ctx context.Context, grid *core.VoxelGrid, report core.ProgressFunc) (*Mesh, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if report == nil {
		report = func(float64, string) {}
	}
	x, y, z := grid.Dims()
	m := &Mesh{Faces: make(map[model.MaterialKind][]Quad), X: x, Y: y, Z: z}
	index := make(map[[3]int]int)
	vertex := func(p [3]int) int {
		if i, ok := index[p]; ok {
			return i
		}
		m.Vertices = append(m.Vertices, p)
		index[p] = len(m.Vertices)
		return len(m.Vertices)
	}

	lastPct := -1
	for i := 0; i < x; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := 0; j < y; j++ {
			for k := 0; k < z; k++ {
				kind := grid.At(i, j, k)
				if kind == model.Empty {
					continue
				}
				for n, f := range faceDirs {
					if grid.At(i+f.normal[0], j+f.normal[1], k+f.normal[2]) != model.Empty {
						continue
					}
					var q Quad
					for c, d := range f.corners {
						q.V[c] = vertex([3]int{i + d[0], j + d[1], k + d[2]})
					}
					q.Normal = n + 1
					m.Faces[kind] = append(m.Faces[kind], q)
				}
			}
		}
		if pct := (i + 1) * 100 / x; pct != lastPct {
			lastPct = pct
			report(float64(i+1)/float64(x), "")
		}
	}
	return m, nil
}

// WriteOBJ renders m, followed by the grid bounding box, referencing
// materials from mtlName.
func WriteOBJ(w io.Writer, m *Mesh, mtlName string) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "mtllib %s\n", mtlName)
	fmt.Fprintln(bw, "o scene")
	for _, v := range m.Vertices {
		fmt.Fprintf(bw, "v %d %d %d\n", v[0], v[1], v[2])
	}
	for _, f := range faceDirs {
		fmt.Fprintf(bw, "vn %d %d %d\n", f.normal[0], f.normal[1], f.normal[2])
	}
	for _, kind := range model.MaterialKinds() {
		quads := m.Faces[kind]
		if len(quads) == 0 {
			continue
		}
		fmt.Fprintf(bw, "usemtl %s\n", kind)
		for _, q := range quads {
			fmt.Fprintf(bw, "f %d//%d %d//%d %d//%d %d//%d\n",
				q.V[0], q.Normal, q.V[1], q.Normal, q.V[2], q.Normal, q.V[3], q.Normal)
		}
	}

	// Bounding box as a wireframe.
	base := len(m.Vertices)
	fmt.Fprintln(bw, "o bounds")
	for _, c := range [8][3]int{
		{0, 0, 0}, {m.X, 0, 0}, {m.X, m.Y, 0}, {0, m.Y, 0},
		{0, 0, m.Z}, {m.X, 0, m.Z}, {m.X, m.Y, m.Z}, {0, m.Y, m.Z},
	} {
		fmt.Fprintf(bw, "v %d %d %d\n", c[0], c[1], c[2])
	}
	fmt.Fprintln(bw, "usemtl bounds")
	for _, e := range [12][2]int{
		{1, 2}, {2, 3}, {3, 4}, {4, 1},
		{5, 6}, {6, 7}, {7, 8}, {8, 5},
		{1, 5}, {2, 6}, {3, 7}, {4, 8},
	} {
		fmt.Fprintf(bw, "l %d %d\n", base+e[0], base+e[1])
	}
	return bw.Flush()
}

// WriteMTL writes one material per occupied kind plus the bounds colour.
func WriteMTL(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, kind := range model.MaterialKinds() {
		c, ok := palette[kind]
		if !ok {
			continue
		}
		fmt.Fprintf(bw, "newmtl %s\nKd %.5f %.5f %.5f\nd 1\n\n", kind, c[0], c[1], c[2])
	}
	fmt.Fprint(bw, "newmtl bounds\nKd 0 0 0\nd 0.3\n")
	return bw.Flush()
}

// Result describes the files written by an export.
type Result struct {
	OBJPath string
	MTLPath string
	Faces   int
}

// Exporter writes scene.obj and scene.mtl into Dir.
type Exporter struct {
	Dir string
}

// Export marches grid and writes the scene. It reports marching progress
// over the first 70% of its range.
func (e Exporter) Export(ctx context.Context, grid *core.VoxelGrid, report core.ProgressFunc) (Result, error) {
	if report == nil {
		report = func(float64, string) {}
	}
	report(0, StepMarching)
	mesh, err := March(ctx, grid, func(v float64, _ string) { report(v*marchShare, "") })
	if err != nil {
		return Result{}, err
	}

	report(marchShare, StepMesh)
	if err := os.MkdirAll(e.Dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output dir: %w", err)
	}
	res := Result{
		OBJPath: filepath.Join(e.Dir, "scene.obj"),
		MTLPath: filepath.Join(e.Dir, "scene.mtl"),
		Faces:   mesh.FaceCount(),
	}
	if err := writeFile(res.MTLPath, WriteMTL); err != nil {
		return Result{}, err
	}
	if err := writeFile(res.OBJPath, func(w io.Writer) error { return WriteOBJ(w, mesh, "scene.mtl") }); err != nil {
		return Result{}, err
	}
	report(1, StepExported)
	return res, nil
}

func writeFile(path string, fn func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if err := fn(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
