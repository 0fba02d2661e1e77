// Package oracle derives propagation paths directly from the voxel grid so
// ray-path mode can run without an external ray tracer.
package oracle

import (
	"context"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

// Voxel traces paths against a frozen grid. It returns the direct path
// with its obstacle entry and exit points, one specular reflection off
// each of the six bounding planes of the grid and, when the direct path
// is obstructed, a rooftop diffraction path over every obstructing run.
type Voxel struct {
	Grid        *core.VoxelGrid
	Reflections bool
	Diffraction bool
}

// New returns an oracle with every path kind enabled.
func New(grid *core.VoxelGrid) *Voxel {
	return &Voxel{Grid: grid, Reflections: true, Diffraction: true}
}

// sampleStep is the spacing used when searching a run for its tallest
// column.
const sampleStep = 0.5

// Trace implements core.GeometryOracle.
func (o *Voxel) Trace(ctx context.Context, tx, rx mgl64.Vec3) ([]model.RayPathRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o == nil || o.Grid == nil {
		return nil, fmt.Errorf("%w: oracle has no grid", core.ErrGeometryOracle)
	}

	direct, _, err := o.crossings(tx, rx, false)
	if err != nil {
		return nil, fmt.Errorf("%w: direct path: %v", core.ErrGeometryOracle, err)
	}
	points := append([]mgl64.Vec3{tx}, direct...)
	points = append(points, rx)
	recs := []model.RayPathRecord{{Kind: model.RayDirect, Points: points}}

	if o.Reflections {
		for _, p := range o.planes() {
			rec, ok, err := o.reflect(tx, rx, p)
			if err != nil {
				return nil, fmt.Errorf("%w: reflection: %v", core.ErrGeometryOracle, err)
			}
			if ok {
				recs = append(recs, rec)
			}
		}
	}

	if o.Diffraction && len(direct) >= 2 {
		if rec, ok := o.diffract(tx, rx, direct); ok {
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

// crossings returns the points where the segment a->b enters or leaves
// an obstacle, starting from the given inside state, and the state at b.
func (o *Voxel) crossings(a, b mgl64.Vec3, inside bool) ([]mgl64.Vec3, bool, error) {
	segs, err := core.Occlusion(a, b, o.Grid)
	if err != nil {
		return nil, inside, err
	}
	length := core.Distance(a, b)
	dir := b.Sub(a).Mul(1 / length)

	var out []mgl64.Vec3
	t := 0.0
	for _, s := range segs {
		solid := s.Material != model.Empty
		if solid != inside {
			out = append(out, a.Add(dir.Mul(math.Min(t, length))))
			inside = solid
		}
		t += s.Length
	}
	return out, inside, nil
}

type plane struct {
	axis  int
	value float64
}

func (o *Voxel) planes() []plane {
	x, y, z := o.Grid.Dims()
	return []plane{
		{0, 0}, {0, float64(x)},
		{1, 0}, {1, float64(y)},
		{2, 0}, {2, float64(z)},
	}
}

// reflect mirrors rx through p and returns the specular path if the
// reflection point lies on the face of the grid's bounding box.
func (o *Voxel) reflect(tx, rx mgl64.Vec3, p plane) (model.RayPathRecord, bool, error) {
	image := rx
	image[p.axis] = 2*p.value - rx[p.axis]
	den := image[p.axis] - tx[p.axis]
	if den == 0 {
		return model.RayPathRecord{}, false, nil
	}
	t := (p.value - tx[p.axis]) / den
	if t <= 0 || t >= 1 {
		return model.RayPathRecord{}, false, nil
	}
	ref := tx.Add(image.Sub(tx).Mul(t))
	ref[p.axis] = p.value
	if !o.onFace(ref) || ref.ApproxEqual(tx) || ref.ApproxEqual(rx) {
		return model.RayPathRecord{}, false, nil
	}

	leg1, inside, err := o.crossings(tx, ref, false)
	if err != nil {
		return model.RayPathRecord{}, false, err
	}
	leg2, _, err := o.crossings(ref, rx, inside)
	if err != nil {
		return model.RayPathRecord{}, false, err
	}
	points := make([]mgl64.Vec3, 0, len(leg1)+len(leg2)+3)
	points = append(points, tx)
	points = append(points, leg1...)
	refIndex := len(points)
	points = append(points, ref)
	points = append(points, leg2...)
	points = append(points, rx)
	return model.RayPathRecord{Kind: model.RayReflected, Points: points, RefIndex: refIndex}, true, nil
}

func (o *Voxel) onFace(p mgl64.Vec3) bool {
	x, y, z := o.Grid.Dims()
	dims := [3]float64{float64(x), float64(y), float64(z)}
	for i := 0; i < 3; i++ {
		if p[i] < 0 || p[i] > dims[i] {
			return false
		}
	}
	return true
}

// diffract lifts every obstructing run of the direct path to the top of
// its tallest column. Runs that reach the ceiling block diffraction.
func (o *Voxel) diffract(tx, rx mgl64.Vec3, crossings []mgl64.Vec3) (model.RayPathRecord, bool) {
	_, _, zMax := o.Grid.Dims()
	points := []mgl64.Vec3{tx}
	for i := 0; i+1 < len(crossings); i += 2 {
		edge, top := o.rooftop(crossings[i], crossings[i+1])
		if top >= zMax {
			return model.RayPathRecord{}, false
		}
		points = append(points, edge)
	}
	if len(points) == 1 {
		return model.RayPathRecord{}, false
	}
	points = append(points, rx)
	return model.RayPathRecord{Kind: model.RayDiffracted, Points: points}, true
}

func (o *Voxel) rooftop(entry, exit mgl64.Vec3) (mgl64.Vec3, int) {
	span := core.Distance(entry, exit)
	n := int(math.Ceil(span/sampleStep)) + 1
	best, bestTop := entry, -1
	for i := 0; i <= n; i++ {
		p := entry.Add(exit.Sub(entry).Mul(float64(i) / float64(n)))
		top := o.Grid.ColumnTop(int(math.Floor(p.X())), int(math.Floor(p.Y())))
		if top > bestTop {
			best, bestTop = p, top
		}
	}
	return mgl64.Vec3{best.X(), best.Y(), float64(bestTop)}, bestTop
}
