package core

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

// MaxStrength is both the loss ceiling of the occlusion model and the
// distance cutoff (in grid units) beyond which no link is evaluated.
const MaxStrength = 100.0

// DensityTable is the per-material attenuation per unit of traversed length.
type DensityTable map[model.MaterialKind]float64

// DefaultDensities mirrors the reach of each material: air 100m, shelf 50m,
// pile 33m, wall 20m.
func DefaultDensities() DensityTable {
	return DensityTable{
		model.Empty: 1,
		model.Shelf: 2,
		model.Pile:  3,
		model.Wall:  5,
	}
}

// Validate requires a positive density for every declared material.
func (d DensityTable) Validate() error {
	for _, k := range model.MaterialKinds() {
		v, ok := d[k]
		if !ok {
			return fmt.Errorf("%w: no density for %s", ErrInvalidInput, k)
		}
		if !(v > 0) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: density for %s must be positive, got %v", ErrInvalidInput, k, v)
		}
	}
	return nil
}

// Clone returns an independent copy.
func (d DensityTable) Clone() DensityTable {
	out := make(DensityTable, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// OcclusionLoss accumulates density x length over segs.
func OcclusionLoss(segs []PathSegment, densities DensityTable) float64 {
	loss := 0.0
	for _, s := range segs {
		loss += densities[s.Material] * s.Length
	}
	return loss
}

// OcclusionPath is the evaluated line-of-sight path between two points.
type OcclusionPath struct {
	Segments []PathSegment
	Distance float64
	LossDB   float64
	DelayNS  float64
}

// TraceOcclusion applies the occlusion model between a and b. ok is false
// when the pair is farther apart than MaxStrength (checked before any ray
// marching) or when the accumulated loss exceeds MaxStrength.
func TraceOcclusion(a, b mgl64.Vec3, grid *VoxelGrid, densities DensityTable) (OcclusionPath, bool, error) {
	dist := Distance(a, b)
	if dist > MaxStrength {
		return OcclusionPath{Distance: dist}, false, nil
	}
	segs, err := Occlusion(a, b, grid)
	if err != nil {
		return OcclusionPath{}, false, err
	}
	path := OcclusionPath{
		Segments: segs,
		Distance: dist,
		LossDB:   OcclusionLoss(segs, densities),
		DelayNS:  PropagationDelayNS(dist, 1),
	}
	if path.LossDB > MaxStrength {
		return path, false, nil
	}
	return path, true, nil
}
