package core

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

// segmentEpsilon suppresses the zero-length segments produced when a ray
// grazes a voxel boundary.
const segmentEpsilon = 0.01

// PathSegment is the part of a ray that lies inside one voxel.
type PathSegment struct {
	Material model.MaterialKind
	Length   float64
}

// Occlusion marches the straight ray from start to end through grid with a
// 3D DDA and returns one segment per traversed voxel, in travel order.
//
// When the ray reaches several voxel boundaries at the same t, all of those
// axes step in the same iteration so diagonal crossings do not produce a
// spurious sliver segment. Voxels outside the grid read as Empty.
func Occlusion(start, end mgl64.Vec3, grid *VoxelGrid) ([]PathSegment, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if !finiteVec(start) || !finiteVec(end) {
		return nil, fmt.Errorf("%w: non-finite ray endpoint", ErrInvalidInput)
	}
	diff := end.Sub(start)
	length := diff.Len()
	if length == 0 {
		return nil, fmt.Errorf("%w: zero-length ray at %v", ErrInvalidInput, start)
	}
	dir := diff.Mul(1 / length)

	var (
		pos    [3]int
		step   [3]int
		tMax   [3]float64
		tDelta [3]float64
	)
	for i := 0; i < 3; i++ {
		pos[i] = int(math.Floor(start[i]))
		switch {
		case dir[i] > 0:
			step[i] = 1
			tMax[i] = (float64(pos[i]+1) - start[i]) / dir[i]
			tDelta[i] = 1 / dir[i]
		case dir[i] < 0:
			step[i] = -1
			tMax[i] = (float64(pos[i]) - start[i]) / dir[i]
			tDelta[i] = -1 / dir[i]
		default:
			tMax[i] = math.Inf(1)
			tDelta[i] = math.Inf(1)
		}
	}

	segments := make([]PathSegment, 0, int(length)*2+2)
	t := 0.0
	for t < length {
		exit := math.Min(math.Min(tMax[0], tMax[1]), math.Min(tMax[2], length))
		if seg := exit - t; seg > segmentEpsilon {
			segments = append(segments, PathSegment{
				Material: grid.At(pos[0], pos[1], pos[2]),
				Length:   seg,
			})
		}
		for i := 0; i < 3; i++ {
			if tMax[i] == exit {
				pos[i] += step[i]
				tMax[i] += tDelta[i]
			}
		}
		t = exit
	}
	return segments, nil
}

// SegmentsLength sums the traversed length of segs.
func SegmentsLength(segs []PathSegment) float64 {
	total := 0.0
	for _, s := range segs {
		total += s.Length
	}
	return total
}
