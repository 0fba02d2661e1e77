package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// LightSpeed is the propagation speed in vacuum, m/s. One grid unit is one
// metre.
const LightSpeed = 299792458.0

// Distance returns the straight-line distance between two points.
func Distance(a, b mgl64.Vec3) float64 {
	return b.Sub(a).Len()
}

// PathLength sums the lengths of consecutive segments of a polyline.
func PathLength(points []mgl64.Vec3) float64 {
	total := 0.0
	for i := 0; i+1 < len(points); i++ {
		total += Distance(points[i], points[i+1])
	}
	return total
}

// AngleBetween returns the angle between u and v in radians. Zero vectors
// yield 0.
func AngleBetween(u, v mgl64.Vec3) float64 {
	lu, lv := u.Len(), v.Len()
	if lu == 0 || lv == 0 {
		return 0
	}
	cos := u.Dot(v) / (lu * lv)
	// Rounding can push |cos| slightly past 1.
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos)
}

// PropagationDelayNS converts a path length in metres to nanoseconds at
// the given refractive index.
func PropagationDelayNS(lengthM, refractiveIndex float64) float64 {
	return lengthM / LightSpeed * refractiveIndex * 1e9
}

func finiteVec(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
