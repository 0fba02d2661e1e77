package core

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

const (
	airRefractiveIndex      = 1.00029
	obstacleRefractiveIndex = 1.5
	// obstacleAttenuation stretches the effective length of segments that
	// run inside an obstacle.
	obstacleAttenuation = 30.0
	// minFSPLDistance keeps FSPL finite for coincident points.
	minFSPLDistance = 0.01
	// minReflectionCoefficient caps the loss of a near-total absorption.
	minReflectionCoefficient = 1e-6
)

// RayLossModel turns one propagation path into a loss and a delay.
type RayLossModel interface {
	ComputeLoss(rec model.RayPathRecord, freqHz, permittivity float64) (lossDB, delayNS float64, err error)
}

// KindLossFunc is the loss formula for a single record kind.
type KindLossFunc func(rec model.RayPathRecord, freqHz, permittivity float64) (lossDB, delayNS float64, err error)

// PhysicalLossModel dispatches on the record kind to one of three
// replaceable formulas.
type PhysicalLossModel struct {
	Direct     KindLossFunc
	Diffracted KindLossFunc
	Reflected  KindLossFunc
}

// NewPhysicalLossModel wires the default free-space, knife-edge and Fresnel
// reflection formulas.
func NewPhysicalLossModel() *PhysicalLossModel {
	return &PhysicalLossModel{
		Direct:     DirectPathLoss,
		Diffracted: DiffractedPathLoss,
		Reflected:  ReflectedPathLoss,
	}
}

// ComputeLoss implements RayLossModel.
func (m *PhysicalLossModel) ComputeLoss(rec model.RayPathRecord, freqHz, permittivity float64) (float64, float64, error) {
	if !(freqHz > 0) || math.IsInf(freqHz, 0) {
		return 0, 0, fmt.Errorf("%w: frequency %v Hz", ErrInvalidInput, freqHz)
	}
	if len(rec.Points) < 2 {
		return 0, 0, fmt.Errorf("%w: %s record with %d points", ErrGeometryOracle, rec.Kind, len(rec.Points))
	}

	var fn KindLossFunc
	switch rec.Kind {
	case model.RayDirect:
		fn = m.Direct
	case model.RayDiffracted:
		fn = m.Diffracted
	case model.RayReflected:
		fn = m.Reflected
	default:
		return 0, 0, fmt.Errorf("%w: %s", ErrUnsupportedPathKind, rec.Kind)
	}
	if fn == nil {
		return 0, 0, fmt.Errorf("%w: no formula configured for %s", ErrUnsupportedPathKind, rec.Kind)
	}
	return fn(rec, freqHz, permittivity)
}

// FSPL is the free-space path loss in dB: 20log10(4*pi*d*f/c).
func FSPL(distance, freqHz float64) float64 {
	if distance < minFSPLDistance {
		distance = minFSPLDistance
	}
	return 20*math.Log10(distance) + 20*math.Log10(freqHz) - 147.55
}

// DirectPathLoss treats the interior points of the record as alternating
// obstacle entry/exit points and applies FSPL to the effective length.
func DirectPathLoss(rec model.RayPathRecord, freqHz, _ float64) (float64, float64, error) {
	return penetrationLoss(rec.Points, freqHz, -1), penetrationDelay(rec.Points, -1), nil
}

// ReflectedPathLoss adds the TE Fresnel reflection loss at
// Points[RefIndex] to the penetration loss of the whole path.
func ReflectedPathLoss(rec model.RayPathRecord, freqHz, permittivity float64) (float64, float64, error) {
	if rec.RefIndex <= 0 || rec.RefIndex >= len(rec.Points)-1 {
		return 0, 0, fmt.Errorf("%w: reflection index %d outside (0,%d)", ErrGeometryOracle, rec.RefIndex, len(rec.Points)-1)
	}
	if !(permittivity > 0) {
		return 0, 0, fmt.Errorf("%w: permittivity %v", ErrInvalidInput, permittivity)
	}
	coe := math.Abs(reflectionCoefficientTE(rec.Tx(), rec.Rx(), rec.Points[rec.RefIndex], permittivity))
	if coe < minReflectionCoefficient || math.IsNaN(coe) {
		coe = minReflectionCoefficient
	}
	loss := penetrationLoss(rec.Points, freqHz, rec.RefIndex) - 20*math.Log10(coe)
	return loss, penetrationDelay(rec.Points, rec.RefIndex), nil
}

// DiffractedPathLoss applies FSPL over the direct distance plus the
// multiple knife-edge loss of the interior edge points.
func DiffractedPathLoss(rec model.RayPathRecord, freqHz, _ float64) (float64, float64, error) {
	tx, rx := rec.Tx(), rec.Rx()
	edges := make([]mgl64.Vec3, len(rec.Points)-2)
	copy(edges, rec.Points[1:len(rec.Points)-1])
	orderEdgesFrom(tx, edges)

	loss := FSPL(Distance(tx, rx), freqHz) + knifeEdgeLoss(tx, rx, edges, freqHz)

	path := make([]mgl64.Vec3, 0, len(edges)+2)
	path = append(path, tx)
	path = append(path, edges...)
	path = append(path, rx)
	return loss, PropagationDelayNS(PathLength(path), airRefractiveIndex), nil
}

// penetrationLoss walks the polyline, counting even segments as air and
// odd segments as obstacle. The reflection point does not toggle parity.
func penetrationLoss(points []mgl64.Vec3, freqHz float64, refIndex int) float64 {
	effective := 0.0
	for i, s := 0, 0; i+1 < len(points); i, s = i+1, s+1 {
		if i == refIndex {
			s++
		}
		d := Distance(points[i], points[i+1])
		if s%2 == 0 {
			effective += d
		} else {
			effective += obstacleAttenuation * d
		}
	}
	return FSPL(effective, freqHz)
}

// penetrationDelay uses the same medium parity as penetrationLoss.
func penetrationDelay(points []mgl64.Vec3, refIndex int) float64 {
	delay := 0.0
	for i, s := 0, 0; i+1 < len(points); i, s = i+1, s+1 {
		if i == refIndex {
			s++
		}
		d := Distance(points[i], points[i+1])
		if s%2 == 0 {
			delay += PropagationDelayNS(d, airRefractiveIndex)
		} else {
			delay += PropagationDelayNS(d, obstacleRefractiveIndex)
		}
	}
	return delay
}

// reflectionCoefficientTE is the Fresnel coefficient for a TE wave going
// from air into a material of the given relative permittivity.
func reflectionCoefficientTE(tx, rx, ref mgl64.Vec3, permittivity float64) float64 {
	toTx := tx.Sub(ref)
	toRx := rx.Sub(ref)

	n1, n2 := airRefractiveIndex, permittivity
	c1 := LightSpeed / math.Sqrt(n1)
	c2 := LightSpeed / math.Sqrt(n2)

	incidence := AngleBetween(toTx, toRx) / 2
	if math.Sqrt(math.Abs(n1/n2))*math.Sin(incidence) >= 1 {
		return 1
	}
	refraction := math.Asin(c2 * math.Sin(incidence) / c1)

	a := math.Sqrt(n1) * math.Cos(incidence)
	b := math.Sqrt(n2) * math.Cos(refraction)
	return (a - b) / (a + b)
}

// fresnelV is the Fresnel-Kirchhoff diffraction parameter of edge on the
// path tx->rx.
func fresnelV(tx, rx, edge mgl64.Vec3, freqHz float64) float64 {
	r1 := Distance(tx, edge)
	r2 := Distance(edge, rx)
	s := Distance(tx, rx)
	if r1 == 0 || r2 == 0 {
		return math.NaN()
	}
	h := r1 * math.Sin(AngleBetween(edge.Sub(tx), rx.Sub(tx)))
	wavelength := LightSpeed / freqHz
	return h * math.Sqrt((2*s)/(wavelength*r1*r2))
}

// edgeLoss is the ITU-R P.526 single knife-edge approximation. Undefined
// geometry contributes nothing.
func edgeLoss(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	l := 6.9 + 20*math.Log10(math.Sqrt((v-0.1)*(v-0.1)+1)+v-0.1)
	if math.IsNaN(l) || math.IsInf(l, 0) {
		return 0
	}
	return l
}

// knifeEdgeLoss combines up to three edges: the edge with the largest v is
// the main obstacle, its neighbours are evaluated against the sub-paths on
// either side. With more than three edges only the three largest-v edges
// are used.
func knifeEdgeLoss(tx, rx mgl64.Vec3, edges []mgl64.Vec3, freqHz float64) float64 {
	switch len(edges) {
	case 0:
		return 0
	case 1:
		return edgeLoss(fresnelV(tx, rx, edges[0], freqHz))
	case 2:
		nearTx, nearRx := edges[0], edges[1]
		vTx := fresnelV(tx, rx, nearTx, freqHz)
		vRx := fresnelV(tx, rx, nearRx, freqHz)
		if vTx > vRx {
			return edgeLoss(vTx) + edgeLoss(fresnelV(nearTx, rx, nearRx, freqHz))
		}
		return edgeLoss(vRx) + edgeLoss(fresnelV(tx, nearRx, nearTx, freqHz))
	}

	if len(edges) > 3 {
		edges = strongestEdges(tx, rx, edges, freqHz, 3)
		orderEdgesFrom(tx, edges)
	}
	nearTx, center, nearRx := edges[0], edges[1], edges[2]
	vTx := fresnelV(tx, rx, nearTx, freqHz)
	vC := fresnelV(tx, rx, center, freqHz)
	vRx := fresnelV(tx, rx, nearRx, freqHz)
	vMax := math.Max(vTx, math.Max(vC, vRx))

	switch vMax {
	case vTx:
		return edgeLoss(vTx) +
			edgeLoss(fresnelV(nearTx, nearRx, center, freqHz)) +
			edgeLoss(fresnelV(center, rx, nearRx, freqHz))
	case vRx:
		return edgeLoss(vRx) +
			edgeLoss(fresnelV(tx, center, nearTx, freqHz)) +
			edgeLoss(fresnelV(nearTx, nearRx, center, freqHz))
	default:
		return edgeLoss(vC) +
			edgeLoss(fresnelV(tx, center, nearTx, freqHz)) +
			edgeLoss(fresnelV(center, rx, nearRx, freqHz))
	}
}

func orderEdgesFrom(origin mgl64.Vec3, edges []mgl64.Vec3) {
	sort.SliceStable(edges, func(i, j int) bool {
		return Distance(origin, edges[i]) < Distance(origin, edges[j])
	})
}

func strongestEdges(tx, rx mgl64.Vec3, edges []mgl64.Vec3, freqHz float64, n int) []mgl64.Vec3 {
	type scored struct {
		edge mgl64.Vec3
		v    float64
	}
	all := make([]scored, len(edges))
	for i, e := range edges {
		v := fresnelV(tx, rx, e, freqHz)
		if math.IsNaN(v) {
			v = math.Inf(-1)
		}
		all[i] = scored{edge: e, v: v}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].v > all[j].v })
	out := make([]mgl64.Vec3, 0, n)
	for i := 0; i < n && i < len(all); i++ {
		out = append(out, all[i].edge)
	}
	return out
}

// LinearPowerRatio converts an attenuation in dB to a linear power ratio.
func LinearPowerRatio(lossDB float64) float64 {
	return math.Pow(10, -lossDB/10)
}

// TotalLossDB combines several path losses into one equivalent attenuation.
// An empty input is an infinite loss.
func TotalLossDB(lossesDB []float64) float64 {
	total := 0.0
	for _, l := range lossesDB {
		total += LinearPowerRatio(l)
	}
	if total == 0 {
		return math.Inf(1)
	}
	return -10 * math.Log10(total)
}
