package model

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
)

// RayPathKind tags a propagation path returned by a geometry oracle.
type RayPathKind int

const (
	RayDirect     RayPathKind = 1
	RayDiffracted RayPathKind = 2
	RayReflected  RayPathKind = 3
)

func (k RayPathKind) String() string {
	switch k {
	case RayDirect:
		return "direct"
	case RayDiffracted:
		return "diffracted"
	case RayReflected:
		return "reflected"
	default:
		return fmt.Sprintf("raykind(%d)", int(k))
	}
}

// RayPathRecord is one propagation path between a transmitter and a
// receiver.
//
// Points starts at the transmitter and ends at the receiver. For direct and
// reflected paths the interior points alternate obstacle entry and exit.
// For diffracted paths the interior points are the diffracting edges.
// RefIndex is the index of the reflection point in Points and is only
// meaningful for reflected paths.
type RayPathRecord struct {
	Kind     RayPathKind  `json:"kind"`
	Points   []mgl64.Vec3 `json:"points"`
	RefIndex int          `json:"refIndex,omitempty"`
}

// Tx returns the first point of the path.
func (r RayPathRecord) Tx() mgl64.Vec3 {
	if len(r.Points) == 0 {
		return mgl64.Vec3{}
	}
	return r.Points[0]
}

// Rx returns the last point of the path.
func (r RayPathRecord) Rx() mgl64.Vec3 {
	if len(r.Points) == 0 {
		return mgl64.Vec3{}
	}
	return r.Points[len(r.Points)-1]
}
