package model

import "github.com/go-gl/mathgl/mgl64"

// Node is a mesh controller placed somewhere in the warehouse.
//
// Nodes are created by the scatterer and only change position between
// ticks; a connectivity pass always sees a frozen copy.
type Node struct {
	Name string     `json:"name" yaml:"name"`
	Pos  mgl64.Vec3 `json:"pos" yaml:"pos"`

	// Beamforming nodes use their single strongest path plus a fixed
	// antenna gain instead of combining multipath.
	Beamforming bool `json:"bf" yaml:"bf"`

	// Mobile nodes may drift between ticks.
	Mobile bool `json:"mobile,omitempty" yaml:"mobile,omitempty"`
}

// NodesByName indexes nodes by name. Later duplicates win.
func NodesByName(nodes []Node) map[string]Node {
	out := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		out[n.Name] = n
	}
	return out
}
