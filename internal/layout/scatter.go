package layout

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

// StepScatter is reported while nodes are placed.
const StepScatter = "Scattering nodes"

// ScatterConfig controls node placement.
type ScatterConfig struct {
	Count            int
	BeamformFraction float64
	MobileFraction   float64
	Seed             uint64
}

// NodeName formats the i-th controller name.
func NodeName(i int) string {
	return fmt.Sprintf("ctrl-%03d", i)
}

// Scatter places cfg.Count nodes on distinct free columns. A node sits in
// the centre of the first empty cell above whatever occupies its column,
// so controllers end up on the floor, on piles and on top of shelves.
func Scatter(grid *core.VoxelGrid, cfg ScatterConfig) ([]model.Node, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}
	if cfg.Count <= 0 {
		return nil, fmt.Errorf("%w: node count %d", core.ErrInvalidInput, cfg.Count)
	}
	if !validFraction(cfg.BeamformFraction) || !validFraction(cfg.MobileFraction) {
		return nil, fmt.Errorf("%w: fractions must lie in [0,1]", core.ErrInvalidInput)
	}

	free := freeColumns(grid)
	if len(free) < cfg.Count {
		return nil, fmt.Errorf("%w: %d nodes requested but only %d free columns", core.ErrInvalidInput, cfg.Count, len(free))
	}
	rng := newRand(cfg.Seed)
	rng.Shuffle(len(free), func(i, j int) { free[i], free[j] = free[j], free[i] })

	nodes := make([]model.Node, cfg.Count)
	for i := range nodes {
		c := free[i]
		nodes[i] = model.Node{
			Name:        NodeName(i),
			Pos:         cellCentre(c[0], c[1], grid.ColumnTop(c[0], c[1])),
			Beamforming: rng.Float64() < cfg.BeamformFraction,
			Mobile:      rng.Float64() < cfg.MobileFraction,
		}
	}
	return nodes, nil
}

func validFraction(f float64) bool {
	return f >= 0 && f <= 1 && !math.IsNaN(f)
}

// freeColumns lists (x,y) columns with at least one empty cell above their
// highest obstacle.
func freeColumns(g *core.VoxelGrid) [][2]int {
	x, y, z := g.Dims()
	out := make([][2]int, 0, x*y)
	for i := 0; i < x; i++ {
		for j := 0; j < y; j++ {
			if g.ColumnTop(i, j) < z {
				out = append(out, [2]int{i, j})
			}
		}
	}
	return out
}

func cellCentre(x, y, z int) mgl64.Vec3 {
	return mgl64.Vec3{float64(x) + 0.5, float64(y) + 0.5, float64(z) + 0.5}
}

// Mover repositions nodes between ticks.
type Mover interface {
	Move(tick int, nodes []model.Node) []model.Node
}

// Static never moves anything.
type Static struct{}

// Move returns nodes unchanged.
func (Static) Move(_ int, nodes []model.Node) []model.Node { return nodes }

// Drift walks mobile nodes to a random free column within Step cells.
// A move that would land on an obstacle column or another node is skipped,
// so positions stay distinct.
type Drift struct {
	Grid *core.VoxelGrid
	Step float64
	rng  *rand.Rand
}

// NewDrift returns a seeded Drift mover.
func NewDrift(grid *core.VoxelGrid, step float64, seed uint64) *Drift {
	return &Drift{Grid: grid, Step: step, rng: newRand(seed)}
}

// Move returns a new slice; the input is left untouched.
func (d *Drift) Move(_ int, nodes []model.Node) []model.Node {
	out := make([]model.Node, len(nodes))
	copy(out, nodes)
	reach := int(math.Floor(d.Step))
	if d.Grid == nil || reach < 1 {
		return out
	}

	taken := make(map[mgl64.Vec3]bool, len(out))
	for _, n := range out {
		taken[n.Pos] = true
	}
	xMax, yMax, zMax := d.Grid.Dims()
	for i, n := range out {
		if !n.Mobile {
			continue
		}
		x := int(n.Pos.X()) + d.rng.IntN(2*reach+1) - reach
		y := int(n.Pos.Y()) + d.rng.IntN(2*reach+1) - reach
		if x < 0 || y < 0 || x >= xMax || y >= yMax {
			continue
		}
		top := d.Grid.ColumnTop(x, y)
		if top >= zMax {
			continue
		}
		next := cellCentre(x, y, top)
		if taken[next] {
			continue
		}
		delete(taken, n.Pos)
		taken[next] = true
		out[i].Pos = next
	}
	return out
}
