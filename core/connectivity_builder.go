package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
	"golang.org/x/sync/errgroup"
)

// LossMode selects which PathLossModel a ConnectivityBuilder uses.
type LossMode string

const (
	ModeOcclusion LossMode = "occlusion"
	ModeRayPath   LossMode = "ray-path"
)

// ParseLossMode accepts the configuration spelling of a LossMode.
func ParseLossMode(s string) (LossMode, error) {
	switch LossMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeOcclusion, "":
		return ModeOcclusion, nil
	case ModeRayPath, "raypath", "ray":
		return ModeRayPath, nil
	default:
		return "", fmt.Errorf("%w: unknown loss mode %q", ErrInvalidInput, s)
	}
}

// Progress step descriptions reported by Build.
const (
	StepSignal      = "Determining signal strength"
	StepConnections = "Connections made"
)

// Radio defaults for the BLE profile.
const (
	DefaultFrequencyHz    = 2.4e9
	DefaultPermittivity   = 5.31
	DefaultSensitivityDBm = -100.0
)

// ProgressFunc receives the completed fraction of a pass.
type ProgressFunc func(value float64, step string)

// GeometryOracle supplies propagation paths for ray-path mode.
type GeometryOracle interface {
	Trace(ctx context.Context, tx, rx mgl64.Vec3) ([]model.RayPathRecord, error)
}

// PairError records a pair that was skipped because its evaluation failed.
type PairError struct {
	A, B string
	Err  error
}

func (e PairError) Error() string {
	return fmt.Sprintf("pair %s-%s: %v", e.A, e.B, e.Err)
}

func (e PairError) Unwrap() error { return e.Err }

// BuildResult is the outcome of one connectivity pass.
type BuildResult struct {
	// Names holds every node name in sorted order.
	Names []string
	// Edges are ordered by (A, B) with A < B.
	Edges      []model.Edge
	PairErrors []PairError
	Pairs      int
	// Rejected counts pairs cut by the distance or loss ceiling.
	Rejected int
}

// Hears expands the edges into the symmetric adjacency view.
func (r *BuildResult) Hears() model.Hears {
	return model.HearsFromEdges(r.Names, r.Edges)
}

// ConnectivityBuilder evaluates every unordered node pair and keeps the
// pairs that can hear each other.
type ConnectivityBuilder struct {
	Grid      *VoxelGrid
	Mode      LossMode
	Densities DensityTable
	Combiner  Combiner

	// Ray-path mode only.
	Oracle       GeometryOracle
	LossModel    RayLossModel
	FrequencyHz  float64
	Permittivity float64
	// SensitivityDBm drops ray-path links the receiver cannot decode.
	SensitivityDBm float64

	// Workers bounds the number of pairs evaluated concurrently.
	// Zero means runtime.NumCPU().
	Workers int
}

// NewConnectivityBuilder returns an occlusion-mode builder with the BLE
// radio defaults.
func NewConnectivityBuilder(grid *VoxelGrid) *ConnectivityBuilder {
	return &ConnectivityBuilder{
		Grid:           grid,
		Mode:           ModeOcclusion,
		Densities:      DefaultDensities(),
		Combiner:       DefaultCombiner(),
		LossModel:      NewPhysicalLossModel(),
		FrequencyHz:    DefaultFrequencyHz,
		Permittivity:   DefaultPermittivity,
		SensitivityDBm: DefaultSensitivityDBm,
		Workers:        runtime.NumCPU(),
	}
}

func (b *ConnectivityBuilder) workers() int {
	if b.Workers > 0 {
		return b.Workers
	}
	return runtime.NumCPU()
}

// Validate checks the builder configuration, independent of any node set.
func (b *ConnectivityBuilder) Validate() error {
	if err := b.Grid.Validate(); err != nil {
		return err
	}
	if !b.Grid.Frozen() {
		return fmt.Errorf("%w: voxel grid must be frozen before a pass", ErrInvalidInput)
	}
	switch b.Mode {
	case ModeOcclusion:
		return b.Densities.Validate()
	case ModeRayPath:
		if b.Oracle == nil {
			return fmt.Errorf("%w: ray-path mode without a geometry oracle", ErrInvalidInput)
		}
		if b.LossModel == nil {
			return fmt.Errorf("%w: ray-path mode without a loss model", ErrInvalidInput)
		}
		if !(b.FrequencyHz > 0) {
			return fmt.Errorf("%w: frequency %v Hz", ErrInvalidInput, b.FrequencyHz)
		}
		if !(b.Permittivity > 0) {
			return fmt.Errorf("%w: permittivity %v", ErrInvalidInput, b.Permittivity)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown loss mode %q", ErrInvalidInput, b.Mode)
	}
}

// sortedNodes validates a node set and returns a name-ordered copy.
func sortedNodes(nodes []model.Node) ([]model.Node, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: empty node set", ErrInvalidInput)
	}
	out := make([]model.Node, len(nodes))
	copy(out, nodes)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	seen := make(map[mgl64.Vec3]string, len(out))
	for i, n := range out {
		if n.Name == "" {
			return nil, fmt.Errorf("%w: node at %v has no name", ErrInvalidInput, n.Pos)
		}
		if i > 0 && out[i-1].Name == n.Name {
			return nil, fmt.Errorf("%w: duplicate node name %q", ErrInvalidInput, n.Name)
		}
		if !finiteVec(n.Pos) {
			return nil, fmt.Errorf("%w: node %q has non-finite position", ErrInvalidInput, n.Name)
		}
		if other, ok := seen[n.Pos]; ok {
			return nil, fmt.Errorf("%w: nodes %q and %q share position %v", ErrInvalidInput, other, n.Name, n.Pos)
		}
		seen[n.Pos] = n.Name
	}
	return out, nil
}

// passProgress turns completed pair counts into whole-percent reports.
// Reports are issued under the lock so observers see them in order.
type passProgress struct {
	mu      sync.Mutex
	done    int
	total   int
	lastPct int
	report  ProgressFunc
}

func (p *passProgress) complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	pct := p.done * 100 / p.total
	if pct != p.lastPct {
		p.lastPct = pct
		p.report(float64(p.done)/float64(p.total), StepSignal)
	}
}

type pairOutcome struct {
	edge model.Edge
	ok   bool
	err  error
}

// Build evaluates all n(n-1)/2 pairs of nodes. Pair evaluation runs on a
// bounded pool; every task owns one output slot and slots are merged in
// pair order after the join, so identical inputs give identical results.
//
// Per-pair ErrUnsupportedPathKind and ErrGeometryOracle failures are
// recorded and the pair is skipped. ErrInvalidInput or a cancelled ctx
// aborts the pass.
func (b *ConnectivityBuilder) Build(ctx context.Context, nodes []model.Node, report ProgressFunc) (*BuildResult, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	sorted, err := sortedNodes(nodes)
	if err != nil {
		return nil, err
	}
	if report == nil {
		report = func(float64, string) {}
	}

	n := len(sorted)
	total := n * (n - 1) / 2
	result := &BuildResult{Names: make([]string, n), Pairs: total}
	for i, node := range sorted {
		result.Names[i] = node.Name
	}

	report(0, StepSignal)
	if total == 0 {
		report(1, StepConnections)
		return result, nil
	}

	slots := make([]pairOutcome, total)
	progress := &passProgress{total: total, report: report}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers())
	slot := 0
	for i := 0; i < n && gctx.Err() == nil; i++ {
		for j := i + 1; j < n; j++ {
			a, c, k := sorted[i], sorted[j], slot
			slot++
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				sig, ok, err := b.Signal(gctx, a, c)
				switch {
				case err == nil:
					if ok {
						slots[k] = pairOutcome{edge: model.Edge{A: a.Name, B: c.Name, Signal: sig}, ok: true}
					}
				case IsPassFatal(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
					return PairError{A: a.Name, B: c.Name, Err: err}
				default:
					slots[k] = pairOutcome{err: err}
				}
				progress.complete()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slot = 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			out := slots[slot]
			slot++
			switch {
			case out.ok:
				result.Edges = append(result.Edges, out.edge)
			case out.err != nil:
				result.PairErrors = append(result.PairErrors, PairError{A: sorted[i].Name, B: sorted[j].Name, Err: out.err})
			default:
				result.Rejected++
			}
		}
	}
	report(1, StepConnections)
	return result, nil
}

// Signal evaluates a single pair. ok is false when the pair has no usable
// link. The pair is canonicalised by name first, so Signal(a,b) and
// Signal(b,a) return the same result; the beamforming flag of the
// lexicographically smaller endpoint selects the combining mode.
func (b *ConnectivityBuilder) Signal(ctx context.Context, a, c model.Node) (model.SignalResult, bool, error) {
	if c.Name < a.Name {
		a, c = c, a
	}
	if a.Pos == c.Pos {
		return model.SignalResult{}, false, fmt.Errorf("%w: %q and %q are coincident", ErrInvalidInput, a.Name, c.Name)
	}
	if Distance(a.Pos, c.Pos) > MaxStrength {
		return model.SignalResult{}, false, nil
	}

	switch b.Mode {
	case ModeOcclusion:
		return b.occlusionSignal(a, c)
	case ModeRayPath:
		return b.rayPathSignal(ctx, a, c)
	default:
		return model.SignalResult{}, false, fmt.Errorf("%w: unknown loss mode %q", ErrInvalidInput, b.Mode)
	}
}

func (b *ConnectivityBuilder) occlusionSignal(a, c model.Node) (model.SignalResult, bool, error) {
	path, ok, err := TraceOcclusion(a.Pos, c.Pos, b.Grid, b.Densities)
	if err != nil || !ok {
		return model.SignalResult{}, false, err
	}
	sig, err := b.Combiner.Combine([]float64{path.LossDB}, []float64{path.DelayNS}, a.Beamforming)
	if err != nil {
		return model.SignalResult{}, false, err
	}
	return sig, true, nil
}

func (b *ConnectivityBuilder) rayPathSignal(ctx context.Context, a, c model.Node) (model.SignalResult, bool, error) {
	recs, err := b.Oracle.Trace(ctx, a.Pos, c.Pos)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.SignalResult{}, false, ctxErr
		}
		if !errors.Is(err, ErrGeometryOracle) {
			err = fmt.Errorf("%w: %v", ErrGeometryOracle, err)
		}
		return model.SignalResult{}, false, err
	}
	if len(recs) == 0 {
		return model.SignalResult{}, false, nil
	}

	losses := make([]float64, len(recs))
	delays := make([]float64, len(recs))
	for i, rec := range recs {
		if losses[i], delays[i], err = b.LossModel.ComputeLoss(rec, b.FrequencyHz, b.Permittivity); err != nil {
			return model.SignalResult{}, false, err
		}
	}
	if math.IsInf(TotalLossDB(losses), 1) {
		return model.SignalResult{}, false, nil
	}
	sig, err := b.Combiner.Combine(losses, delays, a.Beamforming)
	if err != nil {
		return model.SignalResult{}, false, err
	}
	if math.IsNaN(sig.DBm) || math.IsInf(sig.DBm, 0) || sig.DBm < b.SensitivityDBm {
		return model.SignalResult{}, false, nil
	}
	return sig, true, nil
}
