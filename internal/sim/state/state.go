// internal/sim/state/state.go
package state

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/warehouse-mesh-simulator/mesh"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

var (
	// ErrPublish wraps failures of a snapshot broadcast. It is logged and
	// counted but never stops the simulation.
	ErrPublish = errors.New("publish failure")
	// ErrNoSnapshot is returned before the first tick has been published.
	ErrNoSnapshot = errors.New("no snapshot published yet")
	// ErrStaleSnapshot rejects a swap that would move the tick backwards.
	ErrStaleSnapshot = errors.New("stale snapshot")
)

// SimulationState is one consistent, read-only view of the simulation.
// A new value is assembled for every tick and swapped in whole.
type SimulationState struct {
	RunID     string
	Tick      int
	Grid      *core.VoxelGrid
	Nodes     map[string]model.Node
	Graph     *mesh.Graph
	Routing   *mesh.Routing
	Hears     model.Hears
	Pass      *core.BuildResult
	CreatedAt time.Time
}

// Inputs are the parts of a tick that the driver computes.
type Inputs struct {
	RunID  string
	Tick   int
	Grid   *core.VoxelGrid
	Nodes  []model.Node
	Result *core.BuildResult
	// Root selects the routing root. Empty picks one from Rand.
	Root string
	Rand mesh.RootPicker
}

// Assemble turns a connectivity pass into the next state. The graph phase
// follows on from prev; routing is always recomputed from scratch.
func Assemble(prev *SimulationState, in Inputs) (*SimulationState, error) {
	if in.Result == nil {
		return nil, fmt.Errorf("%w: missing connectivity result", core.ErrInvalidInput)
	}
	phase := mesh.PhaseEmpty
	if prev != nil && prev.Graph != nil {
		phase = prev.Graph.Phase()
	}
	g, err := mesh.FromEdges(in.Result.Names, in.Result.Edges, phase.Next())
	if err != nil {
		return nil, fmt.Errorf("build mesh graph: %w", err)
	}
	root, err := mesh.ChooseRoot(g, in.Root, in.Rand)
	if err != nil {
		return nil, fmt.Errorf("choose routing root: %w", err)
	}
	routing, err := mesh.Dijkstra(g, root)
	if err != nil {
		return nil, fmt.Errorf("route from %s: %w", root, err)
	}
	return &SimulationState{
		RunID:     in.RunID,
		Tick:      in.Tick,
		Grid:      in.Grid,
		Nodes:     model.NodesByName(in.Nodes),
		Graph:     g,
		Routing:   routing,
		Hears:     in.Result.Hears(),
		Pass:      in.Result,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NodeList returns the nodes sorted by name.
func (s *SimulationState) NodeList() []model.Node {
	out := make([]model.Node, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Snapshot is the wire view of a SimulationState: who hears whom and the
// routing tree.
type Snapshot struct {
	RunID       string        `json:"runId"`
	Tick        int           `json:"tick"`
	Nodes       []model.Node  `json:"nodes"`
	Controllers model.Hears   `json:"controllers"`
	Routing     *mesh.Routing `json:"routing"`
}

// Snapshot derives the wire view.
func (s *SimulationState) Snapshot() Snapshot {
	return Snapshot{
		RunID:       s.RunID,
		Tick:        s.Tick,
		Nodes:       s.NodeList(),
		Controllers: s.Hears,
		Routing:     s.Routing,
	}
}

// Publisher delivers snapshots to external consumers.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap Snapshot) error
}

// MetricsRecorder receives snapshot gauges and publish failures.
type MetricsRecorder interface {
	SetSnapshotCounts(tick, nodes, edges int)
	PublishFailed()
}

// Store holds the single published SimulationState. Readers never block
// and always observe a complete state.
type Store struct {
	cur atomic.Pointer[SimulationState]

	// pubMu serialises broadcasts so a reload cannot interleave with a
	// tick publish.
	pubMu      sync.Mutex
	publishers []Publisher

	log     logging.Logger
	metrics MetricsRecorder
}

// StoreOption customises Store construction.
type StoreOption func(*Store)

// WithPublisher adds a snapshot publisher.
func WithPublisher(p Publisher) StoreOption {
	return func(s *Store) {
		if p != nil {
			s.publishers = append(s.publishers, p)
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) StoreOption {
	return func(s *Store) {
		s.metrics = m
	}
}

// NewStore returns an empty store.
func NewStore(log logging.Logger, opts ...StoreOption) *Store {
	if log == nil {
		log = logging.Noop()
	}
	s := &Store{log: log}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Current returns the published state, or nil before the first swap.
func (s *Store) Current() *SimulationState {
	return s.cur.Load()
}

// Swap publishes next as the current state. Ticks never go backwards.
func (s *Store) Swap(next *SimulationState) error {
	if next == nil {
		return fmt.Errorf("%w: nil state", core.ErrInvalidInput)
	}
	for {
		prev := s.cur.Load()
		if prev != nil && next.Tick < prev.Tick {
			return fmt.Errorf("%w: tick %d after %d", ErrStaleSnapshot, next.Tick, prev.Tick)
		}
		if s.cur.CompareAndSwap(prev, next) {
			break
		}
	}
	if s.metrics != nil {
		edges := 0
		if next.Graph != nil {
			edges = next.Graph.Size()
		}
		s.metrics.SetSnapshotCounts(next.Tick, len(next.Nodes), edges)
	}
	return nil
}

// Snapshot returns the wire view of the current state.
func (s *Store) Snapshot() (Snapshot, error) {
	cur := s.Current()
	if cur == nil {
		return Snapshot{}, ErrNoSnapshot
	}
	return cur.Snapshot(), nil
}

// Publish broadcasts the current state to every publisher. Each failure is
// wrapped with ErrPublish, logged and counted; the joined error is
// returned for callers that care.
func (s *Store) Publish(ctx context.Context) error {
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()

	var errs []error
	for _, p := range s.publishers {
		if err := p.PublishSnapshot(ctx, snap); err != nil {
			err = fmt.Errorf("%w: %w", ErrPublish, err)
			s.log.Warn(ctx, "snapshot publish failed",
				logging.Tick(snap.Tick),
				logging.Err(err),
			)
			if s.metrics != nil {
				s.metrics.PublishFailed()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reload answers an external reload request by re-broadcasting the last
// state without recomputing anything.
func (s *Store) Reload(ctx context.Context) error {
	if s.Current() == nil {
		return ErrNoSnapshot
	}
	s.log.Info(ctx, "reload requested; re-publishing last snapshot",
		logging.Tick(s.Current().Tick))
	return s.Publish(ctx)
}
