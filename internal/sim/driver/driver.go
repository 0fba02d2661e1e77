// Package driver wires layout, connectivity, routing and publishing into
// the simulation run: build the scene, run the first connectivity pass
// alongside the mesh export, then advance the tick loop.
package driver

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/config"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/export"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/layout"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/observability"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/oracle"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/progress"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/sim/state"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
	"github.com/signalsfoundry/warehouse-mesh-simulator/timectrl"
)

// Build steps reported by the driver itself.
const (
	StepInternal      = "Creating internal representation"
	StepExportSkipped = "Export skipped"
)

// GridFileName is written next to the exported scene.
const GridFileName = "grid.wmvg"

// SceneExporter writes the voxel scene for viewers.
type SceneExporter interface {
	Export(ctx context.Context, grid *core.VoxelGrid, report core.ProgressFunc) (export.Result, error)
}

// Options configure a Driver. Only Config is required.
type Options struct {
	Config config.Config
	Log    logging.Logger

	Generator layout.Generator
	Exporter  SceneExporter
	Oracle    core.GeometryOracle
	// NewMover builds the between-tick mover once the grid exists.
	NewMover func(grid *core.VoxelGrid) layout.Mover

	Store    *state.Store
	Progress progress.Sink
	Metrics  *observability.SimCollector

	// OnTick observes every published state.
	OnTick func(*state.SimulationState)
}

// Driver runs one simulation.
type Driver struct {
	cfg      config.Config
	log      logging.Logger
	opts     Options
	runID    string
	store    *state.Store
	progress progress.Sink
	rng      *rand.Rand
	clock    *timectrl.TickClock

	grid    *core.VoxelGrid
	nodes   []model.Node
	builder *core.ConnectivityBuilder
	mover   layout.Mover
	prev    *state.SimulationState
}

// New validates the configuration and prepares a driver.
func New(opts Options) (*Driver, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	cfg := opts.Config
	if opts.Log == nil {
		opts.Log = logging.Noop()
	}
	if opts.Progress == nil {
		opts.Progress = progress.Noop{}
	}
	if opts.Generator == nil {
		if cfg.Layout.GridFile != "" {
			opts.Generator = layout.FileGenerator{Path: cfg.Layout.GridFile}
		} else {
			opts.Generator = layout.Warehouse{
				Width:     cfg.Layout.Width,
				Depth:     cfg.Layout.Depth,
				Height:    cfg.Layout.Height,
				Seed:      cfg.Seed,
				Partition: cfg.Layout.Partition,
			}
		}
	}
	if opts.Exporter == nil && cfg.Export {
		opts.Exporter = export.Exporter{Dir: cfg.OutputDir}
	}
	if opts.NewMover == nil {
		step, seed := cfg.Nodes.MobileStep, cfg.Seed+2
		opts.NewMover = func(grid *core.VoxelGrid) layout.Mover {
			if step <= 0 {
				return layout.Static{}
			}
			return layout.NewDrift(grid, step, seed)
		}
	}

	runID := logging.NewID()
	log := opts.Log.With(logging.String("run_id", runID))
	store := opts.Store
	if store == nil {
		var storeOpts []state.StoreOption
		if opts.Metrics != nil {
			storeOpts = append(storeOpts, state.WithMetricsRecorder(opts.Metrics))
		}
		store = state.NewStore(log, storeOpts...)
	}

	d := &Driver{
		cfg:      cfg,
		log:      log,
		opts:     opts,
		runID:    runID,
		store:    store,
		progress: opts.Progress,
		rng:      rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1)),
		clock:    timectrl.NewTickClock(cfg.Ticks, cfg.TickInterval, cfg.ClockMode()),
	}
	d.clock.AddListener(d.progress.Tick)
	return d, nil
}

// RunID identifies this run in logs and snapshots.
func (d *Driver) RunID() string { return d.runID }

// Store returns the snapshot store the driver publishes into.
func (d *Driver) Store() *state.Store { return d.store }

// Grid returns the scene once Setup has run.
func (d *Driver) Grid() *core.VoxelGrid { return d.grid }

// Nodes returns the node positions of the latest tick.
func (d *Driver) Nodes() []model.Node { return d.nodes }

func (d *Driver) buildReport(offset, span float64) core.ProgressFunc {
	return progress.Scaled{Sink: d.progress, Task: progress.TaskBuild, Offset: offset, Span: span}.ReportFunc()
}

// Setup generates the scene, scatters nodes and configures the builder.
func (d *Driver) Setup(ctx context.Context) error {
	ctx, span := observability.StartSpan(ctx, "meshsim.setup")
	defer span.End()

	grid, err := d.opts.Generator.Generate(ctx, d.buildReport(0, 0.1))
	if err != nil {
		return observability.RecordFailure(span, fmt.Errorf("generate layout: %w", err))
	}
	d.grid = grid

	d.progress.Report(progress.TaskBuild, 0.1, layout.StepScatter)
	nodes, err := layout.Scatter(grid, layout.ScatterConfig{
		Count:            d.cfg.Nodes.Count,
		BeamformFraction: d.cfg.Nodes.BeamformFraction,
		MobileFraction:   d.cfg.Nodes.MobileFraction,
		Seed:             d.cfg.Seed,
	})
	if err != nil {
		return observability.RecordFailure(span, fmt.Errorf("scatter nodes: %w", err))
	}
	d.nodes = nodes

	d.progress.Report(progress.TaskBuild, 0.15, StepInternal)
	if d.builder, err = d.newBuilder(grid); err != nil {
		return observability.RecordFailure(span, err)
	}
	d.mover = d.opts.NewMover(grid)

	x, y, z := grid.Dims()
	span.SetAttributes(attribute.Int("nodes", len(nodes)), attribute.String("grid", fmt.Sprintf("%dx%dx%d", x, y, z)))
	d.log.Info(ctx, "scene ready",
		logging.Int("width", x), logging.Int("depth", y), logging.Int("height", z),
		logging.Int("nodes", len(nodes)),
		logging.String("loss_mode", string(d.builder.Mode)),
	)
	return nil
}

func (d *Driver) newBuilder(grid *core.VoxelGrid) (*core.ConnectivityBuilder, error) {
	densities, err := d.cfg.DensityTable()
	if err != nil {
		return nil, err
	}
	b := core.NewConnectivityBuilder(grid)
	b.Mode = d.cfg.Mode()
	b.Densities = densities
	b.Combiner = d.cfg.Combiner()
	b.FrequencyHz = d.cfg.Radio.FrequencyHz
	b.Permittivity = d.cfg.Radio.Permittivity
	b.SensitivityDBm = d.cfg.Radio.SensitivityDBm
	if d.cfg.Workers > 0 {
		b.Workers = d.cfg.Workers
	}
	if b.Mode == core.ModeRayPath {
		b.Oracle = d.opts.Oracle
		if b.Oracle == nil {
			b.Oracle = oracle.New(grid)
		}
	}
	return b, b.Validate()
}

// Run executes the whole simulation: Setup, then the scene export and the
// first pass concurrently, then the tick loop. Export failures are logged
// and never fail the run.
func (d *Driver) Run(ctx context.Context) error {
	ctx = logging.ContextWithRunID(ctx, d.runID)
	if err := d.Setup(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.exportScene(gctx)
		return nil
	})
	g.Go(func() error {
		return d.step(gctx, 0, d.nodes)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	err := d.clock.Run(ctx, func(ctx context.Context, completed int) error {
		nodes := d.mover.Move(completed+1, d.nodes)
		for i := range nodes {
			if nodes[i].Pos != d.nodes[i].Pos {
				d.log.Debug(ctx, "node moved", logging.Node(nodes[i].Name), logging.Any("pos", nodes[i].Pos))
			}
		}
		if err := d.step(ctx, completed+1, nodes); err != nil {
			return err
		}
		d.nodes = nodes
		return nil
	})
	if err != nil {
		return err
	}
	d.log.Info(ctx, "simulation complete", logging.Int("ticks", d.clock.Current()))
	return nil
}

func (d *Driver) exportScene(ctx context.Context) {
	if d.opts.Exporter == nil {
		d.progress.Report(progress.TaskBuild, 1, StepExportSkipped)
		return
	}
	ctx, span := observability.StartSpan(ctx, "meshsim.export")
	defer span.End()

	res, err := d.opts.Exporter.Export(ctx, d.grid, d.buildReport(0.2, 0.8))
	if err != nil {
		_ = observability.RecordFailure(span, err)
		d.log.Warn(ctx, "scene export failed", logging.Err(err))
		return
	}
	d.log.Info(ctx, "scene exported",
		logging.String("obj", res.OBJPath),
		logging.Int("faces", res.Faces),
	)
	if d.cfg.OutputDir == "" {
		return
	}
	if err := layout.SaveGrid(filepath.Join(d.cfg.OutputDir, GridFileName), d.grid); err != nil {
		d.log.Warn(ctx, "grid save failed", logging.Err(err))
	}
}

// step runs one connectivity pass over nodes and publishes the result.
func (d *Driver) step(ctx context.Context, tick int, nodes []model.Node) error {
	ctx, span := observability.StartSpan(ctx, "meshsim.tick", attribute.Int("tick", tick), attribute.Int("nodes", len(nodes)))
	defer span.End()

	report := func(v float64, step string) { d.progress.Report(progress.TaskSignal, v, step) }
	start := time.Now()
	res, err := d.builder.Build(ctx, nodes, report)
	if err != nil {
		return observability.RecordFailure(span, fmt.Errorf("tick %d: connectivity pass: %w", tick, err))
	}
	elapsed := time.Since(start)
	d.opts.Metrics.ObservePass(res, elapsed)

	next, err := state.Assemble(d.prev, state.Inputs{
		RunID:  d.runID,
		Tick:   tick,
		Grid:   d.grid,
		Nodes:  nodes,
		Result: res,
		Root:   d.cfg.Nodes.Root,
		Rand:   d.rng,
	})
	if err != nil {
		return observability.RecordFailure(span, fmt.Errorf("tick %d: %w", tick, err))
	}
	if err := d.store.Swap(next); err != nil {
		return observability.RecordFailure(span, fmt.Errorf("tick %d: %w", tick, err))
	}
	d.prev = next
	// Failures are logged and counted by the store.
	_ = d.store.Publish(ctx)

	span.SetAttributes(attribute.Int("edges", len(res.Edges)), attribute.Int("pair_errors", len(res.PairErrors)))
	for _, pe := range res.PairErrors {
		d.log.Debug(ctx, "pair skipped", logging.Tick(tick), logging.Link(pe.A, pe.B), logging.Err(pe.Err))
	}
	d.log.Info(ctx, "tick complete",
		logging.Tick(tick),
		logging.Int("edges", len(res.Edges)),
		logging.Int("rejected", res.Rejected),
		logging.Int("pair_errors", len(res.PairErrors)),
		logging.String("root", next.Routing.Root),
		logging.Duration("duration", elapsed),
	)
	if d.opts.OnTick != nil {
		d.opts.OnTick(next)
	}
	return nil
}
