package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/config"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/sim/driver"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/sim/state"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults + env when empty)")
	ticks := flag.Int("ticks", -1, "number of ticks to run; overrides the config when >= 0")
	accelerated := flag.Bool("accelerated", true, "run ticks back to back instead of once per interval")
	lossMode := flag.String("loss-mode", "", "occlusion or ray-path; overrides the config")
	outputDir := flag.String("out", "", "directory for scene.obj, scene.mtl and grid.wmvg; overrides the config")
	noExport := flag.Bool("no-export", false, "skip the scene export")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}
	if *ticks >= 0 {
		cfg.Ticks = *ticks
	}
	cfg.Accelerated = *accelerated
	if *lossMode != "" {
		cfg.LossMode = *lossMode
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *noExport {
		cfg.Export = false
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if err := run(runCtx, cfg, log, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// run executes one headless simulation and prints a link table per tick.
func run(ctx context.Context, cfg config.Config, log logging.Logger, out io.Writer) error {
	d, err := driver.New(driver.Options{
		Config: cfg,
		Log:    log,
		OnTick: func(s *state.SimulationState) { printTick(out, s) },
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Starting simulation: run=%s nodes=%d ticks=%d mode=%s loss=%s\n",
		d.RunID(), cfg.Nodes.Count, cfg.Ticks, cfg.ClockMode(), cfg.LossMode)
	if err := d.Run(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Simulation complete.")
	return nil
}

func printTick(out io.Writer, s *state.SimulationState) {
	fmt.Fprintf(out, "[tick %d] %d nodes, %d links, root %s\n",
		s.Tick, len(s.Nodes), s.Graph.Size(), s.Routing.Root)

	names := make([]string, 0, len(s.Hears))
	for name := range s.Hears {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, a := range names {
		neighbours := make([]string, 0, len(s.Hears[a]))
		for b := range s.Hears[a] {
			if a < b {
				neighbours = append(neighbours, b)
			}
		}
		sort.Strings(neighbours)
		for _, b := range neighbours {
			sig := s.Hears[a][b]
			fmt.Fprintf(out, "↳ Link %-8s ↔ %-8s quality=%-9s %5.1f%% %7.1f dBm\n",
				a, b, sig.Quality(), sig.Percent, sig.DBm)
		}
	}
	unreachable := 0
	for name := range s.Nodes {
		if !s.Routing.Reachable(name) {
			unreachable++
		}
	}
	if unreachable > 0 {
		fmt.Fprintf(out, "↳ %d node(s) cannot reach %s\n", unreachable, s.Routing.Root)
	}
}
