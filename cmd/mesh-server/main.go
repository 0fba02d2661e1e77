package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/api"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/bus"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/config"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/observability"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/progress"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/sim/driver"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/sim/state"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file (defaults + env when empty)")
	httpAddr := flag.String("http-addr", "", "HTTP API address; overrides the config")
	grpcAddr := flag.String("grpc-addr", "", "gRPC state service address; overrides the config")
	metricsAddr := flag.String("metrics-addr", "", "standalone Prometheus /metrics address; overrides the config")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error(ctx, "invalid configuration", logging.Err(err))
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.API.HTTPAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.API.GRPCAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.API.MetricsAddr = *metricsAddr
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, listeners{}); err != nil {
		log.Error(ctx, "mesh server failed", logging.Err(err))
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

// listeners lets callers pre-bind the API sockets. A nil listener is opened
// from the configured address; an empty address disables that API.
type listeners struct {
	HTTP net.Listener
	GRPC net.Listener
}

// run serves the simulation until ctx is cancelled. The simulation itself
// may finish earlier; the APIs keep serving the last snapshot.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis listeners) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	simMetrics, err := observability.NewSimCollector(reg)
	if err != nil {
		return err
	}
	apiMetrics, err := observability.NewAPICollector(reg)
	if err != nil {
		return err
	}

	bridge, err := bus.New(bus.Config{
		PubURL:    cfg.Bus.PubURL,
		ReloadURL: cfg.Bus.ReloadURL,
		Compress:  cfg.Bus.Compress,
	}, log.With(logging.Component("bus")))
	if err != nil {
		return err
	}
	defer bridge.Close()

	tracker := progress.NewTracker(cfg.Ticks)
	store := state.NewStore(log.With(logging.Component("store")),
		state.WithPublisher(bridge),
		state.WithMetricsRecorder(simMetrics),
	)

	svc := api.NewService(store, tracker, log.With(logging.Component("api")))
	grpcSrv := api.NewGRPCServer(svc, log, apiMetrics)
	httpSrv := &http.Server{
		Handler: api.NewHTTPHandler(svc, api.HTTPOptions{
			Metrics:   simMetrics.Handler(),
			Collector: apiMetrics,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var serving sync.Once
	d, err := driver.New(driver.Options{
		Config:   cfg,
		Log:      log.With(logging.Component("driver")),
		Store:    store,
		Progress: progress.Multi{tracker, bridge.ProgressSink(tracker)},
		Metrics:  simMetrics,
		OnTick: func(*state.SimulationState) {
			serving.Do(grpcSrv.MarkServing)
		},
	})
	if err != nil {
		return err
	}

	if lis.HTTP == nil && cfg.API.HTTPAddr != "" {
		if lis.HTTP, err = net.Listen("tcp", cfg.API.HTTPAddr); err != nil {
			return err
		}
	}
	if lis.GRPC == nil && cfg.API.GRPCAddr != "" {
		if lis.GRPC, err = net.Listen("tcp", cfg.API.GRPCAddr); err != nil {
			if lis.HTTP != nil {
				_ = lis.HTTP.Close()
			}
			return err
		}
	}

	metricsSrv := serveMetrics(cfg.API.MetricsAddr, simMetrics, log)

	g, gctx := errgroup.WithContext(ctx)
	if lis.HTTP != nil {
		log.Info(ctx, "starting HTTP API", logging.String("addr", lis.HTTP.Addr().String()))
		g.Go(func() error {
			if err := httpSrv.Serve(lis.HTTP); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	if lis.GRPC != nil {
		log.Info(ctx, "starting gRPC state service", logging.String("addr", lis.GRPC.Addr().String()))
		g.Go(func() error {
			if err := grpcSrv.Serve(lis.GRPC); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		return bridge.Serve(gctx, store)
	})
	g.Go(func() error {
		err := d.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info(ctx, "shutting down mesh server")
		grpcSrv.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return nil
	})
	return g.Wait()
}

func serveMetrics(addr string, collector *observability.SimCollector, log logging.Logger) *http.Server {
	if addr == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
