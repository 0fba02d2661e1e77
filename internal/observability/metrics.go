package observability

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
)

// Pair outcome labels for meshsim_pairs_evaluated_total.
const (
	OutcomeLinked   = "linked"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// SimCollector bundles the Prometheus metrics of the simulation loop.
type SimCollector struct {
	gatherer prometheus.Gatherer

	PairsEvaluated  *prometheus.CounterVec
	PairErrors      *prometheus.CounterVec
	PassDuration    prometheus.Histogram
	Tick            prometheus.Gauge
	Nodes           prometheus.Gauge
	Edges           prometheus.Gauge
	PublishFailures prometheus.Counter
}

// NewSimCollector registers simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	pairs, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meshsim_pairs_evaluated_total",
		Help: "Node pairs evaluated by connectivity passes, labeled by outcome.",
	}, []string{"outcome"}), "meshsim_pairs_evaluated_total")
	if err != nil {
		return nil, err
	}

	pairErrors, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "meshsim_pair_errors_total",
		Help: "Pairs skipped because their evaluation failed, labeled by error kind.",
	}, []string{"kind"}), "meshsim_pair_errors_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "meshsim_pass_duration_seconds",
		Help:    "Wall-clock duration of one all-pairs connectivity pass.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}), "meshsim_pass_duration_seconds")
	if err != nil {
		return nil, err
	}

	tick, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meshsim_tick",
		Help: "Number of completed simulation ticks.",
	}), "meshsim_tick")
	if err != nil {
		return nil, err
	}
	nodes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meshsim_nodes",
		Help: "Number of controllers in the published snapshot.",
	}), "meshsim_nodes")
	if err != nil {
		return nil, err
	}
	edges, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "meshsim_edges",
		Help: "Number of undirected links in the published snapshot.",
	}), "meshsim_edges")
	if err != nil {
		return nil, err
	}

	publish, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "meshsim_publish_failures_total",
		Help: "Snapshot or progress broadcasts that could not be delivered.",
	}), "meshsim_publish_failures_total")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:        gatherer,
		PairsEvaluated:  pairs,
		PairErrors:      pairErrors,
		PassDuration:    duration,
		Tick:            tick,
		Nodes:           nodes,
		Edges:           edges,
		PublishFailures: publish,
	}, nil
}

// ObservePass records the outcome counts of one connectivity pass.
func (c *SimCollector) ObservePass(res *core.BuildResult, d time.Duration) {
	if c == nil || res == nil {
		return
	}
	c.PassDuration.Observe(d.Seconds())
	c.PairsEvaluated.WithLabelValues(OutcomeLinked).Add(float64(len(res.Edges)))
	c.PairsEvaluated.WithLabelValues(OutcomeRejected).Add(float64(res.Rejected))
	c.PairsEvaluated.WithLabelValues(OutcomeFailed).Add(float64(len(res.PairErrors)))
	for _, pe := range res.PairErrors {
		c.PairErrors.WithLabelValues(PairErrorKind(pe)).Inc()
	}
}

// SetSnapshotCounts updates the gauges describing the published snapshot.
func (c *SimCollector) SetSnapshotCounts(tick, nodes, edges int) {
	if c == nil {
		return
	}
	c.Tick.Set(float64(tick))
	c.Nodes.Set(float64(nodes))
	c.Edges.Set(float64(edges))
}

// PublishFailed counts one undelivered broadcast.
func (c *SimCollector) PublishFailed() {
	if c == nil {
		return
	}
	c.PublishFailures.Inc()
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// PairErrorKind maps a per-pair failure onto a low-cardinality label.
func PairErrorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrUnsupportedPathKind):
		return "unsupported_path_kind"
	case errors.Is(err, core.ErrGeometryOracle):
		return "geometry_oracle"
	default:
		return "other"
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
