package observability

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/logging"
)

func lookup(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestTracingConfigFromLookup(t *testing.T) {
	cfg := TracingConfigFromLookup(lookup(map[string]string{
		"MESHSIM_TRACING_ENABLED":      "TRUE",
		"MESHSIM_TRACING_EXPORTER":     "OTLP",
		"MESHSIM_TRACING_SAMPLE_RATIO": "0.25",
		"MESHSIM_OTLP_ENDPOINT":        "collector:4317",
	}))
	if !cfg.Enabled || cfg.Exporter != ExporterOTLP || cfg.SampleRatio != 0.25 || cfg.Endpoint != "collector:4317" {
		t.Fatalf("TracingConfigFromLookup = %+v", cfg)
	}
	if cfg.ServiceName != defaultServiceName {
		t.Fatalf("ServiceName = %q, want default", cfg.ServiceName)
	}

	cfg = TracingConfigFromLookup(lookup(map[string]string{"MESHSIM_TRACING_SAMPLE_RATIO": "7"}))
	if cfg.SampleRatio != 1 || cfg.Enabled || cfg.Exporter != ExporterStdout {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("MESHSIM_TRACING_SERVICE_NAME", "dock-7")
	if got := TracingConfigFromEnv().ServiceName; got != "dock-7" {
		t.Fatalf("ServiceName = %q", got)
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatalf("disabled tracing produced a recording span")
	}
	span.End()
}

func TestInitTracingStdoutWritesSpans(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled:     true,
		Exporter:    ExporterStdout,
		ServiceName: "test",
		SampleRatio: 1,
		Output:      &buf,
	}, logging.Noop())
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := StartSpan(context.Background(), "meshsim.tick")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)

	if !bytes.Contains(buf.Bytes(), []byte("meshsim.tick")) {
		t.Fatalf("stdout exporter output missing span: %q", buf.String())
	}
}

func TestInitTracingRejectsUnknownExporter(t *testing.T) {
	_, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "carrier-pigeon", SampleRatio: 1}, nil)
	if err == nil {
		t.Fatalf("expected error for unknown exporter")
	}
}

func TestStartSpanAndRecordFailure(t *testing.T) {
	prev := otel.GetTracerProvider()
	defer otel.SetTracerProvider(prev)

	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	ctx := logging.ContextWithRunID(context.Background(), "run-42")
	_, span := StartSpan(ctx, "meshsim.setup")
	boom := errors.New("layout exploded")
	if got := RecordFailure(span, boom); got != boom {
		t.Fatalf("RecordFailure returned %v", got)
	}
	if RecordFailure(span, nil) != nil {
		t.Fatalf("RecordFailure(nil) should be nil")
	}
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	s := ended[0]
	if s.Status().Code != codes.Error {
		t.Fatalf("status = %v, want Error", s.Status().Code)
	}
	found := false
	for _, kv := range s.Attributes() {
		if kv.Key == "meshsim.run_id" && kv.Value.AsString() == "run-42" {
			found = true
		}
	}
	if !found {
		t.Fatalf("run id attribute missing: %v", s.Attributes())
	}
}
