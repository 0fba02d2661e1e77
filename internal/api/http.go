package api

import (
	"encoding/json"
	"net/http"

	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/observability"
)

const requestIDHeader = "X-Request-ID"

// HTTPOptions configure NewHTTPHandler. Every field is optional.
type HTTPOptions struct {
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Collector records per-route request metrics.
	Collector *observability.APICollector
}

// NewHTTPHandler returns the JSON API:
//
//	GET  /            liveness message
//	GET  /healthz     200 once a snapshot exists, 503 before
//	GET  /progress    task progress and tick lifetime
//	GET  /controllers who hears whom at the latest tick
//	GET  /routing     routing tree at the latest tick
//	POST /reload      re-publish the latest snapshot on the bus
func NewHTTPHandler(svc *Service, opts HTTPOptions) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Alive"})
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Controllers()
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "starting"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tick": view.Tick})
	})
	mux.HandleFunc("GET /progress", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Progress())
	})
	mux.HandleFunc("GET /controllers", func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Controllers()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	})
	mux.HandleFunc("GET /routing", func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Routing()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	})
	mux.HandleFunc("POST /reload", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Reload(r.Context()); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	var h http.Handler = mux
	h = requestIDMiddleware(svc.log, h)
	if opts.Collector != nil {
		h = opts.Collector.Middleware(h)
	}
	return h
}

// requestIDMiddleware is the HTTP counterpart of the gRPC request-id
// interceptor: it honours an inbound X-Request-ID and echoes it back.
func requestIDMiddleware(base logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if incoming := r.Header.Get(requestIDHeader); incoming != "" {
			ctx = logging.ContextWithRequestID(ctx, incoming)
		}
		ctx, reqLog := logging.WithRequestLogger(ctx, base.With(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
		))
		ctx = logging.ContextWithLogger(ctx, reqLog)
		w.Header().Set(requestIDHeader, logging.RequestIDFromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, httpStatus(err), map[string]string{"error": err.Error()})
}
