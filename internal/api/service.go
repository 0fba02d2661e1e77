// Package api exposes the running simulation to external consumers: an HTTP
// JSON API for progress and link state, and an equivalent gRPC service.
package api

import (
	"context"

	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/progress"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/sim/state"
	"github.com/signalsfoundry/warehouse-mesh-simulator/mesh"
	"github.com/signalsfoundry/warehouse-mesh-simulator/model"
)

// Backend is the read side of the simulation. *state.Store satisfies it.
type Backend interface {
	Snapshot() (state.Snapshot, error)
	Reload(ctx context.Context) error
}

// ProgressSource reports task progress. *progress.Tracker satisfies it.
type ProgressSource interface {
	View() progress.View
}

// Service is the transport-independent API shared by the HTTP and gRPC
// front ends.
type Service struct {
	backend  Backend
	progress ProgressSource
	log      logging.Logger
}

// NewService wires a backend and progress source. A nil progress source
// reports the zero view.
func NewService(backend Backend, prog ProgressSource, log logging.Logger) *Service {
	if log == nil {
		log = logging.Noop()
	}
	return &Service{backend: backend, progress: prog, log: log}
}

// Progress returns the current progress view.
func (s *Service) Progress() progress.View {
	if s.progress == nil {
		return progress.View{}
	}
	return s.progress.View()
}

// ControllersView is who hears whom at a tick.
type ControllersView struct {
	Tick        int         `json:"tick"`
	Controllers model.Hears `json:"controllers"`
}

// Controllers returns the link map of the latest snapshot.
func (s *Service) Controllers() (ControllersView, error) {
	snap, err := s.backend.Snapshot()
	if err != nil {
		return ControllersView{}, err
	}
	hears := snap.Controllers
	if hears == nil {
		hears = model.Hears{}
	}
	return ControllersView{Tick: snap.Tick, Controllers: hears}, nil
}

// RoutingView is the routing tree at a tick.
type RoutingView struct {
	Tick int `json:"tick"`
	*mesh.Routing
}

// Routing returns the routing tree of the latest snapshot.
func (s *Service) Routing() (RoutingView, error) {
	snap, err := s.backend.Snapshot()
	if err != nil {
		return RoutingView{}, err
	}
	r := snap.Routing
	if r == nil {
		r = &mesh.Routing{}
	}
	return RoutingView{Tick: snap.Tick, Routing: r}, nil
}

// Reload re-publishes the latest snapshot to every subscriber.
func (s *Service) Reload(ctx context.Context) error {
	if err := s.backend.Reload(ctx); err != nil {
		s.logger(ctx).Warn(ctx, "reload failed", logging.Err(err))
		return err
	}
	return nil
}

func (s *Service) logger(ctx context.Context) logging.Logger {
	if l := logging.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.log
}
