package api

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	meshsimv1 "github.com/signalsfoundry/warehouse-mesh-simulator/internal/genproto/meshsim/v1"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/logging"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/observability"
)

// StateServiceName is the fully-qualified gRPC service name, also used as
// the health check service key.
const StateServiceName = "meshsim.v1.StateService"

// StateService adapts a Service to StateServiceServer.
type StateService struct {
	meshsimv1.UnimplementedStateServiceServer
	svc *Service
}

// NewStateService returns the gRPC front end of svc.
func NewStateService(svc *Service) *StateService {
	return &StateService{svc: svc}
}

func (s *StateService) GetProgress(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	return toStruct(s.svc.Progress())
}

func (s *StateService) GetControllers(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	view, err := s.svc.Controllers()
	if err != nil {
		return nil, ToStatusError(err)
	}
	return toStruct(view)
}

func (s *StateService) GetRouting(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	view, err := s.svc.Routing()
	if err != nil {
		return nil, ToStatusError(err)
	}
	return toStruct(view)
}

func (s *StateService) Reload(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.svc.Reload(ctx); err != nil {
		return nil, ToStatusError(err)
	}
	return &emptypb.Empty{}, nil
}

// toStruct converts v through its JSON form so both transports return the
// same documents.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("encode response: %w", err))
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, ToStatusError(fmt.Errorf("decode response: %w", err))
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, ToStatusError(fmt.Errorf("convert response: %w", err))
	}
	return out, nil
}

// StateServiceClient wraps the generated client so callers need not build
// empty requests.
type StateServiceClient struct {
	rpc meshsimv1.StateServiceClient
}

// NewStateServiceClient wraps a client connection.
func NewStateServiceClient(cc grpc.ClientConnInterface) *StateServiceClient {
	return &StateServiceClient{rpc: meshsimv1.NewStateServiceClient(cc)}
}

func (c *StateServiceClient) GetProgress(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.rpc.GetProgress(ctx, &emptypb.Empty{}, opts...)
}

func (c *StateServiceClient) GetControllers(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.rpc.GetControllers(ctx, &emptypb.Empty{}, opts...)
}

func (c *StateServiceClient) GetRouting(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.rpc.GetRouting(ctx, &emptypb.Empty{}, opts...)
}

func (c *StateServiceClient) Reload(ctx context.Context, opts ...grpc.CallOption) error {
	_, err := c.rpc.Reload(ctx, &emptypb.Empty{}, opts...)
	return err
}

// GRPCServer bundles the gRPC server with its health service so the caller
// can flip the state service to SERVING once the first tick is published.
type GRPCServer struct {
	*grpc.Server
	Health *health.Server
}

// NewGRPCServer builds a server exposing the state service and the standard
// health service. The state service starts NOT_SERVING.
func NewGRPCServer(svc *Service, log logging.Logger, collector *observability.APICollector) *GRPCServer {
	if log == nil {
		log = logging.Noop()
	}
	interceptors := []grpc.UnaryServerInterceptor{
		RequestIDUnaryServerInterceptor(log),
		TracingUnaryServerInterceptor(),
	}
	if collector != nil {
		interceptors = append(interceptors, collector.UnaryServerInterceptor())
	}
	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors...),
	)
	meshsimv1.RegisterStateServiceServer(server, NewStateService(svc))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(StateServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(server, hs)

	return &GRPCServer{Server: server, Health: hs}
}

// MarkServing flips the state service health to SERVING.
func (s *GRPCServer) MarkServing() {
	s.Health.SetServingStatus(StateServiceName, healthpb.HealthCheckResponse_SERVING)
}
