// Package meshsimv1 holds the gRPC bindings of meshsim/v1/state.proto. The
// service only uses well-known message types, so there is no message code
// beside the service stubs.
package meshsimv1

//go:generate protoc --go-grpc_out=. --go-grpc_opt=paths=source_relative state.proto
