package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/warehouse-mesh-simulator/core"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/config"
	"github.com/signalsfoundry/warehouse-mesh-simulator/internal/sim/state"
)

// ToStatusError maps simulator errors onto gRPC status codes.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(statusCode(err), err.Error())
}

func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded

	case errors.Is(err, state.ErrNoSnapshot),
		errors.Is(err, state.ErrPublish):
		return codes.Unavailable

	case errors.Is(err, core.ErrInvalidInput),
		errors.Is(err, config.ErrInvalidConfig):
		return codes.InvalidArgument

	default:
		return codes.Internal
	}
}

// httpStatus is the HTTP counterpart of ToStatusError.
func httpStatus(err error) int {
	switch statusCode(err) {
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Canceled, codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
