// Package grpcstatus maps the transport-independent model.Status taxonomy
// (spec §7) onto google.golang.org/grpc/codes.Code, the boundary a future
// generated ClientLogic/Gateway service handler converts errors at before
// writing a gRPC response.
package grpcstatus

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/benjaminabbitt/angzarr-core/internal/model"
)

// ToGRPCStatus converts err into a *status.Status, unwrapping to a
// *model.Status if present and falling back to codes.Unknown otherwise.
func ToGRPCStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	var s *model.Status
	if errors.As(err, &s) {
		return status.New(toCode(s.Code), s.Error())
	}
	var fp *model.FailedPreconditionError
	if errors.As(err, &fp) {
		return status.New(codes.FailedPrecondition, fp.Error())
	}
	return status.New(codes.Unknown, err.Error())
}

func toCode(c model.Code) codes.Code {
	switch c {
	case model.CodeOK:
		return codes.OK
	case model.CodeInvalidArgument:
		return codes.InvalidArgument
	case model.CodeFailedPrecondition:
		return codes.FailedPrecondition
	case model.CodeAborted:
		return codes.Aborted
	case model.CodeUnavailable:
		return codes.Unavailable
	case model.CodeInternal:
		return codes.Internal
	case model.CodeUnimplemented:
		return codes.Unimplemented
	case model.CodePayloadRetrievalFailed:
		return codes.Unavailable
	case model.CodeNotFound:
		return codes.NotFound
	default:
		return codes.Unknown
	}
}
