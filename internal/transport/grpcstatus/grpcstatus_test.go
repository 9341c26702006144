package grpcstatus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"

	"github.com/benjaminabbitt/angzarr-core/internal/model"
)

func TestToGRPCStatus_Nil(t *testing.T) {
	assert.Equal(t, codes.OK, ToGRPCStatus(nil).Code())
}

func TestToGRPCStatus_ModelStatusCodes(t *testing.T) {
	assert.Equal(t, codes.InvalidArgument, ToGRPCStatus(model.InvalidArgument("bad")).Code())
	assert.Equal(t, codes.Unavailable, ToGRPCStatus(model.Unavailable(errors.New("x"), "down")).Code())
	assert.Equal(t, codes.NotFound, ToGRPCStatus(model.NotFound("missing")).Code())
}

func TestToGRPCStatus_FailedPrecondition(t *testing.T) {
	err := &model.FailedPreconditionError{Domain: "game", Expected: 1, Actual: 2}
	assert.Equal(t, codes.FailedPrecondition, ToGRPCStatus(err).Code())
}

func TestToGRPCStatus_UnknownFallsBack(t *testing.T) {
	assert.Equal(t, codes.Unknown, ToGRPCStatus(errors.New("plain")).Code())
}
