package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/intervalq/internal/types"
)

// Rule and field errors map to INVALID_ARGUMENT.
// Unknown indexes map to NOT_FOUND.
// Store errors map to UNAVAILABLE.
// Context timeouts map to DEADLINE_EXCEEDED.

// toStatus converts err to a gRPC status error. Errors outside the
// taxonomy use fallback.
func toStatus(err error, fallback codes.Code) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeFor(err, fallback), err.Error())
}

func codeFor(err error, fallback codes.Code) codes.Code {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, types.ErrUnknownIndex):
		return codes.NotFound
	case errors.Is(err, types.ErrStore):
		return codes.Unavailable
	case errors.Is(err, types.ErrParse),
		errors.Is(err, types.ErrFieldCapability),
		errors.Is(err, types.ErrNoSuchField),
		errors.Is(err, types.ErrUnknownAnalyzer),
		errors.Is(err, types.ErrScript),
		errors.Is(err, types.ErrScriptsDisabled):
		return codes.InvalidArgument
	default:
		return fallback
	}
}
