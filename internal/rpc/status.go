package rpc

import (
	"context"
	"errors"

	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/marketdata"
	raftnode "github.com/ismaiel54/unified-trading-gateway/internal/raft"
	"github.com/ismaiel54/unified-trading-gateway/internal/trading"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps call-level errors onto gRPC status codes. Business errors
// never get here; they travel embedded in the response.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	case errors.Is(err, trading.ErrInvalidArgument),
		errors.Is(err, marketdata.ErrInvalidArgument),
		errors.Is(err, exchange.ErrUnknownExchange),
		errors.Is(err, exchange.ErrUnknownSymbol),
		errors.Is(err, exchange.ErrNotSupported),
		errors.Is(err, exchange.ErrInvalidInterval):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, raftnode.ErrNotLeader), errors.Is(err, exchange.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
