// Package rpc exposes the gateway services over gRPC.
package rpc

import (
	"context"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/marketdata"
	"github.com/ismaiel54/unified-trading-gateway/internal/trading"
	"github.com/ismaiel54/unified-trading-gateway/internal/userdata"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Services bundles the backends registered on the gateway server
type Services struct {
	MarketData *marketdata.Hub
	UserData   *userdata.Hub
	Trading    *trading.Service
}

// ServiceNames lists the gRPC services NewServer registers
func ServiceNames() []string {
	return []string{
		gatewayv1.MarketDataServiceName,
		gatewayv1.UserDataServiceName,
		gatewayv1.TradingServiceName,
	}
}

// NewServer builds a gRPC server speaking the gateway codec with request
// logging installed ahead of any interceptors passed in opts
func NewServer(svcs Services, logger *zap.Logger, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		gatewayv1.ServerCodec(),
		grpc.ChainUnaryInterceptor(unaryLogger(logger)),
		grpc.ChainStreamInterceptor(streamLogger(logger)),
	}
	s := grpc.NewServer(append(base, opts...)...)

	gatewayv1.RegisterMarketDataServiceServer(s, NewMarketDataServer(svcs.MarketData, logger))
	gatewayv1.RegisterUserDataServiceServer(s, NewUserDataServer(svcs.UserData, logger))
	gatewayv1.RegisterTradingServiceServer(s, NewTradingServer(svcs.Trading))
	return s
}

func unaryLogger(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("status_code", status.Code(err).String()),
		}
		if embedded, ok := resp.(interface{ Err() error }); ok && err == nil {
			if berr := embedded.Err(); berr != nil {
				fields = append(fields, zap.NamedError("business_error", berr))
			}
		}
		logger.Info("gRPC call", fields...)
		return resp, err
	}
}

func streamLogger(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		logger.Info("gRPC stream",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("status_code", status.Code(err).String()),
		)
		return err
	}
}
