package rpc

import (
	"context"
	"errors"
	"io"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/marketdata"
	"go.uber.org/zap"
)

// MarketDataServer implements bbgo.MarketDataService on top of the hub
type MarketDataServer struct {
	gatewayv1.UnimplementedMarketDataServiceServer
	hub    *marketdata.Hub
	logger *zap.Logger
}

// NewMarketDataServer creates a new MarketDataService server
func NewMarketDataServer(hub *marketdata.Hub, logger *zap.Logger) *MarketDataServer {
	return &MarketDataServer{hub: hub, logger: logger}
}

// Subscribe streams the merged events of every requested feed until the
// client goes away or all feeds have ended
func (s *MarketDataServer) Subscribe(req *gatewayv1.SubscribeRequest, stream gatewayv1.EventStream) error {
	sub, err := s.hub.Subscribe(req)
	if err != nil {
		return toStatus(err)
	}
	defer sub.Close()

	ctx := stream.Context()
	s.logger.Info("market data stream opened", zap.Int("subscriptions", len(req.Subscriptions)))
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			s.logger.Info("market data stream ended")
			return nil
		}
		if err != nil {
			return toStatus(err)
		}
		if err := stream.Send(ev); err != nil {
			s.logger.Debug("market data send failed", zap.Error(err))
			return err
		}
	}
}

// QueryKLines returns candles for one symbol
func (s *MarketDataServer) QueryKLines(ctx context.Context, req *gatewayv1.QueryKLinesRequest) (*gatewayv1.QueryKLinesResponse, error) {
	klines, err := s.hub.QueryKLines(ctx, req)
	if errors.Is(err, exchange.ErrUnavailable) {
		return &gatewayv1.QueryKLinesResponse{
			Error: gatewayv1.NewError(gatewayv1.ErrorCodeExchangeUnavailable, "%s: %v", req.Exchange, err),
		}, nil
	}
	if err != nil {
		return nil, toStatus(err)
	}
	return &gatewayv1.QueryKLinesResponse{KLines: klines}, nil
}
