package rpc

import (
	"context"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/trading"
)

// TradingServer implements bbgo.TradingService
type TradingServer struct {
	gatewayv1.UnimplementedTradingServiceServer
	svc *trading.Service
}

// NewTradingServer creates a new TradingService server
func NewTradingServer(svc *trading.Service) *TradingServer {
	return &TradingServer{svc: svc}
}

func (s *TradingServer) SubmitOrder(ctx context.Context, req *gatewayv1.SubmitOrderRequest) (*gatewayv1.SubmitOrderResponse, error) {
	resp, err := s.svc.SubmitOrder(ctx, req)
	return resp, toStatus(err)
}

func (s *TradingServer) CancelOrder(ctx context.Context, req *gatewayv1.CancelOrderRequest) (*gatewayv1.CancelOrderResponse, error) {
	resp, err := s.svc.CancelOrder(ctx, req)
	return resp, toStatus(err)
}

func (s *TradingServer) QueryOrder(ctx context.Context, req *gatewayv1.QueryOrderRequest) (*gatewayv1.QueryOrderResponse, error) {
	resp, err := s.svc.QueryOrder(ctx, req)
	return resp, toStatus(err)
}

func (s *TradingServer) QueryOrders(ctx context.Context, req *gatewayv1.QueryOrdersRequest) (*gatewayv1.QueryOrdersResponse, error) {
	resp, err := s.svc.QueryOrders(ctx, req)
	return resp, toStatus(err)
}

func (s *TradingServer) QueryTrades(ctx context.Context, req *gatewayv1.QueryTradesRequest) (*gatewayv1.QueryTradesResponse, error) {
	resp, err := s.svc.QueryTrades(ctx, req)
	return resp, toStatus(err)
}
