package rpc

import (
	"context"
	"fmt"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Client is a gRPC client for all gateway services
type Client struct {
	cc         *grpc.ClientConn
	MarketData gatewayv1.MarketDataServiceClient
	UserData   gatewayv1.UserDataServiceClient
	Trading    gatewayv1.TradingServiceClient
}

// Dial creates a new client connection to the gateway
func Dial(addr string, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	unaryInterceptor := func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		logger.Debug("gRPC call",
			zap.String("method", method),
			zap.Duration("duration", time.Since(start)),
			zap.String("status_code", status.Code(err).String()),
		)
		return err
	}

	base := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(unaryInterceptor),
		gatewayv1.ClientCodec(),
	}
	conn, err := grpc.NewClient(addr, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gateway: %w", err)
	}

	return &Client{
		cc:         conn,
		MarketData: gatewayv1.NewMarketDataServiceClient(conn),
		UserData:   gatewayv1.NewUserDataServiceClient(conn),
		Trading:    gatewayv1.NewTradingServiceClient(conn),
	}, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.cc.Close()
}

// The helpers below fold embedded business errors into the returned error.
// Where the gateway returns an order next to the error (duplicate client
// order id, cancel of a terminal order) the order is returned as well.

// Submit places an order
func (c *Client) Submit(ctx context.Context, so *gatewayv1.SubmitOrder) (*gatewayv1.Order, error) {
	resp, err := c.Trading.SubmitOrder(ctx, &gatewayv1.SubmitOrderRequest{SubmitOrder: so})
	if err != nil {
		return nil, err
	}
	return resp.Order, resp.Err()
}

// Cancel cancels an order by id or client order id
func (c *Client) Cancel(ctx context.Context, exchangeName, id, clientOrderID string) (*gatewayv1.Order, error) {
	resp, err := c.Trading.CancelOrder(ctx, &gatewayv1.CancelOrderRequest{Exchange: exchangeName, ID: id, ClientOrderID: clientOrderID})
	if err != nil {
		return nil, err
	}
	return resp.Order, resp.Err()
}

// Order fetches one order by id or client order id
func (c *Client) Order(ctx context.Context, exchangeName, id, clientOrderID string) (*gatewayv1.Order, error) {
	resp, err := c.Trading.QueryOrder(ctx, &gatewayv1.QueryOrderRequest{Exchange: exchangeName, ID: id, ClientOrderID: clientOrderID})
	if err != nil {
		return nil, err
	}
	return resp.Order, resp.Err()
}

// Orders lists orders matching req
func (c *Client) Orders(ctx context.Context, req *gatewayv1.QueryOrdersRequest) ([]gatewayv1.Order, error) {
	resp, err := c.Trading.QueryOrders(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Orders, resp.Err()
}

// Trades lists trades matching req
func (c *Client) Trades(ctx context.Context, req *gatewayv1.QueryTradesRequest) ([]gatewayv1.Trade, error) {
	resp, err := c.Trading.QueryTrades(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Trades, resp.Err()
}

// KLines fetches candles
func (c *Client) KLines(ctx context.Context, req *gatewayv1.QueryKLinesRequest) ([]gatewayv1.KLine, error) {
	resp, err := c.MarketData.QueryKLines(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.KLines, resp.Err()
}
