package rpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/chaos"
	"github.com/ismaiel54/unified-trading-gateway/internal/config"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange/paper"
	"github.com/ismaiel54/unified-trading-gateway/internal/idempotency"
	"github.com/ismaiel54/unified-trading-gateway/internal/marketdata"
	"github.com/ismaiel54/unified-trading-gateway/internal/orders"
	"github.com/ismaiel54/unified-trading-gateway/internal/store"
	"github.com/ismaiel54/unified-trading-gateway/internal/trading"
	"github.com/ismaiel54/unified-trading-gateway/internal/userdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startGateway(t *testing.T, opts ...grpc.ServerOption) *Client {
	t.Helper()
	logger := zap.NewNop()

	cfg := config.DefaultExchanges()[0]
	cfg.RateLimit = 1000
	cfg.RateBurst = 1000
	ex, err := paper.New(cfg, logger)
	require.NoError(t, err)
	registry, err := exchange.NewRegistry(ex)
	require.NoError(t, err)

	st, err := store.Open(filepath.Join(t.TempDir(), "gateway.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	users := userdata.NewHub(logger, 64, 10)
	market := marketdata.NewHub(registry, logger, 64, 10)
	t.Cleanup(market.Close)
	svc := trading.NewService(registry, st, idempotency.NewSQLRegistry(st), users, logger)

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(Services{MarketData: market, UserData: users, Trading: svc}, logger, opts...)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client, err := Dial("passthrough:///bufnet", logger,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSubmitAndQueryOverGRPC(t *testing.T) {
	client := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := &gatewayv1.SubmitOrderRequest{SubmitOrder: &gatewayv1.SubmitOrder{
		Exchange:      "paper",
		Symbol:        "BTCUSDT",
		Side:          gatewayv1.SideBuy,
		OrderType:     gatewayv1.OrderTypeMarket,
		Quantity:      0.1,
		ClientOrderID: "rpc-1",
	}}
	resp, err := client.Trading.SubmitOrder(ctx, req)
	require.NoError(t, err)
	require.NoError(t, resp.Err())
	require.NotNil(t, resp.Order)
	assert.Equal(t, orders.StatusNew, resp.Order.Status)

	dup, err := client.Trading.SubmitOrder(ctx, req)
	require.NoError(t, err)
	var gerr *gatewayv1.Error
	require.ErrorAs(t, dup.Err(), &gerr)
	assert.Equal(t, gatewayv1.ErrorCodeDuplicateClientOrderID, gerr.ErrorCode)

	got, err := client.Trading.QueryOrder(ctx, &gatewayv1.QueryOrderRequest{Exchange: "paper", ClientOrderID: "rpc-1"})
	require.NoError(t, err)
	require.NoError(t, got.Err())
	assert.Equal(t, resp.Order.ID, got.Order.ID)

	missing, err := client.Trading.QueryOrder(ctx, &gatewayv1.QueryOrderRequest{Exchange: "paper", ID: "nope"})
	require.NoError(t, err)
	require.ErrorAs(t, missing.Err(), &gerr)
	assert.Equal(t, gatewayv1.ErrorCodeOrderNotFound, gerr.ErrorCode)

	list, err := client.Trading.QueryOrders(ctx, &gatewayv1.QueryOrdersRequest{Exchange: "paper"})
	require.NoError(t, err)
	assert.Len(t, list.Orders, 1)
}

func TestInvalidRequestsMapToInvalidArgument(t *testing.T) {
	client := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.MarketData.QueryKLines(ctx, &gatewayv1.QueryKLinesRequest{Exchange: "paper", Symbol: "BTCUSDT", Interval: "7m"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Trading.QueryOrders(ctx, &gatewayv1.QueryOrdersRequest{Exchange: "nowhere"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Trading.QueryTrades(ctx, &gatewayv1.QueryTradesRequest{Exchange: "paper", Pagination: true, Page: 2, Offset: 5})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	stream, err := client.MarketData.Subscribe(ctx, &gatewayv1.SubscribeRequest{})
	require.NoError(t, err)
	_, err = stream.Recv()
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestMarketDataStreamStartsWithSubscribedAndSnapshot(t *testing.T) {
	client := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.MarketData.Subscribe(ctx, &gatewayv1.SubscribeRequest{Subscriptions: []gatewayv1.Subscription{
		{Exchange: "paper", Channel: gatewayv1.ChannelBook, Symbol: "BTCUSDT", Depth: 5},
	}})
	require.NoError(t, err)

	ev, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, gatewayv1.EventSubscribed, ev.Event)
	assert.NotZero(t, ev.SubscribedAt)

	ev, err = stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, gatewayv1.EventSnapshot, ev.Event)
	require.NotNil(t, ev.Depth())
	assert.LessOrEqual(t, len(ev.Depth().Bids), 5)

	klines, err := client.MarketData.QueryKLines(ctx, &gatewayv1.QueryKLinesRequest{Exchange: "paper", Symbol: "BTCUSDT", Interval: "1m", Limit: 3})
	require.NoError(t, err)
	require.NoError(t, klines.Err())
	assert.Len(t, klines.KLines, 3)
}

func TestUserDataStreamStartsAuthenticated(t *testing.T) {
	client := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.UserData.SubscribeUserData(ctx, &gatewayv1.Empty{})
	require.NoError(t, err)
	want := []gatewayv1.Event{
		gatewayv1.EventAuthenticated,
		gatewayv1.EventOrderSnapshot,
		gatewayv1.EventTradeSnapshot,
		gatewayv1.EventAccountSnapshot,
	}
	for _, w := range want {
		ev, err := stream.Recv()
		require.NoError(t, err)
		assert.Equal(t, w, ev.Event)
	}
}

func TestChaosInterceptorDropsTradingCalls(t *testing.T) {
	c := chaos.New(&chaos.Config{Enabled: true, DropPct: 100, TargetMethod: "/" + gatewayv1.TradingServiceName + "/"}, zap.NewNop())
	client := startGateway(t, grpc.ChainUnaryInterceptor(c.UnaryServerInterceptor()))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Trading.QueryOrders(ctx, &gatewayv1.QueryOrdersRequest{Exchange: "paper"})
	assert.Equal(t, codes.Unavailable, status.Code(err))

	_, err = client.MarketData.QueryKLines(ctx, &gatewayv1.QueryKLinesRequest{Exchange: "paper", Symbol: "BTCUSDT", Interval: "1m", Limit: 1})
	assert.NoError(t, err)
}

func TestClientHelpersSurfaceEmbeddedErrors(t *testing.T) {
	client := startGateway(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Cancel(ctx, "paper", "missing", "")
	var gerr *gatewayv1.Error
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, gatewayv1.ErrorCodeOrderNotFound, gerr.ErrorCode)

	order, err := client.Submit(ctx, &gatewayv1.SubmitOrder{
		Exchange:      "paper",
		Symbol:        "BTCUSDT",
		Side:          gatewayv1.SideSell,
		OrderType:     gatewayv1.OrderTypeMarket,
		Quantity:      0.05,
		ClientOrderID: "helper-1",
	})
	require.NoError(t, err)

	again, err := client.Cancel(ctx, "paper", order.ID, "")
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, gatewayv1.ErrorCodeOrderTerminal, gerr.ErrorCode)
	require.NotNil(t, again)
	assert.Equal(t, order.ID, again.ID)
}
