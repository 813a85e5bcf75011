package kafkafeed

import (
	"context"
	"testing"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/config"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/msg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestExchange(t *testing.T) *Exchange {
	t.Helper()
	cfgs, err := config.ParseExchanges([]byte(`
exchanges:
  - name: binance
    driver: kafka
    symbols: [BTCUSDT]
    price_scale: 100
    volume_scale: 1000
`))
	require.NoError(t, err)
	e, err := New(cfgs[0], zap.NewNop())
	require.NoError(t, err)
	return e
}

func TestDepthSnapshotThenUpdate(t *testing.T) {
	e := newTestExchange(t)
	assert.Equal(t, msg.TopicMarketData, e.Topic())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key := gatewayv1.FeedKey{Exchange: "binance", Channel: gatewayv1.ChannelBook, Symbol: "BTCUSDT"}
	ch, err := e.OpenFeed(ctx, key)
	require.NoError(t, err)
	snap := <-ch
	assert.Equal(t, exchange.FeedSnapshot, snap.Kind)
	assert.Empty(t, snap.Depth.Asks)

	update := msg.MarketDataMsg{
		Kind:     msg.KindDepthUpdate,
		Exchange: "binance",
		Symbol:   "BTCUSDT",
		Depth:    &gatewayv1.Depth{Asks: []gatewayv1.PriceVolume{{Price: 101, Volume: 1}}},
	}
	assert.ErrorIs(t, e.Apply(update), ErrNotSeeded)

	require.NoError(t, e.Apply(msg.MarketDataMsg{
		Kind:     msg.KindDepthSnapshot,
		Exchange: "binance",
		Symbol:   "BTCUSDT",
		Depth: &gatewayv1.Depth{
			Asks: []gatewayv1.PriceVolume{{Price: 101, Volume: 5}, {Price: 102, Volume: 3}},
			Bids: []gatewayv1.PriceVolume{{Price: 100, Volume: 4}},
		},
	}))
	first := <-ch
	assert.Equal(t, exchange.FeedUpdate, first.Kind)
	assert.Len(t, first.Depth.Asks, 2)

	require.NoError(t, e.Apply(update))
	second := <-ch
	assert.Equal(t, []gatewayv1.PriceVolume{{Price: 101, Volume: 1}}, second.Depth.Asks)
	assert.Empty(t, second.Depth.Bids)

	// a late joiner gets the folded book
	late, err := e.OpenFeed(ctx, key)
	require.NoError(t, err)
	lateSnap := <-late
	assert.Equal(t, []gatewayv1.PriceVolume{{Price: 101, Volume: 1}, {Price: 102, Volume: 3}}, lateSnap.Depth.Asks)
}

func TestTradesAndTicker(t *testing.T) {
	e := newTestExchange(t)
	ctx := context.Background()

	tradeKey := gatewayv1.FeedKey{Exchange: "binance", Channel: gatewayv1.ChannelTrade, Symbol: "BTCUSDT"}
	trades, err := e.OpenFeed(ctx, tradeKey)
	require.NoError(t, err)
	<-trades

	require.NoError(t, e.Apply(msg.MarketDataMsg{
		Kind:     msg.KindTrade,
		Exchange: "binance",
		Symbol:   "BTCUSDT",
		Trades:   []gatewayv1.Trade{{ID: "1", Price: 100, Volume: 0.5}},
	}))
	ev := <-trades
	require.Len(t, ev.Trades, 1)
	assert.Equal(t, "1", ev.Trades[0].ID)

	require.NoError(t, e.Apply(msg.MarketDataMsg{
		Kind:     msg.KindTicker,
		Exchange: "binance",
		Symbol:   "BTCUSDT",
		Ticker:   &gatewayv1.Ticker{Close: 100},
	}))
	tickers, err := e.OpenFeed(ctx, gatewayv1.FeedKey{Exchange: "binance", Channel: gatewayv1.ChannelTicker, Symbol: "BTCUSDT"})
	require.NoError(t, err)
	snap := <-tickers
	require.NotNil(t, snap.Ticker)
	assert.Equal(t, 100.0, snap.Ticker.Close)
}

func TestHandleSkipsForeignAndMalformedRecords(t *testing.T) {
	e := newTestExchange(t)

	assert.NoError(t, e.Handle(context.Background(), msg.Record{Value: []byte("not json")}))
	assert.NoError(t, e.Apply(msg.MarketDataMsg{Kind: msg.KindTicker, Exchange: "okex", Symbol: "BTCUSDT"}))
	assert.ErrorIs(t, e.Apply(msg.MarketDataMsg{Kind: "funding", Exchange: "binance", Symbol: "BTCUSDT"}), ErrUnknownKind)
}

func TestTradingNotSupported(t *testing.T) {
	e := newTestExchange(t)
	_, err := e.SubmitOrder(context.Background(), &gatewayv1.SubmitOrder{})
	assert.ErrorIs(t, err, exchange.ErrNotSupported)
	assert.Nil(t, e.UserEvents())
	assert.ErrorIs(t, e.Ready(context.Background()), exchange.ErrUnavailable, "not ready before Run")
}
