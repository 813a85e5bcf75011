package main

import (
	"testing"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/msg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMarketData(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	book := gatewayv1.FeedKey{Exchange: "sim", Channel: gatewayv1.ChannelBook, Symbol: "BTCUSDT"}

	depth := &gatewayv1.Depth{Exchange: "sim", Symbol: "BTCUSDT", Bids: []gatewayv1.PriceVolume{{Price: 100, Volume: 1}}}
	m, ok := toMarketData("binance", book, exchange.FeedEvent{Kind: exchange.FeedSnapshot, Depth: depth}, now)
	require.True(t, ok)
	assert.Equal(t, msg.KindDepthSnapshot, m.Kind)
	assert.Equal(t, "binance", m.Depth.Exchange)
	assert.Equal(t, "sim", depth.Exchange, "source event must not be modified")
	assert.Equal(t, now.UnixMilli(), m.TsUnixMillis)

	m, ok = toMarketData("binance", book, exchange.FeedEvent{Kind: exchange.FeedUpdate, Depth: depth}, now)
	require.True(t, ok)
	assert.Equal(t, msg.KindDepthUpdate, m.Kind)

	trades := gatewayv1.FeedKey{Exchange: "sim", Channel: gatewayv1.ChannelTrade, Symbol: "BTCUSDT"}
	_, ok = toMarketData("binance", trades, exchange.FeedEvent{Kind: exchange.FeedSnapshot}, now)
	assert.False(t, ok)

	m, ok = toMarketData("binance", trades, exchange.FeedEvent{Trades: []gatewayv1.Trade{{ID: "1", Exchange: "sim"}}}, now)
	require.True(t, ok)
	assert.Equal(t, msg.KindTrade, m.Kind)
	assert.Equal(t, "binance", m.Trades[0].Exchange)

	ticker := gatewayv1.FeedKey{Exchange: "sim", Channel: gatewayv1.ChannelTicker, Symbol: "BTCUSDT"}
	m, ok = toMarketData("binance", ticker, exchange.FeedEvent{Ticker: &gatewayv1.Ticker{Close: 5}}, now)
	require.True(t, ok)
	assert.Equal(t, msg.KindTicker, m.Kind)
	assert.Equal(t, 5.0, m.Ticker.Close)
}
