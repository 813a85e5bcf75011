package main

import (
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/msg"
)

// toMarketData converts one simulated feed event into the record the kafka
// adapter consumes. ok is false for events that carry nothing to publish.
func toMarketData(exchangeName string, key gatewayv1.FeedKey, ev exchange.FeedEvent, now time.Time) (msg.MarketDataMsg, bool) {
	m := msg.MarketDataMsg{
		Exchange:     exchangeName,
		Symbol:       key.Symbol,
		TsUnixMillis: now.UnixMilli(),
	}

	switch key.Channel {
	case gatewayv1.ChannelBook:
		if ev.Depth == nil {
			return m, false
		}
		m.Kind = msg.KindDepthUpdate
		if ev.Kind == exchange.FeedSnapshot {
			m.Kind = msg.KindDepthSnapshot
		}
		depth := *ev.Depth
		depth.Exchange = exchangeName
		m.Depth = &depth
	case gatewayv1.ChannelTrade:
		if len(ev.Trades) == 0 {
			return m, false
		}
		m.Kind = msg.KindTrade
		m.Trades = make([]gatewayv1.Trade, len(ev.Trades))
		for i, t := range ev.Trades {
			t.Exchange = exchangeName
			m.Trades[i] = t
		}
	case gatewayv1.ChannelTicker:
		if ev.Ticker == nil {
			return m, false
		}
		m.Kind = msg.KindTicker
		ticker := *ev.Ticker
		ticker.Exchange = exchangeName
		m.Ticker = &ticker
	default:
		return m, false
	}
	return m, true
}
