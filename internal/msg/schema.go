package msg

import (
	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
)

// OrderEventMsg is published to TopicOrderEvents on every accepted order
// state change, keyed by exchange/order id
type OrderEventMsg struct {
	EventID      string          `json:"event_id"`
	Order        gatewayv1.Order `json:"order"`
	TsUnixMillis int64           `json:"ts_unix_millis"`
}

// TradeEventMsg is published to TopicTradeEvents once per new fill
type TradeEventMsg struct {
	EventID      string          `json:"event_id"`
	OrderID      string          `json:"order_id,omitempty"`
	Trade        gatewayv1.Trade `json:"trade"`
	TsUnixMillis int64           `json:"ts_unix_millis"`
}

// Market data record kinds
const (
	KindDepthSnapshot = "depth_snapshot"
	KindDepthUpdate   = "depth_update"
	KindTrade         = "trade"
	KindTicker        = "ticker"
)

// MarketDataMsg is a normalized market data record on TopicMarketData,
// keyed by exchange/symbol so that one market stays on one partition
type MarketDataMsg struct {
	Kind         string            `json:"kind"`
	Exchange     string            `json:"exchange"`
	Symbol       string            `json:"symbol"`
	Depth        *gatewayv1.Depth  `json:"depth,omitempty"`
	Trades       []gatewayv1.Trade `json:"trades,omitempty"`
	Ticker       *gatewayv1.Ticker `json:"ticker,omitempty"`
	TsUnixMillis int64             `json:"ts_unix_millis"`
}

// OrderKey is the record key of order events
func OrderKey(exchange, orderID string) string {
	return exchange + "/" + orderID
}

// MarketKey is the record key of market data records
func MarketKey(exchange, symbol string) string {
	return exchange + "/" + symbol
}
