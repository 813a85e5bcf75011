package gatewayv1

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func roundTrip[T any, PT interface {
	*T
	Message
}](t *testing.T, in PT) PT {
	t.Helper()
	data, err := Marshal(in)
	require.NoError(t, err)
	out := PT(new(T))
	require.NoError(t, Unmarshal(data, out))
	return out
}

func TestOrderRoundTrip(t *testing.T) {
	in := &Order{
		Exchange:       "paper",
		Symbol:         "BTCUSDT",
		ID:             "ord-1",
		Side:           SideSell,
		OrderType:      OrderTypeStopLimit,
		Price:          64000.5,
		StopPrice:      63900,
		AvgPrice:       64001.25,
		Status:         "PARTIALLY_FILLED",
		CreatedAt:      1700000000123,
		Quantity:       0.75,
		ExecutedVolume: 0.25,
		TradesCount:    2,
		ClientOrderID:  "cli-1",
		GroupID:        7,
	}
	assert.Equal(t, in, roundTrip(t, in))
}

func TestZeroValuesAreOmitted(t *testing.T) {
	data, err := Marshal(&Order{})
	require.NoError(t, err)
	assert.Empty(t, data)

	data, err = Marshal(&Empty{})
	require.NoError(t, err)
	assert.Empty(t, data)

	// BUY and MARKET are the zero enum values and never appear on the wire.
	out := roundTrip(t, &SubmitOrder{Symbol: "ETHUSDT", Side: SideBuy, OrderType: OrderTypeMarket, Quantity: 1})
	assert.Equal(t, SideBuy, out.Side)
	assert.Equal(t, OrderTypeMarket, out.OrderType)
}

func TestNegativeZeroDoubleIsKept(t *testing.T) {
	out := roundTrip(t, &Ticker{Close: math.Copysign(0, -1)})
	assert.True(t, math.Signbit(out.Close))
}

func TestQueryEnvelopesRoundTrip(t *testing.T) {
	orders := &QueryOrdersRequest{
		Exchange:   "paper",
		Symbol:     "BTCUSDT",
		State:      []string{"NEW", "PARTIALLY_FILLED"},
		OrderBy:    "created_at",
		GroupID:    3,
		Pagination: true,
		Page:       2,
		Limit:      50,
	}
	assert.Equal(t, orders, roundTrip(t, orders))

	trades := &QueryTradesRequest{Exchange: "paper", From: 10, To: 20, Offset: 5, Limit: 5, Pagination: true}
	assert.Equal(t, trades, roundTrip(t, trades))

	klines := &QueryKLinesResponse{KLines: []KLine{
		{Exchange: "paper", Symbol: "BTCUSDT", Timestamp: 60000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3, QuoteVolume: 4.5},
		{Exchange: "paper", Symbol: "BTCUSDT", Timestamp: 120000, Open: 1.5, High: 1.5, Low: 1.5, Close: 1.5},
	}}
	assert.Equal(t, klines, roundTrip(t, klines))
}

func TestEnvelopeErr(t *testing.T) {
	resp := &SubmitOrderResponse{Order: &Order{ID: "1"}}
	assert.NoError(t, resp.Err())

	resp = roundTrip(t, &SubmitOrderResponse{Error: NewError(ErrorCodeDuplicateClientOrderID, "client order id %q already used", "abc")})
	require.Error(t, resp.Err())
	assert.Nil(t, resp.Order)

	var gwErr *Error
	require.ErrorAs(t, resp.Err(), &gwErr)
	assert.Equal(t, ErrorCodeDuplicateClientOrderID, gwErr.ErrorCode)
	assert.Contains(t, gwErr.Error(), "abc")
}

func TestSubscribeResponsePayloads(t *testing.T) {
	cases := []*SubscribeResponse{
		{Exchange: "paper", Symbol: "BTCUSDT", Channel: ChannelBook, Event: EventSubscribed, SubscribedAt: 1700000000},
		{Exchange: "paper", Symbol: "BTCUSDT", Channel: ChannelBook, Event: EventSnapshot, Payload: &Depth{
			Exchange: "paper", Symbol: "BTCUSDT",
			Asks: []PriceVolume{{Price: 101, Volume: 3}, {Price: 102, Volume: 1}},
			Bids: []PriceVolume{{Price: 100, Volume: 2}},
		}},
		{Channel: ChannelTrade, Event: EventUpdate, Payload: Trades{{ID: "t1", Price: 1, Volume: 2, Side: SideSell}, {ID: "t2"}}},
		{Channel: ChannelTicker, Event: EventUpdate, Payload: &Ticker{Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}},
		{Channel: ChannelUser, Event: EventOrderUpdate, Payload: Orders{{ID: "o1", Status: "NEW"}}},
		{Channel: ChannelUser, Event: EventAccountSnapshot, Payload: Balances{{Currency: "USDT", Available: 10, Locked: 1}}},
		{Channel: ChannelBook, Event: EventError, Payload: NewError(ErrorCodeSlowConsumer, "slow consumer")},
	}
	for _, in := range cases {
		t.Run(in.Event.String(), func(t *testing.T) {
			require.NoError(t, in.Validate())
			out := roundTrip(t, in)
			assert.Equal(t, in, out)
			require.NoError(t, out.Validate())
		})
	}
}

func TestSubscribeResponseRejectsTwoPayloads(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 4, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(EventUpdate))
	b = protowire.AppendTag(b, fieldTicker, protowire.BytesType)
	b = protowire.AppendBytes(b, (&Ticker{Close: 1}).appendWire(nil))
	b = protowire.AppendTag(b, fieldDepth, protowire.BytesType)
	b = protowire.AppendBytes(b, (&Depth{Symbol: "X"}).appendWire(nil))

	err := Unmarshal(b, &SubscribeResponse{})
	assert.ErrorIs(t, err, ErrMultiplePayloads)
}

func TestSubscribeResponseValidate(t *testing.T) {
	mismatched := []*SubscribeResponse{
		{Event: EventSubscribed, Payload: &Ticker{}},
		{Event: EventSnapshot, Channel: ChannelBook, Payload: &Ticker{}},
		{Event: EventSnapshot, Channel: ChannelBook},
		{Event: EventOrderUpdate, Payload: Balances{}},
		{Event: EventError},
		{Event: Event(42)},
	}
	for _, m := range mismatched {
		assert.ErrorIs(t, m.Validate(), ErrPayloadMismatch, "event %s", m.Event)
	}

	assert.NoError(t, (&SubscribeResponse{Event: EventTradeSnapshot}).Validate())
}

func TestDecodeRejectsWrongWireType(t *testing.T) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, 5)
	assert.Error(t, Unmarshal(b, &Trade{}))

	assert.Error(t, Unmarshal([]byte{0x0a, 0x05, 'a'}, &Trade{}))
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	b := (&Balance{Currency: "BTC", Available: 1}).appendWire(nil)
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	var out Balance
	require.NoError(t, Unmarshal(b, &out))
	assert.Equal(t, Balance{Currency: "BTC", Available: 1}, out)
}

func TestDepthValidate(t *testing.T) {
	good := &Depth{
		Asks: []PriceVolume{{Price: 10, Volume: 1}, {Price: 11, Volume: 1}},
		Bids: []PriceVolume{{Price: 9, Volume: 1}, {Price: 8, Volume: 0}},
	}
	assert.NoError(t, good.Validate())

	bad := []*Depth{
		{Asks: []PriceVolume{{Price: 11}, {Price: 10}}},
		{Bids: []PriceVolume{{Price: 8}, {Price: 9}}},
		{Asks: []PriceVolume{{Price: 10}, {Price: 10}}},
		{Bids: []PriceVolume{{Price: 10, Volume: -1}}},
	}
	for _, d := range bad {
		assert.ErrorIs(t, d.Validate(), ErrInvalidDepth)
	}
}

func TestEnumText(t *testing.T) {
	ch, err := ParseChannel("ticker")
	require.NoError(t, err)
	assert.Equal(t, ChannelTicker, ch)

	ot, err := ParseOrderType("ioc_limit")
	require.NoError(t, err)
	assert.Equal(t, OrderTypeIOCLimit, ot)
	assert.True(t, ot.Priced())
	assert.False(t, OrderTypeStopMarket.Priced())
	assert.True(t, OrderTypeStopMarket.Stop())

	_, err = ParseSide("hold")
	assert.Error(t, err)

	assert.Equal(t, "ERROR", EventError.String())
	assert.Equal(t, "Event(42)", Event(42).String())
}

func TestSubscribeResponseJSON(t *testing.T) {
	in := SubscribeResponse{
		Exchange: "paper",
		Symbol:   "BTCUSDT",
		Channel:  ChannelTrade,
		Event:    EventUpdate,
		Payload:  Trades{{ID: "t1", Price: 100, Volume: 1, Side: SideBuy}},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"channel":"TRADE"`)
	assert.Contains(t, string(data), `"event":"UPDATE"`)
	assert.Contains(t, string(data), `"side":"BUY"`)

	var out SubscribeResponse
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	err = json.Unmarshal([]byte(`{"event":"UPDATE","ticker":{},"depth":{}}`), &out)
	assert.ErrorIs(t, err, ErrMultiplePayloads)
}

func TestSubscriptionKeyIgnoresDepth(t *testing.T) {
	a := Subscription{Exchange: "paper", Channel: ChannelBook, Symbol: "BTCUSDT", Depth: 5}
	b := Subscription{Exchange: "paper", Channel: ChannelBook, Symbol: "BTCUSDT", Depth: 20}
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, "paper:BOOK:BTCUSDT", a.Key().String())
}

func fullOrder() Order {
	return Order{
		Exchange: "paper", Symbol: "BTCUSDT", ID: "ord-9", Side: SideSell, OrderType: OrderTypeIOCLimit,
		Price: 64000.5, StopPrice: 63000, AvgPrice: 64000.25, Status: "FILLED", CreatedAt: 1700000000999,
		Quantity: 2, ExecutedVolume: 2, TradesCount: 3, ClientOrderID: "cli-9", GroupID: 11,
	}
}

func fullTrade() Trade {
	return Trade{
		Exchange: "paper", Symbol: "BTCUSDT", ID: "t-1", Price: 64000.5, Volume: 0.125,
		CreatedAt: 1700000000456, Side: SideSell, Fee: 0.064, FeeCurrency: "USDT", Maker: true, Trend: "down",
	}
}

func TestEveryMessageRoundTrips(t *testing.T) {
	order := fullOrder()
	trade := fullTrade()
	balance := Balance{Exchange: "paper", Currency: "USDT", Available: 1000.5, Locked: 20.25}
	kline := KLine{Exchange: "paper", Symbol: "BTCUSDT", Timestamp: 60000, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3, QuoteVolume: 4.5}
	gerr := NewError(ErrorCodeOrderTerminal, "order %s is already FILLED", "ord-9")
	submit := SubmitOrder{
		Exchange: "paper", Symbol: "ETHUSDT", Side: SideSell, Quantity: 1.5, Price: 3000,
		StopPrice: 2900, OrderType: OrderTypeStopLimit, ClientOrderID: "cli-2", GroupID: 4,
	}

	cases := []struct {
		name string
		in   Message
		// want defaults to in
		want Message
	}{
		{name: "Empty", in: &Empty{}},
		{name: "Error", in: gerr},
		{name: "Error zero", in: &Error{}},
		{name: "PriceVolume", in: &PriceVolume{Price: 6400050, Volume: 125}},
		{name: "PriceVolume zero", in: &PriceVolume{}},
		{name: "Depth", in: &Depth{Exchange: "paper", Symbol: "BTCUSDT", Asks: []PriceVolume{{Price: 2, Volume: 1}}, Bids: []PriceVolume{{Price: 1, Volume: 3}}}},
		{name: "Depth empty levels", in: &Depth{Exchange: "paper", Asks: []PriceVolume{}, Bids: []PriceVolume{}}},
		{name: "Depth zero", in: &Depth{}, want: &Depth{Asks: []PriceVolume{}, Bids: []PriceVolume{}}},
		{name: "Trade", in: &trade},
		{name: "Trade zero", in: &Trade{}},
		{name: "Ticker", in: &Ticker{Exchange: "paper", Symbol: "BTCUSDT", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10}},
		{name: "Ticker zero", in: &Ticker{}},
		{name: "Order", in: &order},
		{name: "Order zero", in: &Order{}},
		{name: "Balance", in: &balance},
		{name: "Balance zero", in: &Balance{}},
		{name: "KLine", in: &kline},
		{name: "KLine zero", in: &KLine{}},
		{name: "SubmitOrder", in: &submit},
		{name: "SubmitOrder zero", in: &SubmitOrder{}},
		{name: "Subscription", in: &Subscription{Exchange: "paper", Channel: ChannelTicker, Symbol: "BTCUSDT", Depth: 20}},
		{name: "Subscription zero", in: &Subscription{}},
		{name: "SubscribeRequest", in: &SubscribeRequest{Subscriptions: []Subscription{
			{Exchange: "paper", Channel: ChannelBook, Symbol: "BTCUSDT", Depth: 5},
			{Exchange: "kafka", Channel: ChannelTrade, Symbol: "ETHUSDT"},
		}}},
		{name: "SubscribeRequest zero", in: &SubscribeRequest{}, want: &SubscribeRequest{Subscriptions: []Subscription{}}},
		{name: "SubmitOrderRequest", in: &SubmitOrderRequest{SubmitOrder: &submit}},
		{name: "SubmitOrderRequest zero", in: &SubmitOrderRequest{}},
		{name: "SubmitOrderResponse", in: &SubmitOrderResponse{Order: &order, Error: gerr}},
		{name: "SubmitOrderResponse zero", in: &SubmitOrderResponse{}},
		{name: "CancelOrderRequest", in: &CancelOrderRequest{Exchange: "paper", ID: "ord-9", ClientOrderID: "cli-9"}},
		{name: "CancelOrderRequest zero", in: &CancelOrderRequest{}},
		{name: "CancelOrderResponse", in: &CancelOrderResponse{Order: &order, Error: gerr}},
		{name: "CancelOrderResponse zero", in: &CancelOrderResponse{}},
		{name: "QueryOrderRequest", in: &QueryOrderRequest{Exchange: "paper", ID: "ord-9", ClientOrderID: "cli-9"}},
		{name: "QueryOrderRequest zero", in: &QueryOrderRequest{}},
		{name: "QueryOrderResponse", in: &QueryOrderResponse{Order: &order}},
		{name: "QueryOrderResponse zero", in: &QueryOrderResponse{}},
		{name: "QueryOrdersRequest", in: &QueryOrdersRequest{
			Exchange: "paper", Symbol: "BTCUSDT", State: []string{"NEW"}, OrderBy: "-price", GroupID: 2,
			Pagination: true, Page: 3, Limit: 10, Offset: 7,
		}},
		{name: "QueryOrdersRequest zero", in: &QueryOrdersRequest{}, want: &QueryOrdersRequest{State: []string{}}},
		{name: "QueryOrdersResponse", in: &QueryOrdersResponse{Orders: []Order{order, {ID: "o2"}}, Error: gerr}},
		{name: "QueryOrdersResponse empty", in: &QueryOrdersResponse{Orders: []Order{}}},
		{name: "QueryOrdersResponse zero", in: &QueryOrdersResponse{}, want: &QueryOrdersResponse{Orders: []Order{}}},
		{name: "QueryTradesRequest", in: &QueryTradesRequest{
			Exchange: "paper", Symbol: "BTCUSDT", Timestamp: 1700000000000, From: 1, To: 2, OrderBy: "price desc",
			Pagination: true, Page: 4, Limit: 25, Offset: 6,
		}},
		{name: "QueryTradesRequest zero", in: &QueryTradesRequest{}},
		{name: "QueryTradesResponse", in: &QueryTradesResponse{Trades: []Trade{trade, {ID: "t-2"}}, Error: gerr}},
		{name: "QueryTradesResponse empty", in: &QueryTradesResponse{Trades: []Trade{}}},
		{name: "QueryTradesResponse zero", in: &QueryTradesResponse{}, want: &QueryTradesResponse{Trades: []Trade{}}},
		{name: "QueryKLinesRequest", in: &QueryKLinesRequest{Exchange: "paper", Symbol: "BTCUSDT", Interval: "15m", Timestamp: 1700000000000, Limit: 200}},
		{name: "QueryKLinesRequest zero", in: &QueryKLinesRequest{}},
		{name: "QueryKLinesResponse", in: &QueryKLinesResponse{KLines: []KLine{kline}, Error: gerr}},
		{name: "QueryKLinesResponse zero", in: &QueryKLinesResponse{}, want: &QueryKLinesResponse{KLines: []KLine{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := Marshal(tc.in)
			require.NoError(t, err)
			out := reflect.New(reflect.TypeOf(tc.in).Elem()).Interface().(Message)
			require.NoError(t, Unmarshal(data, out))

			want := tc.want
			if want == nil {
				want = tc.in
			}
			assert.Equal(t, want, out)
		})
	}
}

func TestEmptyListPayloadsRoundTrip(t *testing.T) {
	cases := []*SubscribeResponse{
		{Exchange: "paper", Channel: ChannelUser, Event: EventOrderSnapshot, Payload: Orders{}},
		{Exchange: "paper", Channel: ChannelUser, Event: EventTradeSnapshot, Payload: Trades{}},
		{Exchange: "paper", Channel: ChannelUser, Event: EventAccountSnapshot, Payload: Balances{}},
		{Exchange: "paper", Symbol: "BTCUSDT", Channel: ChannelTrade, Event: EventSnapshot, Payload: Trades{}},
		{Exchange: "paper", Symbol: "BTCUSDT", Channel: ChannelBook, Event: EventSnapshot, Payload: &Depth{Asks: []PriceVolume{}, Bids: []PriceVolume{}}},
	}
	for _, in := range cases {
		t.Run(in.Event.String()+"/"+in.Channel.String(), func(t *testing.T) {
			out := roundTrip(t, in)
			assert.Equal(t, in, out)

			data, err := json.Marshal(in)
			require.NoError(t, err)
			var fromJSON SubscribeResponse
			require.NoError(t, json.Unmarshal(data, &fromJSON))
			assert.IsType(t, in.Payload, fromJSON.Payload)
		})
	}

	// a list event never decodes to a missing payload
	out := roundTrip(t, &SubscribeResponse{Event: EventOrderUpdate})
	orders, ok := out.Payload.(Orders)
	require.True(t, ok)
	assert.Empty(t, orders)

	out = roundTrip(t, &SubscribeResponse{Event: EventSubscribed})
	assert.Nil(t, out.Payload)
}
