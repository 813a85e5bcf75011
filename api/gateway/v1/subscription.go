package gatewayv1

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Subscription names one feed. Depth is meaningful for ChannelBook only.
type Subscription struct {
	Exchange string  `json:"exchange"`
	Channel  Channel `json:"channel"`
	Symbol   string  `json:"symbol"`
	Depth    int64   `json:"depth,omitempty"`
}

// FeedKey identifies a feed independently of the requested depth.
type FeedKey struct {
	Exchange string
	Channel  Channel
	Symbol   string
}

func (k FeedKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Exchange, k.Channel, k.Symbol)
}

func (m *Subscription) Key() FeedKey {
	return FeedKey{Exchange: m.Exchange, Channel: m.Channel, Symbol: m.Symbol}
}

func (m *Subscription) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.enum(2, int32(m.Channel))
	enc.string(3, m.Symbol)
	enc.int64(4, m.Depth)
	return enc.b
}

func (m *Subscription) unmarshalWire(b []byte) error {
	*m = Subscription{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.Channel = Channel(d.enum())
		case 3:
			m.Symbol = d.string()
		case 4:
			m.Depth = d.int64()
		}
	}
	return d.err
}

type SubscribeRequest struct {
	Subscriptions []Subscription `json:"subscriptions"`
}

func (m *SubscribeRequest) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	for i := range m.Subscriptions {
		enc.message(1, &m.Subscriptions[i])
	}
	return enc.b
}

func (m *SubscribeRequest) unmarshalWire(b []byte) error {
	*m = SubscribeRequest{}
	d := newDecoder(b)
	for d.next() {
		if d.num == 1 {
			var s Subscription
			d.message(&s)
			m.Subscriptions = append(m.Subscriptions, s)
		}
	}
	m.Subscriptions = nonNil(m.Subscriptions)
	return d.err
}

// Payload is the variant part of a SubscribeResponse. Implementations are
// *Depth, Trades, *Ticker, Orders, Balances and *Error.
type Payload interface {
	payloadField() protowire.Number
}

type (
	Trades   []Trade
	Orders   []Order
	Balances []Balance
)

const (
	fieldDepth    protowire.Number = 5
	fieldTrades   protowire.Number = 6
	fieldTicker   protowire.Number = 7
	fieldOrders   protowire.Number = 8
	fieldBalances protowire.Number = 9
	fieldError    protowire.Number = 11
)

func (*Depth) payloadField() protowire.Number { return fieldDepth }
func (Trades) payloadField() protowire.Number { return fieldTrades }
func (*Ticker) payloadField() protowire.Number { return fieldTicker }
func (Orders) payloadField() protowire.Number { return fieldOrders }
func (Balances) payloadField() protowire.Number { return fieldBalances }
func (*Error) payloadField() protowire.Number { return fieldError }

// SubscribeResponse is one event of a market-data or user-data stream. The
// header identifies the originating feed; at most one Payload is carried and
// its kind is fixed by Event (see Validate).
type SubscribeResponse struct {
	Exchange     string
	Symbol       string
	Channel      Channel
	Event        Event
	SubscribedAt int64
	Payload      Payload
}

var (
	ErrMultiplePayloads = errors.New("subscribe response carries more than one payload")
	ErrPayloadMismatch  = errors.New("payload does not match event")
)

func (m *SubscribeResponse) Depth() *Depth {
	d, _ := m.Payload.(*Depth)
	return d
}

func (m *SubscribeResponse) Trades() []Trade {
	t, _ := m.Payload.(Trades)
	return t
}

func (m *SubscribeResponse) Ticker() *Ticker {
	t, _ := m.Payload.(*Ticker)
	return t
}

func (m *SubscribeResponse) Orders() []Order {
	o, _ := m.Payload.(Orders)
	return o
}

func (m *SubscribeResponse) Balances() []Balance {
	b, _ := m.Payload.(Balances)
	return b
}

// Err returns the embedded error of an ERROR event.
func (m *SubscribeResponse) Err() error {
	if e, ok := m.Payload.(*Error); ok && e != nil {
		return e
	}
	return nil
}

// Validate reports whether the payload kind is legal for the event.
func (m *SubscribeResponse) Validate() error {
	var field protowire.Number
	if m.Payload != nil {
		field = m.Payload.payloadField()
	}

	var ok bool
	switch m.Event {
	case EventSubscribed, EventUnsubscribed, EventAuthenticated, EventUnknown:
		ok = field == 0
	case EventSnapshot, EventUpdate:
		switch m.Channel {
		case ChannelBook:
			ok = field == fieldDepth
		case ChannelTrade:
			ok = field == fieldTrades || field == 0
		case ChannelTicker:
			ok = field == fieldTicker
		}
	case EventOrderSnapshot, EventOrderUpdate:
		ok = field == fieldOrders || field == 0
	case EventTradeSnapshot, EventTradeUpdate:
		ok = field == fieldTrades || field == 0
	case EventAccountSnapshot, EventAccountUpdate:
		ok = field == fieldBalances || field == 0
	case EventError:
		ok = field == fieldError
	}
	if !ok {
		return fmt.Errorf("%w: event %s channel %s", ErrPayloadMismatch, m.Event, m.Channel)
	}
	return nil
}

func (m *SubscribeResponse) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.Symbol)
	enc.enum(3, int32(m.Channel))
	enc.enum(4, int32(m.Event))

	switch p := m.Payload.(type) {
	case *Depth:
		if p != nil {
			enc.message(fieldDepth, p)
		}
	case Trades:
		for i := range p {
			enc.message(fieldTrades, &p[i])
		}
	case *Ticker:
		if p != nil {
			enc.message(fieldTicker, p)
		}
	case Orders:
		for i := range p {
			enc.message(fieldOrders, &p[i])
		}
	case Balances:
		for i := range p {
			enc.message(fieldBalances, &p[i])
		}
	}

	enc.int64(10, m.SubscribedAt)
	if p, ok := m.Payload.(*Error); ok && p != nil {
		enc.message(fieldError, p)
	}
	return enc.b
}

func (m *SubscribeResponse) unmarshalWire(b []byte) error {
	*m = SubscribeResponse{}
	var payloadField protowire.Number
	claim := func(f protowire.Number) bool {
		if payloadField != 0 && payloadField != f {
			return false
		}
		payloadField = f
		return true
	}

	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.Symbol = d.string()
		case 3:
			m.Channel = Channel(d.enum())
		case 4:
			m.Event = Event(d.enum())
		case 10:
			m.SubscribedAt = d.int64()
		case fieldDepth, fieldTrades, fieldTicker, fieldOrders, fieldBalances, fieldError:
			if !claim(d.num) {
				return ErrMultiplePayloads
			}
			m.decodePayload(d)
		}
	}
	if d.err == nil && m.Payload == nil {
		m.Payload = m.emptyList()
	}
	return d.err
}

// emptyList returns the empty list payload implied by the event, or nil
// when the event carries no list. An empty list has no field on the wire.
func (m *SubscribeResponse) emptyList() Payload {
	switch m.Event {
	case EventSnapshot, EventUpdate:
		if m.Channel == ChannelTrade {
			return Trades{}
		}
	case EventOrderSnapshot, EventOrderUpdate:
		return Orders{}
	case EventTradeSnapshot, EventTradeUpdate:
		return Trades{}
	case EventAccountSnapshot, EventAccountUpdate:
		return Balances{}
	}
	return nil
}

func (m *SubscribeResponse) decodePayload(d *decoder) {
	switch d.num {
	case fieldDepth:
		depth := &Depth{}
		d.message(depth)
		m.Payload = depth
	case fieldTicker:
		ticker := &Ticker{}
		d.message(ticker)
		m.Payload = ticker
	case fieldError:
		e := &Error{}
		d.message(e)
		m.Payload = e
	case fieldTrades:
		var t Trade
		d.message(&t)
		trades, _ := m.Payload.(Trades)
		m.Payload = append(trades, t)
	case fieldOrders:
		var o Order
		d.message(&o)
		orders, _ := m.Payload.(Orders)
		m.Payload = append(orders, o)
	case fieldBalances:
		var bal Balance
		d.message(&bal)
		balances, _ := m.Payload.(Balances)
		m.Payload = append(balances, bal)
	}
}

type subscribeResponseJSON struct {
	Exchange     string    `json:"exchange,omitempty"`
	Symbol       string    `json:"symbol,omitempty"`
	Channel      Channel   `json:"channel"`
	Event        Event     `json:"event"`
	SubscribedAt int64     `json:"subscribed_at,omitempty"`
	Depth        *Depth    `json:"depth,omitempty"`
	Trades       []Trade   `json:"trades,omitempty"`
	Ticker       *Ticker   `json:"ticker,omitempty"`
	Orders       []Order   `json:"orders,omitempty"`
	Balances     []Balance `json:"balances,omitempty"`
	Error        *Error    `json:"error,omitempty"`
}

// MarshalJSON renders the variant as the flat field layout of the schema.
func (m SubscribeResponse) MarshalJSON() ([]byte, error) {
	out := subscribeResponseJSON{
		Exchange:     m.Exchange,
		Symbol:       m.Symbol,
		Channel:      m.Channel,
		Event:        m.Event,
		SubscribedAt: m.SubscribedAt,
	}
	switch p := m.Payload.(type) {
	case *Depth:
		out.Depth = p
	case Trades:
		out.Trades = p
	case *Ticker:
		out.Ticker = p
	case Orders:
		out.Orders = p
	case Balances:
		out.Balances = p
	case *Error:
		out.Error = p
	}
	return json.Marshal(out)
}

func (m *SubscribeResponse) UnmarshalJSON(data []byte) error {
	var in subscribeResponseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = SubscribeResponse{
		Exchange:     in.Exchange,
		Symbol:       in.Symbol,
		Channel:      in.Channel,
		Event:        in.Event,
		SubscribedAt: in.SubscribedAt,
	}

	set := 0
	if in.Depth != nil {
		m.Payload = in.Depth
		set++
	}
	if in.Trades != nil {
		m.Payload = Trades(in.Trades)
		set++
	}
	if in.Ticker != nil {
		m.Payload = in.Ticker
		set++
	}
	if in.Orders != nil {
		m.Payload = Orders(in.Orders)
		set++
	}
	if in.Balances != nil {
		m.Payload = Balances(in.Balances)
		set++
	}
	if in.Error != nil {
		m.Payload = in.Error
		set++
	}
	if set > 1 {
		return ErrMultiplePayloads
	}
	if m.Payload == nil {
		m.Payload = m.emptyList()
	}
	return nil
}
