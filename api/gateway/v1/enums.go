package gatewayv1

import (
	"fmt"
	"strings"
)

// Event discriminates a SubscribeResponse. Values are wire constants.
type Event int32

const (
	EventUnknown         Event = 0
	EventSubscribed      Event = 1
	EventUnsubscribed    Event = 2
	EventSnapshot        Event = 3
	EventUpdate          Event = 4
	EventAuthenticated   Event = 5
	EventOrderSnapshot   Event = 6
	EventOrderUpdate     Event = 7
	EventTradeSnapshot   Event = 8
	EventTradeUpdate     Event = 9
	EventAccountSnapshot Event = 10
	EventAccountUpdate   Event = 11
	EventError           Event = 99
)

var eventNames = map[Event]string{
	EventUnknown:         "UNKNOWN",
	EventSubscribed:      "SUBSCRIBED",
	EventUnsubscribed:    "UNSUBSCRIBED",
	EventSnapshot:        "SNAPSHOT",
	EventUpdate:          "UPDATE",
	EventAuthenticated:   "AUTHENTICATED",
	EventOrderSnapshot:   "ORDER_SNAPSHOT",
	EventOrderUpdate:     "ORDER_UPDATE",
	EventTradeSnapshot:   "TRADE_SNAPSHOT",
	EventTradeUpdate:     "TRADE_UPDATE",
	EventAccountSnapshot: "ACCOUNT_SNAPSHOT",
	EventAccountUpdate:   "ACCOUNT_UPDATE",
	EventError:           "ERROR",
}

func (e Event) String() string {
	if name, ok := eventNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", int32(e))
}

func (e Event) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *Event) UnmarshalText(text []byte) error {
	for v, name := range eventNames {
		if strings.EqualFold(name, string(text)) {
			*e = v
			return nil
		}
	}
	return fmt.Errorf("unknown event %q", text)
}

// Channel selects the kind of feed of a Subscription.
type Channel int32

const (
	ChannelBook   Channel = 0
	ChannelTrade  Channel = 1
	ChannelTicker Channel = 2
	ChannelUser   Channel = 3
)

var channelNames = map[Channel]string{
	ChannelBook:   "BOOK",
	ChannelTrade:  "TRADE",
	ChannelTicker: "TICKER",
	ChannelUser:   "USER",
}

func (c Channel) String() string {
	if name, ok := channelNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Channel(%d)", int32(c))
}

func (c Channel) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Channel) UnmarshalText(text []byte) error {
	v, err := ParseChannel(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseChannel accepts channel names case-insensitively.
func ParseChannel(s string) (Channel, error) {
	for v, name := range channelNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

type Side int32

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	}
	return fmt.Sprintf("Side(%d)", int32(s))
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(text []byte) error {
	v, err := ParseSide(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

type OrderType int32

const (
	OrderTypeMarket     OrderType = 0
	OrderTypeLimit      OrderType = 1
	OrderTypeStopMarket OrderType = 2
	OrderTypeStopLimit  OrderType = 3
	OrderTypePostOnly   OrderType = 4
	OrderTypeIOCLimit   OrderType = 5
)

var orderTypeNames = map[OrderType]string{
	OrderTypeMarket:     "MARKET",
	OrderTypeLimit:      "LIMIT",
	OrderTypeStopMarket: "STOP_MARKET",
	OrderTypeStopLimit:  "STOP_LIMIT",
	OrderTypePostOnly:   "POST_ONLY",
	OrderTypeIOCLimit:   "IOC_LIMIT",
}

func (t OrderType) String() string {
	if name, ok := orderTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("OrderType(%d)", int32(t))
}

func (t OrderType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *OrderType) UnmarshalText(text []byte) error {
	v, err := ParseOrderType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func ParseOrderType(s string) (OrderType, error) {
	for v, name := range orderTypeNames {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("unknown order type %q", s)
}

// Priced reports whether orders of this type carry a limit price.
func (t OrderType) Priced() bool {
	switch t {
	case OrderTypeLimit, OrderTypeStopLimit, OrderTypePostOnly, OrderTypeIOCLimit:
		return true
	}
	return false
}

// Stop reports whether orders of this type carry a trigger price.
func (t OrderType) Stop() bool {
	return t == OrderTypeStopMarket || t == OrderTypeStopLimit
}
