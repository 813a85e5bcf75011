package exchange

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
)

var (
	ErrUnknownExchange = errors.New("unknown exchange")
	ErrUnknownSymbol   = errors.New("unknown symbol")
	ErrNotSupported    = errors.New("not supported")
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderClosed     = errors.New("order already closed")
	ErrRejected        = errors.New("order rejected")
	ErrUnavailable     = errors.New("exchange unavailable")
	ErrFeedClosed      = errors.New("feed closed")

	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrRejected)
)

// Exchange is implemented by every adapter the gateway can route to.
// Adapters without trading support return ErrNotSupported from the order
// methods and a nil UserEvents channel.
type Exchange interface {
	Name() string
	Supports(ch gatewayv1.Channel) bool
	HasSymbol(symbol string) bool

	// OpenFeed streams one feed. The first event is a snapshot, the rest are
	// updates. The channel closes when ctx ends or the feed fails; a failure
	// is delivered as a final event carrying Err.
	OpenFeed(ctx context.Context, key gatewayv1.FeedKey) (<-chan FeedEvent, error)

	// QueryKLines returns up to limit candles at or before end, ascending.
	QueryKLines(ctx context.Context, symbol string, interval time.Duration, end time.Time, limit int) ([]gatewayv1.KLine, error)

	// SubmitOrder returns the accepted order in state NEW. Fills are
	// reported on UserEvents only.
	SubmitOrder(ctx context.Context, order *gatewayv1.SubmitOrder) (*gatewayv1.Order, error)

	// CancelOrder returns the canceled order. An order that reached a
	// terminal state first is returned with ErrOrderClosed.
	CancelOrder(ctx context.Context, order *gatewayv1.Order) (*gatewayv1.Order, error)
	QueryBalances(ctx context.Context) ([]gatewayv1.Balance, error)
	UserEvents() <-chan UserEvent
}

type FeedEventKind int

const (
	FeedSnapshot FeedEventKind = iota
	FeedUpdate
)

// FeedEvent is one item of an upstream feed. Exactly one of Depth, Trades,
// Ticker or Err is meaningful, according to the feed channel.
type FeedEvent struct {
	Kind   FeedEventKind
	Depth  *gatewayv1.Depth
	Trades []gatewayv1.Trade
	Ticker *gatewayv1.Ticker
	Err    error
}

// Payload returns the schema payload carried for channel ch.
func (e FeedEvent) Payload(ch gatewayv1.Channel) gatewayv1.Payload {
	switch ch {
	case gatewayv1.ChannelBook:
		if e.Depth != nil {
			return e.Depth
		}
		return &gatewayv1.Depth{}
	case gatewayv1.ChannelTrade:
		if len(e.Trades) == 0 {
			return nil
		}
		return gatewayv1.Trades(e.Trades)
	case gatewayv1.ChannelTicker:
		if e.Ticker != nil {
			return e.Ticker
		}
		return &gatewayv1.Ticker{}
	}
	return nil
}

// UserEvent is a private account change reported by an exchange.
type UserEvent struct {
	Order    *gatewayv1.Order
	Trade    *gatewayv1.Trade
	OrderID  string
	Balances []gatewayv1.Balance
}

// Registry holds the configured exchanges by name.
type Registry struct {
	exchanges map[string]Exchange
	names     []string
}

func NewRegistry(exchanges ...Exchange) (*Registry, error) {
	r := &Registry{exchanges: make(map[string]Exchange, len(exchanges))}
	for _, ex := range exchanges {
		if _, dup := r.exchanges[ex.Name()]; dup {
			return nil, fmt.Errorf("exchange %q registered twice", ex.Name())
		}
		r.exchanges[ex.Name()] = ex
		r.names = append(r.names, ex.Name())
	}
	sort.Strings(r.names)
	return r, nil
}

func (r *Registry) Get(name string) (Exchange, error) {
	ex, ok := r.exchanges[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExchange, name)
	}
	return ex, nil
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

func (r *Registry) All() []Exchange {
	out := make([]Exchange, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.exchanges[name])
	}
	return out
}

// Resolve checks that the feed can be served and returns its exchange.
func (r *Registry) Resolve(key gatewayv1.FeedKey) (Exchange, error) {
	ex, err := r.Get(key.Exchange)
	if err != nil {
		return nil, err
	}
	if key.Channel == gatewayv1.ChannelUser || !ex.Supports(key.Channel) {
		return nil, fmt.Errorf("%w: channel %s on %s", ErrNotSupported, key.Channel, key.Exchange)
	}
	if !ex.HasSymbol(key.Symbol) {
		return nil, fmt.Errorf("%w: %q on %s", ErrUnknownSymbol, key.Symbol, key.Exchange)
	}
	return ex, nil
}
