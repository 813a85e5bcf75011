// Package userdata keeps the account view served by SubscribeUserData: open
// orders, recent fills and balances of every configured exchange.
package userdata

import (
	"sort"
	"sync"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/orders"
	"go.uber.org/zap"
)

// closedOrders bounds how many terminal orders are remembered to reject
// late updates
const closedOrders = 10000

type orderKey struct {
	exchange string
	id       string
}

type balanceKey struct {
	exchange string
	currency string
}

// Hub applies account changes under one lock so every subscriber sees them
// in the same order
type Hub struct {
	logger *zap.Logger
	buffer int
	recent int

	mu         sync.Mutex
	open       map[orderKey]*gatewayv1.Order
	closed     map[orderKey]string
	closedFIFO []orderKey
	trades     []gatewayv1.Trade
	balances   map[balanceKey]gatewayv1.Balance
	nextID     uint64
	subs       map[uint64]*Subscriber
}

// Subscriber receives account events. The channel closes after an ERROR or
// Unsubscribe.
type Subscriber struct {
	id     uint64
	events chan *gatewayv1.SubscribeResponse
	done   bool
}

func (s *Subscriber) Events() <-chan *gatewayv1.SubscribeResponse { return s.events }

// NewHub creates an account hub. buffer bounds the events queued per
// subscriber; recent is the number of fills kept for TRADE_SNAPSHOT.
func NewHub(logger *zap.Logger, buffer, recent int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		logger:   logger,
		buffer:   buffer,
		recent:   recent,
		open:     make(map[orderKey]*gatewayv1.Order),
		closed:   make(map[orderKey]string),
		balances: make(map[balanceKey]gatewayv1.Balance),
		subs:     make(map[uint64]*Subscriber),
	}
}

// Subscribe registers a subscriber whose first events are AUTHENTICATED,
// ORDER_SNAPSHOT, TRADE_SNAPSHOT and ACCOUNT_SNAPSHOT
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	// room for the snapshots and a final error on top of the buffer
	s := &Subscriber{id: h.nextID, events: make(chan *gatewayv1.SubscribeResponse, h.buffer+5)}
	h.subs[s.id] = s

	s.events <- &gatewayv1.SubscribeResponse{Channel: gatewayv1.ChannelUser, Event: gatewayv1.EventAuthenticated}
	s.events <- h.event(gatewayv1.EventOrderSnapshot, gatewayv1.Orders(h.openOrders()))
	s.events <- h.event(gatewayv1.EventTradeSnapshot, gatewayv1.Trades(append([]gatewayv1.Trade(nil), h.trades...)))
	s.events <- h.event(gatewayv1.EventAccountSnapshot, gatewayv1.Balances(h.balanceList("")))
	return s
}

// Unsubscribe detaches s and closes its channel
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(s)
}

// ApplyOrder records an order update and publishes ORDER_UPDATE. Updates
// that repeat the known state are ignored; invalid transitions are rejected
// with orders.ErrInvalidTransition and not published.
func (h *Hub) ApplyOrder(o *gatewayv1.Order) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := orderKey{exchange: o.Exchange, id: o.ID}
	prev := h.open[key]
	if status, ok := h.closed[key]; ok {
		prev = &gatewayv1.Order{Exchange: o.Exchange, ID: o.ID, Status: status, Quantity: o.Quantity, ExecutedVolume: o.ExecutedVolume}
		if orders.Normalize(status) == orders.Normalize(o.Status) {
			return false, nil
		}
	}
	if orders.Unchanged(prev, o) {
		return false, nil
	}
	if err := orders.Transition(prev, o); err != nil {
		h.logger.Warn("dropping order update",
			zap.String("exchange", o.Exchange),
			zap.String("order_id", o.ID),
			zap.String("status", o.Status),
			zap.Error(err),
		)
		return false, err
	}

	cp := *o
	if orders.IsTerminal(cp.Status) {
		delete(h.open, key)
		h.closed[key] = cp.Status
		h.closedFIFO = append(h.closedFIFO, key)
		if len(h.closedFIFO) > closedOrders {
			delete(h.closed, h.closedFIFO[0])
			h.closedFIFO = h.closedFIFO[1:]
		}
	} else {
		h.open[key] = &cp
	}

	h.broadcast(h.event(gatewayv1.EventOrderUpdate, gatewayv1.Orders{cp}))
	return true, nil
}

// ApplyTrade records a fill and publishes TRADE_UPDATE
func (h *Hub) ApplyTrade(t gatewayv1.Trade) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.trades = append(h.trades, t)
	if len(h.trades) > h.recent {
		h.trades = append([]gatewayv1.Trade(nil), h.trades[len(h.trades)-h.recent:]...)
	}
	h.broadcast(h.event(gatewayv1.EventTradeUpdate, gatewayv1.Trades{t}))
}

// ApplyBalances records balances and publishes ACCOUNT_UPDATE with the
// changed currencies
func (h *Hub) ApplyBalances(balances []gatewayv1.Balance) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var changed gatewayv1.Balances
	for _, b := range balances {
		key := balanceKey{exchange: b.Exchange, currency: b.Currency}
		if prev, ok := h.balances[key]; ok && prev == b {
			continue
		}
		h.balances[key] = b
		changed = append(changed, b)
	}
	if len(changed) == 0 {
		return
	}
	h.broadcast(h.event(gatewayv1.EventAccountUpdate, changed))
}

// OpenOrders returns the open orders, oldest first
func (h *Hub) OpenOrders() []gatewayv1.Order {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.openOrders()
}

// Balances returns the balances of exchangeName, or of every exchange when
// empty
func (h *Hub) Balances(exchangeName string) []gatewayv1.Balance {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.balanceList(exchangeName)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		h.remove(s)
	}
}

func (h *Hub) event(ev gatewayv1.Event, payload gatewayv1.Payload) *gatewayv1.SubscribeResponse {
	return &gatewayv1.SubscribeResponse{Channel: gatewayv1.ChannelUser, Event: ev, Payload: payload}
}

// broadcast never blocks: a subscriber with a full queue gets a final ERROR
// and is removed. Callers hold h.mu.
func (h *Hub) broadcast(ev *gatewayv1.SubscribeResponse) {
	for _, s := range h.subs {
		if len(s.events) >= h.buffer {
			s.events <- &gatewayv1.SubscribeResponse{
				Channel: gatewayv1.ChannelUser,
				Event:   gatewayv1.EventError,
				Payload: gatewayv1.NewError(gatewayv1.ErrorCodeSlowConsumer, "user data subscriber too slow"),
			}
			h.remove(s)
			h.logger.Warn("slow user data subscriber detached", zap.Uint64("subscriber", s.id))
			continue
		}
		s.events <- ev
	}
}

func (h *Hub) remove(s *Subscriber) {
	if s.done {
		return
	}
	s.done = true
	delete(h.subs, s.id)
	close(s.events)
}

func (h *Hub) openOrders() []gatewayv1.Order {
	out := make([]gatewayv1.Order, 0, len(h.open))
	for _, o := range h.open {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (h *Hub) balanceList(exchangeName string) []gatewayv1.Balance {
	out := make([]gatewayv1.Balance, 0, len(h.balances))
	for key, b := range h.balances {
		if exchangeName == "" || key.exchange == exchangeName {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Exchange != out[j].Exchange {
			return out[i].Exchange < out[j].Exchange
		}
		return out[i].Currency < out[j].Currency
	})
	return out
}
