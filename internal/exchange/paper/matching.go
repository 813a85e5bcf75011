package paper

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/orders"
	"go.uber.org/zap"
)

const epsilon = 1e-9

// restingOrder is an accepted order that still holds funds
type restingOrder struct {
	order     gatewayv1.Order
	currency  string
	reserved  float64
	triggered bool
}

func (r *restingOrder) remaining() float64 {
	return r.order.Quantity - r.order.ExecutedVolume
}

// SubmitOrder accepts an order, reserves its funds and fills the marketable
// part against the current book. The returned order is the accepted order
// in state NEW; the NEW state and any immediate fills follow on UserEvents.
func (e *Exchange) SubmitOrder(ctx context.Context, so *gatewayv1.SubmitOrder) (*gatewayv1.Order, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrUnavailable, err)
	}

	e.mu.Lock()
	m, ok := e.markets[so.Symbol]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", exchange.ErrUnknownSymbol, so.Symbol)
	}
	if err := checkSubmit(so); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if so.OrderType == gatewayv1.OrderTypePostOnly && m.crosses(so.Side, so.Price) {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: post-only order would take liquidity", exchange.ErrRejected)
	}

	currency, amount := e.reservation(m, so)
	bal := e.balance(currency)
	if bal.Available+epsilon < amount {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: need %v %s, available %v", exchange.ErrInsufficientBalance, amount, currency, bal.Available)
	}
	bal.Available = math.Max(0, bal.Available-amount)
	bal.Locked += amount

	now := e.now()
	ro := &restingOrder{
		order: gatewayv1.Order{
			Exchange:      e.name,
			Symbol:        so.Symbol,
			ID:            uuid.NewString(),
			Side:          so.Side,
			OrderType:     so.OrderType,
			Price:         so.Price,
			StopPrice:     so.StopPrice,
			Status:        orders.StatusNew,
			CreatedAt:     now.UnixMilli(),
			Quantity:      so.Quantity,
			ClientOrderID: so.ClientOrderID,
			GroupID:       so.GroupID,
		},
		currency: currency,
		reserved: amount,
	}
	e.open[ro.order.ID] = ro
	created := ro.order

	events := []exchange.UserEvent{{Order: copyOrder(&created)}}
	switch so.OrderType {
	case gatewayv1.OrderTypeMarket:
		events = append(events, e.take(m, ro, 0, now)...)
		events = append(events, e.close(ro)...)
	case gatewayv1.OrderTypeIOCLimit:
		events = append(events, e.take(m, ro, so.Price, now)...)
		events = append(events, e.close(ro)...)
	case gatewayv1.OrderTypeLimit:
		events = append(events, e.take(m, ro, so.Price, now)...)
	}
	events = append(events, exchange.UserEvent{Balances: e.balanceList(m.base, m.quote)})

	e.unlockAndEmit(ctx, events)

	e.logger.Debug("order accepted",
		zap.String("order_id", created.ID),
		zap.String("symbol", created.Symbol),
		zap.String("order_type", created.OrderType.String()),
	)
	return &created, nil
}

// CancelOrder cancels an open order and releases its remaining funds. An
// order that already completed is returned in its terminal state along
// with ErrOrderClosed.
func (e *Exchange) CancelOrder(ctx context.Context, o *gatewayv1.Order) (*gatewayv1.Order, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrUnavailable, err)
	}

	e.mu.Lock()
	ro, ok := e.open[o.ID]
	if !ok {
		done, known := e.closed[o.ID]
		e.mu.Unlock()
		if known {
			return &done, fmt.Errorf("%w: %s is %s", exchange.ErrOrderClosed, o.ID, done.Status)
		}
		return nil, fmt.Errorf("%w: %s", exchange.ErrOrderNotFound, o.ID)
	}
	m := e.markets[ro.order.Symbol]
	events := e.close(ro)
	events = append(events, exchange.UserEvent{Balances: e.balanceList(m.base, m.quote)})
	result := ro.order
	e.unlockAndEmit(ctx, events)
	return &result, nil
}

func checkSubmit(so *gatewayv1.SubmitOrder) error {
	if so.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", exchange.ErrRejected)
	}
	if so.OrderType.Priced() && so.Price <= 0 {
		return fmt.Errorf("%w: %s requires a price", exchange.ErrRejected, so.OrderType)
	}
	if so.OrderType.Stop() && so.StopPrice <= 0 {
		return fmt.Errorf("%w: %s requires a stop price", exchange.ErrRejected, so.OrderType)
	}
	return nil
}

// reservation returns the currency and amount an order locks: the quote
// notional for buys, the base quantity for sells. Market buys reserve the
// cost of walking the current book.
func (e *Exchange) reservation(m *market, so *gatewayv1.SubmitOrder) (string, float64) {
	if so.Side == gatewayv1.SideSell {
		return m.base, so.Quantity
	}
	switch so.OrderType {
	case gatewayv1.OrderTypeMarket:
		cost, remaining := 0.0, so.Quantity
		for _, lv := range m.depth.Asks {
			if remaining <= epsilon {
				break
			}
			vol := math.Min(remaining, m.unscaleVolume(lv.Volume))
			cost += vol * m.unscalePrice(lv.Price)
			remaining -= vol
		}
		return m.quote, cost
	case gatewayv1.OrderTypeStopMarket:
		return m.quote, so.Quantity * so.StopPrice
	default:
		return m.quote, so.Quantity * so.Price
	}
}

// take fills ro against the opposite side of the book as taker. A zero
// limit accepts any price.
func (e *Exchange) take(m *market, ro *restingOrder, limit float64, now time.Time) []exchange.UserEvent {
	levels := m.depth.Asks
	if ro.order.Side == gatewayv1.SideSell {
		levels = m.depth.Bids
	}

	var events []exchange.UserEvent
	for _, lv := range levels {
		remaining := ro.remaining()
		if remaining <= epsilon {
			break
		}
		price := m.unscalePrice(lv.Price)
		if limit > 0 {
			if ro.order.Side == gatewayv1.SideBuy && price > limit {
				break
			}
			if ro.order.Side == gatewayv1.SideSell && price < limit {
				break
			}
		}
		vol := math.Min(remaining, m.unscaleVolume(lv.Volume))
		events = append(events, e.fill(m, ro, price, vol, false, now)...)
	}
	return events
}

// matchResting triggers stop orders and fills resting limits crossed by the
// current price. Orders are visited oldest first.
func (e *Exchange) matchResting(m *market, now time.Time) []exchange.UserEvent {
	var resting []*restingOrder
	for _, ro := range e.open {
		if ro.order.Symbol == m.symbol {
			resting = append(resting, ro)
		}
	}
	sort.Slice(resting, func(i, j int) bool {
		if resting[i].order.CreatedAt != resting[j].order.CreatedAt {
			return resting[i].order.CreatedAt < resting[j].order.CreatedAt
		}
		return resting[i].order.ID < resting[j].order.ID
	})

	var events []exchange.UserEvent
	for _, ro := range resting {
		o := &ro.order
		buy := o.Side == gatewayv1.SideBuy

		if o.OrderType.Stop() && !ro.triggered {
			hit := (buy && m.price >= o.StopPrice) || (!buy && m.price <= o.StopPrice)
			if !hit {
				continue
			}
			ro.triggered = true
			if o.OrderType == gatewayv1.OrderTypeStopMarket {
				events = append(events, e.fill(m, ro, o.StopPrice, ro.remaining(), false, now)...)
				continue
			}
		}

		crossed := (buy && m.price <= o.Price) || (!buy && m.price >= o.Price)
		if crossed && ro.remaining() > epsilon {
			events = append(events, e.fill(m, ro, o.Price, ro.remaining(), true, now)...)
		}
	}
	if len(events) > 0 {
		events = append(events, exchange.UserEvent{Balances: e.balanceList(m.base, m.quote)})
	}
	return events
}

// fill executes vol of ro at price and settles the account. The fee is
// taken from the received currency.
func (e *Exchange) fill(m *market, ro *restingOrder, price, vol float64, maker bool, now time.Time) []exchange.UserEvent {
	o := &ro.order
	notional := price * vol
	feeRate := e.cfg.FeeRate

	var fee float64
	var feeCurrency string
	if o.Side == gatewayv1.SideBuy {
		fee, feeCurrency = vol*feeRate, m.base
		e.unlock(ro, notional)
		e.balance(m.base).Available += vol - fee
	} else {
		fee, feeCurrency = notional*feeRate, m.quote
		e.unlock(ro, vol)
		e.balance(m.quote).Available += notional - fee
	}

	o.AvgPrice = (o.AvgPrice*o.ExecutedVolume + notional) / (o.ExecutedVolume + vol)
	o.ExecutedVolume += vol
	if math.Abs(o.Quantity-o.ExecutedVolume) <= epsilon {
		o.ExecutedVolume = o.Quantity
	}
	o.TradesCount++
	o.Status = orders.DeriveStatus(o.Quantity, o.ExecutedVolume, false)

	trend := "up"
	if price < m.lastTrade {
		trend = "down"
	}
	trade := gatewayv1.Trade{
		Exchange:    e.name,
		Symbol:      m.symbol,
		ID:          e.nextTradeID(),
		Price:       price,
		Volume:      vol,
		CreatedAt:   now.UnixMilli(),
		Side:        o.Side,
		Fee:         fee,
		FeeCurrency: feeCurrency,
		Maker:       maker,
		Trend:       trend,
	}

	if o.Status == orders.StatusFilled {
		e.release(ro)
	}
	return []exchange.UserEvent{
		{Trade: &trade, OrderID: o.ID},
		{Order: copyOrder(o)},
	}
}

// close ends an order that can no longer fill and releases its funds. An
// order with unfilled quantity becomes CANCELED.
func (e *Exchange) close(ro *restingOrder) []exchange.UserEvent {
	if _, open := e.open[ro.order.ID]; !open {
		return nil
	}
	ro.order.Status = orders.DeriveStatus(ro.order.Quantity, ro.order.ExecutedVolume, true)
	e.release(ro)
	return []exchange.UserEvent{{Order: copyOrder(&ro.order)}}
}

// unlock spends amount of the funds locked by ro
func (e *Exchange) unlock(ro *restingOrder, amount float64) {
	amount = math.Min(amount, ro.reserved)
	ro.reserved -= amount
	bal := e.balance(ro.currency)
	bal.Locked = math.Max(0, bal.Locked-amount)
}

// release returns the unspent reservation of ro and moves the order to the
// closed set
func (e *Exchange) release(ro *restingOrder) {
	if ro.reserved > 0 {
		bal := e.balance(ro.currency)
		bal.Locked = math.Max(0, bal.Locked-ro.reserved)
		bal.Available += ro.reserved
		ro.reserved = 0
	}
	delete(e.open, ro.order.ID)
	e.closed[ro.order.ID] = ro.order
}

func copyOrder(o *gatewayv1.Order) *gatewayv1.Order {
	cp := *o
	return &cp
}
