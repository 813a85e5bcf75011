// Package trading implements order entry and order queries across the
// configured exchanges.
package trading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/idempotency"
	"github.com/ismaiel54/unified-trading-gateway/internal/msg"
	"github.com/ismaiel54/unified-trading-gateway/internal/orders"
	"github.com/ismaiel54/unified-trading-gateway/internal/store"
	"github.com/ismaiel54/unified-trading-gateway/internal/userdata"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrInvalidArgument marks requests that are rejected before reaching an
// exchange
var ErrInvalidArgument = errors.New("invalid argument")

// Service places, cancels and queries orders
type Service struct {
	registry *exchange.Registry
	store    *store.Store
	claims   idempotency.Registry
	users    *userdata.Hub
	logger   *zap.Logger
	now      func() time.Time
	limiters map[string]*rate.Limiter

	// serializes order state changes so stored transitions stay monotonic
	applyMu sync.Mutex
}

type Option func(*Service)

// WithRateLimit caps order entry on one exchange. Requests over the limit
// are answered with a RateLimited error instead of waiting.
func WithRateLimit(exchangeName string, perSecond float64, burst int) Option {
	return func(s *Service) {
		if perSecond <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiters[exchangeName] = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the trading service
func NewService(registry *exchange.Registry, st *store.Store, claims idempotency.Registry, users *userdata.Hub, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		store:    st,
		claims:   claims,
		users:    users,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitOrder places one order. Business failures are returned in the
// response; the error is reserved for invalid requests and infrastructure
// failures.
func (s *Service) SubmitOrder(ctx context.Context, req *gatewayv1.SubmitOrderRequest) (*gatewayv1.SubmitOrderResponse, error) {
	so := req.SubmitOrder
	ex, err := s.validateSubmit(so)
	if err != nil {
		return nil, err
	}

	if lim, ok := s.limiters[so.Exchange]; ok && !lim.Allow() {
		return &gatewayv1.SubmitOrderResponse{
			Error: gatewayv1.NewError(gatewayv1.ErrorCodeRateLimited, "order rate limit exceeded on %s", so.Exchange),
		}, nil
	}

	claimRef := uuid.NewString()
	if so.ClientOrderID != "" {
		duplicate, holder, err := s.claims.Claim(ctx, so.Exchange, so.ClientOrderID, claimRef)
		if err != nil {
			return nil, fmt.Errorf("failed to claim client order id: %w", err)
		}
		if duplicate {
			s.logger.Info("duplicate client order id",
				zap.String("exchange", so.Exchange),
				zap.String("client_order_id", so.ClientOrderID),
				zap.String("holder", holder),
			)
			resp := &gatewayv1.SubmitOrderResponse{
				Error: gatewayv1.NewError(gatewayv1.ErrorCodeDuplicateClientOrderID, "client order id %q already used on %s", so.ClientOrderID, so.Exchange),
			}
			if existing, err := s.store.GetOrderByClientID(ctx, so.Exchange, so.ClientOrderID); err == nil {
				resp.Order = existing
			}
			return resp, nil
		}
	}

	order, err := ex.SubmitOrder(ctx, so)
	if err != nil {
		if so.ClientOrderID != "" {
			s.settleClaim(ctx, so, claimRef, err)
		}
		return s.submitFailure(so, err)
	}

	if err := s.applyOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist order %s: %w", order.ID, err)
	}

	s.logger.Info("order submitted",
		zap.String("exchange", order.Exchange),
		zap.String("symbol", order.Symbol),
		zap.String("order_id", order.ID),
		zap.String("client_order_id", order.ClientOrderID),
		zap.String("status", order.Status),
	)
	return &gatewayv1.SubmitOrderResponse{Order: order}, nil
}

func (s *Service) validateSubmit(so *gatewayv1.SubmitOrder) (exchange.Exchange, error) {
	if so == nil {
		return nil, fmt.Errorf("%w: submit_order is required", ErrInvalidArgument)
	}
	if so.Exchange == "" || so.Symbol == "" {
		return nil, fmt.Errorf("%w: exchange and symbol are required", ErrInvalidArgument)
	}
	if so.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be greater than 0", ErrInvalidArgument)
	}
	if so.OrderType.Priced() && so.Price <= 0 {
		return nil, fmt.Errorf("%w: %s order requires a price", ErrInvalidArgument, so.OrderType)
	}
	if so.OrderType.Stop() && so.StopPrice <= 0 {
		return nil, fmt.Errorf("%w: %s order requires a stop price", ErrInvalidArgument, so.OrderType)
	}
	if so.Side != gatewayv1.SideBuy && so.Side != gatewayv1.SideSell {
		return nil, fmt.Errorf("%w: unknown side %d", ErrInvalidArgument, so.Side)
	}
	if so.OrderType < gatewayv1.OrderTypeMarket || so.OrderType > gatewayv1.OrderTypeIOCLimit {
		return nil, fmt.Errorf("%w: unknown order type %d", ErrInvalidArgument, so.OrderType)
	}

	ex, err := s.registry.Get(so.Exchange)
	if err != nil {
		return nil, err
	}
	if !ex.HasSymbol(so.Symbol) {
		return nil, fmt.Errorf("%w: %q on %s", exchange.ErrUnknownSymbol, so.Symbol, so.Exchange)
	}
	return ex, nil
}

// settleClaim releases the client order id of a submit the exchange
// definitely refused. Any other failure leaves the outcome unknown, so the
// claim is kept and a retry is answered as a duplicate.
func (s *Service) settleClaim(ctx context.Context, so *gatewayv1.SubmitOrder, claimRef string, cause error) {
	if !errors.Is(cause, exchange.ErrRejected) {
		s.logger.Warn("keeping client order id, submit outcome unknown",
			zap.String("exchange", so.Exchange),
			zap.String("client_order_id", so.ClientOrderID),
			zap.Error(cause),
		)
		return
	}
	if err := s.claims.Release(ctx, so.Exchange, so.ClientOrderID, claimRef); err != nil {
		s.logger.Error("failed to release client order id",
			zap.String("client_order_id", so.ClientOrderID),
			zap.Error(err),
		)
	}
}

func (s *Service) submitFailure(so *gatewayv1.SubmitOrder, err error) (*gatewayv1.SubmitOrderResponse, error) {
	s.logger.Warn("exchange did not accept order",
		zap.String("exchange", so.Exchange),
		zap.String("symbol", so.Symbol),
		zap.String("client_order_id", so.ClientOrderID),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, exchange.ErrRejected):
		return &gatewayv1.SubmitOrderResponse{Error: gatewayv1.NewError(gatewayv1.ErrorCodeExchangeRejected, "%v", err)}, nil
	case errors.Is(err, exchange.ErrUnavailable):
		return &gatewayv1.SubmitOrderResponse{Error: gatewayv1.NewError(gatewayv1.ErrorCodeExchangeUnavailable, "%v", err)}, nil
	}
	return nil, err
}

// CancelOrder cancels an open order identified by id or client order id
func (s *Service) CancelOrder(ctx context.Context, req *gatewayv1.CancelOrderRequest) (*gatewayv1.CancelOrderResponse, error) {
	ex, err := s.exchangeFor(req.Exchange)
	if err != nil {
		return nil, err
	}
	order, gerr, err := s.lookup(ctx, req.Exchange, req.ID, req.ClientOrderID)
	if err != nil || gerr != nil {
		return &gatewayv1.CancelOrderResponse{Error: gerr}, err
	}
	if !orders.Cancelable(order.Status) {
		return &gatewayv1.CancelOrderResponse{
			Order: order,
			Error: gatewayv1.NewError(gatewayv1.ErrorCodeOrderTerminal, "order %s is already %s", order.ID, order.Status),
		}, nil
	}

	canceled, err := ex.CancelOrder(ctx, order)
	if errors.Is(err, exchange.ErrOrderClosed) && canceled != nil {
		// the fills that closed it are still on their way from the user stream
		if aerr := s.applyOrder(ctx, canceled); aerr != nil {
			return nil, fmt.Errorf("failed to persist order %s: %w", canceled.ID, aerr)
		}
		return &gatewayv1.CancelOrderResponse{
			Order: canceled,
			Error: gatewayv1.NewError(gatewayv1.ErrorCodeOrderTerminal, "order %s is already %s", canceled.ID, canceled.Status),
		}, nil
	}
	if err != nil {
		return s.cancelFailure(ctx, order, err)
	}
	if err := s.applyOrder(ctx, canceled); err != nil {
		return nil, fmt.Errorf("failed to persist order %s: %w", canceled.ID, err)
	}

	s.logger.Info("order canceled",
		zap.String("exchange", canceled.Exchange),
		zap.String("order_id", canceled.ID),
	)
	return &gatewayv1.CancelOrderResponse{Order: canceled}, nil
}

// cancelFailure maps an exchange cancel error. An order the exchange no
// longer knows has usually just completed; the stored state tells.
func (s *Service) cancelFailure(ctx context.Context, order *gatewayv1.Order, err error) (*gatewayv1.CancelOrderResponse, error) {
	switch {
	case errors.Is(err, exchange.ErrOrderNotFound):
		current, gerr := s.store.GetOrder(ctx, order.Exchange, order.ID)
		if gerr == nil && !orders.Cancelable(current.Status) {
			return &gatewayv1.CancelOrderResponse{
				Order: current,
				Error: gatewayv1.NewError(gatewayv1.ErrorCodeOrderTerminal, "order %s is already %s", current.ID, current.Status),
			}, nil
		}
		return &gatewayv1.CancelOrderResponse{Error: gatewayv1.NewError(gatewayv1.ErrorCodeOrderNotFound, "%v", err)}, nil
	case errors.Is(err, exchange.ErrRejected):
		return &gatewayv1.CancelOrderResponse{Order: order, Error: gatewayv1.NewError(gatewayv1.ErrorCodeExchangeRejected, "%v", err)}, nil
	case errors.Is(err, exchange.ErrUnavailable):
		return &gatewayv1.CancelOrderResponse{Order: order, Error: gatewayv1.NewError(gatewayv1.ErrorCodeExchangeUnavailable, "%v", err)}, nil
	}
	return nil, err
}

// QueryOrder returns one order by id or client order id
func (s *Service) QueryOrder(ctx context.Context, req *gatewayv1.QueryOrderRequest) (*gatewayv1.QueryOrderResponse, error) {
	if _, err := s.exchangeFor(req.Exchange); err != nil {
		return nil, err
	}
	order, gerr, err := s.lookup(ctx, req.Exchange, req.ID, req.ClientOrderID)
	if err != nil {
		return nil, err
	}
	return &gatewayv1.QueryOrderResponse{Order: order, Error: gerr}, nil
}

func (s *Service) exchangeFor(name string) (exchange.Exchange, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: exchange is required", ErrInvalidArgument)
	}
	return s.registry.Get(name)
}

// lookup finds an order by id, falling back to client order id. A missing
// order is a business error, not a call failure.
func (s *Service) lookup(ctx context.Context, exchangeName, id, clientOrderID string) (*gatewayv1.Order, *gatewayv1.Error, error) {
	var (
		order *gatewayv1.Order
		err   error
	)
	switch {
	case id != "":
		order, err = s.store.GetOrder(ctx, exchangeName, id)
	case clientOrderID != "":
		order, err = s.store.GetOrderByClientID(ctx, exchangeName, clientOrderID)
	default:
		return nil, nil, fmt.Errorf("%w: id or client_order_id is required", ErrInvalidArgument)
	}
	if errors.Is(err, store.ErrNotFound) {
		ref := id
		if ref == "" {
			ref = "client order id " + clientOrderID
		}
		return nil, gatewayv1.NewError(gatewayv1.ErrorCodeOrderNotFound, "order %s not found on %s", ref, exchangeName), nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil, nil
}

// applyOrder persists an order state and publishes it to user data
// subscribers. Repeats of the stored state are ignored, and a state that
// cannot follow the stored one is logged and skipped: exchanges may report
// the same change through the submit response and the user stream.
func (s *Service) applyOrder(ctx context.Context, o *gatewayv1.Order) error {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	prev, err := s.store.GetOrder(ctx, o.Exchange, o.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err == nil {
		if orders.Unchanged(prev, o) {
			return nil
		}
		if terr := orders.Transition(prev, o); terr != nil {
			s.logger.Warn("skipping stale order state",
				zap.String("order_id", o.ID),
				zap.String("stored", prev.Status),
				zap.String("received", o.Status),
				zap.Error(terr),
			)
			return nil
		}
		// exchanges do not echo every field on updates
		if o.ClientOrderID == "" {
			o.ClientOrderID = prev.ClientOrderID
		}
		if o.CreatedAt == 0 {
			o.CreatedAt = prev.CreatedAt
		}
	} else if terr := orders.Transition(nil, o); terr != nil {
		s.logger.Warn("dropping invalid order", zap.String("order_id", o.ID), zap.Error(terr))
		return nil
	}

	event, err := s.orderEvent(o)
	if err != nil {
		return err
	}
	if err := s.store.SaveOrder(ctx, o, event); err != nil {
		return err
	}
	if s.users != nil {
		if _, err := s.users.ApplyOrder(o); err != nil {
			s.logger.Warn("user data hub rejected order", zap.String("order_id", o.ID), zap.Error(err))
		}
	}
	return nil
}

// applyTrade persists a fill once and publishes it
func (s *Service) applyTrade(ctx context.Context, orderID string, t *gatewayv1.Trade) error {
	event, err := s.tradeEvent(orderID, t)
	if err != nil {
		return err
	}
	inserted, err := s.store.SaveTrade(ctx, orderID, t, event)
	if err != nil {
		return err
	}
	if inserted && s.users != nil {
		s.users.ApplyTrade(*t)
	}
	return nil
}

func (s *Service) orderEvent(o *gatewayv1.Order) (store.OutboxEvent, error) {
	m := msg.OrderEventMsg{
		EventID:      uuid.NewString(),
		Order:        *o,
		TsUnixMillis: s.now().UnixMilli(),
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return store.OutboxEvent{}, fmt.Errorf("failed to marshal order event: %w", err)
	}
	return store.OutboxEvent{
		AggregateID: o.ID,
		EventID:     m.EventID,
		Topic:       msg.TopicOrderEvents,
		Key:         msg.OrderKey(o.Exchange, o.ID),
		PayloadJSON: string(payload),
	}, nil
}

func (s *Service) tradeEvent(orderID string, t *gatewayv1.Trade) (store.OutboxEvent, error) {
	m := msg.TradeEventMsg{
		EventID:      uuid.NewString(),
		OrderID:      orderID,
		Trade:        *t,
		TsUnixMillis: s.now().UnixMilli(),
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return store.OutboxEvent{}, fmt.Errorf("failed to marshal trade event: %w", err)
	}
	return store.OutboxEvent{
		AggregateID: orderID,
		EventID:     m.EventID,
		Topic:       msg.TopicTradeEvents,
		Key:         msg.OrderKey(t.Exchange, orderID),
		PayloadJSON: string(payload),
	}, nil
}
