package trading

import (
	"context"
	"errors"
	"sync"

	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/orders"
	"github.com/ismaiel54/unified-trading-gateway/internal/store"
	"go.uber.org/zap"
)

// Seed loads the state the user data hub starts from: stored open orders
// and the current balances of every exchange that has an account.
func (s *Service) Seed(ctx context.Context) error {
	if s.users == nil {
		return nil
	}
	for _, name := range s.registry.Names() {
		open, err := s.store.ListOrders(ctx, store.OrderQuery{
			Exchange: name,
			States:   []string{orders.StatusNew, orders.StatusPartiallyFilled},
			OrderBy:  "created_at asc",
			Limit:    MaxLimit,
		})
		if err != nil {
			return err
		}
		for i := range open {
			if _, err := s.users.ApplyOrder(&open[i]); err != nil {
				s.logger.Warn("skipping stored order", zap.String("order_id", open[i].ID), zap.Error(err))
			}
		}
	}

	for _, ex := range s.registry.All() {
		balances, err := ex.QueryBalances(ctx)
		if errors.Is(err, exchange.ErrNotSupported) {
			continue
		}
		if err != nil {
			s.logger.Warn("failed to load balances", zap.String("exchange", ex.Name()), zap.Error(err))
			continue
		}
		s.users.ApplyBalances(balances)
	}
	return nil
}

// Reconcile applies the user events of every exchange until ctx ends
func (s *Service) Reconcile(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ex := range s.registry.All() {
		events := ex.UserEvents()
		if events == nil {
			continue
		}
		wg.Add(1)
		go func(name string, events <-chan exchange.UserEvent) {
			defer wg.Done()
			s.logger.Info("reconciling user events", zap.String("exchange", name))
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-events:
					if !ok {
						s.logger.Warn("user event stream closed", zap.String("exchange", name))
						return
					}
					s.HandleUserEvent(ctx, ev)
				}
			}
		}(ex.Name(), events)
	}
	wg.Wait()
}

// HandleUserEvent persists one exchange user event and forwards it to the
// user data hub
func (s *Service) HandleUserEvent(ctx context.Context, ev exchange.UserEvent) {
	if ev.Trade != nil {
		if err := s.applyTrade(ctx, ev.OrderID, ev.Trade); err != nil {
			s.logger.Error("failed to apply trade",
				zap.String("trade_id", ev.Trade.ID),
				zap.String("order_id", ev.OrderID),
				zap.Error(err),
			)
		}
	}
	if ev.Order != nil {
		if err := s.applyOrder(ctx, ev.Order); err != nil {
			s.logger.Error("failed to apply order update",
				zap.String("order_id", ev.Order.ID),
				zap.Error(err),
			)
		}
	}
	if len(ev.Balances) > 0 && s.users != nil {
		s.users.ApplyBalances(ev.Balances)
	}
}
