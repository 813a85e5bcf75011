package trading

import (
	"context"
	"fmt"
	"math"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/orders"
	"github.com/ismaiel54/unified-trading-gateway/internal/store"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// window resolves limit, page and offset. Without pagination page and
// offset are ignored. Pages are 1-based; page and offset are mutually
// exclusive.
func window(paginate bool, page, limit, offset int64) (int, int, error) {
	switch {
	case limit < 0:
		return 0, 0, fmt.Errorf("%w: negative limit", ErrInvalidArgument)
	case limit == 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	if !paginate {
		return int(limit), 0, nil
	}

	if page < 0 || offset < 0 {
		return 0, 0, fmt.Errorf("%w: negative page or offset", ErrInvalidArgument)
	}
	if page > 0 && offset > 0 {
		return 0, 0, fmt.Errorf("%w: page and offset are mutually exclusive", ErrInvalidArgument)
	}
	if page > 0 {
		if page-1 > math.MaxInt64/limit {
			return 0, 0, fmt.Errorf("%w: page %d out of range", ErrInvalidArgument, page)
		}
		offset = (page - 1) * limit
	}
	if offset > math.MaxInt {
		return 0, 0, fmt.Errorf("%w: offset %d out of range", ErrInvalidArgument, offset)
	}
	return int(limit), int(offset), nil
}

// QueryOrders lists stored orders of one exchange
func (s *Service) QueryOrders(ctx context.Context, req *gatewayv1.QueryOrdersRequest) (*gatewayv1.QueryOrdersResponse, error) {
	if _, err := s.exchangeFor(req.Exchange); err != nil {
		return nil, err
	}
	limit, offset, err := window(req.Pagination, req.Page, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}

	states := make([]string, 0, len(req.State))
	for _, st := range req.State {
		if !orders.IsKnown(st) {
			return nil, fmt.Errorf("%w: unknown order state %q", ErrInvalidArgument, st)
		}
		states = append(states, orders.Normalize(st))
	}

	list, err := s.store.ListOrders(ctx, store.OrderQuery{
		Exchange: req.Exchange,
		Symbol:   req.Symbol,
		States:   states,
		GroupID:  req.GroupID,
		OrderBy:  req.OrderBy,
		Paginate: req.Pagination,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return &gatewayv1.QueryOrdersResponse{Orders: list}, nil
}

// QueryTrades lists stored fills of one exchange. Timestamp is an inclusive
// upper bound on created_at; From and To bound an inclusive range.
func (s *Service) QueryTrades(ctx context.Context, req *gatewayv1.QueryTradesRequest) (*gatewayv1.QueryTradesResponse, error) {
	if _, err := s.exchangeFor(req.Exchange); err != nil {
		return nil, err
	}
	limit, offset, err := window(req.Pagination, req.Page, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	if req.From > 0 && req.To > 0 && req.From > req.To {
		return nil, fmt.Errorf("%w: from is after to", ErrInvalidArgument)
	}

	list, err := s.store.ListTrades(ctx, store.TradeQuery{
		Exchange: req.Exchange,
		Symbol:   req.Symbol,
		Before:   req.Timestamp,
		From:     req.From,
		To:       req.To,
		OrderBy:  req.OrderBy,
		Paginate: req.Pagination,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	return &gatewayv1.QueryTradesResponse{Trades: list}, nil
}
