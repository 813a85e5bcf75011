package marketdata

import (
	"context"
	"fmt"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
)

const (
	DefaultKLineLimit = 100
	MaxKLineLimit     = 1000
)

// QueryKLines returns up to limit candles ending at req.Timestamp (unix
// milliseconds, 0 for now), ascending by timestamp.
func (h *Hub) QueryKLines(ctx context.Context, req *gatewayv1.QueryKLinesRequest) ([]gatewayv1.KLine, error) {
	if req.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidArgument)
	}
	interval, err := exchange.ParseInterval(req.Interval)
	if err != nil {
		return nil, err
	}
	limit := int(req.Limit)
	switch {
	case limit < 0:
		return nil, fmt.Errorf("%w: negative limit", ErrInvalidArgument)
	case limit == 0:
		limit = DefaultKLineLimit
	case limit > MaxKLineLimit:
		limit = MaxKLineLimit
	}

	ex, err := h.registry.Get(req.Exchange)
	if err != nil {
		return nil, err
	}
	if !ex.HasSymbol(req.Symbol) {
		return nil, fmt.Errorf("%w: %q on %s", exchange.ErrUnknownSymbol, req.Symbol, req.Exchange)
	}

	end := h.now()
	if req.Timestamp > 0 {
		end = time.UnixMilli(req.Timestamp)
	}
	return ex.QueryKLines(ctx, req.Symbol, interval, end, limit)
}
