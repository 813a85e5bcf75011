package main

import (
	"testing"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/msg"
	"github.com/ismaiel54/unified-trading-gateway/internal/orders"
	"github.com/stretchr/testify/assert"
)

func event(id, orderID, cid, status string, executed float64) msg.OrderEventMsg {
	return msg.OrderEventMsg{
		EventID: id,
		Order: gatewayv1.Order{
			Exchange:       "paper",
			Symbol:         "BTCUSDT",
			ID:             orderID,
			ClientOrderID:  cid,
			Status:         status,
			Quantity:       1,
			ExecutedVolume: executed,
		},
	}
}

func TestCheckerAcceptsValidLifecycle(t *testing.T) {
	c := newChecker()
	c.observe(event("e1", "o1", "c1", orders.StatusNew, 0))
	c.observe(event("e2", "o1", "c1", orders.StatusPartiallyFilled, 0.5))
	c.observe(event("e2", "o1", "c1", orders.StatusPartiallyFilled, 0.5))
	c.observe(event("e3", "o1", "c1", orders.StatusFilled, 1))

	assert.Empty(t, c.violations)
	assert.Equal(t, 3, c.events)
	assert.Equal(t, 1, c.redelivery)
	assert.Equal(t, 1, c.orders())
}

func TestCheckerFlagsViolations(t *testing.T) {
	c := newChecker()
	c.observe(event("e1", "o1", "c1", orders.StatusPartiallyFilled, 0.5))
	c.observe(event("e2", "o1", "c1", orders.StatusPartiallyFilled, 0.2))
	assert.Len(t, c.violations, 1, "executed volume went backwards")

	c.observe(event("e3", "o1", "c1", orders.StatusFilled, 1))
	c.observe(event("e4", "o1", "c1", orders.StatusCanceled, 1))
	assert.Len(t, c.violations, 2, "update after terminal")

	c.observe(event("e5", "o2", "c1", orders.StatusNew, 0))
	assert.Len(t, c.violations, 3, "client order id reused")

	c.observe(event("e6", "o2", "c2", orders.StatusNew, 0))
	assert.Len(t, c.violations, 4, "same state republished")
}
