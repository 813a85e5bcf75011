package orders

import (
	"testing"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/stretchr/testify/assert"
)

func order(status string, qty, executed float64) *gatewayv1.Order {
	return &gatewayv1.Order{Exchange: "paper", ID: "1", Status: status, Quantity: qty, ExecutedVolume: executed}
}

func TestTransition(t *testing.T) {
	valid := []struct {
		prev, next *gatewayv1.Order
	}{
		{nil, order(StatusNew, 1, 0)},
		{nil, order(StatusFilled, 1, 1)},
		{order(StatusNew, 1, 0), order(StatusPartiallyFilled, 1, 0.5)},
		{order(StatusPartiallyFilled, 1, 0.5), order(StatusPartiallyFilled, 1, 0.7)},
		{order(StatusPartiallyFilled, 1, 0.7), order(StatusFilled, 1, 1)},
		{order(StatusNew, 1, 0), order(StatusCanceled, 1, 0)},
		{order(StatusNew, 1, 0), order("cancelled", 1, 0)},
		{order(StatusNew, 1, 0), order(StatusNew, 1, 0)},
	}
	for _, tc := range valid {
		assert.NoError(t, Transition(tc.prev, tc.next), "%v -> %v", tc.prev, tc.next.Status)
	}

	invalid := []struct {
		prev, next *gatewayv1.Order
	}{
		{order(StatusFilled, 1, 1), order(StatusFilled, 1, 1)},
		{order(StatusCanceled, 1, 0), order(StatusPartiallyFilled, 1, 0.2)},
		{order(StatusPartiallyFilled, 1, 0.5), order(StatusPartiallyFilled, 1, 0.4)},
		{order(StatusPartiallyFilled, 1, 0.5), order(StatusNew, 1, 0.5)},
		{nil, order("OPEN", 1, 0)},
		{nil, order(StatusNew, 1, 2)},
		{order(StatusNew, 1, 0), &gatewayv1.Order{Exchange: "paper", ID: "2", Status: StatusNew, Quantity: 1}},
	}
	for _, tc := range invalid {
		assert.ErrorIs(t, Transition(tc.prev, tc.next), ErrInvalidTransition)
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, Cancelable(StatusNew))
	assert.True(t, Cancelable(StatusPartiallyFilled))
	assert.False(t, Cancelable(StatusFilled))
	assert.False(t, Cancelable(StatusRejected))

	assert.True(t, IsTerminal(StatusExpired))
	assert.True(t, IsTerminal("cancelled"))
	assert.False(t, IsTerminal(StatusNew))
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, StatusNew, DeriveStatus(1, 0, false))
	assert.Equal(t, StatusPartiallyFilled, DeriveStatus(1, 0.3, false))
	assert.Equal(t, StatusFilled, DeriveStatus(1, 1, true))
	assert.Equal(t, StatusFilled, DeriveStatus(0.3, 0.1+0.2, false))
	assert.Equal(t, StatusCanceled, DeriveStatus(1, 0.3, true))
}

func TestUnchanged(t *testing.T) {
	assert.True(t, Unchanged(order(StatusFilled, 1, 1), order(StatusFilled, 1, 1)))
	assert.True(t, Unchanged(order("cancelled", 1, 0.5), order(StatusCanceled, 1, 0.5)))
	assert.False(t, Unchanged(order(StatusPartiallyFilled, 1, 0.2), order(StatusPartiallyFilled, 1, 0.4)))
	assert.False(t, Unchanged(nil, order(StatusNew, 1, 0)))
}
