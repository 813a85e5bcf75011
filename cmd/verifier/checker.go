package main

import (
	"fmt"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/msg"
	"github.com/ismaiel54/unified-trading-gateway/internal/orders"
)

// checker replays order events and records lifecycle violations. Events of
// one order share a partition, so per-order arrival order is publish order.
type checker struct {
	seen       map[string]bool
	last       map[string]gatewayv1.Order
	clientIDs  map[string]string
	events     int
	redelivery int
	violations []string
}

func newChecker() *checker {
	return &checker{
		seen:      make(map[string]bool),
		last:      make(map[string]gatewayv1.Order),
		clientIDs: make(map[string]string),
	}
}

func (c *checker) observe(ev msg.OrderEventMsg) {
	// at-least-once delivery: the same event may arrive again
	if c.seen[ev.EventID] {
		c.redelivery++
		return
	}
	c.seen[ev.EventID] = true
	c.events++

	o := ev.Order
	key := msg.OrderKey(o.Exchange, o.ID)

	if o.ClientOrderID != "" {
		cidKey := msg.OrderKey(o.Exchange, o.ClientOrderID)
		if holder, ok := c.clientIDs[cidKey]; ok && holder != o.ID {
			c.violations = append(c.violations, fmt.Sprintf(
				"client order id %s used by orders %s and %s", cidKey, holder, o.ID))
		} else {
			c.clientIDs[cidKey] = o.ID
		}
	}

	prev, ok := c.last[key]
	var prevPtr *gatewayv1.Order
	if ok {
		prevPtr = &prev
		if orders.Unchanged(prevPtr, &o) {
			c.violations = append(c.violations, fmt.Sprintf(
				"order %s published %s twice under different event ids", key, o.Status))
			return
		}
	}
	if err := orders.Transition(prevPtr, &o); err != nil {
		c.violations = append(c.violations, fmt.Sprintf("order %s: %v", key, err))
		return
	}
	c.last[key] = o
}

// orders returns the number of distinct orders observed
func (c *checker) orders() int {
	return len(c.last)
}
