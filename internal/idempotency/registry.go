// Package idempotency guarantees that a client order id is accepted at most
// once per exchange, and relays the transactional outbox to Kafka.
package idempotency

import (
	"context"

	"github.com/ismaiel54/unified-trading-gateway/internal/raft"
	"github.com/ismaiel54/unified-trading-gateway/internal/store"
)

// Registry claims client order ids. Claim reports duplicate together with
// the order id that already holds the claim.
type Registry interface {
	Claim(ctx context.Context, exchange, clientOrderID, orderID string) (duplicate bool, holder string, err error)
	Release(ctx context.Context, exchange, clientOrderID, orderID string) error
}

// SQLRegistry keeps claims in the local store
type SQLRegistry struct {
	store *store.Store
}

func NewSQLRegistry(s *store.Store) *SQLRegistry {
	return &SQLRegistry{store: s}
}

func (r *SQLRegistry) Claim(ctx context.Context, exchange, clientOrderID, orderID string) (bool, string, error) {
	return r.store.Claim(ctx, exchange, clientOrderID, orderID)
}

func (r *SQLRegistry) Release(ctx context.Context, exchange, clientOrderID, orderID string) error {
	return r.store.Release(ctx, exchange, clientOrderID, orderID)
}

// RaftRegistry replicates claims through a Raft cluster so that gateway
// replicas agree on which order owns a client order id. Claims must go
// through the leader.
type RaftRegistry struct {
	node *raft.Node
}

func NewRaftRegistry(node *raft.Node) *RaftRegistry {
	return &RaftRegistry{node: node}
}

func (r *RaftRegistry) Claim(ctx context.Context, exchange, clientOrderID, orderID string) (bool, string, error) {
	res, err := r.node.Claim(ctx, exchange, clientOrderID, orderID)
	if err != nil {
		return false, "", err
	}
	return res.Duplicate, res.OrderID, nil
}

func (r *RaftRegistry) Release(ctx context.Context, exchange, clientOrderID, orderID string) error {
	return r.node.Release(ctx, exchange, clientOrderID, orderID)
}
