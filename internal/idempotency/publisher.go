package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ismaiel54/unified-trading-gateway/internal/msg"
	"github.com/ismaiel54/unified-trading-gateway/internal/store"
	"go.uber.org/zap"
)

// Outbox is the part of the store the publisher drains
type Outbox interface {
	ListUnpublished(ctx context.Context, limit int) ([]store.OutboxEvent, error)
	MarkPublished(ctx context.Context, eventID string, nowMillis int64) error
}

// Publisher publishes outbox events to Kafka
type Publisher struct {
	outbox    Outbox
	sink      msg.Sink
	logger    *zap.Logger
	interval  time.Duration
	batchSize int
}

// NewPublisher creates a new outbox publisher
func NewPublisher(outbox Outbox, sink msg.Sink, logger *zap.Logger) *Publisher {
	return &Publisher{
		outbox:    outbox,
		sink:      sink,
		logger:    logger,
		interval:  250 * time.Millisecond,
		batchSize: 100,
	}
}

// Run starts the publisher loop
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.PublishBatch(ctx); err != nil {
				// retried on the next tick
				p.logger.Error("failed to publish batch", zap.Error(err))
			}
		}
	}
}

// PublishBatch publishes one batch of unpublished events and returns how
// many were published
func (p *Publisher) PublishBatch(ctx context.Context) (int, error) {
	events, err := p.outbox.ListUnpublished(ctx, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list unpublished events: %w", err)
	}

	if len(events) == 0 {
		return 0, nil
	}

	now := time.Now().UnixMilli()
	published := 0

	for _, event := range events {
		if !json.Valid([]byte(event.PayloadJSON)) {
			p.logger.Error("skipping outbox event with invalid payload",
				zap.String("event_id", event.EventID),
			)
			continue
		}

		if err := p.sink.Produce(ctx, event.Topic, event.Key, []byte(event.PayloadJSON)); err != nil {
			p.logger.Error("failed to produce event",
				zap.String("event_id", event.EventID),
				zap.String("aggregate_id", event.AggregateID),
				zap.Error(err),
			)
			continue
		}

		if err := p.outbox.MarkPublished(ctx, event.EventID, now); err != nil {
			// worst case the event is published again; consumers dedupe on event_id
			p.logger.Error("failed to mark event as published",
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			continue
		}

		published++
		p.logger.Debug("published outbox event",
			zap.String("event_id", event.EventID),
			zap.String("topic", event.Topic),
		)
	}

	if published > 0 {
		p.logger.Info("published outbox batch",
			zap.Int("published", published),
			zap.Int("total", len(events)),
		)
	}

	return published, nil
}
