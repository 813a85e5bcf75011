package msg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Sink accepts records destined for a topic
type Sink interface {
	Produce(ctx context.Context, topic, key string, value []byte) error
}

// NopSink discards records; used when Kafka is disabled
type NopSink struct {
	Logger *zap.Logger
}

func (s NopSink) Produce(_ context.Context, topic, key string, _ []byte) error {
	if s.Logger != nil {
		s.Logger.Debug("kafka disabled, dropping record", zap.String("topic", topic), zap.String("key", key))
	}
	return nil
}

// Producer wraps a Kafka producer
type Producer struct {
	client       *kgo.Client
	logger       *zap.Logger
	produceCount int64
	errorCount   int64
	done         chan struct{}
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg Config, logger *zap.Logger) (*Producer, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5 * time.Millisecond),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	p := &Producer{
		client: client,
		logger: logger,
		done:   make(chan struct{}),
	}

	logger.Info("producer initialized",
		zap.Strings("brokers", cfg.Brokers),
	)

	go p.logStats()

	return p, nil
}

// Produce writes one record synchronously
func (p *Producer) Produce(ctx context.Context, topic, key string, value []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	}

	produceCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := p.client.ProduceSync(produceCtx, record).FirstErr(); err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return fmt.Errorf("failed to produce message: %w", err)
	}

	atomic.AddInt64(&p.produceCount, 1)
	return nil
}

// ProduceJSON produces v encoded as JSON
func (p *Producer) ProduceJSON(ctx context.Context, topic, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		atomic.AddInt64(&p.errorCount, 1)
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return p.Produce(ctx, topic, key, data)
}

// Ping checks broker connectivity
func (p *Producer) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

// Close flushes and closes the producer
func (p *Producer) Close() {
	if p.client == nil {
		return
	}
	select {
	case <-p.done:
		return
	default:
		close(p.done)
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Flush(flushCtx); err != nil {
		p.logger.Warn("producer flush failed", zap.Error(err))
	}
	p.client.Close()
}

// logStats logs producer statistics periodically
func (p *Producer) logStats() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.logger.Info("producer stats",
				zap.Int64("produced", atomic.LoadInt64(&p.produceCount)),
				zap.Int64("errors", atomic.LoadInt64(&p.errorCount)),
			)
		}
	}
}
