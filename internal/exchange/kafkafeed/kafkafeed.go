// Package kafkafeed serves market data consumed from Kafka. External
// collectors publish normalized msg.MarketDataMsg records; this adapter keeps
// the latest state per symbol and fans updates out to gateway subscribers.
package kafkafeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/book"
	"github.com/ismaiel54/unified-trading-gateway/internal/config"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/ismaiel54/unified-trading-gateway/internal/msg"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

const recentTrades = 50

var (
	ErrNotSeeded   = errors.New("depth update before first snapshot")
	ErrUnknownKind = errors.New("unknown market data kind")
)

var _ exchange.Exchange = (*Exchange)(nil)

// Exchange is a market-data-only adapter fed from a Kafka topic
type Exchange struct {
	cfg      config.ExchangeConfig
	topic    string
	logger   *zap.Logger
	feeds    *exchange.Feeds
	channels map[gatewayv1.Channel]bool
	symbols  map[string]bool
	consumer atomic.Pointer[msg.Consumer]

	mu      sync.Mutex
	books   map[string]*book.OrderBook
	seeded  map[string]bool
	trades  map[string][]gatewayv1.Trade
	tickers map[string]gatewayv1.Ticker
}

// New creates the adapter. Records are only consumed once Run is called.
func New(cfg config.ExchangeConfig, logger *zap.Logger) (*Exchange, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kafka exchange config: %w", err)
	}
	channels, err := cfg.ParsedChannels()
	if err != nil {
		return nil, err
	}

	topic := cfg.Topic
	if topic == "" {
		topic = msg.TopicMarketData
	}

	e := &Exchange{
		cfg:      cfg,
		topic:    topic,
		logger:   logger.With(zap.String("exchange", cfg.Name)),
		feeds:    exchange.NewFeeds(256),
		channels: make(map[gatewayv1.Channel]bool, len(channels)),
		symbols:  make(map[string]bool, len(cfg.Symbols)),
		books:    make(map[string]*book.OrderBook),
		seeded:   make(map[string]bool),
		trades:   make(map[string][]gatewayv1.Trade),
		tickers:  make(map[string]gatewayv1.Ticker),
	}
	for _, ch := range channels {
		e.channels[ch] = true
	}
	for _, s := range cfg.Symbols {
		e.symbols[s] = true
		e.books[s] = book.New(cfg.Name, s)
	}
	return e, nil
}

func (e *Exchange) Name() string { return e.cfg.Name }

func (e *Exchange) Supports(ch gatewayv1.Channel) bool { return e.channels[ch] }

func (e *Exchange) HasSymbol(symbol string) bool { return e.symbols[symbol] }

func (e *Exchange) Topic() string { return e.topic }

// Run consumes the market data topic until ctx ends. Consumption starts at
// the end of the topic; book state is rebuilt from the next snapshots.
func (e *Exchange) Run(ctx context.Context, brokers msg.Config) error {
	consumer, err := msg.NewConsumer(brokers, e.cfg.Group, []string{e.topic}, e.logger,
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
	)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}
	defer consumer.Close()
	defer e.failAll(exchange.ErrUnavailable)
	e.consumer.Store(consumer)
	defer e.consumer.Store(nil)

	return consumer.Run(ctx, e.Handle)
}

// Ready reports an error unless the topic consumer is running
func (e *Exchange) Ready(context.Context) error {
	c := e.consumer.Load()
	if c == nil || !c.IsRunning() {
		return fmt.Errorf("%w: %s consumer not running", exchange.ErrUnavailable, e.topic)
	}
	return nil
}

// Handle decodes and applies one record. Malformed records are logged and
// skipped rather than retried.
func (e *Exchange) Handle(_ context.Context, rec msg.Record) error {
	var m msg.MarketDataMsg
	if err := json.Unmarshal(rec.Value, &m); err != nil {
		e.logger.Warn("dropping undecodable market data record",
			zap.String("key", rec.Key),
			zap.Int64("offset", rec.Offset),
			zap.Error(err),
		)
		return nil
	}
	if err := e.Apply(m); err != nil {
		e.logger.Warn("dropping market data record",
			zap.String("key", rec.Key),
			zap.String("kind", m.Kind),
			zap.Error(err),
		)
	}
	return nil
}

// Apply folds one market data record into the adapter state and publishes
// the resulting feed update
func (e *Exchange) Apply(m msg.MarketDataMsg) error {
	if m.Exchange != e.cfg.Name || !e.symbols[m.Symbol] {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch m.Kind {
	case msg.KindDepthSnapshot:
		if m.Depth == nil {
			return fmt.Errorf("%s: missing depth", m.Kind)
		}
		b := e.books[m.Symbol]
		prev := b.Snapshot(0)
		if err := b.ApplySnapshot(m.Depth); err != nil {
			return err
		}
		e.seeded[m.Symbol] = true
		e.publish(gatewayv1.ChannelBook, m.Symbol, exchange.FeedEvent{Depth: book.Diff(prev, b.Snapshot(0))})

	case msg.KindDepthUpdate:
		if m.Depth == nil {
			return fmt.Errorf("%s: missing depth", m.Kind)
		}
		if !e.seeded[m.Symbol] {
			return fmt.Errorf("%w: %s", ErrNotSeeded, m.Symbol)
		}
		b := e.books[m.Symbol]
		prev := b.Snapshot(0)
		if err := b.ApplyUpdate(m.Depth); err != nil {
			return err
		}
		e.publish(gatewayv1.ChannelBook, m.Symbol, exchange.FeedEvent{Depth: book.Diff(prev, b.Snapshot(0))})

	case msg.KindTrade:
		if len(m.Trades) == 0 {
			return nil
		}
		trades := append(e.trades[m.Symbol], m.Trades...)
		if len(trades) > recentTrades {
			trades = append([]gatewayv1.Trade(nil), trades[len(trades)-recentTrades:]...)
		}
		e.trades[m.Symbol] = trades
		e.publish(gatewayv1.ChannelTrade, m.Symbol, exchange.FeedEvent{Trades: m.Trades})

	case msg.KindTicker:
		if m.Ticker == nil {
			return fmt.Errorf("%s: missing ticker", m.Kind)
		}
		ticker := *m.Ticker
		e.tickers[m.Symbol] = ticker
		e.publish(gatewayv1.ChannelTicker, m.Symbol, exchange.FeedEvent{Ticker: &ticker})

	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, m.Kind)
	}
	return nil
}

func (e *Exchange) publish(ch gatewayv1.Channel, symbol string, ev exchange.FeedEvent) {
	if !e.channels[ch] {
		return
	}
	ev.Kind = exchange.FeedUpdate
	e.feeds.Publish(gatewayv1.FeedKey{Exchange: e.cfg.Name, Channel: ch, Symbol: symbol}, ev)
}

func (e *Exchange) failAll(err error) {
	for _, key := range e.feeds.Keys() {
		e.feeds.Fail(key, err)
	}
}

// OpenFeed streams one feed starting with a snapshot of the consumed state
func (e *Exchange) OpenFeed(ctx context.Context, key gatewayv1.FeedKey) (<-chan exchange.FeedEvent, error) {
	if key.Exchange != e.cfg.Name {
		return nil, fmt.Errorf("%w: %q", exchange.ErrUnknownExchange, key.Exchange)
	}
	if key.Channel == gatewayv1.ChannelUser || !e.channels[key.Channel] {
		return nil, fmt.Errorf("%w: channel %s", exchange.ErrNotSupported, key.Channel)
	}
	if !e.symbols[key.Symbol] {
		return nil, fmt.Errorf("%w: %q", exchange.ErrUnknownSymbol, key.Symbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var snapshot exchange.FeedEvent
	switch key.Channel {
	case gatewayv1.ChannelBook:
		snapshot.Depth = e.books[key.Symbol].Snapshot(0)
	case gatewayv1.ChannelTrade:
		snapshot.Trades = append([]gatewayv1.Trade(nil), e.trades[key.Symbol]...)
	case gatewayv1.ChannelTicker:
		if t, ok := e.tickers[key.Symbol]; ok {
			snapshot.Ticker = &t
		}
	}
	return e.feeds.Open(ctx, key, snapshot), nil
}

func (e *Exchange) QueryKLines(context.Context, string, time.Duration, time.Time, int) ([]gatewayv1.KLine, error) {
	return nil, fmt.Errorf("%w: klines on %s", exchange.ErrNotSupported, e.cfg.Name)
}

func (e *Exchange) SubmitOrder(context.Context, *gatewayv1.SubmitOrder) (*gatewayv1.Order, error) {
	return nil, fmt.Errorf("%w: trading on %s", exchange.ErrNotSupported, e.cfg.Name)
}

func (e *Exchange) CancelOrder(context.Context, *gatewayv1.Order) (*gatewayv1.Order, error) {
	return nil, fmt.Errorf("%w: trading on %s", exchange.ErrNotSupported, e.cfg.Name)
}

func (e *Exchange) QueryBalances(context.Context) ([]gatewayv1.Balance, error) {
	return nil, fmt.Errorf("%w: account on %s", exchange.ErrNotSupported, e.cfg.Name)
}

// UserEvents is nil: the adapter has no account
func (e *Exchange) UserEvents() <-chan exchange.UserEvent { return nil }
