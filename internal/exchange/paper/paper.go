// Package paper implements a simulated exchange: a seeded random-walk market
// generator with an in-memory matching engine and account.
package paper

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/book"
	"github.com/ismaiel54/unified-trading-gateway/internal/config"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var _ exchange.Exchange = (*Exchange)(nil)

// Exchange is a paper trading venue
type Exchange struct {
	name     string
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	feeds    *exchange.Feeds
	limiter  *rate.Limiter
	channels map[gatewayv1.Channel]bool
	symbols  []string
	now      func() time.Time
	user     chan exchange.UserEvent

	// mu guards all market and account state. emitMu is taken before mu is
	// released so user events leave in the order they were produced.
	mu       sync.Mutex
	emitMu   sync.Mutex
	rng      *rand.Rand
	markets  map[string]*market
	open     map[string]*restingOrder
	closed   map[string]gatewayv1.Order
	balances map[string]*gatewayv1.Balance
	tradeSeq int64
}

type options struct {
	now        func() time.Time
	feedBuffer int
	userBuffer int
}

type Option func(*options)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithFeedBuffer sets the per-listener feed buffer
func WithFeedBuffer(n int) Option {
	return func(o *options) { o.feedBuffer = n }
}

// WithUserBuffer sets the capacity of the user event channel
func WithUserBuffer(n int) Option {
	return func(o *options) { o.userBuffer = n }
}

// New creates a paper exchange from its configuration
func New(cfg config.ExchangeConfig, logger *zap.Logger, opts ...Option) (*Exchange, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid paper exchange config: %w", err)
	}
	o := options{now: time.Now, feedBuffer: 256, userBuffer: 1024}
	for _, opt := range opts {
		opt(&o)
	}

	channels, err := cfg.ParsedChannels()
	if err != nil {
		return nil, err
	}

	e := &Exchange{
		name:     cfg.Name,
		cfg:      cfg,
		logger:   logger.With(zap.String("exchange", cfg.Name)),
		feeds:    exchange.NewFeeds(o.feedBuffer),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		channels: make(map[gatewayv1.Channel]bool, len(channels)),
		now:      o.now,
		user:     make(chan exchange.UserEvent, o.userBuffer),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		markets:  make(map[string]*market, len(cfg.Symbols)),
		open:     make(map[string]*restingOrder),
		closed:   make(map[string]gatewayv1.Order),
		balances: make(map[string]*gatewayv1.Balance),
	}
	for _, ch := range channels {
		e.channels[ch] = true
	}

	start := e.now()
	for _, symbol := range cfg.Symbols {
		base, quote, ok := exchange.SplitSymbol(symbol)
		if !ok {
			return nil, fmt.Errorf("%s: cannot split symbol %q into base and quote", cfg.Name, symbol)
		}
		price := cfg.BasePrices[symbol]
		if price <= 0 {
			price = 100
		}
		m := newMarket(cfg.Name, symbol, base, quote, price, cfg.PriceScale, cfg.VolumeScale, cfg.Seed, start)
		m.regenerate(e.rng)
		e.markets[symbol] = m
		e.symbols = append(e.symbols, symbol)
	}
	sort.Strings(e.symbols)

	for currency, amount := range cfg.Balances {
		e.balances[currency] = &gatewayv1.Balance{Exchange: cfg.Name, Currency: currency, Available: amount}
	}

	return e, nil
}

func (e *Exchange) Name() string { return e.name }

func (e *Exchange) Supports(ch gatewayv1.Channel) bool { return e.channels[ch] }

func (e *Exchange) HasSymbol(symbol string) bool {
	_, ok := e.markets[symbol]
	return ok
}

func (e *Exchange) UserEvents() <-chan exchange.UserEvent { return e.user }

// Run advances the simulation every tick interval until ctx ends
func (e *Exchange) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.logger.Info("paper exchange running",
		zap.Strings("symbols", e.symbols),
		zap.Duration("tick_interval", e.cfg.TickInterval),
	)

	for {
		select {
		case <-ctx.Done():
			e.feeds.Close()
			e.logger.Info("paper exchange stopped")
			return ctx.Err()
		case <-ticker.C:
			e.Step(ctx)
		}
	}
}

// Step advances every market by one tick: moves the price, regenerates the
// book, prints public trades, publishes feed updates and matches resting
// orders against the new price.
func (e *Exchange) Step(ctx context.Context) {
	e.mu.Lock()
	now := e.now()

	var events []exchange.UserEvent
	for _, symbol := range e.symbols {
		m := e.markets[symbol]
		prev := m.depth
		trades := m.tick(e.rng, now, e.nextTradeID)
		e.publish(m, prev, trades)
		events = append(events, e.matchResting(m, now)...)
	}

	e.unlockAndEmit(ctx, events)
}

// OpenFeed streams one market feed, starting with a snapshot of the current
// state.
func (e *Exchange) OpenFeed(ctx context.Context, key gatewayv1.FeedKey) (<-chan exchange.FeedEvent, error) {
	if key.Exchange != e.name {
		return nil, fmt.Errorf("%w: %q", exchange.ErrUnknownExchange, key.Exchange)
	}
	if key.Channel == gatewayv1.ChannelUser || !e.channels[key.Channel] {
		return nil, fmt.Errorf("%w: channel %s", exchange.ErrNotSupported, key.Channel)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[key.Symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", exchange.ErrUnknownSymbol, key.Symbol)
	}

	var snapshot exchange.FeedEvent
	switch key.Channel {
	case gatewayv1.ChannelBook:
		snapshot.Depth = m.depth
	case gatewayv1.ChannelTrade:
		snapshot.Trades = append([]gatewayv1.Trade(nil), m.trades...)
	case gatewayv1.ChannelTicker:
		ticker := m.ticker
		snapshot.Ticker = &ticker
	}
	return e.feeds.Open(ctx, key, snapshot), nil
}

// QueryKLines aggregates candles from the simulated price history
func (e *Exchange) QueryKLines(ctx context.Context, symbol string, interval time.Duration, end time.Time, limit int) ([]gatewayv1.KLine, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrUnavailable, err)
	}
	if interval < time.Minute || interval%time.Minute != 0 {
		return nil, fmt.Errorf("%w: %s", exchange.ErrInvalidInterval, interval)
	}
	if limit <= 0 {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.markets[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", exchange.ErrUnknownSymbol, symbol)
	}
	return m.klines(interval, end, limit, e.now()), nil
}

// QueryBalances returns every currency of the account, sorted
func (e *Exchange) QueryBalances(ctx context.Context) ([]gatewayv1.Balance, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrUnavailable, err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	currencies := make([]string, 0, len(e.balances))
	for c := range e.balances {
		currencies = append(currencies, c)
	}
	return e.balanceList(currencies...), nil
}

func (e *Exchange) publish(m *market, prev *gatewayv1.Depth, trades []gatewayv1.Trade) {
	if e.channels[gatewayv1.ChannelBook] {
		key := gatewayv1.FeedKey{Exchange: e.name, Channel: gatewayv1.ChannelBook, Symbol: m.symbol}
		e.feeds.Publish(key, exchange.FeedEvent{Kind: exchange.FeedUpdate, Depth: book.Diff(prev, m.depth)})
	}
	if e.channels[gatewayv1.ChannelTrade] && len(trades) > 0 {
		key := gatewayv1.FeedKey{Exchange: e.name, Channel: gatewayv1.ChannelTrade, Symbol: m.symbol}
		e.feeds.Publish(key, exchange.FeedEvent{Kind: exchange.FeedUpdate, Trades: trades})
	}
	if e.channels[gatewayv1.ChannelTicker] {
		key := gatewayv1.FeedKey{Exchange: e.name, Channel: gatewayv1.ChannelTicker, Symbol: m.symbol}
		ticker := m.ticker
		e.feeds.Publish(key, exchange.FeedEvent{Kind: exchange.FeedUpdate, Ticker: &ticker})
	}
}

// unlockAndEmit releases mu and delivers events to the user channel. The
// caller must hold mu.
func (e *Exchange) unlockAndEmit(ctx context.Context, events []exchange.UserEvent) {
	e.emitMu.Lock()
	e.mu.Unlock()
	defer e.emitMu.Unlock()

	for _, ev := range events {
		select {
		case e.user <- ev:
		case <-ctx.Done():
			e.logger.Warn("dropping user events, context done", zap.Int("pending", len(events)))
			return
		}
	}
}

func (e *Exchange) nextTradeID() string {
	e.tradeSeq++
	return fmt.Sprintf("%s-%d", e.name, e.tradeSeq)
}

// balanceList returns copies of the named balances sorted by currency
func (e *Exchange) balanceList(currencies ...string) []gatewayv1.Balance {
	sort.Strings(currencies)
	out := make([]gatewayv1.Balance, 0, len(currencies))
	seen := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, *e.balance(c))
	}
	return out
}

func (e *Exchange) balance(currency string) *gatewayv1.Balance {
	b, ok := e.balances[currency]
	if !ok {
		b = &gatewayv1.Balance{Exchange: e.name, Currency: currency}
		e.balances[currency] = b
	}
	return b
}
