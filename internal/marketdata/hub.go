// Package marketdata multiplexes upstream exchange feeds to gateway
// subscribers. One upstream feed is opened per (exchange, channel, symbol)
// no matter how many clients subscribe to it.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/book"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"go.uber.org/zap"
)

var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidSubscription = fmt.Errorf("%w: subscription", ErrInvalidArgument)
)

// Hub owns the upstream feeds and their subscribers
type Hub struct {
	registry *exchange.Registry
	logger   *zap.Logger
	buffer   int
	recent   int
	now      func() time.Time

	mu     sync.Mutex
	nextID uint64
	feeds  map[gatewayv1.FeedKey]*feed
}

// feed is the hub-side state of one upstream feed
type feed struct {
	key    gatewayv1.FeedKey
	cancel context.CancelFunc
	subs   map[uint64]*subscriber
	ended  bool

	// last upstream state, replayed to late joiners
	ready  bool
	book   *book.OrderBook
	trades []gatewayv1.Trade
	ticker *gatewayv1.Ticker
}

// subscriber is one stream attached to one feed
type subscriber struct {
	id       uint64
	stream   *Stream
	key      gatewayv1.FeedKey
	depth    int
	feed     *feed
	snapshot bool
	attached bool
}

type Option func(*Hub)

// WithClock overrides the clock used for subscribed_at
func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// NewHub creates a hub. buffer bounds the events queued per subscriber and
// feed; recent is the number of trades replayed to late joiners.
func NewHub(registry *exchange.Registry, logger *zap.Logger, buffer, recent int, opts ...Option) *Hub {
	if buffer < 2 {
		buffer = 2
	}
	h := &Hub{
		registry: registry,
		logger:   logger,
		buffer:   buffer,
		recent:   recent,
		now:      time.Now,
		feeds:    make(map[gatewayv1.FeedKey]*feed),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe validates every subscription and attaches a new stream to the
// requested feeds. Each feed first yields SUBSCRIBED, then SNAPSHOT, then
// UPDATEs until the stream is closed or the feed fails.
func (h *Hub) Subscribe(req *gatewayv1.SubscribeRequest) (*Stream, error) {
	if req == nil || len(req.Subscriptions) == 0 {
		return nil, fmt.Errorf("%w: no subscriptions", ErrInvalidSubscription)
	}
	seen := make(map[gatewayv1.FeedKey]bool, len(req.Subscriptions))
	for _, sub := range req.Subscriptions {
		// depth only bounds BOOK snapshots
		if sub.Channel == gatewayv1.ChannelBook && sub.Depth < 0 {
			return nil, fmt.Errorf("%w: negative depth for %s", ErrInvalidSubscription, sub.Key())
		}
		if seen[sub.Key()] {
			return nil, fmt.Errorf("%w: %s requested twice", ErrInvalidSubscription, sub.Key())
		}
		seen[sub.Key()] = true
		if _, err := h.registry.Resolve(sub.Key()); err != nil {
			return nil, err
		}
	}

	stream := newStream(h)
	for _, sub := range req.Subscriptions {
		if err := h.attach(stream, sub); err != nil {
			stream.Close()
			return nil, err
		}
	}
	return stream, nil
}

func (h *Hub) attach(stream *Stream, sub gatewayv1.Subscription) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := sub.Key()
	f, ok := h.feeds[key]
	if !ok {
		var err error
		if f, err = h.open(key); err != nil {
			return err
		}
	}

	var depth int
	if key.Channel == gatewayv1.ChannelBook {
		depth = int(sub.Depth)
	}

	h.nextID++
	s := &subscriber{
		id:       h.nextID,
		stream:   stream,
		key:      key,
		depth:    depth,
		feed:     f,
		attached: true,
	}
	f.subs[s.id] = s
	stream.subs = append(stream.subs, s)
	stream.mu.Lock()
	stream.attached++
	stream.mu.Unlock()

	stream.push(&gatewayv1.SubscribeResponse{
		Exchange:     key.Exchange,
		Symbol:       key.Symbol,
		Channel:      key.Channel,
		Event:        gatewayv1.EventSubscribed,
		SubscribedAt: h.now().UnixMilli(),
	}, 0)
	if f.ready {
		h.deliver(s, h.snapshotEvent(f, s))
	}

	h.logger.Debug("subscriber attached",
		zap.String("feed", key.String()),
		zap.Int("subscribers", len(f.subs)),
	)
	return nil
}

// open starts the upstream feed for key. Callers hold h.mu.
func (h *Hub) open(key gatewayv1.FeedKey) (*feed, error) {
	ex, err := h.registry.Resolve(key)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	events, err := ex.OpenFeed(ctx, key)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open %s: %w", key, err)
	}

	f := &feed{
		key:    key,
		cancel: cancel,
		subs:   make(map[uint64]*subscriber),
	}
	if key.Channel == gatewayv1.ChannelBook {
		f.book = book.New(key.Exchange, key.Symbol)
	}
	h.feeds[key] = f
	go h.pump(ctx, f, events)

	h.logger.Info("upstream feed opened", zap.String("feed", key.String()))
	return f, nil
}

// pump applies upstream events until the feed ends
func (h *Hub) pump(ctx context.Context, f *feed, events <-chan exchange.FeedEvent) {
	for ev := range events {
		if ev.Err != nil {
			h.fail(f, ev.Err)
			return
		}
		if err := h.apply(f, ev); err != nil {
			h.fail(f, err)
			return
		}
	}
	if ctx.Err() == nil {
		h.fail(f, exchange.ErrFeedClosed)
	}
}

func (h *Hub) apply(f *feed, ev exchange.FeedEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f.ended {
		return nil
	}

	snapshot := ev.Kind == exchange.FeedSnapshot
	update := &gatewayv1.SubscribeResponse{
		Exchange: f.key.Exchange,
		Symbol:   f.key.Symbol,
		Channel:  f.key.Channel,
		Event:    gatewayv1.EventUpdate,
	}

	switch f.key.Channel {
	case gatewayv1.ChannelBook:
		if ev.Depth == nil {
			return nil
		}
		prev := f.book.Snapshot(0)
		if snapshot {
			if err := f.book.ApplySnapshot(ev.Depth); err != nil {
				return err
			}
			update.Payload = book.Diff(prev, f.book.Snapshot(0))
		} else {
			if err := f.book.ApplyUpdate(ev.Depth); err != nil {
				return err
			}
			update.Payload = levelsOnly(ev.Depth, f.key)
		}
	case gatewayv1.ChannelTrade:
		if snapshot {
			f.trades = nil
		}
		f.trades = append(f.trades, ev.Trades...)
		if len(f.trades) > h.recent {
			f.trades = append([]gatewayv1.Trade(nil), f.trades[len(f.trades)-h.recent:]...)
		}
		if len(ev.Trades) > 0 {
			update.Payload = gatewayv1.Trades(ev.Trades)
		}
	case gatewayv1.ChannelTicker:
		if ev.Ticker != nil {
			t := *ev.Ticker
			f.ticker = &t
			update.Payload = &t
		}
	}

	wasReady := f.ready
	f.ready = f.ready || snapshot
	if !f.ready {
		// updates before the upstream snapshot carry no usable state
		return nil
	}

	var slow []*subscriber
	for _, s := range f.subs {
		var ok bool
		switch {
		case !s.snapshot:
			ok = h.deliver(s, h.snapshotEvent(f, s))
		case update.Payload == nil:
			ok = true
		case snapshot && wasReady && f.key.Channel != gatewayv1.ChannelBook:
			// a repeated upstream snapshot of trades or tickers is not an update
			ok = true
		default:
			ok = s.stream.push(update, h.buffer)
		}
		if !ok {
			slow = append(slow, s)
		}
	}
	for _, s := range slow {
		h.drop(f, s, gatewayv1.NewError(gatewayv1.ErrorCodeSlowConsumer, "subscriber too slow for %s", f.key))
	}
	return nil
}

// deliver queues the snapshot for s and reports whether it fit
func (h *Hub) deliver(s *subscriber, ev *gatewayv1.SubscribeResponse) bool {
	s.snapshot = true
	return s.stream.push(ev, h.buffer)
}

func (h *Hub) snapshotEvent(f *feed, s *subscriber) *gatewayv1.SubscribeResponse {
	ev := &gatewayv1.SubscribeResponse{
		Exchange: f.key.Exchange,
		Symbol:   f.key.Symbol,
		Channel:  f.key.Channel,
		Event:    gatewayv1.EventSnapshot,
	}
	switch f.key.Channel {
	case gatewayv1.ChannelBook:
		ev.Payload = f.book.Snapshot(s.depth)
	case gatewayv1.ChannelTrade:
		if len(f.trades) > 0 {
			ev.Payload = gatewayv1.Trades(append([]gatewayv1.Trade(nil), f.trades...))
		}
	case gatewayv1.ChannelTicker:
		t := gatewayv1.Ticker{Exchange: f.key.Exchange, Symbol: f.key.Symbol}
		if f.ticker != nil {
			t = *f.ticker
		}
		ev.Payload = &t
	}
	return ev
}

// fail ends the feed and reports err to every subscriber
func (h *Hub) fail(f *feed, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f.ended {
		return
	}

	h.logger.Warn("upstream feed failed",
		zap.String("feed", f.key.String()),
		zap.Int("subscribers", len(f.subs)),
		zap.Error(err),
	)
	gerr := gatewayv1.NewError(gatewayv1.ErrorCodeFeedFailed, "feed %s failed: %v", f.key, err)
	for _, s := range f.subs {
		h.drop(f, s, gerr)
	}
	h.release(f)
}

// drop detaches s from f and queues its final ERROR. Callers hold h.mu.
func (h *Hub) drop(f *feed, s *subscriber, gerr *gatewayv1.Error) {
	if !s.attached {
		return
	}
	s.attached = false
	delete(f.subs, s.id)
	s.stream.end(&gatewayv1.SubscribeResponse{
		Exchange: f.key.Exchange,
		Symbol:   f.key.Symbol,
		Channel:  f.key.Channel,
		Event:    gatewayv1.EventError,
		Payload:  gerr,
	})
	if gerr.ErrorCode == gatewayv1.ErrorCodeSlowConsumer {
		h.logger.Warn("slow subscriber detached", zap.String("feed", f.key.String()))
	}
	if len(f.subs) == 0 {
		h.release(f)
	}
}

// detach removes subscribers whose stream closed
func (h *Hub) detach(subs ...*subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range subs {
		if !s.attached {
			continue
		}
		s.attached = false
		s.stream.mu.Lock()
		s.stream.attached--
		s.stream.mu.Unlock()

		f := s.feed
		delete(f.subs, s.id)
		if len(f.subs) == 0 {
			h.release(f)
		}
	}
}

// release cancels the upstream feed. Callers hold h.mu.
func (h *Hub) release(f *feed) {
	if f.ended {
		return
	}
	f.ended = true
	f.cancel()
	if h.feeds[f.key] == f {
		delete(h.feeds, f.key)
	}
	h.logger.Info("upstream feed released", zap.String("feed", f.key.String()))
}

// Feeds returns the number of open upstream feeds
func (h *Hub) Feeds() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

// Subscribers returns the number of subscribers attached to key
func (h *Hub) Subscribers(key gatewayv1.FeedKey) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if f, ok := h.feeds[key]; ok {
		return len(f.subs)
	}
	return 0
}

// Close releases every upstream feed
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, f := range h.feeds {
		for _, s := range f.subs {
			h.drop(f, s, gatewayv1.NewError(gatewayv1.ErrorCodeFeedFailed, "gateway shutting down"))
		}
		h.release(f)
	}
}

func levelsOnly(d *gatewayv1.Depth, key gatewayv1.FeedKey) *gatewayv1.Depth {
	return &gatewayv1.Depth{
		Exchange: key.Exchange,
		Symbol:   key.Symbol,
		Asks:     d.Asks,
		Bids:     d.Bids,
	}
}
