package marketdata

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/ismaiel54/unified-trading-gateway/internal/exchange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errUpstream = errors.New("upstream disconnected")

type fakeExchange struct {
	feeds *exchange.Feeds

	mu    sync.Mutex
	opens int
}

func newFakeExchange() *fakeExchange {
	return &fakeExchange{feeds: exchange.NewFeeds(64)}
}

func (f *fakeExchange) Name() string { return "fake" }

func (f *fakeExchange) Supports(ch gatewayv1.Channel) bool { return ch != gatewayv1.ChannelUser }

func (f *fakeExchange) HasSymbol(symbol string) bool { return symbol == "BTCUSDT" }

func (f *fakeExchange) OpenFeed(ctx context.Context, key gatewayv1.FeedKey) (<-chan exchange.FeedEvent, error) {
	f.mu.Lock()
	f.opens++
	f.mu.Unlock()

	var snap exchange.FeedEvent
	switch key.Channel {
	case gatewayv1.ChannelBook:
		snap.Depth = &gatewayv1.Depth{
			Exchange: "fake",
			Symbol:   key.Symbol,
			Asks:     levels(101, 1, 5),
			Bids:     levels(100, -1, 5),
		}
	case gatewayv1.ChannelTicker:
		snap.Ticker = &gatewayv1.Ticker{Exchange: "fake", Symbol: key.Symbol, Close: 100}
	}
	return f.feeds.Open(ctx, key, snap), nil
}

func (f *fakeExchange) QueryKLines(_ context.Context, symbol string, interval time.Duration, end time.Time, limit int) ([]gatewayv1.KLine, error) {
	out := make([]gatewayv1.KLine, 0, limit)
	last := end.Truncate(interval)
	for i := limit - 1; i >= 0; i-- {
		out = append(out, gatewayv1.KLine{
			Exchange:  "fake",
			Symbol:    symbol,
			Timestamp: last.Add(-time.Duration(i) * interval).UnixMilli(),
			Close:     100,
		})
	}
	return out, nil
}

func (f *fakeExchange) SubmitOrder(context.Context, *gatewayv1.SubmitOrder) (*gatewayv1.Order, error) {
	return nil, exchange.ErrNotSupported
}

func (f *fakeExchange) CancelOrder(context.Context, *gatewayv1.Order) (*gatewayv1.Order, error) {
	return nil, exchange.ErrNotSupported
}

func (f *fakeExchange) QueryBalances(context.Context) ([]gatewayv1.Balance, error) {
	return nil, exchange.ErrNotSupported
}

func (f *fakeExchange) UserEvents() <-chan exchange.UserEvent { return nil }

func (f *fakeExchange) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func levels(start, step int64, n int) []gatewayv1.PriceVolume {
	out := make([]gatewayv1.PriceVolume, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, gatewayv1.PriceVolume{Price: start + step*int64(i), Volume: 10})
	}
	return out
}

var bookKey = gatewayv1.FeedKey{Exchange: "fake", Channel: gatewayv1.ChannelBook, Symbol: "BTCUSDT"}

func newTestHub(t *testing.T, buffer, recent int) (*Hub, *fakeExchange) {
	t.Helper()
	ex := newFakeExchange()
	registry, err := exchange.NewRegistry(ex)
	require.NoError(t, err)
	h := NewHub(registry, zap.NewNop(), buffer, recent,
		WithClock(func() time.Time { return time.UnixMilli(1_700_000_000_000) }),
	)
	t.Cleanup(h.Close)
	return h, ex
}

func subscribe(t *testing.T, h *Hub, subs ...gatewayv1.Subscription) *Stream {
	t.Helper()
	s, err := h.Subscribe(&gatewayv1.SubscribeRequest{Subscriptions: subs})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func next(t *testing.T, s *Stream) *gatewayv1.SubscribeResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := s.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, ev.Validate())
	return ev
}

func queued(s *Stream) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func TestSubscribeSnapshotThenUpdates(t *testing.T) {
	h, ex := newTestHub(t, 16, 50)
	s := subscribe(t, h, gatewayv1.Subscription{Exchange: "fake", Channel: gatewayv1.ChannelBook, Symbol: "BTCUSDT", Depth: 2})

	ev := next(t, s)
	assert.Equal(t, gatewayv1.EventSubscribed, ev.Event)
	assert.Equal(t, int64(1_700_000_000_000), ev.SubscribedAt)

	ev = next(t, s)
	assert.Equal(t, gatewayv1.EventSnapshot, ev.Event)
	assert.Equal(t, levels(101, 1, 2), ev.Depth().Asks)
	assert.Equal(t, levels(100, -1, 2), ev.Depth().Bids)

	ex.feeds.Publish(bookKey, exchange.FeedEvent{
		Kind:  exchange.FeedUpdate,
		Depth: &gatewayv1.Depth{Asks: []gatewayv1.PriceVolume{{Price: 101, Volume: 0}}},
	})
	ev = next(t, s)
	assert.Equal(t, gatewayv1.EventUpdate, ev.Event)
	assert.Equal(t, "fake", ev.Depth().Exchange)
	assert.Equal(t, []gatewayv1.PriceVolume{{Price: 101, Volume: 0}}, ev.Depth().Asks)

	// a late joiner gets the hub's book, not a second upstream
	late := subscribe(t, h, gatewayv1.Subscription{Exchange: "fake", Channel: gatewayv1.ChannelBook, Symbol: "BTCUSDT"})
	assert.Equal(t, gatewayv1.EventSubscribed, next(t, late).Event)
	snap := next(t, late)
	assert.Equal(t, gatewayv1.EventSnapshot, snap.Event)
	assert.Equal(t, levels(102, 1, 4), snap.Depth().Asks)
	assert.Equal(t, 1, ex.openCount())
	assert.Equal(t, 2, h.Subscribers(bookKey))
}

func TestRecentTradesReplayedToLateJoiner(t *testing.T) {
	h, ex := newTestHub(t, 16, 3)
	key := gatewayv1.FeedKey{Exchange: "fake", Channel: gatewayv1.ChannelTrade, Symbol: "BTCUSDT"}
	s := subscribe(t, h, gatewayv1.Subscription{Exchange: "fake", Channel: gatewayv1.ChannelTrade, Symbol: "BTCUSDT"})
	next(t, s)
	snap := next(t, s)
	assert.Equal(t, gatewayv1.EventSnapshot, snap.Event)
	assert.Empty(t, snap.Trades())

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		ex.feeds.Publish(key, exchange.FeedEvent{Kind: exchange.FeedUpdate, Trades: []gatewayv1.Trade{{ID: id, Price: 100, Volume: 1}}})
	}
	for _, id := range []string{"1", "2", "3", "4", "5"} {
		ev := next(t, s)
		require.Len(t, ev.Trades(), 1)
		assert.Equal(t, id, ev.Trades()[0].ID)
	}

	late := subscribe(t, h, gatewayv1.Subscription{Exchange: "fake", Channel: gatewayv1.ChannelTrade, Symbol: "BTCUSDT"})
	next(t, late)
	snap = next(t, late)
	var ids []string
	for _, tr := range snap.Trades() {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []string{"3", "4", "5"}, ids)
}

func TestSlowConsumerDetached(t *testing.T) {
	h, ex := newTestHub(t, 2, 50)
	s := subscribe(t, h, gatewayv1.Subscription{Exchange: "fake", Channel: gatewayv1.ChannelBook, Symbol: "BTCUSDT"})
	require.Eventually(t, func() bool { return queued(s) == 2 }, time.Second, 5*time.Millisecond)

	ex.feeds.Publish(bookKey, exchange.FeedEvent{
		Kind:  exchange.FeedUpdate,
		Depth: &gatewayv1.Depth{Bids: []gatewayv1.PriceVolume{{Price: 99, Volume: 3}}},
	})
	require.Eventually(t, func() bool { return h.Subscribers(bookKey) == 0 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, gatewayv1.EventSubscribed, next(t, s).Event)
	assert.Equal(t, gatewayv1.EventSnapshot, next(t, s).Event)
	ev := next(t, s)
	assert.Equal(t, gatewayv1.EventError, ev.Event)
	var gerr *gatewayv1.Error
	require.ErrorAs(t, ev.Err(), &gerr)
	assert.Equal(t, gatewayv1.ErrorCodeSlowConsumer, gerr.ErrorCode)

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	// the last subscriber leaving releases the upstream feed
	assert.Zero(t, h.Feeds())
	assert.Eventually(t, func() bool { return ex.feeds.Listeners(bookKey) == 0 }, time.Second, 5*time.Millisecond)
}

func TestUpstreamFailureReachesAllSubscribers(t *testing.T) {
	h, ex := newTestHub(t, 16, 50)
	tickerKey := gatewayv1.FeedKey{Exchange: "fake", Channel: gatewayv1.ChannelTicker, Symbol: "BTCUSDT"}
	a := subscribe(t, h, gatewayv1.Subscription{Exchange: "fake", Channel: gatewayv1.ChannelTicker, Symbol: "BTCUSDT"})
	b := subscribe(t, h, gatewayv1.Subscription{Exchange: "fake", Channel: gatewayv1.ChannelTicker, Symbol: "BTCUSDT"})

	for _, s := range []*Stream{a, b} {
		assert.Equal(t, gatewayv1.EventSubscribed, next(t, s).Event)
		snap := next(t, s)
		assert.Equal(t, gatewayv1.EventSnapshot, snap.Event)
		assert.Equal(t, 100.0, snap.Ticker().Close)
	}

	ex.feeds.Fail(tickerKey, errUpstream)
	for _, s := range []*Stream{a, b} {
		ev := next(t, s)
		assert.Equal(t, gatewayv1.EventError, ev.Event)
		var gerr *gatewayv1.Error
		require.ErrorAs(t, ev.Err(), &gerr)
		assert.Equal(t, gatewayv1.ErrorCodeFeedFailed, gerr.ErrorCode)
		assert.Contains(t, gerr.ErrorMessage, errUpstream.Error())
	}
	assert.Zero(t, h.Feeds())
}

func TestCloseReleasesUpstream(t *testing.T) {
	h, ex := newTestHub(t, 16, 50)
	s := subscribe(t, h,
		gatewayv1.Subscription{Exchange: "fake", Channel: gatewayv1.ChannelBook, Symbol: "BTCUSDT"},
		gatewayv1.Subscription{Exchange: "fake", Channel: gatewayv1.ChannelTicker, Symbol: "BTCUSDT"},
	)
	assert.Equal(t, 2, h.Feeds())
	assert.Equal(t, 2, ex.openCount())

	s.Close()
	assert.Zero(t, h.Feeds())
	assert.Eventually(t, func() bool { return len(ex.feeds.Keys()) == 0 }, time.Second, 5*time.Millisecond)

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSubscribeRejectsInvalidRequests(t *testing.T) {
	h, _ := newTestHub(t, 16, 50)

	_, err := h.Subscribe(&gatewayv1.SubscribeRequest{})
	assert.ErrorIs(t, err, ErrInvalidSubscription)

	_, err = h.Subscribe(&gatewayv1.SubscribeRequest{Subscriptions: []gatewayv1.Subscription{
		{Exchange: "nope", Channel: gatewayv1.ChannelBook, Symbol: "BTCUSDT"},
	}})
	assert.ErrorIs(t, err, exchange.ErrUnknownExchange)

	_, err = h.Subscribe(&gatewayv1.SubscribeRequest{Subscriptions: []gatewayv1.Subscription{
		{Exchange: "fake", Channel: gatewayv1.ChannelUser, Symbol: "BTCUSDT"},
	}})
	assert.ErrorIs(t, err, exchange.ErrNotSupported)

	_, err = h.Subscribe(&gatewayv1.SubscribeRequest{Subscriptions: []gatewayv1.Subscription{
		{Exchange: "fake", Channel: gatewayv1.ChannelTrade, Symbol: "BTCUSDT"},
		{Exchange: "fake", Channel: gatewayv1.ChannelTrade, Symbol: "BTCUSDT", Depth: 5},
	}})
	assert.ErrorIs(t, err, ErrInvalidSubscription)
	assert.Zero(t, h.Feeds())

	_, err = h.Subscribe(&gatewayv1.SubscribeRequest{Subscriptions: []gatewayv1.Subscription{
		{Exchange: "fake", Channel: gatewayv1.ChannelBook, Symbol: "BTCUSDT", Depth: -1},
	}})
	assert.ErrorIs(t, err, ErrInvalidSubscription)
}

func TestDepthIgnoredOutsideBook(t *testing.T) {
	h, _ := newTestHub(t, 16, 50)
	s := subscribe(t, h,
		gatewayv1.Subscription{Exchange: "fake", Channel: gatewayv1.ChannelTrade, Symbol: "BTCUSDT", Depth: -1},
		gatewayv1.Subscription{Exchange: "fake", Channel: gatewayv1.ChannelTicker, Symbol: "BTCUSDT", Depth: -3},
	)

	var snapshots int
	for i := 0; i < 4; i++ {
		ev := next(t, s)
		if ev.Event == gatewayv1.EventSnapshot {
			snapshots++
		}
	}
	assert.Equal(t, 2, snapshots)
	assert.Equal(t, 2, h.Feeds())
}

func TestQueryKLines(t *testing.T) {
	h, _ := newTestHub(t, 16, 50)
	end := time.UnixMilli(1_700_000_000_000)

	klines, err := h.QueryKLines(context.Background(), &gatewayv1.QueryKLinesRequest{
		Exchange:  "fake",
		Symbol:    "BTCUSDT",
		Interval:  "1h",
		Timestamp: end.UnixMilli(),
		Limit:     3,
	})
	require.NoError(t, err)
	require.Len(t, klines, 3)
	assert.Equal(t, end.Truncate(time.Hour).UnixMilli(), klines[2].Timestamp)

	_, err = h.QueryKLines(context.Background(), &gatewayv1.QueryKLinesRequest{Exchange: "fake", Symbol: "BTCUSDT", Interval: "7m"})
	assert.ErrorIs(t, err, exchange.ErrInvalidInterval)

	_, err = h.QueryKLines(context.Background(), &gatewayv1.QueryKLinesRequest{Exchange: "fake", Symbol: "DOGE", Interval: "1m"})
	assert.ErrorIs(t, err, exchange.ErrUnknownSymbol)

	_, err = h.QueryKLines(context.Background(), &gatewayv1.QueryKLinesRequest{Exchange: "fake", Symbol: "BTCUSDT", Interval: "1m", Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
