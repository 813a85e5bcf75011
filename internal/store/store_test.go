package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "store_test_*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	s, err := Open(filepath.Join(tmpDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestClaimIsExclusive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	dup, holder, err := s.Claim(ctx, "paper", "cid-1", "ord-1")
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, "ord-1", holder)

	dup, holder, err = s.Claim(ctx, "paper", "cid-1", "ord-2")
	require.NoError(t, err)
	assert.True(t, dup, "second claim of the same client order id must be a duplicate")
	assert.Equal(t, "ord-1", holder)

	// same id on another exchange is independent
	dup, _, err = s.Claim(ctx, "other", "cid-1", "ord-3")
	require.NoError(t, err)
	assert.False(t, dup)

	// only the holder can release
	require.NoError(t, s.Release(ctx, "paper", "cid-1", "ord-2"))
	dup, _, err = s.Claim(ctx, "paper", "cid-1", "ord-4")
	require.NoError(t, err)
	assert.True(t, dup)

	require.NoError(t, s.Release(ctx, "paper", "cid-1", "ord-1"))
	dup, _, err = s.Claim(ctx, "paper", "cid-1", "ord-4")
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestSaveOrderUpsertsAndAppendsOutbox(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	order := &gatewayv1.Order{
		Exchange:      "paper",
		Symbol:        "BTCUSDT",
		ID:            "ord-1",
		Side:          gatewayv1.SideSell,
		OrderType:     gatewayv1.OrderTypeLimit,
		Price:         30000,
		Status:        "NEW",
		CreatedAt:     1000,
		Quantity:      2,
		ClientOrderID: "cid-1",
		GroupID:       7,
	}
	require.NoError(t, s.SaveOrder(ctx, order, OutboxEvent{
		AggregateID: "ord-1",
		EventID:     "evt-1",
		Topic:       "gateway.orders",
		Key:         "paper/ord-1",
		PayloadJSON: `{}`,
	}))

	update := *order
	update.Status = "PARTIALLY_FILLED"
	update.ExecutedVolume = 1
	update.AvgPrice = 30000
	update.TradesCount = 1
	require.NoError(t, s.SaveOrder(ctx, &update))

	got, err := s.GetOrder(ctx, "paper", "ord-1")
	require.NoError(t, err)
	assert.Equal(t, update, *got)

	byClient, err := s.GetOrderByClientID(ctx, "paper", "cid-1")
	require.NoError(t, err)
	assert.Equal(t, "ord-1", byClient.ID)

	_, err = s.GetOrder(ctx, "paper", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	events, err := s.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].EventID)
	assert.False(t, events[0].PublishedUnixMillis.Valid)

	require.NoError(t, s.MarkPublished(ctx, "evt-1", 5000))
	events, err = s.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestSaveTradeDedupes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	trade := &gatewayv1.Trade{Exchange: "paper", Symbol: "BTCUSDT", ID: "t-1", Price: 10, Volume: 1, CreatedAt: 100, Maker: true}
	evt := OutboxEvent{AggregateID: "ord-1", EventID: "evt-t-1", Topic: "gateway.trades", Key: "paper/ord-1", PayloadJSON: `{}`}

	inserted, err := s.SaveTrade(ctx, "ord-1", trade, evt)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.SaveTrade(ctx, "ord-1", trade, evt)
	require.NoError(t, err)
	assert.False(t, inserted)

	trades, err := s.ListTrades(ctx, TradeQuery{Exchange: "paper", Limit: 10})
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, *trade, trades[0])

	events, err := s.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func seedOrders(t *testing.T, s *Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		status := "NEW"
		if i%2 == 0 {
			status = "FILLED"
		}
		require.NoError(t, s.SaveOrder(context.Background(), &gatewayv1.Order{
			Exchange:  "paper",
			Symbol:    "BTCUSDT",
			ID:        fmt.Sprintf("ord-%02d", i),
			Status:    status,
			Price:     float64(100 - i),
			CreatedAt: int64(i * 10),
			Quantity:  1,
		}))
	}
}

func ids(orders []gatewayv1.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func TestListOrdersMostRecent(t *testing.T) {
	s := openTestStore(t)
	seedOrders(t, s, 5)

	got, err := s.ListOrders(context.Background(), OrderQuery{Exchange: "paper", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"ord-05", "ord-04", "ord-03"}, ids(got))

	// the window is chosen by recency, then sorted by the requested key
	got, err = s.ListOrders(context.Background(), OrderQuery{Exchange: "paper", Limit: 3, OrderBy: "price"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ord-05", "ord-04", "ord-03"}, ids(got))

	got, err = s.ListOrders(context.Background(), OrderQuery{Exchange: "paper", Limit: 3, OrderBy: "created_at"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ord-03", "ord-04", "ord-05"}, ids(got))
}

func TestListOrdersPaginated(t *testing.T) {
	s := openTestStore(t)
	seedOrders(t, s, 5)
	ctx := context.Background()

	page1, err := s.ListOrders(ctx, OrderQuery{Exchange: "paper", Paginate: true, OrderBy: "created_at", Limit: 2})
	require.NoError(t, err)
	page2, err := s.ListOrders(ctx, OrderQuery{Exchange: "paper", Paginate: true, OrderBy: "created_at", Limit: 2, Offset: 2})
	require.NoError(t, err)
	page3, err := s.ListOrders(ctx, OrderQuery{Exchange: "paper", Paginate: true, OrderBy: "created_at", Limit: 2, Offset: 4})
	require.NoError(t, err)

	assert.Equal(t, []string{"ord-01", "ord-02"}, ids(page1))
	assert.Equal(t, []string{"ord-03", "ord-04"}, ids(page2))
	assert.Equal(t, []string{"ord-05"}, ids(page3))

	filled, err := s.ListOrders(ctx, OrderQuery{Exchange: "paper", States: []string{"FILLED"}, Paginate: true, OrderBy: "-created_at", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"ord-04", "ord-02"}, ids(filled))
}

func TestListTradesRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := s.SaveTrade(ctx, "ord-1", &gatewayv1.Trade{
			Exchange:  "paper",
			Symbol:    "BTCUSDT",
			ID:        fmt.Sprintf("t-%d", i),
			CreatedAt: int64(i * 100),
		})
		require.NoError(t, err)
	}

	got, err := s.ListTrades(ctx, TradeQuery{Exchange: "paper", From: 200, To: 400, OrderBy: "created_at", Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "t-2", got[0].ID)
	assert.Equal(t, "t-4", got[2].ID)

	got, err = s.ListTrades(ctx, TradeQuery{Exchange: "paper", Before: 300, Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "t-3", got[0].ID)
}

func TestParseSortKey(t *testing.T) {
	assert.Equal(t, SortKey{Column: "price"}, ParseSortKey("price", orderSortColumns))
	assert.Equal(t, SortKey{Column: "price", Descending: true}, ParseSortKey("-price", orderSortColumns))
	assert.Equal(t, SortKey{Column: "created_at", Descending: true}, ParseSortKey("Time DESC", orderSortColumns))
	assert.Equal(t, SortKey{Column: "created_at", Descending: true}, ParseSortKey("nonsense", orderSortColumns))
	assert.Equal(t, "price ASC, id ASC", SortKey{Column: "price"}.orderClause())
}
