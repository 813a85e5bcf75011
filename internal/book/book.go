package book

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
)

var ErrNegativeLevel = errors.New("negative price or volume")

// OrderBook keeps the price levels of one market in exchange-scaled fixed
// point. It is safe for concurrent use.
type OrderBook struct {
	exchange string
	symbol   string

	mu   sync.RWMutex
	asks map[int64]int64
	bids map[int64]int64
}

func New(exchange, symbol string) *OrderBook {
	return &OrderBook{
		exchange: exchange,
		symbol:   symbol,
		asks:     make(map[int64]int64),
		bids:     make(map[int64]int64),
	}
}

// ApplySnapshot replaces the book with the levels of d.
func (b *OrderBook) ApplySnapshot(d *gatewayv1.Depth) error {
	if err := d.Validate(); err != nil {
		return err
	}
	asks := make(map[int64]int64, len(d.Asks))
	bids := make(map[int64]int64, len(d.Bids))
	upsert(asks, d.Asks)
	upsert(bids, d.Bids)

	b.mu.Lock()
	b.asks, b.bids = asks, bids
	b.mu.Unlock()
	return nil
}

// ApplyUpdate upserts the levels of d. A level with volume 0 is removed.
func (b *OrderBook) ApplyUpdate(d *gatewayv1.Depth) error {
	if err := checkLevels(d.Asks); err != nil {
		return fmt.Errorf("asks: %w", err)
	}
	if err := checkLevels(d.Bids); err != nil {
		return fmt.Errorf("bids: %w", err)
	}

	b.mu.Lock()
	upsert(b.asks, d.Asks)
	upsert(b.bids, d.Bids)
	b.mu.Unlock()
	return nil
}

// Snapshot returns up to depth levels per side, all levels when depth <= 0.
func (b *OrderBook) Snapshot(depth int) *gatewayv1.Depth {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return &gatewayv1.Depth{
		Exchange: b.exchange,
		Symbol:   b.symbol,
		Asks:     levels(b.asks, true, depth),
		Bids:     levels(b.bids, false, depth),
	}
}

// BestAsk returns the lowest ask level.
func (b *OrderBook) BestAsk() (gatewayv1.PriceVolume, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return best(b.asks, true)
}

// BestBid returns the highest bid level.
func (b *OrderBook) BestBid() (gatewayv1.PriceVolume, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return best(b.bids, false)
}

// Len returns the number of ask and bid levels.
func (b *OrderBook) Len() (asks, bids int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.asks), len(b.bids)
}

// Diff returns the update that turns prev into next: changed and new levels
// with their volume, removed levels with volume 0. Sides are sorted like a
// snapshot so the result also satisfies Depth.Validate.
func Diff(prev, next *gatewayv1.Depth) *gatewayv1.Depth {
	return &gatewayv1.Depth{
		Exchange: next.Exchange,
		Symbol:   next.Symbol,
		Asks:     diffSide(prev.Asks, next.Asks, true),
		Bids:     diffSide(prev.Bids, next.Bids, false),
	}
}

func diffSide(prev, next []gatewayv1.PriceVolume, ascending bool) []gatewayv1.PriceVolume {
	old := make(map[int64]int64, len(prev))
	upsert(old, prev)

	changed := make(map[int64]int64)
	for _, lv := range next {
		if v, ok := old[lv.Price]; !ok || v != lv.Volume {
			changed[lv.Price] = lv.Volume
		}
		delete(old, lv.Price)
	}
	for price := range old {
		changed[price] = 0
	}

	out := make([]gatewayv1.PriceVolume, 0, len(changed))
	for price, volume := range changed {
		out = append(out, gatewayv1.PriceVolume{Price: price, Volume: volume})
	}
	sortLevels(out, ascending)
	return out
}

func checkLevels(levels []gatewayv1.PriceVolume) error {
	for _, lv := range levels {
		if lv.Price < 0 || lv.Volume < 0 {
			return fmt.Errorf("%w: price %d volume %d", ErrNegativeLevel, lv.Price, lv.Volume)
		}
	}
	return nil
}

func upsert(side map[int64]int64, levels []gatewayv1.PriceVolume) {
	for _, lv := range levels {
		if lv.Volume == 0 {
			delete(side, lv.Price)
			continue
		}
		side[lv.Price] = lv.Volume
	}
}

func levels(side map[int64]int64, ascending bool, depth int) []gatewayv1.PriceVolume {
	if len(side) == 0 {
		return nil
	}
	out := make([]gatewayv1.PriceVolume, 0, len(side))
	for price, volume := range side {
		out = append(out, gatewayv1.PriceVolume{Price: price, Volume: volume})
	}
	sortLevels(out, ascending)
	if depth > 0 && len(out) > depth {
		out = out[:depth]
	}
	return out
}

func sortLevels(out []gatewayv1.PriceVolume, ascending bool) {
	sort.Slice(out, func(i, j int) bool {
		if ascending {
			return out[i].Price < out[j].Price
		}
		return out[i].Price > out[j].Price
	})
}

func best(side map[int64]int64, lowest bool) (gatewayv1.PriceVolume, bool) {
	var (
		top   gatewayv1.PriceVolume
		found bool
	)
	for price, volume := range side {
		if !found || (lowest && price < top.Price) || (!lowest && price > top.Price) {
			top = gatewayv1.PriceVolume{Price: price, Volume: volume}
			found = true
		}
	}
	return top, found
}
