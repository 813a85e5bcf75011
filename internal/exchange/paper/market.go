package paper

import (
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
)

const (
	bookLevels     = 10
	recentTrades   = 50
	historyMinutes = 7 * 24 * 60

	// per tick relative price move bound
	walkStep = 0.001
	// distance between generated book levels, relative to the price
	levelStep = 0.0002
)

// market is the simulated state of one symbol
type market struct {
	exchange    string
	symbol      string
	base        string
	quote       string
	priceScale  int64
	volumeScale int64

	basePrice float64
	price     float64
	lastTrade float64
	depth     *gatewayv1.Depth
	ticker    gatewayv1.Ticker
	trades    []gatewayv1.Trade

	// one-minute candles recorded since origin, keyed by unix minute
	minutes map[int64]*candle
	origin  int64
	noise   uint64
}

func newMarket(exchangeName, symbol, base, quote string, price float64, priceScale, volumeScale, seed int64, start time.Time) *market {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return &market{
		exchange:    exchangeName,
		symbol:      symbol,
		base:        base,
		quote:       quote,
		priceScale:  priceScale,
		volumeScale: volumeScale,
		basePrice:   price,
		price:       price,
		lastTrade:   price,
		ticker: gatewayv1.Ticker{
			Exchange: exchangeName,
			Symbol:   symbol,
			Open:     price,
			High:     price,
			Low:      price,
			Close:    price,
		},
		minutes: make(map[int64]*candle),
		origin:  start.Unix() / 60,
		noise:   h.Sum64() ^ uint64(seed),
	}
}

// tick moves the price one random-walk step and returns the public trades
// printed at the new book
func (m *market) tick(rng *rand.Rand, now time.Time, nextID func() string) []gatewayv1.Trade {
	m.price *= 1 + (rng.Float64()*2-1)*walkStep
	if floor := 1 / float64(m.priceScale); m.price < floor {
		m.price = floor
	}
	m.regenerate(rng)

	n := rng.Intn(3)
	trades := make([]gatewayv1.Trade, 0, n)
	for i := 0; i < n; i++ {
		side := gatewayv1.SideBuy
		levels := m.depth.Asks
		if rng.Intn(2) == 1 {
			side = gatewayv1.SideSell
			levels = m.depth.Bids
		}
		if len(levels) == 0 {
			continue
		}
		price := m.unscalePrice(levels[0].Price)
		volume := m.roundVolume(0.001 + rng.Float64()*0.5)

		trend := "up"
		if price < m.lastTrade {
			trend = "down"
		}
		m.lastTrade = price

		t := gatewayv1.Trade{
			Exchange:  m.exchange,
			Symbol:    m.symbol,
			ID:        nextID(),
			Price:     price,
			Volume:    volume,
			CreatedAt: now.UnixMilli(),
			Side:      side,
			Trend:     trend,
		}
		trades = append(trades, t)
		m.recordTrade(t)
	}

	m.ticker.Close = m.price
	m.ticker.High = math.Max(m.ticker.High, m.price)
	m.ticker.Low = math.Min(m.ticker.Low, m.price)

	for _, t := range trades {
		m.record(now, t.Price, t.Volume, t.Price*t.Volume)
	}
	// the mark price closes the minute
	m.record(now, m.price, 0, 0)
	return trades
}

// regenerate builds a fresh book around the current price. Levels are
// integral in the exchange's fixed-point scale and strictly ordered.
func (m *market) regenerate(rng *rand.Rand) {
	mid := m.scalePrice(m.price)
	step := m.scalePrice(m.price * levelStep)
	if step < 1 {
		step = 1
	}

	depth := &gatewayv1.Depth{
		Exchange: m.exchange,
		Symbol:   m.symbol,
		Asks:     make([]gatewayv1.PriceVolume, 0, bookLevels),
		Bids:     make([]gatewayv1.PriceVolume, 0, bookLevels),
	}
	for i := int64(1); i <= bookLevels; i++ {
		depth.Asks = append(depth.Asks, gatewayv1.PriceVolume{Price: mid + step*i, Volume: m.randomVolume(rng)})
		if bid := mid - step*i; bid > 0 {
			depth.Bids = append(depth.Bids, gatewayv1.PriceVolume{Price: bid, Volume: m.randomVolume(rng)})
		}
	}
	m.depth = depth
}

func (m *market) randomVolume(rng *rand.Rand) int64 {
	v := int64(math.Round((0.05 + rng.Float64()*2) * float64(m.volumeScale)))
	if v < 1 {
		v = 1
	}
	return v
}

func (m *market) recordTrade(t gatewayv1.Trade) {
	m.ticker.Volume += t.Volume
	m.trades = append(m.trades, t)
	if len(m.trades) > recentTrades {
		m.trades = append([]gatewayv1.Trade(nil), m.trades[len(m.trades)-recentTrades:]...)
	}
}

// crosses reports whether a limit order at price would take liquidity
func (m *market) crosses(side gatewayv1.Side, price float64) bool {
	if side == gatewayv1.SideBuy {
		return len(m.depth.Asks) > 0 && price >= m.unscalePrice(m.depth.Asks[0].Price)
	}
	return len(m.depth.Bids) > 0 && price <= m.unscalePrice(m.depth.Bids[0].Price)
}

func (m *market) scalePrice(p float64) int64 {
	return int64(math.Round(p * float64(m.priceScale)))
}

func (m *market) unscalePrice(p int64) float64 {
	return float64(p) / float64(m.priceScale)
}

func (m *market) unscaleVolume(v int64) float64 {
	return float64(v) / float64(m.volumeScale)
}

func (m *market) roundVolume(v float64) float64 {
	scaled := math.Round(v * float64(m.volumeScale))
	if scaled < 1 {
		scaled = 1
	}
	return scaled / float64(m.volumeScale)
}
