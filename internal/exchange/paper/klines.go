package paper

import (
	"math"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
)

type candle struct {
	open        float64
	high        float64
	low         float64
	close       float64
	volume      float64
	quoteVolume float64
}

func (c *candle) merge(next *candle) *candle {
	if c == nil {
		cp := *next
		return &cp
	}
	c.high = math.Max(c.high, next.high)
	c.low = math.Min(c.low, next.low)
	c.close = next.close
	c.volume += next.volume
	c.quoteVolume += next.quoteVolume
	return c
}

func point(price, volume, quoteVolume float64) *candle {
	return &candle{open: price, high: price, low: price, close: price, volume: volume, quoteVolume: quoteVolume}
}

// record adds a price observation to the one-minute candle of now
func (m *market) record(now time.Time, price, volume, quoteVolume float64) {
	minute := now.Unix() / 60
	if c, ok := m.minutes[minute]; ok {
		c.merge(point(price, volume, quoteVolume))
	} else {
		m.minutes[minute] = point(price, volume, quoteVolume)
	}
	delete(m.minutes, minute-historyMinutes)
}

// klines returns limit candles of interval ending with the one that
// contains end (now when zero or in the future), oldest first. Minutes
// before the simulation started come from a deterministic synthetic path
// anchored at the base price; minutes without observations repeat the
// previous close, so the series has no gaps.
func (m *market) klines(interval time.Duration, end time.Time, limit int, now time.Time) []gatewayv1.KLine {
	if end.IsZero() || end.After(now) {
		end = now
	}
	step := int64(interval / time.Minute)
	endMinute := end.Unix() / 60
	last := floorDiv(endMinute, step) * step
	first := last - int64(limit-1)*step

	// long intervals sample the synthetic path instead of walking every minute
	stride := step / 60
	if stride < 1 {
		stride = 1
	}

	prevClose := m.priceAt(first - 1)
	out := make([]gatewayv1.KLine, 0, limit)
	for bucket := first; bucket <= last; bucket += step {
		var c *candle
		for minute := bucket; minute < bucket+step && minute <= endMinute; {
			if minute < m.origin {
				p := m.synthetic(minute)
				vol := m.syntheticVolume(minute) * float64(stride)
				c = c.merge(point(p, vol, p*vol))
				minute += stride
				continue
			}
			if rc, ok := m.minutes[minute]; ok {
				c = c.merge(rc)
			}
			minute++
		}
		if c == nil {
			c = point(prevClose, 0, 0)
		}
		prevClose = c.close

		out = append(out, gatewayv1.KLine{
			Exchange:    m.exchange,
			Symbol:      m.symbol,
			Timestamp:   bucket * 60 * 1000,
			Open:        c.open,
			High:        c.high,
			Low:         c.low,
			Close:       c.close,
			Volume:      c.volume,
			QuoteVolume: c.quoteVolume,
		})
	}
	return out
}

// priceAt returns the last known price at or before minute
func (m *market) priceAt(minute int64) float64 {
	if minute < m.origin {
		return m.synthetic(minute)
	}
	for mm := minute; mm >= m.origin && minute-mm < historyMinutes; mm-- {
		if c, ok := m.minutes[mm]; ok {
			return c.close
		}
	}
	return m.basePrice
}

// synthetic is a deterministic price path for minutes before the
// simulation started. It equals the base price at the origin.
func (m *market) synthetic(minute int64) float64 {
	return m.basePrice * (1 + m.wave(minute) - m.wave(m.origin))
}

func (m *market) wave(minute int64) float64 {
	x := float64(minute)
	return 0.03*math.Sin(2*math.Pi*x/1440) + 0.01*math.Sin(2*math.Pi*x/97) + 0.002*m.unitNoise(minute)
}

func (m *market) syntheticVolume(minute int64) float64 {
	return m.roundVolume(0.5 + (m.unitNoise(minute^0x5bd1e995)+1)*2)
}

// unitNoise maps minute to [-1, 1) with splitmix64
func (m *market) unitNoise(minute int64) float64 {
	z := m.noise + uint64(minute)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return float64(z>>11)/float64(1<<53)*2 - 1
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
