package gatewayv1

import (
	"errors"
	"fmt"
)

// Depth is an order-book view. Asks ascend by price, bids descend.
type Depth struct {
	Exchange string        `json:"exchange,omitempty"`
	Symbol   string        `json:"symbol,omitempty"`
	Asks     []PriceVolume `json:"asks,omitempty"`
	Bids     []PriceVolume `json:"bids,omitempty"`
}

var ErrInvalidDepth = errors.New("invalid depth")

// Validate checks the snapshot ordering invariants: strictly ascending asks,
// strictly descending bids, no negative price or volume.
func (m *Depth) Validate() error {
	if err := validateLevels(m.Asks, true); err != nil {
		return fmt.Errorf("%w: asks: %v", ErrInvalidDepth, err)
	}
	if err := validateLevels(m.Bids, false); err != nil {
		return fmt.Errorf("%w: bids: %v", ErrInvalidDepth, err)
	}
	return nil
}

func validateLevels(levels []PriceVolume, ascending bool) error {
	for i, lv := range levels {
		if lv.Price < 0 || lv.Volume < 0 {
			return fmt.Errorf("level %d has negative value", i)
		}
		if i == 0 {
			continue
		}
		prev := levels[i-1].Price
		if lv.Price == prev {
			return fmt.Errorf("duplicate price %d", lv.Price)
		}
		if (ascending && lv.Price < prev) || (!ascending && lv.Price > prev) {
			return fmt.Errorf("price %d out of order after %d", lv.Price, prev)
		}
	}
	return nil
}

func (m *Depth) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.Symbol)
	for i := range m.Asks {
		enc.message(3, &m.Asks[i])
	}
	for i := range m.Bids {
		enc.message(4, &m.Bids[i])
	}
	return enc.b
}

func (m *Depth) unmarshalWire(b []byte) error {
	*m = Depth{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.Symbol = d.string()
		case 3:
			var pv PriceVolume
			d.message(&pv)
			m.Asks = append(m.Asks, pv)
		case 4:
			var pv PriceVolume
			d.message(&pv)
			m.Bids = append(m.Bids, pv)
		}
	}
	m.Asks = nonNil(m.Asks)
	m.Bids = nonNil(m.Bids)
	return d.err
}
