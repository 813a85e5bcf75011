package gatewayv1

import "fmt"

// Empty is the request of SubscribeUserData.
type Empty struct{}

func (*Empty) appendWire(b []byte) []byte { return b }

func (m *Empty) unmarshalWire(b []byte) error {
	*m = Empty{}
	d := newDecoder(b)
	for d.next() {
	}
	return d.err
}

// Error is the application-level failure embedded in response envelopes.
type Error struct {
	ErrorCode    int64  `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Business error codes carried in Error.ErrorCode.
const (
	ErrorCodeDuplicateClientOrderID int64 = 1001
	ErrorCodeOrderNotFound          int64 = 1002
	ErrorCodeOrderTerminal          int64 = 1003
	ErrorCodeExchangeRejected       int64 = 1004
	ErrorCodeExchangeUnavailable    int64 = 1005
	ErrorCodeRateLimited            int64 = 1006
	ErrorCodeSlowConsumer           int64 = 2001
	ErrorCodeFeedFailed             int64 = 2002
)

// NewError builds an Error with a formatted message.
func NewError(code int64, format string, args ...any) *Error {
	return &Error{ErrorCode: code, ErrorMessage: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.ErrorCode, e.ErrorMessage)
}

func (e *Error) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.int64(1, e.ErrorCode)
	enc.string(2, e.ErrorMessage)
	return enc.b
}

func (e *Error) unmarshalWire(b []byte) error {
	*e = Error{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			e.ErrorCode = d.int64()
		case 2:
			e.ErrorMessage = d.string()
		}
	}
	return d.err
}

// PriceVolume is one order-book level in exchange-scaled fixed point.
type PriceVolume struct {
	Price  int64 `json:"price,omitempty"`
	Volume int64 `json:"volume,omitempty"`
}

func (m *PriceVolume) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.int64(1, m.Price)
	enc.int64(2, m.Volume)
	return enc.b
}

func (m *PriceVolume) unmarshalWire(b []byte) error {
	*m = PriceVolume{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Price = d.int64()
		case 2:
			m.Volume = d.int64()
		}
	}
	return d.err
}

type Trade struct {
	Exchange    string  `json:"exchange,omitempty"`
	Symbol      string  `json:"symbol,omitempty"`
	ID          string  `json:"id,omitempty"`
	Price       float64 `json:"price,omitempty"`
	Volume      float64 `json:"volume,omitempty"`
	CreatedAt   int64   `json:"created_at,omitempty"`
	Side        Side    `json:"side"`
	Fee         float64 `json:"fee,omitempty"`
	FeeCurrency string  `json:"fee_currency,omitempty"`
	Maker       bool    `json:"maker,omitempty"`
	Trend       string  `json:"trend,omitempty"`
}

func (m *Trade) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.Symbol)
	enc.string(3, m.ID)
	enc.double(4, m.Price)
	enc.double(5, m.Volume)
	enc.int64(6, m.CreatedAt)
	enc.enum(7, int32(m.Side))
	enc.double(8, m.Fee)
	enc.string(9, m.FeeCurrency)
	enc.bool(10, m.Maker)
	enc.string(11, m.Trend)
	return enc.b
}

func (m *Trade) unmarshalWire(b []byte) error {
	*m = Trade{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.Symbol = d.string()
		case 3:
			m.ID = d.string()
		case 4:
			m.Price = d.double()
		case 5:
			m.Volume = d.double()
		case 6:
			m.CreatedAt = d.int64()
		case 7:
			m.Side = Side(d.enum())
		case 8:
			m.Fee = d.double()
		case 9:
			m.FeeCurrency = d.string()
		case 10:
			m.Maker = d.bool()
		case 11:
			m.Trend = d.string()
		}
	}
	return d.err
}

// Ticker is a rolling-window summary of one market.
type Ticker struct {
	Exchange string  `json:"exchange,omitempty"`
	Symbol   string  `json:"symbol,omitempty"`
	Open     float64 `json:"open,omitempty"`
	High     float64 `json:"high,omitempty"`
	Low      float64 `json:"low,omitempty"`
	Close    float64 `json:"close,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
}

func (m *Ticker) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.Symbol)
	enc.double(3, m.Open)
	enc.double(4, m.High)
	enc.double(5, m.Low)
	enc.double(6, m.Close)
	enc.double(7, m.Volume)
	return enc.b
}

func (m *Ticker) unmarshalWire(b []byte) error {
	*m = Ticker{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.Symbol = d.string()
		case 3:
			m.Open = d.double()
		case 4:
			m.High = d.double()
		case 5:
			m.Low = d.double()
		case 6:
			m.Close = d.double()
		case 7:
			m.Volume = d.double()
		}
	}
	return d.err
}

// Order is the normalized state of one order. Identity is (Exchange, ID).
type Order struct {
	Exchange       string    `json:"exchange,omitempty"`
	Symbol         string    `json:"symbol,omitempty"`
	ID             string    `json:"id,omitempty"`
	Side           Side      `json:"side"`
	OrderType      OrderType `json:"order_type"`
	Price          float64   `json:"price,omitempty"`
	StopPrice      float64   `json:"stop_price,omitempty"`
	AvgPrice       float64   `json:"avg_price,omitempty"`
	Status         string    `json:"status,omitempty"`
	CreatedAt      int64     `json:"created_at,omitempty"`
	Quantity       float64   `json:"quantity,omitempty"`
	ExecutedVolume float64   `json:"executed_volume,omitempty"`
	TradesCount    int64     `json:"trades_count,omitempty"`
	ClientOrderID  string    `json:"client_order_id,omitempty"`
	GroupID        int64     `json:"group_id,omitempty"`
}

func (m *Order) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.Symbol)
	enc.string(3, m.ID)
	enc.enum(4, int32(m.Side))
	enc.enum(5, int32(m.OrderType))
	enc.double(6, m.Price)
	enc.double(7, m.StopPrice)
	enc.double(8, m.AvgPrice)
	enc.string(9, m.Status)
	enc.int64(10, m.CreatedAt)
	enc.double(11, m.Quantity)
	enc.double(12, m.ExecutedVolume)
	enc.int64(13, m.TradesCount)
	enc.string(14, m.ClientOrderID)
	enc.int64(15, m.GroupID)
	return enc.b
}

func (m *Order) unmarshalWire(b []byte) error {
	*m = Order{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.Symbol = d.string()
		case 3:
			m.ID = d.string()
		case 4:
			m.Side = Side(d.enum())
		case 5:
			m.OrderType = OrderType(d.enum())
		case 6:
			m.Price = d.double()
		case 7:
			m.StopPrice = d.double()
		case 8:
			m.AvgPrice = d.double()
		case 9:
			m.Status = d.string()
		case 10:
			m.CreatedAt = d.int64()
		case 11:
			m.Quantity = d.double()
		case 12:
			m.ExecutedVolume = d.double()
		case 13:
			m.TradesCount = d.int64()
		case 14:
			m.ClientOrderID = d.string()
		case 15:
			m.GroupID = d.int64()
		}
	}
	return d.err
}

// SubmitOrder is the client-controlled subset of Order used to place one.
type SubmitOrder struct {
	Exchange      string    `json:"exchange,omitempty"`
	Symbol        string    `json:"symbol,omitempty"`
	Side          Side      `json:"side"`
	Quantity      float64   `json:"quantity,omitempty"`
	Price         float64   `json:"price,omitempty"`
	StopPrice     float64   `json:"stop_price,omitempty"`
	OrderType     OrderType `json:"order_type"`
	ClientOrderID string    `json:"client_order_id,omitempty"`
	GroupID       int64     `json:"group_id,omitempty"`
}

func (m *SubmitOrder) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.Symbol)
	enc.enum(3, int32(m.Side))
	enc.double(4, m.Quantity)
	enc.double(5, m.Price)
	enc.double(6, m.StopPrice)
	enc.enum(7, int32(m.OrderType))
	enc.string(8, m.ClientOrderID)
	enc.int64(9, m.GroupID)
	return enc.b
}

func (m *SubmitOrder) unmarshalWire(b []byte) error {
	*m = SubmitOrder{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.Symbol = d.string()
		case 3:
			m.Side = Side(d.enum())
		case 4:
			m.Quantity = d.double()
		case 5:
			m.Price = d.double()
		case 6:
			m.StopPrice = d.double()
		case 7:
			m.OrderType = OrderType(d.enum())
		case 8:
			m.ClientOrderID = d.string()
		case 9:
			m.GroupID = d.int64()
		}
	}
	return d.err
}

type Balance struct {
	Exchange  string  `json:"exchange,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	Available float64 `json:"available,omitempty"`
	Locked    float64 `json:"locked,omitempty"`
}

func (m *Balance) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.Currency)
	enc.double(3, m.Available)
	enc.double(4, m.Locked)
	return enc.b
}

func (m *Balance) unmarshalWire(b []byte) error {
	*m = Balance{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.Currency = d.string()
		case 3:
			m.Available = d.double()
		case 4:
			m.Locked = d.double()
		}
	}
	return d.err
}

// KLine is one candle. The interval travels in the request, not the record.
type KLine struct {
	Exchange    string  `json:"exchange,omitempty"`
	Symbol      string  `json:"symbol,omitempty"`
	Timestamp   int64   `json:"timestamp,omitempty"`
	Open        float64 `json:"open,omitempty"`
	High        float64 `json:"high,omitempty"`
	Low         float64 `json:"low,omitempty"`
	Close       float64 `json:"close,omitempty"`
	Volume      float64 `json:"volume,omitempty"`
	QuoteVolume float64 `json:"quote_volume,omitempty"`
}

func (m *KLine) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.Symbol)
	enc.int64(3, m.Timestamp)
	enc.double(4, m.Open)
	enc.double(5, m.High)
	enc.double(6, m.Low)
	enc.double(7, m.Close)
	enc.double(8, m.Volume)
	enc.double(9, m.QuoteVolume)
	return enc.b
}

func (m *KLine) unmarshalWire(b []byte) error {
	*m = KLine{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.Symbol = d.string()
		case 3:
			m.Timestamp = d.int64()
		case 4:
			m.Open = d.double()
		case 5:
			m.High = d.double()
		case 6:
			m.Low = d.double()
		case 7:
			m.Close = d.double()
		case 8:
			m.Volume = d.double()
		case 9:
			m.QuoteVolume = d.double()
		}
	}
	return d.err
}
