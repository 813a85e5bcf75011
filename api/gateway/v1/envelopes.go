package gatewayv1

// Response envelopes embed an optional Error. A transport-level success can
// still be a business failure: check Err before reading any other field.

func embeddedErr(e *Error) error {
	if e == nil {
		return nil
	}
	return e
}

type SubmitOrderRequest struct {
	SubmitOrder *SubmitOrder
}

func (m *SubmitOrderRequest) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	if m.SubmitOrder != nil {
		enc.message(1, m.SubmitOrder)
	}
	return enc.b
}

func (m *SubmitOrderRequest) unmarshalWire(b []byte) error {
	*m = SubmitOrderRequest{}
	d := newDecoder(b)
	for d.next() {
		if d.num == 1 {
			m.SubmitOrder = &SubmitOrder{}
			d.message(m.SubmitOrder)
		}
	}
	return d.err
}

// orderResult is the shared layout of SubmitOrder, CancelOrder and
// QueryOrder responses.
type orderResult struct {
	Order *Order
	Error *Error
}

func (m *orderResult) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	if m.Order != nil {
		enc.message(1, m.Order)
	}
	if m.Error != nil {
		enc.message(2, m.Error)
	}
	return enc.b
}

func (m *orderResult) unmarshalWire(b []byte) error {
	*m = orderResult{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Order = &Order{}
			d.message(m.Order)
		case 2:
			m.Error = &Error{}
			d.message(m.Error)
		}
	}
	return d.err
}

type SubmitOrderResponse struct {
	Order *Order
	Error *Error
}

func (m *SubmitOrderResponse) Err() error { return embeddedErr(m.Error) }

func (m *SubmitOrderResponse) appendWire(b []byte) []byte {
	return (*orderResult)(m).appendWire(b)
}

func (m *SubmitOrderResponse) unmarshalWire(b []byte) error {
	return (*orderResult)(m).unmarshalWire(b)
}

// orderRef is the shared layout of CancelOrder and QueryOrder requests.
type orderRef struct {
	Exchange      string
	ID            string
	ClientOrderID string
}

func (m *orderRef) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.ID)
	enc.string(3, m.ClientOrderID)
	return enc.b
}

func (m *orderRef) unmarshalWire(b []byte) error {
	*m = orderRef{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.ID = d.string()
		case 3:
			m.ClientOrderID = d.string()
		}
	}
	return d.err
}

// CancelOrderRequest identifies the order by ID or ClientOrderID.
type CancelOrderRequest struct {
	Exchange      string
	ID            string
	ClientOrderID string
}

func (m *CancelOrderRequest) appendWire(b []byte) []byte {
	return (*orderRef)(m).appendWire(b)
}

func (m *CancelOrderRequest) unmarshalWire(b []byte) error {
	return (*orderRef)(m).unmarshalWire(b)
}

type CancelOrderResponse struct {
	Order *Order
	Error *Error
}

func (m *CancelOrderResponse) Err() error { return embeddedErr(m.Error) }

func (m *CancelOrderResponse) appendWire(b []byte) []byte {
	return (*orderResult)(m).appendWire(b)
}

func (m *CancelOrderResponse) unmarshalWire(b []byte) error {
	return (*orderResult)(m).unmarshalWire(b)
}

type QueryOrderRequest struct {
	Exchange      string
	ID            string
	ClientOrderID string
}

func (m *QueryOrderRequest) appendWire(b []byte) []byte {
	return (*orderRef)(m).appendWire(b)
}

func (m *QueryOrderRequest) unmarshalWire(b []byte) error {
	return (*orderRef)(m).unmarshalWire(b)
}

type QueryOrderResponse struct {
	Order *Order
	Error *Error
}

func (m *QueryOrderResponse) Err() error { return embeddedErr(m.Error) }

func (m *QueryOrderResponse) appendWire(b []byte) []byte {
	return (*orderResult)(m).appendWire(b)
}

func (m *QueryOrderResponse) unmarshalWire(b []byte) error {
	return (*orderResult)(m).unmarshalWire(b)
}

type QueryOrdersRequest struct {
	Exchange   string
	Symbol     string
	State      []string
	OrderBy    string
	GroupID    int64
	Pagination bool
	Page       int64
	Limit      int64
	Offset     int64
}

func (m *QueryOrdersRequest) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.Symbol)
	enc.strings(3, m.State)
	enc.string(4, m.OrderBy)
	enc.int64(5, m.GroupID)
	enc.bool(6, m.Pagination)
	enc.int64(7, m.Page)
	enc.int64(8, m.Limit)
	enc.int64(9, m.Offset)
	return enc.b
}

func (m *QueryOrdersRequest) unmarshalWire(b []byte) error {
	*m = QueryOrdersRequest{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.Symbol = d.string()
		case 3:
			m.State = append(m.State, d.string())
		case 4:
			m.OrderBy = d.string()
		case 5:
			m.GroupID = d.int64()
		case 6:
			m.Pagination = d.bool()
		case 7:
			m.Page = d.int64()
		case 8:
			m.Limit = d.int64()
		case 9:
			m.Offset = d.int64()
		}
	}
	m.State = nonNil(m.State)
	return d.err
}

type QueryOrdersResponse struct {
	Orders []Order
	Error  *Error
}

func (m *QueryOrdersResponse) Err() error { return embeddedErr(m.Error) }

func (m *QueryOrdersResponse) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	for i := range m.Orders {
		enc.message(1, &m.Orders[i])
	}
	if m.Error != nil {
		enc.message(2, m.Error)
	}
	return enc.b
}

func (m *QueryOrdersResponse) unmarshalWire(b []byte) error {
	*m = QueryOrdersResponse{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			var o Order
			d.message(&o)
			m.Orders = append(m.Orders, o)
		case 2:
			m.Error = &Error{}
			d.message(m.Error)
		}
	}
	m.Orders = nonNil(m.Orders)
	return d.err
}

type QueryTradesRequest struct {
	Exchange   string
	Symbol     string
	Timestamp  int64
	From       int64
	To         int64
	OrderBy    string
	Pagination bool
	Page       int64
	Limit      int64
	Offset     int64
}

func (m *QueryTradesRequest) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.Symbol)
	enc.int64(3, m.Timestamp)
	enc.int64(4, m.From)
	enc.int64(5, m.To)
	enc.string(6, m.OrderBy)
	enc.bool(7, m.Pagination)
	enc.int64(8, m.Page)
	enc.int64(9, m.Limit)
	enc.int64(10, m.Offset)
	return enc.b
}

func (m *QueryTradesRequest) unmarshalWire(b []byte) error {
	*m = QueryTradesRequest{}
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
			m.From = d.int64()
		case 5:
			m.To = d.int64()
		case 6:
			m.OrderBy = d.string()
		case 7:
			m.Pagination = d.bool()
		case 8:
			m.Page = d.int64()
		case 9:
			m.Limit = d.int64()
		case 10:
			m.Offset = d.int64()
		}
	}
	return d.err
}

type QueryTradesResponse struct {
	Trades []Trade
	Error  *Error
}

func (m *QueryTradesResponse) Err() error { return embeddedErr(m.Error) }

func (m *QueryTradesResponse) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	for i := range m.Trades {
		enc.message(1, &m.Trades[i])
	}
	if m.Error != nil {
		enc.message(2, m.Error)
	}
	return enc.b
}

func (m *QueryTradesResponse) unmarshalWire(b []byte) error {
	*m = QueryTradesResponse{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			var t Trade
			d.message(&t)
			m.Trades = append(m.Trades, t)
		case 2:
			m.Error = &Error{}
			d.message(m.Error)
		}
	}
	m.Trades = nonNil(m.Trades)
	return d.err
}

type QueryKLinesRequest struct {
	Exchange  string
	Symbol    string
	Interval  string
	Timestamp int64
	Limit     int64
}

func (m *QueryKLinesRequest) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	enc.string(1, m.Exchange)
	enc.string(2, m.Symbol)
	enc.string(3, m.Interval)
	enc.int64(4, m.Timestamp)
	enc.int64(5, m.Limit)
	return enc.b
}

func (m *QueryKLinesRequest) unmarshalWire(b []byte) error {
	*m = QueryKLinesRequest{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			m.Exchange = d.string()
		case 2:
			m.Symbol = d.string()
		case 3:
			m.Interval = d.string()
		case 4:
			m.Timestamp = d.int64()
		case 5:
			m.Limit = d.int64()
		}
	}
	return d.err
}

type QueryKLinesResponse struct {
	KLines []KLine
	Error  *Error
}

func (m *QueryKLinesResponse) Err() error { return embeddedErr(m.Error) }

func (m *QueryKLinesResponse) appendWire(b []byte) []byte {
	enc := encoder{b: b}
	for i := range m.KLines {
		enc.message(1, &m.KLines[i])
	}
	if m.Error != nil {
		enc.message(2, m.Error)
	}
	return enc.b
}

func (m *QueryKLinesResponse) unmarshalWire(b []byte) error {
	*m = QueryKLinesResponse{}
	d := newDecoder(b)
	for d.next() {
		switch d.num {
		case 1:
			var k KLine
			d.message(&k)
			m.KLines = append(m.KLines, k)
		case 2:
			m.Error = &Error{}
			d.message(m.Error)
		}
	}
	m.KLines = nonNil(m.KLines)
	return d.err
}
