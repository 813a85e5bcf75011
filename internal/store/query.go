package store

import (
	"strings"
)

// OrderQuery filters and orders a ListOrders call. With Paginate false the
// Limit most recent orders are selected first and then sorted by OrderBy.
type OrderQuery struct {
	Exchange string
	Symbol   string
	States   []string
	GroupID  int64
	OrderBy  string
	Paginate bool
	Limit    int
	Offset   int
}

// TradeQuery filters and orders a ListTrades call. Before is an inclusive
// upper bound on created_at; From and To bound an inclusive range. Zero
// disables a bound.
type TradeQuery struct {
	Exchange string
	Symbol   string
	Before   int64
	From     int64
	To       int64
	OrderBy  string
	Paginate bool
	Limit    int
	Offset   int
}

var orderSortColumns = map[string]string{
	"created_at":      "created_at",
	"time":            "created_at",
	"price":           "price",
	"quantity":        "quantity",
	"executed_volume": "executed_volume",
	"status":          "status",
	"symbol":          "symbol",
	"id":              "id",
}

var tradeSortColumns = map[string]string{
	"created_at": "created_at",
	"time":       "created_at",
	"price":      "price",
	"volume":     "volume",
	"fee":        "fee",
	"symbol":     "symbol",
	"id":         "id",
}

// SortKey is a resolved order_by value
type SortKey struct {
	Column     string
	Descending bool
}

// ParseSortKey maps a free-form order_by ("price", "-price", "price desc")
// onto a whitelisted column. Unknown or empty keys sort by created_at,
// newest first.
func ParseSortKey(orderBy string, columns map[string]string) SortKey {
	s := strings.ToLower(strings.TrimSpace(orderBy))
	desc := false
	switch {
	case strings.HasPrefix(s, "-"):
		desc = true
		s = strings.TrimSpace(s[1:])
	case strings.HasSuffix(s, " desc"):
		desc = true
		s = strings.TrimSpace(strings.TrimSuffix(s, " desc"))
	case strings.HasSuffix(s, " asc"):
		s = strings.TrimSpace(strings.TrimSuffix(s, " asc"))
	}
	col, ok := columns[s]
	if !ok {
		return SortKey{Column: "created_at", Descending: true}
	}
	return SortKey{Column: col, Descending: desc}
}

// orderClause always breaks ties by id in the key's direction so pages are
// stable.
func (k SortKey) orderClause() string {
	dir := "ASC"
	if k.Descending {
		dir = "DESC"
	}
	if k.Column == "id" {
		return "id " + dir
	}
	return k.Column + " " + dir + ", id " + dir
}

// window wraps an inner select for pagination or most-recent selection
func window(inner string, args []any, key SortKey, paginate bool, limit, offset int) (string, []any) {
	if paginate {
		return inner + " ORDER BY " + key.orderClause() + " LIMIT ? OFFSET ?", append(args, limit, offset)
	}
	recent := inner + " ORDER BY created_at DESC, id DESC LIMIT ?"
	return "SELECT * FROM (" + recent + ") ORDER BY " + key.orderClause(), append(args, limit)
}

func (q OrderQuery) build() (string, []any) {
	var (
		where []string
		args  []any
	)
	where = append(where, "exchange = ?")
	args = append(args, q.Exchange)
	if q.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, q.Symbol)
	}
	if len(q.States) > 0 {
		where = append(where, "status IN ("+placeholders(len(q.States))+")")
		for _, s := range q.States {
			args = append(args, s)
		}
	}
	if q.GroupID != 0 {
		where = append(where, "group_id = ?")
		args = append(args, q.GroupID)
	}

	inner := "SELECT " + orderColumns + " FROM orders WHERE " + strings.Join(where, " AND ")
	return window(inner, args, ParseSortKey(q.OrderBy, orderSortColumns), q.Paginate, q.Limit, q.Offset)
}

func (q TradeQuery) build() (string, []any) {
	var (
		where []string
		args  []any
	)
	where = append(where, "exchange = ?")
	args = append(args, q.Exchange)
	if q.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, q.Symbol)
	}
	if q.Before != 0 {
		where = append(where, "created_at <= ?")
		args = append(args, q.Before)
	}
	if q.From != 0 {
		where = append(where, "created_at >= ?")
		args = append(args, q.From)
	}
	if q.To != 0 {
		where = append(where, "created_at <= ?")
		args = append(args, q.To)
	}

	inner := "SELECT exchange, symbol, id, price, volume, created_at, side, fee, fee_currency, maker, trend FROM trades WHERE " +
		strings.Join(where, " AND ")
	return window(inner, args, ParseSortKey(q.OrderBy, tradeSortColumns), q.Paginate, q.Limit, q.Offset)
}
