package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// Store persists client order id claims, orders, trades and the outbox
type Store struct {
	db *sql.DB
}

// OutboxEvent represents an event waiting to be published
type OutboxEvent struct {
	ID                  int64
	AggregateID         string
	EventID             string
	Topic               string
	Key                 string
	PayloadJSON         string
	CreatedUnixMillis   int64
	PublishedUnixMillis sql.NullInt64
}

// Open creates or opens the store. ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY and
	// keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// migrate creates the necessary tables
func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS client_orders (
			exchange TEXT NOT NULL,
			client_order_id TEXT NOT NULL,
			order_id TEXT NOT NULL,
			claimed_unix_millis INTEGER NOT NULL,
			PRIMARY KEY (exchange, client_order_id)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			exchange TEXT NOT NULL,
			id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side INTEGER NOT NULL,
			order_type INTEGER NOT NULL,
			price REAL NOT NULL,
			stop_price REAL NOT NULL,
			avg_price REAL NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			quantity REAL NOT NULL,
			executed_volume REAL NOT NULL,
			trades_count INTEGER NOT NULL,
			client_order_id TEXT NOT NULL,
			group_id INTEGER NOT NULL,
			updated_unix_millis INTEGER NOT NULL,
			PRIMARY KEY (exchange, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_client_order_id ON orders(exchange, client_order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(exchange, created_at)`,
		`CREATE TABLE IF NOT EXISTS trades (
			exchange TEXT NOT NULL,
			symbol TEXT NOT NULL,
			id TEXT NOT NULL,
			order_id TEXT NOT NULL,
			price REAL NOT NULL,
			volume REAL NOT NULL,
			created_at INTEGER NOT NULL,
			side INTEGER NOT NULL,
			fee REAL NOT NULL,
			fee_currency TEXT NOT NULL,
			maker INTEGER NOT NULL,
			trend TEXT NOT NULL,
			PRIMARY KEY (exchange, symbol, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades(exchange, created_at)`,
		`CREATE TABLE IF NOT EXISTS outbox_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			aggregate_id TEXT NOT NULL,
			event_id TEXT NOT NULL UNIQUE,
			topic TEXT NOT NULL,
			key TEXT NOT NULL,
			payload_json TEXT NOT NULL,
			created_unix_millis INTEGER NOT NULL,
			published_unix_millis INTEGER NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_unpublished
			ON outbox_events(published_unix_millis)
			WHERE published_unix_millis IS NULL`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	return nil
}

// Claim records clientOrderID as used by orderID on exchange. When the id is
// already claimed it reports duplicate and the order id that holds it.
func (s *Store) Claim(ctx context.Context, exchange, clientOrderID, orderID string) (duplicate bool, holder string, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		"SELECT order_id FROM client_orders WHERE exchange = ? AND client_order_id = ?",
		exchange, clientOrderID,
	).Scan(&holder)
	if err == nil {
		return true, holder, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, "", fmt.Errorf("failed to check client order id: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO client_orders (exchange, client_order_id, order_id, claimed_unix_millis)
		 VALUES (?, ?, ?, ?)`,
		exchange, clientOrderID, orderID, time.Now().UnixMilli(),
	)
	if err != nil {
		return false, "", fmt.Errorf("failed to insert claim: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return false, orderID, nil
}

// Release drops the claim of clientOrderID if it is still held by orderID
func (s *Store) Release(ctx context.Context, exchange, clientOrderID, orderID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM client_orders WHERE exchange = ? AND client_order_id = ? AND order_id = ?",
		exchange, clientOrderID, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to release claim: %w", err)
	}
	return nil
}

// SaveOrder upserts o and appends events to the outbox atomically
func (s *Store) SaveOrder(ctx context.Context, o *gatewayv1.Order, events ...OutboxEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (exchange, id, symbol, side, order_type, price, stop_price, avg_price, status,
			created_at, quantity, executed_volume, trades_count, client_order_id, group_id, updated_unix_millis)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(exchange, id) DO UPDATE SET
			avg_price = excluded.avg_price,
			status = excluded.status,
			executed_volume = excluded.executed_volume,
			trades_count = excluded.trades_count,
			updated_unix_millis = excluded.updated_unix_millis`,
		o.Exchange, o.ID, o.Symbol, int32(o.Side), int32(o.OrderType), o.Price, o.StopPrice, o.AvgPrice, o.Status,
		o.CreatedAt, o.Quantity, o.ExecutedVolume, o.TradesCount, o.ClientOrderID, o.GroupID, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}

	if err := appendOutbox(ctx, tx, events); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// SaveTrade inserts t once per (exchange, symbol, id). Events are appended
// only when the trade is new.
func (s *Store) SaveTrade(ctx context.Context, orderID string, t *gatewayv1.Trade, events ...OutboxEvent) (inserted bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO trades (exchange, symbol, id, order_id, price, volume, created_at, side, fee, fee_currency, maker, trend)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(exchange, symbol, id) DO NOTHING`,
		t.Exchange, t.Symbol, t.ID, orderID, t.Price, t.Volume, t.CreatedAt, int32(t.Side), t.Fee, t.FeeCurrency, t.Maker, t.Trend,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert trade: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	if err := appendOutbox(ctx, tx, events); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

const orderColumns = `exchange, id, symbol, side, order_type, price, stop_price, avg_price, status,
	created_at, quantity, executed_volume, trades_count, client_order_id, group_id`

// GetOrder returns the order identified by (exchange, id)
func (s *Store) GetOrder(ctx context.Context, exchange, id string) (*gatewayv1.Order, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE exchange = ? AND id = ?",
		exchange, id,
	)
	return scanOrder(row)
}

// GetOrderByClientID returns the order submitted with clientOrderID
func (s *Store) GetOrderByClientID(ctx context.Context, exchange, clientOrderID string) (*gatewayv1.Order, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE exchange = ? AND client_order_id = ? ORDER BY created_at DESC LIMIT 1",
		exchange, clientOrderID,
	)
	return scanOrder(row)
}

// ListOrders returns the orders matching q
func (s *Store) ListOrders(ctx context.Context, q OrderQuery) ([]gatewayv1.Order, error) {
	query, args := q.build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var out []gatewayv1.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

// ListTrades returns the trades matching q
func (s *Store) ListTrades(ctx context.Context, q TradeQuery) ([]gatewayv1.Trade, error) {
	query, args := q.build()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []gatewayv1.Trade
	for rows.Next() {
		var (
			t     gatewayv1.Trade
			side  int32
			maker bool
		)
		err := rows.Scan(&t.Exchange, &t.Symbol, &t.ID, &t.Price, &t.Volume, &t.CreatedAt,
			&side, &t.Fee, &t.FeeCurrency, &maker, &t.Trend)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Side = gatewayv1.Side(side)
		t.Maker = maker
		out = append(out, t)
	}
	return out, rows.Err()
}

// AppendOutbox stores events for later publication
func (s *Store) AppendOutbox(ctx context.Context, events ...OutboxEvent) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := appendOutbox(ctx, tx, events); err != nil {
		return err
	}
	return tx.Commit()
}

func appendOutbox(ctx context.Context, tx *sql.Tx, events []OutboxEvent) error {
	for _, e := range events {
		created := e.CreatedUnixMillis
		if created == 0 {
			created = time.Now().UnixMilli()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO outbox_events (aggregate_id, event_id, topic, key, payload_json, created_unix_millis, published_unix_millis)
			 VALUES (?, ?, ?, ?, ?, ?, NULL)
			 ON CONFLICT(event_id) DO NOTHING`,
			e.AggregateID, e.EventID, e.Topic, e.Key, e.PayloadJSON, created,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}
	return nil
}

// ListUnpublished returns unpublished outbox events, oldest first
func (s *Store) ListUnpublished(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, aggregate_id, event_id, topic, key, payload_json, created_unix_millis, published_unix_millis
		 FROM outbox_events
		 WHERE published_unix_millis IS NULL
		 ORDER BY id ASC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpublished events: %w", err)
	}
	defer rows.Close()

	var events []OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		err := rows.Scan(
			&e.ID, &e.AggregateID, &e.EventID, &e.Topic, &e.Key,
			&e.PayloadJSON, &e.CreatedUnixMillis, &e.PublishedUnixMillis,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// MarkPublished marks an event as published
func (s *Store) MarkPublished(ctx context.Context, eventID string, nowMillis int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox_events SET published_unix_millis = ? WHERE event_id = ?",
		nowMillis, eventID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event as published: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*gatewayv1.Order, error) {
	var (
		o         gatewayv1.Order
		side      int32
		orderType int32
	)
	err := row.Scan(&o.Exchange, &o.ID, &o.Symbol, &side, &orderType, &o.Price, &o.StopPrice, &o.AvgPrice,
		&o.Status, &o.CreatedAt, &o.Quantity, &o.ExecutedVolume, &o.TradesCount, &o.ClientOrderID, &o.GroupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	o.Side = gatewayv1.Side(side)
	o.OrderType = gatewayv1.OrderType(orderType)
	return &o, nil
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
