package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ OrderJournal = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	order_id       TEXT PRIMARY KEY,
	mode           TEXT NOT NULL,
	exchange       TEXT NOT NULL,
	trading_symbol TEXT NOT NULL,
	side           TEXT NOT NULL,
	quantity       REAL NOT NULL,
	price          REAL NOT NULL,
	trigger_price  REAL NOT NULL,
	product        TEXT NOT NULL,
	order_type     TEXT NOT NULL,
	validity       TEXT NOT NULL,
	tag            TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE TABLE IF NOT EXISTS order_updates (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	order_id      TEXT NOT NULL,
	status        TEXT NOT NULL,
	report_type   TEXT NOT NULL,
	filled_qty    REAL NOT NULL,
	average_price REAL NOT NULL,
	reject_reason TEXT NOT NULL,
	raw           TEXT NOT NULL,
	received_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_updates_order ON order_updates(order_id);
`

// SQLiteStore implements OrderJournal backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// journal tables, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating journal schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Orders
// ---------------------------------------------------------------------------

// SaveOrder inserts or replaces an order. When updates for the order are
// already journaled, the latest update's status wins over o.Status, so an
// update that raced ahead of the save is not lost.
func (s *SQLiteStore) SaveOrder(ctx context.Context, o *OrderRecord) error {
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO orders (
			order_id, mode, exchange, trading_symbol, side, quantity, price,
			trigger_price, product, order_type, validity, tag, status,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			COALESCE((SELECT status FROM order_updates
				WHERE order_id = ? AND status <> '' ORDER BY id DESC LIMIT 1), ?),
			?, ?)`,
		o.OrderID, o.Mode, o.Exchange, o.TradingSymbol, o.Side, o.Quantity, o.Price,
		o.TriggerPrice, o.Product, o.OrderType, o.Validity, o.Tag,
		o.OrderID, o.Status,
		o.CreatedAt.UnixMilli(), o.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving order %s: %w", o.OrderID, err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE order_id = ?`, o.OrderID).Scan(&o.Status)
	if err != nil {
		return fmt.Errorf("reading back order %s: %w", o.OrderID, err)
	}
	return nil
}

const orderColumns = `order_id, mode, exchange, trading_symbol, side, quantity, price,
	trigger_price, product, order_type, validity, tag, status, created_at, updated_at`

// GetOrder retrieves a single order by its broker id.
func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (*OrderRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("reading order %s: %w", id, err)
	}
	return o, nil
}

// ListOrders returns the most recent orders first.
func (s *SQLiteStore) ListOrders(ctx context.Context, status string, limit int) ([]OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, order_id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	orders := []OrderRecord{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus sets the status of an existing order.
func (s *SQLiteStore) UpdateOrderStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = ? WHERE order_id = ?`,
		status, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("updating order %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Order updates
// ---------------------------------------------------------------------------

// AppendUpdate records an update and, in the same transaction, applies its
// status to the journaled order if there is one.
func (s *SQLiteStore) AppendUpdate(ctx context.Context, u *OrderUpdateRecord) error {
	if u.ReceivedAt.IsZero() {
		u.ReceivedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO order_updates (
			order_id, status, report_type, filled_qty, average_price,
			reject_reason, raw, received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.OrderID, u.Status, u.ReportType, u.FilledQty, u.AveragePrice,
		u.RejectReason, u.Raw, u.ReceivedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("appending update for %s: %w", u.OrderID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		u.ID = id
	}

	if u.Status != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = ?, updated_at = ? WHERE order_id = ?`,
			u.Status, u.ReceivedAt.UnixMilli(), u.OrderID); err != nil {
			return fmt.Errorf("applying update to %s: %w", u.OrderID, err)
		}
	}
	return tx.Commit()
}

// ListUpdates returns the updates for an order in arrival order.
func (s *SQLiteStore) ListUpdates(ctx context.Context, orderID string) ([]OrderUpdateRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, status, report_type, filled_qty, average_price,
			reject_reason, raw, received_at
		FROM order_updates WHERE order_id = ? ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing updates for %s: %w", orderID, err)
	}
	defer rows.Close()

	updates := []OrderUpdateRecord{}
	for rows.Next() {
		var u OrderUpdateRecord
		var received int64
		if err := rows.Scan(&u.ID, &u.OrderID, &u.Status, &u.ReportType, &u.FilledQty,
			&u.AveragePrice, &u.RejectReason, &u.Raw, &received); err != nil {
			return nil, fmt.Errorf("scanning update: %w", err)
		}
		u.ReceivedAt = time.UnixMilli(received)
		updates = append(updates, u)
	}
	return updates, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOrder(row scanner) (*OrderRecord, error) {
	var o OrderRecord
	var created, updated int64
	if err := row.Scan(&o.OrderID, &o.Mode, &o.Exchange, &o.TradingSymbol, &o.Side,
		&o.Quantity, &o.Price, &o.TriggerPrice, &o.Product, &o.OrderType, &o.Validity,
		&o.Tag, &o.Status, &created, &updated); err != nil {
		return nil, err
	}
	o.CreatedAt = time.UnixMilli(created)
	o.UpdatedAt = time.UnixMilli(updated)
	return &o, nil
}
