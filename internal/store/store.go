// Package store defines storage interfaces for the order journal and the
// candle archive, with SQLite and Parquet implementations.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Order modes.
const (
	ModeLive  = "live"
	ModePaper = "paper"
)

// OrderRecord is a placed order as journaled locally.
type OrderRecord struct {
	OrderID       string    `json:"orderId"`
	Mode          string    `json:"mode"`
	Exchange      string    `json:"exchange"`
	TradingSymbol string    `json:"tradingSymbol"`
	Side          string    `json:"side"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price"`
	TriggerPrice  float64   `json:"triggerPrice"`
	Product       string    `json:"product"`
	OrderType     string    `json:"orderType"`
	Validity      string    `json:"validity"`
	Tag           string    `json:"tag,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// OrderUpdateRecord is one realtime order update as received.
type OrderUpdateRecord struct {
	ID           int64     `json:"id"`
	OrderID      string    `json:"orderId"`
	Status       string    `json:"status"`
	ReportType   string    `json:"reportType"`
	FilledQty    float64   `json:"filledQty"`
	AveragePrice float64   `json:"averagePrice"`
	RejectReason string    `json:"rejectReason,omitempty"`
	Raw          string    `json:"raw"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

// CandleRecord is the Parquet schema for intraday candles.
type CandleRecord struct {
	Exchange  string  `parquet:"exchange"`
	Token     string  `parquet:"token"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// OrderJournal persists placed orders and the updates received for them.
type OrderJournal interface {
	// SaveOrder inserts or replaces an order.
	SaveOrder(ctx context.Context, order *OrderRecord) error

	// GetOrder retrieves a single order by its broker id.
	GetOrder(ctx context.Context, id string) (*OrderRecord, error)

	// ListOrders returns the most recent orders, optionally filtered by
	// status ("" for all), up to limit (0 for no limit).
	ListOrders(ctx context.Context, status string, limit int) ([]OrderRecord, error)

	// UpdateOrderStatus sets the status of an existing order.
	UpdateOrderStatus(ctx context.Context, id, status string) error

	// AppendUpdate records an order update and applies its status to the
	// order if the order is journaled.
	AppendUpdate(ctx context.Context, upd *OrderUpdateRecord) error

	// ListUpdates returns the updates for an order in arrival order.
	ListUpdates(ctx context.Context, orderID string) ([]OrderUpdateRecord, error)
}

// CandleStore persists and retrieves candle series.
type CandleStore interface {
	// WriteCandles merges candles into storage, replacing records with the
	// same instrument and timestamp.
	WriteCandles(ctx context.Context, candles []CandleRecord) error

	// ReadCandles returns candles for an instrument within [start, end].
	ReadCandles(ctx context.Context, exchange, token string, start, end time.Time) ([]CandleRecord, error)
}
