// Package broker defines the Broker interface and provides implementations
// for executing orders live against Finvasia or on paper.
package broker

import (
	"context"

	"finvasia/pkg/finvasia"
)

// Broker abstracts brokerage operations for order execution and account state.
type Broker interface {
	// Name returns the broker identifier (e.g. "finvasia", "simulator").
	Name() string

	// PlaceOrder validates and sends a new order.
	PlaceOrder(ctx context.Context, p finvasia.CreateOrderParams) (*finvasia.OrderResponse, error)

	// ModifyOrder changes an open order.
	ModifyOrder(ctx context.Context, orderID string, p finvasia.ModifyOrderParams) (*finvasia.OrderResponse, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) (*finvasia.OrderResponse, error)

	// Orders returns the day's order book.
	Orders(ctx context.Context) ([]finvasia.OrderBookItem, error)

	// Positions returns all current net positions.
	Positions(ctx context.Context) ([]finvasia.Position, error)
}
