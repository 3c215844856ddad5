package broker

import (
	"context"

	"finvasia/pkg/finvasia"
)

// Compile-time interface check.
var _ Broker = (*FinvasiaBroker)(nil)

// FinvasiaBroker implements the Broker interface using the Finvasia REST API.
type FinvasiaBroker struct {
	client *finvasia.Client
}

// NewFinvasiaBroker creates a FinvasiaBroker on an authenticated client.
func NewFinvasiaBroker(client *finvasia.Client) *FinvasiaBroker {
	return &FinvasiaBroker{client: client}
}

// Name returns "finvasia".
func (b *FinvasiaBroker) Name() string {
	return "finvasia"
}

// PlaceOrder sends an order to the broker.
func (b *FinvasiaBroker) PlaceOrder(ctx context.Context, p finvasia.CreateOrderParams) (*finvasia.OrderResponse, error) {
	return b.client.PlaceOrder(ctx, p)
}

// ModifyOrder modifies an open order at the broker.
func (b *FinvasiaBroker) ModifyOrder(ctx context.Context, orderID string, p finvasia.ModifyOrderParams) (*finvasia.OrderResponse, error) {
	return b.client.ModifyOrder(ctx, orderID, p)
}

// CancelOrder cancels an open order at the broker.
func (b *FinvasiaBroker) CancelOrder(ctx context.Context, orderID string) (*finvasia.OrderResponse, error) {
	return b.client.CancelOrder(ctx, orderID)
}

// Orders returns the broker's order book.
func (b *FinvasiaBroker) Orders(ctx context.Context) ([]finvasia.OrderBookItem, error) {
	return b.client.GetOrders(ctx)
}

// Positions returns the broker's position book.
func (b *FinvasiaBroker) Positions(ctx context.Context) ([]finvasia.Position, error) {
	return b.client.GetPositionsBook(ctx)
}
