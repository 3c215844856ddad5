package broker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"finvasia/internal/normalize"
	"finvasia/pkg/finvasia"
)

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// Simulated order statuses, spelled as the broker reports them.
const (
	StatusOpen     = "OPEN"
	StatusComplete = "COMPLETE"
	StatusCanceled = "CANCELED"
)

// ErrNotOpen is returned when modifying or cancelling an order that is no
// longer open.
var ErrNotOpen = errors.New("broker: order is not open")

// SimulatorBroker implements the Broker interface for paper trading. Orders
// go through the same validation as live orders. Market orders fill at once
// when MarketPrice quotes a positive price and otherwise rest open like
// priced orders until modified or cancelled.
type SimulatorBroker struct {
	// MarketPrice supplies the fill price for market orders. Without it no
	// market order fills and Positions stays empty.
	MarketPrice func(exchange, tradingSymbol string) float64

	mu     sync.Mutex
	seq    int
	orders map[string]*simOrder
	now    func() time.Time
}

type simOrder struct {
	id       string
	payload  normalize.PlacePayload
	qty      float64
	price    float64
	status   string
	placedAt time.Time
}

// NewSimulatorBroker creates a SimulatorBroker with an empty order book.
func NewSimulatorBroker() *SimulatorBroker {
	return &SimulatorBroker{
		orders: make(map[string]*simOrder),
		now:    time.Now,
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// PlaceOrder validates p and records it in memory.
func (b *SimulatorBroker) PlaceOrder(_ context.Context, p finvasia.CreateOrderParams) (*finvasia.OrderResponse, error) {
	payload, err := normalize.Create(p)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	o := &simOrder{
		id:       "SIM" + strconv.Itoa(b.seq),
		payload:  payload,
		qty:      p.Quantity,
		price:    p.Price,
		status:   StatusOpen,
		placedAt: b.now(),
	}
	if payload.OrderType == "MKT" {
		b.fill(o)
	}
	b.orders[o.id] = o
	return b.response(o.id), nil
}

// ModifyOrder validates p and applies it to an open simulated order.
func (b *SimulatorBroker) ModifyOrder(_ context.Context, orderID string, p finvasia.ModifyOrderParams) (*finvasia.OrderResponse, error) {
	payload, err := normalize.Modify(p)
	if err != nil {
		return nil, fmt.Errorf("modify order: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, err := b.openOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("modify order: %w", err)
	}
	o.qty = p.Quantity
	o.price = p.Price
	o.payload.Quantity = payload.Quantity
	o.payload.Price = payload.Price
	o.payload.OrderType = payload.OrderType
	o.payload.Validity = payload.Validity
	if payload.TriggerPrice != "" {
		o.payload.TriggerPrice = payload.TriggerPrice
	}
	if payload.OrderType == "MKT" {
		b.fill(o)
	}
	return b.response(orderID), nil
}

// fill completes a market order at the quoted price, if there is one.
func (b *SimulatorBroker) fill(o *simOrder) {
	if b.MarketPrice == nil {
		return
	}
	px := b.MarketPrice(o.payload.Exchange, o.payload.TradingSymbol)
	if !(px > 0) {
		return
	}
	o.price = px
	o.status = StatusComplete
}

// CancelOrder marks an open simulated order as cancelled.
func (b *SimulatorBroker) CancelOrder(_ context.Context, orderID string) (*finvasia.OrderResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, err := b.openOrder(orderID)
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	o.status = StatusCanceled
	return b.response(orderID), nil
}

// Orders returns all simulated orders, oldest first.
func (b *SimulatorBroker) Orders(_ context.Context) ([]finvasia.OrderBookItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := make([]finvasia.OrderBookItem, 0, len(b.orders))
	for _, o := range b.sorted() {
		items = append(items, finvasia.OrderBookItem{
			Symbol:          o.payload.TradingSymbol,
			Price:           o.price,
			Quantity:        o.qty,
			OrderNumber:     o.id,
			Product:         o.payload.Product,
			OrderType:       o.payload.OrderType,
			TransactionType: o.payload.TransactionType,
			Status:          o.status,
			CreatedAt:       o.placedAt.Format(time.RFC3339),
		})
	}
	return items, nil
}

// Positions nets filled orders per exchange, symbol and product.
func (b *SimulatorBroker) Positions(_ context.Context) ([]finvasia.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	type key struct{ exch, tsym, prd string }
	type agg struct {
		buyQty, buyVal, sellQty, sellVal float64
	}
	aggs := make(map[key]*agg)
	var keys []key
	for _, o := range b.sorted() {
		if o.status != StatusComplete {
			continue
		}
		k := key{o.payload.Exchange, o.payload.TradingSymbol, o.payload.Product}
		a, ok := aggs[k]
		if !ok {
			a = &agg{}
			aggs[k] = a
			keys = append(keys, k)
		}
		if o.payload.TransactionType == normalize.SideBuy {
			a.buyQty += o.qty
			a.buyVal += o.qty * o.price
		} else {
			a.sellQty += o.qty
			a.sellVal += o.qty * o.price
		}
	}

	positions := make([]finvasia.Position, 0, len(keys))
	for _, k := range keys {
		a := aggs[k]
		var buyAvg, sellAvg float64
		if a.buyQty > 0 {
			buyAvg = a.buyVal / a.buyQty
		}
		if a.sellQty > 0 {
			sellAvg = a.sellVal / a.sellQty
		}
		p := finvasia.Position{
			Symbol:      k.tsym,
			Exchange:    k.exch,
			Product:     k.prd,
			Quantity:    a.buyQty - a.sellQty,
			RealizedPnl: min(a.buyQty, a.sellQty) * (sellAvg - buyAvg),
		}
		switch {
		case p.Quantity > 0:
			p.Price = buyAvg
		case p.Quantity < 0:
			p.Price = sellAvg
		}
		p.BreakEvenPrice = p.Price
		positions = append(positions, p)
	}
	return positions, nil
}

func (b *SimulatorBroker) openOrder(orderID string) (*simOrder, error) {
	o, ok := b.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", orderID, finvasia.ErrOrderNotFound)
	}
	if o.status != StatusOpen {
		return nil, fmt.Errorf("%s is %s: %w", orderID, o.status, ErrNotOpen)
	}
	return o, nil
}

func (b *SimulatorBroker) sorted() []*simOrder {
	out := make([]*simOrder, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].placedAt.Equal(out[j].placedAt) {
			return out[i].placedAt.Before(out[j].placedAt)
		}
		ni, _ := strconv.Atoi(out[i].id[3:])
		nj, _ := strconv.Atoi(out[j].id[3:])
		return ni < nj
	})
	return out
}

func (b *SimulatorBroker) response(orderID string) *finvasia.OrderResponse {
	return &finvasia.OrderResponse{
		RequestTime: b.now().Format("15:04:05 02-01-2006"),
		Stat:        "Ok",
		OrderID:     orderID,
	}
}
