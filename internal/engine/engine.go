// Package engine coordinates order submission, risk checking and journaling
// across the trading system.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"finvasia/internal/broker"
	"finvasia/internal/normalize"
	"finvasia/internal/store"
	"finvasia/pkg/finvasia"
)

// StatusSubmitted is the journal status of an order the broker accepted but
// has not yet reported on.
const StatusSubmitted = "SUBMITTED"

// Engine orchestrates the trading lifecycle by delegating to a broker for
// execution, a journal for persistence, and a risk manager for pre-trade
// checks. The journal is optional.
type Engine struct {
	broker  broker.Broker
	journal store.OrderJournal
	risk    *RiskManager
	logger  *zap.Logger
	now     func() time.Time
}

// NewEngine creates a new Engine wired with the given dependencies.
func NewEngine(
	b broker.Broker,
	journal store.OrderJournal,
	risk *RiskManager,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		broker:  b,
		journal: journal,
		risk:    risk,
		logger:  logger,
		now:     time.Now,
	}
}

// Broker returns the broker orders are routed to.
func (e *Engine) Broker() broker.Broker {
	return e.broker
}

// SubmitOrder checks the order against risk rules, forwards it to the broker
// and journals the accepted order.
func (e *Engine) SubmitOrder(ctx context.Context, p finvasia.CreateOrderParams) (*finvasia.OrderResponse, error) {
	payload, err := normalize.Create(p)
	if err != nil {
		return nil, fmt.Errorf("submit order: %w", err)
	}
	if err := e.risk.CheckOrder(p); err != nil {
		e.logger.Warn("order rejected", zap.String("symbol", p.TradingSymbol), zap.Error(err))
		return nil, fmt.Errorf("submit order: %w", err)
	}

	resp, err := e.broker.PlaceOrder(ctx, p)
	if err != nil {
		return nil, err
	}
	e.logger.Info("order placed",
		zap.String("broker", e.broker.Name()),
		zap.String("order_id", resp.OrderID),
		zap.String("symbol", payload.TradingSymbol),
		zap.String("side", payload.TransactionType),
		zap.String("qty", payload.Quantity),
	)

	if e.journal != nil {
		now := e.now()
		rec := &store.OrderRecord{
			OrderID:       resp.OrderID,
			Mode:          e.mode(),
			Exchange:      payload.Exchange,
			TradingSymbol: payload.TradingSymbol,
			Side:          payload.TransactionType,
			Quantity:      p.Quantity,
			Price:         p.Price,
			TriggerPrice:  p.TriggerPrice,
			Product:       payload.Product,
			OrderType:     payload.OrderType,
			Validity:      payload.Validity,
			Tag:           p.Tag,
			Status:        StatusSubmitted,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := e.journal.SaveOrder(ctx, rec); err != nil {
			// The order is live at the broker; a journal failure must not
			// report it as failed.
			e.logger.Error("journaling order", zap.String("order_id", resp.OrderID), zap.Error(err))
		}
	}
	return resp, nil
}

// ModifyOrder checks the modification against risk rules and forwards it.
func (e *Engine) ModifyOrder(ctx context.Context, orderID string, p finvasia.ModifyOrderParams) (*finvasia.OrderResponse, error) {
	payload, err := normalize.Modify(p)
	if err != nil {
		return nil, fmt.Errorf("modify order: %w", err)
	}
	if err := e.risk.CheckModify(p); err != nil {
		return nil, fmt.Errorf("modify order: %w", err)
	}
	resp, err := e.broker.ModifyOrder(ctx, orderID, p)
	if err != nil {
		return nil, err
	}

	if e.journal != nil {
		rec, err := e.journal.GetOrder(ctx, orderID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			e.logger.Error("reading journaled order", zap.String("order_id", orderID), zap.Error(err))
		default:
			rec.Quantity = p.Quantity
			rec.Price = p.Price
			rec.TriggerPrice = p.TriggerPrice
			rec.OrderType = payload.OrderType
			rec.Validity = payload.Validity
			rec.UpdatedAt = e.now()
			if err := e.journal.SaveOrder(ctx, rec); err != nil {
				e.logger.Error("journaling modification", zap.String("order_id", orderID), zap.Error(err))
			}
		}
	}
	return resp, nil
}

// CancelOrder requests cancellation of an open order.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) (*finvasia.OrderResponse, error) {
	resp, err := e.broker.CancelOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	e.logger.Info("order cancel requested", zap.String("order_id", orderID))
	return resp, nil
}

// Orders returns the broker's order book.
func (e *Engine) Orders(ctx context.Context) ([]finvasia.OrderBookItem, error) {
	return e.broker.Orders(ctx)
}

// Positions returns all current positions.
func (e *Engine) Positions(ctx context.Context) ([]finvasia.Position, error) {
	return e.broker.Positions(ctx)
}

func (e *Engine) mode() string {
	if _, ok := e.broker.(*broker.SimulatorBroker); ok {
		return store.ModePaper
	}
	return store.ModeLive
}
