package engine

import (
	"errors"
	"fmt"
	"strings"

	"finvasia/pkg/finvasia"
)

// ErrRiskRejected is wrapped by every pre-trade rejection.
var ErrRiskRejected = errors.New("engine: order rejected by risk check")

// RiskManager enforces pre-trade risk rules: order size, order value and the
// exchanges trading is allowed on. Zero limits are not enforced.
type RiskManager struct {
	maxQty    float64
	maxValue  float64
	exchanges map[string]bool
}

// NewRiskManager creates a RiskManager with the specified limits.
//
//   - maxQty: largest quantity a single order may carry.
//   - maxValue: largest notional (quantity x price) of a single order. Market
//     orders are valued at their trigger price when one is set.
//   - exchanges: exchanges orders may target; empty allows all.
func NewRiskManager(maxQty, maxValue float64, exchanges []string) *RiskManager {
	rm := &RiskManager{maxQty: maxQty, maxValue: maxValue}
	if len(exchanges) > 0 {
		rm.exchanges = make(map[string]bool, len(exchanges))
		for _, e := range exchanges {
			rm.exchanges[strings.ToUpper(e)] = true
		}
	}
	return rm
}

// CheckOrder evaluates a new order against the configured limits.
func (rm *RiskManager) CheckOrder(p finvasia.CreateOrderParams) error {
	return rm.check(p.Exchange, p.Quantity, p.Price, p.TriggerPrice)
}

// CheckModify evaluates an order modification against the configured limits.
func (rm *RiskManager) CheckModify(p finvasia.ModifyOrderParams) error {
	return rm.check(p.Exchange, p.Quantity, p.Price, p.TriggerPrice)
}

func (rm *RiskManager) check(exchange string, qty, price, trigger float64) error {
	if rm == nil {
		return nil
	}
	if rm.exchanges != nil && !rm.exchanges[strings.ToUpper(strings.TrimSpace(exchange))] {
		return fmt.Errorf("exchange %q not allowed: %w", exchange, ErrRiskRejected)
	}
	if rm.maxQty > 0 && qty > rm.maxQty {
		return fmt.Errorf("quantity %v exceeds limit %v: %w", qty, rm.maxQty, ErrRiskRejected)
	}
	ref := price
	if ref == 0 {
		ref = trigger
	}
	if rm.maxValue > 0 && qty*ref > rm.maxValue {
		return fmt.Errorf("order value %v exceeds limit %v: %w", qty*ref, rm.maxValue, ErrRiskRejected)
	}
	return nil
}
