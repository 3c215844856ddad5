// Package normalize validates caller-facing order requests and renders them
// into the broker's flat, string-valued wire payloads.
//
// Enumerations are closed here: an order type or product outside the
// accepted set is a validation failure, unlike the lenient passthrough in
// package codec. Validation collects every failing field rather than
// stopping at the first.
package normalize

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"finvasia/internal/codec"
)

// Validity values accepted by the broker.
const (
	ValidityDay = "DAY"
	ValidityIOC = "IOC"
)

// Transaction sides accepted by the broker.
const (
	SideBuy  = "B"
	SideSell = "S"
)

// CreateOrderParams is the caller-facing shape of a new order.
type CreateOrderParams struct {
	Exchange          string  `json:"exchange"`
	TradingSymbol     string  `json:"tradingSymbol"`
	TransactionType   string  `json:"transactionType"` // B or S
	Quantity          float64 `json:"quantity"`
	Price             float64 `json:"price,omitempty"`
	TriggerPrice      float64 `json:"triggerPrice,omitempty"`
	DisclosedQuantity float64 `json:"disclosedQuantity,omitempty"`
	Product           string  `json:"product"`   // nrml, mis, cnc
	OrderType         string  `json:"orderType"` // m, l, sl, sl-m
	Validity          string  `json:"validity,omitempty"`
	Tag               string  `json:"tag,omitempty"`
}

// ModifyOrderParams is the caller-facing shape of an order modification.
// Product, side and disclosed quantity cannot be modified.
type ModifyOrderParams struct {
	Exchange      string  `json:"exchange"`
	TradingSymbol string  `json:"tradingSymbol"`
	Quantity      float64 `json:"quantity"`
	Price         float64 `json:"price,omitempty"`
	TriggerPrice  float64 `json:"triggerPrice,omitempty"`
	OrderType     string  `json:"orderType"`
	Validity      string  `json:"validity,omitempty"`
	Tag           string  `json:"tag,omitempty"`
}

// PlacePayload is the wire document for a new order. UserID and AccountID
// are filled by the caller that owns the session identity.
type PlacePayload struct {
	UserID            string `json:"uid"`
	AccountID         string `json:"actid"`
	Exchange          string `json:"exch"`
	TradingSymbol     string `json:"tsym"`
	TransactionType   string `json:"trantype"`
	Quantity          string `json:"qty"`
	Price             string `json:"prc"`
	TriggerPrice      string `json:"trgprc"`
	DisclosedQuantity string `json:"dscqty"`
	Product           string `json:"prd"`
	OrderType         string `json:"prctyp"`
	Validity          string `json:"ret"`
	Remarks           string `json:"remarks,omitempty"`
}

// ModifyPayload is the wire document for an order modification. TriggerPrice
// is present only for stop-loss order types.
type ModifyPayload struct {
	UserID        string `json:"uid"`
	OrderID       string `json:"norenordno"`
	Exchange      string `json:"exch"`
	TradingSymbol string `json:"tsym"`
	OrderType     string `json:"prctyp"`
	Price         string `json:"prc"`
	TriggerPrice  string `json:"trgprc,omitempty"`
	Quantity      string `json:"qty"`
	Validity      string `json:"ret"`
	Remarks       string `json:"remarks,omitempty"`
}

// Create validates p and renders the place-order payload.
func Create(p CreateOrderParams) (PlacePayload, error) {
	var c collector

	out := PlacePayload{
		Exchange:          c.exchange(p.Exchange),
		TradingSymbol:     c.required("tradingSymbol", p.TradingSymbol),
		TransactionType:   c.side(p.TransactionType),
		Quantity:          c.positive("quantity", p.Quantity),
		Price:             c.nonNegative("price", p.Price),
		TriggerPrice:      c.nonNegative("triggerPrice", p.TriggerPrice),
		DisclosedQuantity: c.nonNegative("disclosedQuantity", p.DisclosedQuantity),
		Product:           c.product(p.Product),
		OrderType:         c.orderType(p.OrderType),
		Validity:          c.validity(p.Validity),
		Remarks:           p.Tag,
	}
	if err := c.result(); err != nil {
		return PlacePayload{}, err
	}
	return out, nil
}

// Modify validates p and renders the modify-order payload. The limit price
// is sent only for LMT and SL-LMT orders (otherwise "0"); the trigger price
// only for SL-LMT and SL-MKT orders.
func Modify(p ModifyOrderParams) (ModifyPayload, error) {
	var c collector

	exch := c.exchange(p.Exchange)
	tsym := c.required("tradingSymbol", p.TradingSymbol)
	qty := c.positive("quantity", p.Quantity)
	price := c.nonNegative("price", p.Price)
	trigger := c.nonNegative("triggerPrice", p.TriggerPrice)
	orderType := c.orderType(p.OrderType)
	validity := c.validity(p.Validity)
	if err := c.result(); err != nil {
		return ModifyPayload{}, err
	}

	out := ModifyPayload{
		Exchange:      exch,
		TradingSymbol: tsym,
		OrderType:     orderType,
		Price:         "0",
		Quantity:      qty,
		Validity:      validity,
		Remarks:       p.Tag,
	}
	if codec.IsStopLoss(orderType) {
		out.TriggerPrice = trigger
	}
	if codec.IsPriced(orderType) {
		out.Price = price
	}
	return out, nil
}

// FormatDecimal renders v as the shortest decimal string that round-trips,
// e.g. 100.5 -> "100.5", 1500 -> "1500". v must be finite.
func FormatDecimal(v float64) string {
	return decimal.NewFromFloat(v).String()
}

// collector accumulates field failures so one pass reports all of them.
type collector struct {
	err error
}

func (c *collector) fail(field, msg string) {
	c.err = multierr.Append(c.err, &FieldError{Field: field, Message: msg})
}

func (c *collector) result() error {
	if c.err == nil {
		return nil
	}
	errs := multierr.Errors(c.err)
	fields := make([]*FieldError, 0, len(errs))
	for _, e := range errs {
		fields = append(fields, e.(*FieldError))
	}
	return &ValidationError{Fields: fields}
}

func (c *collector) required(field, v string) string {
	if strings.TrimSpace(v) == "" {
		c.fail(field, "is required")
	}
	return v
}

func (c *collector) exchange(v string) string {
	return strings.ToUpper(strings.TrimSpace(v))
}

func (c *collector) side(v string) string {
	s := strings.ToUpper(strings.TrimSpace(v))
	if s != SideBuy && s != SideSell {
		c.fail("transactionType", "must be one of B, S")
	}
	return s
}

func (c *collector) positive(field string, v float64) string {
	if !finite(v) || v <= 0 {
		c.fail(field, "must be a positive number")
		return ""
	}
	return FormatDecimal(v)
}

func (c *collector) nonNegative(field string, v float64) string {
	if !finite(v) || v < 0 {
		c.fail(field, "must be a nonnegative number")
		return ""
	}
	return FormatDecimal(v)
}

func (c *collector) product(v string) string {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "NRML", "MIS", "CNC":
		return codec.DecodeProduct(strings.TrimSpace(v))
	}
	c.fail("product", "must be one of nrml, mis, cnc")
	return v
}

func (c *collector) orderType(v string) string {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "M", "L", "SL", "SL-M":
		return codec.DecodeOrderType(strings.TrimSpace(v))
	}
	c.fail("orderType", "must be one of m, l, sl, sl-m")
	return v
}

func (c *collector) validity(v string) string {
	s := strings.ToUpper(strings.TrimSpace(v))
	switch s {
	case "":
		return ValidityDay
	case ValidityDay, ValidityIOC:
		return s
	}
	c.fail("validity", "must be one of day, ioc")
	return s
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
