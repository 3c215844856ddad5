// Package codec translates between caller-facing order enumerations and the
// broker's wire codes.
//
// Every function here is total: unrecognised input is returned unchanged
// rather than rejected. Strict validation of the closed sets happens in the
// normalize package before these mappings are applied.
package codec

import "strings"

// Broker wire codes for order (price) types.
const (
	OrderTypeMarket         = "MKT"
	OrderTypeLimit          = "LMT"
	OrderTypeStopLossLimit  = "SL-LMT"
	OrderTypeStopLossMarket = "SL-MKT"
)

// Broker wire codes for products.
const (
	ProductNormal   = "M" // NRML
	ProductIntraday = "I" // MIS
	ProductDelivery = "C" // CNC
)

var orderTypes = map[string]string{
	"M":    OrderTypeMarket,
	"L":    OrderTypeLimit,
	"SL":   OrderTypeStopLossLimit,
	"SL-M": OrderTypeStopLossMarket,
}

var products = map[string]string{
	"NRML": ProductNormal,
	"MIS":  ProductIntraday,
	"CNC":  ProductDelivery,
}

var (
	orderTypeAliases = invert(orderTypes)
	productAliases   = invert(products)
)

// DecodeOrderType maps a caller-facing order type (m, l, sl, sl-m) to its
// wire code. Any other value is returned unchanged.
func DecodeOrderType(v string) string {
	return lookup(orderTypes, v)
}

// EncodeOrderType maps a wire order type back to its caller-facing alias
// (MKT -> M). Any other value is returned unchanged.
func EncodeOrderType(v string) string {
	return lookup(orderTypeAliases, v)
}

// DecodeProduct maps a caller-facing product (nrml, mis, cnc) to its wire
// code. Any other value is returned unchanged.
func DecodeProduct(v string) string {
	return lookup(products, v)
}

// EncodeProduct maps a wire product code back to its caller-facing alias
// (M -> NRML). Any other value is returned unchanged.
func EncodeProduct(v string) string {
	return lookup(productAliases, v)
}

// IsStopLoss reports whether the wire order type carries a trigger price.
func IsStopLoss(orderType string) bool {
	return orderType == OrderTypeStopLossLimit || orderType == OrderTypeStopLossMarket
}

// IsPriced reports whether the wire order type carries a limit price.
func IsPriced(orderType string) bool {
	return orderType == OrderTypeLimit || orderType == OrderTypeStopLossLimit
}

func lookup(m map[string]string, v string) string {
	if code, ok := m[strings.ToUpper(v)]; ok {
		return code
	}
	return v
}

func invert(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[v] = k
	}
	return out
}
