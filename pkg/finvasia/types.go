package finvasia

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"

	"finvasia/internal/normalize"
)

// Order request shapes accepted by PlaceOrder and ModifyOrder.
type (
	CreateOrderParams = normalize.CreateOrderParams
	ModifyOrderParams = normalize.ModifyOrderParams
)

// Broker status strings.
const (
	statOK    = "Ok"
	statNotOK = "Not_Ok"
)

// LoginParams holds the credentials for a QuickAuth login.
type LoginParams struct {
	UserID     string
	Password   string
	TOTP       string // second factor
	VendorCode string
	APIKey     string
	IMEI       string // defaults to "api"
}

// LoginResponse is the broker's reply to a successful login.
type LoginResponse struct {
	RequestTime    string   `json:"request_time"`
	Stat           string   `json:"stat"`
	SessionToken   string   `json:"susertoken"`
	AccountID      string   `json:"actid"`
	UserName       string   `json:"uname"`
	Email          string   `json:"email"`
	BrokerName     string   `json:"brkname"`
	LastAccessTime string   `json:"lastaccesstime"`
	Exchanges      []string `json:"exarr"`
	Products       []struct {
		Product   string   `json:"prd"`
		Name      string   `json:"s_prdt_ali"`
		Exchanges []string `json:"exch"`
	} `json:"prarr"`
	Message string `json:"emsg"`
}

// OrderResponse is the result of placing, modifying or cancelling an order.
type OrderResponse struct {
	RequestTime string `json:"request_time"`
	Stat        string `json:"stat"`
	OrderID     string `json:"orderId"`
}

// OrderHistoryItem is one entry of an order's history as the broker
// reports it.
type OrderHistoryItem struct {
	Stat            string `json:"stat"`
	UserID          string `json:"uid"`
	AccountID       string `json:"actid"`
	Exchange        string `json:"exch"`
	TradingSymbol   string `json:"tsym"`
	DisplayName     string `json:"dname"`
	Token           string `json:"token"`
	OrderNumber     string `json:"norenordno"`
	KidID           string `json:"kidid"`
	Price           string `json:"prc"`
	Quantity        string `json:"qty"`
	Product         string `json:"prd"`
	OrderType       string `json:"prctyp"`
	TransactionType string `json:"trantype"`
	Validity        string `json:"ret"`
	Status          string `json:"status"`
	InternalStatus  string `json:"st_intrn"`
	RejectReason    string `json:"rejreason"`
	OrderTime       string `json:"norentm"`
	TickSize        string `json:"ti"`
	LotSize         string `json:"ls"`
	PricePrecision  string `json:"pp"`
	Multiplier      string `json:"mult"`
	PriceFactor     string `json:"prcftr"`
}

// OrderBookItem is an order book entry in caller-facing form with numeric
// price and quantity.
type OrderBookItem struct {
	SymbolFullName  string  `json:"symbolFullName"`
	Symbol          string  `json:"symbol"`
	SymbolID        string  `json:"symbolId"`
	Price           float64 `json:"price"`
	Quantity        float64 `json:"quantity"`
	OrderNumber     string  `json:"orderNumber"`
	Product         string  `json:"product"`
	OrderType       string  `json:"orderType"`
	TransactionType string  `json:"transactionType"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"createdAt"`
}

func newOrderBookItem(h OrderHistoryItem) OrderBookItem {
	return OrderBookItem{
		SymbolFullName:  h.DisplayName,
		Symbol:          h.TradingSymbol,
		SymbolID:        h.Token,
		Price:           parseNumber(h.Price),
		Quantity:        parseNumber(h.Quantity),
		OrderNumber:     h.OrderNumber,
		Product:         h.Product,
		OrderType:       h.OrderType,
		TransactionType: h.TransactionType,
		Status:          h.Status,
		CreatedAt:       h.OrderTime,
	}
}

// Position is a position book entry in caller-facing form.
type Position struct {
	Symbol         string  `json:"symbol"`
	SymbolID       string  `json:"symbolId"`
	Exchange       string  `json:"exchange"`
	Product        string  `json:"product"`
	Price          float64 `json:"price"`
	Quantity       float64 `json:"quantity"`
	LTP            float64 `json:"ltp"`
	RealizedPnl    float64 `json:"realizedPnl"`
	UnrealizedPnl  float64 `json:"unrealizedPnl"`
	BreakEvenPrice float64 `json:"breakEvenPrice"`
}

type rawPosition struct {
	Exchange      string `json:"exch"`
	Token         string `json:"token"`
	TradingSymbol string `json:"tsym"`
	Product       string `json:"prd"`
	NetQty        string `json:"netqty"`
	NetAvgPrice   string `json:"netavgprc"`
	LastPrice     string `json:"lp"`
	RealizedPnl   string `json:"rpnl"`
	UnrealizedMTM string `json:"urmtom"`
	BreakEven     string `json:"bep"`
}

func newPosition(p rawPosition) Position {
	return Position{
		Symbol:         p.TradingSymbol,
		SymbolID:       p.Token,
		Exchange:       p.Exchange,
		Product:        p.Product,
		Price:          parseNumber(p.NetAvgPrice),
		Quantity:       parseNumber(p.NetQty),
		LTP:            parseNumber(p.LastPrice),
		RealizedPnl:    parseNumber(p.RealizedPnl),
		UnrealizedPnl:  parseNumber(p.UnrealizedMTM),
		BreakEvenPrice: parseNumber(p.BreakEven),
	}
}

// Quote is a market quote for one instrument. Raw holds the full broker
// document for fields not mapped here.
type Quote struct {
	Exchange      string          `json:"exchange"`
	TradingSymbol string          `json:"tradingSymbol"`
	Token         string          `json:"token"`
	LastPrice     float64         `json:"lastPrice"`
	Open          float64         `json:"open"`
	High          float64         `json:"high"`
	Low           float64         `json:"low"`
	Close         float64         `json:"close"`
	AveragePrice  float64         `json:"averagePrice"`
	Volume        float64         `json:"volume"`
	ChangePercent float64         `json:"changePercent"`
	BestBid       float64         `json:"bestBid"`
	BestAsk       float64         `json:"bestAsk"`
	TickSize      float64         `json:"tickSize"`
	LotSize       float64         `json:"lotSize"`
	Raw           json.RawMessage `json:"-"`
}

type rawQuote struct {
	Stat          string `json:"stat"`
	Message       string `json:"emsg"`
	Exchange      string `json:"exch"`
	TradingSymbol string `json:"tsym"`
	Token         string `json:"token"`
	LastPrice     string `json:"lp"`
	Open          string `json:"o"`
	High          string `json:"h"`
	Low           string `json:"l"`
	Close         string `json:"c"`
	AveragePrice  string `json:"ap"`
	Volume        string `json:"v"`
	ChangePercent string `json:"pc"`
	BestBid       string `json:"bp1"`
	BestAsk       string `json:"sp1"`
	TickSize      string `json:"ti"`
	LotSize       string `json:"ls"`
}

func newQuote(q rawQuote, raw json.RawMessage) *Quote {
	return &Quote{
		Exchange:      q.Exchange,
		TradingSymbol: q.TradingSymbol,
		Token:         q.Token,
		LastPrice:     parseNumber(q.LastPrice),
		Open:          parseNumber(q.Open),
		High:          parseNumber(q.High),
		Low:           parseNumber(q.Low),
		Close:         parseNumber(q.Close),
		AveragePrice:  parseNumber(q.AveragePrice),
		Volume:        parseNumber(q.Volume),
		ChangePercent: parseNumber(q.ChangePercent),
		BestBid:       parseNumber(q.BestBid),
		BestAsk:       parseNumber(q.BestAsk),
		TickSize:      parseNumber(q.TickSize),
		LotSize:       parseNumber(q.LotSize),
		Raw:           raw,
	}
}

// SearchParams selects instruments by exchange and free text.
type SearchParams struct {
	Exchange string
	Text     string
}

// ScripInfo is one instrument returned by SearchScrip.
type ScripInfo struct {
	CompanyName    string `json:"cname"`
	Exchange       string `json:"exch"`
	InstrumentName string `json:"instname"`
	LotSize        string `json:"ls"`
	PricePrecision string `json:"pp"`
	TickSize       string `json:"ti"`
	Token          string `json:"token"`
	TradingSymbol  string `json:"tsym"`
}

// SearchResponse is the result of SearchScrip.
type SearchResponse struct {
	Stat   string      `json:"stat"`
	Values []ScripInfo `json:"values"`
}

// TimeSeriesParams selects a candle series. StartTime and EndTime are Unix
// seconds; zero omits them. Interval is in minutes.
type TimeSeriesParams struct {
	Exchange  string
	Token     string
	StartTime int64
	EndTime   int64
	Interval  string
}

// Candle is one bar of a time series.
type Candle struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume string  `json:"volume"`
}

type rawCandle struct {
	Time   string `json:"time"`
	Open   string `json:"into"`
	High   string `json:"inth"`
	Low    string `json:"intl"`
	Close  string `json:"intc"`
	Volume string `json:"intv"`
}

func newCandle(c rawCandle) Candle {
	return Candle{
		Time:   c.Time,
		Open:   parseNumber(c.Open),
		High:   parseNumber(c.High),
		Low:    parseNumber(c.Low),
		Close:  parseNumber(c.Close),
		Volume: c.Volume,
	}
}

// brokerStatus is the envelope the broker returns for object responses.
type brokerStatus struct {
	Stat        string `json:"stat"`
	Message     string `json:"emsg"`
	RequestTime string `json:"request_time"`
}

// parseNumber reads a broker numeric string. Empty or malformed values are 0.
func parseNumber(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// isArray reports whether raw holds a JSON array.
func isArray(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
