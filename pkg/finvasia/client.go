// Package finvasia is a Go SDK for the Shoonya (Finvasia) Noren trading API.
// Client covers the REST command surface; Session maintains the realtime
// order-update socket.
package finvasia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"finvasia/internal/credential"
	"finvasia/internal/gateway"
	"finvasia/internal/normalize"
	"finvasia/internal/routes"
	"finvasia/internal/util"
)

// Version of the SDK, also sent as the login apkversion.
const Version = "1.0.0"

// ClientOptions configures a Client. Zero values select the defaults.
type ClientOptions struct {
	BaseURL     string
	UserID      string
	AccessToken string
	HTTPClient  *http.Client
	Limiter     *util.RateLimiter
	Observer    gateway.Observer
	Logger      *zap.Logger
}

// Client provides typed access to the broker's REST commands. It is safe
// for concurrent use.
type Client struct {
	gw     *gateway.Gateway
	logger *zap.Logger

	mu        sync.RWMutex
	userID    string
	accountID string
}

// NewClient creates a Client.
func NewClient(opts ClientOptions) *Client {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Client{
		gw: gateway.New(gateway.Options{
			BaseURL:     opts.BaseURL,
			AccessToken: opts.AccessToken,
			HTTPClient:  opts.HTTPClient,
			Limiter:     opts.Limiter,
			Observer:    opts.Observer,
			Logger:      opts.Logger.Named("gateway"),
		}),
		logger:    opts.Logger,
		userID:    opts.UserID,
		accountID: opts.UserID,
	}
}

// SetUserID sets the user id. The account id follows it.
func (c *Client) SetUserID(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.accountID = userID
	c.mu.Unlock()
}

// UserID returns the current user id.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// AccountID returns the current account id.
func (c *Client) AccountID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accountID
}

// SetAccessToken sets the session token sent with every request.
func (c *Client) SetAccessToken(token string) {
	c.gw.SetAccessToken(token)
}

// AccessToken returns the current session token.
func (c *Client) AccessToken() string {
	return c.gw.AccessToken()
}

// Login authenticates and, on success, adopts the returned session token and
// account id.
func (c *Client) Login(ctx context.Context, p LoginParams) (*LoginResponse, error) {
	imei := p.IMEI
	if imei == "" {
		imei = "api"
	}
	payload := map[string]string{
		"source":     "API",
		"apkversion": Version,
		"uid":        p.UserID,
		"pwd":        credential.SHA256(p.Password),
		"factor2":    p.TOTP,
		"vc":         p.VendorCode,
		"appkey":     credential.AppKey(p.UserID, p.APIKey),
		"imei":       imei,
	}

	raw, err := c.gw.Post(ctx, routes.Login, payload)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	var resp LoginResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("login: decoding response: %w", err)
	}
	// Failed logins come back with HTTP 200.
	if resp.Stat == statNotOK || resp.SessionToken == "" {
		msg := resp.Message
		if msg == "" {
			msg = "Login failed"
		}
		return nil, fmt.Errorf("login: %w", &APIError{
			StatusCode: http.StatusUnauthorized,
			Stat:       statNotOK,
			Message:    msg,
		})
	}

	c.SetAccessToken(resp.SessionToken)
	c.SetUserID(resp.AccountID)
	c.logger.Info("logged in", zap.String("account", resp.AccountID))
	return &resp, nil
}

// GetOrders returns the day's order book. An empty book is an empty slice.
func (c *Client) GetOrders(ctx context.Context) ([]OrderBookItem, error) {
	raw, err := c.gw.Post(ctx, routes.Orders, map[string]string{"uid": c.UserID()})
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	var items []OrderHistoryItem
	if err := decodeList(raw, &items); err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	out := make([]OrderBookItem, 0, len(items))
	for _, it := range items {
		out = append(out, newOrderBookItem(it))
	}
	return out, nil
}

// GetOrderHistory returns the state transitions of one order, newest first.
func (c *Client) GetOrderHistory(ctx context.Context, orderID string) ([]OrderHistoryItem, error) {
	if orderID == "" {
		return nil, fmt.Errorf("get order history: %w", missing("orderId"))
	}
	raw, err := c.gw.Post(ctx, routes.OrderHistory, map[string]string{
		"uid":        c.UserID(),
		"norenordno": orderID,
	})
	if err != nil {
		return nil, fmt.Errorf("get order history: %w", err)
	}
	if !isArray(raw) {
		var st brokerStatus
		if err := json.Unmarshal(raw, &st); err != nil {
			return nil, fmt.Errorf("get order history: decoding response: %w", err)
		}
		if strings.Contains(st.Message, "UnAuthorized Order access") {
			return nil, fmt.Errorf("get order history %s: %w", orderID, newNotFoundError())
		}
		return nil, fmt.Errorf("get order history: %w", brokerError(st))
	}
	var items []OrderHistoryItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("get order history: decoding response: %w", err)
	}
	return items, nil
}

// GetPositionsBook returns the net positions. An empty book is an empty
// slice.
func (c *Client) GetPositionsBook(ctx context.Context) ([]Position, error) {
	raw, err := c.gw.Post(ctx, routes.PositionsBook, map[string]string{
		"uid":   c.UserID(),
		"actid": c.AccountID(),
	})
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	var items []rawPosition
	if err := decodeList(raw, &items); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	out := make([]Position, 0, len(items))
	for _, it := range items {
		out = append(out, newPosition(it))
	}
	return out, nil
}

// GetQuote returns the market quote of the instrument identified by
// exchange and token.
func (c *Client) GetQuote(ctx context.Context, exchange, token string) (*Quote, error) {
	if exchange == "" {
		return nil, fmt.Errorf("get quote: %w", missing("exchange"))
	}
	if token == "" {
		return nil, fmt.Errorf("get quote: %w", missing("token"))
	}
	raw, err := c.gw.Post(ctx, routes.Quote, map[string]string{
		"uid":   c.UserID(),
		"exch":  exchange,
		"token": token,
	})
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	var q rawQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil, fmt.Errorf("get quote: decoding response: %w", err)
	}
	if q.Stat == statNotOK {
		return nil, fmt.Errorf("get quote: %w", brokerError(brokerStatus{Stat: q.Stat, Message: q.Message}))
	}
	return newQuote(q, raw), nil
}

// SearchScrip finds instruments on an exchange matching free text.
func (c *Client) SearchScrip(ctx context.Context, p SearchParams) (*SearchResponse, error) {
	raw, err := c.gw.Post(ctx, routes.Search, map[string]string{
		"uid":   c.UserID(),
		"exch":  p.Exchange,
		"stext": p.Text,
	})
	if err != nil {
		return nil, fmt.Errorf("search scrip: %w", err)
	}
	var resp struct {
		SearchResponse
		Message string `json:"emsg"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("search scrip: decoding response: %w", err)
	}
	if resp.Stat == statNotOK && !isNoData(resp.Message) {
		return nil, fmt.Errorf("search scrip: %w", brokerError(brokerStatus{Stat: resp.Stat, Message: resp.Message}))
	}
	if resp.Values == nil {
		resp.Values = []ScripInfo{}
	}
	return &resp.SearchResponse, nil
}

// GetTimeSeries returns intraday candles. An empty series is an empty slice.
func (c *Client) GetTimeSeries(ctx context.Context, p TimeSeriesParams) ([]Candle, error) {
	payload := map[string]string{
		"uid":   c.UserID(),
		"exch":  p.Exchange,
		"token": p.Token,
	}
	if p.StartTime != 0 {
		payload["st"] = strconv.FormatInt(p.StartTime, 10)
	}
	if p.EndTime != 0 {
		payload["et"] = strconv.FormatInt(p.EndTime, 10)
	}
	if p.Interval != "" {
		payload["intrv"] = p.Interval
	}

	raw, err := c.gw.Post(ctx, routes.TimeSeries, payload)
	if err != nil {
		return nil, fmt.Errorf("get time series: %w", err)
	}
	var items []rawCandle
	if err := decodeList(raw, &items); err != nil {
		return nil, fmt.Errorf("get time series: %w", err)
	}
	out := make([]Candle, 0, len(items))
	for _, it := range items {
		out = append(out, newCandle(it))
	}
	return out, nil
}

// PlaceOrder validates p and places a new order.
func (c *Client) PlaceOrder(ctx context.Context, p CreateOrderParams) (*OrderResponse, error) {
	payload, err := normalize.Create(p)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	payload.UserID = c.UserID()
	payload.AccountID = c.AccountID()

	raw, err := c.gw.Post(ctx, routes.PlaceOrder, payload)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	return decodeOrderResponse(raw, "norenordno")
}

// ModifyOrder validates p and modifies an open order.
func (c *Client) ModifyOrder(ctx context.Context, orderID string, p ModifyOrderParams) (*OrderResponse, error) {
	if orderID == "" {
		return nil, fmt.Errorf("modify order: %w", missing("orderId"))
	}
	payload, err := normalize.Modify(p)
	if err != nil {
		return nil, fmt.Errorf("modify order: %w", err)
	}
	payload.UserID = c.UserID()
	payload.OrderID = orderID

	raw, err := c.gw.Post(ctx, routes.ModifyOrder, payload)
	if err != nil {
		return nil, fmt.Errorf("modify order: %w", err)
	}
	return decodeOrderResponse(raw, "result")
}

// CancelOrder cancels an open order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) (*OrderResponse, error) {
	if orderID == "" {
		return nil, fmt.Errorf("cancel order: %w", missing("orderId"))
	}
	raw, err := c.gw.Post(ctx, routes.CancelOrder, map[string]string{
		"uid":        c.UserID(),
		"norenordno": orderID,
	})
	if err != nil {
		return nil, fmt.Errorf("cancel order: %w", err)
	}
	return decodeOrderResponse(raw, "result")
}

// decodeList decodes a broker list response into out. An object carrying a
// "no data" message leaves out as an empty slice.
func decodeList[T any](raw json.RawMessage, out *[]T) error {
	if isArray(raw) {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}
	var st brokerStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	if isNoData(st.Message) {
		*out = []T{}
		return nil
	}
	return brokerError(st)
}

// decodeOrderResponse re-keys the broker's order id field to OrderID.
func decodeOrderResponse(raw json.RawMessage, idField string) (*OrderResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding order response: %w", err)
	}
	var st brokerStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decoding order response: %w", err)
	}
	if st.Stat == statNotOK {
		return nil, brokerError(st)
	}
	resp := &OrderResponse{RequestTime: st.RequestTime, Stat: st.Stat}
	if id, ok := fields[idField]; ok {
		if err := json.Unmarshal(id, &resp.OrderID); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", idField, err)
		}
	}
	return resp, nil
}

// brokerError converts a Not_Ok envelope delivered with HTTP 200.
func brokerError(st brokerStatus) *APIError {
	e := &APIError{
		StatusCode: http.StatusOK,
		Stat:       st.Stat,
		Message:    st.Message,
	}
	if e.Stat == "" {
		e.Stat = gateway.DefaultErrorStat
	}
	if e.Message == "" {
		e.Message = "unexpected response"
	}
	return e
}

func isNoData(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "no data")
}
