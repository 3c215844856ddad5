// Package gateway sends commands to the broker's REST endpoints. Requests
// are form-encoded POSTs carrying a JSON document in jData and the session
// token in jKey; responses are handed back as raw JSON or mapped into
// APIError and NetworkError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"finvasia/internal/routes"
	"finvasia/internal/util"
)

const contentType = "application/x-www-form-urlencoded"

// Observer receives the outcome of every request.
type Observer interface {
	ObserveRequest(route string, d time.Duration, err error)
}

// Options configures a Gateway. Zero values select the defaults.
type Options struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
	Limiter     *util.RateLimiter
	Observer    Observer
	Logger      *zap.Logger
}

// Gateway is safe for concurrent use.
type Gateway struct {
	baseURL  string
	client   *http.Client
	limiter  *util.RateLimiter
	observer Observer
	logger   *zap.Logger

	mu    sync.RWMutex
	token string
}

// New creates a Gateway.
func New(opts Options) *Gateway {
	if opts.BaseURL == "" {
		opts.BaseURL = routes.DefaultBaseURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Gateway{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		client:   opts.HTTPClient,
		limiter:  opts.Limiter,
		observer: opts.Observer,
		logger:   opts.Logger,
		token:    opts.AccessToken,
	}
}

// SetAccessToken replaces the token sent as jKey on subsequent requests.
func (g *Gateway) SetAccessToken(token string) {
	g.mu.Lock()
	g.token = token
	g.mu.Unlock()
}

// AccessToken returns the current token.
func (g *Gateway) AccessToken() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token
}

// Post sends payload to the named route and returns the raw response body.
func (g *Gateway) Post(ctx context.Context, route string, payload any) (json.RawMessage, error) {
	start := time.Now()
	raw, err := g.post(ctx, route, payload)
	if g.observer != nil {
		g.observer.ObserveRequest(route, time.Since(start), err)
	}
	return raw, err
}

func (g *Gateway) post(ctx context.Context, route string, payload any) (json.RawMessage, error) {
	path, ok := routes.Path(route)
	if !ok {
		return nil, fmt.Errorf("gateway: unknown route %q", route)
	}

	body, err := encodeBody(payload, g.AccessToken())
	if err != nil {
		return nil, fmt.Errorf("gateway: encoding %s payload: %w", route, err)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("gateway: rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("gateway: creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	reqID := uuid.NewString()
	g.logger.Debug("request",
		zap.String("id", reqID),
		zap.String("route", route),
		zap.String("url", req.URL.String()),
	)

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Debug("request failed", zap.String("id", reqID), zap.Error(err))
		return nil, &NetworkError{Route: route, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Route: route, Err: err}
	}
	g.logger.Debug("response",
		zap.String("id", reqID),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(respBody)),
	)

	return decodeResponse(resp.StatusCode, respBody)
}

// encodeBody renders "jData=<json>[&jKey=<token>]". The JSON is sent as-is,
// without URL escaping, which is what the broker expects.
func encodeBody(payload any, token string) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(data) + len(token) + 12)
	buf.WriteString("jData=")
	buf.Write(data)
	if token != "" {
		buf.WriteString("&jKey=")
		buf.WriteString(token)
	}
	return buf.Bytes(), nil
}

// decodeResponse maps an HTTP status and body to the raw payload or an
// *APIError.
func decodeResponse(status int, body []byte) (json.RawMessage, error) {
	if status >= 200 && status < 300 {
		return json.RawMessage(body), nil
	}

	apiErr := &APIError{
		StatusCode: status,
		Stat:       DefaultErrorStat,
		Message:    DefaultErrorMessage,
	}
	if status == 0 {
		apiErr.StatusCode = DefaultErrorStatus
	}
	var detail struct {
		Stat string `json:"stat"`
		Emsg string `json:"emsg"`
	}
	if json.Unmarshal(body, &detail) == nil {
		if detail.Stat != "" {
			apiErr.Stat = detail.Stat
		}
		if detail.Emsg != "" {
			apiErr.Message = detail.Emsg
		}
	}
	return nil, apiErr
}
