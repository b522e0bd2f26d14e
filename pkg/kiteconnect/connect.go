// Package kiteconnect is a Go client for the Zerodha Kite Connect v3 REST API.
//
// Usage example:
//
//	kc := kiteconnect.New(kiteconnect.Config{APIKey: "your_api_key"})
//	fmt.Println(kc.LoginURL())
//	sess, err := kc.GenerateSession(ctx, requestToken, apiSecret)
//	if err != nil { return err }
//	resp, err := kc.PlaceOrder(ctx, kiteconnect.VarietyRegular, kiteconnect.OrderParams{
//	    Exchange: "NSE", TradingSymbol: "INFY", TransactionType: "BUY",
//	    OrderType: "MARKET", Product: "CNC", Quantity: 1,
//	})
package kiteconnect

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"resty.dev/v3"
)

type Config struct {
	APIKey      string
	AccessToken string

	RootURL       string            // default: https://api.kite.trade
	LoginURL      string            // default: https://kite.zerodha.com/connect/login
	Timeout       time.Duration     // default: 7s
	Logger        resty.Logger      // optional
	Debug         bool
	HTTPTransport http.RoundTripper // optional
}

type Client struct {
	apiKey   string
	loginURL string

	mu          sync.RWMutex
	accessToken string

	http *resty.Client
}

const (
	defaultRoot  = "https://api.kite.trade"
	defaultLogin = "https://kite.zerodha.com/connect/login"
	kiteVersion  = "3"
)

// Varieties.
const (
	VarietyRegular = "regular"
	VarietyAMO     = "amo"
	VarietyCO      = "co"
	VarietyIceberg = "iceberg"
)

// Per-request instrument limits.
const (
	MaxQuoteInstruments = 500
	MaxLTPInstruments   = 1000
)

var routes = map[string]string{
	"api.token":        "/session/token",
	"user.profile":     "/user/profile",
	"user.margins":     "/user/margins",
	"orders":           "/orders",
	"order.place":      "/orders/%s",
	"order.modify":     "/orders/%s/%s",
	"order.cancel":     "/orders/%s/%s",
	"portfolio.hold":   "/portfolio/holdings",
	"portfolio.pos":    "/portfolio/positions",
	"market.instr":     "/instruments",
	"market.quote":     "/quote",
	"market.quote.ltp": "/quote/ltp",
}

// New initializes the client. No network calls are made here.
func New(cfg Config) *Client {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLogin
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.RootURL, "/")).
		SetTimeout(cfg.Timeout).
		SetDebug(cfg.Debug)
	if cfg.Logger != nil {
		client.SetLogger(cfg.Logger)
	}
	if cfg.HTTPTransport != nil {
		client.SetTransport(cfg.HTTPTransport)
	}

	return &Client{
		apiKey:      cfg.APIKey,
		loginURL:    cfg.LoginURL,
		accessToken: cfg.AccessToken,
		http:        client,
	}
}

// Close releases idle connections held by the HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}

func (c *Client) LoginURL() string {
	return fmt.Sprintf("%s?v=%s&api_key=%s", c.loginURL, kiteVersion, url.QueryEscape(c.apiKey))
}

func (c *Client) SetAccessToken(t string) {
	c.mu.Lock()
	c.accessToken = t
	c.mu.Unlock()
}

func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// Checksum is sha256(api_key + request_token + api_secret) in hex.
func Checksum(apiKey, requestToken, apiSecret string) string {
	sum := sha256.Sum256([]byte(apiKey + requestToken + apiSecret))
	return hex.EncodeToString(sum[:])
}

// ---- Helpers ----

func (c *Client) requestHeaders() map[string]string {
	h := map[string]string{"X-Kite-Version": kiteVersion}
	if tok := c.AccessToken(); tok != "" {
		h["Authorization"] = fmt.Sprintf("token %s:%s", c.apiKey, tok)
	}
	return h
}

type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// doRaw sends one call and returns the raw body of a 2xx response.
func (c *Client) doRaw(ctx context.Context, method, uri string, params url.Values) ([]byte, error) {
	req := c.http.R().
		SetContext(ctx).
		SetHeaders(c.requestHeaders())
	switch method {
	case http.MethodGet, http.MethodDelete:
		if params != nil {
			req.SetQueryParamsFromValues(params)
		}
	default:
		if params != nil {
			req.SetFormDataFromValues(params)
		}
	}

	resp, err := req.Execute(method, uri)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, uri, err)
	}
	raw := resp.Bytes()
	if resp.IsError() {
		apiErr := &APIError{HTTPStatus: resp.StatusCode(), Message: strings.TrimSpace(string(raw))}
		var env envelope
		if json.Unmarshal(raw, &env) == nil && env.Status != "" {
			apiErr.ErrorType = env.ErrorType
			apiErr.Message = env.Message
		}
		return nil, apiErr
	}
	return raw, nil
}

func (c *Client) doRequest(ctx context.Context, method, uri string, params url.Values, out any) error {
	raw, err := c.doRaw(ctx, method, uri, params)
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("couldn't parse %s response: %w", uri, err)
	}
	if env.Status == "error" {
		return &APIError{HTTPStatus: http.StatusOK, ErrorType: env.ErrorType, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("couldn't parse %s response: %w", uri, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, route string, params url.Values, out any) error {
	return c.doRequest(ctx, http.MethodGet, routes[route], params, out)
}

// ---- API Methods ----

// GenerateSession exchanges a request token for an access token and stores it.
func (c *Client) GenerateSession(ctx context.Context, requestToken, apiSecret string) (*UserSession, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("request_token", requestToken)
	params.Set("checksum", Checksum(c.apiKey, requestToken, apiSecret))

	var sess UserSession
	if err := c.doRequest(ctx, http.MethodPost, routes["api.token"], params, &sess); err != nil {
		return nil, err
	}
	if sess.AccessToken == "" {
		return nil, &APIError{HTTPStatus: http.StatusOK, ErrorType: "TokenException", Message: "session response carried no access_token"}
	}
	c.SetAccessToken(sess.AccessToken)
	return &sess, nil
}

func (c *Client) GetUserProfile(ctx context.Context) (*UserProfile, error) {
	var p UserProfile
	if err := c.get(ctx, "user.profile", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) GetUserMargins(ctx context.Context) (*AllMargins, error) {
	var m AllMargins
	if err := c.get(ctx, "user.margins", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) GetOrders(ctx context.Context) ([]Order, error) {
	var out []Order
	if err := c.get(ctx, "orders", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetHoldings(ctx context.Context) ([]Holding, error) {
	var out []Holding
	if err := c.get(ctx, "portfolio.hold", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetPositions(ctx context.Context) (*Positions, error) {
	var out Positions
	if err := c.get(ctx, "portfolio.pos", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetQuote fetches full quotes keyed by "EXCHANGE:TRADINGSYMBOL".
func (c *Client) GetQuote(ctx context.Context, instruments ...string) (map[string]Quote, error) {
	out := map[string]Quote{}
	if err := c.get(ctx, "market.quote", instrumentParams(instruments), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetLTP fetches last traded prices keyed by "EXCHANGE:TRADINGSYMBOL".
func (c *Client) GetLTP(ctx context.Context, instruments ...string) (map[string]LTP, error) {
	out := map[string]LTP{}
	if err := c.get(ctx, "market.quote.ltp", instrumentParams(instruments), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func instrumentParams(instruments []string) url.Values {
	v := url.Values{}
	for _, i := range instruments {
		v.Add("i", i)
	}
	return v
}

func (c *Client) PlaceOrder(ctx context.Context, variety string, p OrderParams) (*OrderResponse, error) {
	var out OrderResponse
	uri := fmt.Sprintf(routes["order.place"], variety)
	if err := c.doRequest(ctx, http.MethodPost, uri, p.values(), &out); err != nil {
		return nil, err
	}
	if out.OrderID == "" {
		return nil, &APIError{HTTPStatus: http.StatusOK, ErrorType: "OrderException", Message: "place order response carried no order_id"}
	}
	return &out, nil
}

func (c *Client) ModifyOrder(ctx context.Context, variety, orderID string, p OrderParams) (*OrderResponse, error) {
	var out OrderResponse
	uri := fmt.Sprintf(routes["order.modify"], variety, orderID)
	return &out, c.doRequest(ctx, http.MethodPut, uri, p.values(), &out)
}

func (c *Client) CancelOrder(ctx context.Context, variety, orderID string) (*OrderResponse, error) {
	var out OrderResponse
	uri := fmt.Sprintf(routes["order.cancel"], variety, orderID)
	return &out, c.doRequest(ctx, http.MethodDelete, uri, nil, &out)
}

// GetInstruments downloads and parses the full instrument dump (CSV).
// Rows that fail to parse are skipped and counted in the second return.
func (c *Client) GetInstruments(ctx context.Context) ([]Instrument, int, error) {
	raw, err := c.doRaw(ctx, http.MethodGet, routes["market.instr"], nil)
	if err != nil {
		return nil, 0, err
	}
	return ParseInstruments(bytes.NewReader(raw))
}
