// Package smartconnect is a Go client for the Angel One SmartAPI REST endpoints.
// It mirrors the SmartConnect routes, headers and login/token handling, with
// typed responses and context-aware calls.
//
// Usage example:
//
//	sc := smartconnect.NewSmartConnect(smartconnect.Config{APIKey: "your_api_key"})
//	login, err := sc.GenerateSession(ctx, "CLIENTID", "MPIN", "TOTP")
//	if err != nil { return err }
//	resp, err := sc.PlaceOrder(ctx, smartconnect.OrderParams{
//	    Variety: "NORMAL", TradingSymbol: "SBIN-EQ", SymbolToken: "3045", TransactionType: "BUY",
//	    Exchange: "NSE", OrderType: "MARKET", ProductType: "DELIVERY", Duration: "DAY", Quantity: "1",
//	})
package smartconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"resty.dev/v3"
)

// ---- Config & client ----

type Config struct {
	APIKey       string
	AccessToken  string
	RefreshToken string
	FeedToken    string
	UserID       string

	RootURL        string            // default: https://apiconnect.angelone.in
	LoginURL       string            // default: https://smartapi.angelone.in/publisher-login
	ScripMasterURL string            // default: Angel One OpenAPI scrip master JSON
	Timeout        time.Duration     // default: 7s
	Accept         string            // default: application/json
	UserType       string            // default: USER
	SourceID       string            // default: WEB
	ClientPublicIP string            // default: 106.193.147.98
	ClientLocalIP  string            // default resolved, else 127.0.0.1
	ClientMAC      string            // default from interface MAC
	Logger         resty.Logger      // optional
	Debug          bool
	HTTPTransport  http.RoundTripper // optional
}

type SmartConnect struct {
	apiKey string

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	feedToken    string
	userID       string

	loginURL       string
	scripMasterURL string

	http *resty.Client

	// header fields
	accept   string
	userType string
	sourceID string

	clientPublicIP string
	clientLocalIP  string
	clientMAC      string
}

const (
	defaultRoot        = "https://apiconnect.angelone.in"
	defaultLogin       = "https://smartapi.angelone.in/publisher-login"
	defaultScripMaster = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"
)

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",

	"api.order.place":  "/rest/secure/angelbroking/order/v1/placeOrder",
	"api.order.modify": "/rest/secure/angelbroking/order/v1/modifyOrder",
	"api.order.cancel": "/rest/secure/angelbroking/order/v1/cancelOrder",
	"api.order.book":   "/rest/secure/angelbroking/order/v1/getOrderBook",

	"api.ltp.data":    "/rest/secure/angelbroking/order/v1/getLtpData",
	"api.rms.limit":   "/rest/secure/angelbroking/user/v1/getRMS",
	"api.holding":     "/rest/secure/angelbroking/portfolio/v1/getHolding",
	"api.position":    "/rest/secure/angelbroking/order/v1/getPosition",
	"api.market.data": "/rest/secure/angelbroking/market/v1/quote",
}

// Market data modes.
const (
	ModeLTP  = "LTP"
	ModeOHLC = "OHLC"
	ModeFull = "FULL"
)

// MaxMarketDataTokens is the per-request token limit of the quote endpoint.
const MaxMarketDataTokens = 50

// GetLocalIP finds your local IP address
func GetLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}

	for _, address := range addrs {
		// Check if it's an IP address and not a loopback
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no local IP found")
}

// NewSmartConnect initializes the client. No network calls are made here.
func NewSmartConnect(cfg Config) *SmartConnect {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.LoginURL == "" {
		cfg.LoginURL = defaultLogin
	}
	if cfg.ScripMasterURL == "" {
		cfg.ScripMasterURL = defaultScripMaster
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.Accept == "" {
		cfg.Accept = "application/json"
	}
	if cfg.UserType == "" {
		cfg.UserType = "USER"
	}
	if cfg.SourceID == "" {
		cfg.SourceID = "WEB"
	}
	if cfg.ClientLocalIP == "" {
		localIP, _ := GetLocalIP()
		cfg.ClientLocalIP = firstNonEmpty(localIP, "127.0.0.1")
	}
	cfg.ClientPublicIP = firstNonEmpty(cfg.ClientPublicIP, "106.193.147.98")
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = getMACFallback()
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

	return &SmartConnect{
		apiKey:         cfg.APIKey,
		accessToken:    cfg.AccessToken,
		refreshToken:   cfg.RefreshToken,
		feedToken:      cfg.FeedToken,
		userID:         cfg.UserID,
		loginURL:       cfg.LoginURL,
		scripMasterURL: cfg.ScripMasterURL,
		http:           client,
		accept:         cfg.Accept,
		userType:       cfg.UserType,
		sourceID:       cfg.SourceID,
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

// Close releases idle connections held by the HTTP client.
func (sc *SmartConnect) Close() error {
	return sc.http.Close()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func getMACFallback() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// ---- Helpers ----

func (sc *SmartConnect) requestHeaders() map[string]string {
	h := map[string]string{
		"Content-Type":     sc.accept,
		"Accept":           sc.accept,
		"X-ClientLocalIP":  sc.clientLocalIP,
		"X-ClientPublicIP": sc.clientPublicIP,
		"X-MACAddress":     sc.clientMAC,
		"X-PrivateKey":     sc.apiKey,
		"X-UserType":       sc.userType,
		"X-SourceID":       sc.sourceID,
	}
	if tok := sc.AccessToken(); tok != "" {
		h["Authorization"] = "Bearer " + tok
	}
	return h
}

// envelope is the common SmartAPI response wrapper.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// doRequest sends one call and decodes data into out (if non-nil).
// Transport failures are returned as-is; API failures as *APIError.
func (sc *SmartConnect) doRequest(ctx context.Context, method, route string, params any, out any) error {
	uri, ok := routes[route]
	if !ok {
		return fmt.Errorf("unknown route: %s", route)
	}

	req := sc.http.R().
		SetContext(ctx).
		SetHeaders(sc.requestHeaders())
	if method == http.MethodGet {
		if q, ok := params.(map[string]string); ok {
			req.SetQueryParams(q)
		}
	} else {
		if params == nil {
			params = map[string]any{}
		}
		req.SetBody(params)
	}

	resp, err := req.Execute(method, uri)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, route, err)
	}
	raw := resp.Bytes()

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// Rate-limit and gateway errors come back as plain text.
		return &APIError{HTTPStatus: resp.StatusCode(), Message: strings.TrimSpace(string(raw))}
	}
	if resp.IsError() || !env.Status {
		return &APIError{HTTPStatus: resp.StatusCode(), Code: env.ErrorCode, Message: env.Message}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("couldn't parse %s response: %w", route, err)
	}
	return nil
}

func (sc *SmartConnect) get(ctx context.Context, route string, params map[string]string, out any) error {
	return sc.doRequest(ctx, http.MethodGet, route, params, out)
}

func (sc *SmartConnect) post(ctx context.Context, route string, params any, out any) error {
	return sc.doRequest(ctx, http.MethodPost, route, params, out)
}

// ---- Setters/Getters ----

func (sc *SmartConnect) SetAccessToken(t string) {
	sc.mu.Lock()
	sc.accessToken = t
	sc.mu.Unlock()
}

func (sc *SmartConnect) AccessToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.accessToken
}

func (sc *SmartConnect) RefreshToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.refreshToken
}

func (sc *SmartConnect) FeedToken() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.feedToken
}

func (sc *SmartConnect) UserID() string {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.userID
}

func (sc *SmartConnect) LoginURL() string {
	return fmt.Sprintf("%s?api_key=%s", sc.loginURL, sc.apiKey)
}

// ---- API Methods ----

// GenerateSession logs in with client code, MPIN and TOTP and stores the
// returned jwt/refresh/feed tokens on the client.
func (sc *SmartConnect) GenerateSession(ctx context.Context, clientCode, mpin, totp string) (*LoginData, error) {
	params := map[string]any{"clientcode": clientCode, "password": mpin, "totp": totp}
	var data LoginData
	if err := sc.post(ctx, "api.login", params, &data); err != nil {
		return nil, err
	}
	if data.JWTToken == "" {
		return nil, &APIError{HTTPStatus: http.StatusOK, Message: "login response carried no jwtToken"}
	}

	sc.mu.Lock()
	sc.accessToken = strings.TrimPrefix(data.JWTToken, "Bearer ")
	sc.refreshToken = data.RefreshToken
	sc.feedToken = data.FeedToken
	sc.userID = clientCode
	sc.mu.Unlock()

	return &data, nil
}

func (sc *SmartConnect) TerminateSession(ctx context.Context) error {
	return sc.post(ctx, "api.logout", map[string]any{"clientcode": sc.UserID()}, nil)
}

func (sc *SmartConnect) GetProfile(ctx context.Context) (*Profile, error) {
	var p Profile
	if err := sc.get(ctx, "api.user.profile", map[string]string{"refreshToken": sc.RefreshToken()}, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Orders

func (sc *SmartConnect) PlaceOrder(ctx context.Context, params OrderParams) (*OrderResponse, error) {
	var out OrderResponse
	if err := sc.post(ctx, "api.order.place", params, &out); err != nil {
		return nil, err
	}
	if out.OrderID == "" && out.UniqueOrderID == "" {
		return nil, &APIError{HTTPStatus: http.StatusOK, Message: "place order response carried no order id"}
	}
	return &out, nil
}

func (sc *SmartConnect) ModifyOrder(ctx context.Context, params ModifyParams) (*OrderResponse, error) {
	var out OrderResponse
	if err := sc.post(ctx, "api.order.modify", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (sc *SmartConnect) CancelOrder(ctx context.Context, variety, orderID string) (*OrderResponse, error) {
	var out OrderResponse
	if err := sc.post(ctx, "api.order.cancel", map[string]any{"variety": variety, "orderid": orderID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (sc *SmartConnect) OrderBook(ctx context.Context) ([]OrderBookEntry, error) {
	var out []OrderBookEntry
	if err := sc.get(ctx, "api.order.book", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (sc *SmartConnect) Holding(ctx context.Context) ([]HoldingEntry, error) {
	var out []HoldingEntry
	if err := sc.get(ctx, "api.holding", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (sc *SmartConnect) Position(ctx context.Context) ([]PositionEntry, error) {
	var out []PositionEntry
	if err := sc.get(ctx, "api.position", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (sc *SmartConnect) RMSLimit(ctx context.Context) (*RMS, error) {
	var out RMS
	if err := sc.get(ctx, "api.rms.limit", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Market / Data

// GetMarketData fetches quotes for up to MaxMarketDataTokens tokens grouped by exchange.
func (sc *SmartConnect) GetMarketData(ctx context.Context, mode string, exchangeTokens map[string][]string) (*MarketData, error) {
	params := map[string]any{"mode": mode, "exchangeTokens": exchangeTokens}
	var out MarketData
	if err := sc.post(ctx, "api.market.data", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScripMaster downloads the full instrument master. The file is public and
// served without the API envelope.
func (sc *SmartConnect) ScripMaster(ctx context.Context) ([]ScripRow, error) {
	resp, err := sc.http.R().
		SetContext(ctx).
		SetHeader("Accept", sc.accept).
		Get(sc.scripMasterURL)
	if err != nil {
		return nil, fmt.Errorf("scrip master: %w", err)
	}
	if resp.IsError() {
		return nil, &APIError{HTTPStatus: resp.StatusCode(), Message: "scrip master download failed: " + resp.Status()}
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(resp.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("couldn't parse scrip master: %w", err)
	}
	rows := make([]ScripRow, 0, len(raw))
	for _, r := range raw {
		var row ScripRow
		if err := json.Unmarshal(r, &row); err != nil {
			row.Invalid = true
		}
		rows = append(rows, row)
	}
	return rows, nil
}
