// Package kite adapts the Kite Connect API to the broker.Broker contract.
//
// Login is redirect based: the user visits LoginURL, Kite redirects back with
// a request_token, and CreateSession exchanges it for an access token that
// lives until 06:00 IST the next morning.
package kite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"basket-trading/internal/broker"
	"basket-trading/internal/logger"
	"basket-trading/internal/markethours"
	"basket-trading/internal/model"
	"basket-trading/internal/tradeerr"
	"basket-trading/pkg/kiteconnect"
)

// OrdersPerSecond is Kite's documented order placement limit.
const OrdersPerSecond = 10

var productToKite = map[string]string{
	model.ProductDelivery: "CNC",
	model.ProductIntraday: "MIS",
	model.ProductMargin:   "NRML",
}

var productFromKite = map[string]string{
	"CNC":  model.ProductDelivery,
	"MIS":  model.ProductIntraday,
	"NRML": model.ProductMargin,
}

// Adapter is one account's Kite session. Not safe to share across accounts.
type Adapter struct {
	creds  broker.Credentials
	client *kiteconnect.Client
	norm   *broker.Normalizer
	log    *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	session model.Session
	active  bool
}

type options struct {
	cfg kiteconnect.Config
	log *slog.Logger
	now func() time.Time
}

// Option configures an Adapter.
type Option func(*options)

// WithBaseURL points the adapter at a different API root (tests, sandboxes).
func WithBaseURL(root string) Option {
	return func(o *options) { o.cfg.RootURL = root }
}

// WithTransport replaces the HTTP transport (e.g. an instrumented RoundTripper).
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.cfg.HTTPTransport = rt }
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock overrides time.Now for session expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New builds an adapter. Credentials must already be validated.
func New(creds broker.Credentials, opts ...Option) *Adapter {
	o := options{log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With(slog.String("broker", string(broker.Zerodha)))
	o.cfg.APIKey = creds.APIKey
	o.cfg.Logger = logger.Resty(log)

	return &Adapter{
		creds:  creds,
		client: kiteconnect.New(o.cfg),
		norm:   broker.NewKiteNormalizer(),
		log:    log,
		now:    o.now,
	}
}

func (a *Adapter) Type() broker.Type { return broker.Zerodha }

func (a *Adapter) LoginURL() string { return a.client.LoginURL() }

func (a *Adapter) CreateSession(ctx context.Context, artifact broker.AuthArtifact) (model.Session, error) {
	const op = "createSession"
	token := strings.TrimSpace(artifact.RequestToken)
	if token == "" {
		return model.Session{}, a.fail(tradeerr.New(tradeerr.ErrAuth, op, "request token is required"))
	}

	us, err := a.client.GenerateSession(ctx, token, a.creds.APISecret)
	if err != nil {
		return model.Session{}, a.fail(mapAuthError(op, err))
	}

	login := a.now()
	if us.LoginTime != "" {
		if t, err := markethours.ParseIST(kiteconnect.TimeLayout, us.LoginTime); err == nil {
			login = t
		}
	}
	sess := model.Session{
		Broker:       broker.Zerodha,
		UserID:       us.UserID,
		UserName:     us.UserName,
		AccessToken:  us.AccessToken,
		RefreshToken: us.RefreshToken,
		LoginTime:    login,
		ExpiresAt:    markethours.KiteSessionExpiry(login),
	}

	a.mu.Lock()
	a.session = sess
	a.active = true
	a.mu.Unlock()

	a.log.Info("session created", "user_id", sess.UserID, "expires_at", sess.ExpiresAt)
	return sess, nil
}

// UseSession restores a previously created session (e.g. loaded from a store).
func (a *Adapter) UseSession(s model.Session) {
	a.client.SetAccessToken(s.AccessToken)
	a.mu.Lock()
	a.session = s
	a.active = true
	a.mu.Unlock()
}

func (a *Adapter) Session() (model.Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.session, a.active
}

func (a *Adapter) requireSession(op string) error {
	s, ok := a.Session()
	if !ok {
		return a.fail(tradeerr.New(tradeerr.ErrAuth, op, "no session, log in first"))
	}
	if s.Expired(a.now()) {
		return a.fail(tradeerr.New(tradeerr.ErrAuth, op, "session expired at %s", s.ExpiresAt.Format(time.RFC3339)))
	}
	return nil
}

func (a *Adapter) fail(err error) error {
	return tradeerr.WithBroker(err, string(broker.Zerodha))
}

func (a *Adapter) ToUnifiedSymbol(native, exchange string) string {
	return a.norm.ToUnified(native, exchange)
}

func (a *Adapter) ToBrokerSymbol(symbol, exchange string) string {
	return a.norm.ToBroker(symbol, exchange)
}

// DownloadCatalog keeps NSE/BSE equities and indices. Index rows are moved to
// the *_INDEX exchange and given canonical names.
func (a *Adapter) DownloadCatalog(ctx context.Context) ([]model.UnifiedSymbol, error) {
	rows, skipped, err := a.client.GetInstruments(ctx)
	if err != nil {
		return nil, a.fail(mapError("downloadCatalog", err))
	}

	out := make([]model.UnifiedSymbol, 0, len(rows)/4)
	for _, r := range rows {
		if u, ok := a.unify(r); ok {
			out = append(out, u)
		}
	}
	a.log.Info("catalog downloaded", "rows", len(rows), "kept", len(out), "skipped", skipped)
	return out, nil
}

func (a *Adapter) unify(r kiteconnect.Instrument) (model.UnifiedSymbol, bool) {
	if r.Exchange != model.ExchangeNSE && r.Exchange != model.ExchangeBSE {
		return model.UnifiedSymbol{}, false
	}
	u := model.UnifiedSymbol{
		Name:         r.Name,
		Broker:       broker.Zerodha,
		BrokerSymbol: r.TradingSymbol,
		BrokerToken:  r.InstrumentToken,
		LotSize:      r.LotSize,
		TickSize:     r.TickSize,
	}
	switch {
	case r.Segment == "INDICES":
		u.Exchange = model.IndexExchange(r.Exchange)
		u.InstrumentType = model.InstrumentIndex
	case r.InstrumentType == "EQ":
		u.Exchange = r.Exchange
		u.InstrumentType = model.InstrumentEquity
	default:
		return model.UnifiedSymbol{}, false
	}
	u.Symbol = a.norm.ToUnified(r.TradingSymbol, u.Exchange)
	if r.Expiry != "" {
		if t, err := markethours.ParseIST("2006-01-02", r.Expiry); err == nil {
			u.Expiry = &t
		}
	}
	if r.Strike > 0 {
		strike := r.Strike
		u.Strike = &strike
	}
	return u, true
}

// brokerKeys maps "NSE:NIFTY 50" style keys back to Instrument.Key().
func (a *Adapter) brokerKeys(instruments []model.Instrument) ([]string, map[string]string) {
	keys := make([]string, 0, len(instruments))
	back := make(map[string]string, len(instruments))
	for _, in := range instruments {
		k := model.InstrumentKey(model.BaseExchange(in.Exchange), a.norm.ToBroker(in.Symbol, in.Exchange))
		if _, dup := back[k]; dup {
			continue
		}
		back[k] = in.Key()
		keys = append(keys, k)
	}
	return keys, back
}

func (a *Adapter) GetQuotes(ctx context.Context, instruments []model.Instrument) (map[string]model.Quote, error) {
	const op = "getQuotes"
	if err := a.requireSession(op); err != nil {
		return nil, err
	}
	keys, back := a.brokerKeys(instruments)
	out := make(map[string]model.Quote, len(keys))
	for _, chunk := range broker.Chunk(keys, kiteconnect.MaxQuoteInstruments) {
		quotes, err := a.client.GetQuote(ctx, chunk...)
		if err != nil {
			return nil, a.fail(mapError(op, err))
		}
		for bk, q := range quotes {
			key, ok := back[bk]
			if !ok {
				continue
			}
			ex, sym, _ := strings.Cut(key, ":")
			mq := model.Quote{
				Symbol:    sym,
				Exchange:  ex,
				LastPrice: q.LastPrice,
				Open:      q.OHLC.Open,
				High:      q.OHLC.High,
				Low:       q.OHLC.Low,
				Close:     q.OHLC.Close,
				Volume:    q.Volume,
			}
			if ts, err := markethours.ParseIST(kiteconnect.TimeLayout, q.Timestamp); err == nil {
				mq.Timestamp = ts
			}
			out[key] = mq
		}
	}
	return out, nil
}

func (a *Adapter) GetLTP(ctx context.Context, instruments []model.Instrument) (map[string]float64, error) {
	const op = "getLTP"
	if err := a.requireSession(op); err != nil {
		return nil, err
	}
	keys, back := a.brokerKeys(instruments)
	out := make(map[string]float64, len(keys))
	for _, chunk := range broker.Chunk(keys, kiteconnect.MaxLTPInstruments) {
		ltps, err := a.client.GetLTP(ctx, chunk...)
		if err != nil {
			return nil, a.fail(mapError(op, err))
		}
		for bk, l := range ltps {
			if key, ok := back[bk]; ok {
				out[key] = l.LastPrice
			}
		}
	}
	return out, nil
}

func kiteVariety(v string) string {
	switch v {
	case model.VarietyAMO:
		return kiteconnect.VarietyAMO
	default:
		return kiteconnect.VarietyRegular
	}
}

func (a *Adapter) orderParams(o model.Order) (kiteconnect.OrderParams, error) {
	product := o.Product
	if product == "" {
		product = model.ProductDelivery
	}
	kp, ok := productToKite[product]
	if !ok {
		return kiteconnect.OrderParams{}, fmt.Errorf("unknown product %q", o.Product)
	}
	validity := o.Validity
	if validity == "" {
		validity = model.ValidityDay
	}
	return kiteconnect.OrderParams{
		Exchange:        o.Exchange,
		TradingSymbol:   a.norm.ToBroker(o.Symbol, o.Exchange),
		TransactionType: o.TransactionType,
		OrderType:       o.OrderType,
		Product:         kp,
		Validity:        validity,
		Quantity:        o.Quantity,
		Price:           o.Price,
		TriggerPrice:    o.TriggerPrice,
		Tag:             o.Tag,
	}, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, o model.Order) (model.OrderResult, error) {
	const op = "placeOrder"
	if err := o.Validate(); err != nil {
		return model.OrderResult{}, a.fail(tradeerr.Wrap(tradeerr.ErrValidation, op, err))
	}
	p, err := a.orderParams(o)
	if err != nil {
		return model.OrderResult{}, a.fail(tradeerr.Wrap(tradeerr.ErrValidation, op, err))
	}
	if err := a.requireSession(op); err != nil {
		return model.OrderResult{}, err
	}

	resp, err := a.client.PlaceOrder(ctx, kiteVariety(o.Variety), p)
	if err != nil {
		return model.OrderResult{}, a.fail(mapOrderError(op, err))
	}
	a.log.Info("order placed", append(logger.LogWithBatch(ctx),
		"order_id", resp.OrderID, "symbol", o.Symbol, "side", o.TransactionType, "qty", o.Quantity)...)
	return model.OrderResult{OrderID: resp.OrderID, Status: model.StatusPlaced}, nil
}

func (a *Adapter) ModifyOrder(ctx context.Context, orderID string, u model.OrderUpdate) (model.OrderResult, error) {
	const op = "modifyOrder"
	if orderID == "" {
		return model.OrderResult{}, a.fail(tradeerr.Validation(op, "order id is required"))
	}
	p := kiteconnect.OrderParams{
		OrderType:    u.OrderType,
		Validity:     u.Validity,
		Quantity:     u.Quantity,
		Price:        u.Price,
		TriggerPrice: u.TriggerPrice,
	}
	if u.Product != "" {
		p.Product = productToKite[u.Product]
	}
	if err := a.requireSession(op); err != nil {
		return model.OrderResult{}, err
	}
	resp, err := a.client.ModifyOrder(ctx, kiteVariety(u.Variety), orderID, p)
	if err != nil {
		return model.OrderResult{}, a.fail(mapOrderError(op, err))
	}
	return model.OrderResult{OrderID: firstNonEmpty(resp.OrderID, orderID), Status: model.StatusModified}, nil
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID, variety string) (model.OrderResult, error) {
	const op = "cancelOrder"
	if orderID == "" {
		return model.OrderResult{}, a.fail(tradeerr.Validation(op, "order id is required"))
	}
	if err := a.requireSession(op); err != nil {
		return model.OrderResult{}, err
	}
	resp, err := a.client.CancelOrder(ctx, kiteVariety(variety), orderID)
	if err != nil {
		return model.OrderResult{}, a.fail(mapOrderError(op, err))
	}
	return model.OrderResult{OrderID: firstNonEmpty(resp.OrderID, orderID), Status: model.StatusCancelled}, nil
}

func (a *Adapter) GetOrders(ctx context.Context) ([]model.OrderStatus, error) {
	const op = "getOrders"
	if err := a.requireSession(op); err != nil {
		return nil, err
	}
	orders, err := a.client.GetOrders(ctx)
	if err != nil {
		return nil, a.fail(mapError(op, err))
	}
	out := make([]model.OrderStatus, 0, len(orders))
	for _, o := range orders {
		s := model.OrderStatus{
			OrderID:         o.OrderID,
			Symbol:          a.norm.ToUnified(o.TradingSymbol, o.Exchange),
			Exchange:        o.Exchange,
			TransactionType: o.TransactionType,
			OrderType:       o.OrderType,
			Product:         firstNonEmpty(productFromKite[o.Product], o.Product),
			Variety:         strings.ToUpper(o.Variety),
			Quantity:        o.Quantity,
			FilledQuantity:  o.FilledQuantity,
			Price:           o.Price,
			TriggerPrice:    o.TriggerPrice,
			AveragePrice:    o.AveragePrice,
			Status:          strings.ToUpper(o.Status),
			StatusMessage:   o.StatusMessage,
			Tag:             o.Tag,
		}
		if t, err := markethours.ParseIST(kiteconnect.TimeLayout, o.OrderTimestamp); err == nil {
			s.PlacedAt = t
		}
		out = append(out, s)
	}
	return out, nil
}

func (a *Adapter) GetHoldings(ctx context.Context) ([]model.Holding, error) {
	const op = "getHoldings"
	if err := a.requireSession(op); err != nil {
		return nil, err
	}
	rows, err := a.client.GetHoldings(ctx)
	if err != nil {
		return nil, a.fail(mapError(op, err))
	}
	out := make([]model.Holding, 0, len(rows))
	for _, h := range rows {
		out = append(out, model.Holding{
			Symbol:       a.norm.ToUnified(h.TradingSymbol, h.Exchange),
			Exchange:     h.Exchange,
			ISIN:         h.ISIN,
			SymbolToken:  fmt.Sprint(h.InstrumentToken),
			Quantity:     h.Quantity + h.T1Quantity,
			AveragePrice: h.AveragePrice,
			LastPrice:    h.LastPrice,
		})
	}
	return out, nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]model.Position, error) {
	const op = "getPositions"
	if err := a.requireSession(op); err != nil {
		return nil, err
	}
	pos, err := a.client.GetPositions(ctx)
	if err != nil {
		return nil, a.fail(mapError(op, err))
	}
	out := make([]model.Position, 0, len(pos.Net))
	for _, p := range pos.Net {
		out = append(out, model.Position{
			Symbol:       a.norm.ToUnified(p.TradingSymbol, p.Exchange),
			Exchange:     p.Exchange,
			Product:      firstNonEmpty(productFromKite[p.Product], p.Product),
			Quantity:     p.Quantity,
			AveragePrice: p.AveragePrice,
			LastPrice:    p.LastPrice,
			PnL:          p.PnL,
		})
	}
	return out, nil
}

func (a *Adapter) GetFunds(ctx context.Context) (model.Funds, error) {
	const op = "getFunds"
	if err := a.requireSession(op); err != nil {
		return model.Funds{}, err
	}
	m, err := a.client.GetUserMargins(ctx)
	if err != nil {
		return model.Funds{}, a.fail(mapError(op, err))
	}
	return model.Funds{
		AvailableCash: m.Equity.Available.Cash,
		UsedMargin:    m.Equity.Utilised.Debits,
		Net:           m.Equity.Net,
	}, nil
}

func (a *Adapter) GetProfile(ctx context.Context) (model.Profile, error) {
	const op = "getProfile"
	if err := a.requireSession(op); err != nil {
		return model.Profile{}, err
	}
	p, err := a.client.GetUserProfile(ctx)
	if err != nil {
		return model.Profile{}, a.fail(mapError(op, err))
	}
	return model.Profile{Broker: broker.Zerodha, UserID: p.UserID, Name: p.UserName, Email: p.Email}, nil
}

// Close releases the HTTP client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// ---- error mapping ----

// mapError classifies a client error for read-style calls.
func mapError(op string, err error) error {
	var apiErr *kiteconnect.APIError
	if !errors.As(err, &apiErr) {
		return tradeerr.Wrap(tradeerr.ErrNetwork, op, err)
	}
	switch {
	case apiErr.HTTPStatus == http.StatusTooManyRequests:
		return tradeerr.Wrap(tradeerr.ErrRateLimit, op, err)
	case apiErr.ErrorType == "TokenException" || apiErr.ErrorType == "PermissionException":
		return tradeerr.Wrap(tradeerr.ErrAuth, op, err)
	case apiErr.ErrorType == "NetworkException" || apiErr.HTTPStatus >= 500:
		return tradeerr.Wrap(tradeerr.ErrNetwork, op, err)
	case apiErr.ErrorType == "InputException":
		return tradeerr.Wrap(tradeerr.ErrValidation, op, err)
	default:
		return tradeerr.Wrap(tradeerr.ErrRejected, op, err)
	}
}

// mapOrderError is mapError with business failures reported as rejections.
func mapOrderError(op string, err error) error {
	mapped := mapError(op, err)
	if errors.Is(mapped, tradeerr.ErrValidation) {
		return tradeerr.Wrap(tradeerr.ErrRejected, op, err)
	}
	return mapped
}

// mapAuthError reports every handshake failure except transport trouble as auth.
func mapAuthError(op string, err error) error {
	mapped := mapError(op, err)
	if errors.Is(mapped, tradeerr.ErrNetwork) || errors.Is(mapped, tradeerr.ErrRateLimit) {
		return mapped
	}
	return tradeerr.Wrap(tradeerr.ErrAuth, op, err)
}

var _ broker.Broker = (*Adapter)(nil)
