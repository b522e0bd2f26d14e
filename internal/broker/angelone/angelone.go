// Package angelone adapts the SmartAPI to the broker.Broker contract.
//
// Login is challenge based: client code, MPIN and a fresh TOTP are posted
// directly and the returned JWT is valid until midnight IST. Orders and quotes
// address instruments by numeric symbol token, resolved from the catalog.
package angelone

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"basket-trading/internal/broker"
	"basket-trading/internal/logger"
	"basket-trading/internal/markethours"
	"basket-trading/internal/model"
	"basket-trading/internal/tradeerr"
	"basket-trading/pkg/smartconnect"
)

// OrdersPerSecond is SmartAPI's documented order placement limit.
const OrdersPerSecond = 20

// Error codes SmartAPI returns for bad or expired credentials.
var authErrorCodes = map[string]bool{
	"AG8001": true, // invalid token
	"AG8002": true, // token expired
	"AG8003": true, // token missing
	"AB1010": true, // session expired
	"AB8050": true, // invalid refresh token
	"AB8051": true, // refresh token expired
	"AB1050": true, // invalid totp
}

var productToAngel = map[string]string{
	model.ProductDelivery: "DELIVERY",
	model.ProductIntraday: "INTRADAY",
	model.ProductMargin:   "CARRYFORWARD",
}

var productFromAngel = map[string]string{
	"DELIVERY":     model.ProductDelivery,
	"INTRADAY":     model.ProductIntraday,
	"CARRYFORWARD": model.ProductMargin,
}

var orderTypeToAngel = map[string]string{
	model.OrderTypeMarket: "MARKET",
	model.OrderTypeLimit:  "LIMIT",
	model.OrderTypeSL:     "STOPLOSS_LIMIT",
	model.OrderTypeSLM:    "STOPLOSS_MARKET",
}

var orderTypeFromAngel = map[string]string{
	"MARKET":          model.OrderTypeMarket,
	"LIMIT":           model.OrderTypeLimit,
	"STOPLOSS_LIMIT":  model.OrderTypeSL,
	"STOPLOSS_MARKET": model.OrderTypeSLM,
}

// Adapter is one account's SmartAPI session. Not safe to share across accounts.
type Adapter struct {
	creds  broker.Credentials
	client *smartconnect.SmartConnect
	norm   *broker.Normalizer
	log    *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	session model.Session
	active  bool

	catMu  sync.RWMutex
	tokens map[string]string // Instrument.Key() -> symbol token
}

type options struct {
	cfg     smartconnect.Config
	log     *slog.Logger
	now     func() time.Time
	catalog []model.UnifiedSymbol
}

// Option configures an Adapter.
type Option func(*options)

// WithBaseURL points the adapter at a different API root (tests, sandboxes).
func WithBaseURL(root string) Option {
	return func(o *options) { o.cfg.RootURL = root }
}

// WithScripMasterURL overrides the instrument master location.
func WithScripMasterURL(u string) Option {
	return func(o *options) { o.cfg.ScripMasterURL = u }
}

// WithTransport replaces the HTTP transport (e.g. an instrumented RoundTripper).
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.cfg.HTTPTransport = rt }
}

// WithLogger sets the adapter logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock overrides time.Now for TOTP generation and session expiry.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithCatalog seeds the symbol token index, e.g. from a stored catalog, so
// orders and quotes work without a fresh download.
func WithCatalog(rows []model.UnifiedSymbol) Option {
	return func(o *options) { o.catalog = rows }
}

// New builds an adapter. Credentials must already be validated.
func New(creds broker.Credentials, opts ...Option) *Adapter {
	o := options{log: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With(slog.String("broker", string(broker.AngelOne)))
	o.cfg.APIKey = creds.APIKey
	o.cfg.Logger = logger.Resty(log)

	a := &Adapter{
		creds:  creds,
		client: smartconnect.NewSmartConnect(o.cfg),
		norm:   broker.NewAngelNormalizer(),
		log:    log,
		now:    o.now,
		tokens: map[string]string{},
	}
	if len(o.catalog) > 0 {
		a.indexCatalog(o.catalog)
	}
	return a
}

func (a *Adapter) Type() broker.Type { return broker.AngelOne }

func (a *Adapter) LoginURL() string { return a.client.LoginURL() }

// oneTimeCode picks the artifact's code, then the stored code, then derives
// one from the TOTP secret.
func (a *Adapter) oneTimeCode(artifact broker.AuthArtifact) (string, error) {
	if c := strings.TrimSpace(artifact.TOTP); c != "" {
		return c, nil
	}
	if c := strings.TrimSpace(a.creds.TOTP); c != "" {
		return c, nil
	}
	if a.creds.TOTPSecret != "" {
		return smartconnect.GenerateTOTP(a.creds.TOTPSecret, a.now())
	}
	return "", errors.New("no one-time code or TOTP secret available")
}

func (a *Adapter) CreateSession(ctx context.Context, artifact broker.AuthArtifact) (model.Session, error) {
	const op = "createSession"
	code, err := a.oneTimeCode(artifact)
	if err != nil {
		return model.Session{}, a.fail(tradeerr.Wrap(tradeerr.ErrAuth, op, err))
	}

	data, err := a.client.GenerateSession(ctx, a.creds.ClientCode, a.creds.MPIN, code)
	if err != nil {
		return model.Session{}, a.fail(mapAuthError(op, err))
	}

	login := a.now()
	sess := model.Session{
		Broker:       broker.AngelOne,
		UserID:       a.creds.ClientCode,
		AccessToken:  a.client.AccessToken(),
		RefreshToken: data.RefreshToken,
		FeedToken:    data.FeedToken,
		LoginTime:    login,
		ExpiresAt:    markethours.MidnightExpiry(login),
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
	return tradeerr.WithBroker(err, string(broker.AngelOne))
}

func (a *Adapter) ToUnifiedSymbol(native, exchange string) string {
	return a.norm.ToUnified(native, exchange)
}

func (a *Adapter) ToBrokerSymbol(symbol, exchange string) string {
	return a.norm.ToBroker(symbol, exchange)
}

// ---- catalog ----

// DownloadCatalog keeps NSE/BSE equities and AMXIDX indices. Malformed rows
// are skipped. The token index is replaced with the new download.
func (a *Adapter) DownloadCatalog(ctx context.Context) ([]model.UnifiedSymbol, error) {
	rows, err := a.client.ScripMaster(ctx)
	if err != nil {
		return nil, a.fail(mapError("downloadCatalog", err))
	}

	out := make([]model.UnifiedSymbol, 0, len(rows)/8)
	skipped := 0
	for _, r := range rows {
		if r.Invalid {
			skipped++
			continue
		}
		if u, ok := a.unify(r); ok {
			out = append(out, u)
		}
	}
	a.indexCatalog(out)
	a.log.Info("catalog downloaded", "rows", len(rows), "kept", len(out), "skipped", skipped)
	return out, nil
}

func (a *Adapter) unify(r smartconnect.ScripRow) (model.UnifiedSymbol, bool) {
	if r.ExchSeg != model.ExchangeNSE && r.ExchSeg != model.ExchangeBSE {
		return model.UnifiedSymbol{}, false
	}
	if r.Token == "" || r.Symbol == "" {
		return model.UnifiedSymbol{}, false
	}
	u := model.UnifiedSymbol{
		Name:         r.Name,
		Broker:       broker.AngelOne,
		BrokerSymbol: r.Symbol,
		BrokerToken:  r.Token,
		LotSize:      int(r.LotSize),
		TickSize:     r.TickSize.Float64() / 100,
	}
	switch r.InstrumentType {
	case "AMXIDX":
		u.Exchange = model.IndexExchange(r.ExchSeg)
		u.InstrumentType = model.InstrumentIndex
		native := r.Symbol
		if !a.norm.IsIndexName(native) && a.norm.IsIndexName(r.Name) {
			native = r.Name
		}
		u.Symbol = a.norm.ToUnified(native, u.Exchange)
		u.BrokerSymbol = native
	case "":
		if r.ExchSeg == model.ExchangeNSE && a.norm.StripSuffix(r.Symbol) == r.Symbol {
			// NSE cash rows without a series suffix are bonds, ETFs' iNAV and the like.
			return model.UnifiedSymbol{}, false
		}
		u.Exchange = r.ExchSeg
		u.InstrumentType = model.InstrumentEquity
		u.Symbol = a.norm.ToUnified(r.Symbol, u.Exchange)
	default:
		return model.UnifiedSymbol{}, false
	}
	if strike := r.Strike.Float64(); strike > 0 {
		s := strike / 100
		u.Strike = &s
	}
	if r.Expiry != "" {
		if t, err := markethours.ParseIST("02Jan2006", r.Expiry); err == nil {
			u.Expiry = &t
		}
	}
	return u, true
}

// indexCatalog replaces the token index. Equities win over later duplicates
// with other series suffixes (SBIN-EQ before SBIN-BE).
func (a *Adapter) indexCatalog(rows []model.UnifiedSymbol) {
	idx := make(map[string]string, len(rows))
	for _, r := range rows {
		key := model.InstrumentKey(r.Exchange, r.Symbol)
		if prev, ok := idx[key]; ok && prev != "" && !strings.HasSuffix(r.BrokerSymbol, "-EQ") {
			continue
		}
		idx[key] = r.BrokerToken
	}
	a.catMu.Lock()
	a.tokens = idx
	a.catMu.Unlock()
}

// Token returns the symbol token for a canonical instrument.
func (a *Adapter) Token(in model.Instrument) (string, bool) {
	a.catMu.RLock()
	defer a.catMu.RUnlock()
	t, ok := a.tokens[in.Key()]
	return t, ok
}

// ---- market data ----

type tokenRef struct {
	exchange string // base exchange as SmartAPI expects
	token    string
}

func (a *Adapter) marketData(ctx context.Context, op, mode string, instruments []model.Instrument) (map[string]smartconnect.MarketQuote, error) {
	if err := a.requireSession(op); err != nil {
		return nil, err
	}

	refs := make([]tokenRef, 0, len(instruments))
	back := make(map[tokenRef]string, len(instruments))
	for _, in := range instruments {
		tok, ok := a.Token(in)
		if !ok {
			a.log.Warn("no symbol token, skipping", "op", op, "instrument", in.Key())
			continue
		}
		ref := tokenRef{exchange: model.BaseExchange(in.Exchange), token: tok}
		if _, dup := back[ref]; dup {
			continue
		}
		back[ref] = in.Key()
		refs = append(refs, ref)
	}

	out := make(map[string]smartconnect.MarketQuote, len(refs))
	for _, chunk := range broker.Chunk(refs, smartconnect.MaxMarketDataTokens) {
		req := map[string][]string{}
		for _, r := range chunk {
			req[r.exchange] = append(req[r.exchange], r.token)
		}
		md, err := a.client.GetMarketData(ctx, mode, req)
		if err != nil {
			return nil, a.fail(mapError(op, err))
		}
		for _, q := range md.Fetched {
			if key, ok := back[tokenRef{exchange: q.Exchange, token: q.SymbolToken}]; ok {
				out[key] = q
			}
		}
		if len(md.Unfetched) > 0 {
			a.log.Warn("quotes not fetched", "op", op, "count", len(md.Unfetched))
		}
	}
	return out, nil
}

func (a *Adapter) GetQuotes(ctx context.Context, instruments []model.Instrument) (map[string]model.Quote, error) {
	raw, err := a.marketData(ctx, "getQuotes", smartconnect.ModeFull, instruments)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Quote, len(raw))
	for key, q := range raw {
		ex, sym, _ := strings.Cut(key, ":")
		mq := model.Quote{
			Symbol:    sym,
			Exchange:  ex,
			LastPrice: q.LTP.Float64(),
			Open:      q.Open.Float64(),
			High:      q.High.Float64(),
			Low:       q.Low.Float64(),
			Close:     q.Close.Float64(),
			Volume:    int64(q.TradeVolume),
		}
		if ts, err := markethours.ParseIST(smartconnect.FeedTimeLayout, q.ExchFeedTime); err == nil {
			mq.Timestamp = ts
		}
		out[key] = mq
	}
	return out, nil
}

func (a *Adapter) GetLTP(ctx context.Context, instruments []model.Instrument) (map[string]float64, error) {
	raw, err := a.marketData(ctx, "getLTP", smartconnect.ModeLTP, instruments)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for key, q := range raw {
		out[key] = q.LTP.Float64()
	}
	return out, nil
}

// ---- orders ----

func angelVariety(variety, orderType string) string {
	switch variety {
	case model.VarietyAMO:
		return "AMO"
	case model.VarietyStopLoss:
		return "STOPLOSS"
	case "":
		if orderType == model.OrderTypeSL || orderType == model.OrderTypeSLM {
			return "STOPLOSS"
		}
	}
	return "NORMAL"
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

func (a *Adapter) resolveToken(op string, o model.Order) (string, error) {
	if o.SymbolToken != "" {
		return o.SymbolToken, nil
	}
	if tok, ok := a.Token(o.Instrument()); ok {
		return tok, nil
	}
	return "", tradeerr.Validation(op, "no symbol token for %s, download the catalog first", o.Instrument().Key())
}

func (a *Adapter) PlaceOrder(ctx context.Context, o model.Order) (model.OrderResult, error) {
	const op = "placeOrder"
	if err := o.Validate(); err != nil {
		return model.OrderResult{}, a.fail(tradeerr.Wrap(tradeerr.ErrValidation, op, err))
	}
	product := o.Product
	if product == "" {
		product = model.ProductDelivery
	}
	ap, ok := productToAngel[product]
	if !ok {
		return model.OrderResult{}, a.fail(tradeerr.Validation(op, "unknown product %q", o.Product))
	}
	token, err := a.resolveToken(op, o)
	if err != nil {
		return model.OrderResult{}, a.fail(err)
	}
	if err := a.requireSession(op); err != nil {
		return model.OrderResult{}, err
	}

	validity := o.Validity
	if validity == "" {
		validity = model.ValidityDay
	}
	params := smartconnect.OrderParams{
		Variety:         angelVariety(o.Variety, o.OrderType),
		TradingSymbol:   a.norm.ToBroker(o.Symbol, o.Exchange),
		SymbolToken:     token,
		TransactionType: o.TransactionType,
		Exchange:        o.Exchange,
		OrderType:       orderTypeToAngel[o.OrderType],
		ProductType:     ap,
		Duration:        validity,
		Price:           formatPrice(o.Price),
		Quantity:        strconv.FormatInt(o.Quantity, 10),
		OrderTag:        o.Tag,
	}
	if o.TriggerPrice > 0 {
		params.TriggerPrice = formatPrice(o.TriggerPrice)
	}

	resp, err := a.client.PlaceOrder(ctx, params)
	if err != nil {
		return model.OrderResult{}, a.fail(mapError(op, err))
	}
	id := firstNonEmpty(resp.OrderID, resp.UniqueOrderID)
	a.log.Info("order placed", append(logger.LogWithBatch(ctx),
		"order_id", id, "symbol", o.Symbol, "side", o.TransactionType, "qty", o.Quantity)...)
	return model.OrderResult{OrderID: id, Status: model.StatusPlaced}, nil
}

func (a *Adapter) ModifyOrder(ctx context.Context, orderID string, u model.OrderUpdate) (model.OrderResult, error) {
	const op = "modifyOrder"
	if orderID == "" {
		return model.OrderResult{}, a.fail(tradeerr.Validation(op, "order id is required"))
	}
	if u.Symbol == "" || u.Exchange == "" || u.Quantity <= 0 {
		return model.OrderResult{}, a.fail(tradeerr.Validation(op, "symbol, exchange and quantity are required"))
	}
	token := u.SymbolToken
	if token == "" {
		t, ok := a.Token(model.Instrument{Exchange: u.Exchange, Symbol: u.Symbol})
		if !ok {
			return model.OrderResult{}, a.fail(tradeerr.Validation(op, "no symbol token for %s", model.InstrumentKey(u.Exchange, u.Symbol)))
		}
		token = t
	}
	if err := a.requireSession(op); err != nil {
		return model.OrderResult{}, err
	}

	orderType := firstNonEmpty(u.OrderType, model.OrderTypeLimit)
	params := smartconnect.ModifyParams{
		Variety:       angelVariety(u.Variety, orderType),
		OrderID:       orderID,
		OrderType:     orderTypeToAngel[orderType],
		ProductType:   productToAngel[firstNonEmpty(u.Product, model.ProductDelivery)],
		Duration:      firstNonEmpty(u.Validity, model.ValidityDay),
		Price:         formatPrice(u.Price),
		Quantity:      strconv.FormatInt(u.Quantity, 10),
		TradingSymbol: a.norm.ToBroker(u.Symbol, u.Exchange),
		SymbolToken:   token,
		Exchange:      u.Exchange,
	}
	if u.TriggerPrice > 0 {
		params.TriggerPrice = formatPrice(u.TriggerPrice)
	}
	resp, err := a.client.ModifyOrder(ctx, params)
	if err != nil {
		return model.OrderResult{}, a.fail(mapError(op, err))
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
	resp, err := a.client.CancelOrder(ctx, angelVariety(variety, ""), orderID)
	if err != nil {
		return model.OrderResult{}, a.fail(mapError(op, err))
	}
	return model.OrderResult{OrderID: firstNonEmpty(resp.OrderID, orderID), Status: model.StatusCancelled}, nil
}

func (a *Adapter) GetOrders(ctx context.Context) ([]model.OrderStatus, error) {
	const op = "getOrders"
	if err := a.requireSession(op); err != nil {
		return nil, err
	}
	rows, err := a.client.OrderBook(ctx)
	if err != nil {
		return nil, a.fail(mapError(op, err))
	}
	out := make([]model.OrderStatus, 0, len(rows))
	for _, o := range rows {
		s := model.OrderStatus{
			OrderID:         o.OrderID,
			Symbol:          a.norm.ToUnified(o.TradingSymbol, o.Exchange),
			Exchange:        o.Exchange,
			TransactionType: o.TransactionType,
			OrderType:       firstNonEmpty(orderTypeFromAngel[o.OrderType], o.OrderType),
			Product:         firstNonEmpty(productFromAngel[o.ProductType], o.ProductType),
			Variety:         o.Variety,
			Quantity:        int64(o.Quantity),
			FilledQuantity:  int64(o.FilledShares),
			Price:           o.Price.Float64(),
			TriggerPrice:    o.TriggerPrice.Float64(),
			AveragePrice:    o.AveragePrice.Float64(),
			Status:          strings.ToUpper(firstNonEmpty(o.OrderStatus, o.Status)),
			StatusMessage:   o.Text,
			Tag:             o.OrderTag,
		}
		if t, err := markethours.ParseIST(smartconnect.FeedTimeLayout, o.UpdateTime); err == nil {
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
	rows, err := a.client.Holding(ctx)
	if err != nil {
		return nil, a.fail(mapError(op, err))
	}
	out := make([]model.Holding, 0, len(rows))
	for _, h := range rows {
		out = append(out, model.Holding{
			Symbol:       a.norm.ToUnified(h.TradingSymbol, h.Exchange),
			Exchange:     h.Exchange,
			ISIN:         h.ISIN,
			SymbolToken:  h.SymbolToken,
			Quantity:     int64(h.Quantity) + int64(h.T1Quantity),
			AveragePrice: h.AveragePrice.Float64(),
			LastPrice:    h.LTP.Float64(),
		})
	}
	return out, nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]model.Position, error) {
	const op = "getPositions"
	if err := a.requireSession(op); err != nil {
		return nil, err
	}
	rows, err := a.client.Position(ctx)
	if err != nil {
		return nil, a.fail(mapError(op, err))
	}
	out := make([]model.Position, 0, len(rows))
	for _, p := range rows {
		out = append(out, model.Position{
			Symbol:       a.norm.ToUnified(p.TradingSymbol, p.Exchange),
			Exchange:     p.Exchange,
			Product:      firstNonEmpty(productFromAngel[p.ProductType], p.ProductType),
			Quantity:     int64(p.NetQty),
			AveragePrice: p.AvgNetPrice.Float64(),
			LastPrice:    p.LTP.Float64(),
			PnL:          p.PnL.Float64(),
		})
	}
	return out, nil
}

func (a *Adapter) GetFunds(ctx context.Context) (model.Funds, error) {
	const op = "getFunds"
	if err := a.requireSession(op); err != nil {
		return model.Funds{}, err
	}
	rms, err := a.client.RMSLimit(ctx)
	if err != nil {
		return model.Funds{}, a.fail(mapError(op, err))
	}
	return model.Funds{
		AvailableCash: rms.AvailableCash.Float64(),
		UsedMargin:    rms.UtilisedDebits.Float64(),
		Net:           rms.Net.Float64(),
	}, nil
}

func (a *Adapter) GetProfile(ctx context.Context) (model.Profile, error) {
	const op = "getProfile"
	if err := a.requireSession(op); err != nil {
		return model.Profile{}, err
	}
	p, err := a.client.GetProfile(ctx)
	if err != nil {
		return model.Profile{}, a.fail(mapError(op, err))
	}
	return model.Profile{Broker: broker.AngelOne, UserID: p.ClientCode, Name: p.Name, Email: p.Email}, nil
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

func mapError(op string, err error) error {
	var apiErr *smartconnect.APIError
	if !errors.As(err, &apiErr) {
		return tradeerr.Wrap(tradeerr.ErrNetwork, op, err)
	}
	switch {
	case apiErr.RateLimited():
		return tradeerr.Wrap(tradeerr.ErrRateLimit, op, err)
	case authErrorCodes[apiErr.Code] || apiErr.HTTPStatus == http.StatusUnauthorized:
		return tradeerr.Wrap(tradeerr.ErrAuth, op, err)
	case apiErr.HTTPStatus >= 500:
		return tradeerr.Wrap(tradeerr.ErrNetwork, op, err)
	default:
		return tradeerr.Wrap(tradeerr.ErrRejected, op, err)
	}
}

func mapAuthError(op string, err error) error {
	mapped := mapError(op, err)
	if errors.Is(mapped, tradeerr.ErrNetwork) || errors.Is(mapped, tradeerr.ErrRateLimit) {
		return mapped
	}
	return tradeerr.Wrap(tradeerr.ErrAuth, op, err)
}

var _ broker.Broker = (*Adapter)(nil)
