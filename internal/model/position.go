package model

// Holding is a delivery holding in the demat account.
type Holding struct {
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	ISIN         string  `json:"isin,omitempty"`
	SymbolToken  string  `json:"symbolToken,omitempty"`
	Quantity     int64   `json:"quantity"`
	AveragePrice float64 `json:"averagePrice"`
	LastPrice    float64 `json:"lastPrice"`
}

// Value is the holding's market value at LastPrice.
func (h *Holding) Value() float64 {
	return float64(h.Quantity) * h.LastPrice
}

// PnL is the unrealized profit/loss in rupees.
func (h *Holding) PnL() float64 {
	return (h.LastPrice - h.AveragePrice) * float64(h.Quantity)
}

// PnLPct is PnL relative to invested value. Returns 0 for an empty cost basis.
func (h *Holding) PnLPct() float64 {
	invested := h.AveragePrice * float64(h.Quantity)
	if invested == 0 {
		return 0
	}
	return h.PnL() / invested * 100
}

// Key returns "EXCHANGE:SYMBOL".
func (h *Holding) Key() string {
	return InstrumentKey(h.Exchange, h.Symbol)
}

// Position is a net (intraday or carry-forward) position.
type Position struct {
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	Product      string  `json:"product"`
	Quantity     int64   `json:"quantity"` // positive = long, negative = short
	AveragePrice float64 `json:"averagePrice"`
	LastPrice    float64 `json:"lastPrice"`
	PnL          float64 `json:"pnl"`
}

// Key returns "EXCHANGE:SYMBOL".
func (p *Position) Key() string {
	return InstrumentKey(p.Exchange, p.Symbol)
}

// Funds summarizes the equity margin account.
type Funds struct {
	AvailableCash float64 `json:"availableCash"`
	UsedMargin    float64 `json:"usedMargin"`
	Net           float64 `json:"net"`
}

// Profile is the logged-in user's identity as reported by the broker.
type Profile struct {
	Broker BrokerType `json:"broker"`
	UserID string     `json:"userId"`
	Name   string     `json:"name"`
	Email  string     `json:"email,omitempty"`
}
