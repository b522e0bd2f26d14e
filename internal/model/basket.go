package model

// BasketStock is one weighted member of a basket. Weights across a basket sum
// to 100 and each is strictly positive; callers validate before sizing.
type BasketStock struct {
	Symbol   string  `json:"symbol" yaml:"symbol"`
	Exchange string  `json:"exchange" yaml:"exchange"`
	Weight   float64 `json:"weight" yaml:"weight"` // percent
}

// Key returns "EXCHANGE:SYMBOL".
func (b *BasketStock) Key() string {
	return InstrumentKey(b.Exchange, b.Symbol)
}

// TargetHolding pairs a held quantity with the basket's target weight for the
// same instrument. Quantity may be 0 for a basket member not yet bought.
type TargetHolding struct {
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	Quantity     int64   `json:"quantity"`
	TargetWeight float64 `json:"targetWeight"` // percent
}

// Key returns "EXCHANGE:SYMBOL".
func (t *TargetHolding) Key() string {
	return InstrumentKey(t.Exchange, t.Symbol)
}
