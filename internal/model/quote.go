package model

import "time"

// Quote is a point-in-time market snapshot. Fetched on demand, never cached.
type Quote struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	LastPrice float64   `json:"lastPrice"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Key returns "EXCHANGE:SYMBOL".
func (q *Quote) Key() string {
	return InstrumentKey(q.Exchange, q.Symbol)
}

// Prices flattens a quote map into last prices, keeping the same keys.
func Prices(quotes map[string]Quote) map[string]float64 {
	out := make(map[string]float64, len(quotes))
	for k, q := range quotes {
		out[k] = q.LastPrice
	}
	return out
}
