package model

import (
	"strconv"
	"strings"
	"time"
)

// Exchanges understood by the unified catalog. Index rows are re-labelled with
// an _INDEX suffix so NSE:NIFTY (index) never collides with an equity symbol.
const (
	ExchangeNSE      = "NSE"
	ExchangeBSE      = "BSE"
	ExchangeNSEIndex = "NSE_INDEX"
	ExchangeBSEIndex = "BSE_INDEX"

	indexSuffix = "_INDEX"
)

// InstrumentType classifies a unified symbol.
type InstrumentType string

const (
	InstrumentEquity     InstrumentType = "EQUITY"
	InstrumentIndex      InstrumentType = "INDEX"
	InstrumentDerivative InstrumentType = "DERIVATIVE"
)

// IndexExchange returns the index-segment label for a cash exchange ("NSE" -> "NSE_INDEX").
func IndexExchange(exchange string) string {
	if IsIndexExchange(exchange) {
		return exchange
	}
	return exchange + indexSuffix
}

// IsIndexExchange reports whether exchange carries the _INDEX suffix.
func IsIndexExchange(exchange string) bool {
	return strings.HasSuffix(exchange, indexSuffix)
}

// BaseExchange strips the _INDEX suffix ("BSE_INDEX" -> "BSE").
func BaseExchange(exchange string) string {
	return strings.TrimSuffix(exchange, indexSuffix)
}

// SupportedExchange reports whether exchange is one of the two cash exchanges
// (or their index segments) the catalog keeps.
func SupportedExchange(exchange string) bool {
	switch BaseExchange(exchange) {
	case ExchangeNSE, ExchangeBSE:
		return true
	}
	return false
}

// Instrument identifies a tradeable symbol on an exchange in canonical form.
type Instrument struct {
	Exchange string `json:"exchange"`
	Symbol   string `json:"symbol"`
}

// Key returns the map key used for every price and quote lookup: "EXCHANGE:SYMBOL".
func (i Instrument) Key() string {
	return InstrumentKey(i.Exchange, i.Symbol)
}

// InstrumentKey builds the "EXCHANGE:SYMBOL" key without allocating an Instrument.
func InstrumentKey(exchange, symbol string) string {
	return exchange + ":" + symbol
}

// UnifiedSymbol is one row of a broker catalog expressed in canonical form.
// A catalog download replaces the full set for a broker; rows are never patched.
type UnifiedSymbol struct {
	Symbol         string         `json:"symbol"`
	Exchange       string         `json:"exchange"`
	Name           string         `json:"name"`
	InstrumentType InstrumentType `json:"instrument_type"`

	Broker       BrokerType `json:"broker"`
	BrokerSymbol string     `json:"broker_symbol"`
	BrokerToken  string     `json:"broker_token"`

	LotSize  int        `json:"lot_size"`
	TickSize float64    `json:"tick_size"` // decimal rupees
	Expiry   *time.Time `json:"expiry,omitempty"`
	Strike   *float64   `json:"strike,omitempty"`
}

// Instrument returns the canonical exchange/symbol pair.
func (u *UnifiedSymbol) Instrument() Instrument {
	return Instrument{Exchange: u.Exchange, Symbol: u.Symbol}
}

// Key is unique per (symbol, exchange, instrument type, expiry, strike).
func (u *UnifiedSymbol) Key() string {
	var b strings.Builder
	b.WriteString(u.Symbol)
	b.WriteByte('|')
	b.WriteString(u.Exchange)
	b.WriteByte('|')
	b.WriteString(string(u.InstrumentType))
	b.WriteByte('|')
	if u.Expiry != nil {
		b.WriteString(u.Expiry.Format("2006-01-02"))
	}
	b.WriteByte('|')
	if u.Strike != nil {
		b.WriteString(strconv.FormatFloat(*u.Strike, 'f', -1, 64))
	}
	return b.String()
}
