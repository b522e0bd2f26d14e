package model

import (
	"errors"
	"fmt"
	"time"
)

// Transaction types.
const (
	TransactionBuy  = "BUY"
	TransactionSell = "SELL"
)

// Order types.
const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
	OrderTypeSL     = "SL"
	OrderTypeSLM    = "SL-M"
)

// Product types in the unified vocabulary. Adapters translate them
// (e.g. CNC <-> DELIVERY).
const (
	ProductDelivery = "DELIVERY"
	ProductIntraday = "INTRADAY"
	ProductMargin   = "MARGIN"
)

// Validity and variety defaults.
const (
	ValidityDay     = "DAY"
	ValidityIOC     = "IOC"
	VarietyRegular  = "REGULAR"
	VarietyAMO      = "AMO"
	VarietyStopLoss = "STOPLOSS"
)

// Order is a request to place one order. It lives only for the duration of the call.
type Order struct {
	Symbol          string  `json:"symbol"`
	Exchange        string  `json:"exchange"`
	TransactionType string  `json:"transactionType"` // BUY, SELL
	OrderType       string  `json:"orderType"`       // MARKET, LIMIT, SL, SL-M
	Quantity        int64   `json:"quantity"`
	Product         string  `json:"product"`
	Price           float64 `json:"price,omitempty"`
	TriggerPrice    float64 `json:"triggerPrice,omitempty"`
	Validity        string  `json:"validity,omitempty"`
	Variety         string  `json:"variety,omitempty"`
	Tag             string  `json:"tag,omitempty"`

	// SymbolToken is the broker's numeric token when the caller already knows it.
	SymbolToken string `json:"symbolToken,omitempty"`
}

// Instrument returns the order's exchange/symbol pair.
func (o *Order) Instrument() Instrument {
	return Instrument{Exchange: o.Exchange, Symbol: o.Symbol}
}

// Validate checks the fields every broker requires. Broker-specific rules
// (lot size, tick size, margins) are left to the broker.
func (o *Order) Validate() error {
	var errs []error
	if o.Symbol == "" {
		errs = append(errs, errors.New("symbol is required"))
	}
	if !SupportedExchange(o.Exchange) || IsIndexExchange(o.Exchange) {
		errs = append(errs, fmt.Errorf("exchange %q is not tradeable", o.Exchange))
	}
	switch o.TransactionType {
	case TransactionBuy, TransactionSell:
	default:
		errs = append(errs, fmt.Errorf("unknown transaction type %q", o.TransactionType))
	}
	if o.Quantity <= 0 {
		errs = append(errs, fmt.Errorf("quantity must be > 0, got %d", o.Quantity))
	}
	switch o.OrderType {
	case OrderTypeMarket:
	case OrderTypeLimit:
		if o.Price <= 0 {
			errs = append(errs, errors.New("limit order needs a price"))
		}
	case OrderTypeSL:
		if o.Price <= 0 || o.TriggerPrice <= 0 {
			errs = append(errs, errors.New("SL order needs price and trigger price"))
		}
	case OrderTypeSLM:
		if o.TriggerPrice <= 0 {
			errs = append(errs, errors.New("SL-M order needs a trigger price"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown order type %q", o.OrderType))
	}
	return errors.Join(errs...)
}

// OrderUpdate carries the modifiable fields of an open order. Zero values are
// left unchanged by the broker.
type OrderUpdate struct {
	Symbol       string  `json:"symbol,omitempty"`
	Exchange     string  `json:"exchange,omitempty"`
	SymbolToken  string  `json:"symbolToken,omitempty"`
	Variety      string  `json:"variety,omitempty"`
	OrderType    string  `json:"orderType,omitempty"`
	Product      string  `json:"product,omitempty"`
	Quantity     int64   `json:"quantity,omitempty"`
	Price        float64 `json:"price,omitempty"`
	TriggerPrice float64 `json:"triggerPrice,omitempty"`
	Validity     string  `json:"validity,omitempty"`
}

// OrderResult is what a broker acknowledges for a placed, modified or cancelled order.
type OrderResult struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"` // PLACED, MODIFIED, CANCELLED
	Message string `json:"message,omitempty"`
}

// Result statuses.
const (
	StatusPlaced    = "PLACED"
	StatusModified  = "MODIFIED"
	StatusCancelled = "CANCELLED"
)

// OrderStatus is a row from a broker order book.
type OrderStatus struct {
	OrderID         string    `json:"orderId"`
	Symbol          string    `json:"symbol"`
	Exchange        string    `json:"exchange"`
	TransactionType string    `json:"transactionType"`
	OrderType       string    `json:"orderType"`
	Product         string    `json:"product"`
	Variety         string    `json:"variety"`
	Quantity        int64     `json:"quantity"`
	FilledQuantity  int64     `json:"filledQuantity"`
	Price           float64   `json:"price"`
	TriggerPrice    float64   `json:"triggerPrice"`
	AveragePrice    float64   `json:"averagePrice"`
	Status          string    `json:"status"` // broker status, upper-cased
	StatusMessage   string    `json:"statusMessage,omitempty"`
	Tag             string    `json:"tag,omitempty"`
	PlacedAt        time.Time `json:"placedAt"`
}
