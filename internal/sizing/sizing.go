// Package sizing turns a weighted basket and an investment amount into whole
// share quantities. Every function here is pure: same inputs, same plan.
package sizing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"basket-trading/internal/model"
	"basket-trading/internal/tradeerr"
)

// WeightTolerance is the allowed drift of a basket's weight sum from 100.
const WeightTolerance = 0.01

// floorEps absorbs float error when allocation/price lands just under an integer.
const floorEps = 1e-9

// PlannedOrder is one BUY the plan wants placed.
type PlannedOrder struct {
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	Weight   float64 `json:"weight"`
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
	Amount   float64 `json:"amount"` // Quantity * Price
}

// Skip reasons.
const (
	SkipNoPrice      = "no price"
	SkipZeroQuantity = "allocation below one share"
)

// Skipped records a basket member that produced no order.
type Skipped struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
	Reason   string `json:"reason"`
}

// Plan is the result of CalculateBasketOrders.
type Plan struct {
	InvestmentAmount float64        `json:"investmentAmount"`
	Orders           []PlannedOrder `json:"orders"`
	Skipped          []Skipped      `json:"skipped,omitempty"`
	TotalAmount      float64        `json:"totalAmount"`
	UnusedAmount     float64        `json:"unusedAmount"`
}

// Quantity is floor(allocation / price), or 0 for a non-positive price.
func Quantity(allocation, price float64) int64 {
	if price <= 0 || allocation <= 0 {
		return 0
	}
	return int64(math.Floor(allocation/price + floorEps))
}

// CalculateBasketOrders allocates amount across stocks by weight. Stocks
// without a price or whose allocation buys no whole share are skipped. The
// unused remainder is reported, never reinvested.
func CalculateBasketOrders(stocks []model.BasketStock, prices map[string]float64, amount float64) Plan {
	plan := Plan{InvestmentAmount: amount}
	for _, s := range stocks {
		price, ok := prices[s.Key()]
		if !ok || price <= 0 {
			plan.Skipped = append(plan.Skipped, Skipped{Symbol: s.Symbol, Exchange: s.Exchange, Reason: SkipNoPrice})
			continue
		}
		allocation := amount * s.Weight / 100
		qty := Quantity(allocation, price)
		if qty <= 0 {
			plan.Skipped = append(plan.Skipped, Skipped{Symbol: s.Symbol, Exchange: s.Exchange, Reason: SkipZeroQuantity})
			continue
		}
		po := PlannedOrder{
			Symbol:   s.Symbol,
			Exchange: s.Exchange,
			Weight:   s.Weight,
			Price:    price,
			Quantity: qty,
			Amount:   float64(qty) * price,
		}
		plan.Orders = append(plan.Orders, po)
		plan.TotalAmount += po.Amount
	}
	plan.UnusedAmount = amount - plan.TotalAmount
	return plan
}

// CalculateMinInvestment returns the smallest whole-rupee amount that buys at
// least one share of every priced stock: ceil(max(price / weight * 100)).
// Unpriced stocks are ignored. A non-positive weight is a ValidationError.
func CalculateMinInvestment(stocks []model.BasketStock, prices map[string]float64) (float64, error) {
	var worst float64
	for _, s := range stocks {
		if s.Weight <= 0 {
			return 0, tradeerr.Validation("calculateMinInvestment", "%s has non-positive weight %.4f", s.Key(), s.Weight)
		}
		price, ok := prices[s.Key()]
		if !ok || price <= 0 {
			continue
		}
		if m := price / s.Weight * 100; m > worst {
			worst = m
		}
	}
	return math.Ceil(worst - floorEps), nil
}

// Limits bound the number of stocks in a basket. Zero means unbounded.
type Limits struct {
	MinStocks int `yaml:"min_stocks" json:"minStocks"`
	MaxStocks int `yaml:"max_stocks" json:"maxStocks"`
}

// DefaultLimits match the basket builder's UI bounds.
var DefaultLimits = Limits{MinStocks: 1, MaxStocks: 50}

// ValidateBasket checks weights sum to 100 (±WeightTolerance), every weight
// is positive, instruments are unique and the count is within limits.
func ValidateBasket(stocks []model.BasketStock, lim Limits) error {
	var errs []error
	n := len(stocks)
	if n == 0 {
		errs = append(errs, errors.New("basket is empty"))
	}
	if lim.MinStocks > 0 && n < lim.MinStocks {
		errs = append(errs, fmt.Errorf("basket has %d stocks, minimum is %d", n, lim.MinStocks))
	}
	if lim.MaxStocks > 0 && n > lim.MaxStocks {
		errs = append(errs, fmt.Errorf("basket has %d stocks, maximum is %d", n, lim.MaxStocks))
	}

	seen := make(map[string]bool, n)
	var sum float64
	for _, s := range stocks {
		if s.Symbol == "" {
			errs = append(errs, errors.New("stock with empty symbol"))
		}
		if !model.SupportedExchange(s.Exchange) || model.IsIndexExchange(s.Exchange) {
			errs = append(errs, fmt.Errorf("%s: exchange %q is not tradeable", s.Symbol, s.Exchange))
		}
		if s.Weight <= 0 {
			errs = append(errs, fmt.Errorf("%s: weight must be > 0, got %.4f", s.Key(), s.Weight))
		}
		if seen[s.Key()] {
			errs = append(errs, fmt.Errorf("%s listed more than once", s.Key()))
		}
		seen[s.Key()] = true
		sum += s.Weight
	}
	if n > 0 && math.Abs(sum-100) > WeightTolerance {
		errs = append(errs, fmt.Errorf("weights sum to %.4f, want 100", sum))
	}

	if err := errors.Join(errs...); err != nil {
		return tradeerr.Wrap(tradeerr.ErrValidation, "validateBasket", err)
	}
	return nil
}

// PlanBasket validates the basket, sizes it and rejects the whole request
// with InsufficientAmountError when no stock gets a share.
func PlanBasket(stocks []model.BasketStock, prices map[string]float64, amount float64, lim Limits) (Plan, error) {
	const op = "planBasket"
	if err := ValidateBasket(stocks, lim); err != nil {
		return Plan{}, err
	}
	if amount <= 0 {
		return Plan{}, tradeerr.Validation(op, "investment amount must be > 0, got %.2f", amount)
	}
	plan := CalculateBasketOrders(stocks, prices, amount)
	if len(plan.Orders) == 0 {
		minAmount, err := CalculateMinInvestment(stocks, prices)
		if err != nil {
			return Plan{}, err
		}
		return plan, tradeerr.New(tradeerr.ErrInsufficientAmount, op,
			"%.2f buys no whole share, minimum investment is %.0f", amount, minAmount)
	}
	return plan, nil
}

// OrderDefaults fill the order fields the plan does not decide.
type OrderDefaults struct {
	OrderType string `yaml:"order_type" json:"orderType"`
	Product   string `yaml:"product" json:"product"`
	Validity  string `yaml:"validity" json:"validity"`
	Variety   string `yaml:"variety" json:"variety"`
	Tag       string `yaml:"tag" json:"tag"`
}

// Normalize fills empty fields with MARKET / DELIVERY / DAY / REGULAR.
func (d OrderDefaults) Normalize() OrderDefaults {
	if d.OrderType == "" {
		d.OrderType = model.OrderTypeMarket
	}
	if d.Product == "" {
		d.Product = model.ProductDelivery
	}
	if d.Validity == "" {
		d.Validity = model.ValidityDay
	}
	if d.Variety == "" {
		d.Variety = model.VarietyRegular
	}
	return d
}

// Order builds one model.Order from a side, instrument and quantity.
func (d OrderDefaults) Order(side, symbol, exchange string, qty int64, price float64) model.Order {
	d = d.Normalize()
	o := model.Order{
		Symbol:          symbol,
		Exchange:        exchange,
		TransactionType: side,
		OrderType:       d.OrderType,
		Quantity:        qty,
		Product:         d.Product,
		Validity:        d.Validity,
		Variety:         d.Variety,
		Tag:             d.Tag,
	}
	if d.OrderType == model.OrderTypeLimit {
		o.Price = price
	}
	return o
}

// ToOrders converts the plan into BUY orders in plan order.
func ToOrders(plan Plan, d OrderDefaults) []model.Order {
	out := make([]model.Order, 0, len(plan.Orders))
	for _, po := range plan.Orders {
		out = append(out, d.Order(model.TransactionBuy, po.Symbol, po.Exchange, po.Quantity, po.Price))
	}
	return out
}

// SortedByAmount returns plan orders largest allocation first (display only).
func SortedByAmount(orders []PlannedOrder) []PlannedOrder {
	out := append([]PlannedOrder(nil), orders...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	return out
}
