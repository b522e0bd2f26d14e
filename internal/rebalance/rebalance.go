// Package rebalance computes the buy/sell deltas that bring holdings back
// within a deviation threshold of their target weights.
//
// The engine is one-shot: an over-weight holding is sold down at most to zero,
// so an extreme case can still sit outside the threshold after one pass.
package rebalance

import (
	"math"

	"basket-trading/internal/model"
	"basket-trading/internal/sizing"
	"basket-trading/internal/tradeerr"
)

// DefaultThreshold is the tolerated |actual - target| weight, in percent.
const DefaultThreshold = 5.0

// Actions recorded per holding.
const (
	ActionHold = "HOLD"
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionSkip = "SKIP" // no price
)

// Decision explains what the engine did with one holding.
type Decision struct {
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	Price        float64 `json:"price"`
	CurrentValue float64 `json:"currentValue"`
	ActualWeight float64 `json:"actualWeight"`
	TargetWeight float64 `json:"targetWeight"`
	Deviation    float64 `json:"deviation"`
	Action       string  `json:"action"`
	Quantity     int64   `json:"quantity"`
}

// PlannedOrder is one corrective order.
type PlannedOrder struct {
	Symbol          string  `json:"symbol"`
	Exchange        string  `json:"exchange"`
	TransactionType string  `json:"transactionType"`
	Quantity        int64   `json:"quantity"`
	Price           float64 `json:"price"`
	Amount          float64 `json:"amount"`
}

// Plan is the result of CalculateRebalanceOrders.
type Plan struct {
	TotalValue float64        `json:"totalValue"`
	Threshold  float64        `json:"threshold"`
	Orders     []PlannedOrder `json:"orders"`
	Decisions  []Decision     `json:"decisions"`
	BuyAmount  float64        `json:"buyAmount"`
	SellAmount float64        `json:"sellAmount"`
}

// TotalValue sums quantity * price over holdings that have a price.
func TotalValue(holdings []model.TargetHolding, prices map[string]float64) float64 {
	var total float64
	for _, h := range holdings {
		if p, ok := prices[h.Key()]; ok && p > 0 {
			total += float64(h.Quantity) * p
		}
	}
	return total
}

// CalculateRebalanceOrders emits a BUY for each under-weight holding and a
// SELL, capped at the held quantity, for each over-weight one whose deviation
// exceeds threshold. Holdings without a price are skipped.
func CalculateRebalanceOrders(holdings []model.TargetHolding, prices map[string]float64, totalValue, threshold float64) (Plan, error) {
	const op = "calculateRebalanceOrders"
	if totalValue <= 0 {
		return Plan{}, tradeerr.Validation(op, "total value must be > 0, got %.2f", totalValue)
	}
	if threshold < 0 {
		return Plan{}, tradeerr.Validation(op, "threshold must be >= 0, got %.2f", threshold)
	}

	plan := Plan{TotalValue: totalValue, Threshold: threshold}
	for _, h := range holdings {
		d := Decision{Symbol: h.Symbol, Exchange: h.Exchange, TargetWeight: h.TargetWeight, Action: ActionHold}
		price, ok := prices[h.Key()]
		if !ok || price <= 0 {
			d.Action = ActionSkip
			plan.Decisions = append(plan.Decisions, d)
			continue
		}
		d.Price = price
		d.CurrentValue = float64(h.Quantity) * price
		d.ActualWeight = d.CurrentValue / totalValue * 100
		d.Deviation = d.ActualWeight - h.TargetWeight

		if math.Abs(d.Deviation) > threshold {
			targetValue := h.TargetWeight / 100 * totalValue
			qty := sizing.Quantity(math.Abs(targetValue-d.CurrentValue), price)
			side := model.TransactionBuy
			if d.Deviation > 0 {
				side = model.TransactionSell
				if qty > h.Quantity {
					qty = h.Quantity
				}
			}
			if qty > 0 {
				po := PlannedOrder{
					Symbol:          h.Symbol,
					Exchange:        h.Exchange,
					TransactionType: side,
					Quantity:        qty,
					Price:           price,
					Amount:          float64(qty) * price,
				}
				plan.Orders = append(plan.Orders, po)
				if side == model.TransactionBuy {
					plan.BuyAmount += po.Amount
				} else {
					plan.SellAmount += po.Amount
				}
				d.Action = side
				d.Quantity = qty
			}
		}
		plan.Decisions = append(plan.Decisions, d)
	}
	return plan, nil
}

// ToOrders converts the plan into orders. SELLs come first so their proceeds
// are available to the BUYs that follow.
func ToOrders(plan Plan, d sizing.OrderDefaults) []model.Order {
	out := make([]model.Order, 0, len(plan.Orders))
	for _, side := range []string{model.TransactionSell, model.TransactionBuy} {
		for _, po := range plan.Orders {
			if po.TransactionType == side {
				out = append(out, d.Order(side, po.Symbol, po.Exchange, po.Quantity, po.Price))
			}
		}
	}
	return out
}

// NetCash is SellAmount - BuyAmount; negative means the rebalance needs cash.
func (p Plan) NetCash() float64 {
	return p.SellAmount - p.BuyAmount
}
