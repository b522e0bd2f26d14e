package portfolio

import (
	"context"
	"sort"

	"basket-trading/internal/model"
)

// HoldingValue is one holding marked to the latest price.
type HoldingValue struct {
	Symbol       string  `json:"symbol"`
	Exchange     string  `json:"exchange"`
	Quantity     int64   `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
	LastPrice    float64 `json:"last_price"`
	Invested     float64 `json:"invested"`
	Current      float64 `json:"current"`
	PnL          float64 `json:"pnl"`
	PnLPct       float64 `json:"pnl_pct"`
	Weight       float64 `json:"weight"` // percent of Current across all holdings
}

// Valuation summarizes the account's holdings.
type Valuation struct {
	Holdings      []HoldingValue `json:"holdings"`
	Invested      float64        `json:"invested"`
	Current       float64        `json:"current"`
	PnL           float64        `json:"pnl"`
	PnLPct        float64        `json:"pnl_pct"`
	AvailableCash float64        `json:"available_cash"`
}

// Value marks holdings to market. prices overrides the broker-reported last
// price where present; holdings are ordered by current value, largest first.
func Value(holdings []model.Holding, prices map[string]float64) Valuation {
	var v Valuation
	for _, h := range holdings {
		if p, ok := prices[h.Key()]; ok && p > 0 {
			h.LastPrice = p
		}
		hv := HoldingValue{
			Symbol:       h.Symbol,
			Exchange:     h.Exchange,
			Quantity:     h.Quantity,
			AveragePrice: h.AveragePrice,
			LastPrice:    h.LastPrice,
			Invested:     h.AveragePrice * float64(h.Quantity),
			Current:      h.Value(),
			PnL:          h.PnL(),
			PnLPct:       h.PnLPct(),
		}
		v.Holdings = append(v.Holdings, hv)
		v.Invested += hv.Invested
		v.Current += hv.Current
	}
	v.PnL = v.Current - v.Invested
	if v.Invested > 0 {
		v.PnLPct = v.PnL / v.Invested * 100
	}
	for i := range v.Holdings {
		if v.Current > 0 {
			v.Holdings[i].Weight = v.Holdings[i].Current / v.Current * 100
		}
	}
	sort.SliceStable(v.Holdings, func(i, j int) bool { return v.Holdings[i].Current > v.Holdings[j].Current })
	return v
}

// Valuation fetches holdings, refreshes their prices and funds, and values
// the account.
func (s *Service) Valuation(ctx context.Context) (Valuation, error) {
	holdings, err := s.trader.GetHoldings(ctx)
	if err != nil {
		return Valuation{}, err
	}
	instruments := make([]model.Instrument, 0, len(holdings))
	for _, h := range holdings {
		instruments = append(instruments, model.Instrument{Exchange: h.Exchange, Symbol: h.Symbol})
	}
	prices, err := s.Prices(ctx, instruments)
	if err != nil {
		return Valuation{}, err
	}
	funds, err := s.trader.GetFunds(ctx)
	if err != nil {
		return Valuation{}, err
	}
	v := Value(holdings, prices)
	v.AvailableCash = funds.AvailableCash
	return v, nil
}
