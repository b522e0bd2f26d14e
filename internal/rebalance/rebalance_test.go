package rebalance

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basket-trading/internal/model"
	"basket-trading/internal/sizing"
	"basket-trading/internal/tradeerr"
)

func TestCalculateRebalanceOrders_UnderweightBuys(t *testing.T) {
	holdings := []model.TargetHolding{{Symbol: "TCS", Exchange: "NSE", Quantity: 5, TargetWeight: 50}}
	prices := map[string]float64{"NSE:TCS": 4200}

	plan, err := CalculateRebalanceOrders(holdings, prices, 100000, DefaultThreshold)
	require.NoError(t, err)

	require.Len(t, plan.Orders, 1)
	o := plan.Orders[0]
	assert.Equal(t, model.TransactionBuy, o.TransactionType)
	assert.Equal(t, int64(6), o.Quantity) // floor(29000 / 4200)
	assert.Equal(t, 25200.0, plan.BuyAmount)
	assert.Zero(t, plan.SellAmount)

	require.Len(t, plan.Decisions, 1)
	assert.InDelta(t, 21.0, plan.Decisions[0].ActualWeight, 1e-9)
	assert.InDelta(t, -29.0, plan.Decisions[0].Deviation, 1e-9)
	assert.Equal(t, ActionBuy, plan.Decisions[0].Action)
}

func TestCalculateRebalanceOrders_WithinThresholdHolds(t *testing.T) {
	holdings := []model.TargetHolding{
		{Symbol: "TCS", Exchange: "NSE", Quantity: 12, TargetWeight: 50},
		{Symbol: "INFY", Exchange: "NSE", Quantity: 30, TargetWeight: 50},
	}
	prices := map[string]float64{"NSE:TCS": 4200, "NSE:INFY": 1600}

	plan, err := CalculateRebalanceOrders(holdings, prices, 100000, DefaultThreshold)
	require.NoError(t, err)
	assert.Empty(t, plan.Orders)
	for _, d := range plan.Decisions {
		assert.Equal(t, ActionHold, d.Action, d.Symbol)
	}
}

func TestCalculateRebalanceOrders_SellCappedAtHeld(t *testing.T) {
	// Target 0% against a stale, too-small total value: sell the whole
	// holding and nothing more.
	holdings := []model.TargetHolding{{Symbol: "ITC", Exchange: "NSE", Quantity: 10, TargetWeight: 0}}
	prices := map[string]float64{"NSE:ITC": 1000}

	plan, err := CalculateRebalanceOrders(holdings, prices, 5000, DefaultThreshold)
	require.NoError(t, err)
	require.Len(t, plan.Orders, 1)
	assert.Equal(t, model.TransactionSell, plan.Orders[0].TransactionType)
	assert.Equal(t, int64(10), plan.Orders[0].Quantity)
	assert.Equal(t, 10000.0, plan.SellAmount)
}

func TestCalculateRebalanceOrders_SkipsUnpriced(t *testing.T) {
	holdings := []model.TargetHolding{{Symbol: "GONE", Exchange: "NSE", Quantity: 10, TargetWeight: 100}}

	plan, err := CalculateRebalanceOrders(holdings, map[string]float64{}, 1000, DefaultThreshold)
	require.NoError(t, err)
	assert.Empty(t, plan.Orders)
	assert.Equal(t, ActionSkip, plan.Decisions[0].Action)
}

func TestCalculateRebalanceOrders_Validation(t *testing.T) {
	_, err := CalculateRebalanceOrders(nil, nil, 0, DefaultThreshold)
	assert.True(t, errors.Is(err, tradeerr.ErrValidation))

	_, err = CalculateRebalanceOrders(nil, nil, 1000, -1)
	assert.True(t, errors.Is(err, tradeerr.ErrValidation))
}

func TestCalculateRebalanceOrders_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for iter := 0; iter < 500; iter++ {
		n := 1 + r.Intn(6)
		holdings := make([]model.TargetHolding, n)
		prices := map[string]float64{}
		for i := range holdings {
			holdings[i] = model.TargetHolding{
				Symbol:       string(rune('A' + i)),
				Exchange:     "NSE",
				Quantity:     int64(r.Intn(200)),
				TargetWeight: float64(r.Intn(60)),
			}
			prices[holdings[i].Key()] = float64(100+r.Intn(50000)) / 20
		}
		total := TotalValue(holdings, prices)
		if total <= 0 {
			continue
		}
		threshold := float64(r.Intn(10))

		plan, err := CalculateRebalanceOrders(holdings, prices, total, threshold)
		require.NoError(t, err)

		byKey := map[string]model.TargetHolding{}
		for _, h := range holdings {
			byKey[h.Key()] = h
		}
		var buy, sell float64
		for _, o := range plan.Orders {
			h := byKey[model.InstrumentKey(o.Exchange, o.Symbol)]
			assert.Greater(t, o.Quantity, int64(0))
			if o.TransactionType == model.TransactionSell {
				assert.LessOrEqual(t, o.Quantity, h.Quantity)
				sell += o.Amount
			} else {
				buy += o.Amount
			}
		}
		for _, d := range plan.Decisions {
			if math.Abs(d.Deviation) <= threshold {
				assert.Equal(t, ActionHold, d.Action)
			}
		}
		assert.InDelta(t, buy, plan.BuyAmount, 1e-6)
		assert.InDelta(t, sell, plan.SellAmount, 1e-6)
	}
}

func TestTotalValue(t *testing.T) {
	holdings := []model.TargetHolding{
		{Symbol: "TCS", Exchange: "NSE", Quantity: 5},
		{Symbol: "INFY", Exchange: "NSE", Quantity: 10},
		{Symbol: "GONE", Exchange: "NSE", Quantity: 10},
	}
	prices := map[string]float64{"NSE:TCS": 4200, "NSE:INFY": 1600}
	assert.Equal(t, 37000.0, TotalValue(holdings, prices))
}

func TestToOrders_SellsFirst(t *testing.T) {
	plan := Plan{Orders: []PlannedOrder{
		{Symbol: "TCS", Exchange: "NSE", TransactionType: model.TransactionBuy, Quantity: 2, Price: 4200},
		{Symbol: "ITC", Exchange: "NSE", TransactionType: model.TransactionSell, Quantity: 3, Price: 450},
	}}

	orders := ToOrders(plan, sizing.OrderDefaults{})
	require.Len(t, orders, 2)
	assert.Equal(t, "ITC", orders[0].Symbol)
	assert.Equal(t, model.TransactionSell, orders[0].TransactionType)
	assert.Equal(t, "TCS", orders[1].Symbol)
	for _, o := range orders {
		assert.NoError(t, o.Validate())
	}
	assert.Equal(t, -7050.0, Plan{BuyAmount: 8400, SellAmount: 1350}.NetCash())
}
