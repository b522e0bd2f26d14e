package sizing

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basket-trading/internal/model"
	"basket-trading/internal/tradeerr"
)

func tcsInfy() ([]model.BasketStock, map[string]float64) {
	stocks := []model.BasketStock{
		{Symbol: "TCS", Exchange: "NSE", Weight: 50},
		{Symbol: "INFY", Exchange: "NSE", Weight: 50},
	}
	prices := map[string]float64{"NSE:TCS": 4200, "NSE:INFY": 1600}
	return stocks, prices
}

func TestCalculateBasketOrders_Scenario(t *testing.T) {
	stocks, prices := tcsInfy()

	plan := CalculateBasketOrders(stocks, prices, 50000)

	require.Len(t, plan.Orders, 2)
	assert.Equal(t, "TCS", plan.Orders[0].Symbol)
	assert.Equal(t, int64(5), plan.Orders[0].Quantity)
	assert.Equal(t, 21000.0, plan.Orders[0].Amount)
	assert.Equal(t, "INFY", plan.Orders[1].Symbol)
	assert.Equal(t, int64(15), plan.Orders[1].Quantity)
	assert.Equal(t, 24000.0, plan.Orders[1].Amount)
	assert.Equal(t, 45000.0, plan.TotalAmount)
	assert.Equal(t, 5000.0, plan.UnusedAmount)
	assert.Empty(t, plan.Skipped)
}

func TestCalculateBasketOrders_SkipsUnpricedAndZeroQuantity(t *testing.T) {
	stocks := []model.BasketStock{
		{Symbol: "MRF", Exchange: "NSE", Weight: 10},
		{Symbol: "NOPRICE", Exchange: "NSE", Weight: 10},
		{Symbol: "ITC", Exchange: "NSE", Weight: 80},
	}
	prices := map[string]float64{"NSE:MRF": 130000, "NSE:ITC": 450}

	plan := CalculateBasketOrders(stocks, prices, 10000)

	require.Len(t, plan.Orders, 1)
	assert.Equal(t, "ITC", plan.Orders[0].Symbol)
	assert.Equal(t, int64(17), plan.Orders[0].Quantity)
	assert.ElementsMatch(t, []Skipped{
		{Symbol: "MRF", Exchange: "NSE", Reason: SkipZeroQuantity},
		{Symbol: "NOPRICE", Exchange: "NSE", Reason: SkipNoPrice},
	}, plan.Skipped)
	assert.Equal(t, 10000-17*450.0, plan.UnusedAmount)
}

func TestCalculateBasketOrders_Deterministic(t *testing.T) {
	stocks, prices := tcsInfy()
	a := CalculateBasketOrders(stocks, prices, 123456)
	b := CalculateBasketOrders(stocks, prices, 123456)
	assert.Equal(t, a, b)
}

// randomBasket builds 1..8 stocks with integer weights summing to 100 and
// prices on a 0.05 tick.
func randomBasket(r *rand.Rand) ([]model.BasketStock, map[string]float64) {
	n := 1 + r.Intn(8)
	weights := make([]int, n)
	for i := range weights {
		weights[i] = 1
	}
	for left := 100 - n; left > 0; left-- {
		weights[r.Intn(n)]++
	}
	stocks := make([]model.BasketStock, n)
	prices := make(map[string]float64, n)
	for i := range stocks {
		stocks[i] = model.BasketStock{Symbol: string(rune('A' + i)), Exchange: "NSE", Weight: float64(weights[i])}
		prices[stocks[i].Key()] = float64(200+r.Intn(100000)) / 20
	}
	return stocks, prices
}

func TestCalculateBasketOrders_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		stocks, prices := randomBasket(r)
		amount := math.Round(1000 + r.Float64()*200000)

		plan := CalculateBasketOrders(stocks, prices, amount)

		weights := map[string]float64{}
		for _, s := range stocks {
			weights[s.Key()] = s.Weight
		}
		for _, o := range plan.Orders {
			key := model.InstrumentKey(o.Exchange, o.Symbol)
			allocation := amount * weights[key] / 100
			want := int64(math.Floor(allocation/prices[key] + floorEps))
			assert.Equal(t, want, o.Quantity)
			assert.Greater(t, o.Quantity, int64(0))
			// leftover per stock is less than one more share
			assert.Less(t, allocation-o.Amount, o.Price, "%s", key)
		}
		for _, sk := range plan.Skipped {
			if sk.Reason != SkipZeroQuantity {
				continue
			}
			key := model.InstrumentKey(sk.Exchange, sk.Symbol)
			assert.Less(t, amount*weights[key]/100, prices[key], "%s skipped", key)
		}
		assert.Equal(t, len(stocks), len(plan.Orders)+len(plan.Skipped))
		assert.GreaterOrEqual(t, plan.UnusedAmount, -1e-6)
		assert.InDelta(t, amount, plan.TotalAmount+plan.UnusedAmount, 1e-6)
	}
}

func TestCalculateMinInvestment(t *testing.T) {
	stocks, prices := tcsInfy()
	got, err := CalculateMinInvestment(stocks, prices)
	require.NoError(t, err)
	assert.Equal(t, 8400.0, got)

	plan := CalculateBasketOrders(stocks, prices, got)
	assert.Len(t, plan.Orders, 2)

	plan = CalculateBasketOrders(stocks, prices, got-1)
	assert.Len(t, plan.Orders, 1)
}

func TestCalculateMinInvestment_IsSmallest(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for iter := 0; iter < 300; iter++ {
		stocks, prices := randomBasket(r)
		minAmount, err := CalculateMinInvestment(stocks, prices)
		require.NoError(t, err)

		plan := CalculateBasketOrders(stocks, prices, minAmount)
		assert.Len(t, plan.Orders, len(stocks), "at %.0f every stock gets a share", minAmount)

		below := CalculateBasketOrders(stocks, prices, minAmount-1)
		assert.Less(t, len(below.Orders), len(stocks), "at %.0f some stock gets nothing", minAmount-1)
	}
}

func TestCalculateMinInvestment_RejectsZeroWeight(t *testing.T) {
	_, err := CalculateMinInvestment([]model.BasketStock{{Symbol: "TCS", Exchange: "NSE", Weight: 0}}, map[string]float64{"NSE:TCS": 1})
	assert.True(t, errors.Is(err, tradeerr.ErrValidation))
}

func TestValidateBasket(t *testing.T) {
	stocks, _ := tcsInfy()
	assert.NoError(t, ValidateBasket(stocks, DefaultLimits))

	near := []model.BasketStock{
		{Symbol: "A", Exchange: "NSE", Weight: 33.333},
		{Symbol: "B", Exchange: "NSE", Weight: 33.333},
		{Symbol: "C", Exchange: "NSE", Weight: 33.334},
	}
	assert.NoError(t, ValidateBasket(near, DefaultLimits))

	cases := map[string][]model.BasketStock{
		"empty":     nil,
		"sum 99":    {{Symbol: "A", Exchange: "NSE", Weight: 49}, {Symbol: "B", Exchange: "NSE", Weight: 50}},
		"zero":      {{Symbol: "A", Exchange: "NSE", Weight: 100}, {Symbol: "B", Exchange: "NSE", Weight: 0}},
		"duplicate": {{Symbol: "A", Exchange: "NSE", Weight: 50}, {Symbol: "A", Exchange: "NSE", Weight: 50}},
		"index":     {{Symbol: "NIFTY", Exchange: "NSE_INDEX", Weight: 100}},
	}
	for name, basket := range cases {
		err := ValidateBasket(basket, DefaultLimits)
		assert.True(t, errors.Is(err, tradeerr.ErrValidation), name)
	}

	err := ValidateBasket(stocks, Limits{MinStocks: 3})
	assert.ErrorContains(t, err, "minimum is 3")
	err = ValidateBasket(stocks, Limits{MaxStocks: 1})
	assert.ErrorContains(t, err, "maximum is 1")
}

func TestPlanBasket(t *testing.T) {
	stocks, prices := tcsInfy()

	plan, err := PlanBasket(stocks, prices, 50000, DefaultLimits)
	require.NoError(t, err)
	assert.Len(t, plan.Orders, 2)

	_, err = PlanBasket(stocks, prices, 1000, DefaultLimits)
	assert.True(t, errors.Is(err, tradeerr.ErrInsufficientAmount))
	assert.ErrorContains(t, err, "8400")

	_, err = PlanBasket(stocks, prices, 0, DefaultLimits)
	assert.True(t, errors.Is(err, tradeerr.ErrValidation))
}

func TestToOrders(t *testing.T) {
	stocks, prices := tcsInfy()
	plan := CalculateBasketOrders(stocks, prices, 50000)

	orders := ToOrders(plan, OrderDefaults{Tag: "basket1"})
	require.Len(t, orders, 2)
	for _, o := range orders {
		assert.NoError(t, o.Validate())
		assert.Equal(t, model.TransactionBuy, o.TransactionType)
		assert.Equal(t, model.OrderTypeMarket, o.OrderType)
		assert.Equal(t, model.ProductDelivery, o.Product)
		assert.Equal(t, "basket1", o.Tag)
		assert.Zero(t, o.Price)
	}

	limit := ToOrders(plan, OrderDefaults{OrderType: model.OrderTypeLimit})
	assert.Equal(t, 4200.0, limit[0].Price)
}

func TestSortedByAmount(t *testing.T) {
	stocks, prices := tcsInfy()
	plan := CalculateBasketOrders(stocks, prices, 50000)
	sorted := SortedByAmount(plan.Orders)
	assert.Equal(t, "INFY", sorted[0].Symbol)
	assert.Equal(t, "TCS", plan.Orders[0].Symbol)
}
