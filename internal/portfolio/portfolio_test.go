package portfolio

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basket-trading/internal/broker"
	"basket-trading/internal/execution"
	"basket-trading/internal/logger"
	"basket-trading/internal/markethours"
	"basket-trading/internal/model"
	"basket-trading/internal/tradeerr"
)

type fakeTrader struct {
	prices   map[string]float64
	holdings []model.Holding
	funds    model.Funds
	reject   map[string]bool

	placed   []model.Order
	batchIDs []string
}

func (f *fakeTrader) Type() broker.Type { return broker.Zerodha }

func (f *fakeTrader) GetLTP(_ context.Context, ins []model.Instrument) (map[string]float64, error) {
	out := map[string]float64{}
	for _, i := range ins {
		if p, ok := f.prices[i.Key()]; ok {
			out[i.Key()] = p
		}
	}
	return out, nil
}

func (f *fakeTrader) GetHoldings(context.Context) ([]model.Holding, error) { return f.holdings, nil }

func (f *fakeTrader) GetFunds(context.Context) (model.Funds, error) { return f.funds, nil }

func (f *fakeTrader) PlaceOrder(ctx context.Context, o model.Order) (model.OrderResult, error) {
	f.placed = append(f.placed, o)
	f.batchIDs = append(f.batchIDs, logger.BatchID(ctx))
	if f.reject[o.Symbol] {
		return model.OrderResult{}, tradeerr.New(tradeerr.ErrRejected, "placeOrder", "RMS: margin exceeds")
	}
	return model.OrderResult{OrderID: "OID-" + o.Symbol, Status: model.StatusPlaced}, nil
}

type recordingSink struct {
	reports []execution.Report
	err     error
}

func (s *recordingSink) HandleReport(_ context.Context, r execution.Report) error {
	s.reports = append(s.reports, r)
	return s.err
}

type instantClock struct{ now time.Time }

func (c *instantClock) Now() time.Time        { return c.now }
func (c *instantClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

var marketOpen = time.Date(2026, 10, 12, 10, 0, 0, 0, markethours.IST)

func basket() []model.BasketStock {
	return []model.BasketStock{
		{Symbol: "TCS", Exchange: "NSE", Weight: 50},
		{Symbol: "INFY", Exchange: "NSE", Weight: 50},
	}
}

func newService(tr Trader, opts ...Option) *Service {
	opts = append([]Option{
		WithClock(func() time.Time { return marketOpen }),
		WithPacingClock(&instantClock{now: marketOpen}),
	}, opts...)
	return New(tr, DefaultPolicy(), opts...)
}

func TestBuyBasket(t *testing.T) {
	tr := &fakeTrader{prices: map[string]float64{"NSE:TCS": 4200, "NSE:INFY": 1600}}
	sink := &recordingSink{err: errors.New("ignored")}
	s := newService(tr, WithSinks(sink))

	res, err := s.BuyBasket(context.Background(), basket(), 50000)
	require.NoError(t, err)

	require.Len(t, tr.placed, 2)
	assert.Equal(t, int64(5), tr.placed[0].Quantity)
	assert.Equal(t, int64(15), tr.placed[1].Quantity)
	assert.True(t, strings.HasPrefix(tr.placed[0].Tag, "bk"))
	assert.LessOrEqual(t, len(tr.placed[0].Tag), 20)
	assert.Equal(t, res.Report.BatchID, tr.batchIDs[0])

	assert.Equal(t, execution.StatusCompleted, res.Report.Status)
	assert.Equal(t, "5000.00", res.Report.Meta["unused_amount"])
	require.Len(t, sink.reports, 1)
	assert.Equal(t, res.Report.BatchID, sink.reports[0].BatchID)
}

func TestBuyBasket_PartialFailure(t *testing.T) {
	tr := &fakeTrader{
		prices: map[string]float64{"NSE:TCS": 4200, "NSE:INFY": 1600},
		reject: map[string]bool{"INFY": true},
	}
	res, err := newService(tr).BuyBasket(context.Background(), basket(), 50000)
	require.NoError(t, err)
	assert.Equal(t, execution.StatusPartial, res.Report.Status)
	assert.Equal(t, 1, res.Report.Failed)
	assert.True(t, errors.Is(res.Outcomes[1].Err, tradeerr.ErrRejected))
}

func TestBuyBasket_InsufficientAmount(t *testing.T) {
	tr := &fakeTrader{prices: map[string]float64{"NSE:TCS": 4200, "NSE:INFY": 1600}}
	_, err := newService(tr).BuyBasket(context.Background(), basket(), 1000)
	assert.True(t, errors.Is(err, tradeerr.ErrInsufficientAmount))
	assert.Empty(t, tr.placed)
}

func TestBuyBasket_RiskLimits(t *testing.T) {
	tr := &fakeTrader{
		prices: map[string]float64{"NSE:TCS": 4200, "NSE:INFY": 1600},
		funds:  model.Funds{AvailableCash: 10000},
	}
	policy := DefaultPolicy()
	policy.Risk = RiskLimits{CheckFunds: true}
	s := New(tr, policy, WithPacingClock(&instantClock{now: marketOpen}))

	_, err := s.BuyBasket(context.Background(), basket(), 50000)
	assert.True(t, errors.Is(err, tradeerr.ErrInsufficientAmount))
	assert.Empty(t, tr.placed)

	policy.Risk = RiskLimits{MaxOrderValue: 22000}
	s = New(tr, policy, WithPacingClock(&instantClock{now: marketOpen}))
	_, err = s.BuyBasket(context.Background(), basket(), 50000)
	assert.True(t, errors.Is(err, tradeerr.ErrValidation))
	assert.ErrorContains(t, err, "order 1")
}

func TestBuyBasket_DryRun(t *testing.T) {
	tr := &fakeTrader{prices: map[string]float64{"NSE:TCS": 4200, "NSE:INFY": 1600}}
	res, err := newService(tr, WithDryRun(5, false)).BuyBasket(context.Background(), basket(), 50000)
	require.NoError(t, err)
	assert.Empty(t, tr.placed)
	assert.True(t, res.Report.DryRun)
	assert.Equal(t, execution.StatusCompleted, res.Report.Status)
	assert.True(t, strings.HasPrefix(res.Report.Outcomes[0].OrderID, "PAPER-"))
}

func TestRebalance(t *testing.T) {
	tr := &fakeTrader{
		prices: map[string]float64{"NSE:TCS": 4200, "NSE:INFY": 1600},
		holdings: []model.Holding{
			{Symbol: "TCS", Exchange: "NSE", Quantity: 5},
			{Symbol: "INFY", Exchange: "NSE", Quantity: 49},
			{Symbol: "ITC", Exchange: "NSE", Quantity: 100},
		},
	}
	// TCS 21000 (21%), INFY 78400 (78.4%) of 99400 plus 600 cash.
	res, err := newService(tr).Rebalance(context.Background(), basket(), 600)
	require.NoError(t, err)

	require.Len(t, tr.placed, 2)
	assert.Equal(t, "INFY", tr.placed[0].Symbol)
	assert.Equal(t, model.TransactionSell, tr.placed[0].TransactionType)
	assert.Equal(t, int64(17), tr.placed[0].Quantity) // floor(28400 / 1600)
	assert.Equal(t, "TCS", tr.placed[1].Symbol)
	assert.Equal(t, int64(6), tr.placed[1].Quantity) // floor(29000 / 4200)

	assert.Equal(t, 100000.0, res.Plan.TotalValue)
	assert.Equal(t, execution.KindRebalance, res.Report.Kind)
}

func TestTargetHoldings(t *testing.T) {
	th := TargetHoldings(basket(), []model.Holding{
		{Symbol: "TCS", Exchange: "NSE", Quantity: 3},
		{Symbol: "TCS", Exchange: "NSE", Quantity: 2},
		{Symbol: "TCS", Exchange: "BSE", Quantity: 9},
	})
	require.Len(t, th, 2)
	assert.Equal(t, int64(5), th[0].Quantity)
	assert.Equal(t, int64(0), th[1].Quantity)
	assert.Equal(t, 50.0, th[1].TargetWeight)
}

func TestValuation(t *testing.T) {
	tr := &fakeTrader{
		prices: map[string]float64{"NSE:TCS": 4400},
		holdings: []model.Holding{
			{Symbol: "INFY", Exchange: "NSE", Quantity: 10, AveragePrice: 1500, LastPrice: 1600},
			{Symbol: "TCS", Exchange: "NSE", Quantity: 5, AveragePrice: 4000, LastPrice: 4200},
		},
		funds: model.Funds{AvailableCash: 1234},
	}
	v, err := newService(tr).Valuation(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 35000.0, v.Invested)
	assert.Equal(t, 38000.0, v.Current)
	assert.Equal(t, 3000.0, v.PnL)
	assert.Equal(t, 1234.0, v.AvailableCash)
	require.Len(t, v.Holdings, 2)
	assert.Equal(t, "TCS", v.Holdings[0].Symbol)
	assert.Equal(t, 4400.0, v.Holdings[0].LastPrice)
	assert.InDelta(t, 10.0, v.Holdings[0].PnLPct, 1e-9)
}
