// Package portfolio runs the end-to-end trading flows on one broker account:
// fetch prices, size or rebalance, guard, execute and report.
//
// The service holds no state between calls besides its configuration; every
// flow fetches fresh prices and holdings.
package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/ratelimit"

	"basket-trading/internal/broker"
	"basket-trading/internal/execution"
	"basket-trading/internal/logger"
	"basket-trading/internal/model"
	"basket-trading/internal/rebalance"
	"basket-trading/internal/sizing"
)

// Trader is the slice of broker.Broker the flows use.
type Trader interface {
	Type() broker.Type
	GetLTP(ctx context.Context, instruments []model.Instrument) (map[string]float64, error)
	GetHoldings(ctx context.Context) ([]model.Holding, error)
	GetFunds(ctx context.Context) (model.Funds, error)
	PlaceOrder(ctx context.Context, order model.Order) (model.OrderResult, error)
}

// ReportSink receives every finished batch. Sink errors are logged, never
// returned to the caller: the orders are already placed.
type ReportSink interface {
	HandleReport(ctx context.Context, r execution.Report) error
}

// Policy is the account's trading policy.
type Policy struct {
	Threshold       float64              `yaml:"rebalance_threshold"`
	Limits          sizing.Limits        `yaml:"basket_limits"`
	Orders          sizing.OrderDefaults `yaml:"orders"`
	OrdersPerSecond int                  `yaml:"orders_per_second"`
	Risk            RiskLimits           `yaml:"risk"`
}

// DefaultPolicy is a 5% threshold with default basket limits.
func DefaultPolicy() Policy {
	return Policy{
		Threshold: rebalance.DefaultThreshold,
		Limits:    sizing.DefaultLimits,
	}
}

// Service runs trading flows for one account.
type Service struct {
	trader Trader
	policy Policy
	sinks  []ReportSink
	log    *slog.Logger
	now    func() time.Time
	clock  ratelimit.Clock
	hook   func(int, execution.Outcome)

	dryRun      bool
	slippageBps float64
	anyTime     bool
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithSinks(sinks ...ReportSink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPacingClock is handed to the executor's rate limiter.
func WithPacingClock(c ratelimit.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithOutcomeHook is called after each order of every batch.
func WithOutcomeHook(fn func(int, execution.Outcome)) Option {
	return func(s *Service) { s.hook = fn }
}

// WithDryRun routes orders to a paper placer priced from the batch's quotes.
func WithDryRun(slippageBps float64, ignoreMarketHours bool) Option {
	return func(s *Service) {
		s.dryRun = true
		s.slippageBps = slippageBps
		s.anyTime = ignoreMarketHours
	}
}

// New creates a service over trader.
func New(trader Trader, policy Policy, opts ...Option) *Service {
	s := &Service{
		trader: trader,
		policy: policy,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// Prices fetches last prices for instruments.
func (s *Service) Prices(ctx context.Context, instruments []model.Instrument) (map[string]float64, error) {
	if len(instruments) == 0 {
		return map[string]float64{}, nil
	}
	return s.trader.GetLTP(ctx, instruments)
}

// PreviewBasket sizes a basket purchase at current prices without placing orders.
func (s *Service) PreviewBasket(ctx context.Context, stocks []model.BasketStock, amount float64) (sizing.Plan, map[string]float64, error) {
	if err := sizing.ValidateBasket(stocks, s.policy.Limits); err != nil {
		return sizing.Plan{}, nil, err
	}
	prices, err := s.Prices(ctx, basketInstruments(stocks))
	if err != nil {
		return sizing.Plan{}, nil, err
	}
	plan, err := sizing.PlanBasket(stocks, prices, amount, s.policy.Limits)
	return plan, prices, err
}

// BuyResult is the outcome of BuyBasket.
type BuyResult struct {
	Plan     sizing.Plan         `json:"plan"`
	Report   execution.Report    `json:"report"`
	Outcomes []execution.Outcome `json:"-"`
}

// BuyBasket sizes the basket, checks risk limits and funds, and places the
// BUY orders as one batch.
func (s *Service) BuyBasket(ctx context.Context, stocks []model.BasketStock, amount float64) (BuyResult, error) {
	plan, prices, err := s.PreviewBasket(ctx, stocks, amount)
	if err != nil {
		return BuyResult{Plan: plan}, err
	}
	if err := s.checkRisk(ctx, plan.TotalAmount, plannedValues(plan)); err != nil {
		return BuyResult{Plan: plan}, err
	}

	ctx, batchID := s.batchContext(ctx)
	orders := sizing.ToOrders(plan, s.orderDefaults(batchID))
	report, outcomes := s.execute(ctx, batchID, execution.KindBuy, orders, prices, map[string]string{
		"investment_amount": fmt.Sprintf("%.2f", amount),
		"unused_amount":     fmt.Sprintf("%.2f", plan.UnusedAmount),
	})
	return BuyResult{Plan: plan, Report: report, Outcomes: outcomes}, nil
}

// PreviewRebalance merges targets with current holdings and computes the
// corrective orders. Basket members not yet held count as quantity 0;
// holdings outside the basket are left alone. extraCash is added to the
// holdings' value before weights are computed.
func (s *Service) PreviewRebalance(ctx context.Context, targets []model.BasketStock, extraCash float64) (rebalance.Plan, map[string]float64, error) {
	if err := sizing.ValidateBasket(targets, s.policy.Limits); err != nil {
		return rebalance.Plan{}, nil, err
	}
	holdings, err := s.trader.GetHoldings(ctx)
	if err != nil {
		return rebalance.Plan{}, nil, err
	}
	th := TargetHoldings(targets, holdings)
	prices, err := s.Prices(ctx, basketInstruments(targets))
	if err != nil {
		return rebalance.Plan{}, nil, err
	}
	total := rebalance.TotalValue(th, prices) + extraCash
	plan, err := rebalance.CalculateRebalanceOrders(th, prices, total, s.policy.Threshold)
	return plan, prices, err
}

// RebalanceResult is the outcome of Rebalance.
type RebalanceResult struct {
	Plan     rebalance.Plan      `json:"plan"`
	Report   execution.Report    `json:"report"`
	Outcomes []execution.Outcome `json:"-"`
}

// Rebalance computes and places the corrective orders, SELLs first.
func (s *Service) Rebalance(ctx context.Context, targets []model.BasketStock, extraCash float64) (RebalanceResult, error) {
	plan, prices, err := s.PreviewRebalance(ctx, targets, extraCash)
	if err != nil {
		return RebalanceResult{Plan: plan}, err
	}
	var values []float64
	for _, o := range plan.Orders {
		values = append(values, o.Amount)
	}
	if err := s.checkRisk(ctx, -plan.NetCash(), values); err != nil {
		return RebalanceResult{Plan: plan}, err
	}

	ctx, batchID := s.batchContext(ctx)
	orders := rebalance.ToOrders(plan, s.orderDefaults(batchID))
	report, outcomes := s.execute(ctx, batchID, execution.KindRebalance, orders, prices, map[string]string{
		"threshold":   fmt.Sprintf("%.2f", plan.Threshold),
		"total_value": fmt.Sprintf("%.2f", plan.TotalValue),
		"buy_amount":  fmt.Sprintf("%.2f", plan.BuyAmount),
		"sell_amount": fmt.Sprintf("%.2f", plan.SellAmount),
	})
	return RebalanceResult{Plan: plan, Report: report, Outcomes: outcomes}, nil
}

// TargetHoldings pairs basket targets with held quantities.
func TargetHoldings(targets []model.BasketStock, holdings []model.Holding) []model.TargetHolding {
	held := make(map[string]int64, len(holdings))
	for _, h := range holdings {
		held[h.Key()] += h.Quantity
	}
	out := make([]model.TargetHolding, 0, len(targets))
	for _, t := range targets {
		out = append(out, model.TargetHolding{
			Symbol:       t.Symbol,
			Exchange:     t.Exchange,
			Quantity:     held[t.Key()],
			TargetWeight: t.Weight,
		})
	}
	return out
}

func (s *Service) batchContext(ctx context.Context) (context.Context, string) {
	id := logger.NewBatchID(string(s.trader.Type()))
	return logger.WithBatchID(ctx, id), id
}

// orderDefaults tags orders with the batch so they can be found in the
// broker's order book. Tags are alphanumeric and at most 20 characters.
func (s *Service) orderDefaults(batchID string) sizing.OrderDefaults {
	d := s.policy.Orders
	if d.Tag == "" {
		d.Tag = "bk" + batchID[len(batchID)-12:]
	}
	return d
}

func (s *Service) execute(ctx context.Context, batchID, kind string, orders []model.Order, prices map[string]float64, meta map[string]string) (execution.Report, []execution.Outcome) {
	var placer execution.OrderPlacer = s.trader
	if s.dryRun {
		popts := []execution.PaperOption{execution.PaperClock(s.now), execution.PaperLogger(s.log)}
		if s.anyTime {
			popts = append(popts, execution.PaperIgnoreMarketHours())
		}
		placer = execution.NewPaperPlacer(prices, s.slippageBps, popts...)
	}
	opts := []execution.Option{
		execution.WithRate(s.policy.OrdersPerSecond),
		execution.WithLogger(s.log),
	}
	if s.clock != nil {
		opts = append(opts, execution.WithClock(s.clock))
	}
	if s.hook != nil {
		opts = append(opts, execution.WithOutcomeHook(s.hook))
	}

	attrs := logger.LogWithBatch(ctx)
	s.log.Info("batch starting", append(attrs,
		slog.String("kind", kind),
		slog.Int("orders", len(orders)),
		slog.Bool("dry_run", s.dryRun),
	)...)

	started := s.now()
	outcomes := execution.NewExecutor(placer, opts...).PlaceMultipleOrders(ctx, orders)
	report := execution.NewReport(batchID, s.trader.Type(), kind, outcomes, started, s.now())
	report.DryRun = s.dryRun
	report.Meta = meta

	s.log.Info("batch finished", append(attrs,
		slog.String("status", string(report.Status)),
		slog.Int("placed", report.Placed),
		slog.Int("failed", report.Failed),
	)...)

	for _, sink := range s.sinks {
		if err := sink.HandleReport(ctx, report); err != nil {
			s.log.Error("report sink failed", append(attrs, slog.String("error", err.Error()))...)
		}
	}
	return report, outcomes
}

func basketInstruments(stocks []model.BasketStock) []model.Instrument {
	out := make([]model.Instrument, 0, len(stocks))
	for _, st := range stocks {
		out = append(out, model.Instrument{Exchange: st.Exchange, Symbol: st.Symbol})
	}
	return out
}

func plannedValues(plan sizing.Plan) []float64 {
	out := make([]float64, 0, len(plan.Orders))
	for _, o := range plan.Orders {
		out = append(out, o.Amount)
	}
	return out
}
