// Package execution places batches of orders through a broker.
//
// Orders go out one at a time, paced by a rate limiter sized to the broker's
// documented orders-per-second. Each order's outcome is captured on its own;
// a rejection never aborts the rest of the batch.
package execution

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/ratelimit"

	"basket-trading/internal/logger"
	"basket-trading/internal/model"
)

// DefaultOrdersPerSecond is used when no rate is configured.
const DefaultOrdersPerSecond = 10

// OrderPlacer is the slice of broker.Broker the executor needs.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, order model.Order) (model.OrderResult, error)
}

// Outcome is the result of one order. Exactly one of Result and Err is set.
type Outcome struct {
	Order  model.Order        `json:"order"`
	Result *model.OrderResult `json:"result,omitempty"`
	Err    error              `json:"-"`
}

// OK reports whether the order was accepted.
func (o Outcome) OK() bool {
	return o.Err == nil && o.Result != nil
}

// Error returns the failure text, or "" for an accepted order.
func (o Outcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

// Executor places order batches sequentially.
type Executor struct {
	placer    OrderPlacer
	limiter   ratelimit.Limiter
	log       *slog.Logger
	onOutcome func(i int, out Outcome)
}

type options struct {
	rate      int
	clock     ratelimit.Clock
	log       *slog.Logger
	onOutcome func(int, Outcome)
}

// Option configures an Executor.
type Option func(*options)

// WithRate sets orders per second. Non-positive values keep the default.
func WithRate(perSecond int) Option {
	return func(o *options) {
		if perSecond > 0 {
			o.rate = perSecond
		}
	}
}

// WithClock swaps the limiter's clock; tests use a fake one.
func WithClock(c ratelimit.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithOutcomeHook is called after every order, in batch order.
func WithOutcomeHook(fn func(i int, out Outcome)) Option {
	return func(o *options) { o.onOutcome = fn }
}

// NewExecutor creates an executor over placer.
func NewExecutor(placer OrderPlacer, opts ...Option) *Executor {
	o := options{rate: DefaultOrdersPerSecond, log: slog.Default()}
	for _, fn := range opts {
		fn(&o)
	}
	lopts := []ratelimit.Option{ratelimit.Per(time.Second), ratelimit.WithoutSlack}
	if o.clock != nil {
		lopts = append(lopts, ratelimit.WithClock(o.clock))
	}
	return &Executor{
		placer:    placer,
		limiter:   ratelimit.New(o.rate, lopts...),
		log:       o.log,
		onOutcome: o.onOutcome,
	}
}

// PlaceMultipleOrders places orders in input order and returns one Outcome
// per order, in the same order. Once ctx is done the remaining orders are not
// sent and carry ctx.Err().
func (e *Executor) PlaceMultipleOrders(ctx context.Context, orders []model.Order) []Outcome {
	out := make([]Outcome, len(orders))
	attrs := logger.LogWithBatch(ctx)

	for i, order := range orders {
		out[i].Order = order
		if err := ctx.Err(); err != nil {
			out[i].Err = err
			e.emit(i, out[i])
			continue
		}

		e.limiter.Take()

		res, err := e.placer.PlaceOrder(ctx, order)
		if err != nil {
			out[i].Err = err
			e.log.Warn("order failed", append(attrs,
				slog.Int("index", i),
				slog.String("symbol", order.Symbol),
				slog.String("exchange", order.Exchange),
				slog.String("side", order.TransactionType),
				slog.Int64("qty", order.Quantity),
				slog.String("error", err.Error()),
			)...)
		} else {
			out[i].Result = &res
			e.log.Info("order placed", append(attrs,
				slog.Int("index", i),
				slog.String("symbol", order.Symbol),
				slog.String("side", order.TransactionType),
				slog.Int64("qty", order.Quantity),
				slog.String("order_id", res.OrderID),
			)...)
		}
		e.emit(i, out[i])
	}
	return out
}

func (e *Executor) emit(i int, o Outcome) {
	if e.onOutcome != nil {
		e.onOutcome(i, o)
	}
}
