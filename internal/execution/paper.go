package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"basket-trading/internal/markethours"
	"basket-trading/internal/model"
	"basket-trading/internal/tradeerr"
)

// Fill is a simulated execution.
type Fill struct {
	OrderID   string      `json:"order_id"`
	Order     model.Order `json:"order"`
	FillPrice float64     `json:"fill_price"`
	Slippage  float64     `json:"slippage"`
	FilledAt  time.Time   `json:"filled_at"`
}

// PaperPlacer simulates order placement without broker calls. Market orders
// fill at the reference price plus slippage against the trader; limit orders
// fill at their limit.
type PaperPlacer struct {
	mu       sync.RWMutex
	fills    []Fill
	orderSeq int64

	prices      map[string]float64 // Instrument.Key() -> reference price
	slippageBps float64            // e.g. 5 = 0.05%
	now         func() time.Time
	anyTime     bool
	log         *slog.Logger
}

// PaperOption configures a PaperPlacer.
type PaperOption func(*PaperPlacer)

func PaperClock(now func() time.Time) PaperOption {
	return func(p *PaperPlacer) { p.now = now }
}

// PaperIgnoreMarketHours accepts orders while the market is closed.
func PaperIgnoreMarketHours() PaperOption {
	return func(p *PaperPlacer) { p.anyTime = true }
}

func PaperLogger(l *slog.Logger) PaperOption {
	return func(p *PaperPlacer) { p.log = l }
}

// NewPaperPlacer creates a paper placer that prices market orders from prices.
func NewPaperPlacer(prices map[string]float64, slippageBps float64, opts ...PaperOption) *PaperPlacer {
	p := &PaperPlacer{
		fills:       make([]Fill, 0, 64),
		prices:      prices,
		slippageBps: slippageBps,
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, fn := range opts {
		fn(p)
	}
	return p
}

// PlaceOrder validates the order and records a simulated fill.
func (p *PaperPlacer) PlaceOrder(_ context.Context, o model.Order) (model.OrderResult, error) {
	const op = "placeOrder"
	if err := o.Validate(); err != nil {
		return model.OrderResult{}, tradeerr.Wrap(tradeerr.ErrValidation, op, err)
	}
	now := p.now()
	if !p.anyTime && !markethours.IsMarketOpen(now) {
		return model.OrderResult{}, tradeerr.New(tradeerr.ErrRejected, op, "market closed (%s)", markethours.StatusString(now))
	}

	price := o.Price
	var slippage float64
	if o.OrderType != model.OrderTypeLimit {
		ref, ok := p.prices[o.Instrument().Key()]
		if !ok || ref <= 0 {
			return model.OrderResult{}, tradeerr.New(tradeerr.ErrRejected, op, "no reference price for %s", o.Instrument().Key())
		}
		slippage = ref * p.slippageBps / 10000
		price = ref + slippage
		if o.TransactionType == model.TransactionSell {
			price = ref - slippage
		}
	}

	p.mu.Lock()
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)
	p.fills = append(p.fills, Fill{
		OrderID:   orderID,
		Order:     o,
		FillPrice: price,
		Slippage:  slippage,
		FilledAt:  now,
	})
	p.mu.Unlock()

	p.log.Info("paper fill",
		slog.String("order_id", orderID),
		slog.String("side", o.TransactionType),
		slog.String("instrument", o.Instrument().Key()),
		slog.Int64("qty", o.Quantity),
		slog.Float64("price", price),
		slog.Float64("slippage", slippage),
	)
	return model.OrderResult{
		OrderID: orderID,
		Status:  model.StatusPlaced,
		Message: fmt.Sprintf("paper filled at %.2f", price),
	}, nil
}

// Fills returns a snapshot of all fills.
func (p *PaperPlacer) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}
