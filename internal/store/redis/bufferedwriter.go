package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"basket-trading/internal/execution"
	"basket-trading/internal/ringbuf"
)

// reportWriter is the write side the publisher guards; *Store implements it.
type reportWriter interface {
	PublishReport(ctx context.Context, r execution.Report) error
}

// ReportPublisher publishes batch reports through a circuit breaker. While
// publishing fails reports are held in a bounded ring (oldest dropped when
// full) and replayed, in order, ahead of the next report.
type ReportPublisher struct {
	w   reportWriter
	cb  *CircuitBreaker
	log *slog.Logger

	mu      sync.Mutex
	pending *ringbuf.Ring[execution.Report]

	// OnBuffer is called with the pending count after a report is held back
	// and with 0 once a backlog has been replayed.
	OnBuffer func(pending int)
}

// NewReportPublisher wraps w with cb. maxBuffer <= 0 means 256.
func NewReportPublisher(w reportWriter, cb *CircuitBreaker, maxBuffer int) *ReportPublisher {
	if maxBuffer <= 0 {
		maxBuffer = 256
	}
	return &ReportPublisher{
		w:       w,
		cb:      cb,
		log:     slog.Default(),
		pending: ringbuf.New[execution.Report](maxBuffer),
	}
}

// HandleReport publishes r, first replaying anything held back. It never
// fails the caller for a held-back report.
func (p *ReportPublisher) HandleReport(ctx context.Context, r execution.Report) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	held := p.pending.Len()
	if p.drain(ctx) && p.publish(ctx, r) == nil {
		if held > 0 && p.OnBuffer != nil {
			p.OnBuffer(0)
		}
		return nil
	}
	if p.pending.Push(r) {
		p.log.Warn("report buffer full, dropped oldest", slog.Uint64("dropped_total", p.pending.Overflow()))
	}
	if p.OnBuffer != nil {
		p.OnBuffer(p.pending.Len())
	}
	return nil
}

// drain publishes held reports oldest first, stopping at the first failure.
func (p *ReportPublisher) drain(ctx context.Context) bool {
	for {
		rep, ok := p.pending.Peek()
		if !ok {
			return true
		}
		if p.publish(ctx, rep) != nil {
			return false
		}
		p.pending.Pop()
	}
}

func (p *ReportPublisher) publish(ctx context.Context, r execution.Report) error {
	err := p.cb.Execute(func() error { return p.w.PublishReport(ctx, r) })
	if err != nil && !errors.Is(err, ErrCircuitOpen) {
		p.log.Warn("report publish failed, holding",
			slog.String("batch_id", r.BatchID),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// PendingCount returns the number of held-back reports.
func (p *ReportPublisher) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.Len()
}
