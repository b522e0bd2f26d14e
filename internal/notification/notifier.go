// Package notification delivers alerts about finished order batches to
// external channels.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"basket-trading/internal/execution"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	BatchID string     `json:"batchId,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to slog.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier. A nil logger uses slog.Default.
func NewLogNotifier(l *slog.Logger) *LogNotifier {
	if l == nil {
		l = slog.Default()
	}
	return &LogNotifier{log: l}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	n.log.Warn("alert",
		slog.String("level", string(alert.Level)),
		slog.String("title", alert.Title),
		slog.String("message", alert.Message),
		slog.String("batch_id", alert.BatchID))
	return nil
}

// Multi fans an alert out to several notifiers and returns the first error.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var first error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// BatchAlerts turns finished batch reports into alerts. Completed and empty
// batches are silent unless Verbose is set.
type BatchAlerts struct {
	n       Notifier
	Verbose bool
}

// NewBatchAlerts wraps n as a report sink.
func NewBatchAlerts(n Notifier) *BatchAlerts {
	return &BatchAlerts{n: n}
}

// HandleReport sends an alert for PARTIAL and FAILED batches.
func (b *BatchAlerts) HandleReport(ctx context.Context, r execution.Report) error {
	alert, ok := b.AlertFor(r)
	if !ok {
		return nil
	}
	return b.n.Send(ctx, alert)
}

// AlertFor builds the alert for r, reporting false when r should stay silent.
func (b *BatchAlerts) AlertFor(r execution.Report) (Alert, bool) {
	var level AlertLevel
	switch r.Status {
	case execution.StatusFailed:
		level = AlertCritical
	case execution.StatusPartial:
		level = AlertWarning
	default:
		if !b.Verbose {
			return Alert{}, false
		}
		level = AlertInfo
	}

	title := fmt.Sprintf("%s %s on %s", r.Kind, r.Status, r.Broker)
	if r.DryRun {
		title += " (dry run)"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d placed, %d failed", r.Placed, r.Failed)
	for _, o := range r.Outcomes {
		if o.Error == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n%s %d %s:%s: %s", o.TransactionType, o.Quantity, o.Exchange, o.Symbol, o.Error)
	}
	return Alert{Level: level, Title: title, Message: sb.String(), BatchID: r.BatchID}, true
}
