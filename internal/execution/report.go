package execution

import (
	"time"

	"basket-trading/internal/model"
)

// BatchStatus classifies a finished batch.
type BatchStatus string

const (
	StatusCompleted BatchStatus = "COMPLETED"
	StatusPartial   BatchStatus = "PARTIAL"
	StatusFailed    BatchStatus = "FAILED"
	StatusEmpty     BatchStatus = "EMPTY"
)

// Batch kinds.
const (
	KindBuy       = "BASKET_BUY"
	KindRebalance = "REBALANCE"
)

// Classify returns COMPLETED when every order was accepted, FAILED when none
// was, PARTIAL otherwise and EMPTY for no orders.
func Classify(outcomes []Outcome) BatchStatus {
	if len(outcomes) == 0 {
		return StatusEmpty
	}
	ok := 0
	for _, o := range outcomes {
		if o.OK() {
			ok++
		}
	}
	switch ok {
	case len(outcomes):
		return StatusCompleted
	case 0:
		return StatusFailed
	}
	return StatusPartial
}

// Report is a classified batch, ready for the journal, publisher and notifier.
type Report struct {
	BatchID    string            `json:"batchId"`
	Broker     model.BrokerType  `json:"broker"`
	Kind       string            `json:"kind"`
	Status     BatchStatus       `json:"status"`
	DryRun     bool              `json:"dryRun"`
	Outcomes   []OutcomeSummary  `json:"outcomes"`
	Placed     int               `json:"placed"`
	Failed     int               `json:"failed"`
	Meta       map[string]string `json:"meta,omitempty"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
}

// OutcomeSummary is an Outcome flattened for serialization.
type OutcomeSummary struct {
	Symbol          string `json:"symbol"`
	Exchange        string `json:"exchange"`
	TransactionType string `json:"transactionType"`
	Quantity        int64  `json:"quantity"`
	OrderID         string `json:"orderId,omitempty"`
	Error           string `json:"error,omitempty"`
}

// NewReport summarizes outcomes.
func NewReport(batchID string, b model.BrokerType, kind string, outcomes []Outcome, started, finished time.Time) Report {
	r := Report{
		BatchID:    batchID,
		Broker:     b,
		Kind:       kind,
		Status:     Classify(outcomes),
		Outcomes:   make([]OutcomeSummary, 0, len(outcomes)),
		StartedAt:  started,
		FinishedAt: finished,
	}
	for _, o := range outcomes {
		s := OutcomeSummary{
			Symbol:          o.Order.Symbol,
			Exchange:        o.Order.Exchange,
			TransactionType: o.Order.TransactionType,
			Quantity:        o.Order.Quantity,
			Error:           o.Error(),
		}
		if o.OK() {
			s.OrderID = o.Result.OrderID
			r.Placed++
		} else {
			r.Failed++
		}
		r.Outcomes = append(r.Outcomes, s)
	}
	return r
}
