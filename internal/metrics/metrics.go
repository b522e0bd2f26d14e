package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"basket-trading/internal/execution"
	"basket-trading/internal/tradeerr"
)

// Metrics holds all Prometheus collectors for the trading core.
type Metrics struct {
	// Broker calls, labelled by broker, op and result kind.
	BrokerCalls   *prometheus.CounterVec
	BrokerCallDur *prometheus.HistogramVec

	// Orders and batches
	OrdersTotal  *prometheus.CounterVec // broker, side, result
	BatchesTotal *prometheus.CounterVec // broker, kind, status
	BatchDur     *prometheus.HistogramVec

	// Catalog refresh
	CatalogRows      *prometheus.GaugeVec // broker
	CatalogRefreshed *prometheus.GaugeVec // broker, unix seconds

	// Session
	SessionExpiry *prometheus.GaugeVec // broker, unix seconds

	// Report publishing
	PublisherBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	PublisherBreakerTrips prometheus.Counter
	ReportsPending        prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		BrokerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_broker_calls_total",
			Help: "Broker API calls by operation and result",
		}, []string{"broker", "op", "result"}),
		BrokerCallDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "basket_broker_call_duration_seconds",
			Help:    "Broker API call latency",
			Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"broker", "op"}),

		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_orders_total",
			Help: "Orders submitted in batches by side and result",
		}, []string{"broker", "side", "result"}),
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "basket_batches_total",
			Help: "Finished order batches by kind and status",
		}, []string{"broker", "kind", "status"}),
		BatchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "basket_batch_duration_seconds",
			Help:    "Wall time of an order batch",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"broker", "kind"}),

		CatalogRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "basket_catalog_rows",
			Help: "Rows in the last downloaded catalog",
		}, []string{"broker"}),
		CatalogRefreshed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "basket_catalog_refreshed_timestamp_seconds",
			Help: "Unix time of the last catalog refresh",
		}, []string{"broker"}),

		SessionExpiry: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "basket_session_expiry_timestamp_seconds",
			Help: "Unix time at which the current broker session expires",
		}, []string{"broker"}),

		PublisherBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "basket_report_publisher_breaker_state",
			Help: "Report publisher circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		PublisherBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "basket_report_publisher_breaker_trips_total",
			Help: "Times the report publisher circuit breaker tripped open",
		}),
		ReportsPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "basket_reports_pending",
			Help: "Batch reports held back while the publisher is unavailable",
		}),
	}

	reg.MustRegister(
		m.BrokerCalls, m.BrokerCallDur,
		m.OrdersTotal, m.BatchesTotal, m.BatchDur,
		m.CatalogRows, m.CatalogRefreshed,
		m.SessionExpiry,
		m.PublisherBreakerState, m.PublisherBreakerTrips, m.ReportsPending,
	)
	return m
}

// Result maps an error to a low-cardinality label: "ok", the error kind
// ("auth", "rate_limit", ...), "canceled" or "other".
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	switch tradeerr.KindOf(err) {
	case tradeerr.ErrValidation:
		return "validation"
	case tradeerr.ErrAuth:
		return "auth"
	case tradeerr.ErrNetwork:
		return "network"
	case tradeerr.ErrRateLimit:
		return "rate_limit"
	case tradeerr.ErrRejected:
		return "rejected"
	case tradeerr.ErrInsufficientAmount:
		return "insufficient_amount"
	}
	return "other"
}

// ObserveCall records one broker call.
func (m *Metrics) ObserveCall(broker, op string, start time.Time, err error) {
	m.BrokerCalls.WithLabelValues(broker, op, Result(err)).Inc()
	m.BrokerCallDur.WithLabelValues(broker, op).Observe(time.Since(start).Seconds())
}

// HandleReport records a finished batch. It never fails.
func (m *Metrics) HandleReport(_ context.Context, r execution.Report) error {
	b := string(r.Broker)
	m.BatchesTotal.WithLabelValues(b, r.Kind, string(r.Status)).Inc()
	m.BatchDur.WithLabelValues(b, r.Kind).Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	for _, o := range r.Outcomes {
		result := "ok"
		if o.Error != "" {
			result = "failed"
		}
		m.OrdersTotal.WithLabelValues(b, strings.ToLower(o.TransactionType), result).Inc()
	}
	return nil
}

// ObserveCatalog records a catalog refresh.
func (m *Metrics) ObserveCatalog(broker string, rows int, at time.Time) {
	m.CatalogRows.WithLabelValues(broker).Set(float64(rows))
	m.CatalogRefreshed.WithLabelValues(broker).Set(float64(at.Unix()))
}

// BreakerStateChanged is wired to the report publisher's breaker.
func (m *Metrics) BreakerStateChanged(to int) {
	m.PublisherBreakerState.Set(float64(to))
	if to == 1 {
		m.PublisherBreakerTrips.Inc()
	}
}
