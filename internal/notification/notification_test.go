package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basket-trading/internal/execution"
	"basket-trading/internal/model"
)

type captureNotifier struct {
	alerts []Alert
	err    error
}

func (c *captureNotifier) Send(_ context.Context, a Alert) error {
	c.alerts = append(c.alerts, a)
	return c.err
}

func partialReport() execution.Report {
	return execution.Report{
		BatchID: "zerodha-abc",
		Broker:  model.BrokerZerodha,
		Kind:    execution.KindBuy,
		Status:  execution.StatusPartial,
		Placed:  1,
		Failed:  1,
		Outcomes: []execution.OutcomeSummary{
			{Symbol: "TCS", Exchange: "NSE", TransactionType: "BUY", Quantity: 5, OrderID: "1"},
			{Symbol: "INFY", Exchange: "NSE", TransactionType: "BUY", Quantity: 15, Error: "rejected: margin"},
		},
	}
}

func TestBatchAlerts(t *testing.T) {
	c := &captureNotifier{}
	sink := NewBatchAlerts(c)

	require.NoError(t, sink.HandleReport(context.Background(), partialReport()))
	require.Len(t, c.alerts, 1)
	a := c.alerts[0]
	assert.Equal(t, AlertWarning, a.Level)
	assert.Equal(t, "BASKET_BUY PARTIAL on zerodha", a.Title)
	assert.Contains(t, a.Message, "1 placed, 1 failed")
	assert.Contains(t, a.Message, "BUY 15 NSE:INFY: rejected: margin")
	assert.NotContains(t, a.Message, "TCS")
	assert.Equal(t, "zerodha-abc", a.BatchID)

	failed := partialReport()
	failed.Status = execution.StatusFailed
	failed.DryRun = true
	alert, ok := sink.AlertFor(failed)
	require.True(t, ok)
	assert.Equal(t, AlertCritical, alert.Level)
	assert.Contains(t, alert.Title, "(dry run)")

	done := partialReport()
	done.Status = execution.StatusCompleted
	require.NoError(t, sink.HandleReport(context.Background(), done))
	assert.Len(t, c.alerts, 1)

	sink.Verbose = true
	require.NoError(t, sink.HandleReport(context.Background(), done))
	require.Len(t, c.alerts, 2)
	assert.Equal(t, AlertInfo, c.alerts[1].Level)
}

func TestMulti(t *testing.T) {
	bad := &captureNotifier{err: errors.New("down")}
	good := &captureNotifier{}
	err := Multi{bad, good, NewLogNotifier(nil)}.Send(context.Background(), Alert{Title: "x"})
	assert.EqualError(t, err, "down")
	assert.Len(t, good.alerts, 1)
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(srv.URL)
	defer w.Close()
	require.NoError(t, w.Send(context.Background(), Alert{Level: AlertCritical, Title: "t", Message: "m", BatchID: "b1"}))
	assert.Equal(t, "CRITICAL", got["level"])
	assert.Equal(t, "b1", got["batchId"])
	assert.NotEmpty(t, got["ts"])

	fail := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer fail.Close()
	err := NewWebhookNotifier(fail.URL).Send(context.Background(), Alert{})
	assert.ErrorContains(t, err, "unexpected status 502")
}

func TestTelegramNotifier(t *testing.T) {
	var path string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("123:abc", "42", srv.URL)
	defer tg.Close()
	require.NoError(t, tg.Send(context.Background(), Alert{Level: AlertWarning, Title: "REBALANCE PARTIAL", Message: "1 placed."}))
	assert.Equal(t, "/bot123:abc/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "MarkdownV2", body["parse_mode"])
	assert.Contains(t, body["text"], `1 placed\.`)
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `a\_b\*c\.d`, escapeMarkdown("a_b*c.d"))
	assert.Equal(t, "plain", escapeMarkdown("plain"))
}
