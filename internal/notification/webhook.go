package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"resty.dev/v3"
)

// WebhookNotifier POSTs alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *resty.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: resty.New().SetTimeout(10 * time.Second),
		now:    time.Now,
	}
}

// Close releases idle connections.
func (w *WebhookNotifier) Close() error { return w.client.Close() }

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	payload := map[string]any{
		"level":   string(alert.Level),
		"title":   alert.Title,
		"message": alert.Message,
		"batchId": alert.BatchID,
		"ts":      w.now().UTC().Format(time.RFC3339Nano),
	}

	resp, err := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode())
	}

	slog.Debug("webhook alert sent", slog.String("url", w.url), slog.String("title", alert.Title))
	return nil
}
