package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/didinska21/wallet-hunter/internal/retry"
)

// WebhookTransport posts notifications as JSON to a generic HTTP endpoint.
type WebhookTransport struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *WebhookTransport {
	return &WebhookTransport{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookTransport) Name() string { return "webhook" }

func (w *WebhookTransport) Send(ctx context.Context, msg Message) error {
	envelope := map[string]any{
		"kind":    string(msg.Kind),
		"text":    msg.Text,
		"payload": msg.Payload,
		"sent_at": time.Now().UTC().Format(time.RFC3339),
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return retry.Terminal(fmt.Errorf("marshal webhook payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return retry.Terminal(fmt.Errorf("create webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("send webhook notification: %w", err))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return retry.Transient(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	default:
		return retry.Terminal(fmt.Errorf("webhook returned status %d", resp.StatusCode))
	}
}
