package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aaronwang/community-auction/shared/models"
)

// Webhook posts user-addressed events to the chat transport
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook deliverer. An empty url disables delivery.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a webhook url is configured
func (w *Webhook) Enabled() bool {
	return w.url != ""
}

// Deliver sends one event; any non-2xx answer is an error
func (w *Webhook) Deliver(ctx context.Context, event *models.AuctionEvent) error {
	if !w.Enabled() {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-ID", event.EventID)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
