package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Jobscrape-Signature"

// DefaultRetryDelays are the waits before each webhook attempt.
var DefaultRetryDelays = []time.Duration{0, 1 * time.Second, 5 * time.Second, 30 * time.Second}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
// Header: X-Jobscrape-Signature: sha256=<hex>
func Deliver(ctx context.Context, client *http.Client, url, secret string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Jobscrape-Webhook/1.0")

	if secret != "" {
		req.Header.Set(SignatureHeader, Sign(secret, body))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Webhook is a Sink posting events to one URL, retrying failed deliveries.
type Webhook struct {
	URL    string
	Secret string

	// Delays are the waits before each attempt; nil means DefaultRetryDelays.
	Delays []time.Duration

	Client *http.Client
}

// NewWebhook creates a Webhook sink with a 10s per-attempt timeout.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		URL:    url,
		Secret: secret,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) Name() string { return "webhook" }

// Publish delivers event, retrying until an attempt succeeds, the delays
// run out or ctx ends.
func (w *Webhook) Publish(ctx context.Context, event *Event) error {
	delays := w.Delays
	if delays == nil {
		delays = DefaultRetryDelays
	}
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}

	var err error
	for attempt, delay := range delays {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = Deliver(ctx, client, w.URL, w.Secret, event); err == nil {
			slog.Info("webhook delivered",
				"url", w.URL,
				"event", event.Type,
				"run_id", event.RunID,
				"attempt", attempt+1,
			)
			return nil
		}
		slog.Warn("webhook delivery failed",
			"url", w.URL,
			"event", event.Type,
			"run_id", event.RunID,
			"attempt", attempt+1,
			"error", err,
		)
	}
	return fmt.Errorf("webhook: exhausted %d attempts: %w", len(delays), err)
}

func (w *Webhook) Close() error { return nil }
