package alert

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
)

// SignatureHeader carries the hex HMAC-SHA256 of the body, prefixed "sha256=".
const SignatureHeader = "X-Signature-256"

// Webhook sends the notification as JSON to a generic HTTP endpoint.
type Webhook struct {
	client *http.Client
	url    string
	secret string
}

// NewWebhook creates a new generic webhook notifier. An empty secret sends
// unsigned requests.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{client: newClient(), url: url, secret: secret}
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) Send(ctx context.Context, n *Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	h := http.Header{}
	h.Set("User-Agent", "degendigest/1.0")
	if w.secret != "" {
		h.Set(SignatureHeader, Sign(w.secret, body))
	}
	if err := post(ctx, w.client, w.url, body, h); err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	return nil
}

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
