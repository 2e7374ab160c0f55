package webhook

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

	"github.com/use-agent/scout/models"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>" when a secret is set.
const SignatureHeader = "X-Scout-Signature"

// Event is the payload sent to callback URLs.
type Event struct {
	Type      string         `json:"type"` // "search.result" or "search.error"
	Timestamp int64          `json:"timestamp"`
	Message   models.Message `json:"message"`
}

// Publisher delivers search messages to callback URLs. Each message is one
// synchronous POST, so a site's results arrive in document order.
type Publisher struct {
	client *http.Client
	secret string
	logger *slog.Logger
}

// NewPublisher creates a Publisher. timeout bounds each delivery.
func NewPublisher(secret string, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client: &http.Client{Timeout: timeout},
		secret: secret,
		logger: logger,
	}
}

// Publish posts msg to callbackURL. There is no retry: a failed delivery
// ends the unit that produced it.
func (p *Publisher) Publish(ctx context.Context, callbackURL string, msg models.Message) error {
	event := &Event{
		Type:      "search." + msg.Type,
		Timestamp: time.Now().Unix(),
		Message:   msg,
	}
	if err := Deliver(ctx, p.client, callbackURL, p.secret, event); err != nil {
		p.logger.Warn("webhook delivery failed", "url", callbackURL, "event", event.Type, "error", err)
		return err
	}
	p.logger.Debug("webhook delivered", "url", callbackURL, "event", event.Type)
	return nil
}

// Deliver sends a webhook event synchronously.
// The request body is signed with HMAC-SHA256 if secret is non-empty.
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
	req.Header.Set("User-Agent", "Scout-Webhook/1.0")

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

// Sign returns the signature header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
