package dispatch

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mbd888/sendgate/internal/retry"
	"github.com/mbd888/sendgate/internal/tenant"
)

const (
	webhookTimeout     = 10 * time.Second
	webhookMaxAttempts = 3
	webhookBaseDelay   = 500 * time.Millisecond
)

// WebhookSink POSTs events to the tenant's configured webhook URL, signed
// with HMAC-SHA256 so the receiver can verify origin. Tenants without a
// webhook URL are skipped silently.
type WebhookSink struct {
	tenants tenant.Store
	secret  string
	client  *http.Client
}

// NewWebhookSink creates a webhook sink. secret is the shared signing key;
// empty disables signing.
func NewWebhookSink(tenants tenant.Store, secret string) *WebhookSink {
	return &WebhookSink{
		tenants: tenants,
		secret:  secret,
		client:  &http.Client{Timeout: webhookTimeout},
	}
}

func (s *WebhookSink) Name() string { return "webhook" }

func (s *WebhookSink) Handle(ctx context.Context, event *Event) error {
	t, err := s.tenants.Get(ctx, event.TenantID)
	if err != nil {
		return fmt.Errorf("webhook: lookup tenant: %w", err)
	}
	if t.WebhookURL == "" {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	return retry.Do(ctx, webhookMaxAttempts, webhookBaseDelay, func() error {
		return s.post(ctx, t.WebhookURL, event, payload)
	})
}

func (s *WebhookSink) post(ctx context.Context, url string, event *Event, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("webhook: build request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sendgate-Event", string(event.Type))
	req.Header.Set("X-Sendgate-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))
	if s.secret != "" {
		req.Header.Set("X-Sendgate-Signature", sign(payload, s.secret))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: post: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The endpoint rejected the payload; retrying cannot help.
		return retry.Permanent(fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode))
	default:
		return fmt.Errorf("webhook: endpoint returned %d", resp.StatusCode)
	}
}

func sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

var _ Sink = (*WebhookSink)(nil)
