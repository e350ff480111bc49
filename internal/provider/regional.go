package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

const maxResponseSize = 1 * 1024 * 1024 // 1MB

// DefaultHTTPTimeout bounds a single provider attempt. The delivery router
// makes at most two sequential attempts, so the idempotency lock TTL must
// exceed twice this value.
const DefaultHTTPTimeout = 15 * time.Second

// RegionalClient is the adapter for the Africa-specialized transport. The
// upstream is a bulk-style API: one request can fan out to several
// recipients, and the response reports per-recipient status and cost.
type RegionalClient struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRegionalClient creates the regional adapter. Pass timeout=0 for the
// default.
func NewRegionalClient(name, baseURL, apiKey string, timeout time.Duration) *RegionalClient {
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}
	return &RegionalClient{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *RegionalClient) Name() string { return r.name }

// regionalRequest is the upstream wire format.
type regionalRequest struct {
	To      []string `json:"to"`
	From    string   `json:"from,omitempty"`
	Message string   `json:"message"`
	Product string   `json:"product"`          // messaging, mobiledata, airtime
	Amount  string   `json:"amount,omitempty"` // data/airtime product
}

// regionalResponse is the upstream's bulk response shape.
type regionalResponse struct {
	Recipients []struct {
		Number     string `json:"number"`
		Status     string `json:"status"`
		StatusCode int    `json:"statusCode"`
		MessageID  string `json:"messageId"`
		Cost       string `json:"cost"`
	} `json:"recipients"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

func (r *RegionalClient) Send(ctx context.Context, payload Payload) (*Response, error) {
	reqBody := regionalRequest{
		To:      []string{payload.To},
		From:    payload.From,
		Message: payload.Body,
		Product: regionalProduct(payload.Service),
		Amount:  payload.Amount,
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrSendFailed, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/send", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrSendFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("apiKey", r.apiKey)

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSendFailed, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s returned HTTP %d: %s", ErrSendFailed, r.name, resp.StatusCode, truncate(respBody))
	}

	var parsed regionalResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSendFailed, err)
	}
	if len(parsed.Recipients) == 0 {
		return nil, fmt.Errorf("%w: %s accepted no recipients: %s", ErrSendFailed, r.name, parsed.ErrorMessage)
	}

	rec := parsed.Recipients[0]
	// Upstream convention: 1xx status codes mean accepted for delivery.
	if rec.StatusCode < 100 || rec.StatusCode >= 200 {
		return nil, fmt.Errorf("%w: %s rejected recipient: %s (code %d)", ErrSendFailed, r.name, rec.Status, rec.StatusCode)
	}

	out := &Response{
		MessageID: rec.MessageID,
		Status:    "accepted",
	}
	if payload.Service == "sms" {
		out.Segments = SMSSegments(payload.Body)
	}
	if cost, err := decimal.NewFromString(rec.Cost); err == nil && cost.Sign() > 0 {
		out.Cost = cost
		out.CostKnown = true
	}
	return out, nil
}

func regionalProduct(service string) string {
	switch service {
	case "data":
		return "mobiledata"
	case "airtime":
		return "airtime"
	default:
		return "messaging"
	}
}

func truncate(b []byte) string {
	const max = 256
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

var _ Provider = (*RegionalClient)(nil)
