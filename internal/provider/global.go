package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GlobalClient is the adapter for the default worldwide transport. The
// upstream is a sid-style API: one message per request, form-encoded, with
// the segment count and price reported in the response.
type GlobalClient struct {
	name      string
	baseURL   string
	accountID string
	authToken string
	client    *http.Client
}

// NewGlobalClient creates the default-provider adapter. Pass timeout=0 for
// the default.
func NewGlobalClient(name, baseURL, accountID, authToken string, timeout time.Duration) *GlobalClient {
	if timeout == 0 {
		timeout = DefaultHTTPTimeout
	}
	return &GlobalClient{
		name:      name,
		baseURL:   baseURL,
		accountID: accountID,
		authToken: authToken,
		client:    &http.Client{Timeout: timeout},
	}
}

func (g *GlobalClient) Name() string { return g.name }

// globalResponse is the upstream's per-message response shape.
type globalResponse struct {
	SID         string `json:"sid"`
	Status      string `json:"status"`
	NumSegments string `json:"num_segments"`
	Price       string `json:"price"` // reported negative (a charge), absolute value is the cost
	ErrorCode   *int   `json:"error_code"`
	Message     string `json:"message,omitempty"` // error detail on 4xx/5xx
}

func (g *GlobalClient) Send(ctx context.Context, payload Payload) (*Response, error) {
	form := url.Values{}
	form.Set("To", payload.To)
	form.Set("From", payload.From)
	switch payload.Service {
	case "email":
		form.Set("Subject", payload.Subject)
		form.Set("Body", payload.Body)
	case "data", "airtime":
		form.Set("Amount", payload.Amount)
	default:
		form.Set("Body", payload.Body)
	}

	endpoint := fmt.Sprintf("%s/accounts/%s/%s", g.baseURL, g.accountID, globalResource(payload.Service))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrSendFailed, err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.SetBasicAuth(g.accountID, g.authToken)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrSendFailed, err)
	}

	var parsed globalResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("%w: %s returned HTTP %d: %s", ErrSendFailed, g.name, resp.StatusCode, truncate(respBody))
		}
		return nil, fmt.Errorf("%w: decode response: %v", ErrSendFailed, err)
	}

	if resp.StatusCode >= 400 || (parsed.ErrorCode != nil && *parsed.ErrorCode != 0) {
		return nil, fmt.Errorf("%w: %s rejected message: HTTP %d %s", ErrSendFailed, g.name, resp.StatusCode, parsed.Message)
	}
	if parsed.Status == "failed" || parsed.Status == "undelivered" {
		return nil, fmt.Errorf("%w: %s reported status %q", ErrSendFailed, g.name, parsed.Status)
	}

	out := &Response{
		MessageID: parsed.SID,
		Status:    normalizeStatus(parsed.Status),
	}
	if n, err := strconv.Atoi(parsed.NumSegments); err == nil && n > 0 {
		out.Segments = n
	} else if payload.Service == "sms" {
		out.Segments = SMSSegments(payload.Body)
	}
	if parsed.Price != "" {
		if cost, err := decimal.NewFromString(parsed.Price); err == nil {
			out.Cost = cost.Abs()
			out.CostKnown = out.Cost.Sign() > 0
		}
	}
	return out, nil
}

func globalResource(service string) string {
	switch service {
	case "email":
		return "emails"
	case "data":
		return "data-bundles"
	case "airtime":
		return "topups"
	default:
		return "messages"
	}
}

func normalizeStatus(s string) string {
	switch s {
	case "queued", "accepted", "":
		return "accepted"
	default:
		return s
	}
}

var _ Provider = (*GlobalClient)(nil)
