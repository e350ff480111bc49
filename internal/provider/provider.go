// Package provider contains the transport adapters the delivery router
// dispatches to. Each adapter speaks one upstream's native API and
// normalizes its response into the common shape; nothing outside this
// package sees raw provider payloads.
package provider

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrSendFailed wraps any upstream failure. Raw provider detail stays in
// the wrapped error for internal logs and never reaches customers.
var ErrSendFailed = errors.New("provider: send failed")

// Payload is the provider-agnostic message to deliver.
type Payload struct {
	Service string `json:"service"` // sms, email, data, airtime
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Subject string `json:"subject,omitempty"` // email only
	Body    string `json:"body,omitempty"`
	Amount  string `json:"amount,omitempty"` // data bundles and airtime top-ups
}

// Response is the normalized delivery result every adapter produces.
type Response struct {
	MessageID string          `json:"messageId"`
	Status    string          `json:"status"`             // accepted, queued, sent
	Segments  int             `json:"segments,omitempty"` // sms only
	Cost      decimal.Decimal `json:"cost"`               // provider-reported actual cost, zero when unreported
	CostKnown bool            `json:"costKnown"`
}

// Provider is a single outbound transport.
type Provider interface {
	Name() string
	Send(ctx context.Context, payload Payload) (*Response, error)
}

// SMSSegments computes the billable segment count for a message body using
// the standard GSM-7 rules: 160 characters in one segment, 153 per segment
// once concatenation headers are needed.
func SMSSegments(body string) int {
	n := len([]rune(body))
	if n == 0 {
		return 1
	}
	if n <= 160 {
		return 1
	}
	segments := n / 153
	if n%153 != 0 {
		segments++
	}
	return segments
}
