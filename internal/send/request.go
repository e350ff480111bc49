package send

import (
	"strings"
)

// Services the gateway can dispatch.
const (
	ServiceSMS     = "sms"
	ServiceEmail   = "email"
	ServiceData    = "data"
	ServiceAirtime = "airtime"
)

var validServices = map[string]bool{
	ServiceSMS:     true,
	ServiceEmail:   true,
	ServiceData:    true,
	ServiceAirtime: true,
}

// ValidService reports whether the service path segment is recognized.
func ValidService(service string) bool { return validServices[service] }

const maxBodyLen = 10000

// Request is one send operation as submitted by a tenant.
type Request struct {
	Service        string `json:"-"` // from the URL path
	To             string `json:"to" binding:"required"`
	From           string `json:"from,omitempty"`
	Subject        string `json:"subject,omitempty"`
	Body           string `json:"body,omitempty"`
	Amount         string `json:"amount,omitempty"` // data bundle size or airtime value
	IdempotencyKey string `json:"-"`                // from the X-Idempotency-Key header
}

// Validate applies per-service field rules before any quota is consumed.
func (r *Request) Validate() *Error {
	if !ValidService(r.Service) {
		return invalidRequest("unknown service: " + r.Service)
	}
	if strings.TrimSpace(r.To) == "" {
		return invalidRequest("to is required")
	}
	if len(r.Body) > maxBodyLen {
		return invalidRequest("body exceeds maximum length")
	}

	switch r.Service {
	case ServiceSMS:
		if strings.TrimSpace(r.Body) == "" {
			return invalidRequest("body is required for sms")
		}
	case ServiceEmail:
		if !strings.Contains(r.To, "@") {
			return invalidRequest("to must be an email address")
		}
		if strings.TrimSpace(r.Subject) == "" {
			return invalidRequest("subject is required for email")
		}
	case ServiceData, ServiceAirtime:
		if strings.TrimSpace(r.Amount) == "" {
			return invalidRequest("amount is required for " + r.Service)
		}
	}
	return nil
}

// phoneBased reports whether the destination is a phone number subject to
// prefix-based continent resolution.
func (r *Request) phoneBased() bool {
	return r.Service != ServiceEmail
}
