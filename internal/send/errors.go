package send

import (
	"fmt"
	"net/http"

	"github.com/mbd888/sendgate/internal/ratelimit"
)

// Code is a stable machine-readable error code surfaced to API clients.
type Code string

const (
	CodeInvalidRequest      Code = "invalid_request"
	CodeRateLimitExceeded   Code = "rate_limit_exceeded"
	CodeRequestInProgress   Code = "request_in_progress"
	CodeBackendUnavailable  Code = "backend_unavailable"
	CodeDeliveryFailed      Code = "delivery_failed"
	CodeInsufficientBalance Code = "insufficient_balance"
	CodeConfigurationError  Code = "configuration_error"
	CodeTenantInactive      Code = "tenant_inactive"
)

// Error is a pipeline failure with a stable code and HTTP mapping. Raw
// upstream detail stays in Cause for logs; Message is what clients see.
type Error struct {
	Code     Code                `json:"code"`
	Message  string              `json:"message"`
	Status   int                 `json:"-"`
	Decision *ratelimit.Decision `json:"-"` // set on rate-limit denials
	Cause    error               `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("send: %s: %v", e.Code, e.Cause)
	}
	return fmt.Sprintf("send: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func invalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg, Status: http.StatusBadRequest}
}

func rateLimited(d *ratelimit.Decision) *Error {
	return &Error{
		Code:     CodeRateLimitExceeded,
		Message:  fmt.Sprintf("rate limit exceeded for window %s", d.Window),
		Status:   http.StatusTooManyRequests,
		Decision: d,
	}
}

func requestInProgress() *Error {
	return &Error{
		Code:    CodeRequestInProgress,
		Message: "a request with this idempotency key is already being processed",
		Status:  http.StatusConflict,
	}
}

func backendUnavailable(cause error) *Error {
	return &Error{
		Code:    CodeBackendUnavailable,
		Message: "service temporarily unavailable, retry shortly",
		Status:  http.StatusServiceUnavailable,
		Cause:   cause,
	}
}

func deliveryFailed(cause error) *Error {
	return &Error{
		Code:    CodeDeliveryFailed,
		Message: "message could not be delivered",
		Status:  http.StatusBadGateway,
		Cause:   cause,
	}
}

func insufficientBalance() *Error {
	return &Error{
		Code:    CodeInsufficientBalance,
		Message: "account balance is too low for this send",
		Status:  http.StatusPaymentRequired,
	}
}

func configurationError(cause error) *Error {
	return &Error{
		Code:    CodeConfigurationError,
		Message: "the service is misconfigured for this operation",
		Status:  http.StatusInternalServerError,
		Cause:   cause,
	}
}

func tenantInactive() *Error {
	return &Error{
		Code:    CodeTenantInactive,
		Message: "this account is deactivated",
		Status:  http.StatusForbidden,
	}
}
