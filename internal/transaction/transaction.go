// Package transaction records every send attempt as an immutable-once-terminal
// ledger row: what was sent, through which provider, what it cost, and what
// the tenant was charged.
package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound means no transaction exists with the given ID.
	ErrNotFound = errors.New("transaction: not found")

	// ErrInvalidTransition means the requested status change is not in the
	// lifecycle graph, including any change off a terminal status.
	ErrInvalidTransition = errors.New("transaction: invalid status transition")
)

// Status is a transaction's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"   // accepted, not yet handed to a provider
	StatusSent      Status = "sent"      // provider accepted the message
	StatusDelivered Status = "delivered" // provider confirmed delivery
	StatusFailed    Status = "failed"    // delivery failed, terminal
)

// transitions is the allowed lifecycle graph. Absent = rejected.
var transitions = map[Status][]Status{
	StatusPending: {StatusSent, StatusFailed},
	StatusSent:    {StatusDelivered, StatusFailed},
}

// CanTransition reports whether from -> to is a legal status change.
// Terminal statuses (delivered, failed) have no outgoing edges.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status admits no further changes.
func IsTerminal(s Status) bool {
	return s == StatusDelivered || s == StatusFailed
}

// Transaction is one send attempt and its financial outcome.
type Transaction struct {
	ID        string          `json:"id"`
	TenantID  string          `json:"tenant_id"`
	Service   string          `json:"service"` // sms, email, data, airtime
	Recipient string          `json:"recipient"`
	Provider  string          `json:"provider,omitempty"`
	MessageID string          `json:"message_id,omitempty"` // provider-side reference
	Segments  int             `json:"segments,omitempty"`
	Cost      decimal.Decimal `json:"cost"`
	Price     decimal.Decimal `json:"price"`
	Margin    decimal.Decimal `json:"margin"`
	Status    Status          `json:"status"`
	FellBack  bool            `json:"fell_back,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StatusUpdate carries the fields that change when a transaction moves
// through its lifecycle. Zero-value fields other than Status are ignored.
// Pricing fields land here because provider-cost-priced sends only learn
// their final numbers after delivery.
type StatusUpdate struct {
	Status    Status
	Provider  string
	MessageID string
	Segments  int
	FellBack  bool
	Cost      decimal.Decimal
	Price     decimal.Decimal
	Margin    decimal.Decimal
}

// ListOptions filters a tenant's transaction listing.
type ListOptions struct {
	Status Status // empty = all
	Limit  int    // caller-clamped page size
	Cursor string // opaque pagination cursor
}

// Store persists transactions.
type Store interface {
	Create(ctx context.Context, txn *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	// UpdateStatus applies a lifecycle change, rejecting illegal
	// transitions with ErrInvalidTransition.
	UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*Transaction, error)
	// ListByTenant returns a page of a tenant's transactions, newest
	// first, plus the next cursor ("" when exhausted).
	ListByTenant(ctx context.Context, tenantID string, opts ListOptions) ([]*Transaction, string, error)
}
