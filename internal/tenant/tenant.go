// Package tenant provides multi-tenancy for the sendgate platform.
//
// A tenant is a billing customer. Every rate-limit counter, idempotency key,
// and transaction in the gateway is scoped to a tenant.
package tenant

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Errors
var (
	ErrTenantNotFound = errors.New("tenant: not found")
	ErrAPIKeyTaken    = errors.New("tenant: api key already in use")
	ErrInsufficient   = errors.New("tenant: insufficient balance")
)

// Plan identifies the pricing tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanGrowth     Plan = "growth"
	PlanEnterprise Plan = "enterprise"
)

// Tenant represents an organisation using the platform. Tenants are created
// at signup and soft-disabled, never deleted: counters and transaction
// history must stay addressable.
type Tenant struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	APIKey     string          `json:"-"`
	Plan       Plan            `json:"plan"`
	Active     bool            `json:"active"`
	Balance    decimal.Decimal `json:"balance"`
	WebhookURL string          `json:"webhookUrl,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Store persists tenant data. Balance credits come from the external
// billing sync, so the write surface here is deliberately narrow.
type Store interface {
	Create(ctx context.Context, t *Tenant) error
	Get(ctx context.Context, id string) (*Tenant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)
	Update(ctx context.Context, t *Tenant) error

	// Debit atomically subtracts amount from the tenant's balance,
	// failing with ErrInsufficient if the balance would go negative.
	Debit(ctx context.Context, id string, amount decimal.Decimal) error

	// Credit atomically adds amount to the tenant's balance. Called by
	// the billing sync when a top-up clears.
	Credit(ctx context.Context, id string, amount decimal.Decimal) error
}
