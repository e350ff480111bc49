package tenant

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresStore persists tenants in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed tenant store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, api_key, plan, active, balance, webhook_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Name, t.APIKey, string(t.Plan), t.Active, t.Balance.String(),
		t.WebhookURL, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAPIKeyTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT id, name, api_key, plan, active, balance, webhook_url, created_at, updated_at
		FROM tenants WHERE id = $1`, id))
}

func (p *PostgresStore) GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT id, name, api_key, plan, active, balance, webhook_url, created_at, updated_at
		FROM tenants WHERE api_key = $1`, apiKey))
}

func (p *PostgresStore) Update(ctx context.Context, t *Tenant) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET name = $1, api_key = $2, plan = $3, active = $4,
			webhook_url = $5, updated_at = NOW()
		WHERE id = $6`,
		t.Name, t.APIKey, string(t.Plan), t.Active, t.WebhookURL, t.ID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrAPIKeyTaken
		}
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// Debit subtracts amount from the balance in a single guarded UPDATE so two
// concurrent debits can never drive the balance negative.
func (p *PostgresStore) Debit(ctx context.Context, id string, amount decimal.Decimal) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET balance = balance - $1, updated_at = NOW()
		WHERE id = $2 AND balance >= $1`,
		amount.String(), id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing tenant from an underfunded one.
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM tenants WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrTenantNotFound
		}
		return ErrInsufficient
	}
	return nil
}

func (p *PostgresStore) Credit(ctx context.Context, id string, amount decimal.Decimal) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2`,
		amount.String(), id,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (p *PostgresStore) scanTenant(row *sql.Row) (*Tenant, error) {
	var t Tenant
	var plan, balance string
	err := row.Scan(&t.ID, &t.Name, &t.APIKey, &plan, &t.Active, &balance,
		&t.WebhookURL, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Plan = Plan(plan)
	t.Balance, err = decimal.NewFromString(balance)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

var _ Store = (*PostgresStore)(nil)
