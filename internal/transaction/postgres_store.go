package transaction

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/sendgate/internal/pagination"
)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const txnColumns = `id, tenant_id, service, recipient, provider, message_id,
	segments, cost, price, margin, status, fell_back, created_at, updated_at`

func (p *PostgresStore) Create(ctx context.Context, txn *Transaction) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		txn.ID, txn.TenantID, txn.Service, txn.Recipient, txn.Provider, txn.MessageID,
		txn.Segments, txn.Cost.String(), txn.Price.String(), txn.Margin.String(),
		string(txn.Status), txn.FellBack, txn.CreatedAt, txn.UpdatedAt,
	)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	return scanTxn(p.db.QueryRowContext(ctx, `
		SELECT `+txnColumns+` FROM transactions WHERE id = $1`, id))
}

// UpdateStatus applies a lifecycle change inside a transaction so the
// transition check and the write are atomic under concurrent updates.
func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*Transaction, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM transactions WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !CanTransition(Status(current), update.Status) {
		return nil, ErrInvalidTransition
	}

	row := tx.QueryRowContext(ctx, `
		UPDATE transactions SET
			status = $1,
			provider = CASE WHEN $2 = '' THEN provider ELSE $2 END,
			message_id = CASE WHEN $3 = '' THEN message_id ELSE $3 END,
			segments = CASE WHEN $4 = 0 THEN segments ELSE $4 END,
			fell_back = fell_back OR $5,
			cost = CASE WHEN $7::numeric = 0 THEN cost ELSE $6::numeric END,
			price = CASE WHEN $7::numeric = 0 THEN price ELSE $7::numeric END,
			margin = CASE WHEN $7::numeric = 0 THEN margin ELSE $8::numeric END,
			updated_at = NOW()
		WHERE id = $9
		RETURNING `+txnColumns,
		string(update.Status), update.Provider, update.MessageID,
		update.Segments, update.FellBack,
		update.Cost.String(), update.Price.String(), update.Margin.String(), id,
	)
	txn, err := scanTxn(row)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return txn, nil
}

func (p *PostgresStore) ListByTenant(ctx context.Context, tenantID string, opts ListOptions) ([]*Transaction, string, error) {
	cursor, err := pagination.Decode(opts.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 50
	}

	query := `SELECT ` + txnColumns + ` FROM transactions WHERE tenant_id = $1`
	args := []any{tenantID}
	if opts.Status != "" {
		args = append(args, string(opts.Status))
		query += ` AND status = $2`
	}
	if cursor != nil {
		n := len(args)
		args = append(args, cursor.CreatedAt, cursor.ID)
		query += fmt.Sprintf(` AND (created_at, id) < ($%d, $%d)`, n+1, n+2)
	}
	args = append(args, limit+1)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		txn, err := scanTxn(rows)
		if err != nil {
			return nil, "", err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	page, next, _ := pagination.ComputePage(txns, limit, func(t *Transaction) (time.Time, string) {
		return t.CreatedAt, t.ID
	})
	return page, next, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanTxn(row scannable) (*Transaction, error) {
	var txn Transaction
	var status, cost, price, margin string
	err := row.Scan(&txn.ID, &txn.TenantID, &txn.Service, &txn.Recipient,
		&txn.Provider, &txn.MessageID, &txn.Segments, &cost, &price, &margin,
		&status, &txn.FellBack, &txn.CreatedAt, &txn.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	txn.Status = Status(status)
	if txn.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, err
	}
	if txn.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	if txn.Margin, err = decimal.NewFromString(margin); err != nil {
		return nil, err
	}
	return &txn, nil
}

var _ Store = (*PostgresStore)(nil)
