package transaction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/sendgate/internal/pagination"
)

// MemoryStore is an in-memory transaction store for demo/development.
type MemoryStore struct {
	mu   sync.RWMutex
	txns map[string]*Transaction
}

// NewMemoryStore creates a new in-memory transaction store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{txns: make(map[string]*Transaction)}
}

func (m *MemoryStore) Create(_ context.Context, txn *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *txn
	m.txns[txn.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	txn, ok := m.txns[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *txn
	return &cp, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, update StatusUpdate) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txn, ok := m.txns[id]
	if !ok {
		return nil, ErrNotFound
	}
	if !CanTransition(txn.Status, update.Status) {
		return nil, ErrInvalidTransition
	}

	txn.Status = update.Status
	if update.Provider != "" {
		txn.Provider = update.Provider
	}
	if update.MessageID != "" {
		txn.MessageID = update.MessageID
	}
	if update.Segments > 0 {
		txn.Segments = update.Segments
	}
	if update.FellBack {
		txn.FellBack = true
	}
	if !update.Price.IsZero() {
		txn.Cost = update.Cost
		txn.Price = update.Price
		txn.Margin = update.Margin
	}
	txn.UpdatedAt = time.Now()

	cp := *txn
	return &cp, nil
}

func (m *MemoryStore) ListByTenant(_ context.Context, tenantID string, opts ListOptions) ([]*Transaction, string, error) {
	cursor, err := pagination.Decode(opts.Cursor)
	if err != nil {
		return nil, "", err
	}
	limit := opts.Limit
	if limit < 1 {
		limit = 50
	}

	m.mu.RLock()
	var matched []*Transaction
	for _, txn := range m.txns {
		if txn.TenantID != tenantID {
			continue
		}
		if opts.Status != "" && txn.Status != opts.Status {
			continue
		}
		cp := *txn
		matched = append(matched, &cp)
	}
	m.mu.RUnlock()

	// Newest first, ID as tiebreak to keep pages stable.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if cursor != nil {
		for i, txn := range matched {
			if txn.CreatedAt.Before(cursor.CreatedAt) ||
				(txn.CreatedAt.Equal(cursor.CreatedAt) && txn.ID < cursor.ID) {
				matched = matched[i:]
				break
			}
			if i == len(matched)-1 {
				matched = nil
			}
		}
	}

	if len(matched) > limit+1 {
		matched = matched[:limit+1]
	}
	page, next, _ := pagination.ComputePage(matched, limit, func(t *Transaction) (time.Time, string) {
		return t.CreatedAt, t.ID
	})
	return page, next, nil
}

var _ Store = (*MemoryStore)(nil)
