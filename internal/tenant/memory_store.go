package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory tenant store for demo/development.
type MemoryStore struct {
	mu      sync.RWMutex
	tenants map[string]*Tenant // by ID
	apiKeys map[string]string  // api key → ID
}

// NewMemoryStore creates a new in-memory tenant store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[string]*Tenant),
		apiKeys: make(map[string]string),
	}
}

func (m *MemoryStore) Create(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.apiKeys[t.APIKey]; exists {
		return ErrAPIKeyTaken
	}

	cp := *t
	m.tenants[t.ID] = &cp
	m.apiKeys[t.APIKey] = t.ID
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) GetByAPIKey(_ context.Context, apiKey string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.apiKeys[apiKey]
	if !ok {
		return nil, ErrTenantNotFound
	}
	cp := *m.tenants[id]
	return &cp, nil
}

func (m *MemoryStore) Update(_ context.Context, t *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.tenants[t.ID]
	if !ok {
		return ErrTenantNotFound
	}

	if existing.APIKey != t.APIKey {
		if _, taken := m.apiKeys[t.APIKey]; taken {
			return ErrAPIKeyTaken
		}
		delete(m.apiKeys, existing.APIKey)
		m.apiKeys[t.APIKey] = t.ID
	}

	cp := *t
	cp.UpdatedAt = time.Now()
	m.tenants[t.ID] = &cp
	return nil
}

func (m *MemoryStore) Debit(_ context.Context, id string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	if t.Balance.LessThan(amount) {
		return ErrInsufficient
	}
	t.Balance = t.Balance.Sub(amount)
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) Credit(_ context.Context, id string, amount decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tenants[id]
	if !ok {
		return ErrTenantNotFound
	}
	t.Balance = t.Balance.Add(amount)
	t.UpdatedAt = time.Now()
	return nil
}

var _ Store = (*MemoryStore)(nil)
