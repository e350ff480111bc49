package counter

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryBackend is an in-memory Backend for development and tests. It
// honors TTLs by checking expiry deadlines on access, so a single process
// sees the same semantics as Redis without a sweeper goroutine.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]*memEntry

	// now is swappable in tests to step through window boundaries.
	now func() time.Time

	// failing simulates an unreachable backend.
	failing bool
}

type memEntry struct {
	value     string
	expiresAt time.Time // zero = no expiry
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
}

// SetNow replaces the clock. Test hook.
func (m *MemoryBackend) SetNow(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// SetFailing makes every operation return ErrUnavailable, for exercising
// fail-closed paths.
func (m *MemoryBackend) SetFailing(failing bool) {
	m.mu.Lock()
	m.failing = failing
	m.mu.Unlock()
}

// live returns the entry at key if present and unexpired. Expired entries
// are removed. Caller must hold mu.
func (m *MemoryBackend) live(key string) *memEntry {
	e, ok := m.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil
	}
	return e
}

func (m *MemoryBackend) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, ErrUnavailable
	}

	e := m.live(key)
	if e == nil {
		m.entries[key] = &memEntry{value: "1"}
		return 1, nil
	}
	n, _ := strconv.ParseInt(e.value, 10, 64)
	n++
	e.value = strconv.FormatInt(n, 10)
	return n, nil
}

func (m *MemoryBackend) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrUnavailable
	}

	if e := m.live(key); e != nil {
		e.expiresAt = m.now().Add(ttl)
	}
	return nil
}

func (m *MemoryBackend) GetInt(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, ErrUnavailable
	}

	e := m.live(key)
	if e == nil {
		return 0, nil
	}
	n, _ := strconv.ParseInt(e.value, 10, 64)
	return n, nil
}

func (m *MemoryBackend) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, ErrUnavailable
	}

	if m.live(key) != nil {
		return false, nil
	}
	m.entries[key] = &memEntry{value: value, expiresAt: m.now().Add(ttl)}
	return true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrUnavailable
	}

	m.entries[key] = &memEntry{value: value, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return "", false, ErrUnavailable
	}

	e := m.live(key)
	if e == nil {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *MemoryBackend) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrUnavailable
	}

	delete(m.entries, key)
	return nil
}

// Ping reports simulated connectivity.
func (m *MemoryBackend) Ping(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrUnavailable
	}
	return nil
}

// TTL returns the remaining TTL for key. Test helper; returns false if the
// key is missing or has no expiry.
func (m *MemoryBackend) TTL(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.live(key)
	if e == nil || e.expiresAt.IsZero() {
		return 0, false
	}
	return e.expiresAt.Sub(m.now()), true
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Pinger  = (*MemoryBackend)(nil)
)
