// Package idempotency deduplicates retried send operations.
//
// The coordinator keys records by (tenant, operation class, client key) so
// identical literal keys across tenants or unrelated operations never
// collide. The no-record → Locked transition is a single SetNX on the
// shared backend; a get-then-set here would race under concurrent retries.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/sendgate/internal/counter"
)

var (
	// ErrBackendUnavailable means the lock store could not be reached.
	// Callers fail closed and surface a degraded-mode error.
	ErrBackendUnavailable = errors.New("idempotency: backend unavailable")

	// ErrNotLocked is returned by Complete when no in-flight lock exists,
	// which means the lock TTL expired mid-request or the key was never begun.
	ErrNotLocked = errors.New("idempotency: no in-flight lock for key")
)

// State of a record on the backend.
type State string

const (
	StateLocked    State = "locked"
	StateCompleted State = "completed"
)

const (
	// LockTTL bounds how long a crashed in-flight request can block
	// retries of the same key. It must comfortably exceed the worst-case
	// provider round trip (two sequential attempts at ~15s each) while
	// staying short enough that legitimate client retries recover quickly.
	LockTTL = 45 * time.Second

	// RetentionTTL is how long a completed response is replayed.
	RetentionTTL = 24 * time.Hour
)

// Record is the serialized form stored on the backend.
type Record struct {
	State      State           `json:"state"`
	StatusCode int             `json:"statusCode,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
	Reference  string          `json:"reference,omitempty"` // e.g. transaction ID
	CreatedAt  time.Time       `json:"createdAt"`
}

// BeginResult tells the caller how to proceed.
type BeginResult struct {
	// ShouldProcess is true when this request acquired the lock and owns
	// the side-effecting delivery step.
	ShouldProcess bool

	// IsLocked is true when another request holds the lock right now.
	IsLocked bool

	// Cached holds the completed record to replay verbatim, when neither
	// of the above applies.
	Cached *Record
}

// Coordinator implements the begin/complete idempotency protocol.
type Coordinator struct {
	backend counter.Backend
	logger  *slog.Logger
}

// New creates a coordinator on the shared backend.
func New(backend counter.Backend, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{backend: backend, logger: logger}
}

func recordKey(tenantID, opClass, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", tenantID, opClass, key)
}

// Begin attempts to acquire the processing slot for (tenant, opClass, key).
// Exactly one concurrent caller gets ShouldProcess=true; the rest observe
// the lock or the cached completed response.
func (c *Coordinator) Begin(ctx context.Context, tenantID, opClass, key string) (*BeginResult, error) {
	k := recordKey(tenantID, opClass, key)

	locked := Record{State: StateLocked, CreatedAt: time.Now()}
	payload, err := json.Marshal(locked)
	if err != nil {
		return nil, err
	}

	ok, err := c.backend.SetNX(ctx, k, string(payload), LockTTL)
	if err != nil {
		idemBackendErrors.Inc()
		c.logger.Error("idempotency begin degraded", "tenant", tenantID, "op", opClass, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if ok {
		idemBegins.WithLabelValues("acquired").Inc()
		return &BeginResult{ShouldProcess: true}, nil
	}

	val, found, err := c.backend.Get(ctx, k)
	if err != nil {
		idemBackendErrors.Inc()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !found {
		// The record expired between SetNX and Get. One more acquire
		// attempt; if that also loses, someone else just took the slot.
		ok, err := c.backend.SetNX(ctx, k, string(payload), LockTTL)
		if err != nil {
			idemBackendErrors.Inc()
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if ok {
			idemBegins.WithLabelValues("acquired").Inc()
			return &BeginResult{ShouldProcess: true}, nil
		}
		idemBegins.WithLabelValues("locked").Inc()
		return &BeginResult{IsLocked: true}, nil
	}

	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		// Unparseable record: safer to report in-progress than to run the
		// side effect twice.
		c.logger.Error("idempotency record corrupt", "tenant", tenantID, "op", opClass, "error", err)
		idemBegins.WithLabelValues("locked").Inc()
		return &BeginResult{IsLocked: true}, nil
	}

	if rec.State == StateCompleted {
		idemBegins.WithLabelValues("replayed").Inc()
		return &BeginResult{Cached: &rec}, nil
	}

	idemBegins.WithLabelValues("locked").Inc()
	return &BeginResult{IsLocked: true}, nil
}

// Complete transitions Locked → Completed, storing the response to replay
// for the retention period. The caller must hold the lock (ShouldProcess).
func (c *Coordinator) Complete(ctx context.Context, tenantID, opClass, key string, statusCode int, body []byte, reference string) error {
	k := recordKey(tenantID, opClass, key)

	// Verify the lock is still ours to commit. If the lock TTL expired the
	// retry may already be in flight; overwriting would clobber its state.
	val, found, err := c.backend.Get(ctx, k)
	if err != nil {
		idemBackendErrors.Inc()
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !found {
		idemCompletes.WithLabelValues("lock_expired").Inc()
		return ErrNotLocked
	}
	var rec Record
	if err := json.Unmarshal([]byte(val), &rec); err == nil && rec.State == StateCompleted {
		idemCompletes.WithLabelValues("already_completed").Inc()
		return ErrNotLocked
	}

	completed := Record{
		State:      StateCompleted,
		StatusCode: statusCode,
		Body:       json.RawMessage(body),
		Reference:  reference,
		CreatedAt:  time.Now(),
	}
	payload, err := json.Marshal(completed)
	if err != nil {
		return err
	}

	if err := c.backend.Set(ctx, k, string(payload), RetentionTTL); err != nil {
		idemBackendErrors.Inc()
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	idemCompletes.WithLabelValues("committed").Inc()
	return nil
}

// Release drops an unfinished lock so the client can retry immediately.
// Used when processing fails before any side effect was attempted.
func (c *Coordinator) Release(ctx context.Context, tenantID, opClass, key string) error {
	if err := c.backend.Del(ctx, recordKey(tenantID, opClass, key)); err != nil {
		idemBackendErrors.Inc()
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
