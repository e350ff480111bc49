// Package ratelimit enforces the tiered quota envelope for the sendgate API.
//
// Limits are fixed-window counters on the shared backend: bucket index is
// floor(now/window). Service sub-limits are evaluated before the global
// tier, and the first window over its limit denies the request. Windows
// already incremented are not rolled back; the limiter is deliberately
// best-effort in favour of availability.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/sendgate/internal/counter"
	"github.com/mbd888/sendgate/internal/tenant"
)

// ErrBackendUnavailable is returned when the counter backend cannot be
// reached. Admission fails closed: the caller must deny the request.
var ErrBackendUnavailable = errors.New("ratelimit: backend unavailable")

// Decision is the outcome of an admission check. On denial it describes the
// window that rejected the request; on admit it describes the global
// per-minute window, which is what the X-RateLimit headers expose.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"resetAt"`
	RetryAfter int       `json:"retryAfter,omitempty"` // seconds, only set on denial
	Window     string    `json:"window,omitempty"`     // window that denied, e.g. "sms:minute"
}

type window struct {
	name   string
	length time.Duration
}

// The month window is a fixed 30-day bucket, not a calendar month. Quota
// accounting only needs stable bucket boundaries, not calendar alignment.
var (
	globalWindows = []window{
		{"minute", time.Minute},
		{"hour", time.Hour},
		{"day", 24 * time.Hour},
		{"month", 30 * 24 * time.Hour},
	}
	serviceWindows = []window{
		{"minute", time.Minute},
		{"day", 24 * time.Hour},
	}
)

// Limiter admits requests against per-tenant quota windows.
type Limiter struct {
	backend counter.Backend
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a limiter on the shared counter backend.
func New(backend counter.Backend, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{backend: backend, logger: logger, now: time.Now}
}

// SetNow replaces the clock. Test hook.
func (l *Limiter) SetNow(now func() time.Time) { l.now = now }

// check is one (key, limit, window) evaluation.
type check struct {
	key    string
	limit  int
	window window
	scope  string // "global" or the service name
}

// Admit decides whether one request for the tenant may proceed. service may
// be empty for operations without a per-service sub-limit. A count exactly
// equal to the limit is allowed; only count > limit denies.
func (l *Limiter) Admit(ctx context.Context, tenantID string, plan tenant.Plan, service string) (*Decision, error) {
	limits := tenant.LimitsForPlan(plan)
	now := l.now()

	checks := make([]check, 0, 6)
	if service != "" {
		if sl, ok := limits.Service[service]; ok {
			svcLimits := []int{sl.PerMinute, sl.PerDay}
			for i, w := range serviceWindows {
				if svcLimits[i] <= 0 {
					continue
				}
				checks = append(checks, check{
					key:    fmt.Sprintf("rl:%s:%s:%s:%d", tenantID, service, w.name, bucket(now, w.length)),
					limit:  svcLimits[i],
					window: w,
					scope:  service,
				})
			}
		}
	}
	globalLimits := []int{limits.Global.PerMinute, limits.Global.PerHour, limits.Global.PerDay, limits.Global.PerMonth}
	for i, w := range globalWindows {
		if globalLimits[i] <= 0 {
			continue
		}
		checks = append(checks, check{
			key:    fmt.Sprintf("rl:%s:%s:%d", tenantID, w.name, bucket(now, w.length)),
			limit:  globalLimits[i],
			window: w,
			scope:  "global",
		})
	}

	var admitted *Decision
	for _, c := range checks {
		count, err := l.backend.Incr(ctx, c.key)
		if err != nil {
			rlBackendErrors.Inc()
			l.logger.Error("rate limiter degraded, denying request",
				"tenant", tenantID, "window", c.window.name, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		if count == 1 {
			// First hit in this bucket owns the expiry. A failed Expire
			// leaves an immortal counter, so treat it as a backend fault.
			if err := l.backend.Expire(ctx, c.key, c.window.length); err != nil {
				rlBackendErrors.Inc()
				return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
			}
		}

		resetAt := bucketEnd(now, c.window.length)
		if count > int64(c.limit) {
			rlDenials.WithLabelValues(c.scope, c.window.name).Inc()
			return &Decision{
				Allowed:    false,
				Limit:      c.limit,
				Remaining:  0,
				ResetAt:    resetAt,
				RetryAfter: retryAfter(now, resetAt),
				Window:     c.scope + ":" + c.window.name,
			}, nil
		}

		// The global minute window is the one surfaced to clients.
		if c.scope == "global" && c.window.name == "minute" {
			admitted = &Decision{
				Allowed:   true,
				Limit:     c.limit,
				Remaining: remaining(c.limit, count),
				ResetAt:   resetAt,
			}
		}
	}

	rlAdmits.Inc()
	if len(checks) == 0 {
		// Plan with no positive limits at all: nothing to count, admit.
		return &Decision{Allowed: true}, nil
	}
	if admitted == nil {
		// Plan with no global minute limit: synthesize from the last check.
		last := checks[len(checks)-1]
		admitted = &Decision{
			Allowed: true,
			Limit:   last.limit,
			ResetAt: bucketEnd(now, last.window.length),
		}
	}
	return admitted, nil
}

func bucket(now time.Time, length time.Duration) int64 {
	return now.UnixMilli() / length.Milliseconds()
}

func bucketEnd(now time.Time, length time.Duration) time.Time {
	return time.UnixMilli((bucket(now, length) + 1) * length.Milliseconds())
}

func retryAfter(now, resetAt time.Time) int {
	secs := int(resetAt.Sub(now).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

func remaining(limit int, count int64) int {
	r := limit - int(count)
	if r < 0 {
		return 0
	}
	return r
}
