package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/sendgate/internal/counter"
	"github.com/mbd888/sendgate/internal/tenant"
)

// newTestLimiter returns a limiter on a memory backend with a controllable
// clock shared by both.
func newTestLimiter(t *testing.T) (*Limiter, *counter.MemoryBackend, *time.Time) {
	t.Helper()
	backend := counter.NewMemoryBackend()
	now := time.Date(2026, 3, 10, 12, 0, 1, 0, time.UTC)
	backend.SetNow(func() time.Time { return now })
	l := New(backend, nil)
	l.SetNow(func() time.Time { return now })
	return l, backend, &now
}

func TestAdmit_ExactlyLimitSucceeds(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLimiter(t)

	// Free tier: 10/minute global. No service given, so only global windows.
	for i := 0; i < 10; i++ {
		d, err := l.Admit(ctx, "t_1", tenant.PlanFree, "")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should be admitted", i+1)
		assert.Equal(t, 10, d.Limit)
		assert.Equal(t, 10-(i+1), d.Remaining)
	}

	// The 11th in the same minute bucket is denied.
	d, err := l.Admit(ctx, "t_1", tenant.PlanFree, "")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, "global:minute", d.Window)
	assert.Greater(t, d.RetryAfter, 0)
	assert.LessOrEqual(t, d.RetryAfter, 60)
}

func TestAdmit_PlanWithoutLimitsAdmits(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLimiter(t)

	// A plan with no positive limit anywhere yields no windows to count.
	// Admission must allow rather than trip over the empty check list.
	uncapped := tenant.Plan("uncapped")
	tenant.Plans[uncapped] = tenant.PlanLimits{Plan: uncapped}
	t.Cleanup(func() { delete(tenant.Plans, uncapped) })

	for _, service := range []string{"", "sms"} {
		d, err := l.Admit(ctx, "t_1", uncapped, service)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
}

func TestAdmit_WindowRollover(t *testing.T) {
	ctx := context.Background()
	l, _, now := newTestLimiter(t)

	for i := 0; i < 10; i++ {
		_, err := l.Admit(ctx, "t_1", tenant.PlanFree, "")
		require.NoError(t, err)
	}
	d, err := l.Admit(ctx, "t_1", tenant.PlanFree, "")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// Next minute bucket: counter starts fresh.
	*now = now.Add(time.Minute)
	d, err = l.Admit(ctx, "t_1", tenant.PlanFree, "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Remaining)
}

func TestAdmit_ServiceSubLimitDeniesFirst(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLimiter(t)

	// Free tier sms: 5/minute, well under the global 10/minute.
	for i := 0; i < 5; i++ {
		d, err := l.Admit(ctx, "t_1", tenant.PlanFree, "sms")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}

	d, err := l.Admit(ctx, "t_1", tenant.PlanFree, "sms")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, "sms:minute", d.Window)
	assert.Equal(t, 5, d.Limit)
}

func TestAdmit_ServiceDenialDoesNotConsumeGlobal(t *testing.T) {
	ctx := context.Background()
	l, backend, _ := newTestLimiter(t)

	// Exhaust the sms minute sub-limit.
	for i := 0; i < 6; i++ {
		_, err := l.Admit(ctx, "t_1", tenant.PlanFree, "sms")
		require.NoError(t, err)
	}

	// Service windows are evaluated before global ones, so the denied 6th
	// request never touched the global minute counter.
	now := time.Date(2026, 3, 10, 12, 0, 1, 0, time.UTC)
	key := "rl:t_1:minute:" + itoa(now.UnixMilli()/time.Minute.Milliseconds())
	n, err := backend.GetInt(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestAdmit_EarlierIncrementsNotRolledBack(t *testing.T) {
	ctx := context.Background()
	l, backend, _ := newTestLimiter(t)

	// Fill the sms day window by hand so minute admits but day denies.
	now := time.Date(2026, 3, 10, 12, 0, 1, 0, time.UTC)
	dayKey := "rl:t_1:sms:day:" + itoa(now.UnixMilli()/(24*time.Hour).Milliseconds())
	for i := 0; i < 200; i++ {
		_, err := backend.Incr(ctx, dayKey)
		require.NoError(t, err)
	}

	d, err := l.Admit(ctx, "t_1", tenant.PlanFree, "sms")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, "sms:day", d.Window)

	// The sms minute counter was incremented before the day window denied
	// and is intentionally left in place.
	minuteKey := "rl:t_1:sms:minute:" + itoa(now.UnixMilli()/time.Minute.Milliseconds())
	n, err := backend.GetInt(ctx, minuteKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAdmit_TenantsIndependent(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLimiter(t)

	for i := 0; i < 10; i++ {
		_, err := l.Admit(ctx, "t_1", tenant.PlanFree, "")
		require.NoError(t, err)
	}
	d, err := l.Admit(ctx, "t_1", tenant.PlanFree, "")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// A different tenant is untouched.
	d, err = l.Admit(ctx, "t_2", tenant.PlanFree, "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 9, d.Remaining)
}

func TestAdmit_BackendDownFailsClosed(t *testing.T) {
	ctx := context.Background()
	l, backend, _ := newTestLimiter(t)
	backend.SetFailing(true)

	d, err := l.Admit(ctx, "t_1", tenant.PlanFree, "sms")
	assert.Nil(t, d)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestAdmit_HigherTierHigherLimit(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLimiter(t)

	for i := 0; i < 11; i++ {
		d, err := l.Admit(ctx, "t_1", tenant.PlanStarter, "")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "starter tier allows 60/minute, request %d", i+1)
		assert.Equal(t, 60, d.Limit)
	}
}

func TestAdmit_ResetAtIsBucketEnd(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLimiter(t)

	d, err := l.Admit(ctx, "t_1", tenant.PlanFree, "")
	require.NoError(t, err)

	// Clock is 12:00:01; the minute bucket ends at 12:01:00.
	want := time.Date(2026, 3, 10, 12, 1, 0, 0, time.UTC)
	assert.True(t, d.ResetAt.Equal(want), "resetAt = %s", d.ResetAt)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
