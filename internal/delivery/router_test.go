package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/sendgate/internal/circuitbreaker"
	"github.com/mbd888/sendgate/internal/provider"
	"github.com/mbd888/sendgate/internal/routing"
)

// fakeProvider records calls and returns a scripted outcome.
type fakeProvider struct {
	name  string
	calls int
	fail  bool
	resp  provider.Response
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Send(_ context.Context, _ provider.Payload) (*provider.Response, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("upstream 500")
	}
	resp := f.resp
	if resp.MessageID == "" {
		resp.MessageID = f.name + "_msg_1"
	}
	return &resp, nil
}

func newTestRouter(regional, global *fakeProvider) *Router {
	policy := routing.NewPolicy("meridian", "savanna")
	breaker := circuitbreaker.New(5, 30*time.Second)
	return NewRouter([]provider.Provider{regional, global}, policy, breaker, nil)
}

func africaDest() routing.Destination {
	return routing.ResolveDestination("+233241234567")
}

func TestDeliver_AfricaUsesRegionalPrimary(t *testing.T) {
	regional := &fakeProvider{name: "savanna"}
	global := &fakeProvider{name: "meridian"}
	r := newTestRouter(regional, global)

	res, err := r.Deliver(context.Background(), africaDest(), provider.Payload{Service: "sms", To: "+233241234567", Body: "hi"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "savanna", res.ProviderUsed)
	assert.False(t, res.FellBack)
	assert.Equal(t, 1, regional.calls)
	assert.Equal(t, 0, global.calls)
}

func TestDeliver_RegionalFailureFallsBackToDefaultOnce(t *testing.T) {
	regional := &fakeProvider{name: "savanna", fail: true}
	global := &fakeProvider{name: "meridian"}
	r := newTestRouter(regional, global)

	res, err := r.Deliver(context.Background(), africaDest(), provider.Payload{Service: "sms", To: "+233241234567", Body: "hi"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "meridian", res.ProviderUsed)
	assert.True(t, res.FellBack)
	assert.Equal(t, 1, regional.calls, "regional tried exactly once")
	assert.Equal(t, 1, global.calls, "default tried exactly once as fallback")
}

func TestDeliver_BothFailNoThirdAttempt(t *testing.T) {
	regional := &fakeProvider{name: "savanna", fail: true}
	global := &fakeProvider{name: "meridian", fail: true}
	r := newTestRouter(regional, global)

	res, err := r.Deliver(context.Background(), africaDest(), provider.Payload{Service: "sms", To: "+233241234567", Body: "hi"})
	require.ErrorIs(t, err, ErrDeliveryFailed)

	assert.False(t, res.Success)
	assert.NotNil(t, res.Err)
	assert.Equal(t, 1, regional.calls)
	assert.Equal(t, 1, global.calls)
}

func TestDeliver_EuropeNoFallbackToRegional(t *testing.T) {
	regional := &fakeProvider{name: "savanna"}
	global := &fakeProvider{name: "meridian", fail: true}
	r := newTestRouter(regional, global)

	dest := routing.ResolveDestination("+447911123456")
	res, err := r.Deliver(context.Background(), dest, provider.Payload{Service: "sms", To: "+447911123456", Body: "hi"})
	require.ErrorIs(t, err, ErrDeliveryFailed)

	assert.False(t, res.Success)
	assert.Equal(t, 0, regional.calls, "regional is never a fallback outside its region")
	assert.Equal(t, 1, global.calls)
}

func TestDeliver_OpenBreakerSkipsRegionalPrimary(t *testing.T) {
	regional := &fakeProvider{name: "savanna"}
	global := &fakeProvider{name: "meridian"}

	policy := routing.NewPolicy("meridian", "savanna")
	breaker := circuitbreaker.New(2, time.Hour)
	r := NewRouter([]provider.Provider{regional, global}, policy, breaker, nil)

	// Trip the regional circuit.
	breaker.RecordFailure("savanna")
	breaker.RecordFailure("savanna")
	require.Equal(t, circuitbreaker.StateOpen, breaker.State("savanna"))

	res, err := r.Deliver(context.Background(), africaDest(), provider.Payload{Service: "sms", To: "+233241234567", Body: "hi"})
	require.NoError(t, err)

	assert.Equal(t, "meridian", res.ProviderUsed)
	assert.Equal(t, 0, regional.calls)
}

func TestDeliver_CarriesProviderCostAndSegments(t *testing.T) {
	regional := &fakeProvider{name: "savanna", resp: provider.Response{
		MessageID: "rm_1",
		Status:    "accepted",
		Segments:  3,
		Cost:      decimal.RequireFromString("0.024"),
		CostKnown: true,
	}}
	global := &fakeProvider{name: "meridian"}
	r := newTestRouter(regional, global)

	res, err := r.Deliver(context.Background(), africaDest(), provider.Payload{Service: "sms", To: "+233241234567", Body: "long"})
	require.NoError(t, err)

	assert.Equal(t, "rm_1", res.MessageID)
	assert.Equal(t, 3, res.Segments)
	assert.True(t, res.CostKnown)
	assert.True(t, res.Cost.Equal(decimal.RequireFromString("0.024")))
}

func TestDeliver_UnregisteredProvider(t *testing.T) {
	global := &fakeProvider{name: "meridian"}
	// Policy names a regional provider that was never registered.
	policy := routing.NewPolicy("meridian", "ghost")
	breaker := circuitbreaker.New(5, 30*time.Second)
	r := NewRouter([]provider.Provider{global}, policy, breaker, nil)

	// Primary "ghost" fails with ErrNoProvider, fallback "meridian" succeeds.
	res, err := r.Deliver(context.Background(), africaDest(), provider.Payload{Service: "sms", To: "+233241234567", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "meridian", res.ProviderUsed)
	assert.True(t, res.FellBack)
}

func TestDeliver_RepeatedFailuresTripBreaker(t *testing.T) {
	regional := &fakeProvider{name: "savanna", fail: true}
	global := &fakeProvider{name: "meridian"}

	policy := routing.NewPolicy("meridian", "savanna")
	breaker := circuitbreaker.New(3, time.Hour)
	r := NewRouter([]provider.Provider{regional, global}, policy, breaker, nil)

	for i := 0; i < 3; i++ {
		_, err := r.Deliver(context.Background(), africaDest(), provider.Payload{Service: "sms", To: "+233241234567", Body: "hi"})
		require.NoError(t, err, "fallback keeps the send succeeding")
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.State("savanna"))

	// With the circuit open, the next send goes straight to the default.
	calls := regional.calls
	_, err := r.Deliver(context.Background(), africaDest(), provider.Payload{Service: "sms", To: "+233241234567", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, calls, regional.calls, "tripped provider not attempted")
}
