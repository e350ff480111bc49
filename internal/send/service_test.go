package send

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/sendgate/internal/counter"
	"github.com/mbd888/sendgate/internal/delivery"
	"github.com/mbd888/sendgate/internal/idempotency"
	"github.com/mbd888/sendgate/internal/pricing"
	"github.com/mbd888/sendgate/internal/provider"
	"github.com/mbd888/sendgate/internal/ratelimit"
	"github.com/mbd888/sendgate/internal/routing"
	"github.com/mbd888/sendgate/internal/tenant"
	"github.com/mbd888/sendgate/internal/transaction"
)

type fakeDeliverer struct {
	mu    sync.Mutex
	calls int
	fail  bool
	cost  string // provider-reported cost, "" = unreported
}

func (f *fakeDeliverer) Deliver(_ context.Context, _ routing.Destination, payload provider.Payload) (*delivery.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return &delivery.Result{Err: delivery.ErrDeliveryFailed}, delivery.ErrDeliveryFailed
	}
	res := &delivery.Result{
		Success:      true,
		ProviderUsed: "meridian",
		MessageID:    "m_1",
	}
	if payload.Service == ServiceSMS {
		res.Segments = provider.SMSSegments(payload.Body)
	}
	if f.cost != "" {
		res.Cost = decimal.RequireFromString(f.cost)
		res.CostKnown = true
	}
	return res, nil
}

func (f *fakeDeliverer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	svc       *Service
	tenants   *tenant.MemoryStore
	txns      *transaction.MemoryStore
	backend   *counter.MemoryBackend
	deliverer *fakeDeliverer
	t         *tenant.Tenant
}

func newFixture(t *testing.T, card pricing.RateCard) *fixture {
	t.Helper()

	backend := counter.NewMemoryBackend()
	tenants := tenant.NewMemoryStore()
	txns := transaction.NewMemoryStore()
	deliverer := &fakeDeliverer{}

	engine, err := pricing.NewEngine(card, decimal.RequireFromString("15"))
	require.NoError(t, err)

	ten := &tenant.Tenant{
		ID:      "ten_1",
		Name:    "acme",
		APIKey:  "sgk_1",
		Plan:    tenant.PlanFree,
		Active:  true,
		Balance: decimal.RequireFromString("100"),
	}
	require.NoError(t, tenants.Create(context.Background(), ten))

	svc := NewService(
		tenants,
		ratelimit.New(backend, nil),
		idempotency.New(backend, nil),
		deliverer,
		engine,
		txns,
		nil,
		nil,
	)
	return &fixture{svc: svc, tenants: tenants, txns: txns, backend: backend, deliverer: deliverer, t: ten}
}

func smsCard() pricing.RateCard {
	return pricing.RateCard{ServiceSMS: decimal.RequireFromString("0.008")}
}

func smsRequest(key string) *Request {
	return &Request{
		Service:        ServiceSMS,
		To:             "+233241234567",
		Body:           "hello",
		IdempotencyKey: key,
	}
}

func TestSend_Success(t *testing.T) {
	f := newFixture(t, smsCard())

	outcome, sendErr := f.svc.Send(context.Background(), f.t, smsRequest(""))
	require.Nil(t, sendErr)
	assert.Equal(t, 200, outcome.StatusCode)
	require.NotNil(t, outcome.Decision)
	assert.True(t, outcome.Decision.Allowed)

	var resp Response
	require.NoError(t, json.Unmarshal(outcome.Body, &resp))
	assert.Equal(t, "sent", resp.Status)
	assert.Equal(t, "meridian", resp.Provider)
	assert.Equal(t, "africa", resp.Continent)
	assert.True(t, resp.Price.Equal(decimal.RequireFromString("0.0092")), "price %s", resp.Price)

	txn, err := f.txns.Get(context.Background(), resp.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusSent, txn.Status)
	assert.Equal(t, 1, txn.Segments)

	ten, err := f.tenants.Get(context.Background(), "ten_1")
	require.NoError(t, err)
	assert.True(t, ten.Balance.Equal(decimal.RequireFromString("99.9908")), "balance %s", ten.Balance)
}

func TestSend_RateLimitDenied(t *testing.T) {
	f := newFixture(t, smsCard())
	ctx := context.Background()

	// The free plan allows 5 sms per minute.
	for i := 0; i < 5; i++ {
		_, sendErr := f.svc.Send(ctx, f.t, smsRequest(""))
		require.Nil(t, sendErr, "send %d", i)
	}

	_, sendErr := f.svc.Send(ctx, f.t, smsRequest(""))
	require.NotNil(t, sendErr)
	assert.Equal(t, CodeRateLimitExceeded, sendErr.Code)
	assert.Equal(t, 429, sendErr.Status)
	require.NotNil(t, sendErr.Decision)
	assert.Equal(t, "sms:minute", sendErr.Decision.Window)
	assert.Equal(t, 5, f.deliverer.callCount(), "denied request must not reach a provider")
}

func TestSend_IdempotentReplay(t *testing.T) {
	f := newFixture(t, smsCard())
	ctx := context.Background()

	first, sendErr := f.svc.Send(ctx, f.t, smsRequest("key-1"))
	require.Nil(t, sendErr)
	assert.False(t, first.Replayed)

	second, sendErr := f.svc.Send(ctx, f.t, smsRequest("key-1"))
	require.Nil(t, sendErr)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.StatusCode, second.StatusCode)
	assert.JSONEq(t, string(first.Body), string(second.Body), "replay must be byte-equivalent")
	assert.Equal(t, 1, f.deliverer.callCount(), "one delivery despite two requests")

	// Only the original send is charged.
	ten, err := f.tenants.Get(ctx, "ten_1")
	require.NoError(t, err)
	assert.True(t, ten.Balance.Equal(decimal.RequireFromString("99.9908")))
}

func TestSend_ConcurrentSameKey_OneDelivery(t *testing.T) {
	f := newFixture(t, smsCard())
	// Enterprise quota keeps admission out of the way; this test is about
	// the idempotency race.
	f.t.Plan = tenant.PlanEnterprise
	require.NoError(t, f.tenants.Update(context.Background(), f.t))

	const n = 16
	var wg sync.WaitGroup
	results := make([]*Outcome, n)
	errs := make([]*Error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Send(context.Background(), f.t, smsRequest("race-key"))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.deliverer.callCount(), "exactly one request may deliver")
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			assert.Equal(t, CodeRequestInProgress, errs[i].Code, "request %d", i)
		} else {
			assert.Equal(t, 200, results[i].StatusCode, "request %d", i)
		}
	}
}

func TestSend_InsufficientBalancePreCheck(t *testing.T) {
	f := newFixture(t, smsCard())
	f.t.Balance = decimal.RequireFromString("0.001")
	require.NoError(t, f.tenants.Update(context.Background(), f.t))
	broke, err := f.tenants.Get(context.Background(), "ten_1")
	require.NoError(t, err)

	_, sendErr := f.svc.Send(context.Background(), broke, smsRequest(""))
	require.NotNil(t, sendErr)
	assert.Equal(t, CodeInsufficientBalance, sendErr.Code)
	assert.Equal(t, 402, sendErr.Status)
	assert.Equal(t, 0, f.deliverer.callCount(), "underfunded sends never reach a provider")
}

func TestSend_PreDeliveryFailureReleasesKey(t *testing.T) {
	f := newFixture(t, smsCard())
	ctx := context.Background()
	f.t.Balance = decimal.RequireFromString("0.001")
	require.NoError(t, f.tenants.Update(ctx, f.t))

	_, sendErr := f.svc.Send(ctx, f.t, smsRequest("key-broke"))
	require.NotNil(t, sendErr)
	assert.Equal(t, CodeInsufficientBalance, sendErr.Code)
	assert.Equal(t, 0, f.deliverer.callCount())

	// Nothing reached a provider, so the key is released rather than
	// committed: after a top-up the same key processes fresh instead of
	// replaying the 402 for the retention window.
	require.NoError(t, f.tenants.Credit(ctx, "ten_1", decimal.RequireFromString("50")))
	topped, err := f.tenants.Get(ctx, "ten_1")
	require.NoError(t, err)

	outcome, sendErr := f.svc.Send(ctx, topped, smsRequest("key-broke"))
	require.Nil(t, sendErr)
	assert.False(t, outcome.Replayed)
	assert.Equal(t, 200, outcome.StatusCode)
	assert.Equal(t, 1, f.deliverer.callCount())
}

func TestSend_DeliveryFailureCommitted(t *testing.T) {
	f := newFixture(t, smsCard())
	f.deliverer.fail = true
	ctx := context.Background()

	_, sendErr := f.svc.Send(ctx, f.t, smsRequest("key-f"))
	require.NotNil(t, sendErr)
	assert.Equal(t, CodeDeliveryFailed, sendErr.Code)
	assert.Equal(t, 502, sendErr.Status)

	// The transaction is recorded as failed.
	page, _, err := f.txns.ListByTenant(ctx, "ten_1", transaction.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, transaction.StatusFailed, page[0].Status)

	// A retry with the same key replays the failure instead of redelivering.
	f.deliverer.fail = false
	outcome, sendErr := f.svc.Send(ctx, f.t, smsRequest("key-f"))
	require.Nil(t, sendErr)
	assert.True(t, outcome.Replayed)
	assert.Equal(t, 502, outcome.StatusCode)
	assert.Equal(t, 1, f.deliverer.callCount())

	// Nothing was charged for the failed send.
	ten, err := f.tenants.Get(ctx, "ten_1")
	require.NoError(t, err)
	assert.True(t, ten.Balance.Equal(decimal.RequireFromString("100")))
}

func TestSend_DeferredPricingFromProviderCost(t *testing.T) {
	// No rate card entry for email: price comes from the provider cost.
	f := newFixture(t, smsCard())
	f.deliverer.cost = "0.002"

	outcome, sendErr := f.svc.Send(context.Background(), f.t, &Request{
		Service: ServiceEmail,
		To:      "ops@example.com",
		Subject: "hi",
		Body:    "hello",
	})
	require.Nil(t, sendErr)

	var resp Response
	require.NoError(t, json.Unmarshal(outcome.Body, &resp))
	assert.True(t, resp.Price.Equal(decimal.RequireFromString("0.0023")), "price %s", resp.Price)
	assert.Equal(t, "unknown", resp.Continent)
}

func TestSend_NoRateAnywhereIsConfigurationError(t *testing.T) {
	f := newFixture(t, smsCard())
	// Provider reports no cost and data has no card entry.
	_, sendErr := f.svc.Send(context.Background(), f.t, &Request{
		Service: ServiceData,
		To:      "+233241234567",
		Amount:  "1GB",
	})
	require.NotNil(t, sendErr)
	assert.Equal(t, CodeConfigurationError, sendErr.Code)
}

func TestSend_MultiSegmentSMSPricing(t *testing.T) {
	f := newFixture(t, smsCard())

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	outcome, sendErr := f.svc.Send(context.Background(), f.t, &Request{
		Service: ServiceSMS,
		To:      "+233241234567",
		Body:    string(long),
	})
	require.Nil(t, sendErr)

	var resp Response
	require.NoError(t, json.Unmarshal(outcome.Body, &resp))
	assert.Equal(t, 2, resp.Segments)
	// 2 segments x 0.008 x 1.15
	assert.True(t, resp.Price.Equal(decimal.RequireFromString("0.0184")), "price %s", resp.Price)
}

func TestSend_InactiveTenant(t *testing.T) {
	f := newFixture(t, smsCard())
	f.t.Active = false

	_, sendErr := f.svc.Send(context.Background(), f.t, smsRequest(""))
	require.NotNil(t, sendErr)
	assert.Equal(t, CodeTenantInactive, sendErr.Code)
	assert.Equal(t, 403, sendErr.Status)
}

func TestSend_InvalidRequest(t *testing.T) {
	f := newFixture(t, smsCard())

	cases := []*Request{
		{Service: "fax", To: "+233241234567", Body: "x"},
		{Service: ServiceSMS, To: "", Body: "x"},
		{Service: ServiceSMS, To: "+233241234567"},
		{Service: ServiceEmail, To: "not-an-email", Subject: "s"},
		{Service: ServiceAirtime, To: "+233241234567"},
	}
	for i, req := range cases {
		_, sendErr := f.svc.Send(context.Background(), f.t, req)
		require.NotNil(t, sendErr, "case %d", i)
		assert.Equal(t, CodeInvalidRequest, sendErr.Code, "case %d", i)
	}
	assert.Equal(t, 0, f.deliverer.callCount())
}

func TestSend_BackendDownFailsClosed(t *testing.T) {
	f := newFixture(t, smsCard())
	f.backend.SetFailing(true)

	_, sendErr := f.svc.Send(context.Background(), f.t, smsRequest(""))
	require.NotNil(t, sendErr)
	assert.Equal(t, CodeBackendUnavailable, sendErr.Code)
	assert.Equal(t, 503, sendErr.Status)
	assert.Equal(t, 0, f.deliverer.callCount())
}

func TestConfirmDelivery(t *testing.T) {
	f := newFixture(t, smsCard())
	ctx := context.Background()

	outcome, sendErr := f.svc.Send(ctx, f.t, smsRequest(""))
	require.Nil(t, sendErr)
	var resp Response
	require.NoError(t, json.Unmarshal(outcome.Body, &resp))

	txn, err := f.svc.ConfirmDelivery(ctx, resp.TransactionID, true)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusDelivered, txn.Status)

	// A second receipt for a terminal transaction is rejected.
	_, err = f.svc.ConfirmDelivery(ctx, resp.TransactionID, false)
	assert.ErrorIs(t, err, transaction.ErrInvalidTransition)
}

func TestConfirmDelivery_Failed(t *testing.T) {
	f := newFixture(t, smsCard())
	ctx := context.Background()

	outcome, sendErr := f.svc.Send(ctx, f.t, smsRequest(""))
	require.Nil(t, sendErr)
	var resp Response
	require.NoError(t, json.Unmarshal(outcome.Body, &resp))

	txn, err := f.svc.ConfirmDelivery(ctx, resp.TransactionID, false)
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, txn.Status)
}

func TestSend_DecisionReflectsGlobalMinuteWindow(t *testing.T) {
	f := newFixture(t, smsCard())

	outcome, sendErr := f.svc.Send(context.Background(), f.t, smsRequest(""))
	require.Nil(t, sendErr)
	// Free plan: 10 global per minute, 1 consumed.
	assert.Equal(t, 10, outcome.Decision.Limit)
	assert.Equal(t, 9, outcome.Decision.Remaining)
	assert.WithinDuration(t, time.Now().Add(time.Minute), outcome.Decision.ResetAt, time.Minute)
}
