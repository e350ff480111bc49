// Package send runs the request-governance pipeline every outbound message
// passes through: admission, idempotency, pricing, delivery, and recording.
package send

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/sendgate/internal/delivery"
	"github.com/mbd888/sendgate/internal/dispatch"
	"github.com/mbd888/sendgate/internal/idempotency"
	"github.com/mbd888/sendgate/internal/idgen"
	"github.com/mbd888/sendgate/internal/pricing"
	"github.com/mbd888/sendgate/internal/provider"
	"github.com/mbd888/sendgate/internal/ratelimit"
	"github.com/mbd888/sendgate/internal/routing"
	"github.com/mbd888/sendgate/internal/tenant"
	"github.com/mbd888/sendgate/internal/traces"
	"github.com/mbd888/sendgate/internal/transaction"
)

// opClass namespaces idempotency records for send operations.
const opClass = "send"

// Response is the success body returned to the tenant and replayed on
// idempotent retries.
type Response struct {
	TransactionID string          `json:"transaction_id"`
	Status        string          `json:"status"`
	Service       string          `json:"service"`
	To            string          `json:"to"`
	Provider      string          `json:"provider"`
	MessageID     string          `json:"message_id,omitempty"`
	Segments      int             `json:"segments,omitempty"`
	Price         decimal.Decimal `json:"price"`
	Continent     string          `json:"continent"`
	FellBack      bool            `json:"fell_back,omitempty"`
}

// Outcome is what a pipeline run produced: an HTTP status, the serialized
// body, and the admission decision for rate-limit headers. Replayed marks
// responses served from the idempotency cache.
type Outcome struct {
	StatusCode int
	Body       json.RawMessage
	Decision   *ratelimit.Decision
	Replayed   bool
}

// Deliverer hands a message to a transport provider. *delivery.Router is
// the production implementation.
type Deliverer interface {
	Deliver(ctx context.Context, dest routing.Destination, payload provider.Payload) (*delivery.Result, error)
}

// Service wires the pipeline stages together.
type Service struct {
	tenants    tenant.Store
	limiter    *ratelimit.Limiter
	idem       *idempotency.Coordinator
	router     Deliverer
	pricer     *pricing.Engine
	txns       transaction.Store
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewService creates the send pipeline. dispatcher may be nil in tests.
func NewService(
	tenants tenant.Store,
	limiter *ratelimit.Limiter,
	idem *idempotency.Coordinator,
	router Deliverer,
	pricer *pricing.Engine,
	txns transaction.Store,
	dispatcher *dispatch.Dispatcher,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		tenants:    tenants,
		limiter:    limiter,
		idem:       idem,
		router:     router,
		pricer:     pricer,
		txns:       txns,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Send runs the full pipeline for one request. The stage order is fixed:
// validation, admission, idempotency, pricing, delivery, recording. Earlier
// stages are cheap and reversible; the side-effecting delivery step only
// runs once admission and the idempotency lock are settled.
func (s *Service) Send(ctx context.Context, t *tenant.Tenant, req *Request) (*Outcome, *Error) {
	ctx, span := traces.StartSpan(ctx, "send.pipeline",
		traces.TenantID(t.ID),
		traces.Service(req.Service),
	)
	defer span.End()

	start := time.Now()
	outcome, sendErr := s.send(ctx, t, req)
	result := "success"
	if sendErr != nil {
		result = string(sendErr.Code)
	} else if outcome.Replayed {
		result = "replayed"
	}
	sendsTotal.WithLabelValues(req.Service, result).Inc()
	sendDuration.WithLabelValues(req.Service).Observe(time.Since(start).Seconds())
	return outcome, sendErr
}

func (s *Service) send(ctx context.Context, t *tenant.Tenant, req *Request) (*Outcome, *Error) {
	if !t.Active {
		return nil, tenantInactive()
	}
	if verr := req.Validate(); verr != nil {
		return nil, verr
	}

	// Admission first: a denied request must consume no idempotency slot.
	decision, err := s.limiter.Admit(ctx, t.ID, t.Plan, req.Service)
	if err != nil {
		return nil, backendUnavailable(err)
	}
	if !decision.Allowed {
		return nil, rateLimited(decision)
	}

	// Without an idempotency key the request processes unconditionally.
	if req.IdempotencyKey == "" {
		outcome := s.process(ctx, t, req)
		outcome.Decision = decision
		return s.finish(outcome)
	}

	begin, err := s.idem.Begin(ctx, t.ID, opClass, req.IdempotencyKey)
	if err != nil {
		return nil, backendUnavailable(err)
	}
	switch {
	case begin.Cached != nil:
		replaysTotal.WithLabelValues(req.Service).Inc()
		return &Outcome{
			StatusCode: begin.Cached.StatusCode,
			Body:       begin.Cached.Body,
			Decision:   decision,
			Replayed:   true,
		}, nil
	case begin.IsLocked:
		return nil, requestInProgress()
	}

	outcome := s.process(ctx, t, req)
	outcome.Decision = decision

	// A failure before the provider call left no side effects to protect,
	// so release the slot instead of caching the error: a retry after the
	// tenant fixes the cause (tops up, corrects the rate card) processes
	// fresh rather than replaying a stale rejection for the retention
	// window.
	if outcome.err != nil && !outcome.attempted {
		if rerr := s.idem.Release(ctx, t.ID, opClass, req.IdempotencyKey); rerr != nil {
			s.logger.Warn("idempotency release failed",
				"tenant_id", t.ID, "key", req.IdempotencyKey, "error", rerr)
		}
		return s.finish(outcome)
	}

	// Anything after the provider call is committed, failures included: a
	// client retrying a failed send with the same key gets the same answer,
	// not a second delivery attempt.
	if cerr := s.idem.Complete(ctx, t.ID, opClass, req.IdempotencyKey,
		outcome.StatusCode, outcome.Body, outcome.reference); cerr != nil {
		if errors.Is(cerr, idempotency.ErrNotLocked) {
			s.logger.Warn("idempotency lock expired before completion",
				"tenant_id", t.ID, "key", req.IdempotencyKey)
		} else {
			s.logger.Error("idempotency completion failed",
				"tenant_id", t.ID, "key", req.IdempotencyKey, "error", cerr)
		}
	}

	return s.finish(outcome)
}

// pipelineResult is the pre-serialization outcome of process.
type pipelineResult struct {
	Outcome
	reference string // transaction ID for the idempotency record
	err       *Error
	attempted bool // a provider call was made; side effects may exist
}

// finish converts a pipeline result into the handler-facing pair.
func (s *Service) finish(r *pipelineResult) (*Outcome, *Error) {
	if r.err != nil {
		r.err.Decision = r.Decision
		return nil, r.err
	}
	return &r.Outcome, nil
}

// process runs the side-effecting stages. It always returns a result whose
// StatusCode and Body are suitable for idempotent replay, including errors.
func (s *Service) process(ctx context.Context, t *tenant.Tenant, req *Request) *pipelineResult {
	dest := s.resolve(req)

	units := 1
	if req.Service == ServiceSMS {
		units = provider.SMSSegments(req.Body)
	}

	// Price up front when the rate card covers the service, so underfunded
	// sends fail before any provider traffic. Card misses defer pricing to
	// the provider-reported cost.
	quote, qerr := s.pricer.Quote(req.Service, units, decimal.Zero, false)
	deferred := false
	if qerr != nil {
		if !errors.Is(qerr, pricing.ErrNoRate) {
			return s.fail(configurationError(qerr))
		}
		deferred = true
	}
	if !deferred && t.Balance.LessThan(quote.Price) {
		return s.fail(insufficientBalance())
	}

	txn := &transaction.Transaction{
		ID:        idgen.WithPrefix("txn_"),
		TenantID:  t.ID,
		Service:   req.Service,
		Recipient: req.To,
		Status:    transaction.StatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if !deferred {
		txn.Cost = quote.Cost
		txn.Price = quote.Price
		txn.Margin = quote.Margin
		txn.Segments = units
	}
	if err := s.txns.Create(ctx, txn); err != nil {
		return s.fail(backendUnavailable(err))
	}

	result, derr := s.router.Deliver(ctx, dest, provider.Payload{
		Service: req.Service,
		To:      req.To,
		From:    req.From,
		Subject: req.Subject,
		Body:    req.Body,
		Amount:  req.Amount,
	})
	if derr != nil {
		s.markFailed(ctx, txn.ID)
		s.emit(dispatch.EventSendFailed, t.ID, txn, map[string]any{
			"reason": string(CodeDeliveryFailed),
		})
		res := s.fail(deliveryFailed(derr))
		res.reference = txn.ID
		res.attempted = true
		return res
	}

	// Final pricing: actual segment count for card-priced SMS, or the
	// provider-reported cost when the card had no entry.
	if deferred {
		quote, qerr = s.pricer.Quote(req.Service, 1, result.Cost, result.CostKnown)
		if qerr != nil {
			s.markFailed(ctx, txn.ID)
			res := s.fail(configurationError(qerr))
			res.reference = txn.ID
			res.attempted = true
			return res
		}
	} else if result.Segments > 0 && result.Segments != units {
		if q2, err2 := s.pricer.Quote(req.Service, result.Segments, result.Cost, result.CostKnown); err2 == nil {
			quote = q2
		}
	}

	if err := s.tenants.Debit(ctx, t.ID, quote.Price); err != nil {
		if errors.Is(err, tenant.ErrInsufficient) {
			s.markFailed(ctx, txn.ID)
			res := s.fail(insufficientBalance())
			res.reference = txn.ID
			res.attempted = true
			return res
		}
		s.markFailed(ctx, txn.ID)
		res := s.fail(backendUnavailable(err))
		res.reference = txn.ID
		res.attempted = true
		return res
	}

	updated, uerr := s.txns.UpdateStatus(ctx, txn.ID, transaction.StatusUpdate{
		Status:    transaction.StatusSent,
		Provider:  result.ProviderUsed,
		MessageID: result.MessageID,
		Segments:  result.Segments,
		FellBack:  result.FellBack,
		Cost:      quote.Cost,
		Price:     quote.Price,
		Margin:    quote.Margin,
	})
	if uerr != nil {
		// The send already happened and the tenant was charged; log and
		// answer with what we know rather than failing the request.
		s.logger.Error("transaction update failed after delivery",
			"transaction_id", txn.ID, "error", uerr)
		updated = txn
		updated.Status = transaction.StatusSent
		updated.Provider = result.ProviderUsed
		updated.MessageID = result.MessageID
	}

	s.emit(dispatch.EventSendAccepted, t.ID, updated, map[string]any{
		"provider": result.ProviderUsed,
		"price":    quote.Price.String(),
	})

	body, _ := json.Marshal(Response{
		TransactionID: updated.ID,
		Status:        string(updated.Status),
		Service:       req.Service,
		To:            req.To,
		Provider:      result.ProviderUsed,
		MessageID:     result.MessageID,
		Segments:      result.Segments,
		Price:         quote.Price,
		Continent:     string(dest.Continent),
		FellBack:      result.FellBack,
	})
	return &pipelineResult{
		Outcome:   Outcome{StatusCode: 200, Body: body},
		reference: updated.ID,
	}
}

// resolve maps the destination address to geography. Email has no dialing
// prefix, so it routes through the default provider via Unknown.
func (s *Service) resolve(req *Request) routing.Destination {
	if req.phoneBased() {
		return routing.ResolveDestination(req.To)
	}
	return routing.Destination{Address: req.To, Continent: routing.Unknown}
}

// fail wraps an error as a replayable outcome: the serialized error body is
// what a retry with the same idempotency key will see.
func (s *Service) fail(e *Error) *pipelineResult {
	body, _ := json.Marshal(map[string]any{"error": e})
	return &pipelineResult{
		Outcome: Outcome{StatusCode: e.Status, Body: body},
		err:     e,
	}
}

func (s *Service) markFailed(ctx context.Context, txnID string) {
	if _, err := s.txns.UpdateStatus(ctx, txnID, transaction.StatusUpdate{
		Status: transaction.StatusFailed,
	}); err != nil {
		s.logger.Error("failed to mark transaction failed",
			"transaction_id", txnID, "error", err)
	}
}

func (s *Service) emit(eventType dispatch.EventType, tenantID string, txn *transaction.Transaction, extra map[string]any) {
	if s.dispatcher == nil {
		return
	}
	data := map[string]any{
		"transaction_id": txn.ID,
		"service":        txn.Service,
		"to":             txn.Recipient,
		"status":         string(txn.Status),
	}
	for k, v := range extra {
		data[k] = v
	}
	s.dispatcher.Enqueue(dispatch.NewEvent(eventType, tenantID, data))
}

// ConfirmDelivery applies a provider delivery receipt, moving the
// transaction from sent to its terminal state and notifying the tenant.
func (s *Service) ConfirmDelivery(ctx context.Context, txnID string, delivered bool) (*transaction.Transaction, error) {
	status := transaction.StatusDelivered
	eventType := dispatch.EventSendDelivered
	if !delivered {
		status = transaction.StatusFailed
		eventType = dispatch.EventSendFailed
	}

	txn, err := s.txns.UpdateStatus(ctx, txnID, transaction.StatusUpdate{Status: status})
	if err != nil {
		return nil, err
	}
	s.emit(eventType, txn.TenantID, txn, nil)
	return txn, nil
}
