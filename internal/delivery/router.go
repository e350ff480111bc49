// Package delivery routes each outbound message to a transport provider
// with bounded, deterministic fallback: one primary attempt, at most one
// fallback attempt, always sequential.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mbd888/sendgate/internal/circuitbreaker"
	"github.com/mbd888/sendgate/internal/provider"
	"github.com/mbd888/sendgate/internal/routing"
)

var (
	// ErrNoProvider means the routing policy selected a provider that was
	// never registered. Configuration fault, not a delivery failure.
	ErrNoProvider = errors.New("delivery: selected provider not registered")

	// ErrDeliveryFailed means both the primary and (if applicable) the
	// fallback attempt failed.
	ErrDeliveryFailed = errors.New("delivery: all attempts failed")
)

// Result is the normalized outcome of a delivery.
type Result struct {
	Success      bool
	ProviderUsed string
	MessageID    string
	Segments     int
	Cost         decimal.Decimal // provider-reported actual cost, when known
	CostKnown    bool
	FellBack     bool
	Err          error // last attempt's error when Success is false
}

// Router orchestrates provider selection and the single-fallback protocol.
type Router struct {
	providers map[string]provider.Provider
	policy    *routing.Policy
	breaker   *circuitbreaker.Breaker
	logger    *slog.Logger
}

// NewRouter creates a delivery router over the registered providers.
func NewRouter(providers []provider.Provider, policy *routing.Policy, breaker *circuitbreaker.Breaker, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	byName := make(map[string]provider.Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Router{providers: byName, policy: policy, breaker: breaker, logger: logger}
}

// Deliver resolves the destination, attempts the preferred provider, and
// falls back at most once. Both attempts failing returns a failed Result
// wrapped in ErrDeliveryFailed; the caller marks the transaction failed.
func (r *Router) Deliver(ctx context.Context, dest routing.Destination, payload provider.Payload) (*Result, error) {
	primary := r.policy.Primary(dest.Continent, r.breaker.Allow)

	resp, err := r.attempt(ctx, primary, payload)
	if err == nil {
		deliveryAttempts.WithLabelValues(primary, "success").Inc()
		return r.success(primary, resp, false), nil
	}
	deliveryAttempts.WithLabelValues(primary, "failure").Inc()
	r.logger.Warn("primary delivery attempt failed",
		"provider", primary,
		"continent", string(dest.Continent),
		"country_code", dest.CountryCode,
		"error", err,
	)

	fallback := r.policy.Fallback(primary, dest.Continent)
	if fallback == "" {
		return &Result{ProviderUsed: primary, Err: err}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	deliveryFallbacks.WithLabelValues(primary, fallback).Inc()
	resp, ferr := r.attempt(ctx, fallback, payload)
	if ferr == nil {
		deliveryAttempts.WithLabelValues(fallback, "success").Inc()
		return r.success(fallback, resp, true), nil
	}
	deliveryAttempts.WithLabelValues(fallback, "failure").Inc()
	r.logger.Error("fallback delivery attempt failed",
		"primary", primary,
		"fallback", fallback,
		"error", ferr,
	)

	return &Result{ProviderUsed: fallback, FellBack: true, Err: ferr},
		fmt.Errorf("%w: %v", ErrDeliveryFailed, ferr)
}

// attempt runs one provider call and feeds the breaker.
func (r *Router) attempt(ctx context.Context, name string, payload provider.Payload) (*provider.Response, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, ErrNoProvider
	}

	start := time.Now()
	resp, err := p.Send(ctx, payload)
	deliveryLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())

	if err != nil {
		r.breaker.RecordFailure(name)
		return nil, err
	}
	r.breaker.RecordSuccess(name)
	return resp, nil
}

func (r *Router) success(name string, resp *provider.Response, fellBack bool) *Result {
	return &Result{
		Success:      true,
		ProviderUsed: name,
		MessageID:    resp.MessageID,
		Segments:     resp.Segments,
		Cost:         resp.Cost,
		CostKnown:    resp.CostKnown,
		FellBack:     fellBack,
	}
}
