// Package pricing converts a delivery cost into the tenant-facing price by
// applying a configured margin. Cost comes from the operator rate card when
// one covers the service, otherwise from the provider-reported actual cost.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidMargin means the configured margin percentage is negative.
	// Selling below cost is never a valid configuration.
	ErrInvalidMargin = errors.New("pricing: margin percentage must be >= 0")

	// ErrNoRate means neither the rate card nor the provider supplied a
	// cost for the operation, so no price can be computed.
	ErrNoRate = errors.New("pricing: no rate available")
)

// RateCard maps a service type to its per-unit cost. A unit is one SMS
// segment, one email, one data bundle, or one airtime top-up.
type RateCard map[string]decimal.Decimal

// Quote is a fully priced operation.
type Quote struct {
	Cost   decimal.Decimal // what delivery costs us
	Price  decimal.Decimal // what the tenant pays
	Margin decimal.Decimal // Price - Cost, always >= 0
	Source string          // "rate_card" or "provider"
}

// Engine prices operations with a fixed margin over cost.
type Engine struct {
	card      RateCard
	marginPct decimal.Decimal
	// multiplier = 1 + marginPct/100, precomputed once
	multiplier decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// NewEngine builds a pricing engine. marginPct is a percentage (15 means a
// 15% markup) and must be non-negative; the card may be nil or partial.
func NewEngine(card RateCard, marginPct decimal.Decimal) (*Engine, error) {
	if marginPct.IsNegative() {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidMargin, marginPct)
	}
	return &Engine{
		card:       card,
		marginPct:  marginPct,
		multiplier: decimal.NewFromInt(1).Add(marginPct.Div(oneHundred)),
	}, nil
}

// Quote prices an operation of the given service covering units billable
// units. providerCost is the actual cost the provider reported for the
// whole operation; costKnown is false when the provider did not report one.
//
// The rate card wins when it covers the service. Falling back to the
// provider cost keeps odd corridors billable without a card entry.
func (e *Engine) Quote(service string, units int, providerCost decimal.Decimal, costKnown bool) (*Quote, error) {
	if units < 1 {
		units = 1
	}

	var cost decimal.Decimal
	source := "rate_card"
	if rate, ok := e.card[service]; ok {
		cost = rate.Mul(decimal.NewFromInt(int64(units)))
	} else if costKnown {
		cost = providerCost
		source = "provider"
	} else {
		return nil, fmt.Errorf("%w: service %q", ErrNoRate, service)
	}

	price := cost.Mul(e.multiplier)
	quotesComputed.WithLabelValues(service, source).Inc()

	return &Quote{
		Cost:   cost,
		Price:  price,
		Margin: price.Sub(cost),
		Source: source,
	}, nil
}

// MarginPct returns the configured margin percentage.
func (e *Engine) MarginPct() decimal.Decimal { return e.marginPct }
