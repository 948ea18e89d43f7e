// Package contentrouter implements content-based routing: a deterministic
// predicate on the payment amount picks exactly one destination stream.
// Ranges are half-open so threshold edges are unambiguous.
package contentrouter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/dlq"
	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
)

// Payment is the routed payload.
type Payment struct {
	PaymentID string  `json:"paymentId"`
	Amount    float64 `json:"amount"`
	Country   string  `json:"country"`
	Method    string  `json:"method"`
}

// Result reports where a payment landed.
type Result struct {
	Destination string `json:"destination"`
	ID          string `json:"id"`
	PaymentID   string `json:"paymentId"`
}

// Rule is one row of the routing table, for display.
type Rule struct {
	Range       string `json:"range"`
	Destination string `json:"destination"`
}

// Engine routes payments by amount.
type Engine struct {
	store *store.Client
	bus   *events.Bus
	cfg   config.ContentRulesConfig
}

// New creates a content-based router. bus may be nil (tests).
func New(st *store.Client, bus *events.Bus, cfg config.ContentRulesConfig) *Engine {
	return &Engine{store: st, bus: bus, cfg: cfg}
}

// Destinations, derived from the configured prefix.
func (e *Engine) dlqStream() string          { return e.cfg.Prefix + dlq.DLQSuffix }
func (e *Engine) standardStream() string     { return e.cfg.Prefix + ".standard" }
func (e *Engine) highRiskStream() string     { return e.cfg.Prefix + ".highRisk" }
func (e *Engine) manualReviewStream() string { return e.cfg.Prefix + ".manualReview" }

// Destination picks the stream for an amount:
//
//	amount < 0                          → dead-letter
//	[0, StandardMax)                    → standard
//	[StandardMax, ManualReviewMin)      → high risk
//	[ManualReviewMin, ∞)                → manual review
func (e *Engine) Destination(amount float64) string {
	switch {
	case amount < 0:
		return e.dlqStream()
	case amount < e.cfg.StandardMax:
		return e.standardStream()
	case amount < e.cfg.ManualReviewMin:
		return e.highRiskStream()
	default:
		return e.manualReviewStream()
	}
}

// Submit routes a payment to its destination stream. A missing payment id
// is generated; an invalid (negative) amount still routes — to the
// dead-letter stream, which is the point of the pattern.
func (e *Engine) Submit(ctx context.Context, p Payment) (*Result, error) {
	if p.Country == "" || p.Method == "" {
		return nil, relayerr.Validationf("country and method are required")
	}
	if p.PaymentID == "" {
		p.PaymentID = uuid.New().String()
	}

	dest := e.Destination(p.Amount)
	id, err := e.store.Append(ctx, dest, map[string]string{
		"paymentId": p.PaymentID,
		"amount":    strconv.FormatFloat(p.Amount, 'f', -1, 64),
		"country":   p.Country,
		"method":    p.Method,
	})
	if err != nil {
		return nil, err
	}

	if e.bus != nil {
		if dest == e.dlqStream() {
			e.bus.Publish(events.ToDLQ(e.cfg.Prefix, dest, p.PaymentID, id))
		} else {
			e.bus.Publish(events.Produced(dest, id, map[string]string{
				"paymentId": p.PaymentID,
				"amount":    strconv.FormatFloat(p.Amount, 'f', -1, 64),
			}))
		}
	}
	return &Result{Destination: dest, ID: id, PaymentID: p.PaymentID}, nil
}

// Rules returns the routing table for display.
func (e *Engine) Rules() []Rule {
	return []Rule{
		{Range: "amount < 0", Destination: e.dlqStream()},
		{Range: fmt.Sprintf("0 <= amount < %g", e.cfg.StandardMax), Destination: e.standardStream()},
		{Range: fmt.Sprintf("%g <= amount < %g", e.cfg.StandardMax, e.cfg.ManualReviewMin), Destination: e.highRiskStream()},
		{Range: fmt.Sprintf("amount >= %g", e.cfg.ManualReviewMin), Destination: e.manualReviewStream()},
	}
}

// Clear deletes all destination streams.
func (e *Engine) Clear(ctx context.Context) error {
	return e.store.Delete(ctx,
		e.dlqStream(), e.standardStream(), e.highRiskStream(), e.manualReviewStream())
}
