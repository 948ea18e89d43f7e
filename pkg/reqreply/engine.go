// Package reqreply implements correlated request/reply over streams, with
// timeouts driven by key expiration. A request arms a TTL'd timeout key
// and a longer-lived shadow hash; a reply deletes the timeout key before
// it becomes visible, so an expiry notification can only fire for
// correlations that were never answered.
//
// The store's keyspace notifications are best-effort, so a late responder
// can still append after a synthetic TIMEOUT response. Consumers of the
// response stream must therefore be idempotent on correlationId.
package reqreply

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
	"github.com/streamworks/relay/pkg/store/scripts"
)

// Correlation key prefixes.
const (
	timeoutKeyPrefix = "req.timeout:"
	shadowKeyPrefix  = "req.timeout.shadow:"
)

// TimeoutKey returns the TTL'd timeout key for a correlation id.
func TimeoutKey(corrID string) string { return timeoutKeyPrefix + corrID }

// ShadowKey returns the shadow metadata key for a correlation id.
func ShadowKey(corrID string) string { return shadowKeyPrefix + corrID }

// Engine sends requests and responses through the atomic scripts.
type Engine struct {
	store *store.Client
	bus   *events.Bus
	cfg   config.RequestReplyConfig
}

// New creates a request/reply engine. bus may be nil (tests).
func New(st *store.Client, bus *events.Bus, cfg config.RequestReplyConfig) *Engine {
	return &Engine{store: st, bus: bus, cfg: cfg}
}

// SendInput parameterizes one request.
type SendInput struct {
	BusinessID string
	TimeoutSec int64
	Payload    map[string]interface{}
}

// SendResult reports the armed correlation.
type SendResult struct {
	CorrelationID  string `json:"correlationId"`
	BusinessID     string `json:"businessId"`
	RequestID      string `json:"requestId"`
	ResponseStream string `json:"responseStream"`
	TimeoutSec     int64  `json:"timeoutSec"`
}

// Send arms the correlation keys and appends the request, all atomically.
// A fresh correlation id is generated per call; a missing business id is
// generated too.
func (e *Engine) Send(ctx context.Context, in SendInput) (*SendResult, error) {
	if len(in.Payload) == 0 {
		return nil, relayerr.Validationf("payload must not be empty")
	}
	if in.TimeoutSec < 0 {
		return nil, relayerr.Validationf("timeoutSec must not be negative")
	}
	if in.TimeoutSec == 0 {
		in.TimeoutSec = int64(e.cfg.DefaultTimeout.Seconds())
	}
	if in.BusinessID == "" {
		in.BusinessID = uuid.New().String()
	}

	corrID := uuid.New().String()
	encoded, err := json.Marshal(in.Payload)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindValidation, "payload is not JSON-encodable", err)
	}

	reply, err := e.store.RunScript(ctx, scripts.Request,
		[]string{TimeoutKey(corrID), ShadowKey(corrID), e.cfg.RequestStream},
		corrID, in.BusinessID, e.cfg.ResponseStream, in.TimeoutSec, string(encoded))
	if err != nil {
		return nil, err
	}
	requestID, err := scripts.ParseEntryID(reply)
	if err != nil {
		return nil, err
	}

	if e.bus != nil {
		e.bus.Publish(events.Produced(e.cfg.RequestStream, requestID, map[string]string{
			"correlationId": corrID,
			"businessId":    in.BusinessID,
		}))
	}
	return &SendResult{
		CorrelationID:  corrID,
		BusinessID:     in.BusinessID,
		RequestID:      requestID,
		ResponseStream: e.cfg.ResponseStream,
		TimeoutSec:     in.TimeoutSec,
	}, nil
}

// Respond deletes the correlation's timeout key and appends the reply.
// Responding to an already-expired correlation still appends; the
// duplicate is the documented cost of best-effort expiry notifications.
func (e *Engine) Respond(ctx context.Context, corrID, businessID string, payload map[string]interface{}) (string, error) {
	if corrID == "" {
		return "", relayerr.Validationf("correlationId is required")
	}
	if len(payload) == 0 {
		return "", relayerr.Validationf("payload must not be empty")
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", relayerr.Wrap(relayerr.KindValidation, "payload is not JSON-encodable", err)
	}

	reply, err := e.store.RunScript(ctx, scripts.Response,
		[]string{TimeoutKey(corrID), e.cfg.ResponseStream},
		corrID, businessID, string(encoded))
	if err != nil {
		return "", err
	}
	responseID, err := scripts.ParseEntryID(reply)
	if err != nil {
		return "", err
	}

	if e.bus != nil {
		e.bus.Publish(events.Produced(e.cfg.ResponseStream, responseID, map[string]string{
			"correlationId": corrID,
		}))
	}
	return responseID, nil
}
