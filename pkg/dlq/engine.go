// Package dlq implements the dead-letter pattern engine: pending
// inspection, retry claims, and threshold-based routing to a dead-letter
// stream, all through one atomic server-side script.
package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/metrics"
	"github.com/streamworks/relay/pkg/models"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
	"github.com/streamworks/relay/pkg/store/scripts"
)

// DLQSuffix is appended to a stream name to derive its dead-letter stream.
const DLQSuffix = ":dlq"

// Config parameterizes one read_claim_or_dlq invocation.
type Config struct {
	Stream        string
	DLQStream     string
	Group         string
	Consumer      string
	MinIdle       time.Duration
	MaxDeliveries int64
	BatchSize     int64
}

// Validate rejects configurations the script cannot run with.
func (c Config) Validate() error {
	if c.Stream == "" || c.Group == "" || c.Consumer == "" {
		return relayerr.Validationf("stream, group, and consumer are required")
	}
	if c.MinIdle < 0 {
		return relayerr.Validationf("minIdleMs must not be negative")
	}
	if c.MaxDeliveries < 1 {
		return relayerr.Validationf("maxDeliveries must be at least 1, got %d", c.MaxDeliveries)
	}
	if c.BatchSize < 1 {
		return relayerr.Validationf("count must be at least 1, got %d", c.BatchSize)
	}
	return nil
}

// DLQStreamOrDefault returns the configured dead-letter stream, defaulting
// to "<stream>:dlq".
func (c Config) DLQStreamOrDefault() string {
	if c.DLQStream != "" {
		return c.DLQStream
	}
	return c.Stream + DLQSuffix
}

// Engine exposes the dead-letter state machine to callers.
type Engine struct {
	store   *store.Client
	bus     *events.Bus
	metrics *metrics.Metrics
}

// New creates a dead-letter engine. bus and metrics may be nil (tests).
func New(st *store.Client, bus *events.Bus, m *metrics.Metrics) *Engine {
	return &Engine{store: st, bus: bus, metrics: m}
}

// EnsureGroup creates the consumer group at the stream origin if missing,
// creating the stream as a side effect.
func (e *Engine) EnsureGroup(ctx context.Context, stream, group string) error {
	return e.store.CreateGroup(ctx, stream, group, "0")
}

// Produce appends a payload to the stream.
func (e *Engine) Produce(ctx context.Context, stream string, payload map[string]string) (string, error) {
	if len(payload) == 0 {
		return "", relayerr.Validationf("payload must not be empty")
	}
	return e.store.Append(ctx, stream, payload)
}

// GetNextMessages runs the atomic read/claim/dead-letter step and returns
// the entries now owned by cfg.Consumer plus the dead-letter routings that
// occurred in the same call. The two sets are disjoint by construction.
func (e *Engine) GetNextMessages(ctx context.Context, cfg Config) ([]models.Message, []models.DLQRouting, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	reply, err := e.store.RunScript(ctx, scripts.ReadClaimOrDLQ,
		[]string{cfg.Stream, cfg.DLQStreamOrDefault()},
		cfg.Group, cfg.Consumer, cfg.MinIdle.Milliseconds(), cfg.BatchSize, cfg.MaxDeliveries)
	if err != nil {
		return nil, nil, err
	}
	result, err := scripts.ParseClaimResult(reply)
	if err != nil {
		return nil, nil, err
	}

	messages := make([]models.Message, 0, len(result.Ready))
	for _, ready := range result.Ready {
		messages = append(messages, models.Message{
			ID:            ready.Entry.ID,
			Fields:        ready.Entry.Fields,
			DeliveryCount: ready.DeliveryCount,
			IsRetry:       ready.IsRetry,
			Stream:        cfg.Stream,
			Group:         cfg.Group,
			Consumer:      cfg.Consumer,
		})
		if ready.IsRetry {
			e.noteReclaimed(cfg, ready)
		}
	}
	for _, routing := range result.Routed {
		e.noteDeadLettered(cfg, routing)
	}

	return messages, result.Routed, nil
}

// Acknowledge removes an entry from the group's PEL. Acking an unknown id
// is a no-op; the returned bool reports whether anything was removed.
func (e *Engine) Acknowledge(ctx context.Context, stream, group, id string) (bool, error) {
	n, err := e.store.Ack(ctx, stream, group, id)
	if err != nil {
		return false, err
	}
	if n > 0 && e.bus != nil {
		e.bus.Publish(events.Deleted(stream, group, id))
	}
	return n > 0, nil
}

// ProcessOutcome reports what ProcessOne did.
type ProcessOutcome struct {
	Message  *models.Message     `json:"message,omitempty"`
	Acked    bool                `json:"acked"`
	Routings []models.DLQRouting `json:"dlqRoutings,omitempty"`
}

// ProcessOne consumes at most one message. On shouldSucceed it is acked
// (and reported processed); otherwise it is left pending and becomes
// retry-eligible once idle long enough.
func (e *Engine) ProcessOne(ctx context.Context, cfg Config, shouldSucceed bool) (*ProcessOutcome, error) {
	cfg.BatchSize = 1
	messages, routings, err := e.GetNextMessages(ctx, cfg)
	if err != nil {
		return nil, err
	}

	outcome := &ProcessOutcome{Routings: routings}
	if len(messages) == 0 {
		return outcome, nil
	}

	msg := messages[0]
	outcome.Message = &msg
	if !shouldSucceed {
		// Business failure: no ack, entry stays in the PEL.
		return outcome, nil
	}

	acked, err := e.Acknowledge(ctx, cfg.Stream, cfg.Group, msg.ID)
	if err != nil {
		return outcome, err
	}
	outcome.Acked = acked
	if e.bus != nil {
		e.bus.Publish(events.Processed(cfg.Stream, cfg.Consumer, msg.ID))
	}
	return outcome, nil
}

// Cleanup deletes the stream and its dead-letter stream, then recreates
// the consumer group at the origin.
func (e *Engine) Cleanup(ctx context.Context, stream, group string) error {
	if err := e.store.Delete(ctx, stream, stream+DLQSuffix); err != nil {
		return err
	}
	if group == "" {
		return nil
	}
	return e.EnsureGroup(ctx, stream, group)
}

func (e *Engine) noteReclaimed(cfg Config, ready scripts.ReadyEntry) {
	slog.Debug("Reclaimed pending entry",
		"stream", cfg.Stream, "group", cfg.Group, "consumer", cfg.Consumer,
		"id", ready.Entry.ID, "delivery_count", ready.DeliveryCount)
	if e.metrics != nil {
		e.metrics.EntriesClaimed.WithLabelValues(cfg.Stream).Inc()
	}
	if e.bus != nil {
		e.bus.Publish(events.Reclaimed(cfg.Stream, cfg.Consumer, ready.Entry.ID, ready.DeliveryCount))
	}
}

func (e *Engine) noteDeadLettered(cfg Config, routing models.DLQRouting) {
	slog.Info("Entry moved to dead-letter stream",
		"stream", cfg.Stream, "group", cfg.Group,
		"orig_id", routing.OrigID, "dlq_id", routing.NewDLQID,
		"dlq_stream", cfg.DLQStreamOrDefault())
	if e.metrics != nil {
		e.metrics.DLQRoutings.WithLabelValues(cfg.Stream).Inc()
	}
	if e.bus != nil {
		e.bus.Publish(events.ToDLQ(cfg.Stream, cfg.DLQStreamOrDefault(), routing.OrigID, routing.NewDLQID))
	}
}
