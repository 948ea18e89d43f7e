// Package pubsub implements fire-and-forget channel publishing and the
// pattern-subscription bridge that mirrors matching messages onto the
// event bus. The store persists nothing for this pattern: no retries, no
// replay, and the only backpressure is each subscriber's own input queue.
package pubsub

import (
	"context"
	"log/slog"
	"sync"

	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
)

// Engine publishes to exact channels.
type Engine struct {
	store *store.Client
	bus   *events.Bus
}

// New creates a pub/sub engine. bus may be nil (tests).
func New(st *store.Client, bus *events.Bus) *Engine {
	return &Engine{store: st, bus: bus}
}

// Publish sends a payload on an exact channel and returns the subscriber
// count observed at publish time.
func (e *Engine) Publish(ctx context.Context, channel, payload string) (int64, error) {
	if channel == "" {
		return 0, relayerr.Validationf("channel is required")
	}
	n, err := e.store.Publish(ctx, channel, payload)
	if err != nil {
		return 0, err
	}
	if e.bus != nil {
		e.bus.Publish(events.Info("published to channel " + channel))
	}
	return n, nil
}

// PublishRouted treats the routing key as the channel name, so pattern
// subscribers select messages with their glob ("*" is a single segment,
// "." separates segments).
func (e *Engine) PublishRouted(ctx context.Context, routingKey, payload string) (int64, error) {
	if routingKey == "" {
		return 0, relayerr.Validationf("routingKey is required")
	}
	return e.Publish(ctx, routingKey, payload)
}

// PatternBridge is the long-lived pattern subscriber: every message on a
// matching channel is mirrored onto the event bus.
type PatternBridge struct {
	store *store.Client
	bus   *events.Bus
	cfg   config.PubSubConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPatternBridge creates the bridge for the configured patterns.
func NewPatternBridge(st *store.Client, bus *events.Bus, cfg config.PubSubConfig) *PatternBridge {
	return &PatternBridge{
		store:  st,
		bus:    bus,
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start begins consuming matching messages in a goroutine. A bridge with
// no configured patterns is a no-op.
func (b *PatternBridge) Start(ctx context.Context) {
	if len(b.cfg.Patterns) == 0 {
		return
	}
	b.wg.Add(1)
	go b.run(ctx)
}

// Stop signals the bridge to stop and waits for it.
func (b *PatternBridge) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
	b.wg.Wait()
}

func (b *PatternBridge) run(ctx context.Context) {
	defer b.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-b.stopCh
		cancel()
	}()

	pubsub := b.store.SubscribePattern(ctx, b.cfg.Patterns...)
	defer func() { _ = pubsub.Close() }()

	slog.Info("Pattern subscription bridge started", "patterns", b.cfg.Patterns)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Pattern subscription bridge shutting down")
			return
		case msg, ok := <-ch:
			if !ok {
				slog.Info("Pattern subscription channel closed")
				return
			}
			if b.bus != nil {
				e := events.NewEvent(events.EventTypeMessageProduced)
				e.StreamName = msg.Channel
				e.Payload = map[string]string{"message": msg.Payload}
				e.Details = "pub/sub message matching " + msg.Pattern
				b.bus.Publish(e)
			}
		}
	}
}
