package reqreply

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/store"
)

// expiredPattern matches the keyevent channel for expirations on any db.
const expiredPattern = "__keyevent@*__:expired"

// TimeoutListener subscribes to key-expired notifications and synthesizes
// TIMEOUT responses for correlations that were never answered.
type TimeoutListener struct {
	store *store.Client
	bus   *events.Bus

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTimeoutListener creates the listener. bus may be nil (tests).
func NewTimeoutListener(st *store.Client, bus *events.Bus) *TimeoutListener {
	return &TimeoutListener{
		store:  st,
		bus:    bus,
		stopCh: make(chan struct{}),
	}
}

// Start begins consuming expiry notifications in a goroutine.
func (l *TimeoutListener) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
}

// Stop signals the listener to stop and waits for it.
func (l *TimeoutListener) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}

func (l *TimeoutListener) run(ctx context.Context) {
	defer l.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-l.stopCh
		cancel()
	}()

	pubsub := l.store.SubscribePattern(ctx, expiredPattern)
	defer func() { _ = pubsub.Close() }()

	slog.Info("Request/reply timeout listener started", "pattern", expiredPattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Request/reply timeout listener shutting down")
			return
		case msg, ok := <-ch:
			if !ok {
				slog.Info("Request/reply timeout listener channel closed")
				return
			}
			l.handleExpired(ctx, msg.Payload)
		}
	}
}

// handleExpired processes one expired key name. Only timeout keys matter;
// shadow keys expire on their own ten seconds later.
func (l *TimeoutListener) handleExpired(ctx context.Context, key string) {
	if !strings.HasPrefix(key, timeoutKeyPrefix) {
		return
	}
	corrID := strings.TrimPrefix(key, timeoutKeyPrefix)

	shadow, err := l.store.HGetAll(ctx, ShadowKey(corrID))
	if err != nil {
		slog.Error("Failed to read shadow for expired correlation",
			"correlation_id", corrID, "error", err)
		return
	}
	if len(shadow) == 0 {
		// Shadow already expired or the response won a very close race
		// and cleaned up; nothing to synthesize.
		slog.Debug("No shadow for expired correlation", "correlation_id", corrID)
		return
	}

	responseStream := shadow["responseStream"]
	businessID := shadow["businessId"]
	if responseStream == "" {
		slog.Warn("Shadow without response stream", "correlation_id", corrID)
		return
	}

	responseID, err := l.store.Append(ctx, responseStream, map[string]string{
		"correlationId": corrID,
		"businessId":    businessID,
		"status":        "TIMEOUT",
	})
	if err != nil {
		slog.Error("Failed to append synthetic timeout response",
			"correlation_id", corrID, "response_stream", responseStream, "error", err)
		return
	}
	if err := l.store.Delete(ctx, ShadowKey(corrID)); err != nil {
		slog.Warn("Failed to delete shadow after timeout",
			"correlation_id", corrID, "error", err)
	}

	slog.Info("Synthesized timeout response",
		"correlation_id", corrID, "business_id", businessID,
		"response_stream", responseStream, "response_id", responseID)
	if l.bus != nil {
		l.bus.Publish(events.Error("request " + corrID + " timed out"))
	}
}
