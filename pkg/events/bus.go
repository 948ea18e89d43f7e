package events

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/streamworks/relay/pkg/metrics"
)

// Sink receives serialized events. Implementations may block (a WebSocket
// write does); the bus shields producers with a per-sink buffer.
type Sink interface {
	// Deliver writes one serialized event. An error permanently removes
	// the sink from the bus.
	Deliver(data []byte) error
}

// Bus is the in-process broadcaster. Publish never blocks: each sink has
// a bounded buffer drained by its own goroutine, and when a buffer is full
// the oldest event is dropped (and counted).
type Bus struct {
	mu         sync.Mutex
	sinks      map[Sink]*sinkWorker
	bufferSize int
	metrics    *metrics.Metrics
	closed     bool
}

type sinkWorker struct {
	sink Sink
	ch   chan []byte
	done chan struct{}
}

// NewBus creates a bus with the given per-sink buffer size.
// metrics may be nil (tests).
func NewBus(bufferSize int, m *metrics.Metrics) *Bus {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Bus{
		sinks:      make(map[Sink]*sinkWorker),
		bufferSize: bufferSize,
		metrics:    m,
	}
}

// Subscribe registers a sink and starts its drain goroutine.
func (b *Bus) Subscribe(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if _, exists := b.sinks[sink]; exists {
		return
	}

	w := &sinkWorker{
		sink: sink,
		ch:   make(chan []byte, b.bufferSize),
		done: make(chan struct{}),
	}
	b.sinks[sink] = w
	go b.drain(w)
}

// Unsubscribe removes a sink. Buffered events for it are discarded.
func (b *Bus) Unsubscribe(sink Sink) {
	b.mu.Lock()
	w, ok := b.sinks[sink]
	if ok {
		delete(b.sinks, sink)
	}
	b.mu.Unlock()
	if ok {
		close(w.ch)
		<-w.done
	}
}

// Publish serializes the event once and enqueues it on every sink buffer.
// When a buffer is full the oldest queued event is dropped so the newest
// is always accepted; the drop is logged and counted, never blocking.
func (b *Bus) Publish(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "event_type", event.EventType, "error", err)
		return
	}

	if b.metrics != nil {
		b.metrics.EventsPublished.WithLabelValues(event.EventType).Inc()
	}

	b.mu.Lock()
	workers := make([]*sinkWorker, 0, len(b.sinks))
	for _, w := range b.sinks {
		workers = append(workers, w)
	}
	b.mu.Unlock()

	for _, w := range workers {
		b.enqueue(w, data)
	}
}

func (b *Bus) enqueue(w *sinkWorker, data []byte) {
	defer func() {
		// The worker channel may be closed by a concurrent Unsubscribe;
		// dropping the event for a departing sink is the correct outcome.
		_ = recover()
	}()

	for {
		select {
		case w.ch <- data:
			return
		default:
		}
		// Buffer full: evict the oldest and retry.
		select {
		case <-w.ch:
			if b.metrics != nil {
				b.metrics.EventsDropped.Inc()
			}
			slog.Warn("Event sink buffer overflow, dropped oldest event",
				"buffer_size", b.bufferSize)
		default:
		}
	}
}

// drain delivers buffered events until the sink errors or is unsubscribed.
func (b *Bus) drain(w *sinkWorker) {
	defer close(w.done)
	for data := range w.ch {
		if err := w.sink.Deliver(data); err != nil {
			slog.Warn("Event sink delivery failed, removing sink", "error", err)
			go b.Unsubscribe(w.sink)
			// Discard the remainder; Unsubscribe closes the channel.
			for range w.ch {
			}
			return
		}
	}
}

// SubscriberCount returns the number of registered sinks.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sinks)
}

// Close unsubscribes every sink and rejects further subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	workers := b.sinks
	b.sinks = make(map[Sink]*sinkWorker)
	b.mu.Unlock()

	for _, w := range workers {
		close(w.ch)
		<-w.done
	}
}
