// Package monitor polls the configured streams and mirrors new entries
// onto the event bus as MESSAGE_PRODUCED events.
//
// Each monitored stream gets a dedicated "monitor:<stream>" consumer
// group, so the monitor never competes with application groups. Entries
// are acked immediately after the event is published: the monitor is an
// observer, not a processor.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/streamworks/relay/pkg/backoff"
	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
)

// GroupPrefix prefixes the dedicated per-stream monitor groups.
const GroupPrefix = "monitor:"

// consumerName is the single monitor consumer within each group.
const consumerName = "monitor"

// Monitor is the poll-and-broadcast worker.
type Monitor struct {
	store *store.Client
	bus   *events.Bus
	cfg   config.MonitorConfig

	mu      sync.Mutex
	streams []string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a monitor for the configured streams.
func New(st *store.Client, bus *events.Bus, cfg config.MonitorConfig) *Monitor {
	return &Monitor{
		store:   st,
		bus:     bus,
		cfg:     cfg,
		streams: append([]string(nil), cfg.Streams...),
		stopCh:  make(chan struct{}),
	}
}

// AddStream starts monitoring another stream at its current tail.
func (m *Monitor) AddStream(ctx context.Context, stream string) error {
	if err := m.ensureGroup(ctx, stream); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.streams {
		if s == stream {
			return nil
		}
	}
	m.streams = append(m.streams, stream)
	return nil
}

// Start creates the monitor groups and begins polling in a goroutine.
func (m *Monitor) Start(ctx context.Context) error {
	for _, stream := range m.snapshot() {
		if err := m.ensureGroup(ctx, stream); err != nil {
			return err
		}
	}

	m.wg.Add(1)
	go m.run(ctx)
	return nil
}

// Stop signals the monitor to stop and waits for it.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// ensureGroup creates the dedicated group at the stream tail, so only
// entries appended after monitoring began are observed.
func (m *Monitor) ensureGroup(ctx context.Context, stream string) error {
	return m.store.CreateGroup(ctx, stream, GroupPrefix+stream, "$")
}

func (m *Monitor) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.streams...)
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	slog.Info("Stream monitor started",
		"streams", len(m.snapshot()), "interval", m.cfg.PollInterval)

	retry := backoff.Default()
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			slog.Info("Stream monitor shutting down")
			return
		case <-ctx.Done():
			slog.Info("Context cancelled, stream monitor shutting down")
			return
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				if relayerr.IsRetryable(err) {
					m.sleep(retry.Next())
					continue
				}
				slog.Error("Monitor tick failed", "error", err)
				continue
			}
			retry.Reset()
		}
	}
}

// Tick reads new entries from every monitored stream and publishes one
// MESSAGE_PRODUCED event per entry. Exported so tests can drive the
// monitor without timing.
func (m *Monitor) Tick(ctx context.Context) error {
	var firstErr error
	for _, stream := range m.snapshot() {
		if err := m.pollStream(ctx, stream); err != nil {
			// A failing stream must not starve the others.
			if firstErr == nil {
				firstErr = err
			}
			slog.Warn("Monitor poll failed for stream", "stream", stream, "error", err)
		}
	}
	return firstErr
}

func (m *Monitor) pollStream(ctx context.Context, stream string) error {
	group := GroupPrefix + stream
	entries, err := m.store.GroupRead(ctx, stream, group, consumerName, m.cfg.BatchSize, 0)
	if err != nil {
		if relayerr.KindOf(err) == relayerr.KindNotFound {
			// Stream or group vanished (e.g. a destructive clear); recreate
			// and resume next tick.
			return m.ensureGroup(ctx, stream)
		}
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		m.bus.Publish(events.Produced(stream, entry.ID, entry.Fields))
		ids = append(ids, entry.ID)
	}
	_, err = m.store.Ack(ctx, stream, group, ids...)
	return err
}

func (m *Monitor) sleep(d time.Duration) {
	select {
	case <-m.stopCh:
	case <-time.After(d):
	}
}
