package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/streamworks/relay/pkg/backoff"
	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/metrics"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
	"github.com/streamworks/relay/pkg/store/scripts"
)

// Poller materializes due scheduled messages each tick through the
// schedule_poll script, so removal from the index, deletion of the payload
// hash, and the reminder append are one atomic unit.
type Poller struct {
	store   *store.Client
	engine  *Engine
	bus     *events.Bus
	metrics *metrics.Metrics

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates the poller. bus and metrics may be nil (tests).
func NewPoller(st *store.Client, engine *Engine, bus *events.Bus, m *metrics.Metrics) *Poller {
	return &Poller{
		store:   st,
		engine:  engine,
		bus:     bus,
		metrics: m,
		stopCh:  make(chan struct{}),
	}
}

// Start begins ticking in a goroutine.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Stop signals the poller to stop and waits for it.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	slog.Info("Scheduler poller started",
		"interval", p.engine.cfg.PollInterval, "reminder_stream", p.engine.cfg.ReminderStream)

	retry := backoff.Default()
	ticker := time.NewTicker(p.engine.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			slog.Info("Scheduler poller shutting down")
			return
		case <-ctx.Done():
			slog.Info("Context cancelled, scheduler poller shutting down")
			return
		case <-ticker.C:
			if err := p.Tick(ctx); err != nil {
				if relayerr.IsRetryable(err) {
					p.sleep(retry.Next())
					continue
				}
				slog.Error("Scheduler tick failed", "error", err)
				continue
			}
			retry.Reset()
		}
	}
}

// Tick materializes one batch of due messages. Exported so tests can drive
// the poller without timing.
func (p *Poller) Tick(ctx context.Context) error {
	reply, err := p.store.RunScript(ctx, scripts.SchedulePoll,
		[]string{IndexKey},
		time.Now().UnixMilli(), p.engine.cfg.BatchSize,
		p.engine.cfg.ReminderStream, payloadKeyPrefix)
	if err != nil {
		return err
	}
	materialized, err := scripts.ParseMaterialized(reply)
	if err != nil {
		return err
	}

	for _, m := range materialized {
		slog.Info("Scheduled message materialized",
			"member", m.Member, "reminder_id", m.ReminderID,
			"reminder_stream", p.engine.cfg.ReminderStream)
		if p.metrics != nil {
			p.metrics.ScheduledMaterialized.Inc()
		}
		if p.bus != nil {
			p.bus.Publish(events.Produced(p.engine.cfg.ReminderStream, m.ReminderID, m.Fields))
		}
	}
	return nil
}

func (p *Poller) sleep(d time.Duration) {
	select {
	case <-p.stopCh:
	case <-time.After(d):
	}
}
