// Package fanout implements durable broadcast: N independent consumer
// groups on one input stream, one worker per group, each with its own
// done-log and dead-letter stream. Every input entry is delivered to each
// group at least once.
package fanout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streamworks/relay/pkg/backoff"
	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/dlq"
	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
	"github.com/streamworks/relay/pkg/workqueue"
)

// Engine runs one worker per consumer group.
type Engine struct {
	cfg       config.FanOutConfig
	store     *store.Client
	claims    *dlq.Engine
	bus       *events.Bus
	predicate workqueue.SuccessPredicate

	workers  []*worker
	stopOnce sync.Once
	started  bool
}

// New creates a fan-out engine. predicate may be nil for the default.
func New(cfg config.FanOutConfig, st *store.Client, claims *dlq.Engine, bus *events.Bus, predicate workqueue.SuccessPredicate) *Engine {
	if predicate == nil {
		predicate = workqueue.DefaultPredicate
	}
	return &Engine{
		cfg:       cfg,
		store:     st,
		claims:    claims,
		bus:       bus,
		predicate: predicate,
	}
}

// Group names consumer group i.
func (e *Engine) Group(i int) string {
	return fmt.Sprintf("group-%d", i)
}

// DoneStream names group i's done-log.
func (e *Engine) DoneStream(i int) string {
	return fmt.Sprintf("%s:done-log:group-%d", e.cfg.Stream, i)
}

// DLQStream names group i's dead-letter stream. Groups fail independently,
// so each owns its own dead-letter stream.
func (e *Engine) DLQStream(i int) string {
	return fmt.Sprintf("%s:group-%d%s", e.cfg.Stream, i, dlq.DLQSuffix)
}

// Start creates every group at the stream origin and spawns the workers.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		slog.Warn("Fan-out engine already started, ignoring duplicate Start call")
		return nil
	}
	e.started = true

	for i := 0; i < e.cfg.Workers; i++ {
		if err := e.store.CreateGroup(ctx, e.cfg.Stream, e.Group(i), "0"); err != nil {
			return fmt.Errorf("creating fan-out group %s: %w", e.Group(i), err)
		}
	}

	slog.Info("Starting fan-out engine", "stream", e.cfg.Stream, "groups", e.cfg.Workers)

	for i := 0; i < e.cfg.Workers; i++ {
		w := newWorker(e, i)
		e.workers = append(e.workers, w)
		w.start(ctx)
	}
	return nil
}

// Stop signals all workers to stop and waits for them.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		for _, w := range e.workers {
			w.stop()
		}
	})
}

// Produce appends a payload with the given processing type to the input
// stream; every group will observe it.
func (e *Engine) Produce(ctx context.Context, processingType string, payload map[string]string) (string, error) {
	if processingType == "" {
		return "", relayerr.Validationf("processingType is required")
	}
	fields := make(map[string]string, len(payload)+1)
	for k, v := range payload {
		fields[k] = v
	}
	fields[workqueue.ProcessingTypeField] = processingType
	return e.store.Append(ctx, e.cfg.Stream, fields)
}

// Clear deletes the input stream and every group's done-log and
// dead-letter stream, then recreates the groups at the origin.
func (e *Engine) Clear(ctx context.Context) error {
	keys := []string{e.cfg.Stream}
	for i := 0; i < e.cfg.Workers; i++ {
		keys = append(keys, e.DoneStream(i), e.DLQStream(i))
	}
	if err := e.store.Delete(ctx, keys...); err != nil {
		return err
	}
	for i := 0; i < e.cfg.Workers; i++ {
		if err := e.store.CreateGroup(ctx, e.cfg.Stream, e.Group(i), "0"); err != nil {
			return err
		}
	}
	return nil
}

// Status reports input length and per-group done/DLQ lengths.
type Status struct {
	Stream   string           `json:"stream"`
	InputLen int64            `json:"inputLen"`
	DoneLens map[string]int64 `json:"doneLens"`
	DLQLens  map[string]int64 `json:"dlqLens"`
}

// Status reports the engine's observable state.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	inputLen, err := e.store.StreamLen(ctx, e.cfg.Stream)
	if err != nil {
		return nil, err
	}
	st := &Status{
		Stream:   e.cfg.Stream,
		InputLen: inputLen,
		DoneLens: make(map[string]int64, e.cfg.Workers),
		DLQLens:  make(map[string]int64, e.cfg.Workers),
	}
	for i := 0; i < e.cfg.Workers; i++ {
		n, err := e.store.StreamLen(ctx, e.DoneStream(i))
		if err != nil {
			return nil, err
		}
		st.DoneLens[e.DoneStream(i)] = n
		d, err := e.store.StreamLen(ctx, e.DLQStream(i))
		if err != nil {
			return nil, err
		}
		st.DLQLens[e.DLQStream(i)] = d
	}
	return st, nil
}

// worker consumes the input stream through its private group.
type worker struct {
	engine   *Engine
	index    int
	group    string
	consumer string
	doneLog  string
	dlqLog   string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newWorker(e *Engine, i int) *worker {
	return &worker{
		engine:   e,
		index:    i,
		group:    e.Group(i),
		consumer: fmt.Sprintf("worker-%d", i),
		doneLog:  e.DoneStream(i),
		dlqLog:   e.DLQStream(i),
		stopCh:   make(chan struct{}),
	}
}

func (w *worker) start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *worker) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("stream", w.engine.cfg.Stream, "group", w.group)
	log.Info("Fan-out worker started")

	retry := backoff.Default()
	for {
		select {
		case <-w.stopCh:
			log.Info("Fan-out worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, fan-out worker shutting down")
			return
		default:
			if err := w.iterate(ctx); err != nil {
				if relayerr.IsRetryable(err) {
					w.sleep(retry.Next())
					continue
				}
				log.Error("Fan-out iteration failed", "error", err)
				w.sleep(w.engine.cfg.PollInterval)
				continue
			}
			retry.Reset()
			w.sleep(w.engine.cfg.PollInterval)
		}
	}
}

func (w *worker) iterate(ctx context.Context) error {
	cfg := dlq.Config{
		Stream:        w.engine.cfg.Stream,
		DLQStream:     w.dlqLog,
		Group:         w.group,
		Consumer:      w.consumer,
		MinIdle:       w.engine.cfg.MinIdle,
		MaxDeliveries: w.engine.cfg.MaxDeliveries,
		BatchSize:     w.engine.cfg.BatchSize,
	}

	messages, _, err := w.engine.claims.GetNextMessages(ctx, cfg)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if !w.engine.predicate(msg.Fields) {
			continue
		}
		if _, err := w.engine.store.Append(ctx, w.doneLog, msg.Fields); err != nil {
			return err
		}
		if _, err := w.engine.claims.Acknowledge(ctx, cfg.Stream, w.group, msg.ID); err != nil {
			return err
		}
		if w.engine.bus != nil {
			w.engine.bus.Publish(events.Processed(cfg.Stream, w.group+"/"+w.consumer, msg.ID))
		}
	}
	return nil
}

func (w *worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}
