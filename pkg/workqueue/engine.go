// Package workqueue implements the competing-consumers pattern: N workers
// sharing one consumer group on one stream, each writing its own done-log,
// with retries and dead-lettering handled by the shared atomic claim step.
package workqueue

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
)

// ProcessingTypeField is the payload field the default predicate inspects.
const ProcessingTypeField = "processingType"

// SuccessPredicate decides whether a delivered entry counts as processed.
// Entries failing the predicate are left pending and retried until the
// delivery threshold dead-letters them.
type SuccessPredicate func(fields map[string]string) bool

// DefaultPredicate treats processingType=="OK" as success.
func DefaultPredicate(fields map[string]string) bool {
	return fields[ProcessingTypeField] == "OK"
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status constants.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is one worker's health snapshot.
type WorkerHealth struct {
	Consumer     string       `json:"consumer"`
	Status       WorkerStatus `json:"status"`
	Processed    int64        `json:"processed"`
	LastActivity time.Time    `json:"lastActivity"`
}

// Engine runs the worker pool.
type Engine struct {
	cfg       config.WorkQueueConfig
	store     *store.Client
	claims    *dlq.Engine
	bus       *events.Bus
	predicate SuccessPredicate

	workers  []*worker
	stopOnce sync.Once
	started  bool
}

// New creates a work-queue engine. predicate may be nil for the default.
func New(cfg config.WorkQueueConfig, st *store.Client, claims *dlq.Engine, bus *events.Bus, predicate SuccessPredicate) *Engine {
	if predicate == nil {
		predicate = DefaultPredicate
	}
	return &Engine{
		cfg:       cfg,
		store:     st,
		claims:    claims,
		bus:       bus,
		predicate: predicate,
	}
}

// Start creates the shared group and spawns the worker goroutines.
// Safe to call once; subsequent calls are no-ops.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		slog.Warn("Work-queue engine already started, ignoring duplicate Start call")
		return nil
	}
	e.started = true

	if err := e.store.CreateGroup(ctx, e.cfg.Stream, e.cfg.Group, "0"); err != nil {
		return fmt.Errorf("creating work-queue group: %w", err)
	}

	slog.Info("Starting work-queue engine",
		"stream", e.cfg.Stream, "group", e.cfg.Group, "workers", e.cfg.Workers)

	for i := 0; i < e.cfg.Workers; i++ {
		w := newWorker(e, i)
		e.workers = append(e.workers, w)
		w.start(ctx)
	}
	return nil
}

// Stop signals all workers to stop and waits for them to finish their
// current iteration.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		for _, w := range e.workers {
			w.stop()
		}
	})
}

// Produce appends a payload with the given processing type to the input
// stream.
func (e *Engine) Produce(ctx context.Context, processingType string, payload map[string]string) (string, error) {
	if processingType == "" {
		return "", relayerr.Validationf("processingType is required")
	}
	fields := make(map[string]string, len(payload)+1)
	for k, v := range payload {
		fields[k] = v
	}
	fields[ProcessingTypeField] = processingType
	return e.store.Append(ctx, e.cfg.Stream, fields)
}

// Clear deletes the input stream, the dead-letter stream, and every
// worker's done-log, then recreates the shared group at the origin.
func (e *Engine) Clear(ctx context.Context) error {
	keys := []string{e.cfg.Stream, e.cfg.Stream + dlq.DLQSuffix}
	for i := 0; i < e.cfg.Workers; i++ {
		keys = append(keys, e.DoneStream(i))
	}
	if err := e.store.Delete(ctx, keys...); err != nil {
		return err
	}
	return e.store.CreateGroup(ctx, e.cfg.Stream, e.cfg.Group, "0")
}

// DoneStream names worker i's done-log.
func (e *Engine) DoneStream(i int) string {
	return fmt.Sprintf("%s:done-log:worker-%d", e.cfg.Stream, i)
}

// Status is the engine's observable state.
type Status struct {
	Stream   string           `json:"stream"`
	Group    string           `json:"group"`
	QueueLen int64            `json:"queueLen"`
	DLQLen   int64            `json:"dlqLen"`
	DoneLens map[string]int64 `json:"doneLens"`
	Workers  []WorkerHealth   `json:"workers"`
}

// Status reports queue depth, done-log lengths, DLQ length, and worker
// health.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	queueLen, err := e.store.StreamLen(ctx, e.cfg.Stream)
	if err != nil {
		return nil, err
	}
	dlqLen, err := e.store.StreamLen(ctx, e.cfg.Stream+dlq.DLQSuffix)
	if err != nil {
		return nil, err
	}

	st := &Status{
		Stream:   e.cfg.Stream,
		Group:    e.cfg.Group,
		QueueLen: queueLen,
		DLQLen:   dlqLen,
		DoneLens: make(map[string]int64, e.cfg.Workers),
	}
	for i := 0; i < e.cfg.Workers; i++ {
		n, err := e.store.StreamLen(ctx, e.DoneStream(i))
		if err != nil {
			return nil, err
		}
		st.DoneLens[e.DoneStream(i)] = n
	}
	for _, w := range e.workers {
		st.Workers = append(st.Workers, w.health())
	}
	return st, nil
}

// worker is one competing consumer.
type worker struct {
	engine   *Engine
	index    int
	consumer string
	doneLog  string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu           sync.RWMutex
	status       WorkerStatus
	processed    int64
	lastActivity time.Time
}

func newWorker(e *Engine, i int) *worker {
	return &worker{
		engine:       e,
		index:        i,
		consumer:     fmt.Sprintf("worker-%d", i),
		doneLog:      e.DoneStream(i),
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
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

func (w *worker) health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		Consumer:     w.consumer,
		Status:       w.status,
		Processed:    w.processed,
		LastActivity: w.lastActivity,
	}
}

// run is the main worker loop.
func (w *worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With("stream", w.engine.cfg.Stream, "consumer", w.consumer)
	log.Info("Work-queue worker started")

	retry := backoff.Default()
	for {
		select {
		case <-w.stopCh:
			log.Info("Work-queue worker shutting down")
			return
		case <-ctx.Done():
			log.Info("Context cancelled, work-queue worker shutting down")
			return
		default:
			if err := w.iterate(ctx); err != nil {
				if relayerr.IsRetryable(err) {
					w.sleep(retry.Next())
					continue
				}
				log.Error("Work-queue iteration failed", "error", err)
				w.sleep(w.engine.cfg.PollInterval)
				continue
			}
			retry.Reset()
			w.sleep(w.engine.cfg.PollInterval)
		}
	}
}

// iterate claims a batch and processes each entry with the predicate.
func (w *worker) iterate(ctx context.Context) error {
	cfg := dlq.Config{
		Stream:        w.engine.cfg.Stream,
		Group:         w.engine.cfg.Group,
		Consumer:      w.consumer,
		MinIdle:       w.engine.cfg.MinIdle,
		MaxDeliveries: w.engine.cfg.MaxDeliveries,
		BatchSize:     w.engine.cfg.BatchSize,
	}

	messages, _, err := w.engine.claims.GetNextMessages(ctx, cfg)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	w.setStatus(WorkerStatusWorking)
	defer w.setStatus(WorkerStatusIdle)

	for _, msg := range messages {
		if !w.engine.predicate(msg.Fields) {
			// Business failure: leave pending, retried after MinIdle.
			continue
		}
		if _, err := w.engine.store.Append(ctx, w.doneLog, msg.Fields); err != nil {
			return err
		}
		if _, err := w.engine.claims.Acknowledge(ctx, cfg.Stream, cfg.Group, msg.ID); err != nil {
			return err
		}
		if w.engine.bus != nil {
			w.engine.bus.Publish(events.Processed(cfg.Stream, w.consumer, msg.ID))
		}
		w.mu.Lock()
		w.processed++
		w.mu.Unlock()
	}
	return nil
}

// sleep waits for the given duration or until stop is signalled.
func (w *worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

func (w *worker) setStatus(status WorkerStatus) {
	w.mu.Lock()
	w.status = status
	w.lastActivity = time.Now()
	w.mu.Unlock()
}
