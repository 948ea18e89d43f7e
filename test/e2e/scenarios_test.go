package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/dlq"
	"github.com/streamworks/relay/pkg/fanout"
	"github.com/streamworks/relay/pkg/reqreply"
	"github.com/streamworks/relay/pkg/routing"
	"github.com/streamworks/relay/pkg/scheduler"
	"github.com/streamworks/relay/pkg/workqueue"
)

// TestDeadLetterAfterTwoDeliveries is the canonical dead-letter walk: an
// unacked entry is reclaimed once, then dead-lettered on the next call
// once its delivery count reaches the threshold.
func TestDeadLetterAfterTwoDeliveries(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()
	engine := dlq.New(h.Store, h.Bus, nil)

	const stream, group = "L", "G"
	require.NoError(t, engine.EnsureGroup(ctx, stream, group))
	origID, err := engine.Produce(ctx, stream, map[string]string{
		"type": "order.created", "order_id": "9000",
	})
	require.NoError(t, err)

	// First delivery via plain group read; no ack.
	entries, err := h.Store.GroupRead(ctx, stream, group, "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	time.Sleep(150 * time.Millisecond)

	// Second delivery: the idle entry is reclaimed for c2.
	cfg := dlq.Config{
		Stream: stream, DLQStream: stream + ":dlq", Group: group, Consumer: "c2",
		MinIdle: 100 * time.Millisecond, BatchSize: 10, MaxDeliveries: 2,
	}
	messages, routings, err := engine.GetNextMessages(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Empty(t, routings)
	assert.True(t, messages[0].IsRetry)
	assert.Equal(t, origID, messages[0].ID)
	assert.Equal(t, int64(2), messages[0].DeliveryCount)

	time.Sleep(150 * time.Millisecond)

	// Third call: delivery count has hit the threshold; the entry moves
	// to the dead-letter stream and leaves the PEL.
	cfg.Consumer = "c3"
	messages, routings, err = engine.GetNextMessages(ctx, cfg)
	require.NoError(t, err)
	assert.Empty(t, messages)
	require.Len(t, routings, 1)
	assert.Equal(t, origID, routings[0].OrigID)

	dlqEntries, err := h.Store.Range(ctx, stream+":dlq", "-", "+", 10)
	require.NoError(t, err)
	require.Len(t, dlqEntries, 1)
	assert.Equal(t, routings[0].NewDLQID, dlqEntries[0].ID)
	assert.Equal(t, map[string]string{"type": "order.created", "order_id": "9000"}, dlqEntries[0].Fields)

	pending, err := h.Store.Pending(ctx, stream, group, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "PEL must be empty after the dead-letter transition")
}

// TestClaimReturnsDisjointSets: no entry appears both ready and routed in
// a single atomic call.
func TestClaimReturnsDisjointSets(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()
	engine := dlq.New(h.Store, h.Bus, nil)

	const stream, group = "disjoint.v1", "G"
	require.NoError(t, engine.EnsureGroup(ctx, stream, group))

	// Two entries: one pushed over the threshold, one never delivered.
	overID, err := engine.Produce(ctx, stream, map[string]string{"n": "over"})
	require.NoError(t, err)
	_, err = h.Store.GroupRead(ctx, stream, group, "c1", 1, 0)
	require.NoError(t, err)
	freshID, err := engine.Produce(ctx, stream, map[string]string{"n": "fresh"})
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)

	cfg := dlq.Config{
		Stream: stream, Group: group, Consumer: "c2",
		MinIdle: 100 * time.Millisecond, BatchSize: 10, MaxDeliveries: 1,
	}
	messages, routings, err := engine.GetNextMessages(ctx, cfg)
	require.NoError(t, err)

	require.Len(t, routings, 1)
	assert.Equal(t, overID, routings[0].OrigID)
	require.Len(t, messages, 1)
	assert.Equal(t, freshID, messages[0].ID)
	assert.False(t, messages[0].IsRetry)
}

// TestTopicRoutingStopOnMatch is the multi-rule exchange scenario: the
// high-priority stop rule wins and suppresses every later match.
func TestTopicRoutingStopOnMatch(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()
	engine := routing.New(h.Store, h.Bus, config.RoutingConfig{Exchange: "events.topic.v1", MaxRules: 50})

	result, err := engine.Route(ctx, "events.topic.v1", "order.cancelled.vip.eu.v1",
		map[string]interface{}{"order_id": "9000"})
	require.NoError(t, err)

	require.Len(t, result.RoutedTo, 1)
	assert.Equal(t, "events.audit.cancelled", result.RoutedTo[0].Stream)

	for stream, want := range map[string]int64{
		"events.audit.cancelled":  1,
		"events.order.v1":         0,
		"events.notification.vip": 0,
	} {
		n, err := h.Store.StreamLen(ctx, stream)
		require.NoError(t, err)
		assert.Equal(t, want, n, stream)
	}
}

// TestTopicRoutingAtomicMultiDestination: all matching destinations
// receive the payload in one atomic unit.
func TestTopicRoutingAtomicMultiDestination(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()
	engine := routing.New(h.Store, h.Bus, config.RoutingConfig{Exchange: "events.topic.v1", MaxRules: 50})

	result, err := engine.Route(ctx, "events.topic.v1", "order.created.vip.v1",
		map[string]interface{}{"order_id": "7"})
	require.NoError(t, err)
	require.Len(t, result.RoutedTo, 2)

	for _, stream := range []string{"events.order.v1", "events.notification.vip"} {
		entries, err := h.Store.Range(ctx, stream, "-", "+", 10)
		require.NoError(t, err)
		require.Len(t, entries, 1, stream)
		assert.Equal(t, "7", entries[0].Fields["order_id"])
	}
}

// TestSchedulerMaterializesDueItem: a due item lands on the reminder
// stream within the poll interval and vanishes from index and hash.
func TestSchedulerMaterializesDueItem(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()

	engine := scheduler.New(h.Store, h.Cfg.Scheduler)
	poller := scheduler.NewPoller(h.Store, engine, h.Bus, nil)
	poller.Start(ctx)
	t.Cleanup(poller.Stop)

	before, err := engine.PendingCount(ctx)
	require.NoError(t, err)

	msg, err := engine.Schedule(ctx, scheduler.ScheduleInput{
		Title:        "nudge",
		Description:  "scheduled hello",
		ScheduledFor: time.Now().Add(200 * time.Millisecond).UnixMilli(),
	})
	require.NoError(t, err)

	Eventually(t, 2*time.Second, func() bool {
		n, err := h.Store.StreamLen(ctx, "reminders.v1")
		return err == nil && n == 1
	}, "reminder not materialized")

	entries, err := h.Store.Range(ctx, "reminders.v1", "-", "+", 10)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, entries[0].Fields["id"])
	assert.Equal(t, "nudge", entries[0].Fields["title"])

	after, err := engine.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	_, err = engine.Get(ctx, msg.ID)
	require.Error(t, err)
}

// TestRequestReplyTimeout: an unanswered request yields exactly one
// synthetic TIMEOUT response, and both correlation keys are gone.
func TestRequestReplyTimeout(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()

	engine := reqreply.New(h.Store, h.Bus, h.Cfg.RequestReply)
	listener := reqreply.NewTimeoutListener(h.Store, h.Bus)
	listener.Start(ctx)
	t.Cleanup(listener.Stop)
	// Give the PSUBSCRIBE a moment to establish.
	time.Sleep(100 * time.Millisecond)

	sent, err := engine.Send(ctx, reqreply.SendInput{
		TimeoutSec: 1,
		Payload:    map[string]interface{}{"question": "anyone?"},
	})
	require.NoError(t, err)

	Eventually(t, 5*time.Second, func() bool {
		entries, err := h.Store.Range(ctx, sent.ResponseStream, "-", "+", 10)
		return err == nil && len(entries) == 1
	}, "no timeout response")

	entries, err := h.Store.Range(ctx, sent.ResponseStream, "-", "+", 10)
	require.NoError(t, err)
	assert.Equal(t, "TIMEOUT", entries[0].Fields["status"])
	assert.Equal(t, sent.CorrelationID, entries[0].Fields["correlationId"])

	_, err = h.Store.Get(ctx, reqreply.TimeoutKey(sent.CorrelationID))
	require.Error(t, err)
	shadow, err := h.Store.HGetAll(ctx, reqreply.ShadowKey(sent.CorrelationID))
	require.NoError(t, err)
	assert.Empty(t, shadow)
}

// TestRequestReplyAnsweredInTime: a response suppresses the timeout.
func TestRequestReplyAnsweredInTime(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()

	engine := reqreply.New(h.Store, h.Bus, h.Cfg.RequestReply)
	listener := reqreply.NewTimeoutListener(h.Store, h.Bus)
	listener.Start(ctx)
	t.Cleanup(listener.Stop)
	time.Sleep(100 * time.Millisecond)

	sent, err := engine.Send(ctx, reqreply.SendInput{
		TimeoutSec: 1,
		Payload:    map[string]interface{}{"question": "ping"},
	})
	require.NoError(t, err)

	_, err = engine.Respond(ctx, sent.CorrelationID, sent.BusinessID,
		map[string]interface{}{"answer": "pong"})
	require.NoError(t, err)

	// Wait past the timeout window: no synthetic response may appear.
	time.Sleep(1500 * time.Millisecond)
	entries, err := h.Store.Range(ctx, sent.ResponseStream, "-", "+", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "pong", entries[0].Fields["answer"])
}

// TestWorkQueueProcessesAndDeadLetters: competing consumers drain OK
// entries to done-logs; Error entries exhaust retries into the DLQ.
func TestWorkQueueProcessesAndDeadLetters(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()

	cfg := h.Cfg.WorkQueue
	cfg.MaxDeliveries = 2
	engine := workqueue.New(cfg, h.Store, dlq.New(h.Store, h.Bus, nil), h.Bus, nil)
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(engine.Stop)

	for i := 0; i < 10; i++ {
		processingType := "OK"
		if i == 4 {
			processingType = "Error"
		}
		_, err := engine.Produce(ctx, processingType, map[string]string{"n": fmt.Sprint(i)})
		require.NoError(t, err)
	}

	Eventually(t, 15*time.Second, func() bool {
		status, err := engine.Status(ctx)
		if err != nil {
			return false
		}
		var done int64
		for _, n := range status.DoneLens {
			done += n
		}
		return done == 9 && status.DLQLen == 1
	}, "work queue did not drain to done-logs and DLQ")

	// The dead-lettered entry is the Error one, preserved verbatim.
	dlqEntries, err := h.Store.Range(ctx, cfg.Stream+":dlq", "-", "+", 10)
	require.NoError(t, err)
	require.Len(t, dlqEntries, 1)
	assert.Equal(t, "Error", dlqEntries[0].Fields["processingType"])
	assert.Equal(t, "4", dlqEntries[0].Fields["n"])
}

// TestFanOutCompleteness: with one failure every 10th entry, each group
// independently processes the rest and dead-letters the failures.
func TestFanOutCompleteness(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()

	cfg := h.Cfg.FanOut
	cfg.MaxDeliveries = 2
	engine := fanout.New(cfg, h.Store, dlq.New(h.Store, h.Bus, nil), h.Bus, nil)
	require.NoError(t, engine.Start(ctx))
	t.Cleanup(engine.Stop)

	for i := 1; i <= 20; i++ {
		processingType := "OK"
		if i%10 == 0 {
			processingType = "Error"
		}
		_, err := engine.Produce(ctx, processingType, map[string]string{"n": fmt.Sprint(i)})
		require.NoError(t, err)
	}

	Eventually(t, 30*time.Second, func() bool {
		status, err := engine.Status(ctx)
		if err != nil {
			return false
		}
		for _, n := range status.DoneLens {
			if n != 18 {
				return false
			}
		}
		for _, n := range status.DLQLens {
			if n != 2 {
				return false
			}
		}
		return len(status.DoneLens) == cfg.Workers
	}, "fan-out groups did not each observe every entry")
}
