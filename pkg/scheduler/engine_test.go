package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.NewClientFromRedis(rdb, 3*time.Second)
	return New(st, config.SchedulerConfig{
		PollInterval:   500 * time.Millisecond,
		BatchSize:      10,
		ReminderStream: "reminders.v1",
	}), st
}

func TestScheduleRejectsPastAndUntitled(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Schedule(ctx, ScheduleInput{Title: "x", ScheduledFor: time.Now().Add(-time.Minute).UnixMilli()})
	require.Error(t, err)
	assert.Equal(t, relayerr.KindValidation, relayerr.KindOf(err))

	_, err = engine.Schedule(ctx, ScheduleInput{ScheduledFor: time.Now().Add(time.Minute).UnixMilli()})
	require.Error(t, err)
	assert.Equal(t, relayerr.KindValidation, relayerr.KindOf(err))
}

func TestScheduleAndGet(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	due := time.Now().Add(time.Hour).UnixMilli()

	msg, err := engine.Schedule(ctx, ScheduleInput{Title: "ping", Description: "say hi", ScheduledFor: due})
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)

	got, err := engine.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "ping", got.Title)
	assert.Equal(t, due, got.ScheduledFor)

	// The index holds exactly one member, scored by due time.
	n, err := st.ZCard(ctx, IndexKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestListOrderedByDueTime(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	base := time.Now().Add(time.Hour)

	late, err := engine.Schedule(ctx, ScheduleInput{Title: "late", ScheduledFor: base.Add(time.Hour).UnixMilli()})
	require.NoError(t, err)
	early, err := engine.Schedule(ctx, ScheduleInput{Title: "early", ScheduledFor: base.UnixMilli()})
	require.NoError(t, err)

	msgs, err := engine.List(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, early.ID, msgs[0].ID)
	assert.Equal(t, late.ID, msgs[1].ID)
}

func TestUpdateReindexes(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	msg, err := engine.Schedule(ctx, ScheduleInput{Title: "v1", ScheduledFor: time.Now().Add(time.Hour).UnixMilli()})
	require.NoError(t, err)

	newDue := time.Now().Add(2 * time.Hour).UnixMilli()
	updated, err := engine.Update(ctx, msg.ID, ScheduleInput{Title: "v2", ScheduledFor: newDue})
	require.NoError(t, err)
	assert.Equal(t, msg.ID, updated.ID)
	assert.Equal(t, msg.CreatedAt, updated.CreatedAt)

	got, err := engine.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title)
	assert.Equal(t, newDue, got.ScheduledFor)
}

func TestUpdateMissingIsNotFound(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Update(context.Background(), "ghost", ScheduleInput{
		Title: "x", ScheduledFor: time.Now().Add(time.Hour).UnixMilli(),
	})
	require.Error(t, err)
	assert.Equal(t, relayerr.KindNotFound, relayerr.KindOf(err))
}

func TestDeleteRemovesIndexAndPayload(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	msg, err := engine.Schedule(ctx, ScheduleInput{Title: "bye", ScheduledFor: time.Now().Add(time.Hour).UnixMilli()})
	require.NoError(t, err)

	existed, err := engine.Delete(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, existed)

	n, err := st.ZCard(ctx, IndexKey)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	_, err = engine.Get(ctx, msg.ID)
	assert.Equal(t, relayerr.KindNotFound, relayerr.KindOf(err))

	existed, err = engine.Delete(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestClear(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := engine.Schedule(ctx, ScheduleInput{
			Title: "m", ScheduledFor: time.Now().Add(time.Duration(i+1) * time.Hour).UnixMilli(),
		})
		require.NoError(t, err)
	}
	require.NoError(t, engine.Clear(ctx))

	count, err := engine.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	msgs, err := engine.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}
