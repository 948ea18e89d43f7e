package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.NewClientFromRedis(rdb, 3*time.Second)
	return New(st, nil), st
}

func TestPublishValidation(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Publish(context.Background(), "", "payload")
	require.Error(t, err)
	assert.Equal(t, relayerr.KindValidation, relayerr.KindOf(err))

	_, err = engine.PublishRouted(context.Background(), "", "payload")
	require.Error(t, err)
	assert.Equal(t, relayerr.KindValidation, relayerr.KindOf(err))
}

func TestPublishCountsSubscribers(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	n, err := engine.Publish(ctx, "orders.events", "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	sub := st.Subscribe(ctx, "orders.events")
	defer func() { _ = sub.Close() }()
	// Wait for the subscription to be established.
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	n, err = engine.Publish(ctx, "orders.events", "hello again")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hello again", msg.Payload)
}

func TestPatternSubscriberReceivesRoutedPublish(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	sub := st.SubscribePattern(ctx, "order.*")
	defer func() { _ = sub.Close() }()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n, err := engine.PublishRouted(ctx, "order.created", `{"order_id":"1"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(recvCtx)
	require.NoError(t, err)
	assert.Equal(t, "order.created", msg.Channel)
	assert.Equal(t, "order.*", msg.Pattern)
}
