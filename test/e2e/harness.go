// Package e2e drives the pattern engines and the atomic scripts against a
// real Redis.
//
// In CI (when CI_REDIS_URL is set) it connects to an external Redis
// service container; in local dev it spins up a testcontainer. The
// container/connection is cleaned up when the test ends.
package e2e

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/store"
	"github.com/streamworks/relay/pkg/store/scripts"
)

// Harness bundles a connected store and event bus for scenario tests.
type Harness struct {
	Store *store.Client
	Bus   *events.Bus
	Cfg   *config.Config
}

// NewHarness connects to Redis, flushes it, registers the scripts, and
// enables expiry notifications.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	ctx := context.Background()

	connStr := os.Getenv("CI_REDIS_URL")
	if connStr == "" {
		t.Log("Using testcontainers for Redis")
		container, err := tcredis.Run(ctx, "redis:7-alpine")
		require.NoError(t, err)
		t.Cleanup(func() { _ = container.Terminate(context.Background()) })

		connStr, err = container.ConnectionString(ctx)
		require.NoError(t, err)
	} else {
		t.Log("Using external Redis from CI_REDIS_URL")
	}

	opts, err := redis.ParseURL(connStr)
	require.NoError(t, err)
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.FlushAll(ctx).Err())

	st := store.NewClientFromRedis(rdb, 3*time.Second)
	require.NoError(t, scripts.LoadAll(ctx, st))
	require.NoError(t, st.EnableExpiryNotifications(ctx))

	bus := events.NewBus(256, nil)
	t.Cleanup(bus.Close)

	return &Harness{
		Store: st,
		Bus:   bus,
		Cfg:   config.Defaults(),
	}
}

// Eventually polls cond every 25 ms until it holds or the timeout expires.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out: %s", msg)
		case <-time.After(25 * time.Millisecond):
		}
	}
}
