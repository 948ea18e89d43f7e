package routing

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/models"
	"github.com/streamworks/relay/pkg/relayerr"
	"github.com/streamworks/relay/pkg/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	st := store.NewClientFromRedis(rdb, 3*time.Second)
	return New(st, nil, config.RoutingConfig{Exchange: "events.topic.v1", MaxRules: 5}), st
}

func TestValidateRule(t *testing.T) {
	valid := models.RoutingRule{
		ID: "r1", Pattern: "^order%.", Destination: "events.order.v1", Priority: 100, Enabled: true,
	}
	require.NoError(t, ValidateRule(valid))

	tests := []struct {
		name   string
		mutate func(*models.RoutingRule)
	}{
		{"missing id", func(r *models.RoutingRule) { r.ID = "" }},
		{"missing pattern", func(r *models.RoutingRule) { r.Pattern = "" }},
		{"missing destination", func(r *models.RoutingRule) { r.Destination = "" }},
		{"priority too low", func(r *models.RoutingRule) { r.Priority = 0 }},
		{"priority too high", func(r *models.RoutingRule) { r.Priority = 1000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := valid
			tt.mutate(&rule)
			err := ValidateRule(rule)
			require.Error(t, err)
			assert.Equal(t, relayerr.KindValidation, relayerr.KindOf(err))
		})
	}
}

func TestSortRulesByPriorityThenID(t *testing.T) {
	rules := []models.RoutingRule{
		{ID: "b", Priority: 100},
		{ID: "a", Priority: 100},
		{ID: "z", Priority: 10},
	}
	SortRules(rules)

	assert.Equal(t, "z", rules[0].ID)
	assert.Equal(t, "a", rules[1].ID)
	assert.Equal(t, "b", rules[2].ID)
}

func TestDefaultsMaterializedOnFirstUse(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	rules, err := engine.ListRules(ctx, "events.topic.v1")
	require.NoError(t, err)
	assert.Len(t, rules, len(DefaultRules()))
	// Evaluation order: the stop-on-match audit rule comes first.
	assert.Equal(t, "cancelled-audit", rules[0].ID)
	assert.True(t, rules[0].StopOnMatch)
}

func TestRuleCRUD(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	rule := models.RoutingRule{
		ID: "custom", Pattern: "^inventory%.", Destination: "events.inventory.v1",
		Priority: 200, Enabled: true,
	}
	require.NoError(t, engine.UpsertRule(ctx, "events.topic.v1", rule))

	got, err := engine.GetRule(ctx, "events.topic.v1", "custom")
	require.NoError(t, err)
	assert.Equal(t, "^inventory%.", got.Pattern)

	meta, err := engine.Metadata(ctx, "events.topic.v1")
	require.NoError(t, err)
	assert.Greater(t, meta.Version, int64(1))

	existed, err := engine.DeleteRule(ctx, "events.topic.v1", "custom")
	require.NoError(t, err)
	assert.True(t, existed)

	_, err = engine.GetRule(ctx, "events.topic.v1", "custom")
	assert.Equal(t, relayerr.KindNotFound, relayerr.KindOf(err))

	existed, err = engine.DeleteRule(ctx, "events.topic.v1", "custom")
	require.NoError(t, err)
	assert.False(t, existed)
}

func TestUpsertEnforcesRuleBudget(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Defaults occupy 4 of the 5 slots.
	require.NoError(t, engine.UpsertRule(ctx, "events.topic.v1", models.RoutingRule{
		ID: "fifth", Pattern: "x", Destination: "d", Priority: 500, Enabled: true,
	}))
	err := engine.UpsertRule(ctx, "events.topic.v1", models.RoutingRule{
		ID: "sixth", Pattern: "x", Destination: "d", Priority: 501, Enabled: true,
	})
	require.Error(t, err)
	assert.Equal(t, relayerr.KindValidation, relayerr.KindOf(err))

	// Updating an existing rule is always allowed.
	require.NoError(t, engine.UpsertRule(ctx, "events.topic.v1", models.RoutingRule{
		ID: "fifth", Pattern: "y", Destination: "d", Priority: 500, Enabled: true,
	}))
}

func TestRouteStopOnMatchPrecedence(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	// The default rule set: cancelled-audit (prio 10, stop) beats
	// order-events (prio 100) and vip-notifications (prio 110).
	result, err := engine.Route(ctx, "events.topic.v1", "order.cancelled.vip.eu.v1",
		map[string]interface{}{"order_id": "9000"})
	require.NoError(t, err)

	require.Len(t, result.RoutedTo, 1)
	assert.Equal(t, "events.audit.cancelled", result.RoutedTo[0].Stream)

	auditLen, err := st.StreamLen(ctx, "events.audit.cancelled")
	require.NoError(t, err)
	assert.Equal(t, int64(1), auditLen)
	orderLen, err := st.StreamLen(ctx, "events.order.v1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), orderLen)
	vipLen, err := st.StreamLen(ctx, "events.notification.vip")
	require.NoError(t, err)
	assert.Equal(t, int64(0), vipLen)
}

func TestRouteMultiDestination(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	// order.created.vip.v1 matches order-events AND vip-notifications;
	// neither stops evaluation.
	result, err := engine.Route(ctx, "events.topic.v1", "order.created.vip.v1",
		map[string]interface{}{"order_id": "42"})
	require.NoError(t, err)

	streams := make([]string, 0, len(result.RoutedTo))
	for _, dest := range result.RoutedTo {
		streams = append(streams, dest.Stream)
	}
	assert.ElementsMatch(t, []string{"events.order.v1", "events.notification.vip"}, streams)

	// Destination entries carry the payload plus the matched rule id.
	entries, err := st.Range(ctx, "events.order.v1", "-", "+", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "42", entries[0].Fields["order_id"])
	assert.Equal(t, "order-events", entries[0].Fields["_ruleId"])

	// The exchange entry carries the routing key.
	exchange, err := st.Range(ctx, "events.topic.v1", "-", "+", 10)
	require.NoError(t, err)
	require.Len(t, exchange, 1)
	assert.Equal(t, "order.created.vip.v1", exchange[0].Fields["_routingKey"])
}

func TestRouteNoMatchAppendsOnlyToExchange(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Route(ctx, "events.topic.v1", "unrelated.key",
		map[string]interface{}{"x": "1"})
	require.NoError(t, err)
	assert.Empty(t, result.RoutedTo)

	n, err := st.StreamLen(ctx, "events.topic.v1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRouteValidation(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.Route(ctx, "events.topic.v1", "", map[string]interface{}{"x": "1"})
	assert.Equal(t, relayerr.KindValidation, relayerr.KindOf(err))

	_, err = engine.Route(ctx, "events.topic.v1", "order.created", nil)
	assert.Equal(t, relayerr.KindValidation, relayerr.KindOf(err))
}
