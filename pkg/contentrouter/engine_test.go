package contentrouter

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
	return New(st, nil, config.ContentRulesConfig{
		Prefix:          "payments",
		StandardMax:     100,
		ManualReviewMin: 10000,
	}), st
}

// TestDestinationCompleteness: every amount maps to exactly one stream,
// with half-open edges.
func TestDestinationCompleteness(t *testing.T) {
	engine, _ := newTestEngine(t)

	tests := []struct {
		amount float64
		want   string
	}{
		{-15, "payments:dlq"},
		{-0.01, "payments:dlq"},
		{0, "payments.standard"},
		{50, "payments.standard"},
		{99.99, "payments.standard"},
		{100, "payments.highRisk"},
		{500, "payments.highRisk"},
		{9999.99, "payments.highRisk"},
		{10000, "payments.manualReview"},
		{150000, "payments.manualReview"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, engine.Destination(tt.amount), "amount %v", tt.amount)
	}
}

func TestSubmitRoutesAndGeneratesID(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Submit(ctx, Payment{Amount: 500, Country: "DE", Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, "payments.highRisk", result.Destination)
	assert.NotEmpty(t, result.PaymentID)

	entries, err := st.Range(ctx, "payments.highRisk", "-", "+", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "500", entries[0].Fields["amount"])
	assert.Equal(t, "DE", entries[0].Fields["country"])
}

func TestSubmitNegativeAmountGoesToDLQ(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Submit(ctx, Payment{Amount: -15, Country: "FR", Method: "card"})
	require.NoError(t, err)
	assert.Equal(t, "payments:dlq", result.Destination)

	n, err := st.StreamLen(ctx, "payments:dlq")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubmitValidation(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Submit(context.Background(), Payment{Amount: 10})
	require.Error(t, err)
	assert.Equal(t, relayerr.KindValidation, relayerr.KindOf(err))
}

func TestClearDeletesAllDestinations(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()

	for _, amount := range []float64{-1, 10, 1000, 20000} {
		_, err := engine.Submit(ctx, Payment{Amount: amount, Country: "US", Method: "card"})
		require.NoError(t, err)
	}
	require.NoError(t, engine.Clear(ctx))

	for _, stream := range []string{"payments:dlq", "payments.standard", "payments.highRisk", "payments.manualReview"} {
		n, err := st.StreamLen(ctx, stream)
		require.NoError(t, err)
		assert.Equal(t, int64(0), n, stream)
	}
}
