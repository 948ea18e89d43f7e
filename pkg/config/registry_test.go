package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDLQRegistryFallsBackToDefaults(t *testing.T) {
	reg := NewDLQRegistry(Defaults().DLQ)

	cfg := reg.Get("orders.v1")
	assert.Equal(t, "orders.v1", cfg.Stream)
	assert.Equal(t, "dlq-group", cfg.Group)
	assert.Equal(t, int64(3), cfg.MaxDeliveries)
}

func TestDLQRegistryOverride(t *testing.T) {
	reg := NewDLQRegistry(Defaults().DLQ)

	reg.Set(DLQConfig{
		Stream:        "orders.v1",
		Group:         "orders-group",
		MinIdle:       250 * time.Millisecond,
		MaxDeliveries: 7,
		BatchSize:     5,
	})

	cfg := reg.Get("orders.v1")
	assert.Equal(t, "orders-group", cfg.Group)
	assert.Equal(t, int64(7), cfg.MaxDeliveries)
	assert.Equal(t, 250*time.Millisecond, cfg.MinIdle)

	// Other streams still see the defaults.
	other := reg.Get("payments.v1")
	assert.Equal(t, "dlq-group", other.Group)

	assert.ElementsMatch(t, []string{"orders.v1"}, reg.Streams())
}
