package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventConstructors(t *testing.T) {
	e := Deleted("orders.v1", "g1", "5-0")
	assert.Equal(t, EventTypeMessageDeleted, e.EventType)
	assert.Equal(t, "5-0", e.MessageID)
	assert.Contains(t, e.Details, "g1")

	r := Reclaimed("orders.v1", "c2", "5-0", 3)
	assert.Equal(t, EventTypeMessageReclaimed, r.EventType)
	assert.Equal(t, "c2", r.Consumer)
	assert.Contains(t, r.Details, "3")

	d := ToDLQ("orders.v1", "orders.v1:dlq", "5-0", "9-0")
	assert.Equal(t, EventTypeMessageToDLQ, d.EventType)
	assert.Contains(t, d.Details, "orders.v1:dlq")
	assert.Contains(t, d.Details, "9-0")
}

func TestEventTimestampIsRFC3339(t *testing.T) {
	e := Info("hello")
	_, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	require.NoError(t, err)
}
