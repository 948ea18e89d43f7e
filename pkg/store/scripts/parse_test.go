package scripts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamworks/relay/pkg/relayerr"
)

func TestParseClaimResult(t *testing.T) {
	reply := []interface{}{
		[]interface{}{
			[]interface{}{
				"1690000000000-0",
				[]interface{}{"type", "order.created", "order_id", "9000"},
				int64(2),
				int64(1),
			},
			[]interface{}{
				"1690000000001-0",
				[]interface{}{"type", "order.created"},
				int64(1),
				int64(0),
			},
		},
		[]interface{}{
			[]interface{}{"1689999999999-0", "1690000000500-0"},
		},
	}

	result, err := ParseClaimResult(reply)
	require.NoError(t, err)

	require.Len(t, result.Ready, 2)
	retry := result.Ready[0]
	assert.Equal(t, "1690000000000-0", retry.Entry.ID)
	assert.Equal(t, map[string]string{"type": "order.created", "order_id": "9000"}, retry.Entry.Fields)
	assert.Equal(t, int64(2), retry.DeliveryCount)
	assert.True(t, retry.IsRetry)

	fresh := result.Ready[1]
	assert.False(t, fresh.IsRetry)
	assert.Equal(t, int64(1), fresh.DeliveryCount)

	require.Len(t, result.Routed, 1)
	assert.Equal(t, "1689999999999-0", result.Routed[0].OrigID)
	assert.Equal(t, "1690000000500-0", result.Routed[0].NewDLQID)
}

func TestParseClaimResultEmpty(t *testing.T) {
	result, err := ParseClaimResult([]interface{}{[]interface{}{}, []interface{}{}})
	require.NoError(t, err)
	assert.Empty(t, result.Ready)
	assert.Empty(t, result.Routed)
}

func TestParseClaimResultMalformed(t *testing.T) {
	tests := []struct {
		name  string
		reply interface{}
	}{
		{"not a slice", "nope"},
		{"wrong arity", []interface{}{[]interface{}{}}},
		{"ready entry too short", []interface{}{
			[]interface{}{[]interface{}{"1-0", []interface{}{}}},
			[]interface{}{},
		}},
		{"odd field array", []interface{}{
			[]interface{}{[]interface{}{"1-0", []interface{}{"k"}, int64(1), int64(0)}},
			[]interface{}{},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClaimResult(tt.reply)
			require.Error(t, err)
			assert.Equal(t, relayerr.KindProtocol, relayerr.KindOf(err))
		})
	}
}

func TestParseRouteResult(t *testing.T) {
	reply := []interface{}{
		"1690000000000-0",
		[]interface{}{
			[]interface{}{"events.audit.cancelled", "1690000000001-0"},
			[]interface{}{"events.order.v1", "1690000000002-0"},
		},
	}

	result, err := ParseRouteResult(reply)
	require.NoError(t, err)
	assert.Equal(t, "1690000000000-0", result.ExchangeID)
	require.Len(t, result.RoutedTo, 2)
	assert.Equal(t, "events.audit.cancelled", result.RoutedTo[0].Stream)
	assert.Equal(t, "1690000000002-0", result.RoutedTo[1].ID)
}

func TestParseRouteResultNoMatches(t *testing.T) {
	result, err := ParseRouteResult([]interface{}{"1-0", []interface{}{}})
	require.NoError(t, err)
	assert.Equal(t, "1-0", result.ExchangeID)
	assert.Empty(t, result.RoutedTo)
}

func TestParseEntryID(t *testing.T) {
	id, err := ParseEntryID("1690000000000-0")
	require.NoError(t, err)
	assert.Equal(t, "1690000000000-0", id)

	_, err = ParseEntryID(int64(7))
	require.Error(t, err)
}

func TestParseMaterialized(t *testing.T) {
	reply := []interface{}{
		[]interface{}{
			"message:abc",
			"1690000000000-0",
			[]interface{}{"id", "abc", "title", "ping"},
		},
	}

	out, err := ParseMaterialized(reply)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "message:abc", out[0].Member)
	assert.Equal(t, "1690000000000-0", out[0].ReminderID)
	assert.Equal(t, map[string]string{"id": "abc", "title": "ping"}, out[0].Fields)
}
