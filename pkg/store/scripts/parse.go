package scripts

import (
	"fmt"

	"github.com/streamworks/relay/pkg/models"
	"github.com/streamworks/relay/pkg/relayerr"
)

// ReadyEntry is one entry handed to the caller by read_claim_or_dlq:
// either a reclaimed pending entry (IsRetry) or a fresh delivery.
type ReadyEntry struct {
	Entry         models.Entry
	DeliveryCount int64
	IsRetry       bool
}

// ClaimResult is the decoded reply of read_claim_or_dlq.
type ClaimResult struct {
	Ready  []ReadyEntry
	Routed []models.DLQRouting
}

// Materialized is one scheduled message moved to the reminder stream by
// schedule_poll.
type Materialized struct {
	Member     string
	ReminderID string
	Fields     map[string]string
}

// ParseClaimResult decodes a read_claim_or_dlq reply.
func ParseClaimResult(reply interface{}) (*ClaimResult, error) {
	top, err := asSlice(reply, "read_claim_or_dlq reply")
	if err != nil {
		return nil, err
	}
	if len(top) != 2 {
		return nil, protocolErr("read_claim_or_dlq reply has %d elements, want 2", len(top))
	}

	result := &ClaimResult{}

	readyRaw, err := asSlice(top[0], "ready list")
	if err != nil {
		return nil, err
	}
	for _, item := range readyRaw {
		tuple, err := asSlice(item, "ready entry")
		if err != nil {
			return nil, err
		}
		if len(tuple) != 4 {
			return nil, protocolErr("ready entry has %d elements, want 4", len(tuple))
		}
		id, err := asString(tuple[0], "ready entry id")
		if err != nil {
			return nil, err
		}
		fields, err := asFieldMap(tuple[1])
		if err != nil {
			return nil, err
		}
		deliveries, err := asInt(tuple[2], "ready entry delivery count")
		if err != nil {
			return nil, err
		}
		isRetry, err := asInt(tuple[3], "ready entry retry flag")
		if err != nil {
			return nil, err
		}
		result.Ready = append(result.Ready, ReadyEntry{
			Entry:         models.Entry{ID: id, Fields: fields},
			DeliveryCount: deliveries,
			IsRetry:       isRetry == 1,
		})
	}

	routedRaw, err := asSlice(top[1], "routed list")
	if err != nil {
		return nil, err
	}
	for _, item := range routedRaw {
		pair, err := asSlice(item, "dlq routing")
		if err != nil {
			return nil, err
		}
		if len(pair) != 2 {
			return nil, protocolErr("dlq routing has %d elements, want 2", len(pair))
		}
		origID, err := asString(pair[0], "dlq routing orig id")
		if err != nil {
			return nil, err
		}
		newID, err := asString(pair[1], "dlq routing new id")
		if err != nil {
			return nil, err
		}
		result.Routed = append(result.Routed, models.DLQRouting{OrigID: origID, NewDLQID: newID})
	}

	return result, nil
}

// ParseRouteResult decodes a route_message reply.
func ParseRouteResult(reply interface{}) (*models.RouteResult, error) {
	top, err := asSlice(reply, "route_message reply")
	if err != nil {
		return nil, err
	}
	if len(top) != 2 {
		return nil, protocolErr("route_message reply has %d elements, want 2", len(top))
	}

	exchangeID, err := asString(top[0], "exchange id")
	if err != nil {
		return nil, err
	}
	result := &models.RouteResult{ExchangeID: exchangeID}

	routedRaw, err := asSlice(top[1], "routed list")
	if err != nil {
		return nil, err
	}
	for _, item := range routedRaw {
		pair, err := asSlice(item, "routing destination")
		if err != nil {
			return nil, err
		}
		if len(pair) != 2 {
			return nil, protocolErr("routing destination has %d elements, want 2", len(pair))
		}
		dest, err := asString(pair[0], "destination stream")
		if err != nil {
			return nil, err
		}
		id, err := asString(pair[1], "destination id")
		if err != nil {
			return nil, err
		}
		result.RoutedTo = append(result.RoutedTo, models.Destination{Stream: dest, ID: id})
	}

	return result, nil
}

// ParseEntryID decodes the single-id reply of request and response.
func ParseEntryID(reply interface{}) (string, error) {
	return asString(reply, "entry id reply")
}

// ParseMaterialized decodes a schedule_poll reply.
func ParseMaterialized(reply interface{}) ([]Materialized, error) {
	top, err := asSlice(reply, "schedule_poll reply")
	if err != nil {
		return nil, err
	}

	var out []Materialized
	for _, item := range top {
		tuple, err := asSlice(item, "materialized item")
		if err != nil {
			return nil, err
		}
		if len(tuple) != 3 {
			return nil, protocolErr("materialized item has %d elements, want 3", len(tuple))
		}
		member, err := asString(tuple[0], "materialized member")
		if err != nil {
			return nil, err
		}
		reminderID, err := asString(tuple[1], "materialized reminder id")
		if err != nil {
			return nil, err
		}
		fields, err := asFieldMap(tuple[2])
		if err != nil {
			return nil, err
		}
		out = append(out, Materialized{Member: member, ReminderID: reminderID, Fields: fields})
	}
	return out, nil
}

// ---- reply decoding primitives ----

func protocolErr(format string, args ...any) error {
	return relayerr.New(relayerr.KindProtocol, fmt.Sprintf(format, args...))
}

func asSlice(v interface{}, what string) ([]interface{}, error) {
	s, ok := v.([]interface{})
	if !ok {
		return nil, protocolErr("%s: unexpected type %T", what, v)
	}
	return s, nil
}

func asString(v interface{}, what string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", protocolErr("%s: unexpected type %T", what, v)
	}
	return s, nil
}

func asInt(v interface{}, what string) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		var parsed int64
		if _, err := fmt.Sscan(n, &parsed); err != nil {
			return 0, protocolErr("%s: non-numeric string %q", what, n)
		}
		return parsed, nil
	default:
		return 0, protocolErr("%s: unexpected type %T", what, v)
	}
}

// asFieldMap decodes a flat [k1, v1, k2, v2, ...] field array.
func asFieldMap(v interface{}) (map[string]string, error) {
	flat, err := asSlice(v, "field array")
	if err != nil {
		return nil, err
	}
	if len(flat)%2 != 0 {
		return nil, protocolErr("field array has odd length %d", len(flat))
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, err := asString(flat[i], "field name")
		if err != nil {
			return nil, err
		}
		val, err := asString(flat[i+1], "field value")
		if err != nil {
			return nil, err
		}
		fields[k] = val
	}
	return fields, nil
}
