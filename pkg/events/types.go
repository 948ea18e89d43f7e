// Package events provides the in-process event bus and the WebSocket
// connection manager that delivers bus events to connected clients.
//
// Engines publish; the bus fans out to per-sink bounded buffers; slow
// sinks lose oldest events rather than blocking producers.
package events

import (
	"strconv"
	"time"
)

// Event types delivered over the bus and the WebSocket channel.
const (
	EventTypeMessageProduced  = "MESSAGE_PRODUCED"
	EventTypeMessageDeleted   = "MESSAGE_DELETED"
	EventTypeMessageProcessed = "MESSAGE_PROCESSED"
	EventTypeMessageReclaimed = "MESSAGE_RECLAIMED"
	EventTypeMessageToDLQ     = "MESSAGE_TO_DLQ"
	EventTypeInfo             = "INFO"
	EventTypeError            = "ERROR"
)

// Event is the JSON value object broadcast to all subscribed sinks.
type Event struct {
	EventType  string            `json:"eventType"`
	MessageID  string            `json:"messageId,omitempty"`
	Payload    map[string]string `json:"payload,omitempty"`
	StreamName string            `json:"streamName,omitempty"`
	Consumer   string            `json:"consumer,omitempty"`
	Details    string            `json:"details,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

// now returns the event timestamp in ISO-8601.
func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// NewEvent creates an event of the given type with the timestamp set.
func NewEvent(eventType string) Event {
	return Event{EventType: eventType, Timestamp: now()}
}

// Produced builds a MESSAGE_PRODUCED event for a stream entry.
func Produced(stream, id string, fields map[string]string) Event {
	e := NewEvent(EventTypeMessageProduced)
	e.StreamName = stream
	e.MessageID = id
	e.Payload = fields
	return e
}

// Deleted builds a MESSAGE_DELETED event for an acked entry.
func Deleted(stream, group, id string) Event {
	e := NewEvent(EventTypeMessageDeleted)
	e.StreamName = stream
	e.MessageID = id
	e.Details = "acknowledged in group " + group
	return e
}

// Processed builds a MESSAGE_PROCESSED event.
func Processed(stream, consumer, id string) Event {
	e := NewEvent(EventTypeMessageProcessed)
	e.StreamName = stream
	e.Consumer = consumer
	e.MessageID = id
	return e
}

// Reclaimed builds a MESSAGE_RECLAIMED event for a retried delivery.
func Reclaimed(stream, consumer, id string, deliveryCount int64) Event {
	e := NewEvent(EventTypeMessageReclaimed)
	e.StreamName = stream
	e.Consumer = consumer
	e.MessageID = id
	e.Details = "delivery count " + strconv.FormatInt(deliveryCount, 10)
	return e
}

// ToDLQ builds a MESSAGE_TO_DLQ event for a dead-lettered entry.
func ToDLQ(stream, dlqStream, origID, newID string) Event {
	e := NewEvent(EventTypeMessageToDLQ)
	e.StreamName = stream
	e.MessageID = origID
	e.Details = "moved to " + dlqStream + " as " + newID
	return e
}

// Info builds an INFO event.
func Info(details string) Event {
	e := NewEvent(EventTypeInfo)
	e.Details = details
	return e
}

// Error builds an ERROR event.
func Error(details string) Event {
	e := NewEvent(EventTypeError)
	e.Details = details
	return e
}
