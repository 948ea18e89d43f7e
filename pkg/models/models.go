// Package models holds the value objects shared between the store adapter,
// the pattern engines, and the API layer.
package models

import (
	"encoding/json"
	"time"
)

// Entry is a single stream record as stored: a server-assigned id in
// "ms-seq" format plus an ordered field map.
type Entry struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// Message is an Entry enriched with consumer-group delivery context.
// Returned by the DLQ engine's read path.
type Message struct {
	ID            string            `json:"id"`
	Fields        map[string]string `json:"fields"`
	DeliveryCount int64             `json:"deliveryCount"`
	IsRetry       bool              `json:"isRetry"`
	Stream        string            `json:"stream"`
	Group         string            `json:"group"`
	Consumer      string            `json:"consumer"`
}

// DLQRouting records one entry moved from a main stream to its dead-letter
// stream: the original id and the id it received on the DLQ stream.
type DLQRouting struct {
	OrigID   string `json:"origId"`
	NewDLQID string `json:"newDlqId"`
}

// PendingInfo is one row of a consumer group's pending-entries list.
type PendingInfo struct {
	ID            string        `json:"id"`
	Consumer      string        `json:"consumer"`
	Idle          time.Duration `json:"idleMillis"`
	DeliveryCount int64         `json:"deliveryCount"`
}

// MarshalJSON renders Idle as whole milliseconds under idleMillis.
func (p PendingInfo) MarshalJSON() ([]byte, error) {
	type plain PendingInfo
	return json.Marshal(struct {
		plain
		Idle int64 `json:"idleMillis"`
	}{plain(p), p.Idle.Milliseconds()})
}

// RoutingRule selects a destination stream for routing keys matching its
// pattern. Rules are keyed by ID within an exchange and evaluated in
// (Priority asc, ID asc) order; a matching rule with StopOnMatch halts
// evaluation.
type RoutingRule struct {
	ID          string `json:"id"`
	Pattern     string `json:"pattern"`
	Destination string `json:"destination"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	Enabled     bool   `json:"enabled"`
	StopOnMatch bool   `json:"stopOnMatch"`
}

// RuleSetMeta is the per-exchange rule-set metadata hash.
type RuleSetMeta struct {
	MaxRules    int    `json:"maxRules"`
	Version     int64  `json:"version"`
	UpdatedAt   string `json:"updatedAt"`
	Description string `json:"description,omitempty"`
}

// RouteResult is the outcome of one atomic route_message invocation.
type RouteResult struct {
	ExchangeID string        `json:"exchangeId"`
	RoutedTo   []Destination `json:"routedTo"`
}

// Destination is one (stream, appended id) pair produced by routing.
type Destination struct {
	Stream string `json:"stream"`
	ID     string `json:"id"`
}

// ScheduledMessage is a delayed message awaiting materialization.
type ScheduledMessage struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	ScheduledFor int64  `json:"scheduledFor"` // epoch millis
	CreatedAt    int64  `json:"createdAt"`    // epoch millis
}
