package api

import (
	"github.com/streamworks/relay/pkg/models"
	"github.com/streamworks/relay/pkg/store"
	"github.com/streamworks/relay/pkg/workqueue"
)

// ClaimResponse is returned by POST /api/dlq/claim.
type ClaimResponse struct {
	Success      bool                `json:"success"`
	ReadyEntries []models.Message    `json:"readyEntries"`
	DLQRoutings  []models.DLQRouting `json:"dlqRoutings"`
}

// ProduceResponse is returned by produce-style endpoints.
type ProduceResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
	Stream  string `json:"stream"`
}

// MessagesResponse is returned by GET /api/dlq/messages.
type MessagesResponse struct {
	Success  bool           `json:"success"`
	Stream   string         `json:"stream"`
	Messages []models.Entry `json:"messages"`
}

// PendingResponse is returned by GET /api/dlq/pending-messages.
type PendingResponse struct {
	Success bool                 `json:"success"`
	Stream  string               `json:"stream"`
	Group   string               `json:"group"`
	Pending []models.PendingInfo `json:"pending"`
}

// NextMessageResponse is returned by GET /api/dlq/next-message.
// ID is null when the PEL is empty.
type NextMessageResponse struct {
	Success bool    `json:"success"`
	ID      *string `json:"id"`
}

// DLQConfigResponse is returned by GET/POST /api/dlq/config.
type DLQConfigResponse struct {
	Success       bool   `json:"success"`
	StreamName    string `json:"streamName"`
	GroupName     string `json:"groupName"`
	MinIdleMs     int64  `json:"minIdleMs"`
	MaxDeliveries int64  `json:"maxDeliveries"`
	Count         int64  `json:"count"`
}

// OKResponse is the generic success acknowledgement.
type OKResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// RouteResponse is returned by POST /api/topic-routing/route.
type RouteResponse struct {
	Success    bool                 `json:"success"`
	ExchangeID string               `json:"exchangeId"`
	RoutedTo   []models.Destination `json:"routedTo"`
}

// RoutingKeysResponse is returned by GET /api/topic-routing/routing-keys.
type RoutingKeysResponse struct {
	Success     bool     `json:"success"`
	RoutingKeys []string `json:"routingKeys"`
}

// RulesResponse is returned by GET /api/routing-rules/:exchange/rules.
type RulesResponse struct {
	Success  bool                 `json:"success"`
	Exchange string               `json:"exchange"`
	Rules    []models.RoutingRule `json:"rules"`
}

// RuleResponse is returned by single-rule operations.
type RuleResponse struct {
	Success bool               `json:"success"`
	Rule    models.RoutingRule `json:"rule"`
}

// MetadataResponse is returned by the metadata endpoints.
type MetadataResponse struct {
	Success  bool               `json:"success"`
	Exchange string             `json:"exchange"`
	Metadata models.RuleSetMeta `json:"metadata"`
}

// PublishResponse is returned by the pub/sub publish endpoints.
type PublishResponse struct {
	Success     bool   `json:"success"`
	Channel     string `json:"channel"`
	Subscribers int64  `json:"subscribers"`
}

// ScheduledResponse is returned by single scheduled-message operations.
type ScheduledResponse struct {
	Success bool                    `json:"success"`
	Message models.ScheduledMessage `json:"message"`
}

// ScheduledListResponse is returned by GET /api/scheduled-messages.
type ScheduledListResponse struct {
	Success  bool                      `json:"success"`
	Messages []models.ScheduledMessage `json:"messages"`
}

// SendResponse is returned by POST /api/request-reply/send.
type SendResponse struct {
	Success        bool   `json:"success"`
	CorrelationID  string `json:"correlationId"`
	BusinessID     string `json:"businessId"`
	RequestID      string `json:"requestId"`
	ResponseStream string `json:"responseStream"`
	TimeoutSec     int64  `json:"timeoutSec"`
}

// RespondResponse is returned by POST /api/request-reply/respond.
type RespondResponse struct {
	Success    bool   `json:"success"`
	ResponseID string `json:"responseId"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status      string              `json:"status"`
	Version     string              `json:"version"`
	Store       *store.HealthStatus `json:"store,omitempty"`
	WorkQueue   *workqueue.Status   `json:"workQueue,omitempty"`
	Connections int                 `json:"wsConnections"`
}
