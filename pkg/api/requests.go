package api

// ClaimRequest is the HTTP request body for POST /api/dlq/claim.
type ClaimRequest struct {
	StreamName    string `json:"streamName"`
	DLQStreamName string `json:"dlqStreamName,omitempty"`
	ConsumerGroup string `json:"consumerGroup"`
	ConsumerName  string `json:"consumerName"`
	MinIdleMs     int64  `json:"minIdleMs"`
	Count         int64  `json:"count"`
	MaxDeliveries int64  `json:"maxDeliveries"`
}

// InitRequest is the HTTP request body for POST /api/dlq/init.
type InitRequest struct {
	StreamName string `json:"streamName"`
	GroupName  string `json:"groupName"`
}

// ProduceRequest is the HTTP request body for POST /api/dlq/produce.
type ProduceRequest struct {
	StreamName string            `json:"streamName"`
	Payload    map[string]string `json:"payload"`
}

// ProcessRequest is the HTTP request body for POST /api/dlq/process.
type ProcessRequest struct {
	StreamName    string `json:"streamName,omitempty"`
	ShouldSucceed bool   `json:"shouldSucceed"`
}

// DLQConfigRequest is the HTTP request body for POST /api/dlq/config.
type DLQConfigRequest struct {
	StreamName    string `json:"streamName"`
	GroupName     string `json:"groupName,omitempty"`
	MinIdleMs     int64  `json:"minIdleMs"`
	MaxDeliveries int64  `json:"maxDeliveries"`
	Count         int64  `json:"count"`
}

// PatternProduceRequest is the body for work-queue and fan-out produce.
// processingType is not read from the body; it comes only from the query
// parameter of the same name.
type PatternProduceRequest struct {
	Payload map[string]string `json:"payload,omitempty"`
}

// RouteRequest is the HTTP request body for POST /api/topic-routing/route.
type RouteRequest struct {
	Payload map[string]interface{} `json:"payload"`
}

// RuleRequest is the body for routing-rule create/update.
type RuleRequest struct {
	ID          string `json:"id"`
	Pattern     string `json:"pattern"`
	Destination string `json:"destination"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	Enabled     bool   `json:"enabled"`
	StopOnMatch bool   `json:"stopOnMatch"`
}

// MetadataRequest is the body for PUT /api/routing-rules/:exchange/metadata.
type MetadataRequest struct {
	MaxRules    int    `json:"maxRules"`
	Description string `json:"description,omitempty"`
}

// SubmitPaymentRequest is the body for POST /api/content-routing/submit.
type SubmitPaymentRequest struct {
	PaymentID string  `json:"paymentId,omitempty"`
	Amount    float64 `json:"amount"`
	Country   string  `json:"country"`
	Method    string  `json:"method"`
}

// SendRequest is the body for POST /api/request-reply/send.
type SendRequest struct {
	BusinessID string                 `json:"businessId,omitempty"`
	TimeoutSec int64                  `json:"timeoutSec,omitempty"`
	Payload    map[string]interface{} `json:"payload"`
}

// RespondRequest is the body for POST /api/request-reply/respond.
type RespondRequest struct {
	CorrelationID string                 `json:"correlationId"`
	BusinessID    string                 `json:"businessId,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
}

// ScheduleRequest is the body for scheduled-message create/update.
type ScheduleRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	ScheduledFor int64  `json:"scheduledFor"`
}

// PublishRequest is the body for POST /api/pubsub/publish.
type PublishRequest struct {
	Channel string `json:"channel"`
	Payload string `json:"payload"`
}

// PublishRoutedRequest is the body for POST /api/pubsub-topic-routing/publish.
type PublishRoutedRequest struct {
	RoutingKey string `json:"routingKey"`
	Payload    string `json:"payload"`
}
