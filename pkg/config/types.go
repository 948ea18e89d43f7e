package config

import "time"

// Config is the fully-merged runtime configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	DLQ          DLQConfig          `yaml:"dlq"`
	WorkQueue    WorkQueueConfig    `yaml:"work_queue"`
	FanOut       FanOutConfig       `yaml:"fan_out"`
	Routing      RoutingConfig      `yaml:"routing"`
	ContentRules ContentRulesConfig `yaml:"content_routing"`
	RequestReply RequestReplyConfig `yaml:"request_reply"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	PubSub       PubSubConfig       `yaml:"pubsub"`
}

// ServerConfig holds HTTP and WebSocket settings.
type ServerConfig struct {
	// HTTPPort is the listen port. Overridden by HTTP_PORT.
	HTTPPort string `yaml:"http_port"`

	// BodyLimitBytes caps request body size at the HTTP read level.
	BodyLimitBytes int `yaml:"body_limit_bytes"`

	// WSWriteTimeout bounds a single WebSocket frame write.
	WSWriteTimeout time.Duration `yaml:"ws_write_timeout"`

	// SinkBuffer is the per-WebSocket-sink event buffer size. When a sink
	// falls behind by more than this, oldest events are dropped.
	SinkBuffer int `yaml:"sink_buffer"`
}

// DLQConfig is the default per-stream dead-letter configuration. Individual
// streams may override it at runtime via the config registry.
type DLQConfig struct {
	Stream        string        `yaml:"stream"`
	Group         string        `yaml:"group"`
	MinIdle       time.Duration `yaml:"min_idle"`
	MaxDeliveries int64         `yaml:"max_deliveries"`
	BatchSize     int64         `yaml:"batch_size"`
}

// WorkQueueConfig drives the competing-consumers engine.
type WorkQueueConfig struct {
	Stream        string        `yaml:"stream"`
	Group         string        `yaml:"group"`
	Workers       int           `yaml:"workers"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MinIdle       time.Duration `yaml:"min_idle"`
	MaxDeliveries int64         `yaml:"max_deliveries"`
	BatchSize     int64         `yaml:"batch_size"`
}

// FanOutConfig drives the durable-broadcast engine. Each worker owns its
// own consumer group on the shared input stream.
type FanOutConfig struct {
	Stream        string        `yaml:"stream"`
	Workers       int           `yaml:"workers"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	MinIdle       time.Duration `yaml:"min_idle"`
	MaxDeliveries int64         `yaml:"max_deliveries"`
	BatchSize     int64         `yaml:"batch_size"`
}

// RoutingConfig bounds the topic-routing rule store.
type RoutingConfig struct {
	Exchange string `yaml:"exchange"`
	MaxRules int    `yaml:"max_rules"`
}

// ContentRulesConfig holds the amount thresholds for content-based routing.
// Ranges are half-open: [0, StandardMax) → standard, [StandardMax,
// ManualReviewMin) → high-risk, [ManualReviewMin, ∞) → manual review,
// negative → DLQ.
type ContentRulesConfig struct {
	Prefix          string  `yaml:"prefix"`
	StandardMax     float64 `yaml:"standard_max"`
	ManualReviewMin float64 `yaml:"manual_review_min"`
}

// RequestReplyConfig holds correlation-timeout defaults.
type RequestReplyConfig struct {
	RequestStream  string        `yaml:"request_stream"`
	ResponseStream string        `yaml:"response_stream"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// SchedulerConfig drives the delayed-message poller.
type SchedulerConfig struct {
	PollInterval   time.Duration `yaml:"poll_interval"`
	BatchSize      int64         `yaml:"batch_size"`
	ReminderStream string        `yaml:"reminder_stream"`
}

// MonitorConfig lists the streams whose activity is mirrored onto the
// event bus, plus the polling cadence.
type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	BatchSize    int64         `yaml:"batch_size"`
	Streams      []string      `yaml:"streams"`
}

// PubSubConfig lists the channel patterns the pattern-subscription bridge
// listens on. Matching messages are mirrored onto the event bus.
type PubSubConfig struct {
	Patterns []string `yaml:"patterns"`
}

// Defaults returns the built-in configuration used when relay.yaml is
// absent or partial. Values mirror the pattern defaults of the system
// description: 4 workers, 100 ms work-queue cadence, 500 ms pollers.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       "8080",
			BodyLimitBytes: 1 << 20,
			WSWriteTimeout: 5 * time.Second,
			SinkBuffer:     256,
		},
		DLQ: DLQConfig{
			Stream:        "dlq.demo.v1",
			Group:         "dlq-group",
			MinIdle:       100 * time.Millisecond,
			MaxDeliveries: 3,
			BatchSize:     10,
		},
		WorkQueue: WorkQueueConfig{
			Stream:        "work.queue.v1",
			Group:         "work-queue-group",
			Workers:       4,
			PollInterval:  100 * time.Millisecond,
			MinIdle:       100 * time.Millisecond,
			MaxDeliveries: 3,
			BatchSize:     10,
		},
		FanOut: FanOutConfig{
			Stream:        "fan.out.v1",
			Workers:       4,
			PollInterval:  100 * time.Millisecond,
			MinIdle:       100 * time.Millisecond,
			MaxDeliveries: 3,
			BatchSize:     10,
		},
		Routing: RoutingConfig{
			Exchange: "events.topic.v1",
			MaxRules: 50,
		},
		ContentRules: ContentRulesConfig{
			Prefix:          "payments",
			StandardMax:     100,
			ManualReviewMin: 10000,
		},
		RequestReply: RequestReplyConfig{
			RequestStream:  "req.requests.v1",
			ResponseStream: "req.responses.v1",
			DefaultTimeout: 5 * time.Second,
		},
		Scheduler: SchedulerConfig{
			PollInterval:   500 * time.Millisecond,
			BatchSize:      10,
			ReminderStream: "reminders.v1",
		},
		Monitor: MonitorConfig{
			PollInterval: 500 * time.Millisecond,
			BatchSize:    50,
			Streams: []string{
				"dlq.demo.v1",
				"dlq.demo.v1:dlq",
				"work.queue.v1",
				"fan.out.v1",
				"events.topic.v1",
				"reminders.v1",
				"req.requests.v1",
				"req.responses.v1",
			},
		},
		PubSub: PubSubConfig{
			Patterns: []string{"events.*"},
		},
	}
}
