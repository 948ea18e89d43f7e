// Package api provides the HTTP and WebSocket surface for relay.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/contentrouter"
	"github.com/streamworks/relay/pkg/dlq"
	"github.com/streamworks/relay/pkg/events"
	"github.com/streamworks/relay/pkg/fanout"
	"github.com/streamworks/relay/pkg/metrics"
	"github.com/streamworks/relay/pkg/monitor"
	"github.com/streamworks/relay/pkg/pubsub"
	"github.com/streamworks/relay/pkg/reqreply"
	"github.com/streamworks/relay/pkg/routing"
	"github.com/streamworks/relay/pkg/scheduler"
	"github.com/streamworks/relay/pkg/store"
	"github.com/streamworks/relay/pkg/version"
	"github.com/streamworks/relay/pkg/workqueue"
)

// Deps bundles everything the server serves. All fields are required
// unless noted; ValidateWiring catches gaps at startup.
type Deps struct {
	Config        *config.Config
	Store         *store.Client
	Metrics       *metrics.Metrics
	ConnManager   *events.ConnectionManager
	DLQRegistry   *config.DLQRegistry
	DLQ           *dlq.Engine
	WorkQueue     *workqueue.Engine
	FanOut        *fanout.Engine
	Routing       *routing.Engine
	ContentRouter *contentrouter.Engine
	RequestReply  *reqreply.Engine
	Scheduler     *scheduler.Engine
	PubSub        *pubsub.Engine
	Monitor       *monitor.Monitor // optional: nil disables dynamic stream registration
}

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	deps       Deps
	ready      atomic.Bool
}

// NewServer creates the API server and registers all routes.
func NewServer(deps Deps) *Server {
	e := echo.New()

	s := &Server{
		echo: e,
		deps: deps,
	}
	s.setupRoutes()
	return s
}

// ValidateWiring checks that all required dependencies were provided.
// Returns an error listing every gap so wiring mistakes surface at
// startup rather than as 500s at request time.
func (s *Server) ValidateWiring() error {
	var errs []error
	check := func(ok bool, name string) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s not set", name))
		}
	}
	check(s.deps.Config != nil, "Config")
	check(s.deps.Store != nil, "Store")
	check(s.deps.Metrics != nil, "Metrics")
	check(s.deps.ConnManager != nil, "ConnManager")
	check(s.deps.DLQRegistry != nil, "DLQRegistry")
	check(s.deps.DLQ != nil, "DLQ engine")
	check(s.deps.WorkQueue != nil, "WorkQueue engine")
	check(s.deps.FanOut != nil, "FanOut engine")
	check(s.deps.Routing != nil, "Routing engine")
	check(s.deps.ContentRouter != nil, "ContentRouter engine")
	check(s.deps.RequestReply != nil, "RequestReply engine")
	check(s.deps.Scheduler != nil, "Scheduler engine")
	check(s.deps.PubSub != nil, "PubSub engine")
	if len(errs) > 0 {
		return fmt.Errorf("server wiring incomplete: %w", errors.Join(errs...))
	}
	return nil
}

// SetReady flips the readiness gate once bootstrap has finished.
func (s *Server) SetReady() {
	s.ready.Store(true)
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(s.bodyLimit()))
	s.echo.Use(securityHeaders())

	// Observability endpoints stay outside the readiness gate.
	s.echo.GET("/health", s.healthHandler)
	if s.deps.Metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.deps.Metrics.Handler()))
	}

	// WebSocket event channel.
	s.echo.GET("/ws/dlq-events", s.wsHandler)

	api := s.echo.Group("/api")
	api.Use(s.readinessGate())

	// Dead-letter pattern.
	api.POST("/dlq/claim", s.dlqClaimHandler)
	api.POST("/dlq/init", s.dlqInitHandler)
	api.POST("/dlq/produce", s.dlqProduceHandler)
	api.GET("/dlq/messages", s.dlqMessagesHandler)
	api.GET("/dlq/pending-messages", s.dlqPendingHandler)
	api.GET("/dlq/next-message", s.dlqNextMessageHandler)
	api.POST("/dlq/process", s.dlqProcessHandler)
	api.GET("/dlq/config", s.dlqGetConfigHandler)
	api.POST("/dlq/config", s.dlqSetConfigHandler)
	api.DELETE("/dlq/cleanup", s.dlqCleanupHandler)
	api.DELETE("/dlq/stream/:name", s.dlqDeleteStreamHandler)

	// Work queue.
	api.POST("/work-queue/produce", s.workQueueProduceHandler)
	api.GET("/work-queue/status", s.workQueueStatusHandler)
	api.DELETE("/work-queue/clear", s.workQueueClearHandler)

	// Fan out.
	api.POST("/fan-out/produce", s.fanOutProduceHandler)
	api.GET("/fan-out/status", s.fanOutStatusHandler)
	api.DELETE("/fan-out/clear", s.fanOutClearHandler)

	// Topic routing.
	api.POST("/topic-routing/route", s.topicRouteHandler)
	api.GET("/topic-routing/routing-keys", s.topicRoutingKeysHandler)
	api.DELETE("/topic-routing/clear", s.topicClearHandler)

	// Routing rules CRUD.
	api.GET("/routing-rules/:exchange/rules", s.listRulesHandler)
	api.POST("/routing-rules/:exchange/rules", s.createRuleHandler)
	api.GET("/routing-rules/:exchange/rules/:id", s.getRuleHandler)
	api.PUT("/routing-rules/:exchange/rules/:id", s.updateRuleHandler)
	api.DELETE("/routing-rules/:exchange/rules/:id", s.deleteRuleHandler)
	api.GET("/routing-rules/:exchange/metadata", s.getMetadataHandler)
	api.PUT("/routing-rules/:exchange/metadata", s.updateMetadataHandler)
	api.POST("/routing-rules/:exchange/reset", s.resetRulesHandler)

	// Content-based routing.
	api.POST("/content-routing/submit", s.contentSubmitHandler)
	api.GET("/content-routing/rules", s.contentRulesHandler)
	api.DELETE("/content-routing/clear", s.contentClearHandler)

	// Request/reply.
	api.POST("/request-reply/send", s.requestReplySendHandler)
	api.POST("/request-reply/respond", s.requestReplyRespondHandler)

	// Scheduled messages. The static /clear route is registered before the
	// :id param route so it wins resolution.
	api.GET("/scheduled-messages", s.listScheduledHandler)
	api.POST("/scheduled-messages", s.createScheduledHandler)
	api.DELETE("/scheduled-messages/clear", s.clearScheduledHandler)
	api.GET("/scheduled-messages/:id", s.getScheduledHandler)
	api.PUT("/scheduled-messages/:id", s.updateScheduledHandler)
	api.DELETE("/scheduled-messages/:id", s.deleteScheduledHandler)

	// Pub/sub.
	api.POST("/pubsub/publish", s.pubsubPublishHandler)
	api.POST("/pubsub-topic-routing/publish", s.pubsubRoutedPublishHandler)
}

func (s *Server) bodyLimit() int64 {
	if s.deps.Config != nil && s.deps.Config.Server.BodyLimitBytes > 0 {
		return int64(s.deps.Config.Server.BodyLimitBytes)
	}
	return 1 << 20
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.echo,
	}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	response := &HealthResponse{
		Status:  "healthy",
		Version: version.Full(),
	}
	if s.deps.ConnManager != nil {
		response.Connections = s.deps.ConnManager.ActiveConnections()
	}

	storeHealth, err := s.deps.Store.Health(reqCtx)
	response.Store = storeHealth
	if err != nil {
		response.Status = "unhealthy"
		return c.JSON(http.StatusServiceUnavailable, response)
	}

	if wq, err := s.deps.WorkQueue.Status(reqCtx); err == nil {
		response.WorkQueue = wq
	}
	if !s.ready.Load() {
		response.Status = "starting"
		return c.JSON(http.StatusServiceUnavailable, response)
	}
	return c.JSON(http.StatusOK, response)
}
