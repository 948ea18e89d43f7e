package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/streamworks/relay/pkg/config"
	"github.com/streamworks/relay/pkg/dlq"
	"github.com/streamworks/relay/pkg/models"
)

// apiConsumer is the consumer name used when the HTTP caller consumes
// directly (POST /api/dlq/process).
const apiConsumer = "api-consumer"

// defaultRangeCount caps range reads when the caller omits count.
const defaultRangeCount = 50

// dlqClaimHandler handles POST /api/dlq/claim: one read_claim_or_dlq run.
func (s *Server) dlqClaimHandler(c *echo.Context) error {
	var req ClaimRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	cfg := dlq.Config{
		Stream:        req.StreamName,
		DLQStream:     req.DLQStreamName,
		Group:         req.ConsumerGroup,
		Consumer:      req.ConsumerName,
		MinIdle:       time.Duration(req.MinIdleMs) * time.Millisecond,
		MaxDeliveries: req.MaxDeliveries,
		BatchSize:     req.Count,
	}
	messages, routings, err := s.deps.DLQ.GetNextMessages(c.Request().Context(), cfg)
	if err != nil {
		return mapEngineError(c, err)
	}

	return c.JSON(http.StatusOK, &ClaimResponse{
		Success:      true,
		ReadyEntries: emptyIfNilMessages(messages),
		DLQRoutings:  emptyIfNilRoutings(routings),
	})
}

// dlqInitHandler handles POST /api/dlq/init: create group if missing.
func (s *Server) dlqInitHandler(c *echo.Context) error {
	var req InitRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if req.StreamName == "" || req.GroupName == "" {
		return fail(c, http.StatusBadRequest, "streamName and groupName are required")
	}

	if err := s.deps.DLQ.EnsureGroup(c.Request().Context(), req.StreamName, req.GroupName); err != nil {
		return mapEngineError(c, err)
	}
	if s.deps.Monitor != nil {
		// Best effort: new pattern streams become visible on the event channel.
		_ = s.deps.Monitor.AddStream(c.Request().Context(), req.StreamName)
	}
	return c.JSON(http.StatusOK, &OKResponse{Success: true, Message: "consumer group ready"})
}

// dlqProduceHandler handles POST /api/dlq/produce.
func (s *Server) dlqProduceHandler(c *echo.Context) error {
	var req ProduceRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if req.StreamName == "" {
		return fail(c, http.StatusBadRequest, "streamName is required")
	}

	id, err := s.deps.DLQ.Produce(c.Request().Context(), req.StreamName, req.Payload)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, &ProduceResponse{Success: true, ID: id, Stream: req.StreamName})
}

// dlqMessagesHandler handles GET /api/dlq/messages?streamName&count.
func (s *Server) dlqMessagesHandler(c *echo.Context) error {
	stream := c.QueryParam("streamName")
	if stream == "" {
		return fail(c, http.StatusBadRequest, "streamName is required")
	}
	count := queryCount(c, defaultRangeCount)

	messages, err := s.deps.Store.RangeLatest(c.Request().Context(), stream, count)
	if err != nil {
		return mapEngineError(c, err)
	}
	if messages == nil {
		messages = []models.Entry{}
	}
	return c.JSON(http.StatusOK, &MessagesResponse{Success: true, Stream: stream, Messages: messages})
}

// dlqPendingHandler handles GET /api/dlq/pending-messages?streamName&groupName&count.
func (s *Server) dlqPendingHandler(c *echo.Context) error {
	stream := c.QueryParam("streamName")
	group := c.QueryParam("groupName")
	if stream == "" || group == "" {
		return fail(c, http.StatusBadRequest, "streamName and groupName are required")
	}
	count := queryCount(c, defaultRangeCount)

	pending, err := s.deps.Store.Pending(c.Request().Context(), stream, group, 0, count)
	if err != nil {
		return mapEngineError(c, err)
	}
	if pending == nil {
		pending = []models.PendingInfo{}
	}
	return c.JSON(http.StatusOK, &PendingResponse{Success: true, Stream: stream, Group: group, Pending: pending})
}

// dlqNextMessageHandler handles GET /api/dlq/next-message?streamName&groupName.
func (s *Server) dlqNextMessageHandler(c *echo.Context) error {
	stream := c.QueryParam("streamName")
	group := c.QueryParam("groupName")
	if stream == "" || group == "" {
		return fail(c, http.StatusBadRequest, "streamName and groupName are required")
	}

	next, err := s.deps.Store.NextPending(c.Request().Context(), stream, group)
	if err != nil {
		return mapEngineError(c, err)
	}
	resp := &NextMessageResponse{Success: true}
	if next != nil {
		resp.ID = &next.ID
	}
	return c.JSON(http.StatusOK, resp)
}

// dlqProcessHandler handles POST /api/dlq/process: consume one message and
// ack it iff shouldSucceed.
func (s *Server) dlqProcessHandler(c *echo.Context) error {
	var req ProcessRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	regCfg := s.deps.DLQRegistry.Get(s.streamOrDefault(req.StreamName))
	cfg := dlq.Config{
		Stream:        regCfg.Stream,
		Group:         regCfg.Group,
		Consumer:      apiConsumer,
		MinIdle:       regCfg.MinIdle,
		MaxDeliveries: regCfg.MaxDeliveries,
		BatchSize:     regCfg.BatchSize,
	}
	outcome, err := s.deps.DLQ.ProcessOne(c.Request().Context(), cfg, req.ShouldSucceed)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, outcome)
}

// dlqGetConfigHandler handles GET /api/dlq/config?streamName.
func (s *Server) dlqGetConfigHandler(c *echo.Context) error {
	cfg := s.deps.DLQRegistry.Get(s.streamOrDefault(c.QueryParam("streamName")))
	return c.JSON(http.StatusOK, toConfigResponse(cfg))
}

// dlqSetConfigHandler handles POST /api/dlq/config.
func (s *Server) dlqSetConfigHandler(c *echo.Context) error {
	var req DLQConfigRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if req.StreamName == "" {
		return fail(c, http.StatusBadRequest, "streamName is required")
	}
	if req.MinIdleMs < 0 || req.MaxDeliveries < 1 || req.Count < 1 {
		return fail(c, http.StatusBadRequest,
			"minIdleMs must be >= 0, maxDeliveries and count must be >= 1")
	}

	current := s.deps.DLQRegistry.Get(req.StreamName)
	group := req.GroupName
	if group == "" {
		group = current.Group
	}
	cfg := config.DLQConfig{
		Stream:        req.StreamName,
		Group:         group,
		MinIdle:       time.Duration(req.MinIdleMs) * time.Millisecond,
		MaxDeliveries: req.MaxDeliveries,
		BatchSize:     req.Count,
	}
	s.deps.DLQRegistry.Set(cfg)
	return c.JSON(http.StatusOK, toConfigResponse(cfg))
}

// dlqCleanupHandler handles DELETE /api/dlq/cleanup: destructive reset of
// the default dead-letter demo stream.
func (s *Server) dlqCleanupHandler(c *echo.Context) error {
	cfg := s.deps.DLQRegistry.Get(s.streamOrDefault(""))
	if err := s.deps.DLQ.Cleanup(c.Request().Context(), cfg.Stream, cfg.Group); err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Success: true, Message: "streams reset"})
}

// dlqDeleteStreamHandler handles DELETE /api/dlq/stream/:name.
func (s *Server) dlqDeleteStreamHandler(c *echo.Context) error {
	name := c.Param("name")
	if name == "" {
		return fail(c, http.StatusBadRequest, "stream name is required")
	}
	if err := s.deps.Store.Delete(c.Request().Context(), name, name+dlq.DLQSuffix); err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Success: true, Message: "stream deleted"})
}

// streamOrDefault falls back to the configured demo stream.
func (s *Server) streamOrDefault(stream string) string {
	if stream != "" {
		return stream
	}
	return s.deps.Config.DLQ.Stream
}

func toConfigResponse(cfg config.DLQConfig) *DLQConfigResponse {
	return &DLQConfigResponse{
		Success:       true,
		StreamName:    cfg.Stream,
		GroupName:     cfg.Group,
		MinIdleMs:     cfg.MinIdle.Milliseconds(),
		MaxDeliveries: cfg.MaxDeliveries,
		Count:         cfg.BatchSize,
	}
}

func queryCount(c *echo.Context, fallback int64) int64 {
	raw := c.QueryParam("count")
	if raw == "" {
		return fallback
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

func emptyIfNilMessages(in []models.Message) []models.Message {
	if in == nil {
		return []models.Message{}
	}
	return in
}

func emptyIfNilRoutings(in []models.DLQRouting) []models.DLQRouting {
	if in == nil {
		return []models.DLQRouting{}
	}
	return in
}
