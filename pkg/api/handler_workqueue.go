package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// workQueueProduceHandler handles POST /api/work-queue/produce?processingType=OK|Error.
func (s *Server) workQueueProduceHandler(c *echo.Context) error {
	processingType := c.QueryParam("processingType")
	if processingType == "" {
		processingType = "OK"
	}

	var req PatternProduceRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	payload := req.Payload
	if payload == nil {
		payload = map[string]string{}
	}

	id, err := s.deps.WorkQueue.Produce(c.Request().Context(), processingType, payload)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, &ProduceResponse{Success: true, ID: id, Stream: s.deps.Config.WorkQueue.Stream})
}

// workQueueStatusHandler handles GET /api/work-queue/status.
func (s *Server) workQueueStatusHandler(c *echo.Context) error {
	status, err := s.deps.WorkQueue.Status(c.Request().Context())
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// workQueueClearHandler handles DELETE /api/work-queue/clear: deletes all
// pattern-scoped streams and recreates the shared group at the origin.
func (s *Server) workQueueClearHandler(c *echo.Context) error {
	if err := s.deps.WorkQueue.Clear(c.Request().Context()); err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Success: true, Message: "work queue cleared"})
}
