package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// fanOutProduceHandler handles POST /api/fan-out/produce?processingType=OK|Error.
func (s *Server) fanOutProduceHandler(c *echo.Context) error {
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

	id, err := s.deps.FanOut.Produce(c.Request().Context(), processingType, payload)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, &ProduceResponse{Success: true, ID: id, Stream: s.deps.Config.FanOut.Stream})
}

// fanOutStatusHandler handles GET /api/fan-out/status.
func (s *Server) fanOutStatusHandler(c *echo.Context) error {
	status, err := s.deps.FanOut.Status(c.Request().Context())
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// fanOutClearHandler handles DELETE /api/fan-out/clear.
func (s *Server) fanOutClearHandler(c *echo.Context) error {
	if err := s.deps.FanOut.Clear(c.Request().Context()); err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Success: true, Message: "fan-out streams cleared"})
}
