package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/streamworks/relay/pkg/reqreply"
)

// requestReplySendHandler handles POST /api/request-reply/send.
func (s *Server) requestReplySendHandler(c *echo.Context) error {
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	result, err := s.deps.RequestReply.Send(c.Request().Context(), reqreply.SendInput{
		BusinessID: req.BusinessID,
		TimeoutSec: req.TimeoutSec,
		Payload:    req.Payload,
	})
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, &SendResponse{
		Success:        true,
		CorrelationID:  result.CorrelationID,
		BusinessID:     result.BusinessID,
		RequestID:      result.RequestID,
		ResponseStream: result.ResponseStream,
		TimeoutSec:     result.TimeoutSec,
	})
}

// requestReplyRespondHandler handles POST /api/request-reply/respond.
func (s *Server) requestReplyRespondHandler(c *echo.Context) error {
	var req RespondRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	responseID, err := s.deps.RequestReply.Respond(c.Request().Context(),
		req.CorrelationID, req.BusinessID, req.Payload)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, &RespondResponse{Success: true, ResponseID: responseID})
}
