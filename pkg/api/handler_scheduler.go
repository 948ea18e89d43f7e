package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/streamworks/relay/pkg/models"
	"github.com/streamworks/relay/pkg/scheduler"
)

// listScheduledHandler handles GET /api/scheduled-messages.
func (s *Server) listScheduledHandler(c *echo.Context) error {
	messages, err := s.deps.Scheduler.List(c.Request().Context())
	if err != nil {
		return mapEngineError(c, err)
	}
	if messages == nil {
		messages = []models.ScheduledMessage{}
	}
	return c.JSON(http.StatusOK, &ScheduledListResponse{Success: true, Messages: messages})
}

// createScheduledHandler handles POST /api/scheduled-messages.
func (s *Server) createScheduledHandler(c *echo.Context) error {
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	msg, err := s.deps.Scheduler.Schedule(c.Request().Context(), scheduler.ScheduleInput{
		Title:        req.Title,
		Description:  req.Description,
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, &ScheduledResponse{Success: true, Message: *msg})
}

// getScheduledHandler handles GET /api/scheduled-messages/:id.
func (s *Server) getScheduledHandler(c *echo.Context) error {
	msg, err := s.deps.Scheduler.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &ScheduledResponse{Success: true, Message: *msg})
}

// updateScheduledHandler handles PUT /api/scheduled-messages/:id.
func (s *Server) updateScheduledHandler(c *echo.Context) error {
	var req ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	msg, err := s.deps.Scheduler.Update(c.Request().Context(), c.Param("id"), scheduler.ScheduleInput{
		Title:        req.Title,
		Description:  req.Description,
		ScheduledFor: req.ScheduledFor,
	})
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &ScheduledResponse{Success: true, Message: *msg})
}

// deleteScheduledHandler handles DELETE /api/scheduled-messages/:id.
func (s *Server) deleteScheduledHandler(c *echo.Context) error {
	existed, err := s.deps.Scheduler.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapEngineError(c, err)
	}
	if !existed {
		return fail(c, http.StatusNotFound, "scheduled message not found")
	}
	return c.JSON(http.StatusOK, &OKResponse{Success: true, Message: "scheduled message deleted"})
}

// clearScheduledHandler handles DELETE /api/scheduled-messages/clear.
func (s *Server) clearScheduledHandler(c *echo.Context) error {
	if err := s.deps.Scheduler.Clear(c.Request().Context()); err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Success: true, Message: "scheduled messages cleared"})
}
