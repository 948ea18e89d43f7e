package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/streamworks/relay/pkg/models"
	"github.com/streamworks/relay/pkg/routing"
)

// topicRouteHandler handles POST /api/topic-routing/route?routingKey=…
func (s *Server) topicRouteHandler(c *echo.Context) error {
	routingKey := c.QueryParam("routingKey")
	if routingKey == "" {
		return fail(c, http.StatusBadRequest, "routingKey query parameter is required")
	}

	var req RouteRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	result, err := s.deps.Routing.Route(c.Request().Context(), s.deps.Routing.Exchange(), routingKey, req.Payload)
	if err != nil {
		return mapEngineError(c, err)
	}

	routedTo := result.RoutedTo
	if routedTo == nil {
		routedTo = []models.Destination{}
	}
	return c.JSON(http.StatusOK, &RouteResponse{
		Success:    true,
		ExchangeID: result.ExchangeID,
		RoutedTo:   routedTo,
	})
}

// topicRoutingKeysHandler handles GET /api/topic-routing/routing-keys.
func (s *Server) topicRoutingKeysHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, &RoutingKeysResponse{
		Success:     true,
		RoutingKeys: routing.SampleRoutingKeys(),
	})
}

// topicClearHandler handles DELETE /api/topic-routing/clear.
func (s *Server) topicClearHandler(c *echo.Context) error {
	if err := s.deps.Routing.Clear(c.Request().Context(), s.deps.Routing.Exchange()); err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Success: true, Message: "exchange and destination streams cleared"})
}

// listRulesHandler handles GET /api/routing-rules/:exchange/rules.
func (s *Server) listRulesHandler(c *echo.Context) error {
	exchange := c.Param("exchange")
	rules, err := s.deps.Routing.ListRules(c.Request().Context(), exchange)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &RulesResponse{Success: true, Exchange: exchange, Rules: rules})
}

// createRuleHandler handles POST /api/routing-rules/:exchange/rules.
func (s *Server) createRuleHandler(c *echo.Context) error {
	return s.saveRule(c, "")
}

// updateRuleHandler handles PUT /api/routing-rules/:exchange/rules/:id.
func (s *Server) updateRuleHandler(c *echo.Context) error {
	return s.saveRule(c, c.Param("id"))
}

// saveRule stores a rule; a non-empty pathID pins the rule id to the URL.
func (s *Server) saveRule(c *echo.Context, pathID string) error {
	exchange := c.Param("exchange")

	var req RuleRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if pathID != "" {
		req.ID = pathID
	}

	rule := models.RoutingRule{
		ID:          req.ID,
		Pattern:     req.Pattern,
		Destination: req.Destination,
		Description: req.Description,
		Priority:    req.Priority,
		Enabled:     req.Enabled,
		StopOnMatch: req.StopOnMatch,
	}
	if err := s.deps.Routing.UpsertRule(c.Request().Context(), exchange, rule); err != nil {
		return mapEngineError(c, err)
	}

	status := http.StatusOK
	if pathID == "" {
		status = http.StatusCreated
	}
	return c.JSON(status, &RuleResponse{Success: true, Rule: rule})
}

// getRuleHandler handles GET /api/routing-rules/:exchange/rules/:id.
func (s *Server) getRuleHandler(c *echo.Context) error {
	rule, err := s.deps.Routing.GetRule(c.Request().Context(), c.Param("exchange"), c.Param("id"))
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &RuleResponse{Success: true, Rule: *rule})
}

// deleteRuleHandler handles DELETE /api/routing-rules/:exchange/rules/:id.
func (s *Server) deleteRuleHandler(c *echo.Context) error {
	existed, err := s.deps.Routing.DeleteRule(c.Request().Context(), c.Param("exchange"), c.Param("id"))
	if err != nil {
		return mapEngineError(c, err)
	}
	if !existed {
		return fail(c, http.StatusNotFound, "rule not found")
	}
	return c.JSON(http.StatusOK, &OKResponse{Success: true, Message: "rule deleted"})
}

// getMetadataHandler handles GET /api/routing-rules/:exchange/metadata.
func (s *Server) getMetadataHandler(c *echo.Context) error {
	exchange := c.Param("exchange")
	meta, err := s.deps.Routing.Metadata(c.Request().Context(), exchange)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &MetadataResponse{Success: true, Exchange: exchange, Metadata: *meta})
}

// updateMetadataHandler handles PUT /api/routing-rules/:exchange/metadata.
func (s *Server) updateMetadataHandler(c *echo.Context) error {
	exchange := c.Param("exchange")

	var req MetadataRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}
	if err := s.deps.Routing.UpdateMetadata(c.Request().Context(), exchange, models.RuleSetMeta{
		MaxRules:    req.MaxRules,
		Description: req.Description,
	}); err != nil {
		return mapEngineError(c, err)
	}

	meta, err := s.deps.Routing.Metadata(c.Request().Context(), exchange)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &MetadataResponse{Success: true, Exchange: exchange, Metadata: *meta})
}

// resetRulesHandler handles POST /api/routing-rules/:exchange/reset.
func (s *Server) resetRulesHandler(c *echo.Context) error {
	exchange := c.Param("exchange")
	if err := s.deps.Routing.Reset(c.Request().Context(), exchange); err != nil {
		return mapEngineError(c, err)
	}
	rules, err := s.deps.Routing.ListRules(c.Request().Context(), exchange)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &RulesResponse{Success: true, Exchange: exchange, Rules: rules})
}
