package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/streamworks/relay/pkg/contentrouter"
)

// contentSubmitHandler handles POST /api/content-routing/submit.
func (s *Server) contentSubmitHandler(c *echo.Context) error {
	var req SubmitPaymentRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	result, err := s.deps.ContentRouter.Submit(c.Request().Context(), contentrouter.Payment{
		PaymentID: req.PaymentID,
		Amount:    req.Amount,
		Country:   req.Country,
		Method:    req.Method,
	})
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

// contentRulesHandler handles GET /api/content-routing/rules.
func (s *Server) contentRulesHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"rules":   s.deps.ContentRouter.Rules(),
	})
}

// contentClearHandler handles DELETE /api/content-routing/clear.
func (s *Server) contentClearHandler(c *echo.Context) error {
	if err := s.deps.ContentRouter.Clear(c.Request().Context()); err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &OKResponse{Success: true, Message: "content-routing streams cleared"})
}
