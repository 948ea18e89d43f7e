package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			return next(c)
		}
	}
}

// readinessGate rejects API traffic until bootstrap has finished: scripts
// registered, engines started. Health and metrics stay reachable so
// orchestrators can observe the not-ready state.
func (s *Server) readinessGate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			if !s.ready.Load() {
				return fail(c, http.StatusServiceUnavailable, "server is starting up")
			}
			return next(c)
		}
	}
}
