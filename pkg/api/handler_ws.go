package api

import (
	"net/http"

	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsHandler upgrades HTTP connections to WebSocket and delegates to the
// ConnectionManager. Server → client only; client frames are ignored.
func (s *Server) wsHandler(c *echo.Context) error {
	if s.deps.ConnManager == nil {
		return fail(c, http.StatusServiceUnavailable, "WebSocket not available")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// The event channel carries telemetry, not credentials; any origin
		// may observe it.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	// HandleConnection blocks until the WebSocket closes.
	s.deps.ConnManager.HandleConnection(c.Request().Context(), conn)
	return nil
}
