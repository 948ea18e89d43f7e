package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/streamworks/relay/pkg/relayerr"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// fail writes the uniform error body.
func fail(c *echo.Context, status int, message string) error {
	return c.JSON(status, &ErrorResponse{Success: false, Error: message})
}

// mapEngineError translates the relayerr taxonomy to HTTP statuses.
func mapEngineError(c *echo.Context, err error) error {
	switch relayerr.KindOf(err) {
	case relayerr.KindValidation:
		return fail(c, http.StatusBadRequest, err.Error())
	case relayerr.KindNotFound:
		return fail(c, http.StatusNotFound, err.Error())
	case relayerr.KindTimeout:
		return fail(c, http.StatusGatewayTimeout, err.Error())
	case relayerr.KindConnectivity:
		return fail(c, http.StatusServiceUnavailable, err.Error())
	case relayerr.KindScript:
		slog.Error("Script error surfaced to HTTP", "error", err)
		return fail(c, http.StatusInternalServerError, err.Error())
	default:
		slog.Error("Unexpected engine error", "error", err)
		return fail(c, http.StatusInternalServerError, "internal server error")
	}
}
