package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// pubsubPublishHandler handles POST /api/pubsub/publish.
func (s *Server) pubsubPublishHandler(c *echo.Context) error {
	var req PublishRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	subscribers, err := s.deps.PubSub.Publish(c.Request().Context(), req.Channel, req.Payload)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &PublishResponse{
		Success:     true,
		Channel:     req.Channel,
		Subscribers: subscribers,
	})
}

// pubsubRoutedPublishHandler handles POST /api/pubsub-topic-routing/publish:
// the routing key is the channel, selected by pattern subscribers' globs.
func (s *Server) pubsubRoutedPublishHandler(c *echo.Context) error {
	var req PublishRoutedRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err.Error())
	}

	subscribers, err := s.deps.PubSub.PublishRouted(c.Request().Context(), req.RoutingKey, req.Payload)
	if err != nil {
		return mapEngineError(c, err)
	}
	return c.JSON(http.StatusOK, &PublishResponse{
		Success:     true,
		Channel:     req.RoutingKey,
		Subscribers: subscribers,
	})
}
