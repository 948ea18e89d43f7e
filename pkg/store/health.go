package store

import (
	"context"
	"time"
)

// HealthStatus represents store health and connection pool statistics.
type HealthStatus struct {
	Status       string        `json:"status"`
	ResponseTime int64         `json:"response_time_ms"`
	TotalConns   uint32        `json:"total_conns"`
	IdleConns    uint32        `json:"idle_conns"`
	StaleConns   uint32        `json:"stale_conns"`
	Hits         uint32        `json:"hits"`
	Misses       uint32        `json:"misses"`
	Timeouts     uint32        `json:"timeouts"`
}

// Health checks store connectivity and returns connection pool statistics.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return &HealthStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start).Milliseconds(),
		}, classify("ping", err)
	}

	stats := c.rdb.PoolStats()
	return &HealthStatus{
		Status:       "healthy",
		ResponseTime: time.Since(start).Milliseconds(),
		TotalConns:   stats.TotalConns,
		IdleConns:    stats.IdleConns,
		StaleConns:   stats.StaleConns,
		Hits:         stats.Hits,
		Misses:       stats.Misses,
		Timeouts:     stats.Timeouts,
	}, nil
}
