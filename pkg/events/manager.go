package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/streamworks/relay/pkg/metrics"
)

// ConnectionManager manages WebSocket connections and bridges them onto
// the event bus. Each connection is registered as a bus sink for its
// lifetime; the event channel is server → client only.
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	bus          *Bus
	metrics      *metrics.Metrics
	writeTimeout time.Duration
}

// Connection represents a single WebSocket client.
type Connection struct {
	ID     string
	Conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	writeTimeout time.Duration
}

// NewConnectionManager creates a new ConnectionManager publishing through
// the given bus. metrics may be nil (tests).
func NewConnectionManager(bus *Bus, writeTimeout time.Duration, m *metrics.Metrics) *ConnectionManager {
	return &ConnectionManager{
		connections:  make(map[string]*Connection),
		bus:          bus,
		metrics:      m,
		writeTimeout: writeTimeout,
	}
}

// HandleConnection manages the lifecycle of a single WebSocket connection.
// Called by the WebSocket HTTP handler after upgrade. Blocks until the
// connection closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn) {
	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(parentCtx)

	c := &Connection{
		ID:           connID,
		Conn:         conn,
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: m.writeTimeout,
	}

	m.registerConnection(c)
	defer m.unregisterConnection(c)

	// Greet, then attach to the bus so the client never observes events
	// before the INFO frame.
	m.sendJSON(c, Info("connected to relay event channel"))
	m.bus.Subscribe(c)
	defer m.bus.Unsubscribe(c)

	// Read loop. Client frames carry no protocol meaning; reading them
	// is only how we learn the connection closed.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

// Deliver implements Sink: one serialized event per text frame.
func (c *Connection) Deliver(data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}

// ActiveConnections returns the count of active WebSocket connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// CloseAll tears down every connection, used during shutdown.
func (m *ConnectionManager) CloseAll() {
	m.mu.RLock()
	conns := make([]*Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		c.cancel()
		_ = c.Conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (m *ConnectionManager) registerConnection(c *Connection) {
	m.mu.Lock()
	m.connections[c.ID] = c
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.WSConnections.Inc()
	}
	slog.Info("WebSocket client connected", "connection_id", c.ID)
}

func (m *ConnectionManager) unregisterConnection(c *Connection) {
	m.mu.Lock()
	delete(m.connections, c.ID)
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.WSConnections.Dec()
	}

	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")
	slog.Info("WebSocket client disconnected", "connection_id", c.ID)
}

// sendJSON marshals and sends a JSON message to a single connection.
func (m *ConnectionManager) sendJSON(c *Connection, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("Failed to marshal WebSocket message",
			"connection_id", c.ID, "error", err)
		return
	}
	if err := c.Deliver(data); err != nil {
		slog.Warn("Failed to send WebSocket message",
			"connection_id", c.ID, "error", err)
	}
}
