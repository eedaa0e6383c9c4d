// Package ws serves the conversation protocol over WebSocket connections.
package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/wspiernik/internal/facts"
	"github.com/raphaelgruber/wspiernik/internal/protocol"
)

// ErrConnectionGone is returned by Send for a connection that is not registered.
var ErrConnectionGone = facts.ErrConnectionGone

// ErrBufferFull is returned when a connection's send buffer is full.
var ErrBufferFull = errors.New("send buffer full")

// Connection is one client connection.
type Connection struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks live connections and delivers envelopes to them.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection
	logger      *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		logger:      logger.With("component", "hub"),
	}
}

// Register adds c to the hub.
func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	h.connections[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("connection registered", "connection_id", c.ID)
}

// Unregister removes c and closes its send channel. Calling it twice is safe.
func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cur, ok := h.connections[c.ID]; ok && cur == c {
		delete(h.connections, c.ID)
		close(c.send)
		h.logger.Debug("connection unregistered", "connection_id", c.ID)
	}
}

// Send queues msg for connID without blocking.
func (h *Hub) Send(connID string, msg protocol.Outbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[connID]
	if !ok {
		return fmt.Errorf("send to %s: %w", connID, ErrConnectionGone)
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send to %s: %w", connID, ErrBufferFull)
	}
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// CloseAll closes every live connection. Their read loops then exit and
// unregister them.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.connections {
		_ = c.conn.Close()
	}
}
