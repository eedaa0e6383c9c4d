package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/wspiernik/internal/protocol"
)

// Handler processes inbound frames of one connection at a time.
type Handler interface {
	Handle(ctx context.Context, connID string, raw []byte) []protocol.Outbound
	Disconnect(ctx context.Context, connID string)
}

// Options tunes connection handling.
type Options struct {
	ReadLimit    int64
	SendBuffer   int
	WriteTimeout time.Duration
	PongTimeout  time.Duration
	PingInterval time.Duration
}

// DefaultOptions returns the connection settings used by the server.
func DefaultOptions() Options {
	return Options{
		ReadLimit:    64 * 1024,
		SendBuffer:   64,
		WriteTimeout: 10 * time.Second,
		PongTimeout:  60 * time.Second,
		PingInterval: 50 * time.Second,
	}
}

// Server upgrades HTTP requests and pumps frames between the socket and
// the handler. Frames of one connection are handled sequentially.
type Server struct {
	hub      *Hub
	handler  Handler
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer creates a WebSocket server.
func NewServer(hub *Hub, handler Handler, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		hub:     hub,
		handler: handler,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The app is served to native and browser clients from any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.With("component", "ws"),
	}
}

// ServeHTTP handles one connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &Connection{
		ID:   uuid.NewString(),
		conn: wsConn,
		send: make(chan []byte, s.opts.SendBuffer),
	}
	s.hub.Register(c)
	s.logger.Info("client connected", "connection_id", c.ID, "remote", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump(c)
	}()
	s.readPump(r.Context(), c)
	<-done
}

// readPump handles inbound frames until the socket fails, then tears the
// connection down.
func (s *Server) readPump(ctx context.Context, c *Connection) {
	defer func() {
		s.handler.Disconnect(context.WithoutCancel(ctx), c.ID)
		s.hub.Unregister(c)
		_ = c.conn.Close()
		s.logger.Info("client disconnected", "connection_id", c.ID)
	}()

	c.conn.SetReadLimit(s.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warn("websocket read failed", "connection_id", c.ID, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		for _, out := range s.handler.Handle(ctx, c.ID, frame) {
			if err := s.hub.Send(c.ID, out); err != nil {
				s.logger.Warn("dropping outbound message", "connection_id", c.ID, "type", out.Type, "error", err)
				if errors.Is(err, ErrBufferFull) {
					return
				}
			}
		}
	}
}

// writePump drains the send buffer to the socket and keeps it alive with pings.
func (s *Server) writePump(c *Connection) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.logger.Warn("websocket write failed", "connection_id", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
