// Package client talks to a running wspiernik server over its HTTP API and
// WebSocket endpoint.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/protocol"
)

// Client is an HTTP client for the wspiernik server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses WSPIERNIK_SERVER_URL or defaults to localhost:8080.
// Timeout can be configured via WSPIERNIK_CLIENT_TIMEOUT (default 30s).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("WSPIERNIK_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	timeout := 30 * time.Second
	if t := os.Getenv("WSPIERNIK_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address the client targets.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server error: %s - %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Health is the server's liveness report.
type Health struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Sessions    int    `json:"sessions"`
	Connections int    `json:"connections"`
}

// Health fetches /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Facts lists stored facts. limit > 0 keeps only the newest limit facts.
func (c *Client) Facts(ctx context.Context, limit int) (*protocol.FactsListPayload, error) {
	path := "/api/facts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var list protocol.FactsListPayload
	if err := c.getJSON(ctx, path, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

// Stats returns the server's in-memory runtime statistics.
func (c *Client) Stats(ctx context.Context) (*metrics.Snapshot, error) {
	var snap metrics.Snapshot
	if err := c.getJSON(ctx, "/api/stats", &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// =============================================================================
// WEBSOCKET
// =============================================================================

// Envelope is a server message as received, with the payload left raw.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	RequestID *string         `json:"request_id"`
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}

// Conn is an open conversation connection. Send and Receive may be used
// from different goroutines.
type Conn struct {
	conn *websocket.Conn

	mu     sync.Mutex // serializes writes
	closed bool
}

// Dial opens the WebSocket endpoint.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	wsEndpoint := c.baseURL
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/ws")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &Conn{conn: conn}, nil
}

// Send writes one client envelope and returns the request id it carries.
func (c *Conn) Send(typ string, payload protocol.InboundPayload) (string, error) {
	requestID := uuid.NewString()
	msg := protocol.Inbound{Type: typ, Payload: payload, RequestID: &requestID}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", fmt.Errorf("send %s: connection closed", typ)
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return "", fmt.Errorf("send %s: %w", typ, err)
	}
	return requestID, nil
}

// Receive blocks until the next server envelope arrives or ctx is done.
// Cancelling ctx closes the connection.
func (c *Conn) Receive(ctx context.Context) (Envelope, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-done:
		}
	}()

	var env Envelope
	if err := c.conn.ReadJSON(&env); err != nil {
		if ctx.Err() != nil {
			return Envelope{}, ctx.Err()
		}
		return Envelope{}, fmt.Errorf("read message: %w", err)
	}
	return env, nil
}

// Close sends a close frame and closes the connection. It is safe to call
// more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}
