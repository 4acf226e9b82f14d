// Package wsembed implements an embed.Backend over a persistent websocket
// connection. Requests are correlated with responses by numeric id so many
// Embed calls may be in flight on one connection.
package wsembed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tiroq/qacut/internal/diaglog"
	"github.com/tiroq/qacut/internal/embed"
)

// Message ops.
const (
	OpEmbed  = "embed"
	OpResult = "result"
	OpPing   = "ping"
	OpPong   = "pong"
)

// Message is the single frame shape used in both directions.
type Message struct {
	Op        string    `json:"op"`
	ID        int       `json:"id"`
	Text      string    `json:"text,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ErrNotConnected is returned when a request is made on a closed client.
var ErrNotConnected = errors.New("wsembed: not connected")

// Client is an embed.Backend backed by a websocket embedding service. The
// connection is dialed lazily on first use and redialed after a drop.
type Client struct {
	url string

	mu        sync.RWMutex
	conn      *websocket.Conn
	writeMu   sync.Mutex
	connected bool

	requestID   int
	requestIDMu sync.Mutex
	responses   map[int]chan *Message
	responseMu  sync.Mutex

	dialTimeout time.Duration

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewClient creates a client for the ws:// or wss:// url.
func NewClient(url string) *Client {
	return &Client{
		url:         url,
		responses:   make(map[int]chan *Message),
		dialTimeout: 10 * time.Second,
	}
}

// Name returns the backend identifier.
func (c *Client) Name() string { return "websocket" }

// SetLogger injects a diaglog.Logger.
func (c *Client) SetLogger(l *diaglog.Logger) {
	c.loggerMu.Lock()
	c.logger = l
	c.loggerMu.Unlock()
}

func (c *Client) log(entry diaglog.LogEntry) {
	c.loggerMu.RLock()
	l := c.logger
	c.loggerMu.RUnlock()
	if entry.Component == "" {
		entry.Component = diaglog.ComponentEmbedWS
	}
	l.Log(entry)
}

// Connect dials the service if not already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = c.dialTimeout
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("wsembed: failed to connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	c.log(diaglog.LogEntry{Event: diaglog.EventWSConnect, Payload: map[string]interface{}{"url": c.url}})

	go c.readMessages(conn)
	return nil
}

// IsConnected reports the connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readMessages dispatches result frames to waiting requests until the
// connection fails.
func (c *Client) readMessages(conn *websocket.Conn) {
	defer c.drop(conn)
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		c.log(diaglog.LogEntry{
			Event:   diaglog.EventWSRecv,
			Payload: map[string]interface{}{"op": msg.Op, "id": msg.ID},
		})
		if msg.Op != OpResult && msg.Op != OpPong {
			continue
		}
		c.responseMu.Lock()
		ch, ok := c.responses[msg.ID]
		c.responseMu.Unlock()
		if ok {
			m := msg
			select {
			case ch <- &m:
			default:
			}
		}
	}
}

// drop tears down conn and fails every pending request.
func (c *Client) drop(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		_ = conn.Close()
		c.conn = nil
		c.connected = false
		c.log(diaglog.LogEntry{Event: diaglog.EventWSDisconnect, Payload: map[string]interface{}{"url": c.url}})
	}
	c.mu.Unlock()

	c.responseMu.Lock()
	for id, ch := range c.responses {
		select {
		case ch <- &Message{Op: OpResult, ID: id, Error: ErrNotConnected.Error()}:
		default:
		}
	}
	c.responseMu.Unlock()
}

// request sends msg with a fresh id and waits for the matching response.
func (c *Client) request(ctx context.Context, msg Message) (*Message, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	c.requestIDMu.Lock()
	c.requestID++
	msg.ID = c.requestID
	c.requestIDMu.Unlock()

	respCh := make(chan *Message, 1)
	c.responseMu.Lock()
	c.responses[msg.ID] = respCh
	c.responseMu.Unlock()
	defer func() {
		c.responseMu.Lock()
		delete(c.responses, msg.ID)
		c.responseMu.Unlock()
	}()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	c.log(diaglog.LogEntry{
		Event:   diaglog.EventWSSend,
		Payload: map[string]interface{}{"op": msg.Op, "id": msg.ID},
	})
	c.writeMu.Lock()
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		c.drop(conn)
		return nil, fmt.Errorf("wsembed: write: %w", err)
	}

	select {
	case resp := <-respCh:
		if resp.Error != "" {
			return nil, fmt.Errorf("wsembed: %s", resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("wsembed: request %d: %w", msg.ID, ctx.Err())
	}
}

// Embed requests an embedding for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.request(ctx, Message{Op: OpEmbed, Text: text})
	if err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("wsembed: empty embedding in response")
	}
	return resp.Embedding, nil
}

// HealthCheck round-trips a ping frame.
func (c *Client) HealthCheck(ctx context.Context) (*embed.HealthStatus, error) {
	start := time.Now()
	status := &embed.HealthStatus{Backend: c.Name()}
	_, err := c.request(ctx, Message{Op: OpPing})
	status.Latency = time.Since(start)
	if err != nil {
		status.Message = fmt.Sprintf("health check failed: %v", err)
		return status, nil
	}
	status.OK = true
	status.Message = "healthy"
	return status, nil
}

// Close closes the connection. Pending requests fail with ErrNotConnected.
func (c *Client) Close() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil
	}
	c.drop(conn)
	return nil
}
