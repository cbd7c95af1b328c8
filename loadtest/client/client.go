// Package client provides a reusable WebSocket load test client for the
// HookChat server. It connects using gobwas/ws (the same library the server
// uses), captures the user ID from the server's connected greeting, and
// tracks per-connection performance metrics.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Client -> Server message types (local equivalents of internal/protocol).
const (
	TypeJoin        = "join"
	TypeMessage     = "message"
	TypeTyping      = "typing"
	TypeNext        = "next"
	TypeToggleGhost = "toggle_ghost"
	TypeReport      = "report"
	TypePing        = "ping"
)

// Server -> Client message types.
const (
	TypeConnected   = "connected"
	TypeMatchFound  = "match_found"
	TypePartnerLeft = "partner_left"
	TypeError       = "error"
	TypePong        = "pong"
)

// MatchFound is the decoded match_found payload.
type MatchFound struct {
	SessionID       string   `json:"session_id"`
	SharedInterests []string `json:"shared_interests"`
	Partner         struct {
		ID     string `json:"id"`
		Avatar string `json:"avatar"`
	} `json:"partner"`
}

// Metrics tracks per-connection performance data.
type Metrics struct {
	ConnectLatency   time.Duration
	MessagesReceived int
	MessagesSent     int
	Errors           int
}

// Client represents a single simulated user connection to the HookChat
// server. It manages the WebSocket lifecycle and dispatches incoming
// messages to registered handlers.
type Client struct {
	conn      net.Conn
	mu        sync.Mutex
	userID    string
	metrics   Metrics
	handlers  map[string]func(json.RawMessage)
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a load test client connected to the given WebSocket URL. A
// background goroutine begins reading messages immediately; the connected
// greeting is consumed internally to learn the assigned user ID.
func New(ctx context.Context, url string) (*Client, error) {
	start := time.Now()
	conn, _, _, err := ws.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		handlers: make(map[string]func(json.RawMessage)),
		done:     make(chan struct{}),
	}
	c.metrics.ConnectLatency = time.Since(start)

	go c.readLoop()

	return c, nil
}

// Send sends a JSON message to the server. It is goroutine-safe.
func (c *Client) Send(msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.MessagesSent++
	return wsutil.WriteClientMessage(c.conn, ws.OpText, data)
}

// Join declares preferences and enters the matching queue.
func (c *Client) Join(gender, country string, interests []string) error {
	return c.Send(map[string]interface{}{
		"type":      TypeJoin,
		"gender":    gender,
		"country":   country,
		"interests": interests,
	})
}

// SendChat relays a text message within the given session.
func (c *Client) SendChat(sessionID, text string) error {
	return c.Send(map[string]string{
		"type":       TypeMessage,
		"session_id": sessionID,
		"kind":       "text",
		"text":       text,
	})
}

// Next abandons the current chat and searches again.
func (c *Client) Next() error {
	return c.Send(map[string]string{"type": TypeNext})
}

// On registers a handler for a specific server message type. Handlers run
// on the read loop goroutine and should not block. Registering a second
// handler for the same type replaces the first.
func (c *Client) On(msgType string, handler func(json.RawMessage)) {
	c.mu.Lock()
	c.handlers[msgType] = handler
	c.mu.Unlock()
}

// WaitForUserID blocks until the server's connected greeting has arrived or
// the context is cancelled.
func (c *Client) WaitForUserID(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return fmt.Errorf("connection closed before greeting arrived")
		case <-ticker.C:
			c.mu.Lock()
			id := c.userID
			c.mu.Unlock()
			if id != "" {
				return nil
			}
		}
	}
}

// UserID returns the server-assigned user ID, or empty before the greeting.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Close closes the connection and stops the read loop. Safe to call more
// than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

// GetMetrics returns a copy of the client's metrics.
func (c *Client) GetMetrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// readLoop reads WebSocket frames and dispatches them to registered
// handlers until the connection closes.
func (c *Client) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		data, err := wsutil.ReadServerText(c.conn)
		if err != nil {
			select {
			case <-c.done:
				// Intentional close, not an error.
				return
			default:
			}
			c.mu.Lock()
			c.metrics.Errors++
			c.mu.Unlock()
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}

		c.mu.Lock()
		c.metrics.MessagesReceived++
		if envelope.Type == TypeConnected {
			var msg struct {
				UserID string `json:"user_id"`
			}
			if json.Unmarshal(data, &msg) == nil {
				c.userID = msg.UserID
			}
		}
		handler := c.handlers[envelope.Type]
		c.mu.Unlock()

		if handler != nil {
			handler(json.RawMessage(data))
		}
	}
}
