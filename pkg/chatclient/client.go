// Package chatclient is a Go client for the rentex live messaging channel.
// It owns the connection lifecycle explicitly: callers construct a client,
// dial, consume events, and close. On unexpected disconnect it retries a
// bounded number of times with exponential backoff, re-running the full
// token handshake each attempt; there is no session resumption.
package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one envelope received from the server.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

type Options struct {
	// BaseURL is the ws:// or wss:// endpoint, e.g. ws://localhost:8080/ws.
	BaseURL string

	// Token is the opaque bearer credential presented on every handshake.
	Token string

	// MaxAttempts bounds reconnection tries after an unexpected disconnect.
	MaxAttempts int

	// BaseBackoff is the delay before the first retry; it doubles each
	// attempt up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// DialTimeout applies to each individual connection attempt.
	DialTimeout time.Duration
}

func (o *Options) withDefaults() {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 10 * time.Second
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
}

// Client is one logical connection session.
type Client struct {
	opts Options

	// Events delivers server pushes in arrival order. Closed after Close or
	// once reconnection is exhausted.
	Events chan Event

	// Failed receives a single error when bounded reconnection has been
	// exhausted and the session is permanently down.
	Failed chan error

	// done is closed by Close and releases any goroutine blocked on the
	// Events channel or a backoff sleep.
	done chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Dial establishes the session, authenticating with the configured token.
// An invalid token fails immediately; reconnection only covers disconnects
// after a successful handshake.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	opts.withDefaults()

	c := &Client{
		opts:   opts,
		Events: make(chan Event, 64),
		Failed: make(chan error, 1),
		done:   make(chan struct{}),
	}

	conn, err := c.dialOnce(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn

	go c.readLoop(conn)

	return c, nil
}

func (c *Client) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.opts.Token)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				close(c.Events)
				return
			}
			c.reconnect()
			return
		}

		var event Event
		if err := json.Unmarshal(payload, &event); err != nil {
			continue
		}

		// Never wedge on a consumer that stopped draining; Close must
		// always be able to end this loop.
		select {
		case c.Events <- event:
		case <-c.done:
			close(c.Events)
			return
		}
	}
}

func (c *Client) reconnect() {
	for attempt := 0; attempt < c.opts.MaxAttempts; attempt++ {
		select {
		case <-time.After(Backoff(attempt, c.opts.BaseBackoff, c.opts.MaxBackoff)):
		case <-c.done:
			close(c.Events)
			return
		}

		conn, err := c.dialOnce(context.Background())
		if err != nil {
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		go c.readLoop(conn)
		return
	}

	c.Failed <- fmt.Errorf("connection lost after %d reconnect attempts", c.opts.MaxAttempts)
	close(c.Events)
}

// Backoff returns the delay before the given zero-based retry attempt.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func (c *Client) send(eventType string, data interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		return fmt.Errorf("session closed")
	}

	envelope := map[string]interface{}{
		"type":      eventType,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	return c.conn.WriteJSON(envelope)
}

// SendMessage asks the server to persist and deliver a message. The
// acknowledgment arrives as a message_sent event.
func (c *Client) SendMessage(receiverID, body, bookingID string) error {
	payload := map[string]string{
		"receiver_id": receiverID,
		"body":        body,
	}
	if bookingID != "" {
		payload["booking_id"] = bookingID
	}
	return c.send("send_message", payload)
}

// MarkRead reports that the caller has viewed a message.
func (c *Client) MarkRead(messageID string) error {
	return c.send("read_message", map[string]string{"message_id": messageID})
}

// SetTyping signals composing state to the counterpart. Best effort.
func (c *Client) SetTyping(to string, isTyping bool) error {
	return c.send("typing", map[string]interface{}{"to": to, "is_typing": isTyping})
}

// Close tears the session down. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return c.conn.Close()
	}
	return nil
}
