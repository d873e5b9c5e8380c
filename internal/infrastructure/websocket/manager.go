package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rentex/internal/domain/entity"
	"rentex/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

// Client is one live, authenticated connection session. At most one session
// per user is kept; a later session for the same user supersedes this one.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex
	closed bool
}

// enqueue puts a payload on the send buffer. Returns false only when the
// buffer is full, meaning the write pump is stuck; a payload for an already
// torn-down session is dropped silently. The mutex pairs with shutdown so a
// concurrent push can never hit a closed channel.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return true
	}

	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// shutdown closes the send buffer exactly once. Only the manager loop calls
// this, on supersession or unregister.
func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// MessageService is what the session dispatcher needs from the message
// channel. Implemented by the messaging usecase.
type MessageService interface {
	Send(ctx context.Context, senderID, receiverID, body, bookingID string) (*entity.Message, error)
	AcknowledgeRead(ctx context.Context, messageID, readerID string) (*entity.Message, error)
}

// PresenceService is the ephemeral typing coordinator surface.
type PresenceService interface {
	SetTyping(fromUserID, toUserID string, isTyping bool)
}

// Manager owns the session map: one transport connection per authenticated
// user, last writer wins.
type Manager struct {
	clients    map[string]*Client
	Register   chan *Client
	Unregister chan *Client
	mutex      sync.RWMutex

	messages MessageService
	presence PresenceService
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Bind attaches the services that inbound events dispatch to. Must be called
// before Start; separated from the constructor because the usecases need the
// manager for pushes.
func (m *Manager) Bind(messages MessageService, presence PresenceService) {
	m.messages = messages
	m.presence = presence
}

// Start runs the manager's main loop in a goroutine
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.mutex.Lock()
				if prev, ok := m.clients[client.UserID]; ok {
					// Last writer wins: drop the superseded session.
					prev.shutdown()
					if prev.Conn != nil {
						prev.Conn.Close()
					}
				}
				m.clients[client.UserID] = client
				m.mutex.Unlock()
				logger.Info("Session registered: %s", client.UserID)

			case client := <-m.Unregister:
				m.mutex.Lock()
				// Only remove the mapping if it still points at this
				// client, so unregister stays idempotent and never tears
				// down a superseding session.
				if current, ok := m.clients[client.UserID]; ok && current == client {
					delete(m.clients, client.UserID)
					client.shutdown()
					logger.Info("Session unregistered: %s", client.UserID)
				}
				m.mutex.Unlock()

			case <-ctx.Done():
				return
			}
		}
	}()
}

// IsConnected reports whether the user currently has a live session.
func (m *Manager) IsConnected(userID string) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	_, ok := m.clients[userID]
	return ok
}

// SendToUser pushes an event to a user's session if one is live. Pushes are
// best effort: an absent or slow recipient is not an error, the durable
// store remains the source of truth.
func (m *Manager) SendToUser(userID string, event WSMessage) {
	m.mutex.RLock()
	client, ok := m.clients[userID]
	m.mutex.RUnlock()

	if !ok {
		logger.Debug("Push skipped, user %s not connected", userID)
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal %s event for %s: %v", event.Type, userID, err)
		return
	}

	if !client.enqueue(payload) {
		// Send buffer full; the write pump is stuck. Drop the session,
		// the client will reconnect and recover via the history API.
		logger.Warn("Send buffer full for %s, dropping session", userID)
		m.Unregister <- client
	}
}

func (m *Manager) sendToClient(client *Client, event WSMessage) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal %s event for %s: %v", event.Type, client.UserID, err)
		return
	}

	if !client.enqueue(payload) {
		logger.Warn("Send buffer full for %s, dropping session", client.UserID)
		m.Unregister <- client
	}
}

func (m *Manager) sendErrorToClient(client *Client, message string) {
	m.sendToClient(client, NewEvent(EventError, ErrorData{Message: message}))
}

// ReadPump consumes the session's inbound events strictly in arrival order.
// It is the session's single worker: everything a client does on the live
// channel flows through here sequentially, which is what gives per-sender
// send ordering.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("Read error for %s: %v", c.UserID, err)
			}
			break
		}

		m.HandleClientMessage(c, payload)
	}
}

// WritePump drains the session's send buffer onto the wire and keeps the
// connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Warn("Write error for %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
