package websocket

import "time"

// Live channel event types
const (
	EventPing        = "ping"
	EventPong        = "pong"
	EventSendMessage = "send_message" // client -> server
	EventMessageSent = "message_sent" // server -> sender (persisted acknowledgment)
	EventNewMessage  = "new_message"  // server -> recipient (push delivery)
	EventReadMessage = "read_message" // client -> server
	EventMessageRead = "message_read" // server -> original sender
	EventTyping      = "typing"       // both directions
	EventError       = "error"
)

// WSMessage is the envelope for every event on the live channel.
type WSMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewEvent wraps a payload in the envelope with a fresh timestamp.
func NewEvent(eventType string, data interface{}) WSMessage {
	return WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

type SendMessageData struct {
	ReceiverID string `json:"receiver_id"`
	Body       string `json:"body"`
	BookingID  string `json:"booking_id,omitempty"`
}

type ReadMessageData struct {
	MessageID string `json:"message_id"`
}

type MessageReadData struct {
	MessageID string `json:"message_id"`
	ReadAt    string `json:"read_at"`
}

type TypingData struct {
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	IsTyping  bool   `json:"is_typing"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
}
