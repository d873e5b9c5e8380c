package websocket

import (
	"context"
	"encoding/json"
	"errors"

	apperrors "rentex/pkg/errors"
	"rentex/pkg/logger"
)

// HandleClientMessage processes one inbound event from a session. Called by
// the session's read pump, so events from one connection are handled
// strictly sequentially.
func (m *Manager) HandleClientMessage(client *Client, payload []byte) {
	var event WSMessage
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.Warn("Failed to unmarshal event from %s: %v", client.UserID, err)
		m.sendErrorToClient(client, "Invalid message format")
		return
	}

	logger.Debug("Received %s event from %s", event.Type, client.UserID)

	switch event.Type {
	case EventPing:
		m.sendToClient(client, NewEvent(EventPong, map[string]string{"status": "alive"}))

	case EventSendMessage:
		m.handleSendMessage(client, event.Data)

	case EventReadMessage:
		m.handleReadMessage(client, event.Data)

	case EventTyping:
		m.handleTyping(client, event.Data)

	default:
		logger.Warn("Unknown event type '%s' from %s", event.Type, client.UserID)
		m.sendErrorToClient(client, "Unknown event type")
	}
}

func (m *Manager) handleSendMessage(client *Client, data interface{}) {
	var input SendMessageData
	if !decodeEventData(data, &input) {
		m.sendErrorToClient(client, "Invalid send message format")
		return
	}

	// Blocks until the message is durably persisted; the push to the
	// recipient happens inside the service and never delays this ack.
	message, err := m.messages.Send(context.Background(), client.UserID, input.ReceiverID, input.Body, input.BookingID)
	if err != nil {
		m.sendErrorToClient(client, errorMessage(err))
		return
	}

	m.sendToClient(client, NewEvent(EventMessageSent, message))
}

func (m *Manager) handleReadMessage(client *Client, data interface{}) {
	var input ReadMessageData
	if !decodeEventData(data, &input) {
		m.sendErrorToClient(client, "Invalid read message format")
		return
	}
	if input.MessageID == "" {
		m.sendErrorToClient(client, "Missing message_id")
		return
	}

	if _, err := m.messages.AcknowledgeRead(context.Background(), input.MessageID, client.UserID); err != nil {
		m.sendErrorToClient(client, errorMessage(err))
	}
}

func (m *Manager) handleTyping(client *Client, data interface{}) {
	var input TypingData
	if !decodeEventData(data, &input) {
		m.sendErrorToClient(client, "Invalid typing format")
		return
	}
	if input.To == "" {
		m.sendErrorToClient(client, "Missing typing recipient")
		return
	}

	// Best effort, no error surface beyond payload validation.
	m.presence.SetTyping(client.UserID, input.To, input.IsTyping)
}

func decodeEventData(data interface{}, out interface{}) bool {
	raw, err := json.Marshal(data)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "An unexpected error occurred"
}
