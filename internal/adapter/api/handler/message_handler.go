package handler

import (
	"github.com/labstack/echo/v4"

	"rentex/internal/usecase"
	"rentex/pkg/response"
)

// MessageHandler exposes the send and read-receipt operations over plain
// HTTP for clients without a live connection. Same channel semantics: the
// response body is the acknowledgment, the push to the counterpart is best
// effort.
type MessageHandler struct {
	messagingUseCase *usecase.MessagingUseCase
}

func NewMessageHandler(messagingUseCase *usecase.MessagingUseCase) *MessageHandler {
	return &MessageHandler{
		messagingUseCase: messagingUseCase,
	}
}

type sendMessageRequest struct {
	ReceiverID string `json:"receiver_id" validate:"required"`
	Body       string `json:"body" validate:"required"`
	BookingID  string `json:"booking_id"`
}

// SendMessage persists and acknowledges a message
func (h *MessageHandler) SendMessage(c echo.Context) error {
	var req sendMessageRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	userID := c.Get("uid").(string)

	message, err := h.messagingUseCase.Send(c.Request().Context(), userID, req.ReceiverID, req.Body, req.BookingID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Created(c, message)
}

// MarkMessageRead records the caller's read of a message
func (h *MessageHandler) MarkMessageRead(c echo.Context) error {
	messageID := c.Param("id")
	userID := c.Get("uid").(string)

	message, err := h.messagingUseCase.AcknowledgeRead(c.Request().Context(), messageID, userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, message)
}
