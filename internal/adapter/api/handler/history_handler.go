package handler

import (
	"github.com/labstack/echo/v4"

	"rentex/internal/usecase"
	"rentex/pkg/response"
	"rentex/pkg/utils"
)

// HistoryHandler is the synchronous history retrieval surface. All three
// endpoints are pure reads and work whether or not the caller has a live
// connection open.
type HistoryHandler struct {
	messagingUseCase *usecase.MessagingUseCase
}

func NewHistoryHandler(messagingUseCase *usecase.MessagingUseCase) *HistoryHandler {
	return &HistoryHandler{
		messagingUseCase: messagingUseCase,
	}
}

// GetConversation returns a page of the conversation with a counterpart.
// Optional booking_id filter; order=asc for oldest-first.
func (h *HistoryHandler) GetConversation(c echo.Context) error {
	userID := c.Get("uid").(string)
	counterpartID := c.Param("userId")
	bookingID := c.QueryParam("booking_id")
	newestFirst := c.QueryParam("order") != "asc"
	pagination := utils.GetPaginationParams(c)

	messages, total, err := h.messagingUseCase.ListConversation(c.Request().Context(), userID, counterpartID, bookingID, pagination.Limit, pagination.Offset, newestFirst)
	if err != nil {
		return response.Error(c, err)
	}

	return response.SuccessPaginated(c, messages, total, pagination.Limit, pagination.Offset)
}

// GetUnreadCount returns the caller's total unread message count.
func (h *HistoryHandler) GetUnreadCount(c echo.Context) error {
	userID := c.Get("uid").(string)

	count, err := h.messagingUseCase.UnreadCount(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]int64{"count": count})
}

// GetConversations lists the caller's conversations, latest activity first.
func (h *HistoryHandler) GetConversations(c echo.Context) error {
	userID := c.Get("uid").(string)

	summaries, err := h.messagingUseCase.ListConversations(c.Request().Context(), userID)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, summaries)
}
