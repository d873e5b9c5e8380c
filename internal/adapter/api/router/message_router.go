package router

import (
	"github.com/labstack/echo/v4"

	"rentex/internal/adapter/api/handler"
	"rentex/internal/adapter/api/middleware"
)

// SetupMessageRouter sets up the synchronous history retrieval routes
func SetupMessageRouter(e *echo.Echo, messageHandler *handler.MessageHandler, historyHandler *handler.HistoryHandler, authMiddleware *middleware.AuthMiddleware) {
	messageGroup := e.Group("/v1/messages")
	messageGroup.Use(authMiddleware.Authenticate) // All message endpoints require authentication

	// History retrieval (pure reads, independent of connection state)
	messageGroup.GET("/conversations", historyHandler.GetConversations)       // GET /v1/messages/conversations - Conversation list
	messageGroup.GET("/unread", historyHandler.GetUnreadCount)                // GET /v1/messages/unread - Aggregate unread count
	messageGroup.GET("/conversation/:userId", historyHandler.GetConversation) // GET /v1/messages/conversation/:userId - Paginated history

	// Channel operations over plain HTTP
	messageGroup.POST("", messageHandler.SendMessage)            // POST /v1/messages - Send message
	messageGroup.PUT("/:id/read", messageHandler.MarkMessageRead) // PUT /v1/messages/:id/read - Mark message as read
}
