package router

import (
	"github.com/labstack/echo/v4"

	"rentex/internal/adapter/api/handler"
)

// SetupWebSocketRouter sets up WebSocket routes
func SetupWebSocketRouter(e *echo.Echo, wsHandler *handler.WebSocketHandler) {
	// Auth is handled inside the handler so the token can arrive as a query
	// parameter during the upgrade.
	e.GET("/ws", wsHandler.HandleWebSocket)
}
