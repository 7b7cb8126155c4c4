package router

import (
	"github.com/labstack/echo/v4"

	"transportchat/internal/adapter/api/handler"
	"transportchat/internal/adapter/api/middleware"
)

// SetupWebSocketRouter sets up WebSocket routes
func SetupWebSocketRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware) {
	wsHandler := handler.GetWebSocketHandler()

	wsGroup := e.Group("/v1/ws")
	wsGroup.Use(authMiddleware.Authenticate)

	wsGroup.GET("/chat", wsHandler.HandleChat)
	wsGroup.GET("/inbox", wsHandler.HandleInbox)
}
