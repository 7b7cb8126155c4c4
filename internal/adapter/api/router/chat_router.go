package router

import (
	"github.com/labstack/echo/v4"

	"transportchat/internal/adapter/api/handler"
	"transportchat/internal/adapter/api/middleware"
	"transportchat/internal/infrastructure/ratelimit"
)

// SetupChatRouter sets up all chat-related routes (excluding WebSocket)
func SetupChatRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	chatHandler := handler.GetChatHandler()

	chatGroup := e.Group("/v1/chats")
	chatGroup.Use(middleware.RateLimit(limiter, ratelimit.ActionHTTP))
	chatGroup.Use(authMiddleware.Authenticate)

	chatGroup.GET("", chatHandler.GetInbox)                             // GET /v1/chats - Caller's conversations
	chatGroup.GET("/unread", chatHandler.GetUnread)                     // GET /v1/chats/unread - Unread total
	chatGroup.GET("/:counterpartId", chatHandler.GetChat)               // GET /v1/chats/:counterpartId - Conversation summary
	chatGroup.PUT("/:counterpartId/read", chatHandler.MarkRead)         // PUT /v1/chats/:counterpartId/read - Reset own counter
	chatGroup.GET("/:counterpartId/messages", chatHandler.GetMessages)  // GET /v1/chats/:counterpartId/messages
	chatGroup.POST("/:counterpartId/messages", chatHandler.SendMessage) // POST /v1/chats/:counterpartId/messages
}
