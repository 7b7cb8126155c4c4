package router

import (
	"github.com/labstack/echo/v4"

	"transportchat/internal/adapter/api/middleware"
	"transportchat/internal/infrastructure/ratelimit"
)

func Setup(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter, environment string) {
	SetupHealthRouter(e)
	SetupChatRouter(e, authMiddleware, limiter)
	SetupProfileRouter(e, authMiddleware, limiter)
	SetupWebSocketRouter(e, authMiddleware)
	SetupDevRouter(e, environment)
}
