package router

import (
	"github.com/labstack/echo/v4"

	"transportchat/internal/adapter/api/handler"
	"transportchat/internal/adapter/api/middleware"
	"transportchat/internal/infrastructure/ratelimit"
)

func SetupProfileRouter(e *echo.Echo, authMiddleware *middleware.AuthMiddleware, limiter *ratelimit.RateLimiter) {
	profileHandler := handler.GetProfileHandler()

	me := e.Group("/v1/me")
	me.Use(middleware.RateLimit(limiter, ratelimit.ActionHTTP))
	me.Use(authMiddleware.Authenticate)

	me.GET("", profileHandler.WhoAmI)
	me.PUT("/push-token", profileHandler.RegisterPushToken)
	me.POST("/push-test", profileHandler.SendTestNotification)
}
