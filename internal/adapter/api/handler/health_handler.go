package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	ws "transportchat/internal/infrastructure/websocket"
)

type HealthHandler struct {
	storeBackend string
	pushProvider string
	wsManager    *ws.Manager
	startedAt    time.Time
}

var healthHandler *HealthHandler

func NewHealthHandler(storeBackend, pushProvider string, wsManager *ws.Manager) *HealthHandler {
	return &HealthHandler{
		storeBackend: storeBackend,
		pushProvider: pushProvider,
		wsManager:    wsManager,
		startedAt:    time.Now(),
	}
}

func SetupHealthHandler(storeBackend, pushProvider string, wsManager *ws.Manager) {
	healthHandler = NewHealthHandler(storeBackend, pushProvider, wsManager)
}

func GetHealthHandler() *HealthHandler {
	return healthHandler
}

func (h *HealthHandler) CheckHealth(c echo.Context) error {
	connections := 0
	if h.wsManager != nil {
		connections = h.wsManager.Count()
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "Server is running",
		"time":        time.Now().Format(time.RFC3339),
		"uptime":      time.Since(h.startedAt).Round(time.Second).String(),
		"store":       h.storeBackend,
		"push":        h.pushProvider,
		"connections": connections,
	})
}
