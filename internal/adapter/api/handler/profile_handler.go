package handler

import (
	"time"

	"github.com/labstack/echo/v4"

	"transportchat/internal/adapter/api/middleware"
	"transportchat/internal/domain/entity"
	"transportchat/internal/usecase"
	"transportchat/pkg/errors"
	"transportchat/pkg/response"
)

type ProfileHandler struct {
	chatUseCase *usecase.ChatUseCase
}

func NewProfileHandler(chatUseCase *usecase.ChatUseCase) *ProfileHandler {
	return &ProfileHandler{
		chatUseCase: chatUseCase,
	}
}

type registerPushTokenRequest struct {
	Token string `json:"token" validate:"required,max=512"`
	Role  string `json:"role" validate:"required,oneof=driver user"`
}

// RegisterPushToken stores the device token notifications are sent to.
func (h *ProfileHandler) RegisterPushToken(c echo.Context) error {
	var req registerPushTokenRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, err)
	}

	if err := c.Validate(&req); err != nil {
		return response.Error(c, err)
	}

	err := h.chatUseCase.RegisterPushToken(c.Request().Context(), middleware.UID(c), entity.Role(req.Role), req.Token)
	if err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Push token registered"})
}

func (h *ProfileHandler) SendTestNotification(c echo.Context) error {
	if err := h.chatUseCase.SendTestNotification(c.Request().Context(), middleware.UID(c)); err != nil {
		return response.Error(c, err)
	}

	return response.Success(c, map[string]string{"message": "Test notification sent"})
}

// WhoAmI echoes the verified identity, useful when wiring a client.
func (h *ProfileHandler) WhoAmI(c echo.Context) error {
	identity := middleware.Identity(c)
	if identity == nil {
		return response.Error(c, errors.Unauthorized("Authentication required", nil))
	}

	data := map[string]interface{}{
		"uid":            identity.UID,
		"anonymous":      identity.Anonymous,
		"token_verified": true,
	}
	if !identity.ExpiresAt.IsZero() {
		data["expires_at"] = identity.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return response.Success(c, data)
}
