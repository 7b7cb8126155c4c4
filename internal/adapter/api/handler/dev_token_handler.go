package handler

import (
	"strings"

	"github.com/labstack/echo/v4"

	"transportchat/internal/infrastructure/firebase"
	"transportchat/pkg/errors"
	"transportchat/pkg/response"
)

// DevTokenHandler hands out dev:<uid> tokens. It is only routed in
// development, where the DevTokenVerifier accepts them.
type DevTokenHandler struct{}

var devTokenHandler *DevTokenHandler

func NewDevTokenHandler() *DevTokenHandler {
	return &DevTokenHandler{}
}

func SetupDevTokenHandler() {
	devTokenHandler = NewDevTokenHandler()
}

func GetDevTokenHandler() *DevTokenHandler {
	return devTokenHandler
}

func (h *DevTokenHandler) GenerateToken(c echo.Context) error {
	uid := strings.TrimSpace(c.Param("uid"))
	if uid == "" || strings.Contains(uid, "_") {
		return response.Error(c, errors.BadRequest("uid must be non-empty and must not contain '_'", nil))
	}

	return response.Success(c, map[string]string{
		"token": firebase.DevTokenPrefix + uid,
		"uid":   uid,
	})
}
