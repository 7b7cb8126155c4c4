package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"transportchat/internal/infrastructure/firebase"
)

const (
	contextKeyUID      = "uid"
	contextKeyIdentity = "identity"
)

type AuthMiddleware struct {
	verifier firebase.TokenVerifier
}

func NewAuthMiddleware(verifier firebase.TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

func (m *AuthMiddleware) Authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		idToken, err := tokenFromRequest(c)
		if err != nil {
			return err
		}

		identity, err := m.verifier.Verify(c.Request().Context(), idToken)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
		}

		c.Set(contextKeyUID, identity.UID)
		c.Set(contextKeyIdentity, identity)

		return next(c)
	}
}

// tokenFromRequest reads a bearer token from the Authorization header, or
// from the token query parameter for browser WebSocket clients.
func tokenFromRequest(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if token := c.QueryParam("token"); token != "" {
			return token, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header is required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization format")
	}
	return parts[1], nil
}

// UID returns the authenticated participant id, or "" outside Authenticate.
func UID(c echo.Context) string {
	uid, _ := c.Get(contextKeyUID).(string)
	return uid
}

// Identity returns the verified identity, or nil outside Authenticate.
func Identity(c echo.Context) *firebase.Identity {
	identity, _ := c.Get(contextKeyIdentity).(*firebase.Identity)
	return identity
}
