package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/dripdrop/musicjobs/internal/auth"
)

// AuthHandler handles forward auth verification for the API gateway
type AuthHandler struct {
	jwtSecret string
}

func NewAuthHandler(jwtSecret string) *AuthHandler {
	return &AuthHandler{jwtSecret: jwtSecret}
}

// Verify handles GET /auth/verify, called by the gateway before it forwards
// a request. Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || h.jwtSecret == "" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	claims, err := auth.ValidateLegacyToken(parts[1], h.jwtSecret)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", claims.Owner())
	c.Set("X-User-Email", claims.Email)
	return c.SendStatus(fiber.StatusOK)
}
