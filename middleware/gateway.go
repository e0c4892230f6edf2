package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TokenAuth rejects requests whose bearer token does not match expected.
// realm only labels log lines and error bodies ("admin", "webhook").
func TokenAuth(expected, realm string, log *zap.Logger) fiber.Handler {
	if expected == "" {
		log.Fatal("❌ empty token for protected routes", zap.String("realm", realm))
	}

	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			log.Warn("🚫 missing Authorization header", zap.String("realm", realm), zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": realm + " token missing",
			})
		}

		// Raw tokens are accepted as well as "Bearer <token>".
		token := strings.TrimPrefix(header, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			log.Warn("❌ invalid token", zap.String("realm", realm), zap.String("path", c.Path()))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid " + realm + " token",
			})
		}
		return c.Next()
	}
}
