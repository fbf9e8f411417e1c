package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/skaidler/captiondeck/internal/pkg/env"
)

// AdminAuthMiddleware guards the administrative override endpoints. The
// expected token is configured as a bcrypt hash so the plaintext never sits
// in the environment of every process.
func AdminAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := extractAdminToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing admin token"})
		}

		hash := env.GetEnv("ADMIN_TOKEN_HASH", "")
		if hash == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "Admin access not configured"})
		}

		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid admin token"})
		}

		return c.Next()
	}
}

func extractAdminToken(c *fiber.Ctx) string {
	token := strings.TrimSpace(c.Get("X-Admin-Token"))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
