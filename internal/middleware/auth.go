package middleware

import (
	"strings"

	"tasktrack/internal/auth"
	"tasktrack/internal/repository"
	"tasktrack/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RequireAuth gates a route behind a valid access token. The credential is
// taken from the Authorization header first, then from the accessToken
// cookie. The decoded user must still exist; the resolved public user is
// bound into the request locals for downstream handlers. The gate never
// mutates state.
func RequireAuth(tokens *auth.Service, users *repository.UserRepo) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var token string

		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				token = parts[1]
			}
		}
		if token == "" {
			token = c.Cookies("accessToken")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Authorization token missing or malformed",
				"data":    nil,
			})
		}

		userID, err := tokens.ParseAccess(token)
		if err != nil {
			logger.SecurityLogger.Warn("Rejected access token",
				zap.String("path", c.Path()))
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Invalid or expired token",
				"data":    nil,
			})
		}

		user, err := users.GetByID(userID)
		if err != nil {
			logger.SecurityLogger.Warn("Token for unknown user",
				zap.Int("user_id", userID))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid token: user no longer exists",
				"data":    nil,
			})
		}

		c.Locals("user", user)
		c.Locals("userID", user.ID)
		return c.Next()
	}
}
