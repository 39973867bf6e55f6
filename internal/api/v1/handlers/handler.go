package handlers

import (
	"time"

	"tasktrack/configs"
	"tasktrack/internal/auth"
	"tasktrack/internal/repository"
	"tasktrack/internal/websocket"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
)

// cacheTTL bounds how long task/user reads are served from redis.
const cacheTTL = time.Hour

// Handler bundles the dependencies every endpoint needs. Everything is
// constructed in main and injected; there is no package-level state.
type Handler struct {
	Cfg      configs.Config
	Users    *repository.UserRepo
	Tasks    *repository.TaskRepo
	Tokens   *auth.Service
	Validate *validator.Validate
	Cache    *redis.Client
	Hub      *websocket.Hub
}

// respond renders the uniform success envelope.
func respond(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    data,
	})
}

// fail renders the uniform error envelope.
func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
		"data":    nil,
	})
}

// failWith is fail plus a detail list, used for validation errors.
func failWith(c *fiber.Ctx, status int, message string, errs interface{}) error {
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
		"errors":  errs,
		"data":    nil,
	})
}

// setSessionCookies installs the token pair as HTTP-only cookies. The
// Secure attribute is only set in production so local HTTP flows keep
// working.
func (h *Handler) setSessionCookies(c *fiber.Ctx, accessToken, refreshToken string) {
	secure := h.Cfg.AppEnv == "production"
	c.Cookie(&fiber.Cookie{
		Name:     "accessToken",
		Value:    accessToken,
		MaxAge:   int(auth.AccessTokenTTL.Seconds()),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteStrictMode,
		Path:     "/",
	})
	c.Cookie(&fiber.Cookie{
		Name:     "refreshToken",
		Value:    refreshToken,
		MaxAge:   int(auth.RefreshTokenTTL.Seconds()),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteStrictMode,
		Path:     "/",
	})
}

func (h *Handler) clearSessionCookies(c *fiber.Ctx) {
	secure := h.Cfg.AppEnv == "production"
	for _, name := range []string{"accessToken", "refreshToken"} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Expires:  time.Now().Add(-time.Hour),
			MaxAge:   -1,
			HTTPOnly: true,
			Secure:   secure,
			SameSite: fiber.CookieSameSiteStrictMode,
			Path:     "/",
		})
	}
}
